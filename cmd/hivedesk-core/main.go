package main

import (
	"context"
	"database/sql"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"hivedesk-core/internal/config"
	httpapi "hivedesk-core/internal/http"
	"hivedesk-core/internal/logger"
	"hivedesk-core/internal/migrate"
	"hivedesk-core/internal/repository"
	"hivedesk-core/internal/service"
	"hivedesk-core/internal/store"
	"hivedesk-core/internal/tenantdb"
)

func main() {
	cfg := config.Load()

	zlog, err := logger.NewLogger(cfg.Log.Level, cfg.Log.Format, "hivedesk-core")
	if err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}
	defer zlog.Sync()

	// 主库
	masterDB, err := sql.Open("postgres", cfg.Master.GetDSN())
	if err != nil {
		zlog.Fatal("Failed to open master database", zap.Error(err))
	}
	masterDB.SetMaxOpenConns(cfg.Master.MaxConns)
	masterDB.SetMaxIdleConns(cfg.Master.MaxIdle)
	if err := masterDB.Ping(); err != nil {
		zlog.Fatal("Failed to ping master database", zap.Error(err))
	}

	// 主库schema就绪
	if err := migrate.Apply(context.Background(), masterDB, migrate.Master, zlog); err != nil {
		zlog.Fatal("Failed to apply master migrations", zap.Error(err))
	}

	// Redis（描述符缓存 + 吊销名单 + 事件stream）
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	kv := store.NewRedisKV(redisClient)
	events := store.NewStreamPublisher(redisClient)

	// 主库Repository
	tenantsRepo := repository.NewPostgresTenantsRepository(masterDB)
	permsRepo := repository.NewPostgresPermissionsRepository(masterDB)
	rolesRepo := repository.NewPostgresRolesRepository(masterDB)

	// 租户连接路由
	vault := repository.NewKVCredentialVault(tenantsRepo, kv, zlog)
	router := tenantdb.NewRouter(
		vault,
		masterDB,
		tenantdb.DefaultOpen(tenantdb.PoolConfig{
			MaxConns: cfg.TenantDB.MaxConns,
			MaxIdle:  cfg.TenantDB.MaxIdle,
		}),
		cfg.Router.InvalidateGrace,
		zlog,
	)

	// Service
	permissionSvc := service.NewPermissionService(permsRepo, rolesRepo, zlog)
	roleSvc := service.NewRoleService(rolesRepo, zlog)
	tokenSvc := service.NewTokenService(cfg.Token.Secret, cfg.Token.AccessTTL, cfg.Token.RefreshTTL, kv, zlog)
	authSvc := service.NewAuthService(nil, permissionSvc, tokenSvc, zlog)
	tenantSvc := service.NewTenantService(tenantsRepo, router, zlog)
	provisioner := service.NewTenantProvisioner(
		tenantsRepo, rolesRepo, router, masterDB,
		service.TenantDBDefaults{
			Host:    cfg.TenantDB.Host,
			Port:    cfg.TenantDB.Port,
			SSLMode: cfg.TenantDB.SSLMode,
		},
		events, zlog,
	)

	// HTTP
	authMW := httpapi.NewAuthMiddleware(tokenSvc, zlog)
	mux := httpapi.NewRouter(zlog)
	mux.RegisterHealthRoutes()
	mux.RegisterAuthRoutes(httpapi.NewAuthHandler(authSvc, tokenSvc, router, authMW, zlog))
	mux.RegisterAdminRoutes(authMW,
		httpapi.NewTenantsHandler(tenantSvc, provisioner, zlog),
		httpapi.NewPermissionsHandler(permissionSvc, zlog),
		httpapi.NewRolesHandler(roleSvc, permissionSvc, zlog),
	)

	srv := service.NewServer(cfg.HTTP.Addr, mux, zlog)
	srv.OnStop(router.ShutdownAll)
	srv.OnStop(func() { _ = redisClient.Close() })
	srv.OnStop(func() { _ = masterDB.Close() })

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigCh:
	case err := <-errCh:
		zlog.Error("HTTP server exited", zap.Error(err))
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = srv.Stop(shutdownCtx)
}
