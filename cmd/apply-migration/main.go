package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"

	_ "github.com/lib/pq"

	"hivedesk-core/internal/config"
	"hivedesk-core/internal/logger"
	"hivedesk-core/internal/migrate"
	"hivedesk-core/internal/repository"
)

// 运维工具：对主库或指定租户库执行内嵌迁移集
// 用法:
//   apply-migration master
//   apply-migration tenant <tenant_id>
func main() {
	if len(os.Args) < 2 {
		log.Fatalf("Usage: %s master | tenant <tenant_id>", os.Args[0])
	}

	cfg := config.Load()
	zlog, err := logger.NewLogger(cfg.Log.Level, "console", "apply-migration")
	if err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}
	defer zlog.Sync()

	masterDB, err := sql.Open("postgres", cfg.Master.GetDSN())
	if err != nil {
		log.Fatalf("Failed to open master database: %v", err)
	}
	defer masterDB.Close()
	if err := masterDB.Ping(); err != nil {
		log.Fatalf("Failed to ping master database: %v", err)
	}

	ctx := context.Background()

	switch os.Args[1] {
	case "master":
		if err := migrate.Apply(ctx, masterDB, migrate.Master, zlog); err != nil {
			log.Fatalf("Master migration failed: %v", err)
		}
		fmt.Println("Master migrations applied")

	case "tenant":
		if len(os.Args) < 3 {
			log.Fatalf("Usage: %s tenant <tenant_id>", os.Args[0])
		}
		tenantID := os.Args[2]

		tenantsRepo := repository.NewPostgresTenantsRepository(masterDB)
		desc, err := tenantsRepo.GetTenantDatabase(ctx, tenantID)
		if err != nil {
			log.Fatalf("Failed to load tenant database descriptor: %v", err)
		}

		dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			desc.Host, desc.Port, desc.DBUser, desc.DBPassword, desc.DBName, desc.SSLMode)
		tenantDB, err := sql.Open("postgres", dsn)
		if err != nil {
			log.Fatalf("Failed to open tenant database: %v", err)
		}
		defer tenantDB.Close()
		if err := tenantDB.Ping(); err != nil {
			log.Fatalf("Failed to ping tenant database: %v", err)
		}

		if err := migrate.Apply(ctx, tenantDB, migrate.TenantSchema, zlog); err != nil {
			log.Fatalf("Tenant migration failed: %v", err)
		}
		fmt.Printf("Tenant migrations applied: %s\n", tenantID)

	default:
		log.Fatalf("Unknown target %q (want master | tenant)", os.Args[1])
	}
}
