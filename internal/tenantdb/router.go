package tenantdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"hivedesk-core/internal/domain"
	"hivedesk-core/internal/repository"
)

// MasterKey 主库哨兵键：Resolve(MasterKey)返回master realm句柄
const MasterKey = "master"

// OpenFunc 按描述符打开库句柄（测试可注入）
type OpenFunc func(ctx context.Context, desc *domain.TenantDatabase) (*sql.DB, error)

// PoolConfig 租户库连接池参数
type PoolConfig struct {
	MaxConns int
	MaxIdle  int
}

// DefaultOpen 生产环境的OpenFunc：lib/pq + 连接池参数 + ping验证
func DefaultOpen(pool PoolConfig) OpenFunc {
	return func(ctx context.Context, desc *domain.TenantDatabase) (*sql.DB, error) {
		dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			desc.Host, desc.Port, desc.DBUser, desc.DBPassword, desc.DBName, desc.SSLMode)
		db, err := sql.Open("postgres", dsn)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}
		if pool.MaxConns > 0 {
			db.SetMaxOpenConns(pool.MaxConns)
		}
		if pool.MaxIdle > 0 {
			db.SetMaxIdleConns(pool.MaxIdle)
		}
		if err := db.PingContext(ctx); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to ping database: %w", err)
		}
		return db, nil
	}
}

// Router 租户连接路由器
// tenantKey（UUID/domain/MasterKey）→ 缓存的*sql.DB句柄。
// 同一租户的句柄跨请求共享；首次并发访问经singleflight收敛，
// 保证每个租户至多创建一个连接对象，避免对同一物理库的连接风暴
type Router struct {
	vault  repository.CredentialVault
	master *sql.DB
	open   OpenFunc
	grace  time.Duration
	logger *zap.Logger

	mu      sync.RWMutex
	handles map[string]*sql.DB // tenantID -> 句柄
	aliases map[string]string  // tenantKey(UUID或domain) -> tenantID
	closed  bool

	sf singleflight.Group
}

// NewRouter 创建路由器
// master: 主库句柄（进程启动时建立）；grace: Invalidate关闭前的宽限期
func NewRouter(vault repository.CredentialVault, master *sql.DB, open OpenFunc, grace time.Duration, logger *zap.Logger) *Router {
	if grace <= 0 {
		grace = 5 * time.Second
	}
	return &Router{
		vault:   vault,
		master:  master,
		open:    open,
		grace:   grace,
		logger:  logger,
		handles: map[string]*sql.DB{},
		aliases: map[string]string{},
	}
}

// Resolve 解析租户键，返回该租户隔离库的句柄
// 缓存未命中时惰性建连并回填缓存；建连失败返回ErrConnectionFailed且不缓存，
// 后续调用可干净重试
func (r *Router) Resolve(ctx context.Context, tenantKey string) (*sql.DB, error) {
	if tenantKey == "" {
		return nil, fmt.Errorf("tenant key is required")
	}
	if tenantKey == MasterKey {
		return r.master, nil
	}

	// 快路径：已有句柄
	r.mu.RLock()
	if r.closed {
		r.mu.RUnlock()
		return nil, fmt.Errorf("router is shut down")
	}
	if id, ok := r.aliases[tenantKey]; ok {
		if db, ok := r.handles[id]; ok {
			r.mu.RUnlock()
			return db, nil
		}
	}
	r.mu.RUnlock()

	// 慢路径：singleflight收敛并发首访
	v, err, _ := r.sf.Do(tenantKey, func() (interface{}, error) {
		return r.resolveSlow(ctx, tenantKey)
	})
	if err != nil {
		return nil, err
	}
	return v.(*sql.DB), nil
}

func (r *Router) resolveSlow(ctx context.Context, tenantKey string) (*sql.DB, error) {
	tenant, desc, err := r.vault.Lookup(ctx, tenantKey)
	if err != nil {
		return nil, err
	}

	// 复查：同一租户可能已通过另一个键建连
	r.mu.RLock()
	db, ok := r.handles[tenant.TenantID]
	closed := r.closed
	r.mu.RUnlock()
	if closed {
		return nil, fmt.Errorf("router is shut down")
	}
	if ok {
		r.storeAliases(tenantKey, tenant)
		return db, nil
	}

	db, err = r.open(ctx, desc)
	if err != nil {
		// 不缓存失败结果：下一次调用干净重试
		r.logger.Warn("Failed to open tenant database",
			zap.String("tenant_id", tenant.TenantID),
			zap.String("db_name", desc.DBName),
			zap.Error(err),
		)
		return nil, fmt.Errorf("%w: %v", domain.ErrConnectionFailed, err)
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		db.Close()
		return nil, fmt.Errorf("router is shut down")
	}
	// 双重检查：锁外open期间其他键可能已写入
	if existing, ok := r.handles[tenant.TenantID]; ok {
		r.mu.Unlock()
		db.Close()
		return existing, nil
	}
	r.handles[tenant.TenantID] = db
	r.aliasesLocked(tenantKey, tenant)
	r.mu.Unlock()

	r.logger.Info("Tenant database connected",
		zap.String("tenant_id", tenant.TenantID),
		zap.String("domain", tenant.Domain),
	)
	return db, nil
}

// Adopt 用已知描述符直接建立句柄并登记缓存
// 租户开通流程已持有刚写入的描述符，无需经vault再查一次；
// 此处建立的缓存项在租户转为active后被常规Resolve复用
func (r *Router) Adopt(ctx context.Context, tenant *domain.Tenant, desc *domain.TenantDatabase) (*sql.DB, error) {
	r.mu.RLock()
	db, ok := r.handles[tenant.TenantID]
	closed := r.closed
	r.mu.RUnlock()
	if closed {
		return nil, fmt.Errorf("router is shut down")
	}
	if ok {
		r.storeAliases(tenant.TenantID, tenant)
		return db, nil
	}

	db, err := r.open(ctx, desc)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrConnectionFailed, err)
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		db.Close()
		return nil, fmt.Errorf("router is shut down")
	}
	if existing, ok := r.handles[tenant.TenantID]; ok {
		r.mu.Unlock()
		db.Close()
		return existing, nil
	}
	r.handles[tenant.TenantID] = db
	r.aliasesLocked(tenant.TenantID, tenant)
	r.mu.Unlock()
	return db, nil
}

// Invalidate 驱逐租户句柄（描述符变更或租户停用时调用）
// 宽限期后关闭底层连接，给在途操作留出完成时间（尽力而为）
func (r *Router) Invalidate(tenantKey string) {
	r.mu.Lock()
	id, ok := r.aliases[tenantKey]
	if !ok {
		id = tenantKey
	}
	db, had := r.handles[id]
	delete(r.handles, id)
	for alias, target := range r.aliases {
		if target == id {
			delete(r.aliases, alias)
		}
	}
	grace := r.grace
	r.mu.Unlock()

	r.vault.Invalidate(context.Background(), id)

	if !had {
		return
	}
	r.logger.Info("Tenant database handle evicted",
		zap.String("tenant_id", id),
		zap.Duration("grace", grace),
	)
	go func() {
		time.Sleep(grace)
		if err := db.Close(); err != nil {
			r.logger.Warn("Failed to close tenant database", zap.String("tenant_id", id), zap.Error(err))
		}
	}()
}

// ShutdownAll 关闭全部租户句柄（进程退出路径；不含master句柄）
func (r *Router) ShutdownAll() {
	r.mu.Lock()
	handles := r.handles
	r.handles = map[string]*sql.DB{}
	r.aliases = map[string]string{}
	r.closed = true
	r.mu.Unlock()

	for id, db := range handles {
		if err := db.Close(); err != nil {
			r.logger.Warn("Failed to close tenant database", zap.String("tenant_id", id), zap.Error(err))
		}
	}
	r.logger.Info("All tenant database handles closed", zap.Int("count", len(handles)))
}

// HandleCount 当前缓存的句柄数（监控/测试用）
func (r *Router) HandleCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.handles)
}

func (r *Router) storeAliases(tenantKey string, tenant *domain.Tenant) {
	r.mu.Lock()
	r.aliasesLocked(tenantKey, tenant)
	r.mu.Unlock()
}

func (r *Router) aliasesLocked(tenantKey string, tenant *domain.Tenant) {
	r.aliases[tenant.TenantID] = tenant.TenantID
	if tenant.Domain != "" {
		r.aliases[tenant.Domain] = tenant.TenantID
	}
	if tenantKey != "" {
		r.aliases[tenantKey] = tenant.TenantID
	}
}

// IsNotFound 判断Resolve错误是否为"租户不存在/不可路由"
func IsNotFound(err error) bool {
	return errors.Is(err, domain.ErrTenantNotFound)
}
