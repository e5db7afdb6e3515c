package tenantdb

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hivedesk-core/internal/domain"
	"hivedesk-core/internal/logger"
	"hivedesk-core/internal/repository"
	"hivedesk-core/internal/store"
)

// fakeHandle 不建立真实连接的句柄（测试中从不执行SQL）
func fakeHandle(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("postgres", "host=invalid.test sslmode=disable")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

// countingOpen 统计物理建连次数的OpenFunc
func countingOpen(t *testing.T, opens *int32) OpenFunc {
	return func(ctx context.Context, desc *domain.TenantDatabase) (*sql.DB, error) {
		atomic.AddInt32(opens, 1)
		return fakeHandle(t), nil
	}
}

func setupRouterTenant(t *testing.T, status string) (repository.TenantsRepository, *domain.Tenant) {
	t.Helper()
	repo := repository.NewMemoryTenantsRepository()
	tenant := &domain.Tenant{TenantName: "Acme", Domain: "acme", Status: status}
	id, err := repo.CreateTenant(context.Background(), tenant)
	require.NoError(t, err)
	tenant.TenantID = id
	require.NoError(t, repo.SetTenantDatabase(context.Background(), &domain.TenantDatabase{
		TenantID: id, Host: "db.internal", Port: 5432,
		DBName: "hd_t_acme", DBUser: "hd_u_acme", DBPassword: "pw", SSLMode: "disable",
	}))
	return repo, tenant
}

func newTestRouter(t *testing.T, repo repository.TenantsRepository, open OpenFunc) *Router {
	vault := repository.NewKVCredentialVault(repo, store.NewMemoryKV(), logger.NewNop())
	return NewRouter(vault, fakeHandle(t), open, 10*time.Millisecond, logger.NewNop())
}

func TestResolveSharesHandleAcrossKeys(t *testing.T) {
	ctx := context.Background()
	repo, tenant := setupRouterTenant(t, domain.TenantStatusActive)
	var opens int32
	r := newTestRouter(t, repo, countingOpen(t, &opens))

	byID, err := r.Resolve(ctx, tenant.TenantID)
	require.NoError(t, err)
	byDomain, err := r.Resolve(ctx, "acme")
	require.NoError(t, err)

	// UUID和domain两个键命中同一个句柄，只建连一次
	assert.Same(t, byID, byDomain)
	assert.Equal(t, int32(1), atomic.LoadInt32(&opens))
	assert.Equal(t, 1, r.HandleCount())
}

func TestResolveMasterKey(t *testing.T) {
	repo, _ := setupRouterTenant(t, domain.TenantStatusActive)
	master := fakeHandle(t)
	vault := repository.NewKVCredentialVault(repo, store.NewMemoryKV(), logger.NewNop())
	r := NewRouter(vault, master, countingOpen(t, new(int32)), time.Millisecond, logger.NewNop())

	db, err := r.Resolve(context.Background(), MasterKey)
	require.NoError(t, err)
	assert.Same(t, master, db)
	assert.Equal(t, 0, r.HandleCount())
}

func TestResolveConcurrentOpensOnce(t *testing.T) {
	ctx := context.Background()
	repo, tenant := setupRouterTenant(t, domain.TenantStatusActive)
	var opens int32
	slowOpen := func(octx context.Context, desc *domain.TenantDatabase) (*sql.DB, error) {
		atomic.AddInt32(&opens, 1)
		time.Sleep(20 * time.Millisecond)
		return fakeHandle(t), nil
	}
	r := newTestRouter(t, repo, slowOpen)

	var wg sync.WaitGroup
	handles := make([]*sql.DB, 16)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			db, err := r.Resolve(ctx, tenant.TenantID)
			assert.NoError(t, err)
			handles[i] = db
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&opens))
	for _, h := range handles {
		assert.Same(t, handles[0], h)
	}
}

func TestResolveOpenFailureNotCached(t *testing.T) {
	ctx := context.Background()
	repo, tenant := setupRouterTenant(t, domain.TenantStatusActive)

	var opens int32
	fail := int32(1)
	open := func(octx context.Context, desc *domain.TenantDatabase) (*sql.DB, error) {
		atomic.AddInt32(&opens, 1)
		if atomic.LoadInt32(&fail) == 1 {
			return nil, errors.New("connection refused")
		}
		return fakeHandle(t), nil
	}
	r := newTestRouter(t, repo, open)

	_, err := r.Resolve(ctx, tenant.TenantID)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrConnectionFailed)
	assert.Equal(t, 0, r.HandleCount())

	// 失败不缓存：下一次调用干净重试并成功
	atomic.StoreInt32(&fail, 0)
	db, err := r.Resolve(ctx, tenant.TenantID)
	require.NoError(t, err)
	assert.NotNil(t, db)
	assert.Equal(t, int32(2), atomic.LoadInt32(&opens))
}

func TestResolveUnknownTenant(t *testing.T) {
	repo := repository.NewMemoryTenantsRepository()
	r := newTestRouter(t, repo, countingOpen(t, new(int32)))

	_, err := r.Resolve(context.Background(), "ghost")
	assert.ErrorIs(t, err, domain.ErrTenantNotFound)
}

func TestInvalidateEvictsHandle(t *testing.T) {
	ctx := context.Background()
	repo, tenant := setupRouterTenant(t, domain.TenantStatusActive)
	var opens int32
	r := newTestRouter(t, repo, countingOpen(t, &opens))

	_, err := r.Resolve(ctx, tenant.TenantID)
	require.NoError(t, err)
	require.Equal(t, 1, r.HandleCount())

	r.Invalidate(tenant.TenantID)
	assert.Equal(t, 0, r.HandleCount())

	// 驱逐后重新解析会再建连
	_, err = r.Resolve(ctx, tenant.TenantID)
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&opens))
}

func TestInvalidateAfterSuspendBlocksDomainRouting(t *testing.T) {
	ctx := context.Background()
	repo, tenant := setupRouterTenant(t, domain.TenantStatusActive)
	var opens int32
	r := newTestRouter(t, repo, countingOpen(t, &opens))

	_, err := r.Resolve(ctx, "acme")
	require.NoError(t, err)
	require.Equal(t, 1, r.HandleCount())

	// 停用后按tenantID驱逐，domain键的描述符缓存同样失效，
	// 租户不得通过域名重新建连
	require.NoError(t, repo.SetTenantStatus(ctx, tenant.TenantID, domain.TenantStatusSuspended))
	r.Invalidate(tenant.TenantID)

	_, err = r.Resolve(ctx, "acme")
	assert.ErrorIs(t, err, domain.ErrTenantNotFound)
	assert.Equal(t, int32(1), atomic.LoadInt32(&opens))
	assert.Equal(t, 0, r.HandleCount())
}

func TestShutdownAll(t *testing.T) {
	ctx := context.Background()
	repo, tenant := setupRouterTenant(t, domain.TenantStatusActive)
	r := newTestRouter(t, repo, countingOpen(t, new(int32)))

	_, err := r.Resolve(ctx, tenant.TenantID)
	require.NoError(t, err)

	r.ShutdownAll()
	assert.Equal(t, 0, r.HandleCount())

	_, err = r.Resolve(ctx, tenant.TenantID)
	assert.Error(t, err)
}

func TestAdoptEstablishesCacheEntry(t *testing.T) {
	ctx := context.Background()
	repo, tenant := setupRouterTenant(t, domain.TenantStatusProvisioning)
	var opens int32
	r := newTestRouter(t, repo, countingOpen(t, &opens))

	// provisioning中的租户常规Resolve不可路由
	_, err := r.Resolve(ctx, tenant.TenantID)
	require.ErrorIs(t, err, domain.ErrTenantNotFound)

	desc := &domain.TenantDatabase{TenantID: tenant.TenantID, Host: "db.internal", Port: 5432, DBName: "hd_t_acme"}
	db, err := r.Adopt(ctx, tenant, desc)
	require.NoError(t, err)
	require.NotNil(t, db)

	// 激活后Resolve复用Adopt建立的句柄，不再建连
	require.NoError(t, repo.SetTenantStatus(ctx, tenant.TenantID, domain.TenantStatusActive))
	resolved, err := r.Resolve(ctx, tenant.TenantID)
	require.NoError(t, err)
	assert.Same(t, db, resolved)
	assert.Equal(t, int32(1), atomic.LoadInt32(&opens))
}
