package service

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"testing"
	"time"

	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hivedesk-core/internal/domain"
	"hivedesk-core/internal/logger"
	"hivedesk-core/internal/repository"
	"hivedesk-core/internal/store"
	"hivedesk-core/internal/tenantdb"
)

// memoryEvents 捕获发布事件的EventPublisher
type memoryEvents struct {
	mu     sync.Mutex
	events []map[string]interface{}
}

func (m *memoryEvents) Publish(_ context.Context, stream string, values map[string]interface{}) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	values["_stream"] = stream
	m.events = append(m.events, values)
	return "1-0", nil
}

type provisionFixture struct {
	tenants   *repository.MemoryTenantsRepository
	rbac      *repository.MemoryRBACRepository
	staff     *repository.MemoryStaffRepository
	addresses *memoryAddresses
	events    *memoryEvents
	router    *tenantdb.Router
	prov      *TenantProvisioner

	physicalCalls int
}

// memoryAddresses 内存地址repo（开通种子和幂等重入断言用）
type memoryAddresses struct {
	mu    sync.Mutex
	items []*domain.TenantAddress
}

func (m *memoryAddresses) CreateAddress(_ context.Context, address *domain.TenantAddress) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *address
	cp.AddressID = "addr-1"
	m.items = append(m.items, &cp)
	return cp.AddressID, nil
}

func (m *memoryAddresses) ListAddresses(_ context.Context) ([]*domain.TenantAddress, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*domain.TenantAddress{}, m.items...), nil
}

func (m *memoryAddresses) CountAddresses(_ context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.items), nil
}

func setupProvision(t *testing.T) *provisionFixture {
	t.Helper()
	f := &provisionFixture{
		tenants:   repository.NewMemoryTenantsRepository(),
		rbac:      repository.NewMemoryRBACRepository(),
		staff:     repository.NewMemoryStaffRepository(),
		addresses: &memoryAddresses{},
		events:    &memoryEvents{},
	}

	open := func(ctx context.Context, desc *domain.TenantDatabase) (*sql.DB, error) {
		db, err := sql.Open("postgres", "host=invalid.test sslmode=disable")
		require.NoError(t, err)
		t.Cleanup(func() { _ = db.Close() })
		return db, nil
	}
	vault := repository.NewKVCredentialVault(f.tenants, store.NewMemoryKV(), logger.NewNop())
	f.router = tenantdb.NewRouter(vault, nil, open, 10*time.Millisecond, logger.NewNop())

	f.prov = NewTenantProvisioner(
		f.tenants, f.rbac, f.router, nil,
		TenantDBDefaults{Host: "db.internal", Port: 5432, SSLMode: "disable"},
		f.events, logger.NewNop(),
	)
	f.prov.CreatePhysical = func(context.Context, *domain.TenantDatabase) error {
		f.physicalCalls++
		return nil
	}
	f.prov.ApplySchema = func(context.Context, *sql.DB) error { return nil }
	f.prov.AddressesFor = func(*sql.DB) repository.AddressesRepository { return f.addresses }
	f.prov.StaffFor = func(*sql.DB) repository.StaffRepository { return f.staff }
	return f
}

func provisionRequest() *ProvisionRequest {
	return &ProvisionRequest{
		TenantName: "Acme Corp",
		Domain:     "Acme",
		Email:      "ops@acme.test",
		Address: AddressSeed{
			Line1: "1 Main St", City: "Denver", State: "CO", Country: "US", Zip: "80014",
			Hours: []HourSeed{{DayOfWeek: 1, OpensAt: "09:00", ClosesAt: "17:00"}},
		},
		Admin: AdminSeed{Account: "admin", Password: "ChangeMe123!", Name: "Admin"},
	}
}

func TestProvision(t *testing.T) {
	ctx := context.Background()
	f := setupProvision(t)

	tenant, err := f.prov.Provision(ctx, provisionRequest())
	require.NoError(t, err)
	assert.Equal(t, domain.TenantStatusActive, tenant.Status)
	// domain落库小写
	assert.Equal(t, "acme", tenant.Domain)

	// 描述符写入且可读
	desc, err := f.tenants.GetTenantDatabase(ctx, tenant.TenantID)
	require.NoError(t, err)
	assert.Equal(t, "db.internal", desc.Host)
	assert.NotEmpty(t, desc.DBPassword)

	// 种子数据
	n, _ := f.staff.CountStaff(ctx)
	assert.Equal(t, 1, n)
	admin, err := f.staff.GetStaffByAccount(ctx, "admin")
	require.NoError(t, err)
	assert.Equal(t, []string{domain.DefaultAdminRoleCode}, []string(admin.Roles))
	assert.True(t, domain.VerifyPassword(admin.PasswordHash, "admin", "ChangeMe123!"))

	addrs, _ := f.addresses.ListAddresses(ctx)
	require.Len(t, addrs, 1)
	require.Len(t, addrs[0].Hours, 1)

	// 默认管理员角色就位
	_, err = f.rbac.GetRoleByCode(ctx, domain.DefaultAdminRoleCode)
	require.NoError(t, err)

	// 开通事件
	require.Len(t, f.events.events, 1)
	assert.Equal(t, StreamTenantProvisioned, f.events.events[0]["_stream"])
	assert.Equal(t, tenant.TenantID, f.events.events[0]["tenant_id"])

	// 句柄已登记，常规Resolve直接复用
	assert.Equal(t, 1, f.router.HandleCount())
	_, err = f.router.Resolve(ctx, tenant.TenantID)
	require.NoError(t, err)

	require.NoError(t, f.prov.CheckProvisioned(ctx, tenant.TenantID))
}

func TestProvisionDuplicateDomain(t *testing.T) {
	ctx := context.Background()
	f := setupProvision(t)

	_, err := f.prov.Provision(ctx, provisionRequest())
	require.NoError(t, err)
	callsAfterFirst := f.physicalCalls

	// 大小写不同的同一domain同样拦截，且不触发任何物理操作
	req := provisionRequest()
	req.Domain = "ACME"
	_, err = f.prov.Provision(ctx, req)
	assert.ErrorIs(t, err, domain.ErrDomainAlreadyExists)
	assert.Equal(t, callsAfterFirst, f.physicalCalls)

	_, total, err := f.tenants.ListTenants(ctx, repository.TenantFilters{}, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
}

func TestProvisionFailureAndResume(t *testing.T) {
	ctx := context.Background()
	f := setupProvision(t)

	schemaErr := errors.New("schema apply failed")
	f.prov.ApplySchema = func(context.Context, *sql.DB) error { return schemaErr }

	_, err := f.prov.Provision(ctx, provisionRequest())
	require.ErrorIs(t, err, domain.ErrProvisioningIncomplete)

	// 主库行保留，状态provisioning_failed，描述符在位
	tenant, err := f.tenants.GetTenantByDomain(ctx, "acme")
	require.NoError(t, err)
	assert.Equal(t, domain.TenantStatusProvisioningFailed, tenant.Status)
	_, err = f.tenants.GetTenantDatabase(ctx, tenant.TenantID)
	require.NoError(t, err)

	// 失败状态不可路由
	_, err = f.router.Resolve(ctx, tenant.TenantID)
	assert.Error(t, err)

	// 完整性校验不通过
	err = f.prov.CheckProvisioned(ctx, tenant.TenantID)
	assert.ErrorIs(t, err, domain.ErrProvisioningIncomplete)

	// 修复后Resume补完后半程
	f.prov.ApplySchema = func(context.Context, *sql.DB) error { return nil }
	resumed, err := f.prov.Resume(ctx, tenant.TenantID, &ProvisionSeed{
		Address: &AddressSeed{Line1: "1 Main St", City: "Denver"},
		Admin:   &AdminSeed{Account: "admin", Password: "ChangeMe123!", Name: "Admin"},
	})
	require.NoError(t, err)
	assert.Equal(t, domain.TenantStatusActive, resumed.Status)
	require.NoError(t, f.prov.CheckProvisioned(ctx, tenant.TenantID))

	// Resume幂等：再跑一遍不重复种子
	_, err = f.prov.Resume(ctx, tenant.TenantID, nil)
	require.NoError(t, err)
	n, _ := f.staff.CountStaff(ctx)
	assert.Equal(t, 1, n)
	addrs, _ := f.addresses.ListAddresses(ctx)
	assert.Len(t, addrs, 1)
}

func TestResumeRejectsSuspended(t *testing.T) {
	ctx := context.Background()
	f := setupProvision(t)

	tenant, err := f.prov.Provision(ctx, provisionRequest())
	require.NoError(t, err)
	require.NoError(t, f.tenants.SetTenantStatus(ctx, tenant.TenantID, domain.TenantStatusSuspended))

	_, err = f.prov.Resume(ctx, tenant.TenantID, nil)
	assert.ErrorIs(t, err, domain.ErrInvalidOperation)
}

func TestProvisionValidation(t *testing.T) {
	ctx := context.Background()
	f := setupProvision(t)

	req := provisionRequest()
	req.Domain = ""
	_, err := f.prov.Provision(ctx, req)
	assert.ErrorIs(t, err, domain.ErrInvalidOperation)

	req = provisionRequest()
	req.Admin.Password = ""
	_, err = f.prov.Provision(ctx, req)
	assert.ErrorIs(t, err, domain.ErrInvalidOperation)
}
