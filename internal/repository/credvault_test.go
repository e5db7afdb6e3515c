package repository

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hivedesk-core/internal/domain"
	"hivedesk-core/internal/logger"
	"hivedesk-core/internal/store"
)

// countingTenantsRepo 统计回源次数的包装（缓存命中率断言用）
type countingTenantsRepo struct {
	TenantsRepository
	lookups int
}

func (c *countingTenantsRepo) GetTenant(ctx context.Context, tenantID string) (*domain.Tenant, error) {
	c.lookups++
	return c.TenantsRepository.GetTenant(ctx, tenantID)
}

func (c *countingTenantsRepo) GetTenantByDomain(ctx context.Context, dom string) (*domain.Tenant, error) {
	c.lookups++
	return c.TenantsRepository.GetTenantByDomain(ctx, dom)
}

func seedVaultTenant(t *testing.T, repo TenantsRepository, status string) *domain.Tenant {
	t.Helper()
	tenant := &domain.Tenant{
		TenantName: "Acme",
		Domain:     "acme",
		Status:     status,
	}
	id, err := repo.CreateTenant(context.Background(), tenant)
	require.NoError(t, err)
	tenant.TenantID = id
	require.NoError(t, repo.SetTenantDatabase(context.Background(), &domain.TenantDatabase{
		TenantID:   id,
		Host:       "db.internal",
		Port:       5432,
		DBName:     "hd_t_acme",
		DBUser:     "hd_u_acme",
		DBPassword: "s3cret",
		SSLMode:    "disable",
	}))
	return tenant
}

func TestVaultLookupByDomainAndID(t *testing.T) {
	ctx := context.Background()
	source := &countingTenantsRepo{TenantsRepository: NewMemoryTenantsRepository()}
	tenant := seedVaultTenant(t, source, domain.TenantStatusActive)
	vault := NewKVCredentialVault(source, store.NewMemoryKV(), logger.NewNop())

	got, desc, err := vault.Lookup(ctx, "acme")
	require.NoError(t, err)
	assert.Equal(t, tenant.TenantID, got.TenantID)
	assert.Equal(t, "hd_t_acme", desc.DBName)

	// UUID键命中同一描述符缓存，不再回源
	before := source.lookups
	got, _, err = vault.Lookup(ctx, tenant.TenantID)
	require.NoError(t, err)
	assert.Equal(t, tenant.TenantID, got.TenantID)
	assert.Equal(t, before, source.lookups)
}

func TestVaultNonRoutableTenant(t *testing.T) {
	ctx := context.Background()
	source := NewMemoryTenantsRepository()
	tenant := seedVaultTenant(t, source, domain.TenantStatusSuspended)
	vault := NewKVCredentialVault(source, store.NewMemoryKV(), logger.NewNop())

	_, _, err := vault.Lookup(ctx, tenant.TenantID)
	assert.ErrorIs(t, err, domain.ErrTenantNotFound)

	// provisioning中的租户同样不可路由
	require.NoError(t, source.SetTenantStatus(ctx, tenant.TenantID, domain.TenantStatusProvisioning))
	vault.Invalidate(ctx, tenant.TenantID)
	_, _, err = vault.Lookup(ctx, tenant.TenantID)
	assert.ErrorIs(t, err, domain.ErrTenantNotFound)
}

func TestVaultInvalidate(t *testing.T) {
	ctx := context.Background()
	source := &countingTenantsRepo{TenantsRepository: NewMemoryTenantsRepository()}
	tenant := seedVaultTenant(t, source, domain.TenantStatusActive)
	vault := NewKVCredentialVault(source, store.NewMemoryKV(), logger.NewNop())

	_, _, err := vault.Lookup(ctx, tenant.TenantID)
	require.NoError(t, err)

	vault.Invalidate(ctx, tenant.TenantID)

	before := source.lookups
	_, _, err = vault.Lookup(ctx, tenant.TenantID)
	require.NoError(t, err)
	assert.Greater(t, source.lookups, before)
}

func TestVaultInvalidatePurgesDomainKey(t *testing.T) {
	ctx := context.Background()
	source := NewMemoryTenantsRepository()
	tenant := seedVaultTenant(t, source, domain.TenantStatusActive)
	vault := NewKVCredentialVault(source, store.NewMemoryKV(), logger.NewNop())

	// domain键预热缓存（UUID别名同时写入）
	_, _, err := vault.Lookup(ctx, "acme")
	require.NoError(t, err)

	// 停用后按tenantID失效，domain别名必须一并清除，
	// 否则TTL内按域名的请求仍命中active的旧条目
	require.NoError(t, source.SetTenantStatus(ctx, tenant.TenantID, domain.TenantStatusSuspended))
	vault.Invalidate(ctx, tenant.TenantID)

	_, _, err = vault.Lookup(ctx, "acme")
	assert.ErrorIs(t, err, domain.ErrTenantNotFound)
	_, _, err = vault.Lookup(ctx, tenant.TenantID)
	assert.ErrorIs(t, err, domain.ErrTenantNotFound)
}

func TestVaultUnknownKey(t *testing.T) {
	vault := NewKVCredentialVault(NewMemoryTenantsRepository(), store.NewMemoryKV(), logger.NewNop())
	_, _, err := vault.Lookup(context.Background(), "ghost")
	assert.ErrorIs(t, err, domain.ErrTenantNotFound)
}

func TestVaultWithoutCacheDegradesToSource(t *testing.T) {
	ctx := context.Background()
	source := NewMemoryTenantsRepository()
	tenant := seedVaultTenant(t, source, domain.TenantStatusActive)
	vault := NewKVCredentialVault(source, nil, logger.NewNop())

	got, desc, err := vault.Lookup(ctx, tenant.TenantID)
	require.NoError(t, err)
	assert.Equal(t, tenant.TenantID, got.TenantID)
	assert.NotEmpty(t, desc.DBPassword)
}
