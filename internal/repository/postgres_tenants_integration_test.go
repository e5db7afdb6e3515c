//go:build integration
// +build integration

package repository

import (
	"context"
	"database/sql"
	"testing"

	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hivedesk-core/internal/config"
	"hivedesk-core/internal/domain"
	"hivedesk-core/internal/logger"
	"hivedesk-core/internal/migrate"
)

// setupTestMasterDB 设置测试主库（不可用时跳过）
func setupTestMasterDB(t *testing.T) *sql.DB {
	cfg := config.Load()
	db, err := sql.Open("postgres", cfg.Master.GetDSN())
	if err != nil {
		t.Skipf("Skipping integration test: cannot open master database: %v", err)
	}
	if err := db.Ping(); err != nil {
		t.Skipf("Skipping integration test: master database not available: %v", err)
	}
	if err := migrate.Apply(context.Background(), db, migrate.Master, logger.NewNop()); err != nil {
		t.Fatalf("Failed to apply master migrations: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func cleanupTestTenant(t *testing.T, db *sql.DB, domainName string) {
	t.Helper()
	_, err := db.Exec(
		`DELETE FROM tenant_databases WHERE tenant_id IN (SELECT tenant_id FROM tenants WHERE domain = $1)`,
		domainName,
	)
	require.NoError(t, err)
	_, err = db.Exec(`DELETE FROM tenants WHERE domain = $1`, domainName)
	require.NoError(t, err)
}

func TestPostgresTenantsCRUD(t *testing.T) {
	ctx := context.Background()
	db := setupTestMasterDB(t)
	repo := NewPostgresTenantsRepository(db)

	cleanupTestTenant(t, db, "itest-acme.local")
	t.Cleanup(func() { cleanupTestTenant(t, db, "itest-acme.local") })

	id, err := repo.CreateTenant(ctx, &domain.Tenant{
		TenantName: "ITest Acme",
		Domain:     "itest-acme.local",
		Email:      "ops@acme.test",
		Status:     domain.TenantStatusProvisioning,
	})
	require.NoError(t, err)

	// domain唯一索引
	_, err = repo.CreateTenant(ctx, &domain.Tenant{
		TenantName: "ITest Acme 2",
		Domain:     "itest-acme.local",
		Status:     domain.TenantStatusProvisioning,
	})
	assert.ErrorIs(t, err, domain.ErrDomainAlreadyExists)

	got, err := repo.GetTenantByDomain(ctx, "itest-acme.local")
	require.NoError(t, err)
	assert.Equal(t, id, got.TenantID)
	assert.Equal(t, domain.TenantStatusProvisioning, got.Status)

	require.NoError(t, repo.SetTenantStatus(ctx, id, domain.TenantStatusActive))
	got, err = repo.GetTenant(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.TenantStatusActive, got.Status)

	// 联系信息可更新，domain不可变
	require.NoError(t, repo.UpdateTenant(ctx, id, &domain.Tenant{
		TenantName: "ITest Acme Renamed",
		Email:      "new@acme.test",
	}))
	got, err = repo.GetTenant(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "ITest Acme Renamed", got.TenantName)
	assert.Equal(t, "itest-acme.local", got.Domain)
}

func TestPostgresTenantDatabaseImmutable(t *testing.T) {
	ctx := context.Background()
	db := setupTestMasterDB(t)
	repo := NewPostgresTenantsRepository(db)

	cleanupTestTenant(t, db, "itest-desc.local")
	t.Cleanup(func() { cleanupTestTenant(t, db, "itest-desc.local") })

	id, err := repo.CreateTenant(ctx, &domain.Tenant{
		TenantName: "ITest Desc",
		Domain:     "itest-desc.local",
		Status:     domain.TenantStatusProvisioning,
	})
	require.NoError(t, err)

	desc := &domain.TenantDatabase{
		TenantID: id, Host: "db.internal", Port: 5432,
		DBName: "hd_t_itest", DBUser: "hd_u_itest", DBPassword: "pw", SSLMode: "disable",
	}
	require.NoError(t, repo.SetTenantDatabase(ctx, desc))

	// 描述符开通后只写一次
	desc.DBPassword = "other"
	err = repo.SetTenantDatabase(ctx, desc)
	assert.ErrorIs(t, err, domain.ErrDescriptorImmutable)

	got, err := repo.GetTenantDatabase(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "pw", got.DBPassword)
}
