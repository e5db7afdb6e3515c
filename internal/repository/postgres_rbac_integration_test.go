//go:build integration
// +build integration

package repository

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hivedesk-core/internal/domain"
)

func cleanupRBAC(t *testing.T, db *sql.DB, permName, roleCode string) {
	t.Helper()
	_, err := db.Exec(`DELETE FROM roles WHERE role_code = $1`, roleCode)
	require.NoError(t, err)
	_, err = db.Exec(
		`DELETE FROM permission_routes WHERE permission_id IN (SELECT permission_id FROM permissions WHERE name = $1)`,
		permName,
	)
	require.NoError(t, err)
	_, err = db.Exec(`DELETE FROM permissions WHERE name = $1`, permName)
	require.NoError(t, err)
}

func TestPostgresGuardedOperationsUpdate(t *testing.T) {
	ctx := context.Background()
	db := setupTestMasterDB(t)
	perms := NewPostgresPermissionsRepository(db)
	roles := NewPostgresRolesRepository(db)

	cleanupRBAC(t, db, "itest-orders", "ITestClerk")
	t.Cleanup(func() { cleanupRBAC(t, db, "itest-orders", "ITestClerk") })

	permID, err := perms.CreatePermission(ctx, &domain.Permission{
		Name:       "itest-orders",
		Operations: []string{domain.OpRead},
		Routes:     []string{"/admin/api/v1/orders"},
	})
	require.NoError(t, err)

	// 未引用：缩减或替换均可；返回视图含routes，与GetPermission一致
	stored, applied, err := perms.UpdateOperationsGuarded(ctx, permID, []string{domain.OpDelete})
	require.NoError(t, err)
	assert.True(t, applied)
	assert.Equal(t, []string{domain.OpDelete}, stored.Operations)
	assert.Equal(t, []string{"/admin/api/v1/orders"}, stored.Routes)

	roleID, err := roles.CreateRole(ctx, &domain.Role{
		RoleCode: "ITestClerk",
		Grants:   []domain.Grant{{PermissionID: permID, Operations: []string{domain.OpDelete}}},
	})
	require.NoError(t, err)

	// JSONB包含查询识别引用
	n, err := perms.CountRolesReferencing(ctx, permID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	// 被引用：非严格超集在写时复核中拒绝
	stored, applied, err = perms.UpdateOperationsGuarded(ctx, permID, []string{domain.OpDelete})
	require.NoError(t, err)
	assert.False(t, applied)
	assert.Equal(t, []string{domain.OpDelete}, stored.Operations)
	assert.Equal(t, []string{"/admin/api/v1/orders"}, stored.Routes)

	stored, applied, err = perms.UpdateOperationsGuarded(ctx, permID, []string{domain.OpRead, domain.OpDelete})
	require.NoError(t, err)
	assert.True(t, applied)
	assert.Equal(t, []string{domain.OpRead, domain.OpDelete}, stored.Operations)

	// 被引用的权限不可删除
	err = perms.DeletePermission(ctx, permID)
	assert.ErrorIs(t, err, domain.ErrConflict)

	require.NoError(t, roles.DeleteRole(ctx, roleID))
	require.NoError(t, perms.DeletePermission(ctx, permID))
}

func TestPostgresRoleGrantsRoundtrip(t *testing.T) {
	ctx := context.Background()
	db := setupTestMasterDB(t)
	perms := NewPostgresPermissionsRepository(db)
	roles := NewPostgresRolesRepository(db)

	cleanupRBAC(t, db, "itest-reports", "ITestAuditor")
	t.Cleanup(func() { cleanupRBAC(t, db, "itest-reports", "ITestAuditor") })

	permID, err := perms.CreatePermission(ctx, &domain.Permission{
		Name:       "itest-reports",
		Operations: []string{domain.OpRead, domain.OpCreate},
	})
	require.NoError(t, err)

	// grants引用不存在的权限被拒绝
	_, err = roles.CreateRole(ctx, &domain.Role{
		RoleCode: "ITestAuditor",
		Grants:   []domain.Grant{{PermissionID: "00000000-0000-0000-0000-000000000000", Operations: []string{domain.OpRead}}},
	})
	assert.Error(t, err)

	roleID, err := roles.CreateRole(ctx, &domain.Role{
		RoleCode:    "ITestAuditor",
		Description: "integration fixture",
		Grants:      []domain.Grant{{PermissionID: permID, Operations: []string{domain.OpRead}}},
	})
	require.NoError(t, err)

	got, err := roles.GetRoleByCode(ctx, "ITestAuditor")
	require.NoError(t, err)
	assert.Equal(t, roleID, got.RoleID)
	require.Len(t, got.Grants, 1)
	assert.Equal(t, permID, got.Grants[0].PermissionID)
	assert.Equal(t, []string{domain.OpRead}, got.Grants[0].Operations)

	listed, err := roles.GetRolesByCodes(ctx, []string{"ITestAuditor", "ITestGhost"})
	require.NoError(t, err)
	assert.Len(t, listed, 1)
}
