package repository

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hivedesk-core/internal/domain"
)

func seedPermission(t *testing.T, repo *MemoryRBACRepository, name string, ops []string) *domain.Permission {
	t.Helper()
	id, err := repo.CreatePermission(context.Background(), &domain.Permission{
		Name:       name,
		Operations: ops,
	})
	require.NoError(t, err)
	perm, err := repo.GetPermission(context.Background(), id)
	require.NoError(t, err)
	return perm
}

func TestUpdateOperationsGuardedUnreferenced(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRBACRepository()
	perm := seedPermission(t, repo, "orders", []string{domain.OpRead, domain.OpUpdate})

	// 未被任何角色引用：任意合法子集可替换，包括缩减
	stored, applied, err := repo.UpdateOperationsGuarded(ctx, perm.PermissionID, []string{domain.OpRead})
	require.NoError(t, err)
	assert.True(t, applied)
	assert.Equal(t, []string{domain.OpRead}, stored.Operations)
}

func TestUpdateOperationsGuardedReferenced(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRBACRepository()
	perm := seedPermission(t, repo, "orders", []string{domain.OpRead})

	_, err := repo.CreateRole(ctx, &domain.Role{
		RoleCode: "Clerk",
		Grants:   []domain.Grant{{PermissionID: perm.PermissionID, Operations: []string{domain.OpRead}}},
	})
	require.NoError(t, err)

	// 相等集合不是严格超集：不应用，返回存储状态
	stored, applied, err := repo.UpdateOperationsGuarded(ctx, perm.PermissionID, []string{domain.OpRead})
	require.NoError(t, err)
	assert.False(t, applied)
	assert.Equal(t, []string{domain.OpRead}, stored.Operations)

	// 缩减同样拒绝
	stored, applied, err = repo.UpdateOperationsGuarded(ctx, perm.PermissionID, nil)
	require.NoError(t, err)
	assert.False(t, applied)
	assert.Equal(t, []string{domain.OpRead}, stored.Operations)

	// 严格超集通过
	stored, applied, err = repo.UpdateOperationsGuarded(ctx, perm.PermissionID, []string{domain.OpRead, domain.OpUpdate})
	require.NoError(t, err)
	assert.True(t, applied)
	assert.Equal(t, []string{domain.OpRead, domain.OpUpdate}, stored.Operations)
}

func TestDeletePermissionReferenced(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRBACRepository()
	perm := seedPermission(t, repo, "orders", []string{domain.OpRead})

	roleID, err := repo.CreateRole(ctx, &domain.Role{
		RoleCode: "Clerk",
		Grants:   []domain.Grant{{PermissionID: perm.PermissionID, Operations: []string{domain.OpRead}}},
	})
	require.NoError(t, err)

	err = repo.DeletePermission(ctx, perm.PermissionID)
	assert.ErrorIs(t, err, domain.ErrConflict)

	// 引用解除后可删除
	require.NoError(t, repo.DeleteRole(ctx, roleID))
	require.NoError(t, repo.DeletePermission(ctx, perm.PermissionID))

	_, err = repo.GetPermission(ctx, perm.PermissionID)
	assert.ErrorIs(t, err, domain.ErrPermissionNotFound)
}

func TestCreateRoleValidation(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRBACRepository()

	// grants引用不存在的权限
	_, err := repo.CreateRole(ctx, &domain.Role{
		RoleCode: "Clerk",
		Grants:   []domain.Grant{{PermissionID: "nope", Operations: []string{domain.OpRead}}},
	})
	assert.Error(t, err)

	perm := seedPermission(t, repo, "orders", []string{domain.OpRead})
	_, err = repo.CreateRole(ctx, &domain.Role{
		RoleCode: "Clerk",
		Grants:   []domain.Grant{{PermissionID: perm.PermissionID, Operations: []string{domain.OpRead}}},
	})
	require.NoError(t, err)

	// role_code唯一
	_, err = repo.CreateRole(ctx, &domain.Role{RoleCode: "Clerk"})
	assert.ErrorIs(t, err, domain.ErrConflict)
}

func TestDeleteSystemRole(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRBACRepository()

	roleID, err := repo.CreateRole(ctx, &domain.Role{RoleCode: domain.DefaultAdminRoleCode, IsSystem: true})
	require.NoError(t, err)

	err = repo.DeleteRole(ctx, roleID)
	assert.ErrorIs(t, err, domain.ErrConflict)
}

func TestGetRolesByCodesSkipsUnknown(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRBACRepository()

	_, err := repo.CreateRole(ctx, &domain.Role{RoleCode: "Clerk"})
	require.NoError(t, err)

	roles, err := repo.GetRolesByCodes(ctx, []string{"Clerk", "Ghost"})
	require.NoError(t, err)
	require.Len(t, roles, 1)
	assert.Equal(t, "Clerk", roles[0].RoleCode)
}
