package repository

import (
	"context"

	"hivedesk-core/internal/domain"
)

// RolesRepository 角色Repository接口（主库）
// grants以JSONB数组内嵌存储，写入前校验引用的权限存在（值匹配，非外键）
type RolesRepository interface {
	// 查询
	GetRole(ctx context.Context, roleID string) (*domain.Role, error)
	GetRoleByCode(ctx context.Context, roleCode string) (*domain.Role, error)
	// GetRolesByCodes 批量查询（effectiveGrants解析用）；未知code静默跳过
	GetRolesByCodes(ctx context.Context, roleCodes []string) ([]*domain.Role, error)
	ListRoles(ctx context.Context, page, size int) ([]*domain.Role, int, error)

	// 创建
	// role_code重复返回domain.ErrConflict；grants引用不存在的权限时报错
	CreateRole(ctx context.Context, role *domain.Role) (string, error)

	// 更新（description/grants；role_code不可变）
	UpdateRole(ctx context.Context, roleID string, role *domain.Role) error

	// 删除
	// 系统预定义角色返回domain.ErrConflict
	DeleteRole(ctx context.Context, roleID string) error
}
