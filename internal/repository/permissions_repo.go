package repository

import (
	"context"

	"hivedesk-core/internal/domain"
)

// PermissionsRepository 权限Repository接口（主库）
// Repository层负责数据访问和数据完整性验证；
// 单调安全规则的写时复核放在仓储事务内（见UpdateOperationsGuarded）
type PermissionsRepository interface {
	// 查询
	GetPermission(ctx context.Context, permissionID string) (*domain.Permission, error)
	GetPermissionByName(ctx context.Context, name string) (*domain.Permission, error)
	ListPermissions(ctx context.Context, page, size int) ([]*domain.Permission, int, error)

	// CountRolesReferencing 统计grants中引用此权限的角色数
	// 安全更新规则的"被引用"判定依据
	CountRolesReferencing(ctx context.Context, permissionID string) (int, error)

	// 创建
	// name重复返回domain.ErrConflict
	CreatePermission(ctx context.Context, permission *domain.Permission) (string, error)

	// UpdatePermissionMeta 更新name/description/routes（不触碰operations）
	UpdatePermissionMeta(ctx context.Context, permissionID string, permission *domain.Permission) error

	// UpdateOperationsGuarded 带写时复核的操作集合更新
	// 事务内锁行重读最新状态，被角色引用时要求严格超集：
	//   - 复核通过：写入新集合，返回(更新后的权限, true)
	//   - 复核失败：不写入，返回(当前存储的权限, false)
	// 并发更新竞态下以写入时刻的存储状态为准，而非请求开始时读到的状态
	UpdateOperationsGuarded(ctx context.Context, permissionID string, ops []string) (*domain.Permission, bool, error)

	// 删除
	// 仍被角色引用时返回domain.ErrConflict
	DeletePermission(ctx context.Context, permissionID string) error
}
