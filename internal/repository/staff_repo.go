package repository

import (
	"context"

	"hivedesk-core/internal/domain"
)

// StaffRepository 员工Repository接口
// 针对单个库的句柄构造：主库实例管master realm账号，
// 租户库实例管该租户的员工（句柄来自ConnectionRouter，随请求上下文传入）
type StaffRepository interface {
	// 查询
	GetStaff(ctx context.Context, staffID string) (*domain.Staff, error)
	GetStaffByAccount(ctx context.Context, account string) (*domain.Staff, error)

	// CountStaff 员工总数（开通完整性校验：种子管理员写入后应≥1）
	CountStaff(ctx context.Context) (int, error)

	// 创建
	// account重复返回domain.ErrConflict
	CreateStaff(ctx context.Context, staff *domain.Staff) (string, error)

	// 更新
	UpdatePassword(ctx context.Context, staffID string, newHash []byte) error
	AssignRoles(ctx context.Context, staffID string, roleCodes []string) error
	SetStaffStatus(ctx context.Context, staffID string, status string) error
}
