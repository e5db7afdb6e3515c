package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"hivedesk-core/internal/domain"
	"hivedesk-core/internal/repository"
)

// RoleService 角色管理服务接口（主库）
type RoleService interface {
	GetRole(ctx context.Context, roleID string) (*domain.Role, error)
	GetRoleByCode(ctx context.Context, roleCode string) (*domain.Role, error)
	ListRoles(ctx context.Context, page, size int) ([]*domain.Role, int, error)
	CreateRole(ctx context.Context, role *domain.Role) (*domain.Role, error)
	// UpdateRole 更新description/grants；role_code不可变
	UpdateRole(ctx context.Context, roleID string, role *domain.Role) (*domain.Role, error)
	DeleteRole(ctx context.Context, roleID string) error
}

type roleService struct {
	roles  repository.RolesRepository
	logger *zap.Logger
}

var _ RoleService = (*roleService)(nil)

func NewRoleService(roles repository.RolesRepository, logger *zap.Logger) RoleService {
	return &roleService{roles: roles, logger: logger}
}

func (s *roleService) GetRole(ctx context.Context, roleID string) (*domain.Role, error) {
	return s.roles.GetRole(ctx, roleID)
}

func (s *roleService) GetRoleByCode(ctx context.Context, roleCode string) (*domain.Role, error) {
	return s.roles.GetRoleByCode(ctx, roleCode)
}

func (s *roleService) ListRoles(ctx context.Context, page, size int) ([]*domain.Role, int, error) {
	return s.roles.ListRoles(ctx, page, size)
}

func (s *roleService) CreateRole(ctx context.Context, role *domain.Role) (*domain.Role, error) {
	if role.RoleCode == "" {
		return nil, fmt.Errorf("%w: role_code is required", domain.ErrInvalidOperation)
	}
	if err := validateGrantOps(role.Grants); err != nil {
		return nil, err
	}
	id, err := s.roles.CreateRole(ctx, role)
	if err != nil {
		return nil, err
	}
	s.logger.Info("Role created", zap.String("role_id", id), zap.String("role_code", role.RoleCode))
	return s.roles.GetRole(ctx, id)
}

func (s *roleService) UpdateRole(ctx context.Context, roleID string, role *domain.Role) (*domain.Role, error) {
	if err := validateGrantOps(role.Grants); err != nil {
		return nil, err
	}
	if err := s.roles.UpdateRole(ctx, roleID, role); err != nil {
		return nil, err
	}
	return s.roles.GetRole(ctx, roleID)
}

func (s *roleService) DeleteRole(ctx context.Context, roleID string) error {
	return s.roles.DeleteRole(ctx, roleID)
}

// validateGrantOps 授权项操作集合规范化（去重、统一顺序、拒绝非法操作）
func validateGrantOps(grants []domain.Grant) error {
	for i := range grants {
		ops, ok := domain.NormalizeOperations(grants[i].Operations)
		if !ok {
			return fmt.Errorf("%w: invalid operation in grant %s", domain.ErrInvalidOperation, grants[i].PermissionID)
		}
		grants[i].Operations = ops
	}
	return nil
}
