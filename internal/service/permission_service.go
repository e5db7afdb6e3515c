package service

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"hivedesk-core/internal/domain"
	"hivedesk-core/internal/repository"
)

// EffectiveGrant 主体在单个权限上的有效操作集合
// Resource为权限name（登录响应中作为资源标识下发）
type EffectiveGrant struct {
	PermissionID string   `json:"id"`
	Resource     string   `json:"resource"`
	Actions      []string `json:"actions"`
}

// RoleGrants 单个角色的序列化视图（登录响应形态）
type RoleGrants struct {
	Role   string           `json:"role"`
	Grants []EffectiveGrant `json:"grants"`
}

// UpdatePermissionRequest 权限操作集合更新请求
type UpdatePermissionRequest struct {
	PermissionID string   `json:"permission_id"`
	Operations   []string `json:"operations"`
}

// BulkUpdateResult 批量更新的单项结果
type BulkUpdateResult struct {
	PermissionID string   `json:"permission_id"`
	Applied      bool     `json:"applied"`
	Operations   []string `json:"operations"` // 写后存储状态（未应用时为原状态）
	Error        string   `json:"error,omitempty"`
}

// PermissionService 权限解析与管理服务接口
type PermissionService interface {
	// EffectiveGrants 解析主体角色集合的有效授权（按权限ID并集合并）
	EffectiveGrants(ctx context.Context, roleCodes []string) ([]EffectiveGrant, error)
	// RoleView 单角色的登录响应视图
	RoleView(ctx context.Context, roleCode string) (*RoleGrants, error)

	// CRUD
	GetPermission(ctx context.Context, permissionID string) (*domain.Permission, error)
	ListPermissions(ctx context.Context, page, size int) ([]*domain.Permission, int, error)
	CreatePermission(ctx context.Context, permission *domain.Permission) (*domain.Permission, error)
	// UpdateOperations 单调安全的操作集合更新
	// 被角色引用的权限仅接受严格超集；复核不通过时静默不应用，返回存储状态
	UpdateOperations(ctx context.Context, req *UpdatePermissionRequest) (*domain.Permission, error)
	// BulkUpdateOperations 批量更新，逐项独立，单项失败不中断批次
	BulkUpdateOperations(ctx context.Context, reqs []UpdatePermissionRequest) ([]BulkUpdateResult, error)
	UpdatePermissionMeta(ctx context.Context, permissionID string, permission *domain.Permission) (*domain.Permission, error)
	DeletePermission(ctx context.Context, permissionID string) error
}

type permissionService struct {
	permissions repository.PermissionsRepository
	roles       repository.RolesRepository
	logger      *zap.Logger
}

var _ PermissionService = (*permissionService)(nil)

func NewPermissionService(permissions repository.PermissionsRepository, roles repository.RolesRepository, logger *zap.Logger) PermissionService {
	return &permissionService{permissions: permissions, roles: roles, logger: logger}
}

// EffectiveGrants 多角色授权并集
// 未知角色code和grants引用的已删除权限静默跳过，不阻断登录链路
func (s *permissionService) EffectiveGrants(ctx context.Context, roleCodes []string) ([]EffectiveGrant, error) {
	roles, err := s.roles.GetRolesByCodes(ctx, roleCodes)
	if err != nil {
		return nil, fmt.Errorf("failed to load roles: %w", err)
	}

	// 权限ID -> 操作并集
	union := map[string]map[string]struct{}{}
	for _, role := range roles {
		for _, grant := range role.Grants {
			set, ok := union[grant.PermissionID]
			if !ok {
				set = map[string]struct{}{}
				union[grant.PermissionID] = set
			}
			for _, op := range grant.Operations {
				set[op] = struct{}{}
			}
		}
	}

	grants := make([]EffectiveGrant, 0, len(union))
	for permissionID, set := range union {
		perm, err := s.permissions.GetPermission(ctx, permissionID)
		if err != nil {
			if domain.IsNotFound(err) {
				s.logger.Warn("Grant references missing permission", zap.String("permission_id", permissionID))
				continue
			}
			return nil, fmt.Errorf("failed to load permission: %w", err)
		}
		ops := make([]string, 0, len(set))
		for op := range set {
			ops = append(ops, op)
		}
		ops, _ = domain.NormalizeOperations(ops)
		grants = append(grants, EffectiveGrant{
			PermissionID: permissionID,
			Resource:     perm.Name,
			Actions:      ops,
		})
	}
	// 稳定输出顺序
	sort.Slice(grants, func(i, j int) bool { return grants[i].Resource < grants[j].Resource })
	return grants, nil
}

func (s *permissionService) RoleView(ctx context.Context, roleCode string) (*RoleGrants, error) {
	role, err := s.roles.GetRoleByCode(ctx, roleCode)
	if err != nil {
		return nil, err
	}
	grants, err := s.EffectiveGrants(ctx, []string{role.RoleCode})
	if err != nil {
		return nil, err
	}
	return &RoleGrants{Role: role.RoleCode, Grants: grants}, nil
}

func (s *permissionService) GetPermission(ctx context.Context, permissionID string) (*domain.Permission, error) {
	return s.permissions.GetPermission(ctx, permissionID)
}

func (s *permissionService) ListPermissions(ctx context.Context, page, size int) ([]*domain.Permission, int, error) {
	return s.permissions.ListPermissions(ctx, page, size)
}

func (s *permissionService) CreatePermission(ctx context.Context, permission *domain.Permission) (*domain.Permission, error) {
	if permission.Name == "" {
		return nil, fmt.Errorf("%w: permission name is required", domain.ErrInvalidOperation)
	}
	ops, ok := domain.NormalizeOperations(permission.Operations)
	if !ok {
		return nil, fmt.Errorf("%w: invalid operation in %v", domain.ErrInvalidOperation, permission.Operations)
	}
	permission.Operations = ops
	id, err := s.permissions.CreatePermission(ctx, permission)
	if err != nil {
		return nil, err
	}
	return s.permissions.GetPermission(ctx, id)
}

func (s *permissionService) UpdateOperations(ctx context.Context, req *UpdatePermissionRequest) (*domain.Permission, error) {
	ops, ok := domain.NormalizeOperations(req.Operations)
	if !ok {
		return nil, fmt.Errorf("%w: invalid operation in %v", domain.ErrInvalidOperation, req.Operations)
	}
	stored, applied, err := s.permissions.UpdateOperationsGuarded(ctx, req.PermissionID, ops)
	if err != nil {
		return nil, err
	}
	if !applied {
		// 静默策略：被引用权限的非严格超集更新不报错不应用，仅记录
		s.logger.Warn("Permission operations update skipped",
			zap.String("permission_id", req.PermissionID),
			zap.Strings("requested", ops),
			zap.Strings("stored", stored.Operations),
			zap.String("reason", "non_monotonic"),
		)
	}
	return stored, nil
}

func (s *permissionService) BulkUpdateOperations(ctx context.Context, reqs []UpdatePermissionRequest) ([]BulkUpdateResult, error) {
	results := make([]BulkUpdateResult, 0, len(reqs))
	var errs error
	for i := range reqs {
		req := reqs[i]
		result := BulkUpdateResult{PermissionID: req.PermissionID}

		ops, ok := domain.NormalizeOperations(req.Operations)
		if !ok {
			result.Error = "invalid operation"
			errs = multierr.Append(errs, fmt.Errorf("permission %s: %w", req.PermissionID, domain.ErrInvalidOperation))
			results = append(results, result)
			continue
		}
		stored, applied, err := s.permissions.UpdateOperationsGuarded(ctx, req.PermissionID, ops)
		if err != nil {
			result.Error = err.Error()
			errs = multierr.Append(errs, fmt.Errorf("permission %s: %w", req.PermissionID, err))
			results = append(results, result)
			continue
		}
		result.Applied = applied
		result.Operations = stored.Operations
		if !applied {
			s.logger.Warn("Permission operations update skipped",
				zap.String("permission_id", req.PermissionID),
				zap.String("reason", "non_monotonic"),
			)
		}
		results = append(results, result)
	}
	// 批次整体不失败：错误聚合后仅记录，逐项结果带回调用方
	if errs != nil {
		s.logger.Warn("Bulk permission update completed with errors", zap.Error(errs))
	}
	return results, nil
}

func (s *permissionService) UpdatePermissionMeta(ctx context.Context, permissionID string, permission *domain.Permission) (*domain.Permission, error) {
	if err := s.permissions.UpdatePermissionMeta(ctx, permissionID, permission); err != nil {
		return nil, err
	}
	return s.permissions.GetPermission(ctx, permissionID)
}

func (s *permissionService) DeletePermission(ctx context.Context, permissionID string) error {
	return s.permissions.DeletePermission(ctx, permissionID)
}
