package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"hivedesk-core/internal/domain"
	"hivedesk-core/internal/repository"
	"hivedesk-core/internal/tenantdb"
)

// TenantService 租户管理服务接口（主库；开通见TenantProvisioner）
// 库描述符不经此服务暴露：凭据只在路由器内部流转
type TenantService interface {
	GetTenant(ctx context.Context, tenantID string) (*domain.Tenant, error)
	GetTenantByDomain(ctx context.Context, dom string) (*domain.Tenant, error)
	ListTenants(ctx context.Context, filter repository.TenantFilters, page, size int) ([]*domain.Tenant, int, error)
	// UpdateTenant 更新联系信息；domain不可变
	UpdateTenant(ctx context.Context, tenantID string, tenant *domain.Tenant) (*domain.Tenant, error)
	// SuspendTenant 停用租户并驱逐其连接句柄，后续请求不可路由
	SuspendTenant(ctx context.Context, tenantID string) error
	// ActivateTenant 恢复已停用租户
	ActivateTenant(ctx context.Context, tenantID string) error
}

type tenantService struct {
	tenants repository.TenantsRepository
	router  *tenantdb.Router
	logger  *zap.Logger
}

var _ TenantService = (*tenantService)(nil)

func NewTenantService(tenants repository.TenantsRepository, router *tenantdb.Router, logger *zap.Logger) TenantService {
	return &tenantService{tenants: tenants, router: router, logger: logger}
}

func (s *tenantService) GetTenant(ctx context.Context, tenantID string) (*domain.Tenant, error) {
	return s.tenants.GetTenant(ctx, tenantID)
}

func (s *tenantService) GetTenantByDomain(ctx context.Context, dom string) (*domain.Tenant, error) {
	return s.tenants.GetTenantByDomain(ctx, dom)
}

func (s *tenantService) ListTenants(ctx context.Context, filter repository.TenantFilters, page, size int) ([]*domain.Tenant, int, error) {
	return s.tenants.ListTenants(ctx, filter, page, size)
}

func (s *tenantService) UpdateTenant(ctx context.Context, tenantID string, tenant *domain.Tenant) (*domain.Tenant, error) {
	if err := s.tenants.UpdateTenant(ctx, tenantID, tenant); err != nil {
		return nil, err
	}
	return s.tenants.GetTenant(ctx, tenantID)
}

func (s *tenantService) SuspendTenant(ctx context.Context, tenantID string) error {
	tenant, err := s.tenants.GetTenant(ctx, tenantID)
	if err != nil {
		return err
	}
	if tenant.Status == domain.TenantStatusSuspended {
		return nil
	}
	if err := s.tenants.SetTenantStatus(ctx, tenantID, domain.TenantStatusSuspended); err != nil {
		return fmt.Errorf("failed to suspend tenant: %w", err)
	}
	// 驱逐缓存句柄和描述符缓存，切断后续路由
	s.router.Invalidate(tenantID)
	s.logger.Info("Tenant suspended", zap.String("tenant_id", tenantID), zap.String("domain", tenant.Domain))
	return nil
}

func (s *tenantService) ActivateTenant(ctx context.Context, tenantID string) error {
	tenant, err := s.tenants.GetTenant(ctx, tenantID)
	if err != nil {
		return err
	}
	switch tenant.Status {
	case domain.TenantStatusActive:
		return nil
	case domain.TenantStatusSuspended:
	default:
		return fmt.Errorf("%w: cannot activate tenant in status %s", domain.ErrInvalidOperation, tenant.Status)
	}
	if err := s.tenants.SetTenantStatus(ctx, tenantID, domain.TenantStatusActive); err != nil {
		return fmt.Errorf("failed to activate tenant: %w", err)
	}
	s.logger.Info("Tenant activated", zap.String("tenant_id", tenantID))
	return nil
}
