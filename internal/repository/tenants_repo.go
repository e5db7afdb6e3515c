package repository

import (
	"context"

	"hivedesk-core/internal/domain"
)

// TenantsRepository 租户Repository接口（主库）
// 使用强类型领域模型，不使用map[string]any
// 设计原则：从底层（数据库）向上设计，Repository层只负责数据访问和数据完整性验证
type TenantsRepository interface {
	// ========== 查询（单个）==========
	// GetTenant 根据tenant_id获取租户信息
	GetTenant(ctx context.Context, tenantID string) (*domain.Tenant, error)

	// GetTenantByDomain 根据domain获取租户信息（用于子域名路由）
	// 注意：domain有唯一索引，支持此查询
	GetTenantByDomain(ctx context.Context, domain string) (*domain.Tenant, error)

	// ========== 查询（列表）==========
	// ListTenants 查询租户列表（支持分页、过滤、搜索）
	ListTenants(ctx context.Context, filter TenantFilters, page, size int) ([]*domain.Tenant, int, error)

	// ========== 创建 ==========
	// CreateTenant 创建租户行（由Provisioner调用，status由调用方设置）
	// domain重复返回domain.ErrDomainAlreadyExists
	CreateTenant(ctx context.Context, tenant *domain.Tenant) (string, error)

	// ========== 更新 ==========
	// UpdateTenant 更新租户联系信息（tenant_name/registration_number/email/phone/metadata）
	// domain和库描述符创建后不可变，不在可更新字段内
	UpdateTenant(ctx context.Context, tenantID string, tenant *domain.Tenant) error

	// SetTenantStatus 更新租户状态（active/suspended/provisioning/provisioning_failed）
	SetTenantStatus(ctx context.Context, tenantID string, status string) error

	// ========== 隔离库描述符 ==========
	// GetTenantDatabase 读取租户库描述符（Credential Vault的底层数据源）
	GetTenantDatabase(ctx context.Context, tenantID string) (*domain.TenantDatabase, error)

	// SetTenantDatabase 写入租户库描述符，仅开通时调用一次
	// 已存在时返回domain.ErrDescriptorImmutable
	SetTenantDatabase(ctx context.Context, desc *domain.TenantDatabase) error
}

// TenantFilters 租户查询过滤器
type TenantFilters struct {
	Status string // 可选，按status过滤
	Search string // 可选，按tenant_name搜索（模糊匹配）
}
