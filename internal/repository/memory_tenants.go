package repository

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"hivedesk-core/internal/domain"
)

// MemoryTenantsRepository 内存实现（单元测试和无DB联调）
// NOTE: 平台级数据（非per-tenant）
type MemoryTenantsRepository struct {
	mu      sync.RWMutex
	tenants map[string]domain.Tenant        // tenantID -> Tenant
	byDom   map[string]string               // domain -> tenantID
	descs   map[string]domain.TenantDatabase // tenantID -> descriptor
}

func NewMemoryTenantsRepository() *MemoryTenantsRepository {
	return &MemoryTenantsRepository{
		tenants: map[string]domain.Tenant{},
		byDom:   map[string]string{},
		descs:   map[string]domain.TenantDatabase{},
	}
}

var _ TenantsRepository = (*MemoryTenantsRepository)(nil)

func (r *MemoryTenantsRepository) GetTenant(_ context.Context, tenantID string) (*domain.Tenant, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tenants[tenantID]
	if !ok {
		return nil, domain.ErrTenantNotFound
	}
	return &t, nil
}

func (r *MemoryTenantsRepository) GetTenantByDomain(_ context.Context, domainName string) (*domain.Tenant, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byDom[domainName]
	if !ok {
		return nil, domain.ErrTenantNotFound
	}
	t := r.tenants[id]
	return &t, nil
}

func (r *MemoryTenantsRepository) ListTenants(_ context.Context, filter TenantFilters, page, size int) ([]*domain.Tenant, int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	all := make([]domain.Tenant, 0, len(r.tenants))
	for _, t := range r.tenants {
		if filter.Status != "" && t.Status != filter.Status {
			continue
		}
		if filter.Search != "" && !strings.Contains(strings.ToLower(t.TenantName), strings.ToLower(filter.Search)) {
			continue
		}
		all = append(all, t)
	}
	sort.Slice(all, func(i, j int) bool {
		return all[i].TenantName < all[j].TenantName
	})

	total := len(all)
	if page <= 0 {
		page = 1
	}
	if size <= 0 {
		size = 50
	}
	start := (page - 1) * size
	if start > total {
		start = total
	}
	end := start + size
	if end > total {
		end = total
	}

	out := make([]*domain.Tenant, 0, end-start)
	for i := start; i < end; i++ {
		t := all[i]
		out = append(out, &t)
	}
	return out, total, nil
}

func (r *MemoryTenantsRepository) CreateTenant(_ context.Context, tenant *domain.Tenant) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byDom[tenant.Domain]; ok {
		return "", domain.ErrDomainAlreadyExists
	}

	id := tenant.TenantID
	if id == "" {
		id = uuid.NewString()
	}
	t := *tenant
	t.TenantID = id
	if t.Status == "" {
		t.Status = domain.TenantStatusActive
	}
	r.tenants[id] = t
	r.byDom[t.Domain] = id
	return id, nil
}

func (r *MemoryTenantsRepository) UpdateTenant(_ context.Context, tenantID string, tenant *domain.Tenant) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.tenants[tenantID]
	if !ok {
		return domain.ErrTenantNotFound
	}
	if tenant.TenantName != "" {
		existing.TenantName = tenant.TenantName
	}
	if tenant.RegistrationNumber != "" {
		existing.RegistrationNumber = tenant.RegistrationNumber
	}
	if tenant.Email != "" {
		existing.Email = tenant.Email
	}
	if tenant.Phone != "" {
		existing.Phone = tenant.Phone
	}
	if len(tenant.Metadata) > 0 {
		existing.Metadata = tenant.Metadata
	}
	r.tenants[tenantID] = existing
	return nil
}

func (r *MemoryTenantsRepository) SetTenantStatus(_ context.Context, tenantID string, status string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.tenants[tenantID]
	if !ok {
		return domain.ErrTenantNotFound
	}
	existing.Status = status
	r.tenants[tenantID] = existing
	return nil
}

func (r *MemoryTenantsRepository) GetTenantDatabase(_ context.Context, tenantID string) (*domain.TenantDatabase, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.descs[tenantID]
	if !ok {
		return nil, domain.ErrTenantNotFound
	}
	return &d, nil
}

func (r *MemoryTenantsRepository) SetTenantDatabase(_ context.Context, desc *domain.TenantDatabase) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.descs[desc.TenantID]; ok {
		return domain.ErrDescriptorImmutable
	}
	r.descs[desc.TenantID] = *desc
	return nil
}
