package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"hivedesk-core/internal/domain"
)

// MemoryRBACRepository 权限+角色的内存实现（单元测试和无DB联调）
// 两个聚合共享一把锁：权限引用计数需要跨聚合一致视图
type MemoryRBACRepository struct {
	mu    sync.RWMutex
	perms map[string]domain.Permission // permissionID -> Permission
	roles map[string]domain.Role       // roleID -> Role
}

func NewMemoryRBACRepository() *MemoryRBACRepository {
	return &MemoryRBACRepository{
		perms: map[string]domain.Permission{},
		roles: map[string]domain.Role{},
	}
}

var (
	_ PermissionsRepository = (*MemoryRBACRepository)(nil)
	_ RolesRepository       = (*MemoryRBACRepository)(nil)
)

// ========== PermissionsRepository ==========

func (r *MemoryRBACRepository) GetPermission(_ context.Context, permissionID string) (*domain.Permission, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.perms[permissionID]
	if !ok {
		return nil, domain.ErrPermissionNotFound
	}
	return clonePermission(p), nil
}

func (r *MemoryRBACRepository) GetPermissionByName(_ context.Context, name string) (*domain.Permission, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, p := range r.perms {
		if p.Name == name {
			return clonePermission(p), nil
		}
	}
	return nil, domain.ErrPermissionNotFound
}

func (r *MemoryRBACRepository) ListPermissions(_ context.Context, page, size int) ([]*domain.Permission, int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	all := make([]domain.Permission, 0, len(r.perms))
	for _, p := range r.perms {
		all = append(all, p)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Name < all[j].Name })

	total := len(all)
	start, end := pageBounds(total, page, size, 100)
	out := make([]*domain.Permission, 0, end-start)
	for i := start; i < end; i++ {
		out = append(out, clonePermission(all[i]))
	}
	return out, total, nil
}

func (r *MemoryRBACRepository) CountRolesReferencing(_ context.Context, permissionID string) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.countRefsLocked(permissionID), nil
}

func (r *MemoryRBACRepository) CreatePermission(_ context.Context, permission *domain.Permission) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if permission.Name == "" {
		return "", fmt.Errorf("name is required")
	}
	for _, p := range r.perms {
		if p.Name == permission.Name {
			return "", domain.ErrConflict
		}
	}

	ops, ok := domain.NormalizeOperations(permission.Operations)
	if !ok {
		return "", domain.ErrInvalidOperation
	}

	p := *permission
	p.PermissionID = uuid.NewString()
	p.Operations = ops
	if p.Routes == nil {
		p.Routes = []string{}
	}
	r.perms[p.PermissionID] = p
	return p.PermissionID, nil
}

func (r *MemoryRBACRepository) UpdatePermissionMeta(_ context.Context, permissionID string, permission *domain.Permission) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.perms[permissionID]
	if !ok {
		return domain.ErrPermissionNotFound
	}
	if permission.Name != "" && permission.Name != existing.Name {
		for _, p := range r.perms {
			if p.Name == permission.Name {
				return domain.ErrConflict
			}
		}
		existing.Name = permission.Name
	}
	if permission.Description != "" {
		existing.Description = permission.Description
	}
	if permission.Routes != nil {
		existing.Routes = append([]string{}, permission.Routes...)
	}
	r.perms[permissionID] = existing
	return nil
}

func (r *MemoryRBACRepository) UpdateOperationsGuarded(_ context.Context, permissionID string, ops []string) (*domain.Permission, bool, error) {
	normalized, ok := domain.NormalizeOperations(ops)
	if !ok {
		return nil, false, domain.ErrInvalidOperation
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	stored, found := r.perms[permissionID]
	if !found {
		return nil, false, domain.ErrPermissionNotFound
	}

	// 写时复核：被引用时只接受严格超集
	if r.countRefsLocked(permissionID) > 0 && !domain.IsStrictSupersetOf(normalized, stored.Operations) {
		return clonePermission(stored), false, nil
	}

	stored.Operations = normalized
	r.perms[permissionID] = stored
	return clonePermission(stored), true, nil
}

func (r *MemoryRBACRepository) DeletePermission(_ context.Context, permissionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.perms[permissionID]; !ok {
		return domain.ErrPermissionNotFound
	}
	if r.countRefsLocked(permissionID) > 0 {
		return domain.ErrConflict
	}
	delete(r.perms, permissionID)
	return nil
}

// ========== RolesRepository ==========

func (r *MemoryRBACRepository) GetRole(_ context.Context, roleID string) (*domain.Role, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	role, ok := r.roles[roleID]
	if !ok {
		return nil, domain.ErrRoleNotFound
	}
	return cloneRole(role), nil
}

func (r *MemoryRBACRepository) GetRoleByCode(_ context.Context, roleCode string) (*domain.Role, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, role := range r.roles {
		if role.RoleCode == roleCode {
			return cloneRole(role), nil
		}
	}
	return nil, domain.ErrRoleNotFound
}

func (r *MemoryRBACRepository) GetRolesByCodes(_ context.Context, roleCodes []string) ([]*domain.Role, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	want := map[string]bool{}
	for _, c := range roleCodes {
		want[c] = true
	}
	out := []*domain.Role{}
	for _, role := range r.roles {
		if want[role.RoleCode] {
			out = append(out, cloneRole(role))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RoleCode < out[j].RoleCode })
	return out, nil
}

func (r *MemoryRBACRepository) ListRoles(_ context.Context, page, size int) ([]*domain.Role, int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	all := make([]domain.Role, 0, len(r.roles))
	for _, role := range r.roles {
		all = append(all, role)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].RoleCode < all[j].RoleCode })

	total := len(all)
	start, end := pageBounds(total, page, size, 100)
	out := make([]*domain.Role, 0, end-start)
	for i := start; i < end; i++ {
		out = append(out, cloneRole(all[i]))
	}
	return out, total, nil
}

func (r *MemoryRBACRepository) CreateRole(_ context.Context, role *domain.Role) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if role.RoleCode == "" {
		return "", fmt.Errorf("role_code is required")
	}
	for _, existing := range r.roles {
		if existing.RoleCode == role.RoleCode {
			return "", domain.ErrConflict
		}
	}
	if err := r.validateGrantRefsLocked(role.Grants); err != nil {
		return "", err
	}

	newRole := *role
	newRole.RoleID = uuid.NewString()
	newRole.Grants = cloneGrants(role.Grants)
	r.roles[newRole.RoleID] = newRole
	return newRole.RoleID, nil
}

func (r *MemoryRBACRepository) UpdateRole(_ context.Context, roleID string, role *domain.Role) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.roles[roleID]
	if !ok {
		return domain.ErrRoleNotFound
	}
	if role.Description != "" {
		existing.Description = role.Description
	}
	if role.Grants != nil {
		if err := r.validateGrantRefsLocked(role.Grants); err != nil {
			return err
		}
		existing.Grants = cloneGrants(role.Grants)
	}
	r.roles[roleID] = existing
	return nil
}

func (r *MemoryRBACRepository) DeleteRole(_ context.Context, roleID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	role, ok := r.roles[roleID]
	if !ok {
		return domain.ErrRoleNotFound
	}
	if role.IsSystem {
		return domain.ErrConflict
	}
	delete(r.roles, roleID)
	return nil
}

// ========== 内部辅助 ==========

func (r *MemoryRBACRepository) countRefsLocked(permissionID string) int {
	count := 0
	for _, role := range r.roles {
		for _, g := range role.Grants {
			if g.PermissionID == permissionID {
				count++
				break
			}
		}
	}
	return count
}

func (r *MemoryRBACRepository) validateGrantRefsLocked(grants []domain.Grant) error {
	for _, g := range grants {
		if _, ok := r.perms[g.PermissionID]; !ok {
			return fmt.Errorf("grant references unknown permission: %w (permission_id=%s)",
				domain.ErrPermissionNotFound, g.PermissionID)
		}
	}
	return nil
}

func clonePermission(p domain.Permission) *domain.Permission {
	out := p
	out.Operations = append([]string{}, p.Operations...)
	out.Routes = append([]string{}, p.Routes...)
	return &out
}

func cloneRole(role domain.Role) *domain.Role {
	out := role
	out.Grants = cloneGrants(role.Grants)
	return &out
}

func cloneGrants(grants []domain.Grant) []domain.Grant {
	out := make([]domain.Grant, len(grants))
	for i, g := range grants {
		out[i] = domain.Grant{
			PermissionID: g.PermissionID,
			Operations:   append([]string{}, g.Operations...),
		}
	}
	return out
}

func pageBounds(total, page, size, defSize int) (int, int) {
	if page <= 0 {
		page = 1
	}
	if size <= 0 {
		size = defSize
	}
	start := (page - 1) * size
	if start > total {
		start = total
	}
	end := start + size
	if end > total {
		end = total
	}
	return start, end
}
