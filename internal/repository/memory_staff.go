package repository

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"hivedesk-core/internal/domain"
)

// MemoryStaffRepository 员工内存实现（单元测试用）
type MemoryStaffRepository struct {
	mu    sync.RWMutex
	staff map[string]domain.Staff // staffID -> Staff
}

func NewMemoryStaffRepository() *MemoryStaffRepository {
	return &MemoryStaffRepository{staff: map[string]domain.Staff{}}
}

var _ StaffRepository = (*MemoryStaffRepository)(nil)

func (r *MemoryStaffRepository) GetStaff(_ context.Context, staffID string) (*domain.Staff, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.staff[staffID]
	if !ok {
		return nil, domain.ErrStaffNotFound
	}
	return cloneStaff(s), nil
}

func (r *MemoryStaffRepository) GetStaffByAccount(_ context.Context, account string) (*domain.Staff, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, s := range r.staff {
		if s.Account == account {
			return cloneStaff(s), nil
		}
	}
	return nil, domain.ErrStaffNotFound
}

func (r *MemoryStaffRepository) CountStaff(_ context.Context) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.staff), nil
}

func (r *MemoryStaffRepository) CreateStaff(_ context.Context, staff *domain.Staff) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if staff.Account == "" {
		return "", fmt.Errorf("account is required")
	}
	for _, s := range r.staff {
		if s.Account == staff.Account {
			return "", domain.ErrConflict
		}
	}

	s := *staff
	s.StaffID = uuid.NewString()
	if s.Status == "" {
		s.Status = "active"
	}
	r.staff[s.StaffID] = s
	return s.StaffID, nil
}

func (r *MemoryStaffRepository) UpdatePassword(_ context.Context, staffID string, newHash []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.staff[staffID]
	if !ok {
		return domain.ErrStaffNotFound
	}
	s.PasswordHash = append([]byte{}, newHash...)
	r.staff[staffID] = s
	return nil
}

func (r *MemoryStaffRepository) AssignRoles(_ context.Context, staffID string, roleCodes []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.staff[staffID]
	if !ok {
		return domain.ErrStaffNotFound
	}
	s.Roles = append([]string{}, roleCodes...)
	r.staff[staffID] = s
	return nil
}

func (r *MemoryStaffRepository) SetStaffStatus(_ context.Context, staffID string, status string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.staff[staffID]
	if !ok {
		return domain.ErrStaffNotFound
	}
	s.Status = status
	r.staff[staffID] = s
	return nil
}

func cloneStaff(s domain.Staff) *domain.Staff {
	out := s
	out.PasswordHash = append([]byte{}, s.PasswordHash...)
	out.Roles = append([]string{}, s.Roles...)
	return &out
}
