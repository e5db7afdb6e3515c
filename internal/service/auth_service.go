package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"hivedesk-core/internal/domain"
	"hivedesk-core/internal/repository"
	"hivedesk-core/internal/tenantdb"
)

// LoginRequest 登录请求
type LoginRequest struct {
	Account  string `json:"account"`
	Password string `json:"password"`
}

// LoginResponse 登录响应：令牌对 + 主体信息 + 有效授权快照
type LoginResponse struct {
	AccessToken  string           `json:"access_token"`
	RefreshToken string           `json:"refresh_token"`
	ExpiresIn    int64            `json:"expires_in"`
	StaffID      string           `json:"staff_id"`
	TenantID     string           `json:"tenant_id,omitempty"`
	Account      string           `json:"account"`
	Name         string           `json:"name"`
	Roles        []string         `json:"roles"`
	Grants       []EffectiveGrant `json:"grants"`
}

// ChangePasswordRequest 口令变更请求
type ChangePasswordRequest struct {
	StaffID     string `json:"-"`
	SessionID   string `json:"-"`
	OldPassword string `json:"old_password"`
	NewPassword string `json:"new_password"`
}

// StaffRepoFactory 按请求作用域的库句柄构造员工Repository
// 生产环境绑定Postgres实现；测试注入内存实现
type StaffRepoFactory func(db *sql.DB) repository.StaffRepository

// AuthService 认证服务接口
// 员工数据位于请求作用域指向的库（master或某个租户库），
// 角色与权限的解析始终走主库
type AuthService interface {
	Login(ctx context.Context, scope *tenantdb.Scope, req *LoginRequest) (*LoginResponse, error)
	ChangePassword(ctx context.Context, scope *tenantdb.Scope, req *ChangePasswordRequest) error
	Logout(ctx context.Context, sessionID string) error
}

type authService struct {
	staffFor    StaffRepoFactory
	permissions PermissionService
	tokens      TokenService
	logger      *zap.Logger
}

var _ AuthService = (*authService)(nil)

func NewAuthService(staffFor StaffRepoFactory, permissions PermissionService, tokens TokenService, logger *zap.Logger) AuthService {
	if staffFor == nil {
		staffFor = func(db *sql.DB) repository.StaffRepository {
			return repository.NewPostgresStaffRepository(db)
		}
	}
	return &authService{
		staffFor:    staffFor,
		permissions: permissions,
		tokens:      tokens,
		logger:      logger,
	}
}

// Login 账号口令登录
// 账号不存在与口令错误返回同一错误，不泄露账号存在性
func (s *authService) Login(ctx context.Context, scope *tenantdb.Scope, req *LoginRequest) (*LoginResponse, error) {
	if req.Account == "" || req.Password == "" {
		return nil, domain.ErrInvalidCredentials
	}

	staff, err := s.staffFor(scope.DB()).GetStaffByAccount(ctx, req.Account)
	if err != nil {
		if errors.Is(err, domain.ErrStaffNotFound) {
			return nil, domain.ErrInvalidCredentials
		}
		return nil, fmt.Errorf("failed to load staff: %w", err)
	}
	if !domain.VerifyPassword(staff.PasswordHash, staff.Account, req.Password) {
		return nil, domain.ErrInvalidCredentials
	}
	if staff.Status != domain.StaffStatusActive {
		return nil, fmt.Errorf("%w: account disabled", domain.ErrInvalidCredentials)
	}

	pair, err := s.tokens.Issue(ctx, staff)
	if err != nil {
		return nil, fmt.Errorf("failed to issue tokens: %w", err)
	}

	grants, err := s.permissions.EffectiveGrants(ctx, staff.Roles)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve grants: %w", err)
	}

	s.logger.Info("Staff logged in",
		zap.String("staff_id", staff.StaffID),
		zap.String("tenant_id", staff.TenantID),
		zap.String("session_id", pair.SessionID),
	)
	return &LoginResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		ExpiresIn:    pair.ExpiresIn,
		StaffID:      staff.StaffID,
		TenantID:     staff.TenantID,
		Account:      staff.Account,
		Name:         staff.Name,
		Roles:        staff.Roles,
		Grants:       grants,
	}, nil
}

// ChangePassword 口令变更
// 旧口令复核为常量时间比较；复核失败哈希不变，返回domain.ErrInvalidCredentials。
// 成功后吊销当前会话，强制重新登录
func (s *authService) ChangePassword(ctx context.Context, scope *tenantdb.Scope, req *ChangePasswordRequest) error {
	if req.NewPassword == "" {
		return fmt.Errorf("%w: new password is required", domain.ErrInvalidOperation)
	}

	repo := s.staffFor(scope.DB())
	staff, err := repo.GetStaff(ctx, req.StaffID)
	if err != nil {
		return err
	}
	if !domain.VerifyPassword(staff.PasswordHash, staff.Account, req.OldPassword) {
		return domain.ErrInvalidCredentials
	}

	newHash := domain.HashPassword(staff.Account, req.NewPassword)
	if err := repo.UpdatePassword(ctx, staff.StaffID, newHash); err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}

	if req.SessionID != "" {
		if err := s.tokens.Revoke(ctx, req.SessionID); err != nil && !errors.Is(err, domain.ErrAlreadyLoggedOut) {
			s.logger.Warn("Failed to revoke session after password change",
				zap.String("staff_id", staff.StaffID),
				zap.Error(err),
			)
		}
	}
	s.logger.Info("Password changed", zap.String("staff_id", staff.StaffID))
	return nil
}

func (s *authService) Logout(ctx context.Context, sessionID string) error {
	return s.tokens.Revoke(ctx, sessionID)
}
