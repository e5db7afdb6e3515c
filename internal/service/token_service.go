package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"hivedesk-core/internal/domain"
	"hivedesk-core/internal/store"
)

// 吊销名单key前缀（session:revoked:<session_id>）
const revokedKeyPrefix = "session:revoked:"

// TokenPair 一次登录会话签发的令牌对
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	SessionID    string `json:"session_id"`
	ExpiresIn    int64  `json:"expires_in"` // access令牌有效期（秒）
}

// TokenService 会话令牌服务接口
// HS256签发/验签；吊销通过KV名单实现（无状态令牌 + 有状态吊销名单）
type TokenService interface {
	// Issue 为主体签发access/refresh令牌对，开启新会话
	Issue(ctx context.Context, staff *domain.Staff) (*TokenPair, error)
	// Verify 验签并返回claims
	// 过期返回domain.ErrTokenExpired；会话已吊销或其余任何问题返回domain.ErrTokenInvalid
	Verify(ctx context.Context, tokenString string) (*domain.Claims, error)
	// Refresh 用refresh令牌换发新access令牌（会话ID不变）
	Refresh(ctx context.Context, refreshToken string) (string, error)
	// Revoke 吊销会话；重复吊销返回domain.ErrAlreadyLoggedOut
	Revoke(ctx context.Context, sessionID string) error
}

type tokenService struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	kv         store.KV
	logger     *zap.Logger

	// now 可注入时钟（过期行为测试用）
	now func() time.Time
}

var _ TokenService = (*tokenService)(nil)

func NewTokenService(secret string, accessTTL, refreshTTL time.Duration, kv store.KV, logger *zap.Logger) TokenService {
	return &tokenService{
		secret:     []byte(secret),
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		kv:         kv,
		logger:     logger,
		now:        time.Now,
	}
}

// tokenClaims JWT载荷（标准claims + 平台身份字段）
type tokenClaims struct {
	StaffID   string `json:"staff_id"`
	TenantID  string `json:"tenant_id"`
	SessionID string `json:"session_id"`
	TokenType string `json:"token_type"`
	jwt.RegisteredClaims
}

func (s *tokenService) Issue(ctx context.Context, staff *domain.Staff) (*TokenPair, error) {
	sessionID := uuid.New().String()

	access, err := s.sign(staff, sessionID, domain.TokenTypeAccess, s.accessTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to sign access token: %w", err)
	}
	refresh, err := s.sign(staff, sessionID, domain.TokenTypeRefresh, s.refreshTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to sign refresh token: %w", err)
	}

	return &TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		SessionID:    sessionID,
		ExpiresIn:    int64(s.accessTTL.Seconds()),
	}, nil
}

func (s *tokenService) sign(staff *domain.Staff, sessionID, tokenType string, ttl time.Duration) (string, error) {
	now := s.now()
	claims := tokenClaims{
		StaffID:   staff.StaffID,
		TenantID:  staff.TenantID,
		SessionID: sessionID,
		TokenType: tokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   staff.StaffID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        sessionID,
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

func (s *tokenService) Verify(ctx context.Context, tokenString string) (*domain.Claims, error) {
	claims := &tokenClaims{}
	_, err := jwt.ParseWithClaims(tokenString, claims,
		func(t *jwt.Token) (interface{}, error) { return s.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, domain.ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrTokenInvalid, err)
	}
	if claims.StaffID == "" || claims.SessionID == "" {
		return nil, domain.ErrTokenInvalid
	}

	// 吊销名单查验（阻塞I/O，受ctx约束）
	revoked, err := s.kv.Exists(ctx, revokedKeyPrefix+claims.SessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to check revocation: %w", err)
	}
	if revoked {
		return nil, fmt.Errorf("%w: session revoked", domain.ErrTokenInvalid)
	}

	return &domain.Claims{
		StaffID:   claims.StaffID,
		TenantID:  claims.TenantID,
		SessionID: claims.SessionID,
		TokenType: claims.TokenType,
	}, nil
}

func (s *tokenService) Refresh(ctx context.Context, refreshToken string) (string, error) {
	claims, err := s.Verify(ctx, refreshToken)
	if err != nil {
		return "", err
	}
	if claims.TokenType != domain.TokenTypeRefresh {
		return "", fmt.Errorf("%w: not a refresh token", domain.ErrTokenInvalid)
	}

	staff := &domain.Staff{StaffID: claims.StaffID, TenantID: claims.TenantID}
	access, err := s.sign(staff, claims.SessionID, domain.TokenTypeAccess, s.accessTTL)
	if err != nil {
		return "", fmt.Errorf("failed to sign access token: %w", err)
	}
	return access, nil
}

func (s *tokenService) Revoke(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return domain.ErrTokenInvalid
	}
	// 名单条目存活到会话内最长令牌（refresh）自然过期为止
	ok, err := s.kv.SetNX(ctx, revokedKeyPrefix+sessionID, "1", s.refreshTTL)
	if err != nil {
		return fmt.Errorf("failed to revoke session: %w", err)
	}
	if !ok {
		return domain.ErrAlreadyLoggedOut
	}
	s.logger.Info("Session revoked", zap.String("session_id", sessionID))
	return nil
}
