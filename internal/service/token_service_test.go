package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hivedesk-core/internal/domain"
	"hivedesk-core/internal/logger"
	"hivedesk-core/internal/store"
)

func newTestTokenService(kv store.KV) (*tokenService, *time.Time) {
	now := time.Now()
	svc := &tokenService{
		secret:     []byte("test-secret"),
		accessTTL:  time.Hour,
		refreshTTL: 72 * time.Hour,
		kv:         kv,
		logger:     logger.NewNop(),
		now:        func() time.Time { return now },
	}
	return svc, &now
}

func testStaff() *domain.Staff {
	return &domain.Staff{
		StaffID:  "staff-1",
		TenantID: "tenant-1",
	}
}

func TestTokenIssueAndVerify(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestTokenService(store.NewMemoryKV())

	pair, err := svc.Issue(ctx, testStaff())
	require.NoError(t, err)
	require.NotEmpty(t, pair.AccessToken)
	require.NotEmpty(t, pair.RefreshToken)
	assert.Equal(t, int64(3600), pair.ExpiresIn)

	claims, err := svc.Verify(ctx, pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "staff-1", claims.StaffID)
	assert.Equal(t, "tenant-1", claims.TenantID)
	assert.Equal(t, pair.SessionID, claims.SessionID)
	assert.Equal(t, domain.TokenTypeAccess, claims.TokenType)

	claims, err = svc.Verify(ctx, pair.RefreshToken)
	require.NoError(t, err)
	assert.Equal(t, domain.TokenTypeRefresh, claims.TokenType)
}

func TestTokenExpiry(t *testing.T) {
	ctx := context.Background()
	kv := store.NewMemoryKV()
	svc, now := newTestTokenService(kv)
	kv.Now = func() time.Time { return *now }

	pair, err := svc.Issue(ctx, testStaff())
	require.NoError(t, err)

	// access过期、refresh仍有效的时间点
	*now = now.Add(2 * time.Hour)
	_, err = svc.Verify(ctx, pair.AccessToken)
	assert.ErrorIs(t, err, domain.ErrTokenExpired)

	access, err := svc.Refresh(ctx, pair.RefreshToken)
	require.NoError(t, err)
	claims, err := svc.Verify(ctx, access)
	require.NoError(t, err)
	// 刷新不更换会话
	assert.Equal(t, pair.SessionID, claims.SessionID)

	// refresh也过期后全部失效
	*now = now.Add(73 * time.Hour)
	_, err = svc.Refresh(ctx, pair.RefreshToken)
	assert.ErrorIs(t, err, domain.ErrTokenExpired)
}

func TestRefreshRejectsAccessToken(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestTokenService(store.NewMemoryKV())

	pair, err := svc.Issue(ctx, testStaff())
	require.NoError(t, err)

	_, err = svc.Refresh(ctx, pair.AccessToken)
	assert.ErrorIs(t, err, domain.ErrTokenInvalid)
}

func TestVerifyRejectsTamperedToken(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestTokenService(store.NewMemoryKV())

	pair, err := svc.Issue(ctx, testStaff())
	require.NoError(t, err)

	_, err = svc.Verify(ctx, pair.AccessToken+"x")
	assert.ErrorIs(t, err, domain.ErrTokenInvalid)

	other := &tokenService{
		secret: []byte("other-secret"), accessTTL: time.Hour, refreshTTL: time.Hour,
		kv: store.NewMemoryKV(), logger: logger.NewNop(), now: time.Now,
	}
	_, err = other.Verify(ctx, pair.AccessToken)
	assert.ErrorIs(t, err, domain.ErrTokenInvalid)
}

func TestRevoke(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestTokenService(store.NewMemoryKV())

	pair, err := svc.Issue(ctx, testStaff())
	require.NoError(t, err)

	require.NoError(t, svc.Revoke(ctx, pair.SessionID))

	// 吊销后同会话的access和refresh都拒绝
	_, err = svc.Verify(ctx, pair.AccessToken)
	assert.ErrorIs(t, err, domain.ErrTokenInvalid)
	_, err = svc.Refresh(ctx, pair.RefreshToken)
	assert.ErrorIs(t, err, domain.ErrTokenInvalid)

	// 重复吊销
	err = svc.Revoke(ctx, pair.SessionID)
	assert.ErrorIs(t, err, domain.ErrAlreadyLoggedOut)
}
