package httpapi

import (
	"context"
	"net"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"hivedesk-core/internal/domain"
	"hivedesk-core/internal/service"
	"hivedesk-core/internal/tenantdb"
)

type ctxKey int

const (
	ctxKeyTenantKey ctxKey = iota
	ctxKeyClaims
)

// TenantKeyFrom 取出请求解析到的租户键（缺省master）
func TenantKeyFrom(ctx context.Context) string {
	if v, ok := ctx.Value(ctxKeyTenantKey).(string); ok && v != "" {
		return v
	}
	return tenantdb.MasterKey
}

// ClaimsFrom 取出认证中间件写入的身份claims
func ClaimsFrom(ctx context.Context) *domain.Claims {
	v, _ := ctx.Value(ctxKeyClaims).(*domain.Claims)
	return v
}

// TenantKeyMiddleware 租户键解析
// 优先X-Tenant-ID头（UUID或domain），其次Host子域名；都没有落到master
func TenantKeyMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := strings.TrimSpace(r.Header.Get("X-Tenant-ID"))
		if key == "" {
			key = subdomainOf(r.Host)
		}
		if key == "" {
			key = tenantdb.MasterKey
		}
		ctx := context.WithValue(r.Context(), ctxKeyTenantKey, strings.ToLower(key))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// subdomainOf 从Host提取最左侧标签作为租户domain
// "acme.hivedesk.io:8080" -> "acme"；两段及以下（裸域/localhost/IP）返回空
func subdomainOf(host string) string {
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	if net.ParseIP(host) != nil {
		return ""
	}
	parts := strings.Split(host, ".")
	if len(parts) < 3 {
		return ""
	}
	sub := parts[0]
	if sub == "www" || sub == "api" {
		return ""
	}
	return sub
}

// AuthMiddleware Bearer令牌认证
type AuthMiddleware struct {
	tokens service.TokenService
	logger *zap.Logger
}

func NewAuthMiddleware(tokens service.TokenService, logger *zap.Logger) *AuthMiddleware {
	return &AuthMiddleware{tokens: tokens, logger: logger}
}

// Wrap 验签通过后把claims注入请求上下文；access令牌之外一律拒绝
func (m *AuthMiddleware) Wrap(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			writeJSON(w, http.StatusUnauthorized, Fail("missing bearer token"))
			return
		}
		claims, err := m.tokens.Verify(r.Context(), token)
		if err != nil {
			writeError(w, err)
			return
		}
		if claims.TokenType != domain.TokenTypeAccess {
			writeJSON(w, http.StatusUnauthorized, Fail("access token required"))
			return
		}
		ctx := context.WithValue(r.Context(), ctxKeyClaims, claims)
		next(w, r.WithContext(ctx))
	}
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if h == "" {
		return ""
	}
	parts := strings.SplitN(h, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
