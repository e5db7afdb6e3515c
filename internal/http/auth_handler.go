package httpapi

import (
	"net/http"

	"go.uber.org/zap"

	"hivedesk-core/internal/service"
	"hivedesk-core/internal/tenantdb"
)

// AuthHandler 认证授权 Handler
// 登录/口令变更作用于请求租户键指向的库；master realm账号经MasterKey登录
type AuthHandler struct {
	auth   service.AuthService
	tokens service.TokenService
	router *tenantdb.Router
	authMW *AuthMiddleware
	logger *zap.Logger
}

// NewAuthHandler 创建认证授权 Handler
func NewAuthHandler(auth service.AuthService, tokens service.TokenService, router *tenantdb.Router, authMW *AuthMiddleware, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{
		auth:   auth,
		tokens: tokens,
		router: router,
		authMW: authMW,
		logger: logger,
	}
}

// ServeHTTP 实现 http.Handler 接口
func (h *AuthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// 路由分发
	switch r.URL.Path {
	case "/auth/api/v1/login":
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.Login(w, r)
	case "/auth/api/v1/refresh":
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.Refresh(w, r)
	case "/auth/api/v1/logout":
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.authMW.Wrap(h.Logout)(w, r)
	case "/auth/api/v1/password":
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.authMW.Wrap(h.ChangePassword)(w, r)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

// Login 账号口令登录
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req service.LoginRequest
	if err := readBodyJSON(r, 1<<20, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, Fail("invalid request body"))
		return
	}

	scope, err := tenantdb.ScopeFor(ctx, h.router, TenantKeyFrom(ctx))
	if err != nil {
		h.logger.Warn("Failed to resolve tenant scope", zap.Error(err))
		writeError(w, err)
		return
	}

	resp, err := h.auth.Login(ctx, scope, &req)
	if err != nil {
		h.logger.Warn("Login failed", zap.String("account", req.Account), zap.Error(err))
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(resp))
}

// Refresh 刷新access令牌
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RefreshToken string `json:"refresh_token"`
	}
	if err := readBodyJSON(r, 1<<20, &req); err != nil || req.RefreshToken == "" {
		writeJSON(w, http.StatusBadRequest, Fail("refresh_token is required"))
		return
	}

	access, err := h.tokens.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(map[string]string{"access_token": access}))
}

// Logout 吊销当前会话
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	claims := ClaimsFrom(r.Context())
	if err := h.auth.Logout(r.Context(), claims.SessionID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok[any](nil))
}

// ChangePassword 口令变更（成功后当前会话失效）
func (h *AuthHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	claims := ClaimsFrom(ctx)

	var req service.ChangePasswordRequest
	if err := readBodyJSON(r, 1<<20, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, Fail("invalid request body"))
		return
	}
	req.StaffID = claims.StaffID
	req.SessionID = claims.SessionID

	scope, err := tenantdb.ScopeFor(ctx, h.router, TenantKeyFrom(ctx))
	if err != nil {
		writeError(w, err)
		return
	}
	if err := h.auth.ChangePassword(ctx, scope, &req); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok[any](nil))
}
