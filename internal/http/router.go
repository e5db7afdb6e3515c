package httpapi

import (
	"net/http"

	"go.uber.org/zap"
)

// Router 使用标准库 http.ServeMux（避免引入第三方路由依赖）
// 所有请求先过租户键解析中间件
type Router struct {
	mux    *http.ServeMux
	logger *zap.Logger
}

func NewRouter(logger *zap.Logger) *Router {
	return &Router{
		mux:    http.NewServeMux(),
		logger: logger,
	}
}

func (r *Router) Handle(pattern string, h http.HandlerFunc) {
	r.mux.HandleFunc(pattern, h)
}

// HandleHandler 支持 http.Handler 接口
func (r *Router) HandleHandler(pattern string, h http.Handler) {
	r.mux.Handle(pattern, h)
}

func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	TenantKeyMiddleware(r.mux).ServeHTTP(w, req)
}

// RegisterAuthRoutes 注册认证路由
func (r *Router) RegisterAuthRoutes(h *AuthHandler) {
	r.HandleHandler("/auth/api/v1/login", h)
	r.HandleHandler("/auth/api/v1/refresh", h)
	r.HandleHandler("/auth/api/v1/logout", h)
	r.HandleHandler("/auth/api/v1/password", h)
}

// RegisterAdminRoutes 注册平台管理路由（租户/权限/角色，全部经Bearer认证）
func (r *Router) RegisterAdminRoutes(authMW *AuthMiddleware, tenants *TenantsHandler, permissions *PermissionsHandler, roles *RolesHandler) {
	guard := func(h http.Handler) http.HandlerFunc {
		return authMW.Wrap(h.ServeHTTP)
	}
	r.Handle("/admin/api/v1/tenants", guard(tenants))
	r.Handle("/admin/api/v1/tenants/", guard(tenants))
	r.Handle("/admin/api/v1/permissions", guard(permissions))
	r.Handle("/admin/api/v1/permissions/", guard(permissions))
	r.Handle("/admin/api/v1/permissions/batch", guard(permissions))
	r.Handle("/admin/api/v1/roles", guard(roles))
	r.Handle("/admin/api/v1/roles/", guard(roles))
}

// RegisterHealthRoutes 健康检查
func (r *Router) RegisterHealthRoutes() {
	r.Handle("/healthz", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, http.StatusOK, Ok("ok"))
	})
}
