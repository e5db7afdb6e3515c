package httpapi

import (
	"net/http"
	"strings"

	"go.uber.org/zap"

	"hivedesk-core/internal/domain"
	"hivedesk-core/internal/service"
)

// RolesHandler 角色管理 Handler（master realm）
type RolesHandler struct {
	roles       service.RoleService
	permissions service.PermissionService
	logger      *zap.Logger
}

func NewRolesHandler(roles service.RoleService, permissions service.PermissionService, logger *zap.Logger) *RolesHandler {
	return &RolesHandler{roles: roles, permissions: permissions, logger: logger}
}

func (h *RolesHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.URL.Path == "/admin/api/v1/roles":
		switch r.Method {
		case http.MethodGet:
			h.List(w, r)
		case http.MethodPost:
			h.Create(w, r)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	case strings.HasPrefix(r.URL.Path, "/admin/api/v1/roles/"):
		rest := strings.TrimPrefix(r.URL.Path, "/admin/api/v1/roles/")
		id, action, _ := strings.Cut(rest, "/")
		if id == "" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		switch action {
		case "":
			switch r.Method {
			case http.MethodGet:
				h.Get(w, r, id)
			case http.MethodPut, http.MethodPatch:
				h.Update(w, r, id)
			case http.MethodDelete:
				h.Delete(w, r, id)
			default:
				w.WriteHeader(http.StatusMethodNotAllowed)
			}
		case "grants":
			// 登录响应形态的有效授权视图（id按role_code解析）
			if r.Method != http.MethodGet {
				w.WriteHeader(http.StatusMethodNotAllowed)
				return
			}
			h.GrantsView(w, r, id)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (h *RolesHandler) List(w http.ResponseWriter, r *http.Request) {
	page, size := pagination(r)
	items, total, err := h.roles.ListRoles(r.Context(), page, size)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(map[string]any{"items": items, "total": total}))
}

func (h *RolesHandler) Get(w http.ResponseWriter, r *http.Request, id string) {
	role, err := h.roles.GetRole(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(role))
}

func (h *RolesHandler) GrantsView(w http.ResponseWriter, r *http.Request, roleCode string) {
	view, err := h.permissions.RoleView(r.Context(), roleCode)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(view))
}

type roleBody struct {
	RoleCode    string         `json:"role_code"`
	Description string         `json:"description"`
	Grants      []domain.Grant `json:"grants"`
}

func (h *RolesHandler) Create(w http.ResponseWriter, r *http.Request) {
	var body roleBody
	if err := readBodyJSON(r, 1<<20, &body); err != nil {
		writeJSON(w, http.StatusBadRequest, Fail("invalid request body"))
		return
	}
	role, err := h.roles.CreateRole(r.Context(), &domain.Role{
		RoleCode:    body.RoleCode,
		Description: body.Description,
		Grants:      body.Grants,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(role))
}

// Update 更新description/grants；role_code不可变，body中的role_code忽略
func (h *RolesHandler) Update(w http.ResponseWriter, r *http.Request, id string) {
	var body roleBody
	if err := readBodyJSON(r, 1<<20, &body); err != nil {
		writeJSON(w, http.StatusBadRequest, Fail("invalid request body"))
		return
	}
	role, err := h.roles.UpdateRole(r.Context(), id, &domain.Role{
		Description: body.Description,
		Grants:      body.Grants,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(role))
}

func (h *RolesHandler) Delete(w http.ResponseWriter, r *http.Request, id string) {
	if err := h.roles.DeleteRole(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok[any](nil))
}
