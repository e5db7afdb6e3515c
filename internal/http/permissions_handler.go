package httpapi

import (
	"net/http"
	"strings"

	"go.uber.org/zap"

	"hivedesk-core/internal/domain"
	"hivedesk-core/internal/service"
)

// PermissionsHandler 权限管理 Handler（master realm）
type PermissionsHandler struct {
	permissions service.PermissionService
	logger      *zap.Logger
}

func NewPermissionsHandler(permissions service.PermissionService, logger *zap.Logger) *PermissionsHandler {
	return &PermissionsHandler{permissions: permissions, logger: logger}
}

func (h *PermissionsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.URL.Path == "/admin/api/v1/permissions":
		switch r.Method {
		case http.MethodGet:
			h.List(w, r)
		case http.MethodPost:
			h.Create(w, r)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	case r.URL.Path == "/admin/api/v1/permissions/batch":
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.BulkUpdate(w, r)
	case strings.HasPrefix(r.URL.Path, "/admin/api/v1/permissions/"):
		rest := strings.TrimPrefix(r.URL.Path, "/admin/api/v1/permissions/")
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
				h.UpdateMeta(w, r, id)
			case http.MethodDelete:
				h.Delete(w, r, id)
			default:
				w.WriteHeader(http.StatusMethodNotAllowed)
			}
		case "operations":
			if r.Method != http.MethodPut {
				w.WriteHeader(http.StatusMethodNotAllowed)
				return
			}
			h.UpdateOperations(w, r, id)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (h *PermissionsHandler) List(w http.ResponseWriter, r *http.Request) {
	page, size := pagination(r)
	items, total, err := h.permissions.ListPermissions(r.Context(), page, size)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(map[string]any{"items": items, "total": total}))
}

func (h *PermissionsHandler) Get(w http.ResponseWriter, r *http.Request, id string) {
	perm, err := h.permissions.GetPermission(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(perm))
}

func (h *PermissionsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Name        string   `json:"name"`
		Description string   `json:"description"`
		Operations  []string `json:"operations"`
		Routes      []string `json:"routes"`
	}
	if err := readBodyJSON(r, 1<<20, &body); err != nil {
		writeJSON(w, http.StatusBadRequest, Fail("invalid request body"))
		return
	}
	perm, err := h.permissions.CreatePermission(r.Context(), &domain.Permission{
		Name:        body.Name,
		Description: body.Description,
		Operations:  body.Operations,
		Routes:      body.Routes,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(perm))
}

// UpdateOperations 单调安全的操作集合更新
// 响应总是携带存储状态；更新未被应用时applied=false
func (h *PermissionsHandler) UpdateOperations(w http.ResponseWriter, r *http.Request, id string) {
	var body struct {
		Operations []string `json:"operations"`
	}
	if err := readBodyJSON(r, 1<<20, &body); err != nil {
		writeJSON(w, http.StatusBadRequest, Fail("invalid request body"))
		return
	}
	perm, err := h.permissions.UpdateOperations(r.Context(), &service.UpdatePermissionRequest{
		PermissionID: id,
		Operations:   body.Operations,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(perm))
}

func (h *PermissionsHandler) BulkUpdate(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Items []service.UpdatePermissionRequest `json:"items"`
	}
	if err := readBodyJSON(r, 1<<20, &body); err != nil {
		writeJSON(w, http.StatusBadRequest, Fail("invalid request body"))
		return
	}
	results, err := h.permissions.BulkUpdateOperations(r.Context(), body.Items)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(map[string]any{"items": results}))
}

func (h *PermissionsHandler) UpdateMeta(w http.ResponseWriter, r *http.Request, id string) {
	var body struct {
		Name        string   `json:"name"`
		Description string   `json:"description"`
		Routes      []string `json:"routes"`
	}
	if err := readBodyJSON(r, 1<<20, &body); err != nil {
		writeJSON(w, http.StatusBadRequest, Fail("invalid request body"))
		return
	}
	perm, err := h.permissions.UpdatePermissionMeta(r.Context(), id, &domain.Permission{
		Name:        body.Name,
		Description: body.Description,
		Routes:      body.Routes,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(perm))
}

func (h *PermissionsHandler) Delete(w http.ResponseWriter, r *http.Request, id string) {
	if err := h.permissions.DeletePermission(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok[any](nil))
}
