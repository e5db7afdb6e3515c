package httpapi

import (
	"encoding/json"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"hivedesk-core/internal/domain"
	"hivedesk-core/internal/repository"
	"hivedesk-core/internal/service"
)

// TenantsHandler 租户管理 Handler（master realm）
// 序列化输出不含库描述符：凭据只在路由器内部流转，任何响应不外泄
type TenantsHandler struct {
	tenants     service.TenantService
	provisioner *service.TenantProvisioner
	logger      *zap.Logger
}

func NewTenantsHandler(tenants service.TenantService, provisioner *service.TenantProvisioner, logger *zap.Logger) *TenantsHandler {
	return &TenantsHandler{tenants: tenants, provisioner: provisioner, logger: logger}
}

func (h *TenantsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.URL.Path == "/admin/api/v1/tenants":
		switch r.Method {
		case http.MethodGet:
			h.List(w, r)
		case http.MethodPost:
			h.Provision(w, r)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	case strings.HasPrefix(r.URL.Path, "/admin/api/v1/tenants/"):
		rest := strings.TrimPrefix(r.URL.Path, "/admin/api/v1/tenants/")
		id, action, _ := strings.Cut(rest, "/")
		if id == "" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		h.dispatchOne(w, r, id, action)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (h *TenantsHandler) dispatchOne(w http.ResponseWriter, r *http.Request, id, action string) {
	switch action {
	case "":
		switch r.Method {
		case http.MethodGet:
			h.Get(w, r, id)
		case http.MethodPut, http.MethodPatch:
			h.Update(w, r, id)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	case "suspend":
		h.post(w, r, func() error { return h.tenants.SuspendTenant(r.Context(), id) })
	case "activate":
		h.post(w, r, func() error { return h.tenants.ActivateTenant(r.Context(), id) })
	case "resume":
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.Resume(w, r, id)
	case "check":
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.Check(w, r, id)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (h *TenantsHandler) post(w http.ResponseWriter, r *http.Request, fn func() error) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if err := fn(); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok[any](nil))
}

// provisionBody 开通请求体
type provisionBody struct {
	TenantName         string `json:"tenant_name"`
	Domain             string `json:"domain"`
	RegistrationNumber string `json:"registration_number"`
	Email              string `json:"email"`
	Phone              string `json:"phone"`
	Address            struct {
		Line1   string `json:"line1"`
		Line2   string `json:"line2"`
		City    string `json:"city"`
		State   string `json:"state"`
		Country string `json:"country"`
		Zip     string `json:"zip"`
		Hours   []struct {
			DayOfWeek int    `json:"day_of_week"`
			OpensAt   string `json:"opens_at"`
			ClosesAt  string `json:"closes_at"`
		} `json:"hours"`
	} `json:"address"`
	Admin struct {
		Account  string `json:"account"`
		Password string `json:"password"`
		Name     string `json:"name"`
		Email    string `json:"email"`
		Phone    string `json:"phone"`
	} `json:"admin"`
}

// Provision 开通新租户
func (h *TenantsHandler) Provision(w http.ResponseWriter, r *http.Request) {
	var body provisionBody
	if err := readBodyJSON(r, 1<<20, &body); err != nil {
		writeJSON(w, http.StatusBadRequest, Fail("invalid request body"))
		return
	}

	req := &service.ProvisionRequest{
		TenantName:         body.TenantName,
		Domain:             body.Domain,
		RegistrationNumber: body.RegistrationNumber,
		Email:              body.Email,
		Phone:              body.Phone,
		Address: service.AddressSeed{
			Line1:   body.Address.Line1,
			Line2:   body.Address.Line2,
			City:    body.Address.City,
			State:   body.Address.State,
			Country: body.Address.Country,
			Zip:     body.Address.Zip,
		},
		Admin: service.AdminSeed{
			Account:  body.Admin.Account,
			Password: body.Admin.Password,
			Name:     body.Admin.Name,
			Email:    body.Admin.Email,
			Phone:    body.Admin.Phone,
		},
	}
	for _, hr := range body.Address.Hours {
		req.Address.Hours = append(req.Address.Hours, service.HourSeed{
			DayOfWeek: hr.DayOfWeek,
			OpensAt:   hr.OpensAt,
			ClosesAt:  hr.ClosesAt,
		})
	}

	tenant, err := h.provisioner.Provision(r.Context(), req)
	if err != nil {
		h.logger.Warn("Tenant provisioning request failed", zap.String("domain", body.Domain), zap.Error(err))
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(tenantView(tenant)))
}

// Resume 重跑失败租户的开通流程
func (h *TenantsHandler) Resume(w http.ResponseWriter, r *http.Request, id string) {
	var body struct {
		Address *struct {
			Line1   string `json:"line1"`
			Line2   string `json:"line2"`
			City    string `json:"city"`
			State   string `json:"state"`
			Country string `json:"country"`
			Zip     string `json:"zip"`
		} `json:"address"`
		Admin *struct {
			Account  string `json:"account"`
			Password string `json:"password"`
			Name     string `json:"name"`
		} `json:"admin"`
	}
	_ = readBodyJSON(r, 1<<20, &body)

	seed := &service.ProvisionSeed{}
	if body.Address != nil {
		seed.Address = &service.AddressSeed{
			Line1:   body.Address.Line1,
			Line2:   body.Address.Line2,
			City:    body.Address.City,
			State:   body.Address.State,
			Country: body.Address.Country,
			Zip:     body.Address.Zip,
		}
	}
	if body.Admin != nil {
		seed.Admin = &service.AdminSeed{
			Account:  body.Admin.Account,
			Password: body.Admin.Password,
			Name:     body.Admin.Name,
		}
	}

	tenant, err := h.provisioner.Resume(r.Context(), id, seed)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(tenantView(tenant)))
}

// Check 开通完整性校验
func (h *TenantsHandler) Check(w http.ResponseWriter, r *http.Request, id string) {
	if err := h.provisioner.CheckProvisioned(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(map[string]any{"tenant_id": id, "provisioned": true}))
}

// List 租户列表（分页、状态过滤、名称搜索）
func (h *TenantsHandler) List(w http.ResponseWriter, r *http.Request) {
	page, size := pagination(r)
	filter := repository.TenantFilters{
		Status: r.URL.Query().Get("status"),
		Search: r.URL.Query().Get("search"),
	}
	items, total, err := h.tenants.ListTenants(r.Context(), filter, page, size)
	if err != nil {
		h.logger.Error("Failed to list tenants", zap.Error(err))
		writeError(w, err)
		return
	}
	out := make([]map[string]any, 0, len(items))
	for _, t := range items {
		out = append(out, tenantView(t))
	}
	writeJSON(w, http.StatusOK, Ok(map[string]any{"items": out, "total": total}))
}

func (h *TenantsHandler) Get(w http.ResponseWriter, r *http.Request, id string) {
	tenant, err := h.tenants.GetTenant(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(tenantView(tenant)))
}

// Update 更新租户联系信息（domain不可变，body中的domain忽略）
func (h *TenantsHandler) Update(w http.ResponseWriter, r *http.Request, id string) {
	var body struct {
		TenantName         string          `json:"tenant_name"`
		RegistrationNumber string          `json:"registration_number"`
		Email              string          `json:"email"`
		Phone              string          `json:"phone"`
		Metadata           json.RawMessage `json:"metadata"`
	}
	if err := readBodyJSON(r, 1<<20, &body); err != nil {
		writeJSON(w, http.StatusBadRequest, Fail("invalid request body"))
		return
	}

	tenant, err := h.tenants.UpdateTenant(r.Context(), id, &domain.Tenant{
		TenantName:         body.TenantName,
		RegistrationNumber: body.RegistrationNumber,
		Email:              body.Email,
		Phone:              body.Phone,
		Metadata:           body.Metadata,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(tenantView(tenant)))
}

// tenantView 对外序列化视图（无库描述符字段）
func tenantView(t *domain.Tenant) map[string]any {
	return map[string]any{
		"tenant_id":           t.TenantID,
		"tenant_name":         t.TenantName,
		"domain":              t.Domain,
		"registration_number": t.RegistrationNumber,
		"email":               t.Email,
		"phone":               t.Phone,
		"status":              t.Status,
		"metadata":            t.Metadata,
	}
}
