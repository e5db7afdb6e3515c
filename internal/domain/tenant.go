package domain

import "encoding/json"

// 租户状态（tenants.status）
const (
	TenantStatusActive             = "active"
	TenantStatusSuspended          = "suspended"
	TenantStatusProvisioning       = "provisioning"
	TenantStatusProvisioningFailed = "provisioning_failed"
)

// Tenant 租户领域模型（对应主库 tenants 表）
// domain（子域名）创建后不可变，用于请求路由
type Tenant struct {
	// 主键
	TenantID string `db:"tenant_id"` // UUID, PRIMARY KEY

	// 基本信息
	TenantName         string `db:"tenant_name"`         // VARCHAR(255), NOT NULL
	Domain             string `db:"domain"`              // VARCHAR(255), UNIQUE, NOT NULL（子域名，路由键）
	RegistrationNumber string `db:"registration_number"` // VARCHAR(100), nullable
	Email              string `db:"email"`               // VARCHAR(255), nullable
	Phone              string `db:"phone"`               // VARCHAR(50), nullable

	// 状态（active/suspended/provisioning/provisioning_failed）
	Status string `db:"status"`

	// 扩展配置
	Metadata json.RawMessage `db:"metadata"` // JSONB, nullable
}

// IsRoutable 租户是否可以接收正常流量
// 半开通（provisioning/provisioning_failed）和停用的租户不可路由
func (t *Tenant) IsRoutable() bool {
	return t.Status == TenantStatusActive
}

// TenantDatabase 租户隔离库描述符（对应主库 tenant_databases 表）
// 开通时写入一次，之后不再变更；凭据不跨租户复用
type TenantDatabase struct {
	TenantID   string `db:"tenant_id"`
	Host       string `db:"db_host"`
	Port       int    `db:"db_port"`
	DBName     string `db:"db_name"`
	DBUser     string `db:"db_user"`
	DBPassword string `db:"db_password"`
	SSLMode    string `db:"ssl_mode"`
}
