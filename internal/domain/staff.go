package domain

import (
	"crypto/sha256"
	"crypto/subtle"
	"strings"

	"github.com/lib/pq"
)

// 员工状态
const (
	StaffStatusActive   = "active"
	StaffStatusInactive = "inactive"
)

// Staff 员工/管理员领域模型（租户库 staff 表；主库 staff 表存master级账号）
// TenantID为空表示master realm账号
type Staff struct {
	StaffID  string `db:"staff_id"`
	TenantID string `db:"tenant_id"` // 空 = master realm

	// 账号信息
	Account      string `db:"account"`       // NOT NULL, UNIQUE per tenant
	PasswordHash []byte `db:"password_hash"` // NOT NULL, sha256(lower(account) + ":" + password)

	// 基本信息
	Name  string `db:"name"`
	Email string `db:"email"`
	Phone string `db:"phone"`

	// Roles 分配的角色代码列表（VARCHAR[]）
	Roles pq.StringArray `db:"roles"`

	Status string `db:"status"` // active/inactive
}

// HashPassword 计算账号口令哈希
// 以规范化账号为盐：sha256(lower(account) + ":" + password)
func HashPassword(account, password string) []byte {
	normalized := strings.TrimSpace(strings.ToLower(account))
	sum := sha256.Sum256([]byte(normalized + ":" + password))
	return sum[:]
}

// VerifyPassword 常量时间比较口令哈希（口令变更/登录前置校验）
func VerifyPassword(stored []byte, account, password string) bool {
	candidate := HashPassword(account, password)
	return subtle.ConstantTimeCompare(stored, candidate) == 1
}
