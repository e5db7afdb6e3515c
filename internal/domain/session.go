package domain

// Token类型（claims.token_type）
const (
	TokenTypeAccess  = "access"
	TokenTypeRefresh = "refresh"
)

// Claims 令牌载荷：验签后暴露给调用方的身份信息
// SessionID 将一对access/refresh令牌关联到一次可吊销的登录会话
type Claims struct {
	StaffID   string `json:"staff_id"`
	TenantID  string `json:"tenant_id"` // 空 = master realm
	SessionID string `json:"session_id"`
	TokenType string `json:"token_type"`
}
