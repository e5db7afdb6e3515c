package domain

import (
	"encoding/json"
	"fmt"
)

// Grant 角色授权项：权限 + 授予的操作子集
// roles.grants JSONB数组的元素，顺序保留
type Grant struct {
	PermissionID string   `json:"id"`
	Operations   []string `json:"operations"`
}

// Role 角色领域模型（对应主库 roles 表）
// grants 以JSONB数组内嵌存储（无单独关联表），写入时校验schema
type Role struct {
	RoleID      string `db:"role_id"`
	RoleCode    string `db:"role_code"`   // NOT NULL, UNIQUE: 角色代码，程序引用
	Description string `db:"description"` // nullable

	// Grants 有序授权列表；每项的PermissionID必须存在于permissions表
	Grants []Grant `db:"grants"`

	// IsSystem 系统预定义角色（如默认管理员角色）不可删除
	IsSystem bool `db:"is_system"`
}

// DefaultAdminRoleCode 开通租户时授予初始管理员的角色
const DefaultAdminRoleCode = "TenantAdmin"

// ParseGrants 解析并校验JSONB授权列表
// 边界校验：结构必须是数组，每项操作集合必须合法
func ParseGrants(raw json.RawMessage) ([]Grant, error) {
	if len(raw) == 0 {
		return []Grant{}, nil
	}
	var grants []Grant
	if err := json.Unmarshal(raw, &grants); err != nil {
		return nil, fmt.Errorf("malformed grants blob: %w", err)
	}
	for i, g := range grants {
		if g.PermissionID == "" {
			return nil, fmt.Errorf("grant[%d]: permission id is required", i)
		}
		ops, ok := NormalizeOperations(g.Operations)
		if !ok {
			return nil, fmt.Errorf("grant[%d]: %w", i, ErrInvalidOperation)
		}
		grants[i].Operations = ops
	}
	return grants, nil
}

// MarshalGrants 序列化授权列表（nil视为空数组，保持JSONB列非NULL）
func MarshalGrants(grants []Grant) (json.RawMessage, error) {
	if grants == nil {
		grants = []Grant{}
	}
	b, err := json.Marshal(grants)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal grants: %w", err)
	}
	return b, nil
}
