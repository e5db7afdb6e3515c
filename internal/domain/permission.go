package domain

// CRUD操作常量（permissions.operations 的合法取值）
const (
	OpCreate = "create"
	OpRead   = "read"
	OpUpdate = "update"
	OpDelete = "delete"
)

// canonicalOps 规范顺序，序列化时保持稳定
var canonicalOps = []string{OpCreate, OpRead, OpUpdate, OpDelete}

// Permission 权限领域模型（对应主库 permissions 表）
// operations 是 {create,read,update,delete} 的子集；
// 通过安全更新路径修改时只增不减（被角色引用期间）
type Permission struct {
	PermissionID string `db:"permission_id"`
	Name         string `db:"name"`        // NOT NULL, UNIQUE
	Description  string `db:"description"` // nullable

	// Operations 规范化后的操作集合
	Operations []string `db:"operations"`

	// Routes 此权限守护的路由模式（permission_routes 表）
	Routes []string
}

// ValidOperation 判断操作名是否合法
func ValidOperation(op string) bool {
	switch op {
	case OpCreate, OpRead, OpUpdate, OpDelete:
		return true
	}
	return false
}

// NormalizeOperations 去重并按规范顺序排列操作集合
// 返回false表示包含非法操作
func NormalizeOperations(ops []string) ([]string, bool) {
	seen := map[string]bool{}
	for _, op := range ops {
		if !ValidOperation(op) {
			return nil, false
		}
		seen[op] = true
	}
	out := make([]string, 0, len(seen))
	for _, op := range canonicalOps {
		if seen[op] {
			out = append(out, op)
		}
	}
	return out, true
}

// IsSupersetOf 判断ops是否包含prev的全部操作
func IsSupersetOf(ops, prev []string) bool {
	have := map[string]bool{}
	for _, op := range ops {
		have[op] = true
	}
	for _, op := range prev {
		if !have[op] {
			return false
		}
	}
	return true
}

// IsStrictSupersetOf 判断ops是否为prev的严格超集（包含全部且有新增）
func IsStrictSupersetOf(ops, prev []string) bool {
	return IsSupersetOf(ops, prev) && len(ops) > len(prev)
}
