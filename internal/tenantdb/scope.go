package tenantdb

import (
	"context"
	"database/sql"
)

// Scope 请求作用域的租户上下文
// 业务逻辑需要的租户库句柄由Scope显式携带传入构造函数，
// 不使用模块级单例（每个请求独立解析，无共享可变状态）
type Scope struct {
	tenantID string
	db       *sql.DB
}

// NewScope 构造租户作用域
func NewScope(tenantID string, db *sql.DB) *Scope {
	return &Scope{tenantID: tenantID, db: db}
}

// MasterScope master realm作用域（tenantID为空）
func MasterScope(db *sql.DB) *Scope {
	return &Scope{db: db}
}

// ScopeFor 解析租户键并构造作用域
func ScopeFor(ctx context.Context, r *Router, tenantKey string) (*Scope, error) {
	if tenantKey == MasterKey {
		return MasterScope(r.master), nil
	}
	db, err := r.Resolve(ctx, tenantKey)
	if err != nil {
		return nil, err
	}
	return NewScope(tenantKey, db), nil
}

// TenantID 租户标识（空 = master realm）
func (s *Scope) TenantID() string { return s.tenantID }

// DB 该作用域的库句柄（池化，可并发使用）
func (s *Scope) DB() *sql.DB { return s.db }

// IsMaster 是否master realm作用域
func (s *Scope) IsMaster() bool { return s.tenantID == "" }
