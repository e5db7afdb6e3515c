package domain

import "errors"

// 平台级错误分类：Service层用errors.Is匹配，HTTP层映射为响应码
var (
	// NotFound 类
	ErrTenantNotFound     = errors.New("tenant not found")
	ErrPermissionNotFound = errors.New("permission not found")
	ErrRoleNotFound       = errors.New("role not found")
	ErrStaffNotFound      = errors.New("staff not found")

	// Conflict 类
	ErrDomainAlreadyExists = errors.New("domain already exists")
	ErrConflict            = errors.New("resource already exists")

	// 权限更新
	ErrInvalidOperation = errors.New("invalid operation")

	// 认证
	ErrTokenInvalid       = errors.New("token invalid")
	ErrTokenExpired       = errors.New("token expired")
	ErrAlreadyLoggedOut   = errors.New("already logged out")
	ErrInvalidCredentials = errors.New("invalid credentials")

	// 租户路由与开通
	ErrConnectionFailed       = errors.New("tenant database unreachable")
	ErrProvisioningIncomplete = errors.New("tenant provisioning incomplete")
	ErrDescriptorImmutable    = errors.New("tenant database descriptor already set")
)

// IsNotFound 判断错误是否属于NotFound类
func IsNotFound(err error) bool {
	return errors.Is(err, ErrTenantNotFound) ||
		errors.Is(err, ErrPermissionNotFound) ||
		errors.Is(err, ErrRoleNotFound) ||
		errors.Is(err, ErrStaffNotFound)
}
