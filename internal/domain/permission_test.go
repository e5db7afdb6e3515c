package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeOperations(t *testing.T) {
	// 去重并按规范顺序排列
	ops, ok := NormalizeOperations([]string{"delete", "read", "read", "create"})
	require.True(t, ok)
	assert.Equal(t, []string{OpCreate, OpRead, OpDelete}, ops)

	// 空集合合法（清空未被引用权限的操作）
	ops, ok = NormalizeOperations(nil)
	require.True(t, ok)
	assert.Empty(t, ops)

	// 非法操作拒绝
	_, ok = NormalizeOperations([]string{"read", "execute"})
	assert.False(t, ok)
}

func TestIsStrictSupersetOf(t *testing.T) {
	assert.True(t, IsStrictSupersetOf([]string{OpRead, OpUpdate}, []string{OpRead}))
	// 相等不是严格超集
	assert.False(t, IsStrictSupersetOf([]string{OpRead}, []string{OpRead}))
	// 缩减不是超集
	assert.False(t, IsStrictSupersetOf([]string{OpRead}, []string{OpRead, OpUpdate}))
	// 换元素不是超集
	assert.False(t, IsStrictSupersetOf([]string{OpRead, OpDelete}, []string{OpRead, OpUpdate}))
	// 之前为空集时任何非空集合都是严格超集
	assert.True(t, IsStrictSupersetOf([]string{OpRead}, nil))
}

func TestVerifyPassword(t *testing.T) {
	hash := HashPassword("Admin", "secret-123")

	// 账号大小写不敏感（哈希盐为规范化账号）
	assert.True(t, VerifyPassword(hash, "admin", "secret-123"))
	assert.True(t, VerifyPassword(hash, "  ADMIN ", "secret-123"))

	assert.False(t, VerifyPassword(hash, "admin", "wrong"))
	assert.False(t, VerifyPassword(hash, "other", "secret-123"))
}

func TestParseGrants(t *testing.T) {
	grants, err := ParseGrants([]byte(`[{"id":"p1","operations":["read","create"]}]`))
	require.NoError(t, err)
	require.Len(t, grants, 1)
	assert.Equal(t, "p1", grants[0].PermissionID)
	assert.Equal(t, []string{OpCreate, OpRead}, grants[0].Operations)

	// 非法操作在边界拒绝
	_, err = ParseGrants([]byte(`[{"id":"p1","operations":["fly"]}]`))
	assert.Error(t, err)
}
