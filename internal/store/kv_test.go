package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryKVExpiry(t *testing.T) {
	ctx := context.Background()
	kv := NewMemoryKV()
	now := time.Now()
	kv.Now = func() time.Time { return now }

	require.NoError(t, kv.Set(ctx, "k", "v", 30*time.Second))

	v, err := kv.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v", v)

	// 模拟时钟推进越过TTL
	now = now.Add(31 * time.Second)
	_, err = kv.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrMiss)

	ok, err := kv.Exists(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryKVSetNX(t *testing.T) {
	ctx := context.Background()
	kv := NewMemoryKV()
	now := time.Now()
	kv.Now = func() time.Time { return now }

	ok, err := kv.SetNX(ctx, "k", "1", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	// 已存在时不覆盖
	ok, err = kv.SetNX(ctx, "k", "2", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	// 过期后可重新占位
	now = now.Add(2 * time.Minute)
	ok, err = kv.SetNX(ctx, "k", "3", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestMemoryKVZeroTTLNeverExpires(t *testing.T) {
	ctx := context.Background()
	kv := NewMemoryKV()
	now := time.Now()
	kv.Now = func() time.Time { return now }

	require.NoError(t, kv.Set(ctx, "k", "v", 0))
	now = now.Add(24 * time.Hour)
	v, err := kv.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v", v)
}
