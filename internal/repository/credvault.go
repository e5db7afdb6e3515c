package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"hivedesk-core/internal/domain"
	"hivedesk-core/internal/store"
)

// CredentialVault 租户库凭据读取器
// 无业务逻辑，只做查找：tenantKey（UUID或domain）→ 租户 + 隔离库描述符
type CredentialVault interface {
	// Lookup 解析租户键并返回库描述符
	// 租户不存在或不可路由时返回domain.ErrTenantNotFound
	Lookup(ctx context.Context, tenantKey string) (*domain.Tenant, *domain.TenantDatabase, error)

	// Invalidate 清除描述符缓存（租户停用或描述符变更后调用）
	Invalidate(ctx context.Context, tenantID string)
}

// descriptorCacheTTL 描述符缓存时长；描述符开通后不变，
// 短TTL只为让status变更（停用）在缓存层收敛
const descriptorCacheTTL = 30 * time.Second

type vaultEntry struct {
	Tenant     domain.Tenant         `json:"tenant"`
	Descriptor domain.TenantDatabase `json:"descriptor"`
}

// KVCredentialVault 主库数据源 + KV读穿缓存的凭据读取器
type KVCredentialVault struct {
	tenants TenantsRepository
	cache   store.KV
	logger  *zap.Logger
}

// NewKVCredentialVault 创建凭据读取器
func NewKVCredentialVault(tenants TenantsRepository, cache store.KV, logger *zap.Logger) *KVCredentialVault {
	return &KVCredentialVault{tenants: tenants, cache: cache, logger: logger}
}

var _ CredentialVault = (*KVCredentialVault)(nil)

// Lookup 解析租户键并返回库描述符
func (v *KVCredentialVault) Lookup(ctx context.Context, tenantKey string) (*domain.Tenant, *domain.TenantDatabase, error) {
	if tenantKey == "" {
		return nil, nil, fmt.Errorf("tenant key is required")
	}

	if entry, ok := v.cacheGet(ctx, tenantKey); ok {
		if !entry.Tenant.IsRoutable() {
			return nil, nil, domain.ErrTenantNotFound
		}
		return &entry.Tenant, &entry.Descriptor, nil
	}

	// 缓存未命中：主库回源。tenantKey先按UUID解析，失败则按domain解析
	tenant, err := v.tenants.GetTenant(ctx, tenantKey)
	if err != nil {
		if !errors.Is(err, domain.ErrTenantNotFound) {
			return nil, nil, err
		}
		tenant, err = v.tenants.GetTenantByDomain(ctx, tenantKey)
		if err != nil {
			return nil, nil, err
		}
	}

	desc, err := v.tenants.GetTenantDatabase(ctx, tenant.TenantID)
	if err != nil {
		return nil, nil, err
	}

	v.cachePut(ctx, tenantKey, tenant, desc)

	if !tenant.IsRoutable() {
		return nil, nil, domain.ErrTenantNotFound
	}
	return tenant, desc, nil
}

// Invalidate 清除描述符缓存
// 同一描述符缓存在UUID和domain两个键下，必须一并清除，
// 否则按域名路由的请求在TTL内仍会命中旧status
func (v *KVCredentialVault) Invalidate(ctx context.Context, tenantID string) {
	if v.cache == nil {
		return
	}
	keys := []string{tenantID}
	if entry, ok := v.cacheGet(ctx, tenantID); ok {
		keys = append(keys, entry.Tenant.Domain)
	} else if tenant, err := v.tenants.GetTenant(ctx, tenantID); err == nil {
		// UUID键已过期时从主库补查domain别名
		keys = append(keys, tenant.Domain)
	}
	for _, key := range dedupe(keys...) {
		if err := v.cache.Del(ctx, vaultCacheKey(key)); err != nil {
			v.logger.Warn("Failed to invalidate descriptor cache",
				zap.String("tenant_id", tenantID),
				zap.String("cache_key", key),
				zap.Error(err),
			)
		}
	}
}

func (v *KVCredentialVault) cacheGet(ctx context.Context, tenantKey string) (*vaultEntry, bool) {
	if v.cache == nil {
		return nil, false
	}
	raw, err := v.cache.Get(ctx, vaultCacheKey(tenantKey))
	if err != nil {
		if !errors.Is(err, store.ErrMiss) {
			// 缓存故障降级为回源，不影响请求
			v.logger.Warn("Descriptor cache read failed", zap.Error(err))
		}
		return nil, false
	}
	var entry vaultEntry
	if err := json.Unmarshal([]byte(raw), &entry); err != nil {
		v.logger.Warn("Descriptor cache entry corrupted", zap.Error(err))
		return nil, false
	}
	return &entry, true
}

func (v *KVCredentialVault) cachePut(ctx context.Context, tenantKey string, tenant *domain.Tenant, desc *domain.TenantDatabase) {
	if v.cache == nil {
		return
	}
	entry := vaultEntry{Tenant: *tenant, Descriptor: *desc}
	raw, err := json.Marshal(entry)
	if err != nil {
		return
	}
	// 同一描述符缓存两个键：请求可能用UUID也可能用domain
	for _, key := range dedupe(tenantKey, tenant.TenantID, tenant.Domain) {
		if err := v.cache.Set(ctx, vaultCacheKey(key), string(raw), descriptorCacheTTL); err != nil {
			v.logger.Warn("Descriptor cache write failed", zap.Error(err))
			return
		}
	}
}

func vaultCacheKey(tenantKey string) string {
	return "tenantdb:desc:" + tenantKey
}

func dedupe(keys ...string) []string {
	seen := map[string]bool{}
	out := []string{}
	for _, k := range keys {
		if k == "" || seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, k)
	}
	return out
}
