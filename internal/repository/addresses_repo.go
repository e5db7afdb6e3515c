package repository

import (
	"context"

	"hivedesk-core/internal/domain"
)

// AddressesRepository 租户地址Repository接口（租户库）
// 地址和营业时段是租户库内的父子结构：时段只挂在一个地址下
type AddressesRepository interface {
	// CreateAddress 创建地址及其全部营业时段（同事务）
	CreateAddress(ctx context.Context, address *domain.TenantAddress) (string, error)

	// ListAddresses 查询租户全部地址（含营业时段）
	ListAddresses(ctx context.Context) ([]*domain.TenantAddress, error)

	// CountAddresses 地址总数（开通幂等重入判定用）
	CountAddresses(ctx context.Context) (int, error)
}
