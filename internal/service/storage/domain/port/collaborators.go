package port

import (
	"context"

	"shopflow/internal/contract"
)

// CatalogResolver 查询商品目录
type CatalogResolver interface {
	FindProducts(ctx context.Context, productIDs []string) (map[string]contract.Product, error)
}

// CustomerNotifier 通知客户服务：这些客户等待的商品已补货。notices 为 customerId -> 商品名。
type CustomerNotifier interface {
	NotifyRestock(ctx context.Context, notices map[string]string) error
}

// LowStockPublisher 发布低库存告警
type LowStockPublisher interface {
	PublishLowStock(ctx context.Context, alert contract.LowStockAlert) error
}
