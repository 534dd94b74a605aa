package port

import (
	"context"

	"shopflow/internal/contract"
)

// StorageGateway 是 purchase 对库存服务的依赖
type StorageGateway interface {
	IsOrderInStorage(ctx context.Context, cart contract.Cart) (bool, error)
	FindOutOfStorage(ctx context.Context, cart contract.Cart, customerID string) (map[string]int, error)
	// Reserve 库存不足时返回 domain.ErrReservationRejected，
	// orderID 已用于另一份购物车时返回 domain.ErrOrderIDReused
	Reserve(ctx context.Context, orderID, customerID string, cart contract.Cart) (contract.ReserveResult, error)
}

// CustomerDirectory 是客户服务。未知客户返回 domain.ErrCustomerNotFound。
type CustomerDirectory interface {
	FindContact(ctx context.Context, customerID string) (*contract.Customer, error)
	CleanCart(ctx context.Context, customerID string) error
}

// CatalogResolver 把商品 ID 解析成商品信息
type CatalogResolver interface {
	FindProducts(ctx context.Context, productIDs []string) (map[string]contract.Product, error)
}
