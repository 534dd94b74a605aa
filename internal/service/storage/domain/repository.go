package domain

import (
	"context"

	"shopflow/internal/contract"
)

// StorageRepository 定义库存的持久化操作。所有扣减都是带下限的原子条件更新。
type StorageRepository interface {
	FindByProductID(ctx context.Context, productID string) (*StorageRecord, error)
	FindAll(ctx context.Context) ([]StorageRecord, error)
	// FindAtOrBelow 返回数量 <= threshold 的记录
	FindAtOrBelow(ctx context.Context, threshold int) ([]StorageRecord, error)
	Create(ctx context.Context, record *StorageRecord) error
	SetQuantity(ctx context.Context, productID string, quantity int) error
	// Increase 原子地增加库存并返回增加后的数量
	Increase(ctx context.Context, productID string, delta int) (int, error)
	Delete(ctx context.Context, productID string) error
	// ApplyDecrement 在一个事务中扣减整单库存并写入预占流水。
	// 任一行库存不足时整单回滚并返回 ErrInsufficientStock；
	// orderID 已存在流水时不做任何修改：流水与 cart 一致返回 applied=false，
	// 不一致返回 ErrOrderMismatch。
	ApplyDecrement(ctx context.Context, orderID, source string, cart contract.Cart) (applied bool, err error)
}

// BackorderRepository 维护每个商品的缺货等待客户集合
type BackorderRepository interface {
	// Add 登记客户，已存在时刷新 Seq
	Add(ctx context.Context, productID, customerID string) error
	// Members 按客户 ID 排序返回
	Members(ctx context.Context, productID string) ([]Backorder, error)
	// Remove 只删除 Seq 仍然相同的登记，读取之后重新登记的客户会保留
	Remove(ctx context.Context, productID string, notified ...Backorder) error
}

// StockCache 是可用库存的读缓存
type StockCache interface {
	Get(ctx context.Context, productID string, load func(ctx context.Context) (*StorageRecord, error)) (*StorageRecord, error)
	Evict(ctx context.Context, productIDs ...string)
}
