package domain

import (
	"errors"
	"fmt"
)

var (
	ErrProductNotFound   = errors.New("product not found in storage")
	ErrProductExists     = errors.New("product already exists in storage")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrInvalidQuantity   = errors.New("quantity must be positive")
	// ErrOrderMismatch 表示 orderId 已经用另一份购物车预占过
	ErrOrderMismatch     = errors.New("order id already used with a different cart")
)

// 库存扣减来源，记录在预占流水中
const (
	SourceReservation    = "reservation"
	SourceOrderConfirmed = "order-confirmed"
)

// Backorder 是一次缺货登记。同一客户每次登记都会拿到更大的 Seq。
type Backorder struct {
	CustomerID string
	Seq        int64
}

// StorageRecord 是某个商品的可用库存
type StorageRecord struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

// Covers 判断库存是否满足需求数量
func (r *StorageRecord) Covers(required int) bool {
	return r.Quantity >= required
}

// NewStorageRecord 创建库存记录，数量不能为负
func NewStorageRecord(productID string, quantity int) (*StorageRecord, error) {
	if productID == "" {
		return nil, fmt.Errorf("%w: empty product id", ErrProductNotFound)
	}
	if quantity < 0 {
		return nil, ErrInvalidQuantity
	}
	return &StorageRecord{ProductID: productID, Quantity: quantity}, nil
}

// StorageView 是带商品目录信息的库存视图
type StorageView struct {
	ProductID string `json:"productId"`
	Name      string `json:"name,omitempty"`
	Price     string `json:"cost,omitempty"`
	Quantity  int    `json:"quantity"`
}
