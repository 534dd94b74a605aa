// Package contract 定义 purchase / storage / notification 之间共享的数据结构和 topic 名称。
package contract

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

const (
	TopicOrderConfirmed = "order-confirmed"
	TopicLoyaltySale    = "loyalty-sale"
	TopicMail           = "mail"
	TopicLowStockAlert  = "low-stock-alert"
)

var ErrInvalidCart = errors.New("invalid cart")

// CartLine 是购物车中的一行。Name 可选，缺失时由商品目录补齐。
type CartLine struct {
	ProductID string `json:"productId"`
	Name      string `json:"name,omitempty"`
	Quantity  int    `json:"quantity"`
}

type Cart []CartLine

// Validate 要求购物车非空、商品不重复且数量为正
func (c Cart) Validate() error {
	if len(c) == 0 {
		return fmt.Errorf("%w: cart is empty", ErrInvalidCart)
	}
	seen := make(map[string]struct{}, len(c))
	for _, line := range c {
		if line.ProductID == "" {
			return fmt.Errorf("%w: product id is required", ErrInvalidCart)
		}
		if line.Quantity <= 0 {
			return fmt.Errorf("%w: quantity of %s must be positive", ErrInvalidCart, line.ProductID)
		}
		if _, dup := seen[line.ProductID]; dup {
			return fmt.Errorf("%w: duplicate product %s", ErrInvalidCart, line.ProductID)
		}
		seen[line.ProductID] = struct{}{}
	}
	return nil
}

func (c Cart) ProductIDs() []string {
	ids := make([]string, 0, len(c))
	for _, line := range c {
		ids = append(ids, line.ProductID)
	}
	return ids
}

// Order 是确认后的订单快照，发出后不再修改
type Order struct {
	OrderID    string          `json:"orderId"`
	CustomerID string          `json:"customerId"`
	Cart       Cart            `json:"cart"`
	TotalCost  decimal.Decimal `json:"totalCost"`
}

// InventoryStatus 是一次购买的结果。库存充足时不带缺货明细，OrderID 只在确认时返回。
type InventoryStatus struct {
	OrderID              string         `json:"orderId,omitempty"`
	IsOrderInStorage     bool           `json:"isOrderInStorage"`
	OutOfStorageProducts map[string]int `json:"outOfStorageProducts,omitempty"`
}

type SaleAward struct {
	CustomerID   string          `json:"customerId"`
	DiscountRate decimal.Decimal `json:"discountRate"`
}

// MailData 的字段名即邮件模板中的变量名
type MailData struct {
	Cost     decimal.Decimal `json:"Cost"`
	ID       string          `json:"ID"`
	Products []string        `json:"Products"`
	Name     string          `json:"Name,omitempty"`
}

type MailMessage struct {
	To           string   `json:"to"`
	TemplateData MailData `json:"templateData"`
}

type LowStockItem struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

type LowStockAlert struct {
	Items []LowStockItem `json:"items"`
}

// ReserveRequest 是 purchase 调用 storage 预占库存的请求体
type ReserveRequest struct {
	OrderID    string `json:"orderId"`
	CustomerID string `json:"customerId"`
	Cart       Cart   `json:"cart"`
}

// ReserveResult 是预占的结果。AlreadyApplied 表示该 orderId 之前已经用同样的购物车预占过。
type ReserveResult struct {
	OrderID        string `json:"orderId"`
	AlreadyApplied bool   `json:"alreadyApplied"`
}

// Product 是商品目录返回的商品信息
type Product struct {
	ID    string          `json:"id"`
	Name  string          `json:"name"`
	Price decimal.Decimal `json:"cost"`
}

// Customer 是客户服务返回的联系信息
type Customer struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}
