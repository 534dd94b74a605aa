package domain

import "shopflow/internal/contract"

// LoyaltyRule 判断一个已确认的订单是否给客户发放忠诚度折扣
type LoyaltyRule interface {
	Eligible(order contract.Order) (bool, error)
}
