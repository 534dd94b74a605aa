package infrastructure

import "time"

// StorageModel 对应数据库中的 storage 表
type StorageModel struct {
	ID        uint   `gorm:"primaryKey"`
	ProductID string `gorm:"type:varchar(64);uniqueIndex;not null"`
	Quantity  int    `gorm:"not null;default:0"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// TableName 指定 GORM 应该使用的表名
func (StorageModel) TableName() string {
	return "storage"
}

// ReservationModel 对应 storage_reservations 表，(order_id, product_id) 为主键，
// 用来保证同一订单只扣减一次库存
type ReservationModel struct {
	OrderID   string `gorm:"primaryKey;type:varchar(64)"`
	ProductID string `gorm:"primaryKey;type:varchar(64)"`
	Quantity  int    `gorm:"not null"`
	Source    string `gorm:"type:varchar(32);not null"`
	CreatedAt time.Time
}

func (ReservationModel) TableName() string {
	return "storage_reservations"
}
