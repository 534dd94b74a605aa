package infrastructure

import (
	"context"
	"sort"

	"github.com/pkg/errors"
	"gorm.io/gorm"
	"shopflow/internal/contract"
	"shopflow/internal/service/storage/domain"
)

var errAlreadyApplied = errors.New("order already applied")

// GormStorageRepository 是 StorageRepository 的 GORM 实现
type GormStorageRepository struct {
	db *gorm.DB
}

// NewGormStorageRepository 创建一个新的 GORM 仓储实例
func NewGormStorageRepository(db *gorm.DB) *GormStorageRepository {
	return &GormStorageRepository{db: db}
}

// AutoMigrate 创建或更新 storage 相关的表
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&StorageModel{}, &ReservationModel{})
}

func (r *GormStorageRepository) FindByProductID(ctx context.Context, productID string) (*domain.StorageRecord, error) {
	var model StorageModel
	err := r.db.WithContext(ctx).Where("product_id = ?", productID).First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrProductNotFound
		}
		return nil, errors.Wrapf(err, "find storage of %s", productID)
	}
	return ToDomainStorageRecord(&model), nil
}

func (r *GormStorageRepository) FindAll(ctx context.Context) ([]domain.StorageRecord, error) {
	var models []StorageModel
	if err := r.db.WithContext(ctx).Order("product_id").Find(&models).Error; err != nil {
		return nil, errors.Wrap(err, "find all storage")
	}
	return toDomainStorageRecords(models), nil
}

func (r *GormStorageRepository) FindAtOrBelow(ctx context.Context, threshold int) ([]domain.StorageRecord, error) {
	var models []StorageModel
	err := r.db.WithContext(ctx).Where("quantity <= ?", threshold).Order("product_id").Find(&models).Error
	if err != nil {
		return nil, errors.Wrap(err, "find low stock")
	}
	return toDomainStorageRecords(models), nil
}

func (r *GormStorageRepository) Create(ctx context.Context, record *domain.StorageRecord) error {
	err := r.db.WithContext(ctx).Create(FromDomainStorageRecord(record)).Error
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return domain.ErrProductExists
		}
		return errors.Wrapf(err, "create storage of %s", record.ProductID)
	}
	return nil
}

func (r *GormStorageRepository) SetQuantity(ctx context.Context, productID string, quantity int) error {
	res := r.db.WithContext(ctx).Model(&StorageModel{}).
		Where("product_id = ?", productID).
		UpdateColumn("quantity", quantity)
	if res.Error != nil {
		return errors.Wrapf(res.Error, "set quantity of %s", productID)
	}
	if res.RowsAffected == 0 {
		return domain.ErrProductNotFound
	}
	return nil
}

func (r *GormStorageRepository) Increase(ctx context.Context, productID string, delta int) (int, error) {
	var quantity int
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&StorageModel{}).
			Where("product_id = ?", productID).
			UpdateColumn("quantity", gorm.Expr("quantity + ?", delta))
		if res.Error != nil {
			return errors.Wrapf(res.Error, "increase quantity of %s", productID)
		}
		if res.RowsAffected == 0 {
			return domain.ErrProductNotFound
		}

		var model StorageModel
		if err := tx.Where("product_id = ?", productID).First(&model).Error; err != nil {
			return errors.Wrapf(err, "reload storage of %s", productID)
		}
		quantity = model.Quantity
		return nil
	})
	return quantity, err
}

func (r *GormStorageRepository) Delete(ctx context.Context, productID string) error {
	res := r.db.WithContext(ctx).Where("product_id = ?", productID).Delete(&StorageModel{})
	if res.Error != nil {
		return errors.Wrapf(res.Error, "delete storage of %s", productID)
	}
	if res.RowsAffected == 0 {
		return domain.ErrProductNotFound
	}
	return nil
}

func (r *GormStorageRepository) ApplyDecrement(ctx context.Context, orderID, source string, cart contract.Cart) (bool, error) {
	// 固定加锁顺序，避免并发订单互相死锁
	lines := make(contract.Cart, len(cart))
	copy(lines, cart)
	sort.Slice(lines, func(i, j int) bool { return lines[i].ProductID < lines[j].ProductID })

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing int64
		if err := tx.Model(&ReservationModel{}).Where("order_id = ?", orderID).Count(&existing).Error; err != nil {
			return errors.Wrap(err, "count reservations")
		}
		if existing > 0 {
			return errAlreadyApplied
		}

		rows := make([]ReservationModel, 0, len(lines))
		for _, line := range lines {
			res := tx.Model(&StorageModel{}).
				Where("product_id = ? AND quantity >= ?", line.ProductID, line.Quantity).
				UpdateColumn("quantity", gorm.Expr("quantity - ?", line.Quantity))
			if res.Error != nil {
				return errors.Wrapf(res.Error, "decrement %s", line.ProductID)
			}
			if res.RowsAffected == 0 {
				return errors.Wrapf(domain.ErrInsufficientStock, "product %s", line.ProductID)
			}
			rows = append(rows, ReservationModel{
				OrderID:   orderID,
				ProductID: line.ProductID,
				Quantity:  line.Quantity,
				Source:    source,
			})
		}

		if err := tx.Create(&rows).Error; err != nil {
			// 同一订单并发提交，另一方已写入流水
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return errAlreadyApplied
			}
			return errors.Wrap(err, "insert reservations")
		}
		return nil
	})
	if errors.Is(err, errAlreadyApplied) {
		// 流水写入后不再修改，事务外比对即可
		if err := r.matchLedger(ctx, orderID, lines); err != nil {
			return false, err
		}
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// matchLedger 要求已有流水与按商品排序后的 lines 逐行一致
func (r *GormStorageRepository) matchLedger(ctx context.Context, orderID string, lines contract.Cart) error {
	var rows []ReservationModel
	err := r.db.WithContext(ctx).Where("order_id = ?", orderID).Order("product_id").Find(&rows).Error
	if err != nil {
		return errors.Wrap(err, "load reservations")
	}
	if len(rows) != len(lines) {
		return errors.Wrapf(domain.ErrOrderMismatch, "order %s", orderID)
	}
	for i, row := range rows {
		if row.ProductID != lines[i].ProductID || row.Quantity != lines[i].Quantity {
			return errors.Wrapf(domain.ErrOrderMismatch, "order %s, product %s", orderID, lines[i].ProductID)
		}
	}
	return nil
}
