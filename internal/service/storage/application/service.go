// internal/service/storage/application/service.go
package application

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"shopflow/internal/contract"
	"shopflow/internal/pkg/logger"
	"shopflow/internal/pkg/metrics"
	"shopflow/internal/service/storage/domain"
	"shopflow/internal/service/storage/domain/port"
)

// StorageService 负责库存的查询、预占、扣减、补货以及缺货登记
type StorageService struct {
	repo       domain.StorageRepository
	backorders domain.BackorderRepository
	cache      domain.StockCache
	catalog    port.CatalogResolver
	notifier   port.CustomerNotifier
	tracer     trace.Tracer
}

// NewStorageService 创建库存服务。cache 可以为 nil，此时所有读取直接查库。
func NewStorageService(repo domain.StorageRepository, backorders domain.BackorderRepository, cache domain.StockCache, catalog port.CatalogResolver, notifier port.CustomerNotifier, tracer trace.Tracer) *StorageService {
	return &StorageService{
		repo:       repo,
		backorders: backorders,
		cache:      cache,
		catalog:    catalog,
		notifier:   notifier,
		tracer:     tracer,
	}
}

func (s *StorageService) load(ctx context.Context, productID string) (*domain.StorageRecord, error) {
	if s.cache == nil {
		return s.repo.FindByProductID(ctx, productID)
	}
	return s.cache.Get(ctx, productID, func(ctx context.Context) (*domain.StorageRecord, error) {
		return s.repo.FindByProductID(ctx, productID)
	})
}

func (s *StorageService) evict(ctx context.Context, productIDs ...string) {
	if s.cache != nil {
		s.cache.Evict(ctx, productIDs...)
	}
}

// available 返回商品当前可用数量，库中没有的商品视为 0
func (s *StorageService) available(ctx context.Context, productID string) (int, error) {
	record, err := s.load(ctx, productID)
	if err != nil {
		if errors.Is(err, domain.ErrProductNotFound) {
			return 0, nil
		}
		return 0, err
	}
	return record.Quantity, nil
}

// IsInStorage 判断商品库存是否 >= required。未知商品返回 false。
func (s *StorageService) IsInStorage(ctx context.Context, productID string, required int) (bool, error) {
	ctx, span := s.tracer.Start(ctx, "storage.IsInStorage")
	defer span.End()
	span.SetAttributes(attribute.String("product.id", productID), attribute.Int("quantity.required", required))

	record, err := s.load(ctx, productID)
	if err != nil {
		if errors.Is(err, domain.ErrProductNotFound) {
			span.AddEvent("product not in storage")
			return false, nil
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "storage lookup failed")
		return false, err
	}
	return record.Covers(required), nil
}

// IsOrderInStorage 判断整单是否都有货，遇到第一行不满足即返回 false。只读。
func (s *StorageService) IsOrderInStorage(ctx context.Context, cart contract.Cart) (bool, error) {
	ctx, span := s.tracer.Start(ctx, "storage.IsOrderInStorage")
	defer span.End()

	if err := cart.Validate(); err != nil {
		return false, err
	}
	for _, line := range cart {
		ok, err := s.IsInStorage(ctx, line.ProductID, line.Quantity)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "availability check failed")
			return false, err
		}
		if !ok {
			span.SetAttributes(attribute.String("shortage.first", line.ProductID))
			return false, nil
		}
	}
	return true, nil
}

// FindOutOfStorage 扫描整单，返回所有 需求 > 可用 的行 (productId -> 需求数量)，
// 并把 customerID 登记到每个缺货商品的等待集合中。
func (s *StorageService) FindOutOfStorage(ctx context.Context, cart contract.Cart, customerID string) (map[string]int, error) {
	ctx, span := s.tracer.Start(ctx, "storage.FindOutOfStorage")
	defer span.End()
	span.SetAttributes(attribute.String("customer.id", customerID))

	if err := cart.Validate(); err != nil {
		return nil, err
	}

	shortage := make(map[string]int)
	for _, line := range cart {
		available, err := s.available(ctx, line.ProductID)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "availability lookup failed")
			return nil, err
		}
		if line.Quantity <= available {
			continue
		}
		shortage[line.ProductID] = line.Quantity

		if customerID == "" {
			continue
		}
		if err := s.backorders.Add(ctx, line.ProductID, customerID); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "backorder registration failed")
			return nil, err
		}
		metrics.Backorders.WithLabelValues("added").Inc()
	}

	span.SetAttributes(attribute.Int("shortage.lines", len(shortage)))
	logger.Ctx(ctx).Info().
		Str("customer_id", customerID).
		Int("shortage_lines", len(shortage)).
		Msg("out-of-storage lines recorded")
	return shortage, nil
}

// Reserve 原子地为订单预占整单库存，全部成功或全部不变。
// 同一 orderID 带同样的购物车重复提交时返回 AlreadyApplied=true 且不再扣减；购物车不同时返回 ErrOrderMismatch。
func (s *StorageService) Reserve(ctx context.Context, orderID, customerID string, cart contract.Cart) (contract.ReserveResult, error) {
	ctx, span := s.tracer.Start(ctx, "storage.Reserve")
	defer span.End()
	span.SetAttributes(attribute.String("order.id", orderID), attribute.String("customer.id", customerID))

	result := contract.ReserveResult{OrderID: orderID}
	if orderID == "" {
		return result, fmt.Errorf("%w: order id is required", contract.ErrInvalidCart)
	}
	if err := cart.Validate(); err != nil {
		return result, err
	}
	applied, err := s.decrement(ctx, span, orderID, domain.SourceReservation, cart)
	if err != nil {
		return result, err
	}
	result.AlreadyApplied = !applied
	return result, nil
}

// ReduceQuantity 处理 order-confirmed 事件。按 orderId 去重，已预占或已消费的订单不会再次扣减。
func (s *StorageService) ReduceQuantity(ctx context.Context, order contract.Order) error {
	ctx, span := s.tracer.Start(ctx, "storage.ReduceQuantity", trace.WithSpanKind(trace.SpanKindConsumer))
	defer span.End()
	span.SetAttributes(attribute.String("order.id", order.OrderID))

	if order.OrderID == "" {
		return fmt.Errorf("%w: order id is required", contract.ErrInvalidCart)
	}
	if err := order.Cart.Validate(); err != nil {
		return err
	}
	_, err := s.decrement(ctx, span, order.OrderID, domain.SourceOrderConfirmed, order.Cart)
	return err
}

func (s *StorageService) decrement(ctx context.Context, span trace.Span, orderID, source string, cart contract.Cart) (bool, error) {
	applied, err := s.repo.ApplyDecrement(ctx, orderID, source, cart)
	if err != nil {
		result := "error"
		switch {
		case errors.Is(err, domain.ErrInsufficientStock):
			result = "insufficient"
		case errors.Is(err, domain.ErrOrderMismatch):
			result = "mismatch"
		}
		metrics.Reservations.WithLabelValues(source, result).Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, "stock decrement failed")
		logger.Ctx(ctx).Warn().Err(err).Str("order_id", orderID).Str("source", source).Msg("stock decrement rejected")
		return false, err
	}

	if !applied {
		metrics.Reservations.WithLabelValues(source, "duplicate").Inc()
		span.AddEvent("order already applied, skipping")
		logger.Ctx(ctx).Info().Str("order_id", orderID).Str("source", source).Msg("order already applied to storage")
		return false, nil
	}

	s.evict(ctx, cart.ProductIDs()...)
	metrics.Reservations.WithLabelValues(source, "applied").Inc()
	span.AddEvent("stock decremented")
	return true, nil
}

// RaiseQuantity 原子地增加库存，然后通知等待该商品的客户。
// 通知成功后只移除本次通知到的那一次登记，通知期间重新登记的客户会保留；
// 通知失败时保留等待记录，补货本身不回滚。
func (s *StorageService) RaiseQuantity(ctx context.Context, productID, productName string, added int) (int, error) {
	ctx, span := s.tracer.Start(ctx, "storage.RaiseQuantity")
	defer span.End()
	span.SetAttributes(attribute.String("product.id", productID), attribute.Int("quantity.added", added))

	if added <= 0 {
		return 0, domain.ErrInvalidQuantity
	}

	quantity, err := s.repo.Increase(ctx, productID, added)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "restock failed")
		return 0, err
	}
	s.evict(ctx, productID)
	metrics.Restocks.Inc()
	logger.Ctx(ctx).Info().Str("product_id", productID).Int("added", added).Int("quantity", quantity).Msg("product restocked")

	s.notifyWaiting(ctx, productID, productName)
	return quantity, nil
}

func (s *StorageService) notifyWaiting(ctx context.Context, productID, productName string) {
	ctx, span := s.tracer.Start(ctx, "storage.NotifyWaitingCustomers")
	defer span.End()

	waiting, err := s.backorders.Members(ctx, productID)
	if err != nil {
		span.RecordError(err)
		logger.Ctx(ctx).Error().Err(err).Str("product_id", productID).Msg("failed to read backorders")
		return
	}
	if len(waiting) == 0 {
		return
	}

	if productName == "" {
		productName = s.resolveName(ctx, productID)
	}
	notices := make(map[string]string, len(waiting))
	for _, b := range waiting {
		notices[b.CustomerID] = productName
	}

	if err := s.notifier.NotifyRestock(ctx, notices); err != nil {
		metrics.CollaboratorFailures.WithLabelValues("customer.identify").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, "restock notification failed")
		logger.Ctx(ctx).Error().Err(err).Str("product_id", productID).Int("waiting", len(waiting)).
			Msg("restock notification failed, backorders kept")
		return
	}

	if err := s.backorders.Remove(ctx, productID, waiting...); err != nil {
		span.RecordError(err)
		logger.Ctx(ctx).Error().Err(err).Str("product_id", productID).Msg("failed to clear notified backorders")
		return
	}
	metrics.Backorders.WithLabelValues("notified").Add(float64(len(waiting)))
	span.SetAttributes(attribute.Int("customers.notified", len(waiting)))
}

func (s *StorageService) resolveName(ctx context.Context, productID string) string {
	products, err := s.catalog.FindProducts(ctx, []string{productID})
	if err != nil {
		logger.Ctx(ctx).Warn().Err(err).Str("product_id", productID).Msg("catalog lookup failed, using product id as name")
		return productID
	}
	if p, ok := products[productID]; ok && p.Name != "" {
		return p.Name
	}
	return productID
}

// SaveProduct 新建库存记录
func (s *StorageService) SaveProduct(ctx context.Context, productID string, quantity int) (*domain.StorageRecord, error) {
	record, err := domain.NewStorageRecord(productID, quantity)
	if err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, record); err != nil {
		return nil, err
	}
	s.evict(ctx, productID)
	return record, nil
}

// UpdateProduct 直接设置库存数量
func (s *StorageService) UpdateProduct(ctx context.Context, productID string, quantity int) (*domain.StorageRecord, error) {
	record, err := domain.NewStorageRecord(productID, quantity)
	if err != nil {
		return nil, err
	}
	if err := s.repo.SetQuantity(ctx, productID, quantity); err != nil {
		return nil, err
	}
	s.evict(ctx, productID)
	return record, nil
}

func (s *StorageService) FindByID(ctx context.Context, productID string) (*domain.StorageRecord, error) {
	return s.load(ctx, productID)
}

func (s *StorageService) DeleteByID(ctx context.Context, productID string) error {
	if err := s.repo.Delete(ctx, productID); err != nil {
		return err
	}
	s.evict(ctx, productID)
	return nil
}

// FindAllWithCatalog 返回全部库存并补齐商品目录信息。目录不可用时只返回库存字段。
func (s *StorageService) FindAllWithCatalog(ctx context.Context) ([]domain.StorageView, error) {
	ctx, span := s.tracer.Start(ctx, "storage.FindAllWithCatalog")
	defer span.End()

	records, err := s.repo.FindAll(ctx)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	ids := make([]string, 0, len(records))
	for _, r := range records {
		ids = append(ids, r.ProductID)
	}
	products, err := s.catalog.FindProducts(ctx, ids)
	if err != nil {
		metrics.CollaboratorFailures.WithLabelValues("product.name-identifier").Inc()
		span.RecordError(err)
		logger.Ctx(ctx).Warn().Err(err).Msg("catalog unavailable, returning storage rows only")
	}

	views := make([]domain.StorageView, 0, len(records))
	for _, r := range records {
		view := domain.StorageView{ProductID: r.ProductID, Quantity: r.Quantity}
		if p, ok := products[r.ProductID]; ok {
			view.Name = p.Name
			view.Price = p.Price.String()
		}
		views = append(views, view)
	}
	return views, nil
}
