// internal/service/purchase/application/service.go
package application

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
	"shopflow/internal/contract"
	"shopflow/internal/pkg/logger"
	"shopflow/internal/pkg/metrics"
	"shopflow/internal/service/purchase/domain"
	"shopflow/internal/service/purchase/domain/port"
)

// PurchaseService 编排一次购买：检查库存、预占、把订单确认/邮件/优惠事件写入发件箱、清空购物车
type PurchaseService struct {
	storage     port.StorageGateway
	customers   port.CustomerDirectory
	catalog     port.CatalogResolver
	outbox      domain.OutboxStore
	loyalty     domain.LoyaltyRule
	loyaltyRate decimal.Decimal
	tracer      trace.Tracer
}

// NewPurchaseService 创建服务。loyalty 为 nil 时不发放忠诚度折扣。
func NewPurchaseService(storage port.StorageGateway, customers port.CustomerDirectory, catalog port.CatalogResolver, outbox domain.OutboxStore, loyalty domain.LoyaltyRule, loyaltyRate decimal.Decimal, tracer trace.Tracer) *PurchaseService {
	return &PurchaseService{
		storage:     storage,
		customers:   customers,
		catalog:     catalog,
		outbox:      outbox,
		loyalty:     loyalty,
		loyaltyRate: loyaltyRate,
		tracer:      tracer,
	}
}

// Purchase 处理一次购买。缺货时返回缺货明细；库存在检查和预占之间被并发修改时返回 ErrReservationConflict。
// 调用方可以带上 orderId 重试：预占按 orderId 幂等，订单事件的 ID 由 orderId 决定，重试不会产生新事件。
func (s *PurchaseService) Purchase(ctx context.Context, order contract.Order) (*contract.InventoryStatus, error) {
	ctx, span := s.tracer.Start(ctx, "purchase.Purchase")
	defer span.End()

	if err := order.Cart.Validate(); err != nil {
		metrics.Purchases.WithLabelValues("invalid").Inc()
		return nil, err
	}
	if order.CustomerID == "" {
		metrics.Purchases.WithLabelValues("invalid").Inc()
		return nil, fmt.Errorf("%w: customer id is required", contract.ErrInvalidCart)
	}
	callerOrderID := order.OrderID != ""
	if !callerOrderID {
		order.OrderID = uuid.NewString()
	}
	span.SetAttributes(
		attribute.String("order.id", order.OrderID),
		attribute.String("customer.id", order.CustomerID),
		attribute.Int("cart.lines", len(order.Cart)),
		attribute.Bool("order.caller_id", callerOrderID),
	)
	log := logger.Ctx(ctx).With().Str("order_id", order.OrderID).Str("customer_id", order.CustomerID).Logger()

	// 1. 只读预检查。带 orderId 的请求可能是已预占订单的重试，直接交给预占判断
	if !callerOrderID {
		inStorage, err := s.storage.IsOrderInStorage(ctx, order.Cart)
		if err != nil {
			return nil, s.fail(span, "availability check failed", err)
		}
		if !inStorage {
			span.AddEvent("order not in storage")
			return s.shortage(ctx, span, order)
		}
	}

	// 2. 原子预占，检查和扣减之间的竞争在这里被发现
	reserved, err := s.storage.Reserve(ctx, order.OrderID, order.CustomerID, order.Cart)
	if err != nil {
		if errors.Is(err, domain.ErrOrderIDReused) {
			metrics.Purchases.WithLabelValues("invalid").Inc()
			span.RecordError(err)
			span.SetStatus(codes.Error, "order id reused")
			return nil, err
		}
		if !errors.Is(err, domain.ErrReservationRejected) {
			return nil, s.fail(span, "reservation failed", err)
		}
		span.AddEvent("reservation rejected, recomputing shortage")
		status, err := s.shortage(ctx, span, order)
		if err != nil {
			return nil, err
		}
		if len(status.OutOfStorageProducts) == 0 {
			metrics.Purchases.WithLabelValues("conflict").Inc()
			log.Warn().Msg("reservation rejected but no shortage found, reporting conflict")
			span.SetStatus(codes.Error, "reservation conflict")
			return nil, domain.ErrReservationConflict
		}
		return status, nil
	}
	if reserved.AlreadyApplied {
		span.AddEvent("order already reserved, completing confirmation")
		log.Info().Msg("retry of a reserved order")
	} else {
		span.AddEvent("stock reserved")
	}

	// 3. 副作用写入发件箱，由 relay 异步投递。失败时库存已预占，带着 orderId 返回以便重试
	events, err := s.confirmationEvents(ctx, order)
	if err != nil {
		return nil, s.fail(span, "failed to build events", &domain.UnconfirmedOrderError{OrderID: order.OrderID, Err: err})
	}
	if err := s.outbox.Append(ctx, events...); err != nil {
		log.Error().Err(err).Msg("order reserved but outbox write failed")
		return nil, s.fail(span, "failed to persist outbox", &domain.UnconfirmedOrderError{OrderID: order.OrderID, Err: err})
	}

	// 4. 清空购物车失败不影响购买结果
	if err := s.customers.CleanCart(ctx, order.CustomerID); err != nil {
		metrics.CollaboratorFailures.WithLabelValues("customer.clean-cart").Inc()
		span.RecordError(err)
		log.Warn().Err(err).Msg("failed to clean cart")
	}

	metrics.Purchases.WithLabelValues("confirmed").Inc()
	log.Info().Int("events", len(events)).Str("total_cost", order.TotalCost.String()).Msg("purchase confirmed")
	return &contract.InventoryStatus{OrderID: order.OrderID, IsOrderInStorage: true}, nil
}

func (s *PurchaseService) shortage(ctx context.Context, span trace.Span, order contract.Order) (*contract.InventoryStatus, error) {
	shortage, err := s.storage.FindOutOfStorage(ctx, order.Cart, order.CustomerID)
	if err != nil {
		return nil, s.fail(span, "shortage lookup failed", err)
	}
	if len(shortage) > 0 {
		metrics.Purchases.WithLabelValues("shortage").Inc()
		logger.Ctx(ctx).Info().
			Str("order_id", order.OrderID).
			Interface("out_of_storage", shortage).
			Msg("purchase rejected, products out of storage")
	}
	span.SetAttributes(attribute.Int("shortage.lines", len(shortage)))
	return &contract.InventoryStatus{IsOrderInStorage: false, OutOfStorageProducts: shortage}, nil
}

func (s *PurchaseService) fail(span trace.Span, msg string, err error) error {
	metrics.Purchases.WithLabelValues("error").Inc()
	span.RecordError(err)
	span.SetStatus(codes.Error, msg)
	return err
}

func (s *PurchaseService) confirmationEvents(ctx context.Context, order contract.Order) ([]*domain.OutboxEvent, error) {
	confirmed, err := domain.NewOrderEvent(order.OrderID, contract.TopicOrderConfirmed, order.OrderID, order)
	if err != nil {
		return nil, err
	}
	mail, err := domain.NewOrderEvent(order.OrderID, contract.TopicMail, order.OrderID, s.BuildMail(ctx, order))
	if err != nil {
		return nil, err
	}
	events := []*domain.OutboxEvent{confirmed, mail}

	award, ok := s.loyaltyAward(ctx, order)
	if ok {
		sale, err := domain.NewOrderEvent(order.OrderID, contract.TopicLoyaltySale, order.CustomerID, award)
		if err != nil {
			return nil, err
		}
		events = append(events, sale)
	}
	return events, nil
}

// loyaltyAward 规则求值失败只记录日志，不影响购买
func (s *PurchaseService) loyaltyAward(ctx context.Context, order contract.Order) (contract.SaleAward, bool) {
	if s.loyalty == nil {
		return contract.SaleAward{}, false
	}
	eligible, err := s.loyalty.Eligible(order)
	if err != nil {
		logger.Ctx(ctx).Error().Err(err).Str("order_id", order.OrderID).Msg("loyalty rule evaluation failed")
		return contract.SaleAward{}, false
	}
	if !eligible {
		return contract.SaleAward{}, false
	}
	return contract.SaleAward{CustomerID: order.CustomerID, DiscountRate: s.loyaltyRate}, true
}

// BuildMail 并发查询客户联系方式和商品名称。客户不存在时生成没有收件人和称呼的邮件，
// 查不到名称的商品不出现在列表中。
func (s *PurchaseService) BuildMail(ctx context.Context, order contract.Order) contract.MailMessage {
	ctx, span := s.tracer.Start(ctx, "purchase.BuildMail")
	defer span.End()

	var (
		customer *contract.Customer
		products map[string]contract.Product
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		c, err := s.customers.FindContact(gctx, order.CustomerID)
		if err != nil {
			metrics.CollaboratorFailures.WithLabelValues("customer.contact").Inc()
			span.RecordError(err)
			logger.Ctx(ctx).Warn().Err(err).Str("customer_id", order.CustomerID).Msg("customer lookup failed, sending degraded mail")
			return nil
		}
		customer = c
		return nil
	})
	g.Go(func() error {
		var missing []string
		for _, line := range order.Cart {
			if line.Name == "" {
				missing = append(missing, line.ProductID)
			}
		}
		if len(missing) == 0 {
			return nil
		}
		p, err := s.catalog.FindProducts(gctx, missing)
		if err != nil {
			metrics.CollaboratorFailures.WithLabelValues("product.name-identifier").Inc()
			span.RecordError(err)
			logger.Ctx(ctx).Warn().Err(err).Msg("catalog lookup failed, product names skipped")
			return nil
		}
		products = p
		return nil
	})
	_ = g.Wait()

	names := make([]string, 0, len(order.Cart))
	for _, line := range order.Cart {
		name := line.Name
		if name == "" {
			name = products[line.ProductID].Name
		}
		if name != "" {
			names = append(names, name)
		}
	}

	mail := contract.MailMessage{
		TemplateData: contract.MailData{
			Cost:     order.TotalCost,
			ID:       order.OrderID,
			Products: names,
		},
	}
	if customer != nil {
		mail.To = customer.Email
		mail.TemplateData.Name = customer.Name
	}
	return mail
}

// SendPurchaseMail 为一个订单重新生成购买邮件并写入发件箱
func (s *PurchaseService) SendPurchaseMail(ctx context.Context, order contract.Order) error {
	ctx, span := s.tracer.Start(ctx, "purchase.SendPurchaseMail")
	defer span.End()

	if order.OrderID == "" {
		return fmt.Errorf("%w: order id is required", contract.ErrInvalidCart)
	}
	if err := order.Cart.Validate(); err != nil {
		return err
	}

	event, err := domain.NewOutboxEvent(contract.TopicMail, order.OrderID, s.BuildMail(ctx, order))
	if err != nil {
		span.RecordError(err)
		return err
	}
	if err := s.outbox.Append(ctx, event); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to persist mail")
		return err
	}
	logger.Ctx(ctx).Info().Str("order_id", order.OrderID).Msg("purchase mail queued")
	return nil
}
