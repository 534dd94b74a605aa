package application

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"shopflow/internal/contract"
	"shopflow/internal/pkg/logger"
	"shopflow/internal/pkg/metrics"
	"shopflow/internal/service/storage/domain"
	"shopflow/internal/service/storage/domain/port"
)

// ScanGuard 保证多副本部署时同一个调度时刻只有一个副本执行扫描
type ScanGuard interface {
	RunOnce(ctx context.Context, token string, fn func(ctx context.Context) error) (bool, error)
}

// LowStockScanner 按 cron 表达式扫描库存，把数量 <= threshold 的商品作为低库存告警发布
type LowStockScanner struct {
	repo      domain.StorageRepository
	publisher port.LowStockPublisher
	guard     ScanGuard
	threshold int
	schedule  string
	tracer    trace.Tracer

	cron *cron.Cron
	now  func() time.Time
}

// NewLowStockScanner 创建扫描器。guard 为 nil 时每次调度都会执行。
func NewLowStockScanner(repo domain.StorageRepository, publisher port.LowStockPublisher, guard ScanGuard, threshold int, schedule string, tracer trace.Tracer) (*LowStockScanner, error) {
	if _, err := cron.ParseStandard(schedule); err != nil {
		return nil, fmt.Errorf("invalid low stock schedule %q: %w", schedule, err)
	}
	return &LowStockScanner{
		repo:      repo,
		publisher: publisher,
		guard:     guard,
		threshold: threshold,
		schedule:  schedule,
		tracer:    tracer,
		now:       time.Now,
	}, nil
}

// Scan 执行一次扫描。没有低库存商品时不发布。
func (s *LowStockScanner) Scan(ctx context.Context) (contract.LowStockAlert, error) {
	ctx, span := s.tracer.Start(ctx, "storage.LowStockScan")
	defer span.End()

	records, err := s.repo.FindAtOrBelow(ctx, s.threshold)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "low stock query failed")
		return contract.LowStockAlert{}, err
	}

	alert := contract.LowStockAlert{Items: make([]contract.LowStockItem, 0, len(records))}
	for _, r := range records {
		alert.Items = append(alert.Items, contract.LowStockItem{ProductID: r.ProductID, Quantity: r.Quantity})
	}
	metrics.LowStockItems.Set(float64(len(alert.Items)))
	span.SetAttributes(attribute.Int("low_stock.items", len(alert.Items)))

	if len(alert.Items) == 0 {
		return alert, nil
	}
	if err := s.publisher.PublishLowStock(ctx, alert); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "low stock publish failed")
		return alert, err
	}
	logger.Ctx(ctx).Info().Int("items", len(alert.Items)).Int("threshold", s.threshold).Msg("low stock alert published")
	return alert, nil
}

func (s *LowStockScanner) runScheduled(ctx context.Context) {
	if s.guard == nil {
		if _, err := s.Scan(ctx); err != nil {
			logger.Ctx(ctx).Error().Err(err).Msg("low stock scan failed")
		}
		return
	}

	// 同一分钟内被触发的副本拿到相同的 token
	token := "low-stock-" + s.now().UTC().Format("2006-01-02T15:04")
	ran, err := s.guard.RunOnce(ctx, token, func(ctx context.Context) error {
		_, err := s.Scan(ctx)
		return err
	})
	if err != nil {
		logger.Ctx(ctx).Error().Err(err).Str("token", token).Msg("low stock scan failed")
		return
	}
	if !ran {
		logger.Ctx(ctx).Debug().Str("token", token).Msg("low stock scan handled by another replica")
	}
}

// Start 注册 cron 任务并在后台运行
func (s *LowStockScanner) Start(ctx context.Context) error {
	s.cron = cron.New()
	if _, err := s.cron.AddFunc(s.schedule, func() { s.runScheduled(ctx) }); err != nil {
		return err
	}
	s.cron.Start()
	logger.Ctx(ctx).Info().Str("schedule", s.schedule).Msg("✅ low stock scanner started")
	return nil
}

// Stop 停止调度并等待正在执行的扫描结束
func (s *LowStockScanner) Stop(ctx context.Context) {
	if s.cron == nil {
		return
	}
	select {
	case <-s.cron.Stop().Done():
	case <-ctx.Done():
	}
	logger.Ctx(ctx).Info().Msg("✅ low stock scanner stopped")
}
