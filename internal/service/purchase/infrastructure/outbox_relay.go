package infrastructure

import (
	"context"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"shopflow/internal/pkg/logger"
	"shopflow/internal/pkg/metrics"
	"shopflow/internal/pkg/mq"
	"shopflow/internal/service/purchase/domain"
)

// OutboxRelay 周期性地把发件箱中的事件按写入顺序投递到 Kafka。
// 投递失败的事件留在发件箱中，下一轮从它开始重试；消费方按 event-id 头去重。
type OutboxRelay struct {
	store     domain.OutboxStore
	writer    mq.Writer
	interval  time.Duration
	batchSize int
	tracer    trace.Tracer

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewOutboxRelay 的 writer 必须是未绑定 topic 的，topic 由每条事件决定
func NewOutboxRelay(store domain.OutboxStore, writer mq.Writer, interval time.Duration, batchSize int, tracer trace.Tracer) *OutboxRelay {
	if interval <= 0 {
		interval = time.Second
	}
	if batchSize <= 0 {
		batchSize = 100
	}
	return &OutboxRelay{store: store, writer: writer, interval: interval, batchSize: batchSize, tracer: tracer}
}

// RelayOnce 投递一批待发事件，返回成功投递的数量。遇到第一条失败即停止，保证顺序。
func (r *OutboxRelay) RelayOnce(ctx context.Context) (int, error) {
	ctx, span := r.tracer.Start(ctx, "purchase.OutboxRelay")
	defer span.End()

	events, err := r.store.FetchPending(ctx, r.batchSize)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "fetch pending failed")
		return 0, err
	}

	sent := 0
	for _, e := range events {
		header := kafka.Header{Key: mq.HeaderEventID, Value: []byte(e.ID)}
		if err := mq.ProduceToTopic(ctx, r.writer, e.Topic, []byte(e.Key), e.Payload, header); err != nil {
			metrics.OutboxPublished.WithLabelValues(e.Topic, "error").Inc()
			span.RecordError(err)
			span.SetStatus(codes.Error, "publish failed")
			if markErr := r.store.MarkFailed(ctx, e.ID, err.Error()); markErr != nil {
				logger.Ctx(ctx).Error().Err(markErr).Str("event_id", e.ID).Msg("failed to record outbox failure")
			}
			logger.Ctx(ctx).Warn().Err(err).Str("event_id", e.ID).Str("topic", e.Topic).Int("attempts", e.Attempts+1).
				Msg("outbox publish failed, will retry")
			return sent, err
		}

		// 标记失败只会导致重复投递，消费方按 event-id 去重
		if err := r.store.MarkSent(ctx, e.ID, time.Now().UTC()); err != nil {
			span.RecordError(err)
			logger.Ctx(ctx).Error().Err(err).Str("event_id", e.ID).Msg("failed to mark outbox event sent")
			return sent, err
		}
		metrics.OutboxPublished.WithLabelValues(e.Topic, "sent").Inc()
		sent++
	}

	span.SetAttributes(attribute.Int("outbox.sent", sent))
	if pending, err := r.store.CountPending(ctx); err == nil {
		metrics.OutboxPending.Set(float64(pending))
	}
	return sent, nil
}

// Start 在后台按 interval 轮询发件箱
func (r *OutboxRelay) Start(ctx context.Context) error {
	ctx, r.cancel = context.WithCancel(ctx)
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				// 一批发满时立即继续，直到追上
				for {
					n, err := r.RelayOnce(ctx)
					if err != nil || n < r.batchSize || ctx.Err() != nil {
						break
					}
				}
			}
		}
	}()
	logger.Ctx(ctx).Info().Dur("interval", r.interval).Msg("✅ outbox relay started")
	return nil
}

// Stop 停止轮询并等待当前批次结束
func (r *OutboxRelay) Stop(ctx context.Context) {
	if r.cancel == nil {
		return
	}
	r.cancel()
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
	}
	logger.Ctx(ctx).Info().Msg("✅ outbox relay stopped")
}
