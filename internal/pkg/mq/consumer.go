// internal/pkg/mq/consumer.go
package mq

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"shopflow/internal/pkg/logger"
	"shopflow/internal/pkg/metrics"
)

// MessageHandler 处理一条消息。返回错误时消息会被交给 FailureHandler。
type MessageHandler func(ctx context.Context, msg kafka.Message) error

const (
	dltRetryBackoff    = time.Second
	dltRetryMaxBackoff = 30 * time.Second
)

// Consumer 是通用的消费循环：FetchMessage -> 处理 -> 失败转死信 -> CommitMessages。
// 死信写入失败时不提交 offset，原地退避重试。
type Consumer struct {
	topic          string
	reader         Reader
	handler        MessageHandler
	failureHandler *FailureHandler
	tracer         trace.Tracer
	backoff        time.Duration

	wg       sync.WaitGroup
	stopped  atomic.Bool
	done     chan struct{}
	stopOnce sync.Once
}

func NewConsumer(topic string, reader Reader, handler MessageHandler, failureHandler *FailureHandler, tracer trace.Tracer) *Consumer {
	return &Consumer{
		topic:          topic,
		reader:         reader,
		handler:        handler,
		failureHandler: failureHandler,
		tracer:         tracer,
		backoff:        dltRetryBackoff,
		done:           make(chan struct{}),
	}
}

// Start 在后台 goroutine 中开始消费，立即返回
func (c *Consumer) Start(ctx context.Context) error {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		logger.Ctx(ctx).Info().Str("topic", c.topic).Msg("✅ Kafka consumer started.")
		for {
			if c.stopped.Load() {
				return
			}
			msg, err := c.reader.FetchMessage(ctx)
			if err != nil {
				if ctx.Err() != nil || c.stopped.Load() {
					logger.Ctx(ctx).Info().Str("topic", c.topic).Msg("🛑 Kafka consumer shutting down.")
					return
				}
				logger.Ctx(ctx).Error().Err(err).Str("topic", c.topic).Msg("could not fetch message, retrying")
				time.Sleep(time.Second)
				continue
			}

			// 成功或已转入死信才提交 offset；死信没写进去就停止了，留给重启后重新投递
			if !c.process(ctx, msg) {
				logger.Ctx(ctx).Warn().Str("topic", c.topic).Int64("offset", msg.Offset).Msg("consumer stopped before message was settled, offset not committed")
				return
			}
			if err := c.reader.CommitMessages(ctx, msg); err != nil {
				logger.Ctx(ctx).Error().Err(err).Str("topic", c.topic).Msg("failed to commit message")
			}
		}
	}()
	return nil
}

// Stop 关闭 reader 并等待消费 goroutine 退出
func (c *Consumer) Stop(ctx context.Context) {
	c.stopped.Store(true)
	c.stopOnce.Do(func() { close(c.done) })
	if err := c.reader.Close(); err != nil {
		logger.Ctx(ctx).Error().Err(err).Str("topic", c.topic).Msg("failed to close reader")
	}
	c.wg.Wait()
	logger.Ctx(ctx).Info().Str("topic", c.topic).Msg("✅ Kafka consumer stopped.")
}

// process 返回消息是否已经处理完毕 (成功或写入死信)
func (c *Consumer) process(parent context.Context, msg kafka.Message) bool {
	ctx := ExtractTraceContext(parent, msg.Headers)
	ctx, span := c.tracer.Start(ctx, "consume."+c.topic,
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			attribute.String("messaging.system", "kafka"),
			attribute.String("messaging.destination", c.topic),
			attribute.Int("messaging.kafka.partition", msg.Partition),
			attribute.Int64("messaging.kafka.message.offset", msg.Offset),
			attribute.String("messaging.kafka.message.key", string(msg.Key)),
		),
	)
	defer span.End()

	if err := c.handler(ctx, msg); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "message handling failed")
		metrics.MessagesConsumed.WithLabelValues(c.topic, "failed").Inc()
		if c.failureHandler != nil {
			return c.deadLetter(ctx, msg, err)
		}
		return true
	}
	metrics.MessagesConsumed.WithLabelValues(c.topic, "ok").Inc()
	return true
}

// deadLetter 持续重试写死信直到成功；消费者停止时返回 false，调用方不能提交 offset。
// 只重试死信写入，不会重新执行 handler。
func (c *Consumer) deadLetter(ctx context.Context, msg kafka.Message, cause error) bool {
	backoff := c.backoff
	for {
		err := c.failureHandler.Handle(ctx, msg, cause)
		if err == nil {
			return true
		}
		metrics.MessagesConsumed.WithLabelValues(c.topic, "dlt_retry").Inc()
		logger.Ctx(ctx).Warn().Err(err).
			Str("topic", c.topic).
			Int64("offset", msg.Offset).
			Dur("backoff", backoff).
			Msg("dead letter not written, holding offset")

		select {
		case <-ctx.Done():
			return false
		case <-c.done:
			return false
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > dltRetryMaxBackoff {
			backoff = dltRetryMaxBackoff
		}
	}
}
