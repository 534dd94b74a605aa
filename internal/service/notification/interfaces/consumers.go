package interfaces

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel/trace"
	"shopflow/internal/contract"
	"shopflow/internal/pkg/logger"
	"shopflow/internal/pkg/mq"
	"shopflow/internal/service/notification/application"
)

// MailHandler 处理 mail topic
func MailHandler(d *application.Dispatcher) mq.MessageHandler {
	return func(ctx context.Context, msg kafka.Message) error {
		var mail contract.MailMessage
		if err := json.Unmarshal(msg.Value, &mail); err != nil {
			return fmt.Errorf("failed to unmarshal mail event: %w", err)
		}
		return d.DispatchMail(ctx, mq.HeaderValue(msg.Headers, mq.HeaderEventID), mail)
	}
}

// LowStockHandler 处理 low-stock-alert topic
func LowStockHandler(d *application.Dispatcher) mq.MessageHandler {
	return func(ctx context.Context, msg kafka.Message) error {
		var alert contract.LowStockAlert
		if err := json.Unmarshal(msg.Value, &alert); err != nil {
			return fmt.Errorf("failed to unmarshal low stock alert: %w", err)
		}
		return d.DispatchLowStock(ctx, mq.HeaderValue(msg.Headers, mq.HeaderEventID), alert)
	}
}

// NewDispatchConsumers 为 mail 和 low-stock-alert 各创建一个消费者
func NewDispatchConsumers(mailReader, lowStockReader mq.Reader, d *application.Dispatcher, failureHandler *mq.FailureHandler, tracer trace.Tracer) []*mq.Consumer {
	return []*mq.Consumer{
		mq.NewConsumer(contract.TopicMail, mailReader, MailHandler(d), failureHandler, tracer),
		mq.NewConsumer(contract.TopicLowStockAlert, lowStockReader, LowStockHandler(d), failureHandler, tracer),
	}
}

// NewDeadLetterConsumer 监听死信队列并记录日志。死信只记录不重试，总是提交。
func NewDeadLetterConsumer(topic string, reader mq.Reader, tracer trace.Tracer) *mq.Consumer {
	return mq.NewConsumer(topic, reader, func(ctx context.Context, msg kafka.Message) error {
		logDeadLetter(ctx, msg)
		return nil
	}, nil, tracer)
}

func logDeadLetter(ctx context.Context, msg kafka.Message) {
	// 使用结构化日志记录，便于后续分析
	logger.Ctx(ctx).Error().
		Str("reason", "dead_letter_message_received").
		Str("original_topic", mq.HeaderValue(msg.Headers, mq.HeaderOriginalTopic)).
		Str("original_partition", mq.HeaderValue(msg.Headers, mq.HeaderOriginalPartition)).
		Str("original_offset", mq.HeaderValue(msg.Headers, mq.HeaderOriginalOffset)).
		Str("exception_fqcn", mq.HeaderValue(msg.Headers, mq.HeaderExceptionFqcn)).
		Str("exception_message", mq.HeaderValue(msg.Headers, mq.HeaderExceptionMessage)).
		Str("event_id", mq.HeaderValue(msg.Headers, mq.HeaderEventID)).
		Str("key", string(msg.Key)).
		Str("value", string(msg.Value)).
		Msg("🚨 CRITICAL: Dead letter message received")
}
