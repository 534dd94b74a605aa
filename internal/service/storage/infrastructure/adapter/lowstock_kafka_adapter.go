package adapter

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"shopflow/internal/contract"
	"shopflow/internal/pkg/mq"
)

// LowStockKafkaAdapter 实现了 port.LowStockPublisher 接口。
type LowStockKafkaAdapter struct {
	writer mq.Writer
}

// NewLowStockKafkaAdapter 的 writer 需绑定 low-stock-alert topic
func NewLowStockKafkaAdapter(writer mq.Writer) *LowStockKafkaAdapter {
	return &LowStockKafkaAdapter{writer: writer}
}

func (a *LowStockKafkaAdapter) PublishLowStock(ctx context.Context, alert contract.LowStockAlert) error {
	payload, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("failed to marshal low stock alert: %w", err)
	}
	eventID := uuid.NewString()
	return mq.ProduceMessage(ctx, a.writer, []byte(contract.TopicLowStockAlert), payload,
		kafka.Header{Key: mq.HeaderEventID, Value: []byte(eventID)})
}
