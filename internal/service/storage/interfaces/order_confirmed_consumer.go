package interfaces

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel/trace"
	"shopflow/internal/contract"
	"shopflow/internal/pkg/mq"
	"shopflow/internal/service/storage/application"
)

// OrderConfirmedHandler 把 order-confirmed 消息转换成库存扣减
type OrderConfirmedHandler struct {
	service *application.StorageService
}

func NewOrderConfirmedHandler(service *application.StorageService) *OrderConfirmedHandler {
	return &OrderConfirmedHandler{service: service}
}

// Handle 返回的错误会让消息进入 order-confirmed.DLT
func (h *OrderConfirmedHandler) Handle(ctx context.Context, msg kafka.Message) error {
	var order contract.Order
	if err := json.Unmarshal(msg.Value, &order); err != nil {
		return fmt.Errorf("failed to unmarshal order-confirmed event: %w", err)
	}
	return h.service.ReduceQuantity(ctx, order)
}

// NewOrderConfirmedConsumer 组装消费者
func NewOrderConfirmedConsumer(reader mq.Reader, service *application.StorageService, failureHandler *mq.FailureHandler, tracer trace.Tracer) *mq.Consumer {
	handler := NewOrderConfirmedHandler(service)
	return mq.NewConsumer(contract.TopicOrderConfirmed, reader, handler.Handle, failureHandler, tracer)
}
