// internal/pkg/mq/failure.go
package mq

import (
	"context"
	"fmt"
	"strconv"

	"github.com/segmentio/kafka-go"
	"shopflow/internal/pkg/logger"
	"shopflow/internal/pkg/metrics"
)

const (
	HeaderOriginalTopic     = "dlt-original-topic"
	HeaderOriginalPartition = "dlt-original-partition"
	HeaderOriginalOffset    = "dlt-original-offset"
	HeaderExceptionFqcn     = "dlt-exception-fqcn"
	HeaderExceptionMessage  = "dlt-exception-message"
)

// FailureHandler 把处理失败的消息转投到 <topic>.DLT，死信不会被自动重试
type FailureHandler struct {
	dltWriter Writer
}

// NewFailureHandler 的 writer 必须未绑定 topic
func NewFailureHandler(dltWriter Writer) *FailureHandler {
	return &FailureHandler{dltWriter: dltWriter}
}

// Handle 发送死信。转投失败时返回错误，调用方不能提交该消息的 offset。
func (h *FailureHandler) Handle(ctx context.Context, msg kafka.Message, cause error) error {
	dltTopic := msg.Topic + DLTSuffix

	headers := make([]kafka.Header, 0, len(msg.Headers)+5)
	headers = append(headers, msg.Headers...)
	headers = append(headers,
		kafka.Header{Key: HeaderOriginalTopic, Value: []byte(msg.Topic)},
		kafka.Header{Key: HeaderOriginalPartition, Value: []byte(strconv.Itoa(msg.Partition))},
		kafka.Header{Key: HeaderOriginalOffset, Value: []byte(strconv.FormatInt(msg.Offset, 10))},
		kafka.Header{Key: HeaderExceptionFqcn, Value: []byte(fmt.Sprintf("%T", cause))},
		kafka.Header{Key: HeaderExceptionMessage, Value: []byte(cause.Error())},
	)

	err := h.dltWriter.WriteMessages(ctx, kafka.Message{
		Topic:   dltTopic,
		Key:     msg.Key,
		Value:   msg.Value,
		Headers: headers,
	})
	if err != nil {
		logger.Ctx(ctx).Error().Err(err).
			Str("topic", msg.Topic).
			Int64("offset", msg.Offset).
			Msg("🚨 failed to publish message to DLT")
		return err
	}

	metrics.DeadLetters.WithLabelValues(msg.Topic).Inc()
	logger.Ctx(ctx).Warn().Err(cause).
		Str("topic", msg.Topic).
		Str("dlt_topic", dltTopic).
		Int64("offset", msg.Offset).
		Msg("message moved to DLT")
	return nil
}
