package application

import (
	"context"
	"encoding/json"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"shopflow/internal/contract"
	"shopflow/internal/pkg/logger"
	"shopflow/internal/pkg/metrics"
)

// 推送给 websocket 客户端的消息类型
const (
	KindMail     = "mail"
	KindLowStock = "low-stock"
)

// Pusher 把消息推送到在线会话
type Pusher interface {
	Push(userID string, payload []byte) bool
	Broadcast(payload []byte) int
}

// Deduplicator 按 event-id 判断消息是否第一次出现
type Deduplicator interface {
	FirstSeen(ctx context.Context, eventID string) (bool, error)
}

// Notification 是推送给客户端的消息
type Notification struct {
	Kind    string      `json:"kind"`
	EventID string      `json:"eventId,omitempty"`
	Data    interface{} `json:"data"`
}

// Dispatcher 消费 mail 和 low-stock-alert 事件并推送给在线会话。
// 邮件按收件人地址推送，低库存告警广播给所有会话。
type Dispatcher struct {
	pusher Pusher
	dedup  Deduplicator
	tracer trace.Tracer
}

// NewDispatcher 创建分发器。dedup 为 nil 时不去重。
func NewDispatcher(pusher Pusher, dedup Deduplicator, tracer trace.Tracer) *Dispatcher {
	return &Dispatcher{pusher: pusher, dedup: dedup, tracer: tracer}
}

// duplicate 去重存储不可用时按首次处理，重复推送可以接受
func (d *Dispatcher) duplicate(ctx context.Context, eventID string) bool {
	if d.dedup == nil || eventID == "" {
		return false
	}
	first, err := d.dedup.FirstSeen(ctx, eventID)
	if err != nil {
		logger.Ctx(ctx).Warn().Err(err).Str("event_id", eventID).Msg("dedup lookup failed, delivering anyway")
		return false
	}
	return !first
}

// DispatchMail 没有收件人的邮件 (客户信息查询失败时生成) 直接丢弃
func (d *Dispatcher) DispatchMail(ctx context.Context, eventID string, mail contract.MailMessage) error {
	ctx, span := d.tracer.Start(ctx, "notification.DispatchMail")
	defer span.End()
	span.SetAttributes(attribute.String("order.id", mail.TemplateData.ID))

	if mail.To == "" {
		metrics.Notifications.WithLabelValues(KindMail, "dropped").Inc()
		logger.Ctx(ctx).Warn().Str("order_id", mail.TemplateData.ID).Msg("mail without recipient dropped")
		return nil
	}
	if d.duplicate(ctx, eventID) {
		metrics.Notifications.WithLabelValues(KindMail, "duplicate").Inc()
		span.AddEvent("duplicate mail skipped")
		return nil
	}

	payload, err := json.Marshal(Notification{Kind: KindMail, EventID: eventID, Data: mail})
	if err != nil {
		return fmt.Errorf("failed to marshal mail notification: %w", err)
	}
	if !d.pusher.Push(mail.To, payload) {
		metrics.Notifications.WithLabelValues(KindMail, "offline").Inc()
		logger.Ctx(ctx).Info().Str("to", mail.To).Str("order_id", mail.TemplateData.ID).Msg("recipient offline, mail logged only")
		return nil
	}
	metrics.Notifications.WithLabelValues(KindMail, "pushed").Inc()
	logger.Ctx(ctx).Info().Str("to", mail.To).Str("order_id", mail.TemplateData.ID).
		Strs("products", mail.TemplateData.Products).Msg("purchase mail delivered")
	return nil
}

func (d *Dispatcher) DispatchLowStock(ctx context.Context, eventID string, alert contract.LowStockAlert) error {
	ctx, span := d.tracer.Start(ctx, "notification.DispatchLowStock")
	defer span.End()
	span.SetAttributes(attribute.Int("low_stock.items", len(alert.Items)))

	if d.duplicate(ctx, eventID) {
		metrics.Notifications.WithLabelValues(KindLowStock, "duplicate").Inc()
		return nil
	}

	payload, err := json.Marshal(Notification{Kind: KindLowStock, EventID: eventID, Data: alert})
	if err != nil {
		return fmt.Errorf("failed to marshal low stock notification: %w", err)
	}
	sessions := d.pusher.Broadcast(payload)
	metrics.Notifications.WithLabelValues(KindLowStock, "pushed").Inc()
	logger.Ctx(ctx).Warn().Int("items", len(alert.Items)).Int("sessions", sessions).Msg("low stock alert dispatched")
	return nil
}
