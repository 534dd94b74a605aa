package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrReservationConflict 表示预检查通过但预占失败，且重新统计时已无缺货：库存被并发修改了
	ErrReservationConflict = errors.New("reservation conflict: stock changed during purchase")
	// ErrReservationRejected 表示 storage 因库存不足拒绝了预占
	ErrReservationRejected = errors.New("reservation rejected by storage")
	ErrCustomerNotFound    = errors.New("customer not found")
	// ErrOrderIDReused 表示调用方带来的 orderId 已经属于另一份购物车
	ErrOrderIDReused       = errors.New("order id already used with a different cart")
)

// UnconfirmedOrderError 表示库存已经预占，但订单事件没有落库。
// 调用方带着 OrderID 重试即可完成确认，不会重复扣减库存。
type UnconfirmedOrderError struct {
	OrderID string
	Err     error
}

func (e *UnconfirmedOrderError) Error() string {
	return fmt.Sprintf("order %s reserved but not confirmed: %v", e.OrderID, e.Err)
}

func (e *UnconfirmedOrderError) Unwrap() error {
	return e.Err
}

// 发件箱记录的状态
const (
	OutboxPending = "PENDING"
	OutboxSent    = "SENT"
)

// OutboxEvent 是等待投递到消息总线的一条事件，和业务写入在同一个本地事务中落库
type OutboxEvent struct {
	ID        string
	Topic     string
	Key       string
	Payload   []byte
	Status    string
	Attempts  int
	LastError string
	CreatedAt time.Time
	SentAt    *time.Time
}

// NewOutboxEvent 序列化 payload 并生成随机事件 ID，该 ID 随消息作为 event-id 头发出
func NewOutboxEvent(topic, key string, payload interface{}) (*OutboxEvent, error) {
	return newOutboxEvent(uuid.NewString(), topic, key, payload)
}

// NewOrderEvent 的事件 ID 由 orderID 和 topic 决定，同一订单重试时得到同样的 ID，
// 发件箱按 ID 去重
func NewOrderEvent(orderID, topic, key string, payload interface{}) (*OutboxEvent, error) {
	id := uuid.NewSHA1(uuid.NameSpaceURL, []byte("shopflow:order:"+orderID+":"+topic))
	return newOutboxEvent(id.String(), topic, key, payload)
}

func newOutboxEvent(id, topic, key string, payload interface{}) (*OutboxEvent, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s payload: %w", topic, err)
	}
	return &OutboxEvent{
		ID:        id,
		Topic:     topic,
		Key:       key,
		Payload:   data,
		Status:    OutboxPending,
		CreatedAt: time.Now().UTC(),
	}, nil
}
