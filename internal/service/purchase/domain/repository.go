package domain

import (
	"context"
	"time"
)

// OutboxStore 持久化待发送事件
type OutboxStore interface {
	// Append 在一个事务中写入全部事件，要么全部可见要么都不可见。ID 已存在的事件被忽略。
	Append(ctx context.Context, events ...*OutboxEvent) error
	// FetchPending 按创建顺序返回最多 limit 条未发送事件
	FetchPending(ctx context.Context, limit int) ([]*OutboxEvent, error)
	MarkSent(ctx context.Context, id string, sentAt time.Time) error
	MarkFailed(ctx context.Context, id string, cause string) error
	CountPending(ctx context.Context) (int64, error)
}
