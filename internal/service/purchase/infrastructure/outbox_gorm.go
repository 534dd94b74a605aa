package infrastructure

import (
	"context"
	"time"
	"unicode/utf8"

	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"shopflow/internal/service/purchase/domain"
)

const maxLastErrorLen = 512

// OutboxModel 是 purchase_outbox 表。Seq 自增，决定投递顺序。
type OutboxModel struct {
	Seq        uint64 `gorm:"primaryKey;autoIncrement"`
	EventID    string `gorm:"type:varchar(36);uniqueIndex"`
	Topic      string `gorm:"type:varchar(128)"`
	MessageKey string `gorm:"type:varchar(128)"`
	Payload    []byte
	Status     string `gorm:"type:varchar(16);index"`
	Attempts   int
	LastError  string `gorm:"type:varchar(512)"`
	CreatedAt  time.Time
	SentAt     *time.Time
}

func (OutboxModel) TableName() string {
	return "purchase_outbox"
}

// GormOutboxStore 是 domain.OutboxStore 的 GORM 实现
type GormOutboxStore struct {
	db *gorm.DB
}

func NewGormOutboxStore(db *gorm.DB) *GormOutboxStore {
	return &GormOutboxStore{db: db}
}

// AutoMigrate 创建或更新 purchase_outbox 表
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&OutboxModel{})
}

func (s *GormOutboxStore) Append(ctx context.Context, events ...*domain.OutboxEvent) error {
	if len(events) == 0 {
		return nil
	}
	models := make([]OutboxModel, 0, len(events))
	for _, e := range events {
		models = append(models, fromDomainOutboxEvent(e))
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// 同一订单重试时事件 ID 相同，已存在的记录保持原状
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "event_id"}},
			DoNothing: true,
		}).Create(&models).Error
	})
	return errors.Wrap(err, "append outbox events")
}

func (s *GormOutboxStore) FetchPending(ctx context.Context, limit int) ([]*domain.OutboxEvent, error) {
	var models []OutboxModel
	err := s.db.WithContext(ctx).
		Where("status = ?", domain.OutboxPending).
		Order("seq").
		Limit(limit).
		Find(&models).Error
	if err != nil {
		return nil, errors.Wrap(err, "fetch pending outbox events")
	}
	events := make([]*domain.OutboxEvent, 0, len(models))
	for i := range models {
		events = append(events, toDomainOutboxEvent(&models[i]))
	}
	return events, nil
}

func (s *GormOutboxStore) MarkSent(ctx context.Context, id string, sentAt time.Time) error {
	err := s.db.WithContext(ctx).Model(&OutboxModel{}).
		Where("event_id = ?", id).
		Updates(map[string]interface{}{
			"status":   domain.OutboxSent,
			"sent_at":  sentAt,
			"attempts": gorm.Expr("attempts + 1"),
		}).Error
	return errors.Wrapf(err, "mark outbox event %s sent", id)
}

func (s *GormOutboxStore) MarkFailed(ctx context.Context, id string, cause string) error {
	cause = truncateRunes(cause, maxLastErrorLen)
	err := s.db.WithContext(ctx).Model(&OutboxModel{}).
		Where("event_id = ?", id).
		Updates(map[string]interface{}{
			"last_error": cause,
			"attempts":   gorm.Expr("attempts + 1"),
		}).Error
	return errors.Wrapf(err, "mark outbox event %s failed", id)
}

func (s *GormOutboxStore) CountPending(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&OutboxModel{}).Where("status = ?", domain.OutboxPending).Count(&n).Error
	return n, errors.Wrap(err, "count pending outbox events")
}

// truncateRunes 截断到最多 n 个字符，不会切开多字节字符
func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}

func fromDomainOutboxEvent(e *domain.OutboxEvent) OutboxModel {
	return OutboxModel{
		EventID:    e.ID,
		Topic:      e.Topic,
		MessageKey: e.Key,
		Payload:    e.Payload,
		Status:     e.Status,
		Attempts:   e.Attempts,
		LastError:  e.LastError,
		CreatedAt:  e.CreatedAt,
		SentAt:     e.SentAt,
	}
}

func toDomainOutboxEvent(m *OutboxModel) *domain.OutboxEvent {
	return &domain.OutboxEvent{
		ID:        m.EventID,
		Topic:     m.Topic,
		Key:       m.MessageKey,
		Payload:   m.Payload,
		Status:    m.Status,
		Attempts:  m.Attempts,
		LastError: m.LastError,
		CreatedAt: m.CreatedAt,
		SentAt:    m.SentAt,
	}
}
