package model

import "time"

// WebhookEvent は処理済みイベントの記録。event_idのuniqueで二重適用を防ぐ。
type WebhookEvent struct {
	ID          int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	EventID     string    `gorm:"type:varchar(128);not null;uniqueIndex" json:"event_id"`
	EventType   string    `gorm:"type:varchar(64);not null" json:"event_type"`
	OrderID     int64     `gorm:"not null;index" json:"order_id"`
	PayloadJSON string    `gorm:"type:text" json:"-"`
	ProcessedAt time.Time `gorm:"not null" json:"processed_at"`
	CreatedAt   time.Time `gorm:"not null;autoCreateTime" json:"created_at"`
}
