package repository

import (
	"context"
	"errors"

	"marketpay/internal/domain/model"
	repo "marketpay/internal/repository"

	"gorm.io/gorm"
)

type WebhookEventGormRepository struct {
	db *gorm.DB
}

func NewWebhookEventGormRepository(db *gorm.DB) *WebhookEventGormRepository {
	return &WebhookEventGormRepository{db: db}
}

// Insert は同一event_idならErrDuplicateEvent。
// 遷移と同じTX内で呼ぶことで「記録できた＝初回適用」が保証される。
func (r *WebhookEventGormRepository) Insert(ctx context.Context, ev model.WebhookEvent) error {
	err := r.db.WithContext(ctx).Create(&ev).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return repo.ErrDuplicateEvent
	}
	return err
}
