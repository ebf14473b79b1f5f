package repository

import (
	"context"
	"errors"

	"marketpay/internal/domain/model"

	"gorm.io/gorm"
)

type CommissionGormRepository struct {
	db *gorm.DB
}

func NewCommissionGormRepository(db *gorm.DB) *CommissionGormRepository {
	return &CommissionGormRepository{db: db}
}

func (r *CommissionGormRepository) Create(ctx context.Context, rec model.CommissionRecord) error {
	if err := r.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return err
	}
	return nil
}

func (r *CommissionGormRepository) FindByOrderID(ctx context.Context, orderID int64) (model.CommissionRecord, bool, error) {
	var rec model.CommissionRecord
	err := r.db.WithContext(ctx).Where("order_id = ?", orderID).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.CommissionRecord{}, false, nil
	}
	if err != nil {
		return model.CommissionRecord{}, false, err
	}
	return rec, true, nil
}
