package repository

import (
	"context"
	"errors"

	"marketpay/internal/domain/model"
	repo "marketpay/internal/repository"

	"gorm.io/gorm"
)

type PaymentTransactionGormRepository struct {
	db *gorm.DB
}

func NewPaymentTransactionGormRepository(db *gorm.DB) *PaymentTransactionGormRepository {
	return &PaymentTransactionGormRepository{db: db}
}

func (r *PaymentTransactionGormRepository) Create(ctx context.Context, tx model.PaymentTransaction) (int64, error) {
	if err := r.db.WithContext(ctx).Create(&tx).Error; err != nil {
		return 0, err
	}
	return tx.ID, nil
}

func (r *PaymentTransactionGormRepository) FindByGatewayRef(ctx context.Context, ref string) (model.PaymentTransaction, error) {
	var tx model.PaymentTransaction
	err := r.db.WithContext(ctx).Where("gateway_ref = ?", ref).First(&tx).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.PaymentTransaction{}, repo.ErrNotFound
	}
	if err != nil {
		return model.PaymentTransaction{}, err
	}
	return tx, nil
}

func (r *PaymentTransactionGormRepository) FindActiveByOrderID(ctx context.Context, orderID int64) (model.PaymentTransaction, bool, error) {
	var tx model.PaymentTransaction
	err := r.db.WithContext(ctx).
		Where("order_id = ? AND status IN ?", orderID, []model.TransactionStatus{
			model.TransactionStatusPending,
			model.TransactionStatusProcessing,
		}).
		Order("id desc").
		First(&tx).Error

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.PaymentTransaction{}, false, nil
	}
	if err != nil {
		return model.PaymentTransaction{}, false, err
	}
	return tx, true, nil
}

func (r *PaymentTransactionGormRepository) ListByOrderID(ctx context.Context, orderID int64) ([]model.PaymentTransaction, error) {
	var txs []model.PaymentTransaction
	err := r.db.WithContext(ctx).Where("order_id = ?", orderID).Order("id asc").Find(&txs).Error
	if err != nil {
		return []model.PaymentTransaction{}, err
	}
	return txs, nil
}

// UpdateStatusVersioned はstatusと付帯フィールドのみ更新する。amountは触らない。
func (r *PaymentTransactionGormRepository) UpdateStatusVersioned(ctx context.Context, tx model.PaymentTransaction, fromVersion int64) error {
	res := r.db.WithContext(ctx).Model(&model.PaymentTransaction{}).
		Where("id = ? AND version = ?", tx.ID, fromVersion).
		Updates(map[string]interface{}{
			"status":       tx.Status,
			"gateway_ref":  tx.GatewayRef,
			"raw_payload":  tx.RawPayload,
			"refund_ref":   tx.RefundRef,
			"confirmed_at": tx.ConfirmedAt,
			"version":      fromVersion + 1,
		})

	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		var count int64
		if err := r.db.WithContext(ctx).Model(&model.PaymentTransaction{}).
			Where("id = ?", tx.ID).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return repo.ErrNotFound
		}
		return repo.ErrVersionConflict
	}
	return nil
}
