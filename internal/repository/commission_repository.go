package repository

import (
	"context"

	"marketpay/internal/domain/model"
)

type CommissionRepository interface {
	Create(ctx context.Context, rec model.CommissionRecord) error
	FindByOrderID(ctx context.Context, orderID int64) (model.CommissionRecord, bool, error)
}
