package repository

import (
	"context"
	"errors"

	"marketpay/internal/domain/model"
)

var ErrNotFound = errors.New("not found")

type ProductRepository interface {
	FindByID(ctx context.Context, productID int64) (model.Product, error)
}
