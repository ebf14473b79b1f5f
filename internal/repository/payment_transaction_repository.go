package repository

import (
	"context"

	"marketpay/internal/domain/model"
)

type PaymentTransactionRepository interface {
	Create(ctx context.Context, tx model.PaymentTransaction) (int64, error)
	FindByGatewayRef(ctx context.Context, ref string) (model.PaymentTransaction, error)

	//未終了（PENDING/PROCESSING）のトランザクション。注文ごとに高々1件。
	FindActiveByOrderID(ctx context.Context, orderID int64) (model.PaymentTransaction, bool, error)
	ListByOrderID(ctx context.Context, orderID int64) ([]model.PaymentTransaction, error)

	//状態更新。amountは絶対に書き換えない。
	UpdateStatusVersioned(ctx context.Context, tx model.PaymentTransaction, fromVersion int64) error
}
