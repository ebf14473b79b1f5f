package repository

import (
	"context"
	"errors"
	"time"

	"marketpay/internal/domain/model"
)

// 楽観ロックの競合。呼び出し側で読み直してリトライする。
var ErrVersionConflict = errors.New("version conflict")

type AdminOrderListFilter struct {
	Page   int
	Limit  int
	Status string
	BuyerID *int64
	From   *time.Time
	To     *time.Time
}

type OrderRepository interface {
	FindByID(ctx context.Context, orderID int64) (model.Order, error)
	ListByBuyerID(ctx context.Context, buyerID int64, page int, limit int) ([]model.Order, int64, error)
	Create(ctx context.Context, order model.Order) (int64, error)

	//状態とタイムスタンプの更新。versionが合わないときはErrVersionConflict。
	UpdateStatusVersioned(ctx context.Context, order model.Order, fromVersion int64) error

	//検索（同じキーなら同じ結果を返す）
	FindByIdempotencyKey(ctx context.Context, buyerID int64, key string) (model.Order, bool, error)
	//管理者用の注文一覧
	ListAdmin(ctx context.Context, f AdminOrderListFilter) ([]model.Order, int64, error)
}
