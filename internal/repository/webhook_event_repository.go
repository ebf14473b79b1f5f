package repository

import (
	"context"
	"errors"

	"marketpay/internal/domain/model"
)

// 同じevent_idがすでに適用済み
var ErrDuplicateEvent = errors.New("duplicate event")

type WebhookEventRepository interface {
	//uniqueに引っかかったらErrDuplicateEventを返す
	Insert(ctx context.Context, ev model.WebhookEvent) error
}
