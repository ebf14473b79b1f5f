package usecase

import (
	"context"
	"net/http"

	"marketpay/internal/domain/model"
	repo "marketpay/internal/repository"
)

// FulfillmentUsecase は出荷系コラボレーター向けのコマンド。
// 遷移はStateMachine経由なのでPROCESSING以外からSHIPPEDにはならない。
type FulfillmentUsecase struct {
	tx repo.TransactionManager
	sm *StateMachine
}

func NewFulfillmentUsecase(tx repo.TransactionManager, sm *StateMachine) *FulfillmentUsecase {
	return &FulfillmentUsecase{tx: tx, sm: sm}
}

// 注文一覧（管理画面用）
func (u *FulfillmentUsecase) List(ctx context.Context, f repo.AdminOrderListFilter) ([]OrderOutput, error) {
	// page/limitの最低限チェック
	if f.Page < 1 {
		return []OrderOutput{}, NewHTTPError(http.StatusBadRequest, "invalid page")
	}
	if f.Limit < 1 || f.Limit > 100 {
		return []OrderOutput{}, NewHTTPError(http.StatusBadRequest, "invalid limit")
	}

	var outs []OrderOutput

	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		orders, _, err := r.Orders().ListAdmin(ctx, f)
		if err != nil {
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}

		outs = make([]OrderOutput, 0, len(orders))
		for _, o := range orders {
			items, err := r.OrderItems().ListByOrderID(ctx, o.ID)
			if err != nil {
				return NewHTTPError(http.StatusInternalServerError, "db error")
			}
			outs = append(outs, toOrderOutput(o, items))
		}
		return nil
	})
	if err != nil {
		return []OrderOutput{}, err
	}
	return outs, nil
}

func (u *FulfillmentUsecase) MarkShipped(ctx context.Context, actorAdminID int64, orderID int64) error {
	if actorAdminID <= 0 {
		return NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	if orderID <= 0 {
		return NewValidationError("invalid id")
	}
	return u.sm.ApplyShipped(ctx, orderID, actorAdminID)
}

func (u *FulfillmentUsecase) MarkDelivered(ctx context.Context, actorAdminID int64, orderID int64) error {
	if actorAdminID <= 0 {
		return NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	if orderID <= 0 {
		return NewValidationError("invalid id")
	}
	return u.sm.ApplyDelivered(ctx, orderID, actorAdminID)
}

// ListAuditTrail は注文ごとの操作・異常の履歴（運用レビュー用）
func (u *FulfillmentUsecase) ListAuditTrail(ctx context.Context, orderID int64) ([]model.AuditLog, error) {
	if orderID <= 0 {
		return nil, NewValidationError("invalid id")
	}

	var logs []model.AuditLog
	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		var err error
		logs, err = r.AuditLogs().List(ctx, repo.AuditLogFilter{OrderID: &orderID, Limit: 100})
		if err != nil {
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if logs == nil {
		logs = []model.AuditLog{}
	}
	return logs, nil
}
