package usecase

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"marketpay/internal/domain/model"
	"marketpay/internal/gateway"
	"marketpay/internal/logger"
	repo "marketpay/internal/repository"
)

// CancelUsecase は買い手起点のキャンセルと補償返金の調整役。
// 返金要求がゲートウェイに受理されてから注文をCANCELLEDにする。
type CancelUsecase struct {
	tx  repo.TransactionManager
	gw  gateway.Client
	sm  *StateMachine
	log *zap.Logger
}

func NewCancelUsecase(tx repo.TransactionManager, gw gateway.Client, sm *StateMachine) *CancelUsecase {
	return &CancelUsecase{tx: tx, gw: gw, sm: sm, log: logger.L()}
}

func (u *CancelUsecase) Cancel(ctx context.Context, buyerID int64, orderID int64, reason string) error {
	if buyerID <= 0 {
		return NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	if orderID <= 0 {
		return NewValidationError("invalid id")
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = "cancelled by buyer"
	}
	if len(reason) > 255 {
		return NewValidationError("reason too long")
	}

	//現状の読み取り。遷移自体はStateMachineが確定させる。
	var o model.Order
	var approved *model.PaymentTransaction
	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		var err error
		o, err = r.Orders().FindByID(ctx, orderID)
		if err != nil {
			return err
		}
		txs, err := r.Transactions().ListByOrderID(ctx, orderID)
		if err != nil {
			return err
		}
		for i := len(txs) - 1; i >= 0; i-- {
			if txs[i].Status == model.TransactionStatusApproved {
				approved = &txs[i]
				break
			}
		}
		return nil
	})
	if errors.Is(err, repo.ErrNotFound) {
		return NewHTTPError(http.StatusNotFound, "not found")
	}
	if err != nil {
		return NewHTTPError(http.StatusInternalServerError, "db error")
	}
	if o.BuyerID != buyerID {
		return NewHTTPError(http.StatusNotFound, "not found")
	}

	//先にガードしておく（SHIPPED済みの注文に返金を投げない）
	if o.Status != model.OrderStatusPending && o.Status != model.OrderStatusProcessing {
		return &InvalidStateError{
			Status: o.Status,
			Reason: "cannot cancel a " + strings.ToLower(string(o.Status)) + " order",
		}
	}

	refundRef := ""
	if o.Status == model.OrderStatusProcessing && approved != nil {
		//既に回収済みの資金があるので、返金要求が受理されるまでキャンセルしない。
		//ロックは持たずに外部呼び出しする。
		refund, err := u.gw.Refund(ctx, gateway.RefundInput{
			OrderID: o.ID,
			Ref:     approved.GatewayRef,
			Amount:  approved.Amount,
			Attempt: 1,
		})
		if err != nil {
			u.log.Warn("refund request not accepted, order left as is",
				zap.Int64("order_id", orderID),
				zap.Error(err))
			if errors.Is(err, gateway.ErrGatewayUnavailable) || errors.Is(err, gateway.ErrOutcomeUnknown) {
				return NewHTTPError(http.StatusServiceUnavailable, "refund temporarily unavailable, retry later")
			}
			return NewHTTPError(http.StatusBadGateway, "refund rejected by gateway")
		}
		refundRef = refund.Ref
	}

	//受理済みなら確定。返金の完了自体は後からwebhookで消し込む。
	return u.sm.ApplyCancel(ctx, orderID, buyerID, reason, refundRef)
}
