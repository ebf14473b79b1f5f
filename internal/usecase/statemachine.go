package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"marketpay/internal/domain/model"
	"marketpay/internal/logger"
	repo "marketpay/internal/repository"
)

// 楽観ロック競合時の読み直し回数
const maxConflictRetries = 3

// PaymentEvent は検証済みwebhook（またはポーリング結果）から作る遷移コマンド
type PaymentEvent struct {
	EventID    string
	EventType  string
	GatewayRef string
	Status     model.TransactionStatus
	RawPayload string
}

// StateMachine はOrder.statusとPaymentTransaction.statusの唯一の書き手。
// 遷移はすべてここを通り、依存する書き込み（手数料レコード等）と同一TXで確定する。
type StateMachine struct {
	tx             repo.TransactionManager
	commissionRate decimal.Decimal
	log            *zap.Logger
	now            func() time.Time
}

func NewStateMachine(tx repo.TransactionManager, commissionRate decimal.Decimal) *StateMachine {
	return &StateMachine{
		tx:             tx,
		commissionRate: commissionRate,
		log:            logger.L(),
		now:            time.Now,
	}
}

// withConflictRetry はversion競合のときだけ読み直してやり直す
func (m *StateMachine) withConflictRetry(ctx context.Context, fn func(r repo.TxRepos) error) error {
	var err error
	for i := 0; i < maxConflictRetries; i++ {
		err = m.tx.WithinTx(ctx, fn)
		if !errors.Is(err, repo.ErrVersionConflict) {
			return err
		}
		m.log.Debug("transition retry on version conflict", zap.Int("attempt", i+1))
	}
	return fmt.Errorf("transition gave up after %d conflicts: %w", maxConflictRetries, err)
}

// 監査ログのbefore/after用
func statusJSON(s string) string {
	return `{"status":"` + s + `"}`
}

// ApplyPaymentEvent はトランザクション状態の遷移を適用する。
// (order, event_id)ごとに冪等：二回目以降はno-op。
func (m *StateMachine) ApplyPaymentEvent(ctx context.Context, ev PaymentEvent) error {
	return m.withConflictRetry(ctx, func(r repo.TxRepos) error {
		ptx, err := r.Transactions().FindByGatewayRef(ctx, ev.GatewayRef)
		if err != nil {
			return err
		}
		o, err := r.Orders().FindByID(ctx, ptx.OrderID)
		if err != nil {
			return err
		}

		//先にevent_idを記録する。重複ならここで終わり（成功扱い）。
		//TXごと巻き戻るので「記録できた＝初回適用」が成り立つ。
		err = r.WebhookEvents().Insert(ctx, model.WebhookEvent{
			EventID:     ev.EventID,
			EventType:   ev.EventType,
			OrderID:     o.ID,
			PayloadJSON: ev.RawPayload,
			ProcessedAt: m.now(),
		})
		if errors.Is(err, repo.ErrDuplicateEvent) {
			m.log.Info("duplicate event absorbed",
				zap.String("event_id", ev.EventID),
				zap.Int64("order_id", o.ID))
			return nil
		}
		if err != nil {
			return err
		}

		//順序逆転・重複の吸収：現在より進んでいないイベントは捨てる
		if ev.Status.Rank() <= ptx.Status.Rank() {
			if ptx.Status.IsTerminal() && ev.Status.IsTerminal() && ev.Status != ptx.Status {
				//終端同士の食い違いは運用で見る。ログだけだと流れるのでレコードでも残す。
				m.log.Error("conflicting terminal status from gateway",
					zap.String("event_id", ev.EventID),
					zap.Int64("order_id", o.ID),
					zap.String("current", string(ptx.Status)),
					zap.String("incoming", string(ev.Status)))
				return r.AuditLogs().Create(ctx, model.AuditLog{
					ActorID:    0,
					Action:     model.AuditActionPaymentAnomaly,
					OrderID:    o.ID,
					BeforeJSON: statusJSON(string(ptx.Status)),
					AfterJSON:  statusJSON(string(ev.Status)),
					CreatedAt:  m.now(),
				})
			}
			m.log.Info("stale event discarded",
				zap.String("event_id", ev.EventID),
				zap.String("current", string(ptx.Status)),
				zap.String("incoming", string(ev.Status)))
			return nil
		}

		fromVersion := ptx.Version
		ptx.Status = ev.Status
		ptx.RawPayload = ev.RawPayload
		if ev.Status.IsTerminal() {
			t := m.now()
			ptx.ConfirmedAt = &t
		}
		if err := r.Transactions().UpdateStatusVersioned(ctx, ptx, fromVersion); err != nil {
			return err
		}

		m.log.Info("transaction transitioned",
			zap.Int64("order_id", o.ID),
			zap.String("gateway_ref", ev.GatewayRef),
			zap.String("status", string(ev.Status)))

		if ev.Status == model.TransactionStatusApproved {
			return m.settle(ctx, r, o, ptx)
		}
		return nil
	})
}

// settle は承認されたトランザクションを注文へ反映し、同一TXで手数料を確定する
func (m *StateMachine) settle(ctx context.Context, r repo.TxRepos, o model.Order, ptx model.PaymentTransaction) error {
	if o.Status == model.OrderStatusCancelled {
		//キャンセル済み注文への入金。返金が必要なので必ず運用に上げる。
		m.log.Error("approved payment for cancelled order, needs manual refund",
			zap.Int64("order_id", o.ID),
			zap.String("gateway_ref", ptx.GatewayRef))
		return r.AuditLogs().Create(ctx, model.AuditLog{
			ActorID:    0,
			Action:     model.AuditActionPaymentAnomaly,
			OrderID:    o.ID,
			BeforeJSON: statusJSON(string(model.OrderStatusCancelled)),
			AfterJSON:  statusJSON(string(model.TransactionStatusApproved)),
			CreatedAt:  m.now(),
		})
	}
	if o.Status != model.OrderStatusPending {
		m.log.Warn("approval for order not in PENDING, skipped",
			zap.Int64("order_id", o.ID),
			zap.String("order_status", string(o.Status)))
		return nil
	}

	//金額の整合が崩れていたら絶対に進めない
	if !ptx.Amount.Equal(o.Total) {
		return NewInvariantViolation(
			"transaction amount %s does not match order %d total %s",
			ptx.Amount.String(), o.ID, o.Total.String())
	}
	if !o.CheckTotals() {
		return NewInvariantViolation("order %d totals are inconsistent", o.ID)
	}

	fromVersion := o.Version
	t := m.now()
	o.Status = model.OrderStatusProcessing
	o.ConfirmedAt = &t
	if err := r.Orders().UpdateStatusVersioned(ctx, o, fromVersion); err != nil {
		return err
	}

	//手数料は注文につき1回だけ
	if _, found, err := r.Commissions().FindByOrderID(ctx, o.ID); err != nil {
		return err
	} else if found {
		m.log.Warn("commission already exists, skipped", zap.Int64("order_id", o.ID))
		return nil
	}

	rec, err := BuildCommissionRecord(o, m.commissionRate)
	if err != nil {
		//failするとTXごと巻き戻る＝注文もPROCESSINGにならない（fail closed）
		return err
	}
	if err := r.Commissions().Create(ctx, rec); err != nil {
		return err
	}

	m.log.Info("order settled",
		zap.Int64("order_id", o.ID),
		zap.String("vendor_amount", rec.VendorAmount.String()),
		zap.String("platform_amount", rec.PlatformAmount.String()))
	return nil
}

// ApplyRefundCompleted は返金完了イベントの消し込み。
// トランザクションは既に終端なので状態は動かさず、返金参照だけ記録する。
func (m *StateMachine) ApplyRefundCompleted(ctx context.Context, eventID string, gatewayRef string, refundRef string, raw string) error {
	return m.withConflictRetry(ctx, func(r repo.TxRepos) error {
		ptx, err := r.Transactions().FindByGatewayRef(ctx, gatewayRef)
		if err != nil {
			return err
		}

		err = r.WebhookEvents().Insert(ctx, model.WebhookEvent{
			EventID:     eventID,
			EventType:   "refund.completed",
			OrderID:     ptx.OrderID,
			PayloadJSON: raw,
			ProcessedAt: m.now(),
		})
		if errors.Is(err, repo.ErrDuplicateEvent) {
			return nil
		}
		if err != nil {
			return err
		}

		if ptx.RefundRef == "" && refundRef != "" {
			fromVersion := ptx.Version
			ptx.RefundRef = refundRef
			if err := r.Transactions().UpdateStatusVersioned(ctx, ptx, fromVersion); err != nil {
				return err
			}
		}

		m.log.Info("refund completed",
			zap.Int64("order_id", ptx.OrderID),
			zap.String("refund_ref", refundRef))
		return nil
	})
}

// ApplyCancel はキャンセルを確定する。PENDING/PROCESSING以外は拒否。
// 返金の要求はCancelUsecase側で先に済ませてから呼ぶこと。
func (m *StateMachine) ApplyCancel(ctx context.Context, orderID int64, actorID int64, reason string, refundRef string) error {
	return m.withConflictRetry(ctx, func(r repo.TxRepos) error {
		o, err := r.Orders().FindByID(ctx, orderID)
		if err != nil {
			return err
		}

		if o.Status != model.OrderStatusPending && o.Status != model.OrderStatusProcessing {
			return &InvalidStateError{
				Status: o.Status,
				Reason: fmt.Sprintf("cannot cancel a %s order", strings.ToLower(string(o.Status))),
			}
		}

		before := string(o.Status)
		fromVersion := o.Version
		t := m.now()
		o.Status = model.OrderStatusCancelled
		o.CancelledAt = &t
		o.CancelReason = reason
		if err := r.Orders().UpdateStatusVersioned(ctx, o, fromVersion); err != nil {
			return err
		}

		if err := r.AuditLogs().Create(ctx, model.AuditLog{
			ActorID:    actorID,
			Action:     model.AuditActionCancelOrder,
			OrderID:    orderID,
			BeforeJSON: statusJSON(before),
			AfterJSON:  fmt.Sprintf(`{"status":%q,"reason":%q}`, model.OrderStatusCancelled, reason),
			CreatedAt:  t,
		}); err != nil {
			return err
		}

		//在庫戻し
		items, err := r.OrderItems().ListByOrderID(ctx, orderID)
		if err != nil {
			return err
		}
		for _, it := range items {
			if err := r.Inventory().IncreaseStock(ctx, it.ProductID, it.Quantity); err != nil {
				return err
			}
		}

		//まだ決済途中のトランザクションが残っていたら閉じる
		if atx, found, err := r.Transactions().FindActiveByOrderID(ctx, orderID); err != nil {
			return err
		} else if found {
			fv := atx.Version
			atx.Status = model.TransactionStatusError
			if err := r.Transactions().UpdateStatusVersioned(ctx, atx, fv); err != nil {
				return err
			}
		}

		//返金要求済みなら承認済みトランザクションに参照を残す
		if refundRef != "" {
			txs, err := r.Transactions().ListByOrderID(ctx, orderID)
			if err != nil {
				return err
			}
			for i := len(txs) - 1; i >= 0; i-- {
				if txs[i].Status == model.TransactionStatusApproved {
					fv := txs[i].Version
					txs[i].RefundRef = refundRef
					if err := r.Transactions().UpdateStatusVersioned(ctx, txs[i], fv); err != nil {
						return err
					}
					break
				}
			}
		}

		m.log.Info("order cancelled",
			zap.Int64("order_id", orderID),
			zap.String("reason", reason))
		return nil
	})
}

// ApplyShipped はPROCESSINGからのみ
func (m *StateMachine) ApplyShipped(ctx context.Context, orderID int64, actorID int64) error {
	return m.withConflictRetry(ctx, func(r repo.TxRepos) error {
		o, err := r.Orders().FindByID(ctx, orderID)
		if err != nil {
			return err
		}
		if o.Status == model.OrderStatusShipped {
			return nil
		}
		if o.Status != model.OrderStatusProcessing {
			return &IllegalTransitionError{From: string(o.Status), To: string(model.OrderStatusShipped)}
		}

		before := string(o.Status)
		fromVersion := o.Version
		t := m.now()
		o.Status = model.OrderStatusShipped
		o.ShippedAt = &t
		if err := r.Orders().UpdateStatusVersioned(ctx, o, fromVersion); err != nil {
			return err
		}

		//監査ログは遷移と同じTXで残す
		return r.AuditLogs().Create(ctx, model.AuditLog{
			ActorID:    actorID,
			Action:     model.AuditActionShipOrder,
			OrderID:    orderID,
			BeforeJSON: statusJSON(before),
			AfterJSON:  statusJSON(string(model.OrderStatusShipped)),
			CreatedAt:  t,
		})
	})
}

// ApplyDelivered はSHIPPEDからのみ
func (m *StateMachine) ApplyDelivered(ctx context.Context, orderID int64, actorID int64) error {
	return m.withConflictRetry(ctx, func(r repo.TxRepos) error {
		o, err := r.Orders().FindByID(ctx, orderID)
		if err != nil {
			return err
		}
		if o.Status == model.OrderStatusDelivered {
			return nil
		}
		if o.Status != model.OrderStatusShipped {
			return &IllegalTransitionError{From: string(o.Status), To: string(model.OrderStatusDelivered)}
		}

		before := string(o.Status)
		fromVersion := o.Version
		t := m.now()
		o.Status = model.OrderStatusDelivered
		o.DeliveredAt = &t
		if err := r.Orders().UpdateStatusVersioned(ctx, o, fromVersion); err != nil {
			return err
		}

		return r.AuditLogs().Create(ctx, model.AuditLog{
			ActorID:    actorID,
			Action:     model.AuditActionDeliverOrder,
			OrderID:    orderID,
			BeforeJSON: statusJSON(before),
			AfterJSON:  statusJSON(string(model.OrderStatusDelivered)),
			CreatedAt:  t,
		})
	})
}
