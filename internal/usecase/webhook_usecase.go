package usecase

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"marketpay/internal/domain/model"
	"marketpay/internal/gateway"
	"marketpay/internal/logger"
	repo "marketpay/internal/repository"
)

// InboundEvent は署名検証済みのwebhook payload
type InboundEvent struct {
	EventID    string
	EventType  string
	TxRef      string
	Status     string
	RefundRef  string
	RawPayload string
}

// WebhookUsecase は検証済みイベントを型付きコマンドにして状態機械へ流す。
// Order/Transactionのフィールドを直接触ることはない。
type WebhookUsecase struct {
	tx  repo.TransactionManager
	sm  *StateMachine
	gw  gateway.Client
	log *zap.Logger
}

func NewWebhookUsecase(tx repo.TransactionManager, sm *StateMachine, gw gateway.Client) *WebhookUsecase {
	return &WebhookUsecase{tx: tx, sm: sm, gw: gw, log: logger.L()}
}

// mapGatewayStatus はゲートウェイの自由形式statusを内部enumへ閉じ込める。
// 未知の値はfalseで返して呼び出し側でフラグを立てる。
func mapGatewayStatus(s string) (model.TransactionStatus, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "pending":
		return model.TransactionStatusPending, true
	case "processing":
		return model.TransactionStatusProcessing, true
	case "approved", "succeeded":
		return model.TransactionStatusApproved, true
	case "declined", "failed":
		return model.TransactionStatusDeclined, true
	case "error":
		return model.TransactionStatusError, true
	default:
		return "", false
	}
}

// Process はイベントを適用する。
// 戻りがnil＝ゲートウェイへ200を返してよい（適用済み・重複・非リトライ異常）。
// エラー＝一時障害なので5xxで再配送させる。
func (u *WebhookUsecase) Process(ctx context.Context, ev InboundEvent) error {
	if ev.EventID == "" || ev.TxRef == "" {
		//payload自体が欠けている。再送されても直らない。
		u.log.Warn("webhook event missing identifiers acknowledged",
			zap.String("event_type", ev.EventType))
		return nil
	}

	//返金完了は状態を動かさず消し込みだけ
	if strings.HasPrefix(strings.ToLower(ev.EventType), "refund.") {
		err := u.sm.ApplyRefundCompleted(ctx, ev.EventID, ev.TxRef, ev.RefundRef, ev.RawPayload)
		return u.classify(ctx, ev, err)
	}

	status, ok := mapGatewayStatus(ev.Status)
	if !ok {
		//未知の語彙は状態機械に入れない。運用フラグを立てて受理する。
		u.log.Error("unknown gateway status flagged",
			zap.String("event_id", ev.EventID),
			zap.String("status", ev.Status))
		return nil
	}

	err := u.sm.ApplyPaymentEvent(ctx, PaymentEvent{
		EventID:    ev.EventID,
		EventType:  ev.EventType,
		GatewayRef: ev.TxRef,
		Status:     status,
		RawPayload: ev.RawPayload,
	})
	return u.classify(ctx, ev, err)
}

// classify は検証後の処理失敗を「再送で直るか」で分ける
func (u *WebhookUsecase) classify(_ context.Context, ev InboundEvent, err error) error {
	if err == nil {
		return nil
	}

	//参照先が無いのは再送しても直らない。受理して異常として残す。
	if errors.Is(err, repo.ErrNotFound) {
		u.log.Error("webhook references unknown transaction, acknowledged",
			zap.String("event_id", ev.EventID),
			zap.String("tx_ref", ev.TxRef))
		return nil
	}

	//金額整合の破れも再送では直らない。止めてアラートする。
	var iv *InvariantViolationError
	if errors.As(err, &iv) {
		u.log.Error("invariant violation during webhook processing, operator attention required",
			zap.String("event_id", ev.EventID),
			zap.String("detail", iv.Message))
		return nil
	}

	//それ以外（DB障害など）は5xxで再配送してもらう
	return err
}

// ReconcileOrder はintentの結果が不明なまま残った注文をポーリングで突き合わせる。
// 結果は合成event_id付きで通常の状態機械経路に流すので二重適用にならない。
func (u *WebhookUsecase) ReconcileOrder(ctx context.Context, orderID int64) error {
	var ref string
	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		atx, found, err := r.Transactions().FindActiveByOrderID(ctx, orderID)
		if err != nil {
			return err
		}
		if !found {
			return nil
		}
		ref = atx.GatewayRef
		return nil
	})
	if err != nil {
		return err
	}
	if ref == "" {
		//未終了のトランザクションが無ければ突き合わせ対象なし
		return nil
	}

	raw, err := u.gw.GetStatus(ctx, ref)
	if err != nil {
		return err
	}

	status, ok := mapGatewayStatus(raw)
	if !ok {
		u.log.Error("unknown gateway status from polling flagged",
			zap.String("tx_ref", ref),
			zap.String("status", raw))
		return nil
	}

	return u.sm.ApplyPaymentEvent(ctx, PaymentEvent{
		EventID:    "poll:" + ref + ":" + string(status),
		EventType:  "poll.status",
		GatewayRef: ref,
		Status:     status,
		RawPayload: raw,
	})
}
