package model

import (
	"time"

	"marketpay/internal/domain/money"
)

type TransactionStatus string

const (
	TransactionStatusPending    TransactionStatus = "PENDING"
	TransactionStatusProcessing TransactionStatus = "PROCESSING"
	TransactionStatusApproved   TransactionStatus = "APPROVED"
	TransactionStatusDeclined   TransactionStatus = "DECLINED"
	TransactionStatusError      TransactionStatus = "ERROR"
)

func (s TransactionStatus) IsTerminal() bool {
	switch s {
	case TransactionStatusApproved, TransactionStatusDeclined, TransactionStatusError:
		return true
	}
	return false
}

// Rank は遷移の前後関係。古いイベントの巻き戻しを検出するために使う。
func (s TransactionStatus) Rank() int {
	switch s {
	case TransactionStatusPending:
		return 0
	case TransactionStatusProcessing:
		return 1
	default:
		return 2
	}
}

type PaymentTransaction struct {
	ID      int64 `gorm:"primaryKey;autoIncrement" json:"id"`
	OrderID int64 `gorm:"not null;index" json:"order_id"`

	//ゲートウェイ側の参照ID。採番後は不変。
	GatewayRef string `gorm:"type:varchar(128);uniqueIndex" json:"gateway_ref"`

	//作成時のOrder.totalと必ず一致する。以後変更しない。
	Amount   money.Money       `gorm:"type:numeric(12,2);not null" json:"amount"`
	Currency string            `gorm:"type:varchar(8);not null" json:"currency"`
	Status   TransactionStatus `gorm:"type:varchar(20);not null;index" json:"status"`

	//監査用にゲートウェイの生payloadをそのまま残す
	RawPayload string `gorm:"type:text" json:"-"`

	//返金要求時のゲートウェイ参照
	RefundRef string `gorm:"type:varchar(128)" json:"refund_ref,omitempty"`

	Version int64 `gorm:"not null;default:0" json:"-"`

	CreatedAt   time.Time  `gorm:"not null;autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time  `gorm:"not null;autoUpdateTime" json:"updated_at"`
	ConfirmedAt *time.Time `json:"confirmed_at,omitempty"`
}
