package model

import (
	"time"

	"marketpay/internal/domain/money"
)

type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "PENDING"
	OrderStatusProcessing OrderStatus = "PROCESSING"
	OrderStatusShipped    OrderStatus = "SHIPPED"
	OrderStatusDelivered  OrderStatus = "DELIVERED"
	OrderStatusCancelled  OrderStatus = "CANCELLED"
)

// IsTerminal はこれ以上遷移しない状態かどうか
func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusDelivered || s == OrderStatusCancelled
}

type Order struct {
	ID          int64       `gorm:"primaryKey;autoIncrement" json:"id"`
	OrderNumber string      `gorm:"type:varchar(32);not null;uniqueIndex" json:"order_number"`
	BuyerID     int64       `gorm:"not null;uniqueIndex:idx_orders_buyer_idempotency_key" json:"buyer_id"`
	VendorID    int64       `gorm:"not null;index" json:"vendor_id"`
	Status      OrderStatus `gorm:"type:varchar(20);not null;index" json:"status"`

	Subtotal money.Money `gorm:"type:numeric(12,2);not null" json:"subtotal"`
	Tax      money.Money `gorm:"type:numeric(12,2);not null" json:"tax"`
	Shipping money.Money `gorm:"type:numeric(12,2);not null" json:"shipping"`
	Discount money.Money `gorm:"type:numeric(12,2);not null" json:"discount"`
	Total    money.Money `gorm:"type:numeric(12,2);not null" json:"total"`

	//配送先は注文時点のスナップショット（住所マスタ変更の影響を受けない）
	ShippingName    string `gorm:"type:varchar(255);not null" json:"shipping_name"`
	ShippingAddress string `gorm:"type:text;not null" json:"shipping_address"`

	CancelReason string `gorm:"type:varchar(255)" json:"cancel_reason,omitempty"`

	//一意性はbuyer単位。別のbuyerが同じキーを使っても衝突しない。
	IdempotencyKey string `gorm:"type:varchar(255);not null;uniqueIndex:idx_orders_buyer_idempotency_key" json:"-"`

	//楽観ロック用
	Version int64 `gorm:"not null;default:0" json:"-"`

	CreatedAt   time.Time  `gorm:"not null;autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time  `gorm:"not null;autoUpdateTime" json:"updated_at"`
	ConfirmedAt *time.Time `json:"confirmed_at,omitempty"`
	ShippedAt   *time.Time `json:"shipped_at,omitempty"`
	DeliveredAt *time.Time `json:"delivered_at,omitempty"`
	CancelledAt *time.Time `json:"cancelled_at,omitempty"`
}

// CheckTotals はtotal == subtotal + tax + shipping - discountを確認する。
// 金額を書くところでは必ず呼ぶ。
func (o Order) CheckTotals() bool {
	want := o.Subtotal.Add(o.Tax).Add(o.Shipping).Sub(o.Discount)
	return o.Total.Equal(want)
}
