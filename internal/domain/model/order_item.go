package model

import (
	"time"

	"marketpay/internal/domain/money"
)

type OrderItem struct {
	ID        int64 `gorm:"primaryKey;autoIncrement" json:"id"`
	OrderID   int64 `gorm:"not null;index" json:"order_id"`
	ProductID int64 `gorm:"not null;index" json:"product_id"`

	//購入時点のスナップショット（カタログが変わっても不変）
	ProductNameSnapshot string `gorm:"type:varchar(255);not null" json:"product_name_snapshot"`
	SKUSnapshot         string `gorm:"type:varchar(64);not null" json:"sku_snapshot"`

	UnitPrice money.Money `gorm:"type:numeric(12,2);not null" json:"unit_price"`
	Quantity  int64       `gorm:"not null" json:"quantity"`
	LineTotal money.Money `gorm:"type:numeric(12,2);not null" json:"line_total"`

	CreatedAt time.Time `gorm:"not null;autoCreateTime" json:"created_at"`
}

// CheckLineTotal はline_total == unit_price * quantityを確認する
func (i OrderItem) CheckLineTotal() bool {
	return i.LineTotal.Equal(i.UnitPrice.MulInt(i.Quantity))
}
