package model

import (
	"time"

	"github.com/shopspring/decimal"

	"marketpay/internal/domain/money"
)

// CommissionRecord は約定した注文1件につき1レコード。作成後は不変で、
// 訂正は打ち消しレコードを追加する（上書きはしない）。
type CommissionRecord struct {
	ID       int64 `gorm:"primaryKey;autoIncrement" json:"id"`
	OrderID  int64 `gorm:"not null;uniqueIndex" json:"order_id"`
	VendorID int64 `gorm:"not null;index" json:"vendor_id"`

	Rate           decimal.Decimal `gorm:"type:numeric(5,4);not null" json:"rate"`
	VendorAmount   money.Money     `gorm:"type:numeric(12,2);not null" json:"vendor_amount"`
	PlatformAmount money.Money     `gorm:"type:numeric(12,2);not null" json:"platform_amount"`

	CreatedAt time.Time `gorm:"not null;autoCreateTime" json:"created_at"`
}

// CheckSum はvendor + platform == 注文金額を確認する
func (c CommissionRecord) CheckSum(orderAmount money.Money) bool {
	return c.VendorAmount.Add(c.PlatformAmount).Equal(orderAmount)
}
