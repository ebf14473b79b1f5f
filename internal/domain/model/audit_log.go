package model

import "time"

// 注文に対する操作の種類。
type AuditAction string

const (
	//出荷にした操作。
	AuditActionShipOrder AuditAction = "SHIP_ORDER"

	//配達完了にした操作。
	AuditActionDeliverOrder AuditAction = "DELIVER_ORDER"

	//キャンセルを確定した操作。
	AuditActionCancelOrder AuditAction = "CANCEL_ORDER"

	//ゲートウェイとの食い違い（終端同士の矛盾、キャンセル済みへの入金など）。
	//運用が後から突き合わせるためにログではなくレコードで残す。
	AuditActionPaymentAnomaly AuditAction = "PAYMENT_ANOMALY"
)

// 監査ログ。「誰が」「どの注文を」「どう変えたか」を残す。
// ActorID 0 はシステム起点（webhook・ポーリング）。
type AuditLog struct {
	ID int64 `gorm:"primaryKey;autoIncrement" json:"id"`

	ActorID int64 `gorm:"not null;index" json:"actor_id"`

	Action AuditAction `gorm:"type:varchar(50);not null;index" json:"action"`

	OrderID int64 `gorm:"not null;index" json:"order_id"`

	//JSON文字列で保存する。
	BeforeJSON string `gorm:"type:text" json:"before_json"`

	//JSON文字列で保存する。
	AfterJSON string `gorm:"type:text" json:"after_json"`

	CreatedAt time.Time `gorm:"not null;index" json:"created_at"`
}
