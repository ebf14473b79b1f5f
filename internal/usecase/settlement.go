package usecase

import (
	"github.com/shopspring/decimal"

	"marketpay/internal/domain/model"
)

// BuildCommissionRecord は約定金額を手数料率で分配する。
// プラットフォーム分を丸め、出品者分は引き算で出すので合計は必ず一致する。
// 率や金額が不正なら作らずに止める（fail closed）。
func BuildCommissionRecord(o model.Order, rate decimal.Decimal) (model.CommissionRecord, error) {
	platform, vendor, err := o.Total.SplitRate(rate)
	if err != nil {
		return model.CommissionRecord{}, NewInvariantViolation(
			"commission split failed for order %d (rate=%s total=%s): %v",
			o.ID, rate.String(), o.Total.String(), err)
	}

	rec := model.CommissionRecord{
		OrderID:        o.ID,
		VendorID:       o.VendorID,
		Rate:           rate,
		VendorAmount:   vendor,
		PlatformAmount: platform,
	}

	//書き込み前にもう一度確認する
	if !rec.CheckSum(o.Total) {
		return model.CommissionRecord{}, NewInvariantViolation(
			"commission sum mismatch for order %d: vendor=%s platform=%s total=%s",
			o.ID, vendor.String(), platform.String(), o.Total.String())
	}

	return rec, nil
}
