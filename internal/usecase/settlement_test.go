package usecase

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"marketpay/internal/domain/model"
)

func TestBuildCommissionRecord_SplitsExactly(t *testing.T) {
	o := model.Order{
		ID:       10,
		VendorID: 5,
		Total:    mustMoney(t, "134.00"),
	}

	rec, err := BuildCommissionRecord(o, decimal.RequireFromString("0.10"))

	assert.NoError(t, err)
	assert.True(t, rec.PlatformAmount.Equal(mustMoney(t, "13.40")))
	assert.True(t, rec.VendorAmount.Equal(mustMoney(t, "120.60")))
	assert.True(t, rec.CheckSum(o.Total))
}

func TestBuildCommissionRecord_AwkwardRateStillSumsToTotal(t *testing.T) {
	o := model.Order{
		ID:       11,
		VendorID: 5,
		Total:    mustMoney(t, "10.01"),
	}

	rec, err := BuildCommissionRecord(o, decimal.RequireFromString("0.0333"))

	assert.NoError(t, err)
	//端数はプラットフォーム側で丸め、出品者分は引き算なので必ず一致する
	assert.True(t, rec.VendorAmount.Add(rec.PlatformAmount).Equal(o.Total))
}

func TestBuildCommissionRecord_InvalidRateFailsClosed(t *testing.T) {
	o := model.Order{
		ID:       12,
		VendorID: 5,
		Total:    mustMoney(t, "134.00"),
	}

	_, err := BuildCommissionRecord(o, decimal.RequireFromString("1.5"))

	var iv *InvariantViolationError
	assert.ErrorAs(t, err, &iv)

	_, err = BuildCommissionRecord(o, decimal.RequireFromString("-0.1"))
	assert.ErrorAs(t, err, &iv)
}
