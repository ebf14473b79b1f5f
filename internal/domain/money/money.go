package money

import (
	"database/sql/driver"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// 金額はscale 2の固定小数で持つ。floatは使わない。
const scale = 2

var (
	ErrInvalidAmount = errors.New("invalid amount")
	ErrInvalidRate   = errors.New("rate must be in [0,1]")
)

// Money は通貨金額（小数2桁固定）
type Money struct {
	d decimal.Decimal
}

func Zero() Money {
	return Money{d: decimal.Zero}
}

func FromDecimal(d decimal.Decimal) Money {
	return Money{d: d.Round(scale)}
}

func FromString(s string) (Money, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Money{}, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	//入力の桁数はscale以下のみ許可（勝手に丸めない）
	if d.Exponent() < -scale {
		return Money{}, fmt.Errorf("%w: %q has too many decimal places", ErrInvalidAmount, s)
	}
	return Money{d: d.Round(scale)}, nil
}

func FromCents(c int64) Money {
	return Money{d: decimal.New(c, -scale)}
}

func (m Money) Add(o Money) Money     { return Money{d: m.d.Add(o.d)} }
func (m Money) Sub(o Money) Money     { return Money{d: m.d.Sub(o.d)} }
func (m Money) MulInt(q int64) Money  { return Money{d: m.d.Mul(decimal.NewFromInt(q))} }
func (m Money) Cmp(o Money) int       { return m.d.Cmp(o.d) }
func (m Money) Equal(o Money) bool    { return m.d.Equal(o.d) }
func (m Money) IsZero() bool          { return m.d.IsZero() }
func (m Money) IsPositive() bool      { return m.d.IsPositive() }
func (m Money) IsNegative() bool      { return m.d.IsNegative() }
func (m Money) Decimal() decimal.Decimal { return m.d }

func (m Money) Cents() int64 {
	return m.d.Shift(scale).IntPart()
}

func (m Money) String() string {
	return m.d.StringFixed(scale)
}

// SplitRate は手数料率でプラットフォーム分と出品者分に分ける。
// プラットフォーム分を四捨五入し、残りを出品者分にするので合計は必ず元の金額と一致する。
func (m Money) SplitRate(rate decimal.Decimal) (platform Money, vendor Money, err error) {
	if rate.IsNegative() || rate.GreaterThan(decimal.NewFromInt(1)) {
		return Money{}, Money{}, ErrInvalidRate
	}
	if !m.IsPositive() {
		return Money{}, Money{}, ErrInvalidAmount
	}
	platform = Money{d: m.d.Mul(rate).Round(scale)}
	vendor = m.Sub(platform)
	return platform, vendor, nil
}

// --- DB / JSON境界 ---

func (m Money) Value() (driver.Value, error) {
	return m.d.StringFixed(scale), nil
}

func (m *Money) Scan(value interface{}) error {
	var d decimal.Decimal
	if err := d.Scan(value); err != nil {
		return err
	}
	m.d = d.Round(scale)
	return nil
}

func (m Money) MarshalJSON() ([]byte, error) {
	return []byte(`"` + m.d.StringFixed(scale) + `"`), nil
}

func (m *Money) UnmarshalJSON(b []byte) error {
	s := string(b)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	parsed, err := FromString(s)
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}
