// Package money provides fixed-scale decimal arithmetic for balances,
// quantities, prices and percentages. All persisted monetary values go
// through these helpers; float64 is only allowed on outbound broadcast
// payloads.
package money

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Scales used across the data model.
const (
	QtyScale = 8 // asset quantities and prices
	USDScale = 2 // USD-denominated balances
	PctScale = 4 // percentages and confidence
)

// maxSignificandBits is the significand limit; values past this indicate
// corrupt inputs rather than legitimate balances.
const maxSignificandBits = 128

var (
	Zero    = decimal.Zero
	Hundred = decimal.NewFromInt(100)
)

// FromString parses a decimal from its store representation.
func FromString(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid decimal %q: %w", s, err)
	}
	return d, nil
}

// MustFromString parses a decimal literal, panicking on malformed input.
// Only for constants and tests.
func MustFromString(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// USD rounds to balance scale with banker's rounding.
func USD(d decimal.Decimal) decimal.Decimal {
	return d.RoundBank(USDScale)
}

// Qty rounds to quantity/price scale with banker's rounding.
func Qty(d decimal.Decimal) decimal.Decimal {
	return d.RoundBank(QtyScale)
}

// Pct rounds to percentage/confidence scale with banker's rounding.
func Pct(d decimal.Decimal) decimal.Decimal {
	return d.RoundBank(PctScale)
}

// Div divides a by b, yielding the dividend's scale with banker's
// rounding. Returns zero when b is zero; callers that must distinguish
// use b.IsZero() first.
func Div(a, b decimal.Decimal) decimal.Decimal {
	if b.IsZero() {
		return decimal.Zero
	}
	scale := int32(0)
	if a.Exponent() < 0 {
		scale = -a.Exponent()
	}
	return a.DivRound(b, scale+4).RoundBank(scale)
}

// DivQty divides a by b at quantity/price scale with banker's
// rounding, for deriving quantities and per-unit prices from USD
// amounts. Returns zero when b is zero.
func DivQty(a, b decimal.Decimal) decimal.Decimal {
	if b.IsZero() {
		return decimal.Zero
	}
	return a.DivRound(b, QtyScale+4).RoundBank(QtyScale)
}

// Mean returns the arithmetic mean at percentage scale, or zero for an
// empty slice. No division by zero on empty input.
func Mean(values []decimal.Decimal) decimal.Decimal {
	if len(values) == 0 {
		return decimal.Zero
	}
	sum := decimal.Zero
	for _, v := range values {
		sum = sum.Add(v)
	}
	return sum.DivRound(decimal.NewFromInt(int64(len(values))), PctScale+4).RoundBank(PctScale)
}

// Sum adds all values preserving the widest operand scale.
func Sum(values []decimal.Decimal) decimal.Decimal {
	sum := decimal.Zero
	for _, v := range values {
		sum = sum.Add(v)
	}
	return sum
}

// CheckRange reports a fatal overflow when the significand exceeds 128
// bits. shopspring/decimal is arbitrary precision, so this only trips on
// corrupt data.
func CheckRange(d decimal.Decimal) error {
	if d.Coefficient().BitLen() > maxSignificandBits {
		return fmt.Errorf("decimal overflow: significand exceeds %d bits", maxSignificandBits)
	}
	return nil
}

// ToFloat converts for broadcast payloads only. Never feed the result
// back into persisted state.
func ToFloat(d decimal.Decimal) float64 {
	f, _ := d.Float64()
	return f
}

// ConfidenceFromRaw normalizes a model-reported confidence: values on a
// 0-100 scale are rescaled to 0-1, then clamped.
func ConfidenceFromRaw(v float64) decimal.Decimal {
	if v > 1 {
		v = v / 100
	}
	if v < 0 {
		v = 0
	}
	if v > 1 {
		v = 1
	}
	return decimal.NewFromFloat(v).RoundBank(PctScale)
}
