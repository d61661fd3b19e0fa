package money

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDivPreservesDividendScale(t *testing.T) {
	a := MustFromString("10.00")
	b := MustFromString("3")

	got := Div(a, b)
	assert.Equal(t, "3.33", got.StringFixed(2))
	assert.Equal(t, int32(-2), got.Exponent())
}

func TestDivByZeroYieldsZero(t *testing.T) {
	assert.True(t, Div(MustFromString("5.5"), decimal.Zero).IsZero())
}

func TestDivBankersRounding(t *testing.T) {
	// 0.125 at scale 2 rounds to even: 0.12
	got := MustFromString("0.25").DivRound(decimal.NewFromInt(2), 6).RoundBank(2)
	assert.Equal(t, "0.12", got.StringFixed(2))
}

func TestDivQtyDerivesQuantityFromUSD(t *testing.T) {
	// 1600 USD at 50000 buys 0.032; the USD scale must not truncate it.
	got := DivQty(MustFromString("1600.00"), MustFromString("50000"))
	assert.True(t, got.Equal(MustFromString("0.032")), "got %s", got)

	assert.True(t, DivQty(MustFromString("1"), decimal.Zero).IsZero())
}

func TestMeanEmptyIsZero(t *testing.T) {
	assert.True(t, Mean(nil).IsZero())
}

func TestMean(t *testing.T) {
	vals := []decimal.Decimal{
		MustFromString("0.8"),
		MustFromString("0.6"),
		MustFromString("0.7"),
	}
	assert.Equal(t, "0.7000", Mean(vals).StringFixed(4))
}

func TestConfidenceFromRaw(t *testing.T) {
	tests := []struct {
		name string
		in   float64
		want string
	}{
		{"already unit scale", 0.85, "0.8500"},
		{"percent scale", 85, "0.8500"},
		{"negative clamped", -2, "0.0000"},
		{"above hundred clamped", 250, "1.0000"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ConfidenceFromRaw(tt.in).StringFixed(4))
		})
	}
}

func TestFromStringRoundTrip(t *testing.T) {
	d, err := FromString("12345.67890123")
	require.NoError(t, err)
	assert.Equal(t, "12345.67890123", d.String())

	_, err = FromString("not-a-number")
	assert.Error(t, err)
}

func TestCheckRange(t *testing.T) {
	require.NoError(t, CheckRange(MustFromString("99999999999999999999.99")))

	huge := decimal.New(1, 0)
	for i := 0; i < 5; i++ {
		huge = huge.Mul(MustFromString("100000000000000000000000000"))
	}
	assert.Error(t, CheckRange(huge))
}
