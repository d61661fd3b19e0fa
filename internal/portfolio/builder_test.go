package portfolio

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quorumtrade/quorumtrade/internal/db"
)

type fakePositions struct {
	positions []*db.FuturesPosition
	err       error
}

func (f *fakePositions) FindOpen(_ context.Context, _ int64, _ string) ([]*db.FuturesPosition, error) {
	return f.positions, f.err
}

type fakePrices struct {
	marks map[string]decimal.Decimal
}

func (f *fakePrices) MarkPrice(_ context.Context, symbol string) (decimal.Decimal, error) {
	if m, ok := f.marks[symbol]; ok {
		return m, nil
	}
	return decimal.Zero, errors.New("no price")
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func testCouncil() *db.Council {
	return &db.Council{
		ID:                42,
		InitialCapital:    dec("10000"),
		AvailableBalance:  dec("8000"),
		TotalAccountValue: dec("10100"),
		UnrealizedProfit:  dec("100"),
	}
}

func TestBuildNormalizesBothSide(t *testing.T) {
	positions := &fakePositions{positions: []*db.FuturesPosition{
		{
			Symbol: "BTCUSDT", Side: db.PositionSideBoth,
			PositionAmt: dec("-0.5"), EntryPrice: dec("50000"), MarkPrice: dec("49000"),
			Leverage: 5, IsolatedMargin: dec("4900"), OpenedAt: time.Now(),
		},
		{
			Symbol: "ETHUSDT", Side: db.PositionSideBoth,
			PositionAmt: dec("0"), EntryPrice: dec("3000"), MarkPrice: dec("3000"),
		},
	}}

	b := NewBuilder(positions, nil, zerolog.Nop())
	ctx := b.Build(context.Background(), testCouncil(), []string{"BTCUSDT", "ETHUSDT"})

	require.Len(t, ctx.Positions, 1, "zero-amount rows are excluded")
	p := ctx.Positions["BTCUSDT"]
	assert.Equal(t, db.PositionSideShort, p.Side)
	assert.True(t, p.PositionAmt.Equal(dec("0.5")), "amount normalized to absolute")
}

func TestBuildLiquidationRiskWorstOf(t *testing.T) {
	liqNear := dec("48000")  // 2% below current 49000 -> critical
	liqFar := dec("2000")    // far from 3000 -> low
	positions := &fakePositions{positions: []*db.FuturesPosition{
		{
			Symbol: "BTCUSDT", Side: db.PositionSideLong,
			PositionAmt: dec("1"), EntryPrice: dec("50000"), MarkPrice: dec("49000"),
			LiquidationPrice: liqNear, Leverage: 20, IsolatedMargin: dec("2450"),
		},
		{
			Symbol: "ETHUSDT", Side: db.PositionSideLong,
			PositionAmt: dec("2"), EntryPrice: dec("3000"), MarkPrice: dec("3000"),
			LiquidationPrice: liqFar, Leverage: 2, IsolatedMargin: dec("3000"),
		},
	}}

	b := NewBuilder(positions, nil, zerolog.Nop())
	ctx := b.Build(context.Background(), testCouncil(), []string{"BTCUSDT", "ETHUSDT"})

	assert.Equal(t, RiskCritical, ctx.LiquidationRisk)
	assert.Equal(t, 2, ctx.TotalPositions)
}

func TestBuildUsesLivePrices(t *testing.T) {
	positions := &fakePositions{positions: []*db.FuturesPosition{
		{
			Symbol: "BTCUSDT", Side: db.PositionSideLong,
			PositionAmt: dec("0.1"), EntryPrice: dec("50000"), MarkPrice: dec("50000"),
			Leverage: 1,
		},
	}}
	prices := &fakePrices{marks: map[string]decimal.Decimal{"BTCUSDT": dec("52000")}}

	b := NewBuilder(positions, prices, zerolog.Nop())
	ctx := b.Build(context.Background(), testCouncil(), []string{"BTCUSDT"})

	p := ctx.Positions["BTCUSDT"]
	assert.True(t, p.CurrentPrice.Equal(dec("52000")))
	assert.True(t, p.Notional.Equal(dec("5200.00")))
}

func TestBuildReadErrorDegradesToMinimal(t *testing.T) {
	positions := &fakePositions{err: errors.New("connection reset")}

	b := NewBuilder(positions, nil, zerolog.Nop())
	ctx := b.Build(context.Background(), testCouncil(), []string{"BTCUSDT"})

	assert.Equal(t, RiskUnknown, ctx.LiquidationRisk)
	assert.Empty(t, ctx.Positions)
	assert.True(t, ctx.AvailableBalance.Equal(dec("8000")), "balances come from the council row")
}

func TestClassifyRiskBuckets(t *testing.T) {
	tests := []struct {
		name        string
		side        db.PositionSide
		current     string
		liquidation string
		want        RiskLevel
	}{
		{"long critical", db.PositionSideLong, "100", "96", RiskCritical},
		{"long high", db.PositionSideLong, "100", "92", RiskHigh},
		{"long medium", db.PositionSideLong, "100", "85", RiskMedium},
		{"long low", db.PositionSideLong, "100", "50", RiskLow},
		{"short critical", db.PositionSideShort, "100", "104", RiskCritical},
		{"short low", db.PositionSideShort, "100", "150", RiskLow},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classifyRisk(tt.side, dec(tt.current), dec(tt.liquidation))
			assert.Equal(t, tt.want, got)
		})
	}
}
