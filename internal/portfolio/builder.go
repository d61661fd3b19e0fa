// Package portfolio builds the account snapshot agents reason over.
// The snapshot is advisory input; a failed build degrades to a minimal
// context rather than blocking the cycle.
package portfolio

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/quorumtrade/quorumtrade/internal/db"
	"github.com/quorumtrade/quorumtrade/internal/money"
)

// RiskLevel classifies how close the book is to liquidation.
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
	RiskUnknown  RiskLevel = "unknown"
)

// PositionContext is one open exposure as agents see it. BOTH-side
// rows have already been normalized to LONG/SHORT with an absolute
// amount.
type PositionContext struct {
	Side             db.PositionSide  `json:"side"`
	PositionAmt      decimal.Decimal  `json:"position_amt"`
	EntryPrice       decimal.Decimal  `json:"entry_price"`
	CurrentPrice     decimal.Decimal  `json:"current_price"`
	MarkPrice        decimal.Decimal  `json:"mark_price"`
	UnrealizedPnL    decimal.Decimal  `json:"unrealized_pnl"`
	Leverage         int              `json:"leverage"`
	Notional         decimal.Decimal  `json:"notional"`
	LiquidationPrice *decimal.Decimal `json:"liquidation_price,omitempty"`
	MarginUsed       decimal.Decimal  `json:"margin_used"`
	OpenedAt         time.Time        `json:"opened_at"`
}

// Context is the snapshot handed to every agent invocation.
type Context struct {
	CouncilID        int64                      `json:"council_id"`
	InitialCapital   decimal.Decimal            `json:"initial_capital"`
	AvailableBalance decimal.Decimal            `json:"available_balance"`
	TotalValue       decimal.Decimal            `json:"total_value"`
	UnrealizedPnL    decimal.Decimal            `json:"unrealized_pnl"`
	Positions        map[string]PositionContext `json:"positions"`
	TotalPositions   int                        `json:"total_positions"`
	TotalNotional    decimal.Decimal            `json:"total_notional"`
	MarginUsageRatio decimal.Decimal            `json:"margin_usage_ratio"`
	LiquidationRisk  RiskLevel                  `json:"liquidation_risk"`
	BuiltAt          time.Time                  `json:"built_at"`
}

// PositionReader is the slice of the repository layer the builder
// needs.
type PositionReader interface {
	FindOpen(ctx context.Context, councilID int64, symbol string) ([]*db.FuturesPosition, error)
}

// PriceSource provides current marks for snapshot valuation.
type PriceSource interface {
	MarkPrice(ctx context.Context, symbol string) (decimal.Decimal, error)
}

// Builder assembles portfolio contexts for councils.
type Builder struct {
	positions PositionReader
	prices    PriceSource
	logger    zerolog.Logger
}

// NewBuilder creates a portfolio context builder.
func NewBuilder(positions PositionReader, prices PriceSource, logger zerolog.Logger) *Builder {
	return &Builder{
		positions: positions,
		prices:    prices,
		logger:    logger.With().Str("component", "portfolio").Logger(),
	}
}

// Build produces the snapshot for a council over the given symbols.
// On read failure it returns a minimal context with risk "unknown"
// and a nil error; the snapshot is advisory, never a hard gate.
func (b *Builder) Build(ctx context.Context, council *db.Council, symbols []string) *Context {
	out := &Context{
		CouncilID:        council.ID,
		InitialCapital:   council.InitialCapital,
		AvailableBalance: council.AvailableBalance,
		TotalValue:       council.TotalAccountValue,
		UnrealizedPnL:    council.UnrealizedProfit,
		Positions:        make(map[string]PositionContext),
		LiquidationRisk:  RiskLow,
		BuiltAt:          time.Now().UTC(),
	}

	open, err := b.positions.FindOpen(ctx, council.ID, "")
	if err != nil {
		b.logger.Warn().Err(err).Int64("council_id", council.ID).
			Msg("portfolio read failed, returning minimal context")
		out.LiquidationRisk = RiskUnknown
		return out
	}

	totalNotional := decimal.Zero
	totalMargin := decimal.Zero
	worst := RiskLow

	for _, p := range open {
		side, amt, ok := NormalizeSide(p.Side, p.PositionAmt)
		if !ok {
			continue
		}

		current := p.MarkPrice
		if b.prices != nil {
			if mark, err := b.prices.MarkPrice(ctx, p.Symbol); err == nil && !mark.IsZero() {
				current = mark
			}
		}

		pc := PositionContext{
			Side:          side,
			PositionAmt:   amt,
			EntryPrice:    p.EntryPrice,
			CurrentPrice:  current,
			MarkPrice:     current,
			UnrealizedPnL: p.UnrealizedProfit,
			Leverage:      p.Leverage,
			Notional:      money.USD(amt.Mul(current)),
			MarginUsed:    p.IsolatedMargin,
			OpenedAt:      p.OpenedAt,
		}
		if !p.LiquidationPrice.IsZero() {
			liq := p.LiquidationPrice
			pc.LiquidationPrice = &liq

			risk := classifyRisk(side, current, liq)
			if riskRank(risk) > riskRank(worst) {
				worst = risk
			}
		}

		out.Positions[p.Symbol] = pc
		totalNotional = totalNotional.Add(pc.Notional)
		totalMargin = totalMargin.Add(p.IsolatedMargin)
	}

	out.TotalPositions = len(out.Positions)
	out.TotalNotional = totalNotional
	out.MarginUsageRatio = money.Pct(money.DivQty(totalMargin, council.AvailableBalance))
	out.LiquidationRisk = worst

	return out
}

// NormalizeSide resolves one-way (BOTH) rows to an explicit direction
// with an absolute amount. Zero-quantity rows are dropped.
func NormalizeSide(side db.PositionSide, amt decimal.Decimal) (db.PositionSide, decimal.Decimal, bool) {
	if amt.IsZero() {
		return side, amt, false
	}
	if side == db.PositionSideBoth {
		if amt.IsNegative() {
			return db.PositionSideShort, amt.Abs(), true
		}
		return db.PositionSideLong, amt, true
	}
	return side, amt.Abs(), true
}

// classifyRisk buckets the distance to liquidation. Distance below 5%
// is critical, below 10% high, below 20% medium.
func classifyRisk(side db.PositionSide, current, liquidation decimal.Decimal) RiskLevel {
	if current.IsZero() {
		return RiskUnknown
	}

	var distance decimal.Decimal
	switch side {
	case db.PositionSideShort:
		distance = liquidation.Sub(current).Div(current).Mul(decimal.NewFromInt(100))
	default:
		distance = current.Sub(liquidation).Div(current).Mul(decimal.NewFromInt(100))
	}

	switch {
	case distance.LessThan(decimal.NewFromInt(5)):
		return RiskCritical
	case distance.LessThan(decimal.NewFromInt(10)):
		return RiskHigh
	case distance.LessThan(decimal.NewFromInt(20)):
		return RiskMedium
	default:
		return RiskLow
	}
}

func riskRank(r RiskLevel) int {
	switch r {
	case RiskCritical:
		return 3
	case RiskHigh:
		return 2
	case RiskMedium:
		return 1
	default:
		return 0
	}
}
