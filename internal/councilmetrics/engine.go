// Package councilmetrics recomputes every derived account metric on a
// council from its positions and holdings. Recomputation is
// idempotent: without intervening state change it writes the same
// values again.
package councilmetrics

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/quorumtrade/quorumtrade/internal/db"
	"github.com/quorumtrade/quorumtrade/internal/money"
)

// PositionReader reads the futures book.
type PositionReader interface {
	FindAll(ctx context.Context, councilID int64) ([]*db.FuturesPosition, error)
}

// HoldingReader reads the spot book.
type HoldingReader interface {
	FindActive(ctx context.Context, councilID int64) ([]*db.SpotHolding, error)
}

// CouncilWriter flushes the recomputed metric columns.
type CouncilWriter interface {
	UpdateMetrics(ctx context.Context, c *db.Council) error
}

// SnapshotWriter appends the account-level time series and the
// per-instrument valuations.
type SnapshotWriter interface {
	InsertPerformance(ctx context.Context, s *db.CouncilPerformanceSnapshot) error
	InsertPnL(ctx context.Context, s *db.PnLSnapshot) error
}

// Engine recomputes and persists council metrics.
type Engine struct {
	positions PositionReader
	holdings  HoldingReader
	councils  CouncilWriter
	snapshots SnapshotWriter
	logger    zerolog.Logger
}

// NewEngine creates the metrics engine.
func NewEngine(positions PositionReader, holdings HoldingReader, councils CouncilWriter, snapshots SnapshotWriter, logger zerolog.Logger) *Engine {
	return &Engine{
		positions: positions,
		holdings:  holdings,
		councils:  councils,
		snapshots: snapshots,
		logger:    logger.With().Str("component", "metrics").Logger(),
	}
}

// Recompute rebuilds the council's derived metrics in place, persists
// them, verifies the account identity, and appends one performance
// snapshot plus one valuation snapshot per open instrument.
func (e *Engine) Recompute(ctx context.Context, council *db.Council) error {
	var (
		positions []*db.FuturesPosition
		holdings  []*db.SpotHolding
		err       error
	)
	if council.TradingType == db.TradingTypeSpot {
		holdings, err = e.recomputeSpot(ctx, council)
	} else {
		positions, err = e.recomputeFutures(ctx, council)
	}
	if err != nil {
		return err
	}

	e.mirrorLegacy(council)

	if err := e.verifyIdentity(council); err != nil {
		return err
	}

	if err := e.councils.UpdateMetrics(ctx, council); err != nil {
		return fmt.Errorf("persist council metrics: %w", err)
	}

	if err := e.appendSnapshot(ctx, council); err != nil {
		return err
	}
	return e.snapshotInstruments(ctx, council, positions, holdings)
}

func (e *Engine) recomputeFutures(ctx context.Context, c *db.Council) ([]*db.FuturesPosition, error) {
	positions, err := e.positions.FindAll(ctx, c.ID)
	if err != nil {
		return nil, fmt.Errorf("load positions: %w", err)
	}

	var (
		unrealized = decimal.Zero
		realized   = decimal.Zero
		fees       = decimal.Zero
		funding    = decimal.Zero
		marginUsed = decimal.Zero

		openCount, closedCount, wins int
		biggestWin                   = decimal.Zero
		biggestLoss                  = decimal.Zero

		leverages   []decimal.Decimal
		confidences []decimal.Decimal
	)

	now := time.Now().UTC()
	var longSecs, shortSecs float64
	earliestOpen := now

	for _, p := range positions {
		fees = fees.Add(p.FeesPaid)
		funding = funding.Add(p.FundingFees)
		leverages = append(leverages, decimal.NewFromInt(int64(p.Leverage)))
		if p.Confidence != nil {
			confidences = append(confidences, *p.Confidence)
		}

		switch p.Status {
		case db.PositionStatusOpen:
			openCount++
			unrealized = unrealized.Add(p.UnrealizedProfit)
			marginUsed = marginUsed.Add(p.IsolatedMargin)
		default:
			closedCount++
			realized = realized.Add(p.RealizedPnL)
			if p.RealizedPnL.Sign() > 0 {
				wins++
			}
			if p.RealizedPnL.GreaterThan(biggestWin) {
				biggestWin = p.RealizedPnL
			}
			if p.RealizedPnL.LessThan(biggestLoss) {
				biggestLoss = p.RealizedPnL
			}
		}

		end := now
		if p.ClosedAt != nil {
			end = *p.ClosedAt
		}
		duration := end.Sub(p.OpenedAt).Seconds()
		if duration < 0 {
			duration = 0
		}
		switch p.Side {
		case db.PositionSideShort:
			shortSecs += duration
		default:
			longSecs += duration
		}
		if p.OpenedAt.Before(earliestOpen) {
			earliestOpen = p.OpenedAt
		}
	}

	c.UnrealizedProfit = money.USD(unrealized)
	c.RealizedPnL = money.USD(realized)
	c.TotalFees = money.USD(fees)
	c.TotalFundingFees = money.USD(funding)
	c.NetPnL = money.USD(realized.Sub(fees))
	c.UsedBalance = money.USD(marginUsed)
	c.TotalAccountValue = money.USD(c.InitialCapital.Add(realized).Add(unrealized).Sub(fees))

	available := c.TotalAccountValue.Sub(c.UsedBalance)
	if available.IsNegative() {
		available = decimal.Zero
	}
	c.AvailableBalance = available

	c.OpenFuturesCount = openCount
	c.ClosedFuturesCount = closedCount
	c.AvgLeverage = money.Pct(money.Mean(leverages))
	c.AvgConfidence = money.Pct(money.Mean(confidences))
	c.BiggestWin = money.USD(biggestWin)
	c.BiggestLoss = money.USD(biggestLoss)

	if closedCount > 0 {
		c.WinRate = money.Pct(decimal.NewFromInt(int64(wins)).
			Mul(money.Hundred).
			DivRound(decimal.NewFromInt(int64(closedCount)), money.PctScale+4).
			RoundBank(money.PctScale))
	} else {
		c.WinRate = decimal.Zero
	}

	c.LongHoldPct, c.ShortHoldPct, c.FlatHoldPct = holdSplit(longSecs, shortSecs, now.Sub(earliestOpen).Seconds(), len(positions))
	return positions, nil
}

func (e *Engine) recomputeSpot(ctx context.Context, c *db.Council) ([]*db.SpotHolding, error) {
	holdings, err := e.holdings.FindActive(ctx, c.ID)
	if err != nil {
		return nil, fmt.Errorf("load holdings: %w", err)
	}

	unrealized := decimal.Zero
	invested := decimal.Zero
	for _, h := range holdings {
		unrealized = unrealized.Add(h.UnrealizedPnL)
		invested = invested.Add(h.TotalCost)
	}

	c.UnrealizedProfit = money.USD(unrealized)
	c.TotalInvested = money.USD(invested)
	c.TotalAccountValue = money.USD(c.InitialCapital.Add(unrealized))
	c.AvailableBalance = money.USD(c.InitialCapital.Sub(invested))
	c.ActiveSpotHoldings = len(holdings)
	c.NetPnL = money.USD(c.RealizedPnL.Sub(c.TotalFees))
	return holdings, nil
}

// holdSplit distributes exposure time into long/short/flat
// percentages that sum to 100. An empty book is 100% flat.
func holdSplit(longSecs, shortSecs, horizonSecs float64, positionCount int) (decimal.Decimal, decimal.Decimal, decimal.Decimal) {
	if positionCount == 0 || horizonSecs <= 0 {
		return decimal.Zero, decimal.Zero, money.Hundred
	}

	longPct := money.Pct(decimal.NewFromFloat(longSecs / horizonSecs * 100))
	shortPct := money.Pct(decimal.NewFromFloat(shortSecs / horizonSecs * 100))

	flat := money.Hundred.Sub(longPct).Sub(shortPct)
	if flat.IsNegative() {
		flat = decimal.Zero
	}
	return longPct, shortPct, flat
}

// mirrorLegacy keeps the older metric columns in sync.
func (e *Engine) mirrorLegacy(c *db.Council) {
	c.CurrentCapital = c.TotalAccountValue
	c.TotalPnL = money.USD(c.RealizedPnL.Add(c.UnrealizedProfit).Sub(c.TotalFees))
	if c.InitialCapital.Sign() > 0 {
		c.TotalPnLPercentage = money.Pct(c.TotalPnL.
			Mul(money.Hundred).
			DivRound(c.InitialCapital, money.PctScale+4).
			RoundBank(money.PctScale))
	} else {
		c.TotalPnLPercentage = decimal.Zero
	}
	c.TotalTrades = c.OpenFuturesCount + c.ClosedFuturesCount + c.ActiveSpotHoldings
}

// verifyIdentity enforces the account identity within a cent; a
// divergence indicates corrupt state and stops this council.
func (e *Engine) verifyIdentity(c *db.Council) error {
	expected := c.InitialCapital.Add(c.RealizedPnL).Add(c.UnrealizedProfit).Sub(c.TotalFees)
	if c.TradingType == db.TradingTypeSpot {
		expected = c.InitialCapital.Add(c.UnrealizedProfit)
	}
	diff := c.TotalAccountValue.Sub(expected).Abs()
	if diff.GreaterThanOrEqual(money.MustFromString("0.01")) {
		return fmt.Errorf("account identity violated for council %d: total=%s expected=%s", c.ID, c.TotalAccountValue, expected)
	}
	return nil
}

func (e *Engine) appendSnapshot(ctx context.Context, c *db.Council) error {
	if e.snapshots == nil {
		return nil
	}
	s := &db.CouncilPerformanceSnapshot{
		CouncilID:     c.ID,
		Timestamp:     time.Now().UTC(),
		TotalValue:    c.TotalAccountValue,
		PnL:           c.TotalPnL,
		PnLPercentage: c.TotalPnLPercentage,
		WinRate:       c.WinRate,
		TotalTrades:   c.TotalTrades,
		OpenPositions: c.OpenFuturesCount + c.ActiveSpotHoldings,
	}
	if err := e.snapshots.InsertPerformance(ctx, s); err != nil {
		return fmt.Errorf("append performance snapshot: %w", err)
	}
	return nil
}

// snapshotInstruments appends one valuation row per open position and
// per active holding, so per-instrument PnL history survives closes.
func (e *Engine) snapshotInstruments(ctx context.Context, c *db.Council, positions []*db.FuturesPosition, holdings []*db.SpotHolding) error {
	if e.snapshots == nil {
		return nil
	}
	now := time.Now().UTC()

	for _, p := range positions {
		if p.Status != db.PositionStatusOpen {
			continue
		}
		s := &db.PnLSnapshot{
			CouncilID:     c.ID,
			PositionID:    &p.ID,
			SnapshotTime:  now,
			MarkPrice:     p.MarkPrice,
			NotionalValue: money.USD(p.Notional),
			UnrealizedPnL: money.USD(p.UnrealizedProfit),
		}
		if p.IsolatedMargin.Sign() > 0 {
			s.PnLPercentage = money.Pct(p.UnrealizedProfit.
				Mul(money.Hundred).
				DivRound(p.IsolatedMargin, money.PctScale+4).
				RoundBank(money.PctScale))
		}
		if p.MarkPrice.Sign() > 0 && p.LiquidationPrice.Sign() > 0 {
			dist := money.Pct(p.MarkPrice.Sub(p.LiquidationPrice).Abs().
				Mul(money.Hundred).
				DivRound(p.MarkPrice, money.PctScale+4).
				RoundBank(money.PctScale))
			s.LiquidationDistancePct = &dist
		}
		if p.Notional.Sign() > 0 {
			ratio := money.Pct(p.IsolatedMargin.DivRound(p.Notional, money.PctScale))
			s.MarginRatio = &ratio
		}
		if err := e.snapshots.InsertPnL(ctx, s); err != nil {
			return fmt.Errorf("append position pnl snapshot: %w", err)
		}
	}

	for _, h := range holdings {
		value := h.TotalCost.Add(h.UnrealizedPnL)
		s := &db.PnLSnapshot{
			CouncilID:     c.ID,
			HoldingID:     &h.ID,
			SnapshotTime:  now,
			NotionalValue: money.USD(value),
			UnrealizedPnL: money.USD(h.UnrealizedPnL),
		}
		if h.Total.Sign() > 0 {
			s.MarkPrice = value.DivRound(h.Total, money.QtyScale)
		}
		if h.TotalCost.Sign() > 0 {
			s.PnLPercentage = money.Pct(h.UnrealizedPnL.
				Mul(money.Hundred).
				DivRound(h.TotalCost, money.PctScale+4).
				RoundBank(money.PctScale))
		}
		if err := e.snapshots.InsertPnL(ctx, s); err != nil {
			return fmt.Errorf("append holding pnl snapshot: %w", err)
		}
	}
	return nil
}
