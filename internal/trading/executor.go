// Package trading translates consensus decisions into venue effects
// and local position state.
package trading

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/quorumtrade/quorumtrade/internal/agents"
	"github.com/quorumtrade/quorumtrade/internal/db"
	"github.com/quorumtrade/quorumtrade/internal/money"
	"github.com/quorumtrade/quorumtrade/internal/venue"
)

// Skip and failure reasons recorded on decisions and results.
const (
	ReasonExecuted             = "executed"
	ReasonHoldDecision         = "hold_decision"
	ReasonLowConfidence        = "low_confidence"
	ReasonUnknownDecision      = "unknown_decision"
	ReasonInsufficientHoldings = "insufficient_holdings"
	ReasonVenueRejected        = "venue_rejected"
)

// Result is the structured outcome of one decision execution. Stages
// return outcomes, not errors, for flow control.
type Result struct {
	Success     bool   `json:"success"`
	WasExecuted bool   `json:"was_executed"`
	Reason      string `json:"reason"`
	OrderID     *int64 `json:"order_id,omitempty"`
	Error       string `json:"error,omitempty"`
}

// BatchResult is the per-cycle aggregation over all decisions.
type BatchResult struct {
	TradesExecuted []TradeOutcome `json:"trades_executed"`
	TradesSkipped  []TradeOutcome `json:"trades_skipped"`
}

// TradeOutcome pairs a decision with its execution result.
type TradeOutcome struct {
	Symbol   string          `json:"symbol"`
	Decision db.DecisionKind `json:"decision"`
	Result   *Result         `json:"result,omitempty"`
	Reason   string          `json:"reason,omitempty"`
}

// PositionStore is the futures position persistence the executor uses.
type PositionStore interface {
	Create(ctx context.Context, p *db.FuturesPosition) error
	Update(ctx context.Context, p *db.FuturesPosition) error
	FindBySide(ctx context.Context, councilID int64, symbol string, side db.PositionSide, status db.PositionStatus) (*db.FuturesPosition, error)
	Close(ctx context.Context, id int64, realizedPnL decimal.Decimal, status db.PositionStatus, closedAt time.Time) error
}

// HoldingStore is the spot holding persistence the executor uses.
type HoldingStore interface {
	Create(ctx context.Context, h *db.SpotHolding) error
	Update(ctx context.Context, h *db.SpotHolding) error
	FindBySymbol(ctx context.Context, councilID int64, symbol, platform string, mode db.TradingMode) (*db.SpotHolding, error)
}

// OrderStore persists order records.
type OrderStore interface {
	Create(ctx context.Context, o *db.Order) error
}

// DecisionMarker records execution outcomes on decisions.
type DecisionMarker interface {
	MarkExecuted(ctx context.Context, id int64, executed bool, orderID *int64, reason string) error
}

// CouncilToucher stamps last_executed_at.
type CouncilToucher interface {
	TouchLastExecuted(ctx context.Context, id int64, at time.Time) error
}

// MetricsRecomputer is invoked after every executed batch.
type MetricsRecomputer interface {
	Recompute(ctx context.Context, council *db.Council) error
}

// Config bounds sizing and the confidence gate.
type Config struct {
	MinConfidence  decimal.Decimal
	MaxPositionPct decimal.Decimal
}

// Executor dispatches decisions to the futures or spot sub-executor
// by the council's trading type.
type Executor struct {
	venue     venue.Venue
	positions PositionStore
	holdings  HoldingStore
	orders    OrderStore
	decisions DecisionMarker
	councils  CouncilToucher
	metrics   MetricsRecomputer
	cfg       Config
	logger    zerolog.Logger
}

// NewExecutor creates an executor bound to one venue.
func NewExecutor(v venue.Venue, positions PositionStore, holdings HoldingStore, orders OrderStore, decisions DecisionMarker, councils CouncilToucher, metrics MetricsRecomputer, cfg Config, logger zerolog.Logger) *Executor {
	if cfg.MinConfidence.IsZero() {
		cfg.MinConfidence = money.MustFromString("0.5")
	}
	if cfg.MaxPositionPct.IsZero() {
		cfg.MaxPositionPct = money.MustFromString("0.2")
	}
	return &Executor{
		venue:     v,
		positions: positions,
		holdings:  holdings,
		orders:    orders,
		decisions: decisions,
		councils:  councils,
		metrics:   metrics,
		cfg:       cfg,
		logger:    logger.With().Str("component", "trading").Logger(),
	}
}

// ExecuteBatch runs every decision, collecting per-symbol failures
// instead of propagating them. Metrics are recomputed once at the end.
func (e *Executor) ExecuteBatch(ctx context.Context, council *db.Council, decisions []*db.ConsensusDecision, hints map[string]*agents.Signal) *BatchResult {
	batch := &BatchResult{}

	for _, d := range decisions {
		res := e.Execute(ctx, council, d, hints[d.Symbol])

		outcome := TradeOutcome{Symbol: d.Symbol, Decision: d.Decision, Result: res}
		if res.WasExecuted {
			batch.TradesExecuted = append(batch.TradesExecuted, outcome)
		} else {
			outcome.Reason = res.Reason
			batch.TradesSkipped = append(batch.TradesSkipped, outcome)
		}
	}

	if e.councils != nil {
		if err := e.councils.TouchLastExecuted(ctx, council.ID, time.Now().UTC()); err != nil {
			e.logger.Warn().Err(err).Int64("council_id", council.ID).Msg("failed to stamp last_executed_at")
		}
	}
	if e.metrics != nil {
		if err := e.metrics.Recompute(ctx, council); err != nil {
			e.logger.Error().Err(err).Int64("council_id", council.ID).Msg("metrics recomputation failed")
		}
	}

	return batch
}

// Execute runs one decision through the confidence gate and the
// trading-type dispatch.
func (e *Executor) Execute(ctx context.Context, council *db.Council, d *db.ConsensusDecision, hint *agents.Signal) *Result {
	var res *Result

	switch {
	case d.Decision == db.DecisionHold:
		res = &Result{Success: true, Reason: ReasonHoldDecision}
	case d.Confidence.LessThan(e.cfg.MinConfidence):
		res = &Result{Success: true, Reason: ReasonLowConfidence}
	case d.Decision != db.DecisionBuy && d.Decision != db.DecisionSell:
		res = &Result{Success: false, Reason: ReasonUnknownDecision}
	case council.TradingType == db.TradingTypeSpot:
		res = e.executeSpot(ctx, council, d)
	default:
		res = e.executeFutures(ctx, council, d, hint)
	}

	if e.decisions != nil && d.ID != 0 {
		if err := e.decisions.MarkExecuted(ctx, d.ID, res.WasExecuted, res.OrderID, res.Reason); err != nil {
			e.logger.Warn().Err(err).Int64("decision_id", d.ID).Msg("failed to mark decision executed")
		}
	}
	return res
}

// positionSize is the shared sizing rule: confidence scales the
// per-trade capital allowance (max_position_pct of available balance).
func (e *Executor) positionSize(council *db.Council, confidence decimal.Decimal) decimal.Decimal {
	allowance := council.AvailableBalance.Mul(e.cfg.MaxPositionPct)
	return money.USD(allowance.Mul(confidence))
}
