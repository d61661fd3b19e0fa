package db

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// FuturesPositionRepo provides typed access to futures positions. All
// reads are scoped by council id.
type FuturesPositionRepo struct {
	q Querier
}

// NewFuturesPositionRepo creates a futures position repository over the
// given session.
func NewFuturesPositionRepo(q Querier) *FuturesPositionRepo {
	return &FuturesPositionRepo{q: q}
}

const positionColumns = `
	id, council_id, symbol, position_side, position_amt, entry_price,
	mark_price, liquidation_price, leverage, margin_type, isolated_margin,
	notional, unrealized_profit, realized_pnl, fees_paid, funding_fees,
	confidence, stop_loss, take_profits, status, opened_at, closed_at,
	created_at, updated_at`

func scanPosition(row interface{ Scan(dest ...any) error }) (*FuturesPosition, error) {
	var p FuturesPosition
	err := row.Scan(
		&p.ID, &p.CouncilID, &p.Symbol, &p.Side, &p.PositionAmt, &p.EntryPrice,
		&p.MarkPrice, &p.LiquidationPrice, &p.Leverage, &p.MarginType, &p.IsolatedMargin,
		&p.Notional, &p.UnrealizedProfit, &p.RealizedPnL, &p.FeesPaid, &p.FundingFees,
		&p.Confidence, &p.StopLoss, &p.TakeProfits, &p.Status, &p.OpenedAt, &p.ClosedAt,
		&p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// Create inserts a new position and assigns its id.
func (r *FuturesPositionRepo) Create(ctx context.Context, p *FuturesPosition) error {
	query := `
		INSERT INTO futures_positions (
			council_id, symbol, position_side, position_amt, entry_price,
			mark_price, liquidation_price, leverage, margin_type, isolated_margin,
			notional, unrealized_profit, realized_pnl, fees_paid, funding_fees,
			confidence, stop_loss, take_profits, status, opened_at,
			created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22)
		RETURNING id`

	now := time.Now().UTC()
	p.CreatedAt = now
	p.UpdatedAt = now
	if p.OpenedAt.IsZero() {
		p.OpenedAt = now
	}

	err := r.q.QueryRow(ctx, query,
		p.CouncilID, p.Symbol, p.Side, p.PositionAmt, p.EntryPrice,
		p.MarkPrice, p.LiquidationPrice, p.Leverage, p.MarginType, p.IsolatedMargin,
		p.Notional, p.UnrealizedProfit, p.RealizedPnL, p.FeesPaid, p.FundingFees,
		p.Confidence, p.StopLoss, p.TakeProfits, p.Status, p.OpenedAt,
		p.CreatedAt, p.UpdatedAt,
	).Scan(&p.ID)
	if err != nil {
		return wrapError("create futures position", err)
	}
	return nil
}

// Update flushes mutable position fields.
func (r *FuturesPositionRepo) Update(ctx context.Context, p *FuturesPosition) error {
	query := `
		UPDATE futures_positions SET
			position_amt = $2,
			entry_price = $3,
			mark_price = $4,
			liquidation_price = $5,
			leverage = $6,
			isolated_margin = $7,
			notional = $8,
			unrealized_profit = $9,
			realized_pnl = $10,
			fees_paid = $11,
			funding_fees = $12,
			confidence = $13,
			stop_loss = $14,
			take_profits = $15,
			status = $16,
			closed_at = $17,
			updated_at = $18
		WHERE id = $1`

	p.UpdatedAt = time.Now().UTC()

	tag, err := r.q.Exec(ctx, query,
		p.ID, p.PositionAmt, p.EntryPrice, p.MarkPrice, p.LiquidationPrice,
		p.Leverage, p.IsolatedMargin, p.Notional, p.UnrealizedProfit,
		p.RealizedPnL, p.FeesPaid, p.FundingFees, p.Confidence,
		p.StopLoss, p.TakeProfits, p.Status, p.ClosedAt, p.UpdatedAt,
	)
	if err != nil {
		return wrapError("update futures position", err)
	}
	if tag.RowsAffected() == 0 {
		return wrapError("update futures position", ErrNotFound)
	}
	return nil
}

// FindOpen returns open positions for a council, optionally filtered by
// symbol, newest first.
func (r *FuturesPositionRepo) FindOpen(ctx context.Context, councilID int64, symbol string) ([]*FuturesPosition, error) {
	query := `SELECT` + positionColumns + `
		FROM futures_positions
		WHERE council_id = $1 AND status = 'OPEN' AND ($2 = '' OR symbol = $2)
		ORDER BY opened_at DESC`

	rows, err := r.q.Query(ctx, query, councilID, symbol)
	if err != nil {
		return nil, wrapError("find open positions", err)
	}
	defer rows.Close()

	var positions []*FuturesPosition
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, wrapError("scan position", err)
		}
		positions = append(positions, p)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapError("iterate positions", err)
	}
	return positions, nil
}

// FindClosed returns closed and liquidated positions, newest first,
// bounded by limit.
func (r *FuturesPositionRepo) FindClosed(ctx context.Context, councilID int64, limit int) ([]*FuturesPosition, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `SELECT` + positionColumns + `
		FROM futures_positions
		WHERE council_id = $1 AND status IN ('CLOSED', 'LIQUIDATED')
		ORDER BY closed_at DESC
		LIMIT $2`

	rows, err := r.q.Query(ctx, query, councilID, limit)
	if err != nil {
		return nil, wrapError("find closed positions", err)
	}
	defer rows.Close()

	var positions []*FuturesPosition
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, wrapError("scan position", err)
		}
		positions = append(positions, p)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapError("iterate positions", err)
	}
	return positions, nil
}

// FindAll returns every position of a council regardless of status.
// Used by the metrics engine for fee and leverage aggregation.
func (r *FuturesPositionRepo) FindAll(ctx context.Context, councilID int64) ([]*FuturesPosition, error) {
	query := `SELECT` + positionColumns + `
		FROM futures_positions
		WHERE council_id = $1
		ORDER BY opened_at DESC`

	rows, err := r.q.Query(ctx, query, councilID)
	if err != nil {
		return nil, wrapError("find all positions", err)
	}
	defer rows.Close()

	var positions []*FuturesPosition
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, wrapError("scan position", err)
		}
		positions = append(positions, p)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapError("iterate positions", err)
	}
	return positions, nil
}

// FindBySide returns the position matching (council, symbol, side,
// status), or ErrNotFound.
func (r *FuturesPositionRepo) FindBySide(ctx context.Context, councilID int64, symbol string, side PositionSide, status PositionStatus) (*FuturesPosition, error) {
	query := `SELECT` + positionColumns + `
		FROM futures_positions
		WHERE council_id = $1 AND symbol = $2 AND position_side = $3 AND status = $4
		ORDER BY opened_at DESC
		LIMIT 1`

	p, err := scanPosition(r.q.QueryRow(ctx, query, councilID, symbol, side, status))
	if err != nil {
		return nil, wrapError("find position by side", err)
	}
	return p, nil
}

// Close marks a position closed, accumulating realized PnL and
// preserving the final position_amt as history.
func (r *FuturesPositionRepo) Close(ctx context.Context, id int64, realizedPnL decimal.Decimal, status PositionStatus, closedAt time.Time) error {
	query := `
		UPDATE futures_positions SET
			realized_pnl = realized_pnl + $2,
			unrealized_profit = 0,
			status = $3,
			closed_at = $4,
			updated_at = $4
		WHERE id = $1 AND status = 'OPEN'`

	tag, err := r.q.Exec(ctx, query, id, realizedPnL, status, closedAt.UTC())
	if err != nil {
		return wrapError("close futures position", err)
	}
	if tag.RowsAffected() == 0 {
		return wrapError("close futures position", ErrNotFound)
	}
	return nil
}
