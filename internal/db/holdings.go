package db

import (
	"context"
	"time"
)

// SpotHoldingRepo provides typed access to spot holdings.
type SpotHoldingRepo struct {
	q Querier
}

// NewSpotHoldingRepo creates a spot holding repository over the given
// session.
func NewSpotHoldingRepo(q Querier) *SpotHoldingRepo {
	return &SpotHoldingRepo{q: q}
}

const holdingColumns = `
	id, council_id, symbol, base_asset, quote_asset, free, locked, total,
	average_cost, total_cost, unrealized_pnl, platform, trading_mode,
	status, opened_at, closed_at, created_at, updated_at`

func scanHolding(row interface{ Scan(dest ...any) error }) (*SpotHolding, error) {
	var h SpotHolding
	err := row.Scan(
		&h.ID, &h.CouncilID, &h.Symbol, &h.BaseAsset, &h.QuoteAsset,
		&h.Free, &h.Locked, &h.Total, &h.AverageCost, &h.TotalCost,
		&h.UnrealizedPnL, &h.Platform, &h.TradingMode,
		&h.Status, &h.OpenedAt, &h.ClosedAt, &h.CreatedAt, &h.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &h, nil
}

// Create inserts a new holding and assigns its id.
func (r *SpotHoldingRepo) Create(ctx context.Context, h *SpotHolding) error {
	query := `
		INSERT INTO spot_holdings (
			council_id, symbol, base_asset, quote_asset, free, locked, total,
			average_cost, total_cost, unrealized_pnl, platform, trading_mode,
			status, opened_at, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)
		RETURNING id`

	now := time.Now().UTC()
	h.CreatedAt = now
	h.UpdatedAt = now
	if h.OpenedAt.IsZero() {
		h.OpenedAt = now
	}

	err := r.q.QueryRow(ctx, query,
		h.CouncilID, h.Symbol, h.BaseAsset, h.QuoteAsset, h.Free, h.Locked, h.Total,
		h.AverageCost, h.TotalCost, h.UnrealizedPnL, h.Platform, h.TradingMode,
		h.Status, h.OpenedAt, h.CreatedAt, h.UpdatedAt,
	).Scan(&h.ID)
	if err != nil {
		return wrapError("create spot holding", err)
	}
	return nil
}

// Update flushes mutable holding fields.
func (r *SpotHoldingRepo) Update(ctx context.Context, h *SpotHolding) error {
	query := `
		UPDATE spot_holdings SET
			free = $2,
			locked = $3,
			total = $4,
			average_cost = $5,
			total_cost = $6,
			unrealized_pnl = $7,
			status = $8,
			closed_at = $9,
			updated_at = $10
		WHERE id = $1`

	h.UpdatedAt = time.Now().UTC()

	tag, err := r.q.Exec(ctx, query,
		h.ID, h.Free, h.Locked, h.Total, h.AverageCost, h.TotalCost,
		h.UnrealizedPnL, h.Status, h.ClosedAt, h.UpdatedAt,
	)
	if err != nil {
		return wrapError("update spot holding", err)
	}
	if tag.RowsAffected() == 0 {
		return wrapError("update spot holding", ErrNotFound)
	}
	return nil
}

// FindActive returns all ACTIVE holdings for a council.
func (r *SpotHoldingRepo) FindActive(ctx context.Context, councilID int64) ([]*SpotHolding, error) {
	query := `SELECT` + holdingColumns + `
		FROM spot_holdings
		WHERE council_id = $1 AND status = 'ACTIVE'
		ORDER BY opened_at DESC`

	rows, err := r.q.Query(ctx, query, councilID)
	if err != nil {
		return nil, wrapError("find active holdings", err)
	}
	defer rows.Close()

	var holdings []*SpotHolding
	for rows.Next() {
		h, err := scanHolding(rows)
		if err != nil {
			return nil, wrapError("scan holding", err)
		}
		holdings = append(holdings, h)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapError("iterate holdings", err)
	}
	return holdings, nil
}

// FindBySymbol returns the holding matching (council, symbol, platform,
// trading mode), or ErrNotFound.
func (r *SpotHoldingRepo) FindBySymbol(ctx context.Context, councilID int64, symbol, platform string, mode TradingMode) (*SpotHolding, error) {
	query := `SELECT` + holdingColumns + `
		FROM spot_holdings
		WHERE council_id = $1 AND symbol = $2 AND platform = $3 AND trading_mode = $4
		ORDER BY opened_at DESC
		LIMIT 1`

	h, err := scanHolding(r.q.QueryRow(ctx, query, councilID, symbol, platform, mode))
	if err != nil {
		return nil, wrapError("find holding by symbol", err)
	}
	return h, nil
}
