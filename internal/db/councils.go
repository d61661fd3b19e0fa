package db

import (
	"context"
	"time"
)

// CouncilRepo provides typed access to council rows.
type CouncilRepo struct {
	q Querier
}

// NewCouncilRepo creates a council repository over the given session.
func NewCouncilRepo(q Querier) *CouncilRepo {
	return &CouncilRepo{q: q}
}

const councilColumns = `
	id, owner_id, name, config, trading_mode, trading_type,
	initial_capital, available_balance, used_balance, total_account_value,
	realized_pnl, unrealized_profit, total_fees, total_funding_fees, net_pnl, total_invested,
	avg_leverage, avg_confidence, biggest_win, biggest_loss,
	long_hold_pct, short_hold_pct, flat_hold_pct,
	open_futures_count, closed_futures_count, active_spot_holdings,
	current_capital, total_pnl, total_pnl_percentage, win_rate, total_trades,
	is_system, is_public, is_template, forked_from_id,
	last_executed_at, created_at, updated_at`

func scanCouncil(row interface{ Scan(dest ...any) error }) (*Council, error) {
	var c Council
	err := row.Scan(
		&c.ID, &c.OwnerID, &c.Name, &c.Config, &c.TradingMode, &c.TradingType,
		&c.InitialCapital, &c.AvailableBalance, &c.UsedBalance, &c.TotalAccountValue,
		&c.RealizedPnL, &c.UnrealizedProfit, &c.TotalFees, &c.TotalFundingFees, &c.NetPnL, &c.TotalInvested,
		&c.AvgLeverage, &c.AvgConfidence, &c.BiggestWin, &c.BiggestLoss,
		&c.LongHoldPct, &c.ShortHoldPct, &c.FlatHoldPct,
		&c.OpenFuturesCount, &c.ClosedFuturesCount, &c.ActiveSpotHoldings,
		&c.CurrentCapital, &c.TotalPnL, &c.TotalPnLPercentage, &c.WinRate, &c.TotalTrades,
		&c.IsSystem, &c.IsPublic, &c.IsTemplate, &c.ForkedFromID,
		&c.LastExecutedAt, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// Get retrieves a council by id.
func (r *CouncilRepo) Get(ctx context.Context, id int64) (*Council, error) {
	query := `SELECT` + councilColumns + ` FROM councils WHERE id = $1`

	c, err := scanCouncil(r.q.QueryRow(ctx, query, id))
	if err != nil {
		return nil, wrapError("get council", err)
	}
	return c, nil
}

// ListSystem returns all system councils, oldest first.
func (r *CouncilRepo) ListSystem(ctx context.Context) ([]*Council, error) {
	query := `SELECT` + councilColumns + ` FROM councils WHERE is_system ORDER BY id`

	rows, err := r.q.Query(ctx, query)
	if err != nil {
		return nil, wrapError("list system councils", err)
	}
	defer rows.Close()

	var councils []*Council
	for rows.Next() {
		c, err := scanCouncil(rows)
		if err != nil {
			return nil, wrapError("scan council", err)
		}
		councils = append(councils, c)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapError("iterate councils", err)
	}
	return councils, nil
}

// ListByIDs returns the councils with the supplied ids.
func (r *CouncilRepo) ListByIDs(ctx context.Context, ids []int64) ([]*Council, error) {
	query := `SELECT` + councilColumns + ` FROM councils WHERE id = ANY($1) ORDER BY id`

	rows, err := r.q.Query(ctx, query, ids)
	if err != nil {
		return nil, wrapError("list councils by ids", err)
	}
	defer rows.Close()

	var councils []*Council
	for rows.Next() {
		c, err := scanCouncil(rows)
		if err != nil {
			return nil, wrapError("scan council", err)
		}
		councils = append(councils, c)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapError("iterate councils", err)
	}
	return councils, nil
}

// Create inserts a council and assigns its id.
func (r *CouncilRepo) Create(ctx context.Context, c *Council) error {
	query := `
		INSERT INTO councils (
			owner_id, name, config, trading_mode, trading_type,
			initial_capital, available_balance, used_balance, total_account_value,
			current_capital, is_system, is_public, is_template, forked_from_id,
			created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)
		RETURNING id`

	now := time.Now().UTC()
	c.CreatedAt = now
	c.UpdatedAt = now

	err := r.q.QueryRow(ctx, query,
		c.OwnerID, c.Name, c.Config, c.TradingMode, c.TradingType,
		c.InitialCapital, c.AvailableBalance, c.UsedBalance, c.TotalAccountValue,
		c.CurrentCapital, c.IsSystem, c.IsPublic, c.IsTemplate, c.ForkedFromID,
		c.CreatedAt, c.UpdatedAt,
	).Scan(&c.ID)
	if err != nil {
		return wrapError("create council", err)
	}
	return nil
}

// UpdateMetrics flushes the full derived metric set onto the council
// row. Called only by the metrics engine; commits happen at snapshot
// boundaries.
func (r *CouncilRepo) UpdateMetrics(ctx context.Context, c *Council) error {
	query := `
		UPDATE councils SET
			available_balance = $2,
			used_balance = $3,
			total_account_value = $4,
			realized_pnl = $5,
			unrealized_profit = $6,
			total_fees = $7,
			total_funding_fees = $8,
			net_pnl = $9,
			total_invested = $10,
			avg_leverage = $11,
			avg_confidence = $12,
			biggest_win = $13,
			biggest_loss = $14,
			long_hold_pct = $15,
			short_hold_pct = $16,
			flat_hold_pct = $17,
			open_futures_count = $18,
			closed_futures_count = $19,
			active_spot_holdings = $20,
			current_capital = $21,
			total_pnl = $22,
			total_pnl_percentage = $23,
			win_rate = $24,
			total_trades = $25,
			updated_at = $26
		WHERE id = $1`

	c.UpdatedAt = time.Now().UTC()

	tag, err := r.q.Exec(ctx, query,
		c.ID,
		c.AvailableBalance, c.UsedBalance, c.TotalAccountValue,
		c.RealizedPnL, c.UnrealizedProfit, c.TotalFees, c.TotalFundingFees, c.NetPnL, c.TotalInvested,
		c.AvgLeverage, c.AvgConfidence, c.BiggestWin, c.BiggestLoss,
		c.LongHoldPct, c.ShortHoldPct, c.FlatHoldPct,
		c.OpenFuturesCount, c.ClosedFuturesCount, c.ActiveSpotHoldings,
		c.CurrentCapital, c.TotalPnL, c.TotalPnLPercentage, c.WinRate, c.TotalTrades,
		c.UpdatedAt,
	)
	if err != nil {
		return wrapError("update council metrics", err)
	}
	if tag.RowsAffected() == 0 {
		return wrapError("update council metrics", ErrNotFound)
	}
	return nil
}

// TouchLastExecuted sets last_executed_at after a trade.
func (r *CouncilRepo) TouchLastExecuted(ctx context.Context, id int64, at time.Time) error {
	tag, err := r.q.Exec(ctx,
		`UPDATE councils SET last_executed_at = $2, updated_at = $2 WHERE id = $1`,
		id, at.UTC())
	if err != nil {
		return wrapError("touch council last_executed_at", err)
	}
	if tag.RowsAffected() == 0 {
		return wrapError("touch council last_executed_at", ErrNotFound)
	}
	return nil
}
