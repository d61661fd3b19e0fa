package db

import (
	"context"
	"time"
)

// SnapshotRepo provides access to the PnL and performance time series.
type SnapshotRepo struct {
	q Querier
}

// NewSnapshotRepo creates a snapshot repository over the given session.
func NewSnapshotRepo(q Querier) *SnapshotRepo {
	return &SnapshotRepo{q: q}
}

// InsertPnL appends a per-position or per-holding valuation point.
func (r *SnapshotRepo) InsertPnL(ctx context.Context, s *PnLSnapshot) error {
	query := `
		INSERT INTO pnl_snapshots (
			council_id, position_id, holding_id, snapshot_time, mark_price,
			notional_value, unrealized_pnl, pnl_percentage,
			liquidation_distance_pct, margin_ratio
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		RETURNING id`

	if s.SnapshotTime.IsZero() {
		s.SnapshotTime = time.Now().UTC()
	}

	err := r.q.QueryRow(ctx, query,
		s.CouncilID, s.PositionID, s.HoldingID, s.SnapshotTime, s.MarkPrice,
		s.NotionalValue, s.UnrealizedPnL, s.PnLPercentage,
		s.LiquidationDistancePct, s.MarginRatio,
	).Scan(&s.ID)
	if err != nil {
		return wrapError("insert pnl snapshot", err)
	}
	return nil
}

// InsertPerformance appends an account-level performance point.
func (r *SnapshotRepo) InsertPerformance(ctx context.Context, s *CouncilPerformanceSnapshot) error {
	query := `
		INSERT INTO council_performance_snapshots (
			council_id, timestamp, total_value, pnl, pnl_percentage,
			win_rate, total_trades, open_positions
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		RETURNING id`

	if s.Timestamp.IsZero() {
		s.Timestamp = time.Now().UTC()
	}

	err := r.q.QueryRow(ctx, query,
		s.CouncilID, s.Timestamp, s.TotalValue, s.PnL, s.PnLPercentage,
		s.WinRate, s.TotalTrades, s.OpenPositions,
	).Scan(&s.ID)
	if err != nil {
		return wrapError("insert performance snapshot", err)
	}
	return nil
}

// History returns recent performance points for a council, newest
// first, bounded.
func (r *SnapshotRepo) History(ctx context.Context, councilID int64, limit int) ([]*CouncilPerformanceSnapshot, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `
		SELECT id, council_id, timestamp, total_value, pnl, pnl_percentage,
			win_rate, total_trades, open_positions
		FROM council_performance_snapshots
		WHERE council_id = $1
		ORDER BY timestamp DESC
		LIMIT $2`

	rows, err := r.q.Query(ctx, query, councilID, limit)
	if err != nil {
		return nil, wrapError("list performance history", err)
	}
	defer rows.Close()

	var snaps []*CouncilPerformanceSnapshot
	for rows.Next() {
		var s CouncilPerformanceSnapshot
		err := rows.Scan(
			&s.ID, &s.CouncilID, &s.Timestamp, &s.TotalValue, &s.PnL,
			&s.PnLPercentage, &s.WinRate, &s.TotalTrades, &s.OpenPositions,
		)
		if err != nil {
			return nil, wrapError("scan performance snapshot", err)
		}
		snaps = append(snaps, &s)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapError("iterate performance snapshots", err)
	}
	return snaps, nil
}

// HourlyAggregate buckets performance snapshots by hour across all
// councils over a time window.
func (r *SnapshotRepo) HourlyAggregate(ctx context.Context, from, to time.Time) ([]*HourlyPerformance, error) {
	query := `
		SELECT date_trunc('hour', timestamp) AS hour,
			COUNT(DISTINCT council_id) AS council_count,
			AVG(total_value) AS avg_total_value,
			SUM(pnl) AS total_pnl
		FROM council_performance_snapshots
		WHERE timestamp >= $1 AND timestamp < $2
		GROUP BY hour
		ORDER BY hour`

	rows, err := r.q.Query(ctx, query, from.UTC(), to.UTC())
	if err != nil {
		return nil, wrapError("hourly performance aggregate", err)
	}
	defer rows.Close()

	var buckets []*HourlyPerformance
	for rows.Next() {
		var b HourlyPerformance
		if err := rows.Scan(&b.Hour, &b.CouncilCount, &b.AvgTotalValue, &b.TotalPnL); err != nil {
			return nil, wrapError("scan hourly bucket", err)
		}
		buckets = append(buckets, &b)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapError("iterate hourly buckets", err)
	}
	return buckets, nil
}
