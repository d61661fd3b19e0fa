package db

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// OrderRepo provides typed access to the unified order table.
type OrderRepo struct {
	q Querier
}

// NewOrderRepo creates an order repository over the given session.
func NewOrderRepo(q Querier) *OrderRepo {
	return &OrderRepo{q: q}
}

const orderColumns = `
	id, council_id, symbol, side, type, position_side, orig_qty,
	executed_qty, price, stop_price, avg_price, status, position_id,
	holding_id, platform, trading_mode, trading_type, commission,
	commission_asset, venue_order_id, created_at, updated_at`

func scanOrder(row interface{ Scan(dest ...any) error }) (*Order, error) {
	var o Order
	err := row.Scan(
		&o.ID, &o.CouncilID, &o.Symbol, &o.Side, &o.Type, &o.PositionSide,
		&o.OrigQty, &o.ExecutedQty, &o.Price, &o.StopPrice, &o.AvgPrice,
		&o.Status, &o.PositionID, &o.HoldingID, &o.Platform, &o.TradingMode,
		&o.TradingType, &o.Commission, &o.CommissionAsset, &o.VenueOrderID,
		&o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &o, nil
}

// Create inserts an order and assigns its id.
func (r *OrderRepo) Create(ctx context.Context, o *Order) error {
	query := `
		INSERT INTO orders (
			council_id, symbol, side, type, position_side, orig_qty,
			executed_qty, price, stop_price, avg_price, status, position_id,
			holding_id, platform, trading_mode, trading_type, commission,
			commission_asset, venue_order_id, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21)
		RETURNING id`

	now := time.Now().UTC()
	o.CreatedAt = now
	o.UpdatedAt = now

	err := r.q.QueryRow(ctx, query,
		o.CouncilID, o.Symbol, o.Side, o.Type, o.PositionSide, o.OrigQty,
		o.ExecutedQty, o.Price, o.StopPrice, o.AvgPrice, o.Status, o.PositionID,
		o.HoldingID, o.Platform, o.TradingMode, o.TradingType, o.Commission,
		o.CommissionAsset, o.VenueOrderID, o.CreatedAt, o.UpdatedAt,
	).Scan(&o.ID)
	if err != nil {
		return wrapError("create order", err)
	}
	return nil
}

// UpdateStatus applies a venue-reported status change.
func (r *OrderRepo) UpdateStatus(ctx context.Context, id int64, status OrderStatus, executedQty decimal.Decimal, avgPrice *decimal.Decimal) error {
	query := `
		UPDATE orders SET
			status = $2,
			executed_qty = $3,
			avg_price = COALESCE($4, avg_price),
			updated_at = $5
		WHERE id = $1`

	tag, err := r.q.Exec(ctx, query, id, status, executedQty, avgPrice, time.Now().UTC())
	if err != nil {
		return wrapError("update order status", err)
	}
	if tag.RowsAffected() == 0 {
		return wrapError("update order status", ErrNotFound)
	}
	return nil
}

// Get retrieves an order by id, scoped to a council.
func (r *OrderRepo) Get(ctx context.Context, councilID, id int64) (*Order, error) {
	query := `SELECT` + orderColumns + ` FROM orders WHERE id = $1 AND council_id = $2`

	o, err := scanOrder(r.q.QueryRow(ctx, query, id, councilID))
	if err != nil {
		return nil, wrapError("get order", err)
	}
	return o, nil
}

// ListByCouncil returns recent orders, newest first, bounded.
func (r *OrderRepo) ListByCouncil(ctx context.Context, councilID int64, limit int) ([]*Order, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT` + orderColumns + `
		FROM orders
		WHERE council_id = $1
		ORDER BY created_at DESC
		LIMIT $2`

	rows, err := r.q.Query(ctx, query, councilID, limit)
	if err != nil {
		return nil, wrapError("list orders", err)
	}
	defer rows.Close()

	var orders []*Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, wrapError("scan order", err)
		}
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapError("iterate orders", err)
	}
	return orders, nil
}
