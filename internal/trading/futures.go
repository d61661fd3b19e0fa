package trading

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/quorumtrade/quorumtrade/internal/agents"
	"github.com/quorumtrade/quorumtrade/internal/db"
	"github.com/quorumtrade/quorumtrade/internal/money"
	"github.com/quorumtrade/quorumtrade/internal/venue"
)

const defaultLeverage = 1

// executeFutures opens, merges, reduces, or closes a leveraged
// position for one decision.
func (e *Executor) executeFutures(ctx context.Context, council *db.Council, d *db.ConsensusDecision, hint *agents.Signal) *Result {
	ticker, err := e.venue.GetTicker(ctx, d.Symbol)
	if err != nil {
		return &Result{Reason: ReasonVenueRejected, Error: err.Error()}
	}
	mark := ticker.Price

	orderSide := db.OrderSideBuy
	posSide := db.PositionSideLong
	if d.Decision == db.DecisionSell {
		orderSide = db.OrderSideSell
		posSide = db.PositionSideShort
	}

	leverage := defaultLeverage
	if hint != nil && hint.Leverage > 0 {
		leverage = hint.Leverage
	}

	sizeUSD := e.positionSize(council, d.Confidence)
	quantity := money.DivQty(sizeUSD, mark)
	if quantity.Sign() <= 0 {
		return &Result{Reason: ReasonVenueRejected, Error: "computed quantity is zero"}
	}

	result, err := e.venue.PlaceOrder(ctx, venue.OrderRequest{
		Symbol:       d.Symbol,
		Side:         string(orderSide),
		Type:         "MARKET",
		Quantity:     quantity,
		PositionSide: string(posSide),
		Leverage:     leverage,
	})
	if err != nil {
		return &Result{Reason: ReasonVenueRejected, Error: err.Error()}
	}

	fillPrice := result.AvgPrice
	if fillPrice.IsZero() {
		fillPrice = mark
	}
	fillQty := result.ExecutedQty
	if fillQty.IsZero() {
		fillQty = quantity
	}

	position, err := e.applyFuturesFill(ctx, council, d.Symbol, posSide, fillQty, fillPrice, leverage, hint)
	if err != nil {
		return &Result{Reason: ReasonVenueRejected, Error: err.Error()}
	}

	order, err := e.recordOrder(ctx, council, d.Symbol, orderSide, quantity, result, position)
	if err != nil {
		return &Result{Reason: ReasonVenueRejected, Error: err.Error()}
	}

	e.logger.Info().
		Int64("council_id", council.ID).
		Str("symbol", d.Symbol).
		Str("side", string(posSide)).
		Str("quantity", fillQty.String()).
		Str("price", fillPrice.String()).
		Msg("futures trade executed")

	return &Result{Success: true, WasExecuted: true, Reason: ReasonExecuted, OrderID: &order.ID}
}

// applyFuturesFill merges into a same-direction position, reduces an
// opposing one, or opens fresh. Paper semantics: local state is the
// book; real mode is reconciled against the venue later.
func (e *Executor) applyFuturesFill(ctx context.Context, council *db.Council, symbol string, posSide db.PositionSide, qty, price decimal.Decimal, leverage int, hint *agents.Signal) (*db.FuturesPosition, error) {
	now := time.Now().UTC()

	// Same-direction add: weighted-average merge.
	existing, err := e.positions.FindBySide(ctx, council.ID, symbol, posSide, db.PositionStatusOpen)
	if err != nil && !errors.Is(err, db.ErrNotFound) {
		return nil, err
	}
	if existing != nil {
		return existing, e.mergePosition(ctx, existing, qty, price)
	}

	// Opposing-direction open position: reduce, closing at zero.
	opposing, err := e.positions.FindBySide(ctx, council.ID, symbol, oppositeSide(posSide), db.PositionStatusOpen)
	if err != nil && !errors.Is(err, db.ErrNotFound) {
		return nil, err
	}
	if opposing != nil {
		return opposing, e.reducePosition(ctx, opposing, qty, price, now)
	}

	return e.openPosition(ctx, council, symbol, posSide, qty, price, leverage, hint, now)
}

func (e *Executor) mergePosition(ctx context.Context, p *db.FuturesPosition, qty, price decimal.Decimal) error {
	oldCost := p.PositionAmt.Mul(p.EntryPrice)
	addCost := qty.Mul(price)
	newAmt := p.PositionAmt.Add(qty)

	p.EntryPrice = money.DivQty(oldCost.Add(addCost), newAmt)
	p.PositionAmt = newAmt
	p.MarkPrice = price
	p.Notional = money.USD(newAmt.Mul(price))
	p.IsolatedMargin = money.USD(money.Div(p.Notional, decimal.NewFromInt(int64(p.Leverage))))
	p.LiquidationPrice = venue.PaperLiquidationPrice(string(p.Side), p.EntryPrice, p.Leverage)
	p.UpdatedAt = time.Now().UTC()

	return e.positions.Update(ctx, p)
}

func (e *Executor) reducePosition(ctx context.Context, p *db.FuturesPosition, qty, price decimal.Decimal, now time.Time) error {
	closeQty := qty
	if closeQty.GreaterThan(p.PositionAmt) {
		closeQty = p.PositionAmt
	}

	var pnl decimal.Decimal
	if p.Side == db.PositionSideShort {
		pnl = p.EntryPrice.Sub(price).Mul(closeQty)
	} else {
		pnl = price.Sub(p.EntryPrice).Mul(closeQty)
	}
	pnl = money.USD(pnl)

	remaining := p.PositionAmt.Sub(closeQty)
	if remaining.Sign() <= 0 {
		// Full close; realized pnl accumulates, final amount preserved.
		return e.positions.Close(ctx, p.ID, pnl, db.PositionStatusClosed, now)
	}

	p.PositionAmt = remaining
	p.RealizedPnL = p.RealizedPnL.Add(pnl)
	p.MarkPrice = price
	p.Notional = money.USD(remaining.Mul(price))
	p.IsolatedMargin = money.USD(money.Div(p.Notional, decimal.NewFromInt(int64(p.Leverage))))
	p.UpdatedAt = now
	return e.positions.Update(ctx, p)
}

func (e *Executor) openPosition(ctx context.Context, council *db.Council, symbol string, posSide db.PositionSide, qty, price decimal.Decimal, leverage int, hint *agents.Signal, now time.Time) (*db.FuturesPosition, error) {
	notional := money.USD(qty.Mul(price))

	p := &db.FuturesPosition{
		CouncilID:        council.ID,
		Symbol:           symbol,
		Side:             posSide,
		PositionAmt:      qty,
		EntryPrice:       price,
		MarkPrice:        price,
		LiquidationPrice: venue.PaperLiquidationPrice(string(posSide), price, leverage),
		Leverage:         leverage,
		MarginType:       db.MarginTypeIsolated,
		IsolatedMargin:   money.USD(money.Div(notional, decimal.NewFromInt(int64(leverage)))),
		Notional:         notional,
		Status:           db.PositionStatusOpen,
		OpenedAt:         now,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	if hint != nil {
		if !hint.Confidence.IsZero() {
			conf := hint.Confidence
			p.Confidence = &conf
		}
		p.StopLoss = hint.StopLoss
		if len(hint.TakeProfits) > 0 {
			tps := hint.TakeProfits
			if len(tps) > 3 {
				tps = tps[:3]
			}
			if raw, err := json.Marshal(tps); err == nil {
				p.TakeProfits = raw
			}
		}
	}

	if err := e.positions.Create(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

func (e *Executor) recordOrder(ctx context.Context, council *db.Council, symbol string, side db.OrderSide, quantity decimal.Decimal, vr *venue.OrderResult, position *db.FuturesPosition) (*db.Order, error) {
	now := time.Now().UTC()

	status := db.OrderStatus(vr.Status)
	if council.TradingMode == db.TradingModePaper {
		status = db.OrderStatusFilled
	}

	o := &db.Order{
		CouncilID:   council.ID,
		Symbol:      symbol,
		Side:        side,
		Type:        db.OrderTypeMarket,
		OrigQty:     quantity,
		ExecutedQty: vr.ExecutedQty,
		Status:      status,
		Platform:    e.venue.Name(),
		TradingMode: council.TradingMode,
		TradingType: db.TradingTypeFutures,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if position != nil {
		o.PositionID = &position.ID
		ps := position.Side
		o.PositionSide = &ps
	}
	if !vr.AvgPrice.IsZero() {
		avg := vr.AvgPrice
		o.AvgPrice = &avg
	}
	if !vr.Commission.IsZero() {
		c := vr.Commission
		o.Commission = &c
		asset := vr.CommissionAsset
		o.CommissionAsset = &asset
	}
	if vr.VenueOrderID != "" {
		id := vr.VenueOrderID
		o.VenueOrderID = &id
	}

	if err := e.orders.Create(ctx, o); err != nil {
		return nil, err
	}
	return o, nil
}

func oppositeSide(s db.PositionSide) db.PositionSide {
	if s == db.PositionSideLong {
		return db.PositionSideShort
	}
	return db.PositionSideLong
}
