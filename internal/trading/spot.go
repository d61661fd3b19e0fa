package trading

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/quorumtrade/quorumtrade/internal/db"
	"github.com/quorumtrade/quorumtrade/internal/money"
	"github.com/quorumtrade/quorumtrade/internal/venue"
)

// executeSpot buys into or sells out of a weighted-average-cost
// holding for one decision.
func (e *Executor) executeSpot(ctx context.Context, council *db.Council, d *db.ConsensusDecision) *Result {
	ticker, err := e.venue.GetTicker(ctx, d.Symbol)
	if err != nil {
		return &Result{Reason: ReasonVenueRejected, Error: err.Error()}
	}
	price := ticker.Price

	holding, err := e.holdings.FindBySymbol(ctx, council.ID, d.Symbol, e.venue.Name(), council.TradingMode)
	if err != nil && !errors.Is(err, db.ErrNotFound) {
		return &Result{Reason: ReasonVenueRejected, Error: err.Error()}
	}

	sizeUSD := e.positionSize(council, d.Confidence)
	quantity := money.DivQty(sizeUSD, price)

	if d.Decision == db.DecisionSell {
		// Selling short is not supported in spot.
		if holding == nil || quantity.GreaterThan(holding.Total) {
			return &Result{Success: true, Reason: ReasonInsufficientHoldings}
		}
	}
	if quantity.Sign() <= 0 {
		return &Result{Reason: ReasonVenueRejected, Error: "computed quantity is zero"}
	}

	orderSide := db.OrderSideBuy
	if d.Decision == db.DecisionSell {
		orderSide = db.OrderSideSell
	}

	result, err := e.venue.PlaceOrder(ctx, venue.OrderRequest{
		Symbol:   d.Symbol,
		Side:     string(orderSide),
		Type:     "MARKET",
		Quantity: quantity,
	})
	if err != nil {
		return &Result{Reason: ReasonVenueRejected, Error: err.Error()}
	}

	fillPrice := result.AvgPrice
	if fillPrice.IsZero() {
		fillPrice = price
	}
	fillQty := result.ExecutedQty
	if fillQty.IsZero() {
		fillQty = quantity
	}

	if d.Decision == db.DecisionBuy {
		holding, err = e.applySpotBuy(ctx, council, d.Symbol, holding, fillQty, fillPrice)
	} else {
		err = e.applySpotSell(ctx, holding, fillQty)
	}
	if err != nil {
		return &Result{Reason: ReasonVenueRejected, Error: err.Error()}
	}

	order, err := e.recordSpotOrder(ctx, council, d.Symbol, orderSide, quantity, result, holding)
	if err != nil {
		return &Result{Reason: ReasonVenueRejected, Error: err.Error()}
	}

	e.logger.Info().
		Int64("council_id", council.ID).
		Str("symbol", d.Symbol).
		Str("side", string(orderSide)).
		Str("quantity", fillQty.String()).
		Str("price", fillPrice.String()).
		Msg("spot trade executed")

	return &Result{Success: true, WasExecuted: true, Reason: ReasonExecuted, OrderID: &order.ID}
}

// applySpotBuy adds quantity at the fill price with weighted-average
// cost: avg' = (total_cost + dq*p) / (total + dq).
func (e *Executor) applySpotBuy(ctx context.Context, council *db.Council, symbol string, holding *db.SpotHolding, qty, price decimal.Decimal) (*db.SpotHolding, error) {
	now := time.Now().UTC()
	addCost := money.USD(qty.Mul(price))

	if holding == nil {
		base, quote := splitSymbol(symbol)
		holding = &db.SpotHolding{
			CouncilID:   council.ID,
			Symbol:      symbol,
			BaseAsset:   base,
			QuoteAsset:  quote,
			Free:        qty,
			Total:       qty,
			AverageCost: price,
			TotalCost:   addCost,
			Platform:    e.venue.Name(),
			TradingMode: council.TradingMode,
			Status:      db.HoldingStatusActive,
			OpenedAt:    now,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		return holding, e.holdings.Create(ctx, holding)
	}

	newTotal := holding.Total.Add(qty)
	newCost := holding.TotalCost.Add(addCost)

	holding.AverageCost = money.DivQty(newCost, newTotal)
	holding.TotalCost = newCost
	holding.Total = newTotal
	holding.Free = holding.Free.Add(qty)
	holding.Status = db.HoldingStatusActive
	holding.ClosedAt = nil
	holding.UpdatedAt = now

	return holding, e.holdings.Update(ctx, holding)
}

// applySpotSell subtracts quantity at unchanged average cost. A total
// of zero closes the holding.
func (e *Executor) applySpotSell(ctx context.Context, holding *db.SpotHolding, qty decimal.Decimal) error {
	now := time.Now().UTC()

	holding.Total = holding.Total.Sub(qty)
	holding.Free = holding.Free.Sub(qty)
	if holding.Free.IsNegative() {
		holding.Free = decimal.Zero
	}
	holding.TotalCost = money.USD(holding.AverageCost.Mul(holding.Total))
	holding.UpdatedAt = now

	if holding.Total.IsZero() {
		holding.Status = db.HoldingStatusClosed
		holding.ClosedAt = &now
	}

	return e.holdings.Update(ctx, holding)
}

func (e *Executor) recordSpotOrder(ctx context.Context, council *db.Council, symbol string, side db.OrderSide, quantity decimal.Decimal, vr *venue.OrderResult, holding *db.SpotHolding) (*db.Order, error) {
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
		TradingType: db.TradingTypeSpot,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if holding != nil {
		o.HoldingID = &holding.ID
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

// splitSymbol separates base and quote assets for the common quote
// suffixes.
func splitSymbol(symbol string) (string, string) {
	for _, quote := range []string{"USDT", "USDC", "BUSD", "BTC", "ETH"} {
		if strings.HasSuffix(symbol, quote) && len(symbol) > len(quote) {
			return strings.TrimSuffix(symbol, quote), quote
		}
	}
	return symbol, "USDT"
}
