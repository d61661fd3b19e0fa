// Package venue abstracts the execution side: a paper venue that
// fills at mark, and Binance spot/futures clients for live councils.
package venue

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Ticker is a point-in-time market quote.
type Ticker struct {
	Symbol         string
	Price          decimal.Decimal
	PriceChange24h decimal.Decimal // percent
	Volume24h      decimal.Decimal // quote volume
}

// Kline is one OHLCV candle.
type Kline struct {
	OpenTime time.Time
	Open     decimal.Decimal
	High     decimal.Decimal
	Low      decimal.Decimal
	Close    decimal.Decimal
	Volume   decimal.Decimal
}

// OrderRequest is a venue-bound order.
type OrderRequest struct {
	Symbol       string
	Side         string // BUY or SELL
	Type         string // MARKET or LIMIT
	Quantity     decimal.Decimal
	Price        decimal.Decimal // LIMIT only
	PositionSide string          // futures only: LONG or SHORT
	Leverage     int             // futures only
	ReduceOnly   bool            // futures only
}

// OrderResult is the venue's view of a placed order.
type OrderResult struct {
	VenueOrderID    string
	Status          string // NEW, FILLED, REJECTED, ...
	ExecutedQty     decimal.Decimal
	AvgPrice        decimal.Decimal
	Commission      decimal.Decimal
	CommissionAsset string
}

// Balance is one asset balance on the venue account.
type Balance struct {
	Asset  string
	Free   decimal.Decimal
	Locked decimal.Decimal
}

// Venue is implemented by the paper venue and by the Binance clients.
type Venue interface {
	Name() string

	GetTicker(ctx context.Context, symbol string) (*Ticker, error)
	GetKlines(ctx context.Context, symbol, interval string, limit int) ([]Kline, error)

	PlaceOrder(ctx context.Context, req OrderRequest) (*OrderResult, error)
	CancelOrder(ctx context.Context, symbol, venueOrderID string) error

	GetAccount(ctx context.Context) ([]Balance, error)
}

// PriceAdapter exposes a Venue as a mark price source.
type PriceAdapter struct {
	V Venue
}

// MarkPrice returns the venue's current price for symbol.
func (a PriceAdapter) MarkPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	t, err := a.V.GetTicker(ctx, symbol)
	if err != nil {
		return decimal.Zero, err
	}
	return t.Price, nil
}

// CloseSeries extracts the float close series for indicator input.
func CloseSeries(klines []Kline) []float64 {
	out := make([]float64, len(klines))
	for i, k := range klines {
		out[i], _ = k.Close.Float64()
	}
	return out
}
