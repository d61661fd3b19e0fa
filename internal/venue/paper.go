package venue

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/shopspring/decimal"

	"github.com/quorumtrade/quorumtrade/internal/money"
)

// Paper is the simulated venue. Orders fill immediately at the
// current mark; commission defaults to zero and can be set to model a
// taker fee.
type Paper struct {
	mu       sync.RWMutex
	prices   map[string]decimal.Decimal
	klines   map[string][]Kline
	orders   map[string]OrderRequest
	nextID   atomic.Int64
	takerFee decimal.Decimal // fraction of notional, e.g. 0.0004
	feed     QuoteFeed
}

// QuoteFeed supplies a live mark for symbols with no local price set,
// letting paper fills track real quotes.
type QuoteFeed func(ctx context.Context, symbol string) (decimal.Decimal, error)

// NewPaper creates a paper venue with no prices loaded.
func NewPaper() *Paper {
	return &Paper{
		prices: make(map[string]decimal.Decimal),
		klines: make(map[string][]Kline),
		orders: make(map[string]OrderRequest),
	}
}

// Name identifies the venue in order records.
func (p *Paper) Name() string { return "paper" }

// SetTakerFee sets the simulated commission fraction.
func (p *Paper) SetTakerFee(fee decimal.Decimal) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.takerFee = fee
}

// SetQuoteFeed installs the fallback price source.
func (p *Paper) SetQuoteFeed(feed QuoteFeed) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.feed = feed
}

// SetPrice sets the current mark for a symbol.
func (p *Paper) SetPrice(symbol string, price decimal.Decimal) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.prices[symbol] = price
}

// SetKlines loads a candle series for a symbol.
func (p *Paper) SetKlines(symbol string, klines []Kline) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.klines[symbol] = klines
}

// GetTicker returns the current mark for a symbol, consulting the
// quote feed when no local price is set.
func (p *Paper) GetTicker(ctx context.Context, symbol string) (*Ticker, error) {
	price, err := p.markFor(ctx, symbol)
	if err != nil {
		return nil, err
	}
	return &Ticker{Symbol: symbol, Price: price}, nil
}

func (p *Paper) markFor(ctx context.Context, symbol string) (decimal.Decimal, error) {
	p.mu.RLock()
	price, ok := p.prices[symbol]
	feed := p.feed
	p.mu.RUnlock()

	if ok {
		return price, nil
	}
	if feed != nil {
		return feed(ctx, symbol)
	}
	return decimal.Zero, fmt.Errorf("paper venue: no price set for %s", symbol)
}

// GetKlines returns the loaded candle series, bounded by limit.
func (p *Paper) GetKlines(_ context.Context, symbol, _ string, limit int) ([]Kline, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	series := p.klines[symbol]
	if limit > 0 && len(series) > limit {
		series = series[len(series)-limit:]
	}
	out := make([]Kline, len(series))
	copy(out, series)
	return out, nil
}

// PlaceOrder fills immediately at the current mark. LIMIT orders fill
// at their limit price; there is no book to rest on.
func (p *Paper) PlaceOrder(ctx context.Context, req OrderRequest) (*OrderResult, error) {
	if req.Quantity.Sign() <= 0 {
		return nil, fmt.Errorf("paper venue: non-positive quantity %s", req.Quantity)
	}

	fillPrice := req.Price
	if req.Type != "LIMIT" || fillPrice.IsZero() {
		mark, err := p.markFor(ctx, req.Symbol)
		if err != nil {
			return nil, err
		}
		fillPrice = mark
	}

	p.mu.Lock()
	id := strconv.FormatInt(p.nextID.Add(1), 10)
	p.orders[id] = req
	fee := p.takerFee
	p.mu.Unlock()

	commission := money.USD(req.Quantity.Mul(fillPrice).Mul(fee))

	return &OrderResult{
		VenueOrderID:    id,
		Status:          "FILLED",
		ExecutedQty:     req.Quantity,
		AvgPrice:        fillPrice,
		Commission:      commission,
		CommissionAsset: "USDT",
	}, nil
}

// CancelOrder is a no-op success for known orders; paper fills are
// immediate so there is never anything working.
func (p *Paper) CancelOrder(_ context.Context, _, venueOrderID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.orders[venueOrderID]; !ok {
		return fmt.Errorf("paper venue: unknown order %s", venueOrderID)
	}
	return nil
}

// GetAccount reports an empty balance sheet; paper balances live on
// the council row, not the venue.
func (p *Paper) GetAccount(_ context.Context) ([]Balance, error) {
	return nil, nil
}

// WalkPrice nudges a symbol's mark by pct basis, for simulations.
func (p *Paper) WalkPrice(symbol string, pct decimal.Decimal) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if price, ok := p.prices[symbol]; ok {
		p.prices[symbol] = price.Add(price.Mul(pct))
	}
}

var _ Venue = (*Paper)(nil)

// PaperLiquidationPrice is the simulated liquidation level: entry
// scaled by 1/leverage away from entry, against the position.
func PaperLiquidationPrice(side string, entry decimal.Decimal, leverage int) decimal.Decimal {
	if leverage <= 0 {
		leverage = 1
	}
	step := entry.Div(decimal.NewFromInt(int64(leverage)))
	if side == "SHORT" {
		return entry.Add(step)
	}
	return entry.Sub(step)
}
