package venue

import (
	"context"
	"fmt"
	"time"

	binance "github.com/adshao/go-binance/v2"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// BinanceSpot is the live spot venue.
type BinanceSpot struct {
	client *binance.Client
	logger zerolog.Logger
}

// BinanceConfig configures the live clients.
type BinanceConfig struct {
	APIKey    string
	SecretKey string
	Testnet   bool
}

// NewBinanceSpot creates a spot client. Testnet mode is process-wide,
// matching the underlying SDK.
func NewBinanceSpot(cfg BinanceConfig, logger zerolog.Logger) *BinanceSpot {
	if cfg.Testnet {
		binance.UseTestnet = true
	}
	l := logger.With().Str("component", "venue").Str("venue", "binance").Logger()
	if cfg.Testnet {
		l.Info().Msg("binance spot client initialized (testnet)")
	} else {
		l.Warn().Msg("binance spot client initialized (live trading)")
	}
	return &BinanceSpot{
		client: binance.NewClient(cfg.APIKey, cfg.SecretKey),
		logger: l,
	}
}

func (b *BinanceSpot) Name() string { return "binance" }

// GetTicker returns last price with 24h change and quote volume.
func (b *BinanceSpot) GetTicker(ctx context.Context, symbol string) (*Ticker, error) {
	stats, err := b.client.NewListPriceChangeStatsService().Symbol(symbol).Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("binance ticker %s: %w", symbol, err)
	}
	if len(stats) == 0 {
		return nil, fmt.Errorf("binance ticker %s: empty response", symbol)
	}

	s := stats[0]
	price, err := decimal.NewFromString(s.LastPrice)
	if err != nil {
		return nil, fmt.Errorf("binance ticker %s: bad price %q: %w", symbol, s.LastPrice, err)
	}
	change, _ := decimal.NewFromString(s.PriceChangePercent)
	volume, _ := decimal.NewFromString(s.QuoteVolume)

	return &Ticker{Symbol: symbol, Price: price, PriceChange24h: change, Volume24h: volume}, nil
}

// GetKlines returns recent candles for indicator input.
func (b *BinanceSpot) GetKlines(ctx context.Context, symbol, interval string, limit int) ([]Kline, error) {
	raw, err := b.client.NewKlinesService().Symbol(symbol).Interval(interval).Limit(limit).Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("binance klines %s: %w", symbol, err)
	}

	out := make([]Kline, 0, len(raw))
	for _, k := range raw {
		kline, err := parseKline(k.OpenTime, k.Open, k.High, k.Low, k.Close, k.Volume)
		if err != nil {
			return nil, fmt.Errorf("binance klines %s: %w", symbol, err)
		}
		out = append(out, kline)
	}
	return out, nil
}

// PlaceOrder submits a spot order.
func (b *BinanceSpot) PlaceOrder(ctx context.Context, req OrderRequest) (*OrderResult, error) {
	side := binance.SideTypeBuy
	if req.Side == "SELL" {
		side = binance.SideTypeSell
	}

	svc := b.client.NewCreateOrderService().
		Symbol(req.Symbol).
		Side(side).
		Quantity(req.Quantity.String())

	if req.Type == "LIMIT" {
		svc = svc.Type(binance.OrderTypeLimit).
			TimeInForce(binance.TimeInForceTypeGTC).
			Price(req.Price.String())
	} else {
		svc = svc.Type(binance.OrderTypeMarket)
	}

	resp, err := svc.Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("binance place order %s %s: %w", req.Side, req.Symbol, err)
	}

	executed, _ := decimal.NewFromString(resp.ExecutedQuantity)
	result := &OrderResult{
		VenueOrderID: fmt.Sprintf("%d", resp.OrderID),
		Status:       string(resp.Status),
		ExecutedQty:  executed,
	}

	// Fills carry the actual prices and commission.
	var notional, qty, commission decimal.Decimal
	for _, f := range resp.Fills {
		p, _ := decimal.NewFromString(f.Price)
		q, _ := decimal.NewFromString(f.Quantity)
		c, _ := decimal.NewFromString(f.Commission)
		notional = notional.Add(p.Mul(q))
		qty = qty.Add(q)
		commission = commission.Add(c)
		result.CommissionAsset = f.CommissionAsset
	}
	if qty.Sign() > 0 {
		result.AvgPrice = notional.Div(qty)
	}
	result.Commission = commission

	b.logger.Info().
		Str("symbol", req.Symbol).
		Str("side", req.Side).
		Str("status", result.Status).
		Str("executed_qty", result.ExecutedQty.String()).
		Msg("spot order placed")

	return result, nil
}

// CancelOrder cancels a working spot order.
func (b *BinanceSpot) CancelOrder(ctx context.Context, symbol, venueOrderID string) error {
	var orderID int64
	if _, err := fmt.Sscanf(venueOrderID, "%d", &orderID); err != nil {
		return fmt.Errorf("binance cancel: bad order id %q", venueOrderID)
	}
	_, err := b.client.NewCancelOrderService().Symbol(symbol).OrderID(orderID).Do(ctx)
	if err != nil {
		return fmt.Errorf("binance cancel order %s: %w", venueOrderID, err)
	}
	return nil
}

// GetAccount returns non-zero asset balances.
func (b *BinanceSpot) GetAccount(ctx context.Context) ([]Balance, error) {
	acct, err := b.client.NewGetAccountService().Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("binance account: %w", err)
	}

	var out []Balance
	for _, bal := range acct.Balances {
		free, _ := decimal.NewFromString(bal.Free)
		locked, _ := decimal.NewFromString(bal.Locked)
		if free.IsZero() && locked.IsZero() {
			continue
		}
		out = append(out, Balance{Asset: bal.Asset, Free: free, Locked: locked})
	}
	return out, nil
}

var _ Venue = (*BinanceSpot)(nil)

func parseKline(openTime int64, open, high, low, closePx, volume string) (Kline, error) {
	o, err := decimal.NewFromString(open)
	if err != nil {
		return Kline{}, err
	}
	h, err := decimal.NewFromString(high)
	if err != nil {
		return Kline{}, err
	}
	l, err := decimal.NewFromString(low)
	if err != nil {
		return Kline{}, err
	}
	c, err := decimal.NewFromString(closePx)
	if err != nil {
		return Kline{}, err
	}
	v, err := decimal.NewFromString(volume)
	if err != nil {
		return Kline{}, err
	}
	return Kline{
		OpenTime: time.UnixMilli(openTime),
		Open:     o, High: h, Low: l, Close: c, Volume: v,
	}, nil
}
