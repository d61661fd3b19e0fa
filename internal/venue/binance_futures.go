package venue

import (
	"context"
	"fmt"
	"sync"

	"github.com/adshao/go-binance/v2/futures"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// BinanceFutures is the live USD-M futures venue.
type BinanceFutures struct {
	client *futures.Client
	logger zerolog.Logger

	mu       sync.Mutex
	leverage map[string]int // symbol -> last applied leverage
}

// NewBinanceFutures creates a USD-M futures client.
func NewBinanceFutures(cfg BinanceConfig, logger zerolog.Logger) *BinanceFutures {
	if cfg.Testnet {
		futures.UseTestnet = true
	}
	l := logger.With().Str("component", "venue").Str("venue", "binance-futures").Logger()
	if cfg.Testnet {
		l.Info().Msg("binance futures client initialized (testnet)")
	} else {
		l.Warn().Msg("binance futures client initialized (live trading)")
	}
	return &BinanceFutures{
		client:   futures.NewClient(cfg.APIKey, cfg.SecretKey),
		logger:   l,
		leverage: make(map[string]int),
	}
}

func (b *BinanceFutures) Name() string { return "binance-futures" }

// GetTicker returns the mark price with 24h stats.
func (b *BinanceFutures) GetTicker(ctx context.Context, symbol string) (*Ticker, error) {
	premium, err := b.client.NewPremiumIndexService().Symbol(symbol).Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("binance futures mark %s: %w", symbol, err)
	}
	if len(premium) == 0 {
		return nil, fmt.Errorf("binance futures mark %s: empty response", symbol)
	}

	mark, err := decimal.NewFromString(premium[0].MarkPrice)
	if err != nil {
		return nil, fmt.Errorf("binance futures mark %s: bad price %q: %w", symbol, premium[0].MarkPrice, err)
	}

	ticker := &Ticker{Symbol: symbol, Price: mark}

	stats, err := b.client.NewListPriceChangeStatsService().Symbol(symbol).Do(ctx)
	if err == nil && len(stats) > 0 {
		change, _ := decimal.NewFromString(stats[0].PriceChangePercent)
		volume, _ := decimal.NewFromString(stats[0].QuoteVolume)
		ticker.PriceChange24h = change
		ticker.Volume24h = volume
	}

	return ticker, nil
}

// GetKlines returns recent candles for indicator input.
func (b *BinanceFutures) GetKlines(ctx context.Context, symbol, interval string, limit int) ([]Kline, error) {
	raw, err := b.client.NewKlinesService().Symbol(symbol).Interval(interval).Limit(limit).Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("binance futures klines %s: %w", symbol, err)
	}

	out := make([]Kline, 0, len(raw))
	for _, k := range raw {
		kline, err := parseKline(k.OpenTime, k.Open, k.High, k.Low, k.Close, k.Volume)
		if err != nil {
			return nil, fmt.Errorf("binance futures klines %s: %w", symbol, err)
		}
		out = append(out, kline)
	}
	return out, nil
}

// PlaceOrder applies leverage when it changed, then submits the order.
func (b *BinanceFutures) PlaceOrder(ctx context.Context, req OrderRequest) (*OrderResult, error) {
	if req.Leverage > 0 {
		if err := b.ensureLeverage(ctx, req.Symbol, req.Leverage); err != nil {
			return nil, err
		}
	}

	side := futures.SideTypeBuy
	if req.Side == "SELL" {
		side = futures.SideTypeSell
	}

	svc := b.client.NewCreateOrderService().
		Symbol(req.Symbol).
		Side(side).
		Quantity(req.Quantity.String())

	switch req.PositionSide {
	case "LONG":
		svc = svc.PositionSide(futures.PositionSideTypeLong)
	case "SHORT":
		svc = svc.PositionSide(futures.PositionSideTypeShort)
	}

	if req.Type == "LIMIT" {
		svc = svc.Type(futures.OrderTypeLimit).
			TimeInForce(futures.TimeInForceTypeGTC).
			Price(req.Price.String())
	} else {
		svc = svc.Type(futures.OrderTypeMarket)
	}
	if req.ReduceOnly {
		svc = svc.ReduceOnly(true)
	}

	resp, err := svc.Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("binance futures place order %s %s: %w", req.Side, req.Symbol, err)
	}

	executed, _ := decimal.NewFromString(resp.ExecutedQuantity)
	avg, _ := decimal.NewFromString(resp.AvgPrice)

	b.logger.Info().
		Str("symbol", req.Symbol).
		Str("side", req.Side).
		Str("position_side", req.PositionSide).
		Str("status", string(resp.Status)).
		Msg("futures order placed")

	return &OrderResult{
		VenueOrderID: fmt.Sprintf("%d", resp.OrderID),
		Status:       string(resp.Status),
		ExecutedQty:  executed,
		AvgPrice:     avg,
	}, nil
}

func (b *BinanceFutures) ensureLeverage(ctx context.Context, symbol string, leverage int) error {
	b.mu.Lock()
	current := b.leverage[symbol]
	b.mu.Unlock()
	if current == leverage {
		return nil
	}

	_, err := b.client.NewChangeLeverageService().Symbol(symbol).Leverage(leverage).Do(ctx)
	if err != nil {
		return fmt.Errorf("binance futures set leverage %s x%d: %w", symbol, leverage, err)
	}

	b.mu.Lock()
	b.leverage[symbol] = leverage
	b.mu.Unlock()
	return nil
}

// CancelOrder cancels a working futures order.
func (b *BinanceFutures) CancelOrder(ctx context.Context, symbol, venueOrderID string) error {
	var orderID int64
	if _, err := fmt.Sscanf(venueOrderID, "%d", &orderID); err != nil {
		return fmt.Errorf("binance futures cancel: bad order id %q", venueOrderID)
	}
	_, err := b.client.NewCancelOrderService().Symbol(symbol).OrderID(orderID).Do(ctx)
	if err != nil {
		return fmt.Errorf("binance futures cancel order %s: %w", venueOrderID, err)
	}
	return nil
}

// GetAccount returns wallet balances on the futures account.
func (b *BinanceFutures) GetAccount(ctx context.Context) ([]Balance, error) {
	balances, err := b.client.NewGetBalanceService().Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("binance futures account: %w", err)
	}

	var out []Balance
	for _, bal := range balances {
		total, _ := decimal.NewFromString(bal.Balance)
		free, _ := decimal.NewFromString(bal.AvailableBalance)
		if total.IsZero() {
			continue
		}
		out = append(out, Balance{Asset: bal.Asset, Free: free, Locked: total.Sub(free)})
	}
	return out, nil
}

var _ Venue = (*BinanceFutures)(nil)
