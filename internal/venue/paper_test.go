package venue

import (
	"context"
	"fmt"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestPaperFillsAtMark(t *testing.T) {
	p := NewPaper()
	p.SetPrice("BTCUSDT", dec("50000"))

	res, err := p.PlaceOrder(context.Background(), OrderRequest{
		Symbol: "BTCUSDT", Side: "BUY", Type: "MARKET", Quantity: dec("0.032"),
	})
	require.NoError(t, err)

	assert.Equal(t, "FILLED", res.Status)
	assert.True(t, res.AvgPrice.Equal(dec("50000")))
	assert.True(t, res.ExecutedQty.Equal(dec("0.032")))
	assert.True(t, res.Commission.IsZero(), "zero commission by default")
}

func TestPaperLimitFillsAtLimitPrice(t *testing.T) {
	p := NewPaper()
	p.SetPrice("BTCUSDT", dec("50000"))

	res, err := p.PlaceOrder(context.Background(), OrderRequest{
		Symbol: "BTCUSDT", Side: "SELL", Type: "LIMIT", Quantity: dec("1"), Price: dec("51000"),
	})
	require.NoError(t, err)
	assert.True(t, res.AvgPrice.Equal(dec("51000")))
}

func TestPaperTakerFee(t *testing.T) {
	p := NewPaper()
	p.SetPrice("BTCUSDT", dec("50000"))
	p.SetTakerFee(dec("0.0004"))

	res, err := p.PlaceOrder(context.Background(), OrderRequest{
		Symbol: "BTCUSDT", Side: "BUY", Type: "MARKET", Quantity: dec("1"),
	})
	require.NoError(t, err)
	assert.True(t, res.Commission.Equal(dec("20.00")), "0.04%% of 50000, got %s", res.Commission)
}

func TestPaperUnknownSymbol(t *testing.T) {
	p := NewPaper()
	_, err := p.GetTicker(context.Background(), "NOPEUSDT")
	assert.Error(t, err)

	_, err = p.PlaceOrder(context.Background(), OrderRequest{
		Symbol: "NOPEUSDT", Side: "BUY", Type: "MARKET", Quantity: dec("1"),
	})
	assert.Error(t, err)
}

func TestPaperRejectsNonPositiveQuantity(t *testing.T) {
	p := NewPaper()
	p.SetPrice("BTCUSDT", dec("50000"))

	_, err := p.PlaceOrder(context.Background(), OrderRequest{
		Symbol: "BTCUSDT", Side: "BUY", Type: "MARKET", Quantity: dec("0"),
	})
	assert.Error(t, err)
}

func TestPaperLiquidationPrice(t *testing.T) {
	long := PaperLiquidationPrice("LONG", dec("50000"), 10)
	assert.True(t, long.Equal(dec("45000")), "entry*(1-1/10), got %s", long)

	short := PaperLiquidationPrice("SHORT", dec("50000"), 10)
	assert.True(t, short.Equal(dec("55000")))

	unlevered := PaperLiquidationPrice("LONG", dec("50000"), 0)
	assert.True(t, unlevered.Equal(dec("0")), "leverage 1 liquidates at zero for LONG")
}

func TestPaperKlinesBounded(t *testing.T) {
	p := NewPaper()
	series := make([]Kline, 10)
	for i := range series {
		series[i].Close = decimal.NewFromInt(int64(100 + i))
	}
	p.SetKlines("BTCUSDT", series)

	got, err := p.GetKlines(context.Background(), "BTCUSDT", "1h", 3)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.True(t, got[2].Close.Equal(dec("109")), "newest candles kept")
}

func TestPaperQuoteFeedFallback(t *testing.T) {
	p := NewPaper()
	p.SetQuoteFeed(func(_ context.Context, symbol string) (decimal.Decimal, error) {
		if symbol != "BTCUSDT" {
			return decimal.Zero, fmt.Errorf("no quote for %s", symbol)
		}
		return decimal.RequireFromString("50000"), nil
	})

	// No local price set: the feed supplies the mark for tickers and fills.
	ticker, err := p.GetTicker(context.Background(), "BTCUSDT")
	require.NoError(t, err)
	assert.True(t, ticker.Price.Equal(decimal.RequireFromString("50000")))

	res, err := p.PlaceOrder(context.Background(), OrderRequest{
		Symbol:   "BTCUSDT",
		Side:     "BUY",
		Type:     "MARKET",
		Quantity: decimal.RequireFromString("0.032"),
	})
	require.NoError(t, err)
	assert.True(t, res.AvgPrice.Equal(decimal.RequireFromString("50000")))

	// A locally set price takes precedence over the feed.
	p.SetPrice("BTCUSDT", decimal.RequireFromString("51000"))
	ticker, err = p.GetTicker(context.Background(), "BTCUSDT")
	require.NoError(t, err)
	assert.True(t, ticker.Price.Equal(decimal.RequireFromString("51000")))

	_, err = p.GetTicker(context.Background(), "NOPEUSDT")
	assert.Error(t, err, "feed misses still surface as errors")
}
