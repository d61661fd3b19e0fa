package venue

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastRetry() RetryConfig {
	return RetryConfig{MaxRetries: 3, InitialBackoff: 1, MaxBackoff: 2, BackoffFactor: 2}
}

func TestWithRetryEventualSuccess(t *testing.T) {
	attempts := 0
	err := WithRetry(context.Background(), fastRetry(), func() error {
		attempts++
		if attempts < 3 {
			return errors.New("connection reset by peer")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestWithRetryNonRetryableFailsFast(t *testing.T) {
	attempts := 0
	err := WithRetry(context.Background(), fastRetry(), func() error {
		attempts++
		return errors.New("insufficient balance")
	})
	assert.Error(t, err)
	assert.Equal(t, 1, attempts)
}

func TestWithRetryExhausted(t *testing.T) {
	attempts := 0
	err := WithRetry(context.Background(), fastRetry(), func() error {
		attempts++
		return errors.New("rate limit exceeded")
	})
	assert.Error(t, err)
	assert.Equal(t, 4, attempts, "initial attempt plus three retries")
}

func TestWithRetryCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := WithRetry(ctx, fastRetry(), func() error { return nil })
	assert.ErrorIs(t, err, context.Canceled)
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(errors.New("Too Many Requests")))
	assert.True(t, IsRetryable(errors.New("code=-1021, msg=Timestamp outside recvWindow")))
	assert.False(t, IsRetryable(errors.New("insufficient balance")))
	assert.False(t, IsRetryable(nil))
}

func TestHardenedBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	p := NewPaper() // no prices loaded, every ticker call fails

	h := Harden(p, 1000, zerolog.Nop())
	h.retry = RetryConfig{MaxRetries: 0, InitialBackoff: 1, MaxBackoff: 1, BackoffFactor: 1}

	for i := 0; i < 5; i++ {
		_, err := h.GetTicker(context.Background(), "BTCUSDT")
		require.Error(t, err)
	}

	_, err := h.GetTicker(context.Background(), "BTCUSDT")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "circuit breaker is open")
}

func TestHardenedPassesThrough(t *testing.T) {
	p := NewPaper()
	p.SetPrice("BTCUSDT", dec("50000"))

	h := Harden(p, 1000, zerolog.Nop())
	tk, err := h.GetTicker(context.Background(), "BTCUSDT")
	require.NoError(t, err)
	assert.True(t, tk.Price.Equal(dec("50000")))

	res, err := h.PlaceOrder(context.Background(), OrderRequest{
		Symbol: "BTCUSDT", Side: "BUY", Type: "MARKET", Quantity: dec("1"),
	})
	require.NoError(t, err)
	assert.Equal(t, "FILLED", res.Status)
}
