package venue

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
)

// RetryConfig bounds the retry loop around venue calls.
type RetryConfig struct {
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	BackoffFactor  float64
}

// DefaultRetryConfig matches venue rate-limit guidance.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:     3,
		InitialBackoff: 100 * time.Millisecond,
		MaxBackoff:     5 * time.Second,
		BackoffFactor:  2.0,
	}
}

// IsRetryable reports whether a venue error is worth retrying.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range []string{
		"connection refused", "connection reset", "timeout",
		"temporary failure", "too many requests", "rate limit",
		"-1001", // Binance internal error
		"-1021", // timestamp outside recvWindow
	} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

// WithRetry runs op with exponential backoff on retryable errors.
func WithRetry(ctx context.Context, cfg RetryConfig, op func() error) error {
	backoff := cfg.InitialBackoff
	var lastErr error

	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("venue operation cancelled: %w", err)
		}

		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !IsRetryable(lastErr) || attempt == cfg.MaxRetries {
			break
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("venue operation cancelled: %w", ctx.Err())
		case <-time.After(backoff):
		}

		backoff = time.Duration(float64(backoff) * cfg.BackoffFactor)
		if backoff > cfg.MaxBackoff {
			backoff = cfg.MaxBackoff
		}
	}
	return lastErr
}

// Hardened wraps a Venue with a rate limiter and a circuit breaker so
// one failing venue cannot stall every council loop.
type Hardened struct {
	inner   Venue
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker
	retry   RetryConfig
	logger  zerolog.Logger
}

// Harden wraps v. requestsPerSec bounds outbound calls; the breaker
// opens after 5 consecutive failures and half-opens after 30s.
func Harden(v Venue, requestsPerSec float64, logger zerolog.Logger) *Hardened {
	if requestsPerSec <= 0 {
		requestsPerSec = 10
	}

	h := &Hardened{
		inner:   v,
		limiter: rate.NewLimiter(rate.Limit(requestsPerSec), int(requestsPerSec)+1),
		retry:   DefaultRetryConfig(),
		logger:  logger.With().Str("component", "venue").Str("venue", v.Name()).Logger(),
	}
	h.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    v.Name(),
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			h.logger.Warn().
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("venue circuit breaker state change")
		},
	})
	return h
}

func (h *Hardened) Name() string { return h.inner.Name() }

func (h *Hardened) call(ctx context.Context, op func() (any, error)) (any, error) {
	if err := h.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return h.breaker.Execute(func() (any, error) {
		var out any
		err := WithRetry(ctx, h.retry, func() error {
			var opErr error
			out, opErr = op()
			return opErr
		})
		return out, err
	})
}

func (h *Hardened) GetTicker(ctx context.Context, symbol string) (*Ticker, error) {
	out, err := h.call(ctx, func() (any, error) { return h.inner.GetTicker(ctx, symbol) })
	if err != nil {
		return nil, err
	}
	return out.(*Ticker), nil
}

func (h *Hardened) GetKlines(ctx context.Context, symbol, interval string, limit int) ([]Kline, error) {
	out, err := h.call(ctx, func() (any, error) { return h.inner.GetKlines(ctx, symbol, interval, limit) })
	if err != nil {
		return nil, err
	}
	return out.([]Kline), nil
}

func (h *Hardened) PlaceOrder(ctx context.Context, req OrderRequest) (*OrderResult, error) {
	out, err := h.call(ctx, func() (any, error) { return h.inner.PlaceOrder(ctx, req) })
	if err != nil {
		return nil, err
	}
	return out.(*OrderResult), nil
}

func (h *Hardened) CancelOrder(ctx context.Context, symbol, venueOrderID string) error {
	_, err := h.call(ctx, func() (any, error) { return nil, h.inner.CancelOrder(ctx, symbol, venueOrderID) })
	return err
}

func (h *Hardened) GetAccount(ctx context.Context) ([]Balance, error) {
	out, err := h.call(ctx, func() (any, error) { return h.inner.GetAccount(ctx) })
	if err != nil {
		return nil, err
	}
	if out == nil {
		return nil, nil
	}
	return out.([]Balance), nil
}

var _ Venue = (*Hardened)(nil)
