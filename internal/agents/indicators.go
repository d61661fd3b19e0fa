package agents

import (
	"fmt"

	"github.com/cinar/indicator/v2/momentum"
	"github.com/cinar/indicator/v2/trend"
)

const (
	rsiPeriod = 14
	smaPeriod = 20
)

// IndicatorSet is the technical enrichment computed from recent
// closes and fed into agent prompts.
type IndicatorSet struct {
	RSI14     float64 `json:"rsi_14"`
	SMA20     float64 `json:"sma_20"`
	LastClose float64 `json:"last_close"`
}

// ComputeIndicators derives RSI(14) and SMA(20) from a close series.
// Returns nil when the series is too short to be meaningful.
func ComputeIndicators(closes []float64) *IndicatorSet {
	if len(closes) < smaPeriod+1 {
		return nil
	}

	rsi := lastOf(momentum.NewRsiWithPeriod[float64](rsiPeriod), closes)
	sma := lastOf(trend.NewSmaWithPeriod[float64](smaPeriod), closes)

	return &IndicatorSet{
		RSI14:     rsi,
		SMA20:     sma,
		LastClose: closes[len(closes)-1],
	}
}

type computer interface {
	Compute(<-chan float64) <-chan float64
}

func lastOf(ind computer, values []float64) float64 {
	in := make(chan float64, len(values))
	for _, v := range values {
		in <- v
	}
	close(in)

	var last float64
	for v := range ind.Compute(in) {
		last = v
	}
	return last
}

// Format renders the set for inclusion in a prompt.
func (s *IndicatorSet) Format() string {
	var rsiNote string
	switch {
	case s.RSI14 >= 70:
		rsiNote = "overbought"
	case s.RSI14 <= 30:
		rsiNote = "oversold"
	default:
		rsiNote = "neutral"
	}

	var trendNote string
	switch {
	case s.LastClose > s.SMA20:
		trendNote = "price above SMA20"
	default:
		trendNote = "price at or below SMA20"
	}

	return fmt.Sprintf("- RSI(14): %.2f (%s)\n- SMA(20): %.2f (%s)", s.RSI14, rsiNote, s.SMA20, trendNote)
}
