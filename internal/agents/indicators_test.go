package agents

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeIndicatorsTooShort(t *testing.T) {
	assert.Nil(t, ComputeIndicators([]float64{1, 2, 3}))
}

func TestComputeIndicatorsMonotonicSeries(t *testing.T) {
	closes := make([]float64, 50)
	for i := range closes {
		closes[i] = 100 + float64(i)
	}

	set := ComputeIndicators(closes)
	require.NotNil(t, set)
	assert.Equal(t, 149.0, set.LastClose)
	assert.Greater(t, set.RSI14, 70.0, "strictly rising series is overbought")
	assert.Less(t, set.SMA20, set.LastClose, "rising series keeps price above its mean")
	assert.Contains(t, set.Format(), "overbought")
}
