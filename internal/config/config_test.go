package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "quorumtrade", cfg.App.Name)
	assert.Equal(t, 14400, cfg.Trading.ScheduleIntervalSecs)
	assert.Equal(t, 0.6, cfg.Trading.ConsensusThreshold)
	assert.Equal(t, 0.5, cfg.Trading.MinConfidenceForTrade)
	assert.Equal(t, 0.2, cfg.Trading.MaxPositionPct)
	assert.Equal(t, 60, cfg.Trading.ErrorBackoffSecs)
	assert.Equal(t, 4*time.Hour, cfg.Trading.ScheduleInterval())
	assert.Equal(t, 30*time.Second, cfg.LLM.Timeout())
}

func TestValidateRejectsBadThreshold(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	cfg.Trading.ConsensusThreshold = 1.5
	assert.Error(t, cfg.Validate())

	cfg.Trading.ConsensusThreshold = 0
	assert.Error(t, cfg.Validate())

	cfg.Trading.ConsensusThreshold = 1.0
	assert.NoError(t, cfg.Validate())
}

func TestValidateRejectsBadPositionPct(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	cfg.Trading.MaxPositionPct = 0
	assert.Error(t, cfg.Validate())
}

func TestVenueTimeoutDefault(t *testing.T) {
	vc := VenueConfig{}
	assert.Equal(t, 30*time.Second, vc.Timeout())
}
