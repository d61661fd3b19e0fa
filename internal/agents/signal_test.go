package agents

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/quorumtrade/quorumtrade/internal/db"
)

func TestNormalizeDirectiveMapping(t *testing.T) {
	tests := []struct {
		directive string
		action    Action
		direction Direction
		sentiment db.Sentiment
	}{
		{"BUY", ActionBuy, DirectionLong, db.SentimentBullish},
		{"STRONG_BUY", ActionBuy, DirectionLong, db.SentimentBullish},
		{"LONG", ActionBuy, DirectionLong, db.SentimentBullish},
		{"buy", ActionBuy, DirectionLong, db.SentimentBullish},
		{"SELL", ActionSell, DirectionShort, db.SentimentBearish},
		{"STRONG_SELL", ActionSell, DirectionShort, db.SentimentBearish},
		{"SHORT", ActionSell, DirectionShort, db.SentimentBearish},
		{"HOLD", ActionHold, DirectionNone, db.SentimentNeutral},
		{"NEUTRAL", ActionHold, DirectionNone, db.SentimentNeutral},
		{"garbage", ActionHold, DirectionNone, db.SentimentNeutral},
		{"", ActionHold, DirectionNone, db.SentimentNeutral},
	}

	for _, tt := range tests {
		t.Run(tt.directive, func(t *testing.T) {
			raw := RawSignal{Action: tt.directive, Confidence: 0.7}
			s := raw.Normalize("crypto_analyst", "BTCUSDT", db.MessageTypeAnalysis)
			assert.Equal(t, tt.action, s.Action)
			assert.Equal(t, tt.direction, s.Direction)
			assert.Equal(t, tt.sentiment, s.Sentiment)
		})
	}
}

func TestNormalizeFieldFallback(t *testing.T) {
	raw := RawSignal{Signal: "SELL", Confidence: 0.6}
	s := raw.Normalize("crypto_analyst", "BTCUSDT", db.MessageTypeAnalysis)
	assert.Equal(t, ActionSell, s.Action)

	raw = RawSignal{Recommendation: "LONG", Confidence: 0.6}
	s = raw.Normalize("crypto_analyst", "BTCUSDT", db.MessageTypeAnalysis)
	assert.Equal(t, ActionBuy, s.Action)

	// action wins over signal and recommendation
	raw = RawSignal{Action: "HOLD", Signal: "BUY", Recommendation: "SELL"}
	s = raw.Normalize("crypto_analyst", "BTCUSDT", db.MessageTypeAnalysis)
	assert.Equal(t, ActionHold, s.Action)
}

func TestNormalizeConfidenceRescale(t *testing.T) {
	raw := RawSignal{Action: "BUY", Confidence: 85}
	s := raw.Normalize("crypto_analyst", "BTCUSDT", db.MessageTypeAnalysis)
	assert.True(t, s.Confidence.Equal(decimal.RequireFromString("0.85")), "0-100 scale rescaled, got %s", s.Confidence)

	raw = RawSignal{Action: "BUY", Confidence: 0.85}
	s = raw.Normalize("crypto_analyst", "BTCUSDT", db.MessageTypeAnalysis)
	assert.True(t, s.Confidence.Equal(decimal.RequireFromString("0.85")))
}

func TestNormalizeExitPlan(t *testing.T) {
	sl := 48000.0
	raw := RawSignal{
		Action:      "BUY",
		Confidence:  0.9,
		Leverage:    5,
		StopLoss:    &sl,
		TakeProfits: []rawTakeProfit{{Price: 55000, Quantity: 0.1}, {Price: 60000, Quantity: 0.1}},
	}
	s := raw.Normalize("crypto_technical", "BTCUSDT", db.MessageTypeTechnicalAnalysis)
	assert.Equal(t, 5, s.Leverage)
	assert.NotNil(t, s.StopLoss)
	assert.Len(t, s.TakeProfits, 2)
}

func TestHoldSignal(t *testing.T) {
	s := HoldSignal("crypto_analyst", "BTCUSDT", errors.New("timeout"))
	assert.Equal(t, ActionHold, s.Action)
	assert.True(t, s.Confidence.IsZero())
	assert.Contains(t, s.Reasoning, "timeout")
	assert.Error(t, s.Err)
}
