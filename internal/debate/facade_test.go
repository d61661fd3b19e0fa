package debate

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quorumtrade/quorumtrade/internal/agents"
	"github.com/quorumtrade/quorumtrade/internal/db"
	"github.com/quorumtrade/quorumtrade/internal/venue"
)

type stubAgent struct {
	key    string
	action agents.Action
	dir    agents.Direction
	conf   string
	err    error
	delay  time.Duration
}

func (a *stubAgent) Key() string                 { return a.key }
func (a *stubAgent) Name() string                { return a.key }
func (a *stubAgent) MessageType() db.MessageType { return db.MessageTypeAnalysis }

func (a *stubAgent) Analyze(ctx context.Context, in agents.Input) (*agents.Signal, error) {
	if a.delay > 0 {
		select {
		case <-time.After(a.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if a.err != nil {
		return nil, a.err
	}
	return &agents.Signal{
		AgentKey:    a.key,
		Symbol:      in.Symbol,
		Action:      a.action,
		Direction:   a.dir,
		Sentiment:   db.SentimentNeutral,
		Confidence:  decimal.RequireFromString(a.conf),
		Reasoning:   "stub",
		MessageType: db.MessageTypeAnalysis,
	}, nil
}

func marketForTest() map[db.TradingType]MarketReader {
	p := venue.NewPaper()
	p.SetPrice("BTCUSDT", decimal.RequireFromString("50000"))
	p.SetPrice("ETHUSDT", decimal.RequireFromString("3000"))
	return map[db.TradingType]MarketReader{
		db.TradingTypeFutures: p,
		db.TradingTypeSpot:    p,
	}
}

func futuresCouncil() *db.Council {
	return &db.Council{ID: 1, TradingType: db.TradingTypeFutures}
}

func TestFacadeFullMatrix(t *testing.T) {
	messages := &capturedMessages{}
	f := NewFacade(marketForTest(), messages, 4, time.Second, zerolog.Nop())

	agentList := []agents.Agent{
		&stubAgent{key: "a1", action: agents.ActionBuy, dir: agents.DirectionLong, conf: "0.8"},
		&stubAgent{key: "a2", action: agents.ActionHold, dir: agents.DirectionNone, conf: "0.5"},
	}
	symbols := []string{"BTCUSDT", "ETHUSDT"}

	signals, _ := f.Run(context.Background(), futuresCouncil(), agentList, nil, symbols)
	require.Len(t, signals, 4, "agents x symbols")
	assert.Len(t, messages.appended, 4, "one debate message per successful signal")
}

func TestFacadeAgentFailureDefaultsToHold(t *testing.T) {
	messages := &capturedMessages{}
	f := NewFacade(marketForTest(), messages, 4, time.Second, zerolog.Nop())

	agentList := []agents.Agent{
		&stubAgent{key: "ok", action: agents.ActionBuy, dir: agents.DirectionLong, conf: "0.8"},
		&stubAgent{key: "broken", err: errors.New("llm unavailable")},
	}

	signals, _ := f.Run(context.Background(), futuresCouncil(), agentList, nil, []string{"BTCUSDT"})
	require.Len(t, signals, 2)

	var hold *agents.Signal
	for _, s := range signals {
		if s.AgentKey == "broken" {
			hold = s
		}
	}
	require.NotNil(t, hold)
	assert.Equal(t, agents.ActionHold, hold.Action)
	assert.True(t, hold.Confidence.IsZero())
	assert.Contains(t, hold.Reasoning, "llm unavailable")

	assert.Len(t, messages.appended, 1, "failed signals are not persisted to the debate stream")
}

func TestFacadeTimeoutProducesHold(t *testing.T) {
	f := NewFacade(marketForTest(), nil, 4, 10*time.Millisecond, zerolog.Nop())

	agentList := []agents.Agent{
		&stubAgent{key: "slow", action: agents.ActionBuy, dir: agents.DirectionLong, conf: "0.9", delay: 500 * time.Millisecond},
	}

	start := time.Now()
	signals, _ := f.Run(context.Background(), futuresCouncil(), agentList, nil, []string{"BTCUSDT"})
	require.Len(t, signals, 1)
	assert.Equal(t, agents.ActionHold, signals[0].Action)
	assert.Less(t, time.Since(start), 400*time.Millisecond, "per-invocation timeout bounds latency")
}

func TestFacadeMissingMarketDataStillRuns(t *testing.T) {
	f := NewFacade(map[db.TradingType]MarketReader{db.TradingTypeFutures: venue.NewPaper()}, nil, 2, time.Second, zerolog.Nop())

	agentList := []agents.Agent{
		&stubAgent{key: "a1", action: agents.ActionBuy, dir: agents.DirectionLong, conf: "0.7"},
	}

	signals, _ := f.Run(context.Background(), futuresCouncil(), agentList, nil, []string{"NOPEUSDT"})
	require.Len(t, signals, 1)
	assert.Equal(t, agents.ActionBuy, signals[0].Action)
}

func TestFacadeRoutesMarketsByTradingType(t *testing.T) {
	futures := venue.NewPaper()
	futures.SetPrice("BTCUSDT", decimal.RequireFromString("50100"))
	spot := venue.NewPaper()
	spot.SetPrice("BTCUSDT", decimal.RequireFromString("50000"))

	f := NewFacade(map[db.TradingType]MarketReader{
		db.TradingTypeFutures: futures,
		db.TradingTypeSpot:    spot,
	}, nil, 2, time.Second, zerolog.Nop())

	agentList := []agents.Agent{
		&stubAgent{key: "a1", action: agents.ActionBuy, dir: agents.DirectionLong, conf: "0.7"},
	}

	_, markets := f.Run(context.Background(), &db.Council{ID: 2, TradingType: db.TradingTypeSpot}, agentList, nil, []string{"BTCUSDT"})
	require.Contains(t, markets, "BTCUSDT")
	assert.True(t, markets["BTCUSDT"].Price.Equal(decimal.RequireFromString("50000")),
		"spot council reads spot quotes, not futures marks")

	_, markets = f.Run(context.Background(), futuresCouncil(), agentList, nil, []string{"BTCUSDT"})
	assert.True(t, markets["BTCUSDT"].Price.Equal(decimal.RequireFromString("50100")))
}

func TestFacadePersistsDebateRound(t *testing.T) {
	messages := &capturedMessages{}
	f := NewFacade(marketForTest(), messages, 2, time.Second, zerolog.Nop())

	agentList := []agents.Agent{
		&stubAgent{key: "a1", action: agents.ActionBuy, dir: agents.DirectionLong, conf: "0.7"},
	}

	f.Run(context.Background(), futuresCouncil(), agentList, nil, []string{"BTCUSDT"})
	require.Len(t, messages.appended, 1)
	assert.Equal(t, 1, messages.appended[0].DebateRound)
}
