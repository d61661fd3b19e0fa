// Package debate runs the council's agents over the symbol universe
// and reduces their signals to consensus decisions.
package debate

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/quorumtrade/quorumtrade/internal/agents"
	"github.com/quorumtrade/quorumtrade/internal/db"
	"github.com/quorumtrade/quorumtrade/internal/portfolio"
	"github.com/quorumtrade/quorumtrade/internal/venue"
)

// MessageAppender persists debate stream entries.
type MessageAppender interface {
	Append(ctx context.Context, msg *db.AgentDebateMessage) error
}

// MarketReader supplies per-symbol market data for prompts.
type MarketReader interface {
	GetTicker(ctx context.Context, symbol string) (*venue.Ticker, error)
	GetKlines(ctx context.Context, symbol, interval string, limit int) ([]venue.Kline, error)
}

// Facade fans a council's agents out across symbols and collects
// typed signals. Individual agent failures degrade to hold signals;
// they never abort the cycle. Market data comes from the venue family
// the council trades on, so spot councils are never priced off
// futures marks.
type Facade struct {
	markets  map[db.TradingType]MarketReader
	messages MessageAppender
	poolSize int64
	timeout  time.Duration
	logger   zerolog.Logger
}

// NewFacade creates the invocation facade with one market reader per
// trading type.
func NewFacade(markets map[db.TradingType]MarketReader, messages MessageAppender, poolSize int, timeout time.Duration, logger zerolog.Logger) *Facade {
	if poolSize <= 0 {
		poolSize = 8
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Facade{
		markets:  markets,
		messages: messages,
		poolSize: int64(poolSize),
		timeout:  timeout,
		logger:   logger.With().Str("component", "debate").Logger(),
	}
}

const klineInterval = "1h"
const klineLimit = 100

// debateRound is constant while debates are single-round.
const debateRound = 1

// Run invokes every agent for every symbol with a bounded worker pool
// and returns the full signal matrix plus the per-symbol market data
// it was computed against. Market data is fetched once per symbol and
// shared across agents.
func (f *Facade) Run(ctx context.Context, council *db.Council, agentList []agents.Agent, pf *portfolio.Context, symbols []string) ([]*agents.Signal, map[string]*agents.MarketData) {
	markets := f.fetchMarkets(ctx, council, symbols)

	sem := semaphore.NewWeighted(f.poolSize)
	g, gctx := errgroup.WithContext(ctx)

	var mu sync.Mutex
	signals := make([]*agents.Signal, 0, len(agentList)*len(symbols))

	for _, agent := range agentList {
		for _, symbol := range symbols {
			agent, symbol := agent, symbol
			g.Go(func() error {
				if err := sem.Acquire(gctx, 1); err != nil {
					return nil // context gone; remaining work defaults below
				}
				defer sem.Release(1)

				signal := f.invoke(gctx, council, agent, pf, symbol, markets[symbol])

				mu.Lock()
				signals = append(signals, signal)
				mu.Unlock()
				return nil
			})
		}
	}
	g.Wait() //nolint:errcheck // workers never return errors

	// Workers that never ran because the context died still owe a
	// defaulted hold signal per (agent, symbol).
	signals = f.fillMissing(signals, agentList, symbols, ctx.Err())

	return signals, markets
}

func (f *Facade) invoke(ctx context.Context, council *db.Council, agent agents.Agent, pf *portfolio.Context, symbol string, market *agents.MarketData) *agents.Signal {
	callCtx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	signal, err := agent.Analyze(callCtx, agents.Input{
		Council:   council,
		Portfolio: pf,
		Symbol:    symbol,
		Market:    market,
	})
	if err != nil {
		f.logger.Warn().Err(err).
			Int64("council_id", council.ID).
			Str("agent_key", agent.Key()).
			Str("symbol", symbol).
			Msg("agent invocation failed, defaulting to hold")
		return agents.HoldSignal(agent.Key(), symbol, err)
	}

	f.persistMessage(ctx, council.ID, agent, signal)
	return signal
}

func (f *Facade) persistMessage(ctx context.Context, councilID int64, agent agents.Agent, s *agents.Signal) {
	if f.messages == nil {
		return
	}
	symbol := s.Symbol
	msg := &db.AgentDebateMessage{
		CouncilID:    councilID,
		AgentName:    agent.Name(),
		MessageType:  s.MessageType,
		Sentiment:    s.Sentiment,
		Content:      s.Reasoning,
		MarketSymbol: &symbol,
		Confidence:   s.Confidence,
		DebateRound:  debateRound,
		CreatedAt:    time.Now().UTC(),
	}
	if err := f.messages.Append(ctx, msg); err != nil {
		f.logger.Warn().Err(err).Str("agent", agent.Key()).Msg("failed to persist debate message")
	}
}

func (f *Facade) fetchMarkets(ctx context.Context, council *db.Council, symbols []string) map[string]*agents.MarketData {
	out := make(map[string]*agents.MarketData, len(symbols))
	market := f.markets[council.TradingType]
	if market == nil {
		f.logger.Warn().Str("trading_type", string(council.TradingType)).Msg("no market reader for trading type, agents run without market data")
		return out
	}

	for _, symbol := range symbols {
		ticker, err := market.GetTicker(ctx, symbol)
		if err != nil {
			f.logger.Warn().Err(err).Str("symbol", symbol).Msg("ticker unavailable, agents run without market data")
			continue
		}

		md := &agents.MarketData{
			Price:          ticker.Price,
			PriceChange24h: ticker.PriceChange24h,
			Volume24h:      ticker.Volume24h,
		}
		if klines, err := market.GetKlines(ctx, symbol, klineInterval, klineLimit); err == nil {
			md.Indicators = agents.ComputeIndicators(venue.CloseSeries(klines))
		}
		out[symbol] = md
	}
	return out
}

func (f *Facade) fillMissing(signals []*agents.Signal, agentList []agents.Agent, symbols []string, cause error) []*agents.Signal {
	if len(signals) == len(agentList)*len(symbols) {
		return signals
	}

	seen := make(map[string]map[string]bool, len(agentList))
	for _, s := range signals {
		if seen[s.AgentKey] == nil {
			seen[s.AgentKey] = make(map[string]bool)
		}
		seen[s.AgentKey][s.Symbol] = true
	}
	for _, agent := range agentList {
		for _, symbol := range symbols {
			if !seen[agent.Key()][symbol] {
				signals = append(signals, agents.HoldSignal(agent.Key(), symbol, cause))
			}
		}
	}
	return signals
}
