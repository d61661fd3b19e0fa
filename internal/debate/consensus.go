package debate

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/quorumtrade/quorumtrade/internal/agents"
	"github.com/quorumtrade/quorumtrade/internal/db"
	"github.com/quorumtrade/quorumtrade/internal/money"
)

// DecisionWriter persists consensus decisions.
type DecisionWriter interface {
	Create(ctx context.Context, d *db.ConsensusDecision) error
}

// Vote is one agent's reduced directional vote.
type Vote string

const (
	VoteLong  Vote = "LONG"
	VoteShort Vote = "SHORT"
	VoteHold  Vote = "HOLD"
)

// Consensus reduces the (symbol, agent) signal matrix to one decision
// per symbol against a vote-share threshold.
type Consensus struct {
	threshold decimal.Decimal
	decisions DecisionWriter
	messages  MessageAppender
	logger    zerolog.Logger
}

// NewConsensus creates the reducer. The threshold is the vote share a
// direction needs, compared inclusively.
func NewConsensus(threshold float64, decisions DecisionWriter, messages MessageAppender, logger zerolog.Logger) *Consensus {
	return &Consensus{
		threshold: decimal.NewFromFloat(threshold),
		decisions: decisions,
		messages:  messages,
		logger:    logger.With().Str("component", "consensus").Logger(),
	}
}

// Reduce groups signals by symbol, derives one vote per agent, and
// emits decisions in deterministic symbol order. Symbols with no
// signals are skipped with a warning.
func (c *Consensus) Reduce(ctx context.Context, council *db.Council, runID, cycleID *int64, signals []*agents.Signal, prices map[string]decimal.Decimal) ([]*db.ConsensusDecision, error) {
	bySymbol := make(map[string][]*agents.Signal)
	for _, s := range signals {
		bySymbol[s.Symbol] = append(bySymbol[s.Symbol], s)
	}

	symbols := make([]string, 0, len(bySymbol))
	for symbol := range bySymbol {
		symbols = append(symbols, symbol)
	}
	sort.Strings(symbols)

	out := make([]*db.ConsensusDecision, 0, len(symbols))
	for _, symbol := range symbols {
		group := bySymbol[symbol]
		if len(group) == 0 {
			c.logger.Warn().Str("symbol", symbol).Msg("no signals for symbol, skipping")
			continue
		}

		decision, err := c.reduceSymbol(ctx, council, runID, cycleID, symbol, group, prices[symbol])
		if err != nil {
			return nil, err
		}
		out = append(out, decision)
	}
	return out, nil
}

func (c *Consensus) reduceSymbol(ctx context.Context, council *db.Council, runID, cycleID *int64, symbol string, group []*agents.Signal, price decimal.Decimal) (*db.ConsensusDecision, error) {
	votes := map[Vote]int{}
	agentVotes := make(map[string]Vote, len(group))
	confidences := make([]decimal.Decimal, 0, len(group))

	for _, s := range group {
		v := deriveVote(s)
		votes[v]++
		agentVotes[s.AgentKey] = v
		confidences = append(confidences, s.Confidence)
	}

	total := len(group)
	decision := db.DecisionHold
	totalDec := decimal.NewFromInt(int64(total))

	buyShare := decimal.NewFromInt(int64(votes[VoteLong])).Div(totalDec)
	sellShare := decimal.NewFromInt(int64(votes[VoteShort])).Div(totalDec)

	switch {
	case buyShare.GreaterThanOrEqual(c.threshold):
		decision = db.DecisionBuy
	case sellShare.GreaterThanOrEqual(c.threshold):
		decision = db.DecisionSell
	}

	confidence := money.Pct(money.Mean(confidences))

	votesJSON, err := json.Marshal(agentVotes)
	if err != nil {
		return nil, fmt.Errorf("marshal agent votes: %w", err)
	}

	d := &db.ConsensusDecision{
		CouncilID:       council.ID,
		RunID:           runID,
		CycleID:         cycleID,
		Symbol:          symbol,
		Decision:        decision,
		Confidence:      confidence,
		Threshold:       c.threshold,
		VotesBuy:        votes[VoteLong],
		VotesSell:       votes[VoteShort],
		VotesHold:       votes[VoteHold],
		TotalVotes:      total,
		AgentVotes:      votesJSON,
		MarketPrice:     price,
		WasExecuted:     false,
		ExecutionReason: initialReason(decision),
		Reasoning:       summarize(decision, votes, total),
		CreatedAt:       time.Now().UTC(),
	}

	if c.decisions != nil {
		if err := c.decisions.Create(ctx, d); err != nil {
			return nil, fmt.Errorf("persist consensus decision: %w", err)
		}
	}

	if c.messages != nil {
		msg := &db.AgentDebateMessage{
			CouncilID:    council.ID,
			AgentName:    "System",
			MessageType:  db.MessageTypeConsensus,
			Sentiment:    sentimentForDecision(decision),
			Content:      d.Reasoning,
			MarketSymbol: &d.Symbol,
			Confidence:   confidence,
			DebateRound:  debateRound,
			CreatedAt:    time.Now().UTC(),
		}
		if err := c.messages.Append(ctx, msg); err != nil {
			c.logger.Warn().Err(err).Str("symbol", symbol).Msg("failed to persist consensus message")
		}
	}

	return d, nil
}

// initialReason is the execution_reason a decision carries until the
// executor overwrites it. HOLD decisions are final at consensus time;
// directional ones stay pending so a cycle that dies before execution
// leaves an honest trail.
func initialReason(d db.DecisionKind) string {
	if d == db.DecisionHold {
		return "hold_decision"
	}
	return "pending"
}

// deriveVote prefers the signal's direction; when NONE it falls back
// to the action.
func deriveVote(s *agents.Signal) Vote {
	switch s.Direction {
	case agents.DirectionLong:
		return VoteLong
	case agents.DirectionShort:
		return VoteShort
	}
	switch s.Action {
	case agents.ActionBuy:
		return VoteLong
	case agents.ActionSell:
		return VoteShort
	}
	return VoteHold
}

func sentimentForDecision(d db.DecisionKind) db.Sentiment {
	switch d {
	case db.DecisionBuy:
		return db.SentimentBullish
	case db.DecisionSell:
		return db.SentimentBearish
	default:
		return db.SentimentNeutral
	}
}

func summarize(decision db.DecisionKind, votes map[Vote]int, total int) string {
	return fmt.Sprintf("Consensus %s: %d long / %d short / %d hold of %d votes",
		decision, votes[VoteLong], votes[VoteShort], votes[VoteHold], total)
}
