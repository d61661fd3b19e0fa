package agents

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/quorumtrade/quorumtrade/internal/db"
	"github.com/quorumtrade/quorumtrade/internal/llm"
	"github.com/quorumtrade/quorumtrade/internal/portfolio"
)

// Input is one agent invocation.
type Input struct {
	Council   *db.Council
	Portfolio *portfolio.Context
	Symbol    string
	Market    *MarketData
}

// Agent produces one signal per invocation.
type Agent interface {
	Key() string
	Name() string
	MessageType() db.MessageType
	Analyze(ctx context.Context, in Input) (*Signal, error)
}

// spec describes one recognized agent behavior.
type spec struct {
	name         string
	systemPrompt string
	messageType  db.MessageType
}

// registry maps agent_key to behavior. Unrecognized keys are dropped
// with a warning at assembly time.
var registry = map[string]spec{
	"satoshi_nakamoto": {"Satoshi Nakamoto", satoshiSystemPrompt, db.MessageTypePersonaAnalysis},
	"vitalik_buterin":  {"Vitalik Buterin", vitalikSystemPrompt, db.MessageTypePersonaAnalysis},
	"michael_saylor":   {"Michael Saylor", saylorSystemPrompt, db.MessageTypePersonaAnalysis},
	"cz_binance":       {"CZ", czSystemPrompt, db.MessageTypePersonaAnalysis},
	"elon_musk":        {"Elon Musk", elonSystemPrompt, db.MessageTypePersonaAnalysis},
	"defi_agent":       {"DeFi Agent", defiSystemPrompt, db.MessageTypePersonaAnalysis},
	"crypto_technical": {"Technical Analyst", technicalSystemPrompt, db.MessageTypeTechnicalAnalysis},
	"crypto_sentiment": {"Sentiment Analyst", sentimentSystemPrompt, db.MessageTypeSentimentAnalysis},
	"crypto_analyst":   {"Market Analyst", analystSystemPrompt, db.MessageTypeAnalysis},
}

// Recognized reports whether an agent_key has a registered behavior.
func Recognized(key string) bool {
	_, ok := registry[key]
	return ok
}

// Assemble resolves a council's configured agent list into runnable
// agents, preserving configuration order. Unknown keys are skipped
// with a warning.
func Assemble(refs []db.AgentRef, completer llm.Completer, logger zerolog.Logger) []Agent {
	out := make([]Agent, 0, len(refs))
	for _, ref := range refs {
		s, ok := registry[ref.AgentKey]
		if !ok {
			logger.Warn().Str("agent_key", ref.AgentKey).Msg("ignoring unrecognized agent key")
			continue
		}
		out = append(out, &personaAgent{
			key:         ref.AgentKey,
			name:        s.name,
			system:      s.systemPrompt,
			messageType: s.messageType,
			completer:   completer,
		})
	}
	return out
}
