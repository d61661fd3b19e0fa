package agents

import (
	"context"

	"github.com/quorumtrade/quorumtrade/internal/db"
	"github.com/quorumtrade/quorumtrade/internal/llm"
)

// personaAgent is the single implementation behind every registered
// agent_key: a system prompt establishing the persona, a shared user
// prompt, and normalization of whatever shape the model emits.
type personaAgent struct {
	key         string
	name        string
	system      string
	messageType db.MessageType
	completer   llm.Completer
}

func (a *personaAgent) Key() string                 { return a.key }
func (a *personaAgent) Name() string                { return a.name }
func (a *personaAgent) MessageType() db.MessageType { return a.messageType }

// Analyze runs one (agent, symbol) invocation. Errors are returned to
// the caller, which substitutes a defaulted hold signal.
func (a *personaAgent) Analyze(ctx context.Context, in Input) (*Signal, error) {
	prompt := buildUserPrompt(in.Symbol, in.Market, in.Portfolio)

	var raw RawSignal
	if err := a.completer.CompleteStructured(ctx, a.system, prompt, "trading_signal", &raw); err != nil {
		return nil, err
	}

	return raw.Normalize(a.key, in.Symbol, a.messageType), nil
}
