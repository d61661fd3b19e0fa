// Package agents implements the council's analysis personas. Each
// agent turns a portfolio snapshot plus market data into one typed
// trading signal per symbol.
package agents

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/quorumtrade/quorumtrade/internal/db"
	"github.com/quorumtrade/quorumtrade/internal/money"
)

// Action is the normalized recommendation of a signal.
type Action string

const (
	ActionBuy  Action = "buy"
	ActionSell Action = "sell"
	ActionHold Action = "hold"
)

// Direction is the position direction implied by a signal.
type Direction string

const (
	DirectionLong  Direction = "LONG"
	DirectionShort Direction = "SHORT"
	DirectionNone  Direction = "NONE"
)

// Signal is the normalized output of one agent invocation.
type Signal struct {
	AgentKey   string          `json:"agent_key"`
	Symbol     string          `json:"symbol"`
	Action     Action          `json:"action"`
	Direction  Direction       `json:"direction"`
	Sentiment  db.Sentiment    `json:"sentiment"`
	Confidence decimal.Decimal `json:"confidence"`
	Reasoning  string          `json:"reasoning"`

	MessageType db.MessageType `json:"message_type,omitempty"`

	Leverage     int                  `json:"leverage,omitempty"`
	StopLoss     *decimal.Decimal     `json:"stop_loss,omitempty"`
	EntryPrice   *decimal.Decimal     `json:"entry_price,omitempty"`
	TakeProfits  []db.TakeProfitLevel `json:"take_profits,omitempty"`
	PositionSize *decimal.Decimal     `json:"position_size,omitempty"`

	Err error `json:"-"` // set on defaulted hold signals
}

// RawSignal is the loosely-typed shape models actually emit. Any of
// action, signal, or recommendation may carry the directive.
type RawSignal struct {
	Action         string  `json:"action"`
	Signal         string  `json:"signal"`
	Recommendation string  `json:"recommendation"`
	Sentiment      string  `json:"sentiment"`
	Confidence     float64 `json:"confidence"`
	Reasoning      string  `json:"reasoning"`

	Leverage     int               `json:"leverage,omitempty"`
	StopLoss     *float64          `json:"stop_loss,omitempty"`
	EntryPrice   *float64          `json:"entry_price,omitempty"`
	TakeProfits  []rawTakeProfit   `json:"take_profits,omitempty"`
	PositionSize *float64          `json:"position_size,omitempty"`
}

type rawTakeProfit struct {
	Price    float64 `json:"price"`
	Quantity float64 `json:"quantity,omitempty"`
}

// Normalize converts a raw model output into a typed Signal. The
// directive is taken from action, then signal, then recommendation.
// Confidence arriving on a 0-100 scale is rescaled to [0,1].
func (r *RawSignal) Normalize(agentKey, symbol string, messageType db.MessageType) *Signal {
	directive := r.Action
	if directive == "" {
		directive = r.Signal
	}
	if directive == "" {
		directive = r.Recommendation
	}

	action, direction := mapDirective(directive)

	s := &Signal{
		AgentKey:    agentKey,
		Symbol:      symbol,
		Action:      action,
		Direction:   direction,
		Sentiment:   sentimentFor(direction),
		Confidence:  money.ConfidenceFromRaw(r.Confidence),
		Reasoning:   r.Reasoning,
		MessageType: messageType,
		Leverage:    r.Leverage,
	}

	if r.StopLoss != nil {
		v := decimal.NewFromFloat(*r.StopLoss)
		s.StopLoss = &v
	}
	if r.EntryPrice != nil {
		v := decimal.NewFromFloat(*r.EntryPrice)
		s.EntryPrice = &v
	}
	if r.PositionSize != nil {
		v := decimal.NewFromFloat(*r.PositionSize)
		s.PositionSize = &v
	}
	for _, tp := range r.TakeProfits {
		s.TakeProfits = append(s.TakeProfits, db.TakeProfitLevel{
			Price:    decimal.NewFromFloat(tp.Price),
			Quantity: decimal.NewFromFloat(tp.Quantity),
		})
	}

	return s
}

func mapDirective(directive string) (Action, Direction) {
	switch strings.ToUpper(strings.TrimSpace(directive)) {
	case "BUY", "STRONG_BUY", "LONG":
		return ActionBuy, DirectionLong
	case "SELL", "STRONG_SELL", "SHORT":
		return ActionSell, DirectionShort
	default:
		// HOLD, NEUTRAL, and anything unrecognized.
		return ActionHold, DirectionNone
	}
}

func sentimentFor(d Direction) db.Sentiment {
	switch d {
	case DirectionLong:
		return db.SentimentBullish
	case DirectionShort:
		return db.SentimentBearish
	default:
		return db.SentimentNeutral
	}
}

// HoldSignal is the defaulted signal produced when an agent invocation
// fails. It never aborts the cycle.
func HoldSignal(agentKey, symbol string, err error) *Signal {
	reason := "agent invocation failed"
	if err != nil {
		reason = "agent invocation failed: " + err.Error()
	}
	return &Signal{
		AgentKey:    agentKey,
		Symbol:      symbol,
		Action:      ActionHold,
		Direction:   DirectionNone,
		Sentiment:   db.SentimentNeutral,
		Confidence:  decimal.Zero,
		Reasoning:   reason,
		MessageType: db.MessageTypeAnalysis,
		Err:         err,
	}
}
