package db

import (
	"context"
	"time"
)

// DebateRepo provides append-only access to the per-council debate
// stream.
type DebateRepo struct {
	q Querier
}

// NewDebateRepo creates a debate repository over the given session.
func NewDebateRepo(q Querier) *DebateRepo {
	return &DebateRepo{q: q}
}

// Append inserts a debate message.
func (r *DebateRepo) Append(ctx context.Context, m *AgentDebateMessage) error {
	query := `
		INSERT INTO agent_debate_messages (
			council_id, agent_name, message_type, sentiment, content,
			market_symbol, confidence, debate_round, created_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		RETURNING id`

	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}

	err := r.q.QueryRow(ctx, query,
		m.CouncilID, m.AgentName, m.MessageType, m.Sentiment, m.Content,
		m.MarketSymbol, m.Confidence, m.DebateRound, m.CreatedAt,
	).Scan(&m.ID)
	if err != nil {
		return wrapError("append debate message", err)
	}
	return nil
}

// Recent returns the latest messages for a council, newest first,
// bounded.
func (r *DebateRepo) Recent(ctx context.Context, councilID int64, limit int) ([]*AgentDebateMessage, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `
		SELECT id, council_id, agent_name, message_type, sentiment, content,
			market_symbol, confidence, debate_round, created_at
		FROM agent_debate_messages
		WHERE council_id = $1
		ORDER BY created_at DESC
		LIMIT $2`

	rows, err := r.q.Query(ctx, query, councilID, limit)
	if err != nil {
		return nil, wrapError("list debate messages", err)
	}
	defer rows.Close()

	var messages []*AgentDebateMessage
	for rows.Next() {
		var m AgentDebateMessage
		err := rows.Scan(
			&m.ID, &m.CouncilID, &m.AgentName, &m.MessageType, &m.Sentiment,
			&m.Content, &m.MarketSymbol, &m.Confidence, &m.DebateRound, &m.CreatedAt,
		)
		if err != nil {
			return nil, wrapError("scan debate message", err)
		}
		messages = append(messages, &m)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapError("iterate debate messages", err)
	}
	return messages, nil
}
