package db

import (
	"context"
	"time"
)

// ConsensusDecisionRepo provides typed access to consensus decisions.
type ConsensusDecisionRepo struct {
	q Querier
}

// NewConsensusDecisionRepo creates a decision repository over the given
// session.
func NewConsensusDecisionRepo(q Querier) *ConsensusDecisionRepo {
	return &ConsensusDecisionRepo{q: q}
}

const decisionColumns = `
	id, council_id, run_id, cycle_id, symbol, decision, confidence,
	threshold, votes_buy, votes_sell, votes_hold, total_votes, agent_votes,
	market_price, market_conditions, was_executed, order_id,
	execution_reason, reasoning, created_at`

func scanDecision(row interface{ Scan(dest ...any) error }) (*ConsensusDecision, error) {
	var d ConsensusDecision
	err := row.Scan(
		&d.ID, &d.CouncilID, &d.RunID, &d.CycleID, &d.Symbol, &d.Decision,
		&d.Confidence, &d.Threshold, &d.VotesBuy, &d.VotesSell, &d.VotesHold,
		&d.TotalVotes, &d.AgentVotes, &d.MarketPrice, &d.MarketConditions,
		&d.WasExecuted, &d.OrderID, &d.ExecutionReason, &d.Reasoning, &d.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// Create inserts a decision and assigns its id.
func (r *ConsensusDecisionRepo) Create(ctx context.Context, d *ConsensusDecision) error {
	query := `
		INSERT INTO consensus_decisions (
			council_id, run_id, cycle_id, symbol, decision, confidence,
			threshold, votes_buy, votes_sell, votes_hold, total_votes,
			agent_votes, market_price, market_conditions, was_executed,
			order_id, execution_reason, reasoning, created_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19)
		RETURNING id`

	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now().UTC()
	}

	err := r.q.QueryRow(ctx, query,
		d.CouncilID, d.RunID, d.CycleID, d.Symbol, d.Decision, d.Confidence,
		d.Threshold, d.VotesBuy, d.VotesSell, d.VotesHold, d.TotalVotes,
		d.AgentVotes, d.MarketPrice, d.MarketConditions, d.WasExecuted,
		d.OrderID, d.ExecutionReason, d.Reasoning, d.CreatedAt,
	).Scan(&d.ID)
	if err != nil {
		return wrapError("create consensus decision", err)
	}
	return nil
}

// MarkExecuted records the execution outcome and the resulting order
// link.
func (r *ConsensusDecisionRepo) MarkExecuted(ctx context.Context, id int64, executed bool, orderID *int64, reason string) error {
	query := `
		UPDATE consensus_decisions SET
			was_executed = $2,
			order_id = $3,
			execution_reason = $4
		WHERE id = $1`

	tag, err := r.q.Exec(ctx, query, id, executed, orderID, reason)
	if err != nil {
		return wrapError("mark decision executed", err)
	}
	if tag.RowsAffected() == 0 {
		return wrapError("mark decision executed", ErrNotFound)
	}
	return nil
}

// ListByCouncil returns decisions for a council, newest first, with an
// optional decision filter and a bound.
func (r *ConsensusDecisionRepo) ListByCouncil(ctx context.Context, councilID int64, decision DecisionKind, limit int) ([]*ConsensusDecision, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT` + decisionColumns + `
		FROM consensus_decisions
		WHERE council_id = $1 AND ($2 = '' OR decision = $2)
		ORDER BY created_at DESC
		LIMIT $3`

	rows, err := r.q.Query(ctx, query, councilID, string(decision), limit)
	if err != nil {
		return nil, wrapError("list consensus decisions", err)
	}
	defer rows.Close()

	var decisions []*ConsensusDecision
	for rows.Next() {
		d, err := scanDecision(rows)
		if err != nil {
			return nil, wrapError("scan decision", err)
		}
		decisions = append(decisions, d)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapError("iterate decisions", err)
	}
	return decisions, nil
}
