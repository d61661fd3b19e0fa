package db

import (
	"context"
	"time"
)

// RunRepo provides typed access to council runs and their cycles.
type RunRepo struct {
	q Querier
}

// NewRunRepo creates a run repository over the given session.
func NewRunRepo(q Querier) *RunRepo {
	return &RunRepo{q: q}
}

// maxErrorLen bounds stored error messages.
const maxErrorLen = 2000

// CreateRun inserts a run with status IN_PROGRESS, assigning the next
// run_number for the council.
func (r *RunRepo) CreateRun(ctx context.Context, run *CouncilRun) error {
	query := `
		INSERT INTO council_runs (
			council_id, user_id, trading_mode, symbols, status, run_number,
			request, started_at
		) VALUES (
			$1, $2, $3, $4, $5,
			COALESCE((SELECT MAX(run_number) FROM council_runs WHERE council_id = $1), 0) + 1,
			$6, $7
		)
		RETURNING id, run_number`

	if run.Status == "" {
		run.Status = RunStatusInProgress
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now().UTC()
	}

	err := r.q.QueryRow(ctx, query,
		run.CouncilID, run.UserID, run.TradingMode, run.Symbols, run.Status,
		run.Request, run.StartedAt,
	).Scan(&run.ID, &run.RunNumber)
	if err != nil {
		return wrapError("create council run", err)
	}
	return nil
}

// CompleteRun marks a run COMPLETED and stores its result blob.
func (r *RunRepo) CompleteRun(ctx context.Context, id int64, result []byte, completedAt time.Time) error {
	query := `
		UPDATE council_runs SET status = $2, result = $3, completed_at = $4
		WHERE id = $1`

	tag, err := r.q.Exec(ctx, query, id, RunStatusCompleted, result, completedAt.UTC())
	if err != nil {
		return wrapError("complete council run", err)
	}
	if tag.RowsAffected() == 0 {
		return wrapError("complete council run", ErrNotFound)
	}
	return nil
}

// FailRun marks a run FAILED with a truncated error message.
func (r *RunRepo) FailRun(ctx context.Context, id int64, cause error, completedAt time.Time) error {
	msg := cause.Error()
	if len(msg) > maxErrorLen {
		msg = msg[:maxErrorLen]
	}

	query := `
		UPDATE council_runs SET status = $2, error_message = $3, completed_at = $4
		WHERE id = $1`

	tag, err := r.q.Exec(ctx, query, id, RunStatusFailed, msg, completedAt.UTC())
	if err != nil {
		return wrapError("fail council run", err)
	}
	if tag.RowsAffected() == 0 {
		return wrapError("fail council run", ErrNotFound)
	}
	return nil
}

// CountInProgress returns the number of IN_PROGRESS runs for a council.
// The orchestrator keeps this at most one.
func (r *RunRepo) CountInProgress(ctx context.Context, councilID int64) (int, error) {
	var n int
	err := r.q.QueryRow(ctx,
		`SELECT COUNT(*) FROM council_runs WHERE council_id = $1 AND status = 'IN_PROGRESS'`,
		councilID).Scan(&n)
	if err != nil {
		return 0, wrapError("count in-progress runs", err)
	}
	return n, nil
}

// CreateCycle inserts a run cycle with status IN_PROGRESS.
func (r *RunRepo) CreateCycle(ctx context.Context, c *CouncilRunCycle) error {
	query := `
		INSERT INTO council_run_cycles (
			run_id, council_id, status, trigger_reason, started_at
		) VALUES ($1, $2, $3, $4, $5)
		RETURNING id`

	if c.Status == "" {
		c.Status = RunStatusInProgress
	}
	if c.StartedAt.IsZero() {
		c.StartedAt = time.Now().UTC()
	}

	err := r.q.QueryRow(ctx, query,
		c.RunID, c.CouncilID, c.Status, c.TriggerReason, c.StartedAt,
	).Scan(&c.ID)
	if err != nil {
		return wrapError("create run cycle", err)
	}
	return nil
}

// FinishCycle flushes cycle payloads and terminal status.
func (r *RunRepo) FinishCycle(ctx context.Context, c *CouncilRunCycle) error {
	query := `
		UPDATE council_run_cycles SET
			status = $2,
			analyst_signals = $3,
			trading_decisions = $4,
			executed_trades = $5,
			portfolio_snapshot = $6,
			performance_metrics = $7,
			llm_calls = $8,
			api_calls = $9,
			estimated_cost = $10,
			completed_at = $11
		WHERE id = $1`

	tag, err := r.q.Exec(ctx, query,
		c.ID, c.Status, c.AnalystSignals, c.TradingDecisions, c.ExecutedTrades,
		c.PortfolioSnapshot, c.PerformanceMetrics, c.LLMCalls, c.APICalls,
		c.EstimatedCost, c.CompletedAt,
	)
	if err != nil {
		return wrapError("finish run cycle", err)
	}
	if tag.RowsAffected() == 0 {
		return wrapError("finish run cycle", ErrNotFound)
	}
	return nil
}
