// Package orchestrator drives the council control loops: one goroutine
// per council, each running the full analysis-to-execution pipeline on
// a schedule.
package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/quorumtrade/quorumtrade/internal/agents"
	"github.com/quorumtrade/quorumtrade/internal/broadcast"
	"github.com/quorumtrade/quorumtrade/internal/db"
	"github.com/quorumtrade/quorumtrade/internal/llm"
	"github.com/quorumtrade/quorumtrade/internal/monitoring"
	"github.com/quorumtrade/quorumtrade/internal/portfolio"
	"github.com/quorumtrade/quorumtrade/internal/trading"
)

// State is the lifecycle of one council control loop.
type State string

const (
	StateIdle     State = "IDLE"
	StateStarting State = "STARTING"
	StateRunning  State = "RUNNING"
	StateStopping State = "STOPPING"
	StateStopped  State = "STOPPED"
)

// CouncilSource loads councils for loop management.
type CouncilSource interface {
	Get(ctx context.Context, id int64) (*db.Council, error)
	ListSystem(ctx context.Context) ([]*db.Council, error)
	ListByIDs(ctx context.Context, ids []int64) ([]*db.Council, error)
}

// RunStore is the run lifecycle persistence.
type RunStore interface {
	CreateRun(ctx context.Context, run *db.CouncilRun) error
	CompleteRun(ctx context.Context, id int64, result []byte, completedAt time.Time) error
	FailRun(ctx context.Context, id int64, cause error, completedAt time.Time) error
	CountInProgress(ctx context.Context, councilID int64) (int, error)
	CreateCycle(ctx context.Context, c *db.CouncilRunCycle) error
	FinishCycle(ctx context.Context, c *db.CouncilRunCycle) error
}

// PortfolioBuilder assembles the portfolio context for prompts.
type PortfolioBuilder interface {
	Build(ctx context.Context, council *db.Council, symbols []string) *portfolio.Context
}

// SignalRunner fans the council's agents out over the symbol universe.
type SignalRunner interface {
	Run(ctx context.Context, council *db.Council, agentList []agents.Agent, pf *portfolio.Context, symbols []string) ([]*agents.Signal, map[string]*agents.MarketData)
}

// ConsensusReducer folds signals into per-symbol decisions.
type ConsensusReducer interface {
	Reduce(ctx context.Context, council *db.Council, runID, cycleID *int64, signals []*agents.Signal, prices map[string]decimal.Decimal) ([]*db.ConsensusDecision, error)
}

// TradeExecutor turns decisions into venue orders.
type TradeExecutor interface {
	ExecuteBatch(ctx context.Context, council *db.Council, decisions []*db.ConsensusDecision, hints map[string]*agents.Signal) *trading.BatchResult
}

// ExecutorSource resolves the executor for a council. Implementations
// may bind per-council wallet credentials.
type ExecutorSource interface {
	ExecutorFor(ctx context.Context, council *db.Council) (TradeExecutor, error)
}

// StaticExecutors serves one shared executor per trading type.
type StaticExecutors map[db.TradingType]TradeExecutor

func (m StaticExecutors) ExecutorFor(_ context.Context, council *db.Council) (TradeExecutor, error) {
	exec, ok := m[council.TradingType]
	if !ok {
		return nil, fmt.Errorf("no executor for trading type %q", council.TradingType)
	}
	return exec, nil
}

// Deps are the pipeline stages a fleet wires together.
type Deps struct {
	Councils  CouncilSource
	Runs      RunStore
	Portfolio PortfolioBuilder
	Debate    SignalRunner
	Consensus ConsensusReducer
	Executors ExecutorSource
	Completer llm.Completer
	Sink      broadcast.Sink // optional
	Logger    zerolog.Logger
}

// Options tune the scheduling behavior.
type Options struct {
	Symbols          []string
	ScheduleInterval time.Duration
	ErrorBackoff     time.Duration
}

// Fleet manages one control loop per council. Stopping a loop lets
// the in-flight cycle finish; loops only observe the stop flag between
// cycles.
type Fleet struct {
	deps Deps
	opts Options

	mu    sync.Mutex
	loops map[int64]*loop
	wg    sync.WaitGroup

	logger zerolog.Logger
}

type loop struct {
	stop  chan struct{}
	once  sync.Once
	state atomic.Value // State
}

func (l *loop) setState(s State) { l.state.Store(s) }

func (l *loop) getState() State {
	if s, ok := l.state.Load().(State); ok {
		return s
	}
	return StateIdle
}

var errRunInProgress = errors.New("council already has an in-progress run")

// NewFleet creates a fleet with the given pipeline dependencies.
func NewFleet(deps Deps, opts Options) *Fleet {
	if opts.ScheduleInterval <= 0 {
		opts.ScheduleInterval = 4 * time.Hour
	}
	if opts.ErrorBackoff <= 0 {
		opts.ErrorBackoff = time.Minute
	}
	return &Fleet{
		deps:   deps,
		opts:   opts,
		loops:  make(map[int64]*loop),
		logger: deps.Logger.With().Str("component", "orchestrator").Logger(),
	}
}

// Start launches a loop for each requested council. An empty id list
// means every system council.
func (f *Fleet) Start(ctx context.Context, ids []int64) error {
	var (
		councils []*db.Council
		err      error
	)
	if len(ids) == 0 {
		councils, err = f.deps.Councils.ListSystem(ctx)
	} else {
		councils, err = f.deps.Councils.ListByIDs(ctx, ids)
	}
	if err != nil {
		return fmt.Errorf("load councils: %w", err)
	}

	for _, c := range councils {
		f.StartCouncil(ctx, c)
	}
	return nil
}

// StartCouncil launches the control loop for one council. Starting an
// already-running council is a no-op.
func (f *Fleet) StartCouncil(ctx context.Context, council *db.Council) {
	f.mu.Lock()
	if _, running := f.loops[council.ID]; running {
		f.mu.Unlock()
		return
	}
	l := &loop{stop: make(chan struct{})}
	l.setState(StateStarting)
	f.loops[council.ID] = l
	f.mu.Unlock()

	f.wg.Add(1)
	go f.runLoop(ctx, council.ID, l)
}

// StopCouncil flips the council's stop flag. The current cycle, if
// any, completes before the loop exits.
func (f *Fleet) StopCouncil(id int64) {
	f.mu.Lock()
	l, ok := f.loops[id]
	f.mu.Unlock()
	if !ok {
		return
	}
	l.setState(StateStopping)
	l.once.Do(func() { close(l.stop) })
}

// Stop flips every loop's stop flag and waits for them to drain.
func (f *Fleet) Stop() {
	f.mu.Lock()
	for _, l := range f.loops {
		l.setState(StateStopping)
		l.once.Do(func() { close(l.stop) })
	}
	f.mu.Unlock()
	f.wg.Wait()
}

// CouncilState reports the loop state for a council.
func (f *Fleet) CouncilState(id int64) State {
	f.mu.Lock()
	defer f.mu.Unlock()
	if l, ok := f.loops[id]; ok {
		return l.getState()
	}
	return StateIdle
}

func (f *Fleet) runLoop(ctx context.Context, councilID int64, l *loop) {
	defer f.wg.Done()
	defer func() {
		l.setState(StateStopped)
		monitoring.ActiveCouncils.Dec()
		f.mu.Lock()
		delete(f.loops, councilID)
		f.mu.Unlock()
	}()

	logger := f.logger.With().Int64("council_id", councilID).Logger()
	logger.Info().Msg("council loop starting")
	monitoring.ActiveCouncils.Inc()
	l.setState(StateRunning)

	for {
		select {
		case <-l.stop:
			logger.Info().Msg("council loop stopped")
			return
		case <-ctx.Done():
			logger.Info().Msg("council loop cancelled")
			return
		default:
		}

		wait := f.runOnce(ctx, councilID, logger)

		if !f.sleep(ctx, l.stop, wait) {
			logger.Info().Msg("council loop stopped")
			return
		}
	}
}

// runOnce executes a single scheduled cycle and returns how long to
// sleep before the next one.
func (f *Fleet) runOnce(ctx context.Context, councilID int64, logger zerolog.Logger) time.Duration {
	council, err := f.deps.Councils.Get(ctx, councilID)
	if err != nil {
		logger.Error().Err(err).Msg("failed to load council, backing off")
		monitoring.CyclesTotal.WithLabelValues("failed").Inc()
		return f.opts.ErrorBackoff
	}

	start := time.Now()
	report, err := f.runCycle(ctx, council)
	monitoring.CycleDuration.Observe(time.Since(start).Seconds())

	switch {
	case errors.Is(err, errRunInProgress):
		logger.Warn().Msg("skipping cycle, run already in progress")
		monitoring.CyclesTotal.WithLabelValues("skipped").Inc()
		return f.opts.ScheduleInterval
	case err != nil:
		logger.Error().Err(err).Msg("cycle failed, backing off")
		monitoring.CyclesTotal.WithLabelValues("failed").Inc()
		return f.opts.ErrorBackoff
	default:
		logger.Info().
			Int("decisions", len(report.Decisions)).
			Int("trades_executed", len(report.Batch.TradesExecuted)).
			Dur("elapsed", time.Since(start)).
			Msg("cycle completed")
		monitoring.CyclesTotal.WithLabelValues("completed").Inc()
		f.broadcastDecisions(ctx, council.ID, report.Decisions)
		return f.opts.ScheduleInterval
	}
}

// runCycle owns the run record lifecycle around one pipeline pass.
func (f *Fleet) runCycle(ctx context.Context, council *db.Council) (*Report, error) {
	n, err := f.deps.Runs.CountInProgress(ctx, council.ID)
	if err != nil {
		return nil, fmt.Errorf("count in-progress runs: %w", err)
	}
	if n > 0 {
		return nil, errRunInProgress
	}

	run := &db.CouncilRun{
		CouncilID:   council.ID,
		UserID:      council.OwnerID,
		TradingMode: council.TradingMode,
		Symbols:     f.opts.Symbols,
		Status:      db.RunStatusInProgress,
		StartedAt:   time.Now().UTC(),
	}
	if err := f.deps.Runs.CreateRun(ctx, run); err != nil {
		return nil, fmt.Errorf("create run: %w", err)
	}

	cycle := &db.CouncilRunCycle{
		RunID:         run.ID,
		CouncilID:     council.ID,
		Status:        db.RunStatusInProgress,
		TriggerReason: "scheduled",
		StartedAt:     run.StartedAt,
	}
	if err := f.deps.Runs.CreateCycle(ctx, cycle); err != nil {
		f.failRun(ctx, run.ID, err)
		return nil, fmt.Errorf("create cycle: %w", err)
	}

	report, err := f.pipeline(ctx, council, run, cycle)
	now := time.Now().UTC()
	if err != nil {
		cycle.Status = db.RunStatusFailed
		cycle.CompletedAt = &now
		if ferr := f.deps.Runs.FinishCycle(ctx, cycle); ferr != nil {
			f.logger.Warn().Err(ferr).Int64("run_id", run.ID).Msg("failed to finish cycle record")
		}
		f.failRun(ctx, run.ID, err)
		return nil, err
	}

	cycle.Status = db.RunStatusCompleted
	cycle.CompletedAt = &now
	cycle.AnalystSignals = mustJSON(report.Signals)
	cycle.TradingDecisions = mustJSON(report.Decisions)
	cycle.ExecutedTrades = mustJSON(report.Batch)
	cycle.PortfolioSnapshot = mustJSON(report.Portfolio)
	cycle.LLMCalls = report.LLMCalls
	if err := f.deps.Runs.FinishCycle(ctx, cycle); err != nil {
		f.logger.Warn().Err(err).Int64("run_id", run.ID).Msg("failed to finish cycle record")
	}

	if err := f.deps.Runs.CompleteRun(ctx, run.ID, mustJSON(report), now); err != nil {
		return nil, fmt.Errorf("complete run: %w", err)
	}
	return report, nil
}

// pipeline runs one portfolio -> debate -> consensus -> execution pass.
func (f *Fleet) pipeline(ctx context.Context, council *db.Council, run *db.CouncilRun, cycle *db.CouncilRunCycle) (*Report, error) {
	cfg, err := council.ParseConfig()
	if err != nil {
		return nil, err
	}

	refs := cfg.Agents
	if !council.IsSystem {
		refs, err = agents.OrderFromGraph(refs, cfg.Connections)
		if err != nil {
			return nil, fmt.Errorf("resolve agent graph: %w", err)
		}
	}
	agentList := agents.Assemble(refs, f.deps.Completer, f.logger)
	if len(agentList) == 0 {
		return nil, fmt.Errorf("council %d has no recognized agents", council.ID)
	}

	pf := f.deps.Portfolio.Build(ctx, council, f.opts.Symbols)

	signals, markets := f.deps.Debate.Run(ctx, council, agentList, pf, f.opts.Symbols)
	countAgentFailures(signals)

	prices := make(map[string]decimal.Decimal, len(markets))
	for symbol, md := range markets {
		prices[symbol] = md.Price
	}

	decisions, err := f.deps.Consensus.Reduce(ctx, council, &run.ID, &cycle.ID, signals, prices)
	if err != nil {
		return nil, fmt.Errorf("reduce consensus: %w", err)
	}
	for _, d := range decisions {
		monitoring.DecisionsTotal.WithLabelValues(string(d.Decision)).Inc()
	}

	exec, err := f.deps.Executors.ExecutorFor(ctx, council)
	if err != nil {
		return nil, fmt.Errorf("resolve executor: %w", err)
	}
	batch := exec.ExecuteBatch(ctx, council, decisions, bestHints(signals))
	for _, outcome := range append(batch.TradesExecuted, batch.TradesSkipped...) {
		if outcome.Result != nil {
			monitoring.TradesTotal.WithLabelValues(outcome.Result.Reason).Inc()
		}
	}

	return &Report{
		Symbols:   f.opts.Symbols,
		Signals:   signals,
		Decisions: decisions,
		Batch:     batch,
		Portfolio: pf,
		LLMCalls:  len(signals),
	}, nil
}

// Report is the serialized outcome of one cycle.
type Report struct {
	Symbols   []string                `json:"symbols"`
	Signals   []*agents.Signal        `json:"signals"`
	Decisions []*db.ConsensusDecision `json:"decisions"`
	Batch     *trading.BatchResult    `json:"batch"`
	Portfolio *portfolio.Context      `json:"portfolio"`
	LLMCalls  int                     `json:"llm_calls"`
}

// bestHints picks, per symbol, the highest-confidence directional
// signal to carry leverage and exit-plan hints into execution.
func bestHints(signals []*agents.Signal) map[string]*agents.Signal {
	hints := make(map[string]*agents.Signal)
	for _, s := range signals {
		if s.Action == agents.ActionHold {
			continue
		}
		if best, ok := hints[s.Symbol]; !ok || s.Confidence.GreaterThan(best.Confidence) {
			hints[s.Symbol] = s
		}
	}
	return hints
}

func countAgentFailures(signals []*agents.Signal) {
	for _, s := range signals {
		if s.Err != nil {
			monitoring.AgentFailuresTotal.Inc()
		}
	}
}

func (f *Fleet) broadcastDecisions(ctx context.Context, councilID int64, decisions []*db.ConsensusDecision) {
	if f.deps.Sink == nil {
		return
	}
	topic := fmt.Sprintf("council.%d", councilID)
	for _, d := range decisions {
		f.deps.Sink.Publish(ctx, topic, broadcast.Event{
			Type:      "consensus",
			CouncilID: councilID,
			Timestamp: time.Now().UTC(),
			Data:      d,
		})
	}
}

func (f *Fleet) failRun(ctx context.Context, runID int64, cause error) {
	if err := f.deps.Runs.FailRun(ctx, runID, cause, time.Now().UTC()); err != nil {
		f.logger.Error().Err(err).Int64("run_id", runID).Msg("failed to mark run failed")
	}
}

// sleep waits for d unless the stop flag flips or the context dies.
// It reports whether the loop should continue.
func (f *Fleet) sleep(ctx context.Context, stop <-chan struct{}, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-stop:
		return false
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func mustJSON(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		return json.RawMessage(`{}`)
	}
	return b
}

// RunningCouncils lists the councils with live loops, sorted.
func (f *Fleet) RunningCouncils() []int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]int64, 0, len(f.loops))
	for id := range f.loops {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
