package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quorumtrade/quorumtrade/internal/agents"
	"github.com/quorumtrade/quorumtrade/internal/broadcast"
	"github.com/quorumtrade/quorumtrade/internal/db"
	"github.com/quorumtrade/quorumtrade/internal/portfolio"
	"github.com/quorumtrade/quorumtrade/internal/trading"
)

type fakeCouncils struct {
	mu       sync.Mutex
	councils map[int64]*db.Council
}

func (f *fakeCouncils) Get(_ context.Context, id int64) (*db.Council, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.councils[id]
	if !ok {
		return nil, db.ErrNotFound
	}
	return c, nil
}

func (f *fakeCouncils) ListSystem(_ context.Context) ([]*db.Council, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*db.Council
	for _, c := range f.councils {
		if c.IsSystem {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeCouncils) ListByIDs(_ context.Context, ids []int64) ([]*db.Council, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*db.Council
	for _, id := range ids {
		if c, ok := f.councils[id]; ok {
			out = append(out, c)
		}
	}
	return out, nil
}

type fakeRuns struct {
	mu         sync.Mutex
	inProgress int
	created    []*db.CouncilRun
	completed  []int64
	failed     map[int64]string
	cycles     []*db.CouncilRunCycle
	finished   []*db.CouncilRunCycle
}

func newFakeRuns() *fakeRuns {
	return &fakeRuns{failed: make(map[int64]string)}
}

func (f *fakeRuns) CreateRun(_ context.Context, run *db.CouncilRun) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	run.ID = int64(len(f.created) + 1)
	run.RunNumber = len(f.created) + 1
	f.created = append(f.created, run)
	return nil
}

func (f *fakeRuns) CompleteRun(_ context.Context, id int64, _ []byte, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.completed = append(f.completed, id)
	return nil
}

func (f *fakeRuns) FailRun(_ context.Context, id int64, cause error, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failed[id] = cause.Error()
	return nil
}

func (f *fakeRuns) CountInProgress(_ context.Context, _ int64) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.inProgress, nil
}

func (f *fakeRuns) CreateCycle(_ context.Context, c *db.CouncilRunCycle) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c.ID = int64(len(f.cycles) + 1)
	f.cycles = append(f.cycles, c)
	return nil
}

func (f *fakeRuns) FinishCycle(_ context.Context, c *db.CouncilRunCycle) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.finished = append(f.finished, c)
	return nil
}

func (f *fakeRuns) completedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.completed)
}

type fakeBuilder struct{}

func (fakeBuilder) Build(_ context.Context, council *db.Council, _ []string) *portfolio.Context {
	return &portfolio.Context{CouncilID: council.ID, BuiltAt: time.Now().UTC()}
}

type fakeDebate struct {
	signals []*agents.Signal
	markets map[string]*agents.MarketData

	entered chan struct{} // closed on first Run, if set
	release chan struct{} // Run blocks on this, if set
	once    sync.Once
}

func (f *fakeDebate) Run(_ context.Context, _ *db.Council, _ []agents.Agent, _ *portfolio.Context, _ []string) ([]*agents.Signal, map[string]*agents.MarketData) {
	if f.entered != nil {
		f.once.Do(func() { close(f.entered) })
	}
	if f.release != nil {
		<-f.release
	}
	return f.signals, f.markets
}

type fakeConsensus struct {
	mu        sync.Mutex
	decisions []*db.ConsensusDecision
	err       error
	gotRunID  *int64
	gotPrices map[string]decimal.Decimal
}

func (f *fakeConsensus) Reduce(_ context.Context, _ *db.Council, runID, _ *int64, _ []*agents.Signal, prices map[string]decimal.Decimal) ([]*db.ConsensusDecision, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gotRunID = runID
	f.gotPrices = prices
	return f.decisions, f.err
}

type fakeExecutor struct {
	mu       sync.Mutex
	batch    *trading.BatchResult
	gotHints map[string]*agents.Signal
}

func (f *fakeExecutor) ExecuteBatch(_ context.Context, _ *db.Council, _ []*db.ConsensusDecision, hints map[string]*agents.Signal) *trading.BatchResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gotHints = hints
	if f.batch == nil {
		return &trading.BatchResult{}
	}
	return f.batch
}

type fakeSink struct {
	mu     sync.Mutex
	topics []string
	events []broadcast.Event
}

func (f *fakeSink) Publish(_ context.Context, topic string, event broadcast.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.topics = append(f.topics, topic)
	f.events = append(f.events, event)
}

func (f *fakeSink) Close() error { return nil }

func testCouncil() *db.Council {
	return &db.Council{
		ID:          7,
		Name:        "alpha",
		Config:      json.RawMessage(`{"agents":[{"agent_key":"crypto_technical"},{"agent_key":"crypto_sentiment"}]}`),
		TradingMode: db.TradingModePaper,
		TradingType: db.TradingTypeFutures,
		IsSystem:    true,
	}
}

func buySignal(symbol, conf string) *agents.Signal {
	return &agents.Signal{
		AgentKey:   "crypto_technical",
		Symbol:     symbol,
		Action:     agents.ActionBuy,
		Direction:  agents.DirectionLong,
		Confidence: decimal.RequireFromString(conf),
	}
}

type harness struct {
	fleet     *Fleet
	councils  *fakeCouncils
	runs      *fakeRuns
	debate    *fakeDebate
	consensus *fakeConsensus
	executor  *fakeExecutor
	sink      *fakeSink
}

func newHarness(t *testing.T, opts Options) *harness {
	t.Helper()

	council := testCouncil()
	h := &harness{
		councils: &fakeCouncils{councils: map[int64]*db.Council{council.ID: council}},
		runs:     newFakeRuns(),
		debate: &fakeDebate{
			signals: []*agents.Signal{buySignal("BTCUSDT", "0.8")},
			markets: map[string]*agents.MarketData{
				"BTCUSDT": {Price: decimal.RequireFromString("50000")},
			},
		},
		consensus: &fakeConsensus{decisions: []*db.ConsensusDecision{{
			ID: 1, CouncilID: council.ID, Symbol: "BTCUSDT", Decision: db.DecisionBuy,
			Confidence: decimal.RequireFromString("0.8"),
		}}},
		executor: &fakeExecutor{batch: &trading.BatchResult{
			TradesExecuted: []trading.TradeOutcome{{
				Symbol:   "BTCUSDT",
				Decision: db.DecisionBuy,
				Result:   &trading.Result{Success: true, WasExecuted: true, Reason: trading.ReasonExecuted},
			}},
		}},
		sink: &fakeSink{},
	}

	if len(opts.Symbols) == 0 {
		opts.Symbols = []string{"BTCUSDT"}
	}
	h.fleet = NewFleet(Deps{
		Councils:  h.councils,
		Runs:      h.runs,
		Portfolio: fakeBuilder{},
		Debate:    h.debate,
		Consensus: h.consensus,
		Executors: StaticExecutors{db.TradingTypeFutures: h.executor},
		Sink:      h.sink,
		Logger:    zerolog.Nop(),
	}, opts)
	return h
}

func TestRunCycleCompletesRunAndCycle(t *testing.T) {
	h := newHarness(t, Options{})
	council := testCouncil()

	report, err := h.fleet.runCycle(context.Background(), council)
	require.NoError(t, err)
	require.NotNil(t, report)

	require.Len(t, h.runs.created, 1)
	run := h.runs.created[0]
	assert.Equal(t, db.RunStatusInProgress, run.Status)
	assert.Equal(t, []string{"BTCUSDT"}, run.Symbols)
	assert.Equal(t, []int64{run.ID}, h.runs.completed)
	assert.Empty(t, h.runs.failed)

	require.Len(t, h.runs.finished, 1)
	cycle := h.runs.finished[0]
	assert.Equal(t, db.RunStatusCompleted, cycle.Status)
	assert.NotNil(t, cycle.CompletedAt)
	assert.NotEmpty(t, cycle.AnalystSignals)
	assert.NotEmpty(t, cycle.TradingDecisions)
	assert.Equal(t, 1, cycle.LLMCalls)

	// The decision round is tied back to the created run.
	require.NotNil(t, h.consensus.gotRunID)
	assert.Equal(t, run.ID, *h.consensus.gotRunID)
	assert.True(t, h.consensus.gotPrices["BTCUSDT"].Equal(decimal.RequireFromString("50000")))

	// The strongest directional signal travels as the execution hint.
	require.Contains(t, h.executor.gotHints, "BTCUSDT")
	assert.True(t, h.executor.gotHints["BTCUSDT"].Confidence.Equal(decimal.RequireFromString("0.8")))
}

func TestRunCycleFailureMarksRunFailed(t *testing.T) {
	h := newHarness(t, Options{})
	h.consensus.err = errors.New("database unavailable")

	_, err := h.fleet.runCycle(context.Background(), testCouncil())
	require.Error(t, err)

	require.Len(t, h.runs.created, 1)
	runID := h.runs.created[0].ID
	assert.Empty(t, h.runs.completed)
	assert.Contains(t, h.runs.failed[runID], "database unavailable")

	// The cycle record is also flushed as failed.
	require.Len(t, h.runs.finished, 1)
	assert.Equal(t, db.RunStatusFailed, h.runs.finished[0].Status)
}

func TestRunCycleSkipsWhenRunInProgress(t *testing.T) {
	h := newHarness(t, Options{})
	h.runs.inProgress = 1

	_, err := h.fleet.runCycle(context.Background(), testCouncil())
	require.ErrorIs(t, err, errRunInProgress)
	assert.Empty(t, h.runs.created, "no new run while one is in progress")
}

func TestRunOnceBacksOffOnFailure(t *testing.T) {
	h := newHarness(t, Options{ScheduleInterval: time.Hour, ErrorBackoff: 5 * time.Second})
	h.consensus.err = errors.New("venue down")

	wait := h.fleet.runOnce(context.Background(), 7, zerolog.Nop())
	assert.Equal(t, 5*time.Second, wait)
}

func TestRunOnceBroadcastsConsensusEvents(t *testing.T) {
	h := newHarness(t, Options{ScheduleInterval: time.Hour})

	wait := h.fleet.runOnce(context.Background(), 7, zerolog.Nop())
	assert.Equal(t, time.Hour, wait)

	require.Len(t, h.sink.events, 1)
	assert.Equal(t, []string{"council.7"}, h.sink.topics)
	assert.Equal(t, "consensus", h.sink.events[0].Type)
	assert.Equal(t, int64(7), h.sink.events[0].CouncilID)
}

func TestStopLetsInFlightCycleComplete(t *testing.T) {
	h := newHarness(t, Options{ScheduleInterval: time.Hour})
	h.debate.entered = make(chan struct{})
	h.debate.release = make(chan struct{})

	h.fleet.StartCouncil(context.Background(), testCouncil())

	select {
	case <-h.debate.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("cycle never started")
	}

	// Stop while the cycle is mid-flight, then let it proceed.
	h.fleet.StopCouncil(7)
	close(h.debate.release)
	h.fleet.Stop()

	assert.Equal(t, 1, h.runs.completedCount(), "in-flight cycle completed despite stop")
	assert.Equal(t, StateIdle, h.fleet.CouncilState(7), "loop drained and deregistered")
	assert.Empty(t, h.fleet.RunningCouncils())
}

func TestStartCouncilIsIdempotent(t *testing.T) {
	h := newHarness(t, Options{ScheduleInterval: time.Hour})
	h.debate.entered = make(chan struct{})
	h.debate.release = make(chan struct{})

	council := testCouncil()
	h.fleet.StartCouncil(context.Background(), council)
	h.fleet.StartCouncil(context.Background(), council)

	<-h.debate.entered
	assert.Equal(t, []int64{7}, h.fleet.RunningCouncils())

	close(h.debate.release)
	h.fleet.Stop()
	assert.Equal(t, 1, h.runs.completedCount(), "second start did not spawn a second loop")
}

func TestBestHintsPicksStrongestDirectionalSignal(t *testing.T) {
	hold := &agents.Signal{AgentKey: "a", Symbol: "BTCUSDT", Action: agents.ActionHold, Confidence: decimal.RequireFromString("0.99")}
	weak := buySignal("BTCUSDT", "0.6")
	strong := buySignal("BTCUSDT", "0.9")
	other := buySignal("ETHUSDT", "0.7")

	hints := bestHints([]*agents.Signal{hold, weak, strong, other})
	require.Len(t, hints, 2)
	assert.True(t, hints["BTCUSDT"].Confidence.Equal(decimal.RequireFromString("0.9")))
	assert.True(t, hints["ETHUSDT"].Confidence.Equal(decimal.RequireFromString("0.7")))
}
