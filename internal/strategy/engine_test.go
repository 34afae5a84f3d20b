package strategy

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/alanyoungcy/etherfuse-arb/internal/domain"
)

type stubStrategy struct {
	name   string
	result Result
	err    error
}

func (s stubStrategy) Name() string { return s.name }

func (s stubStrategy) Evaluate(context.Context, domain.MarketData, solana.PublicKey) (Result, error) {
	if s.err != nil {
		return Result{}, s.err
	}
	r := s.result
	r.Strategy = s.name
	return r, nil
}

type stubGatherer struct {
	calls atomic.Int32
	err   error
}

func (g *stubGatherer) Gather(context.Context, solana.PublicKey) (domain.MarketData, error) {
	g.calls.Add(1)
	return domain.MarketData{EtherfusePrice: dec("0.05")}, g.err
}

type stubRecorder struct {
	mu   sync.Mutex
	opps []domain.Opportunity
}

func (r *stubRecorder) RecordOpportunity(_ context.Context, opp domain.Opportunity, _ domain.MarketData) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.opps = append(r.opps, opp)
	return nil
}

type stubExecutor struct {
	executed []domain.Opportunity
	txs      [][]*solana.Transaction
}

func (x *stubExecutor) Execute(_ context.Context, opp domain.Opportunity, txs []*solana.Transaction) (domain.Execution, error) {
	x.executed = append(x.executed, opp)
	x.txs = append(x.txs, txs)
	return domain.Execution{ID: "exec-1", OpportunityID: opp.ID, Status: domain.BundleLanded}, nil
}

type heldLocks struct{}

func (heldLocks) Acquire(context.Context, string, time.Duration) (func(), error) {
	return nil, fmt.Errorf("lock: %w", domain.ErrLockHeld)
}

func newEngine(strategies []Strategy, g Gatherer, r Recorder, x Executor, mode string) *Engine {
	e := NewEngine(strategies, g, r, x, nil, EngineConfig{Mode: mode, Interval: time.Hour}, discard())
	e.newID = func() string { return "opp-1" }
	return e
}

func TestRunCyclePicksMostProfitable(t *testing.T) {
	tx := &solana.Transaction{}
	strategies := []Strategy{
		stubStrategy{name: "a", result: Result{Profit: dec("1.5")}},
		stubStrategy{name: "b", result: Result{Profit: dec("3.2"), USDCAmount: 7, Txs: []*solana.Transaction{tx}}},
		stubStrategy{name: "c", err: errors.New("rpc down")},
	}
	rec := &stubRecorder{}
	exec := &stubExecutor{}
	e := newEngine(strategies, &stubGatherer{}, rec, exec, ModeTrade)
	mint := solana.NewWallet().PublicKey()

	report, err := e.RunCycle(context.Background(), mint)
	require.NoError(t, err)

	assert.Equal(t, OutcomeOpportunity, report.Outcome)
	require.NotNil(t, report.Opportunity)
	assert.Equal(t, "b", report.Opportunity.Strategy)
	assert.Equal(t, "opp-1", report.Opportunity.ID)
	assert.Equal(t, mint.String(), report.Opportunity.Mint)
	assert.Equal(t, "rpc down", report.Errors["c"])

	require.Len(t, rec.opps, 1)
	require.Len(t, exec.executed, 1)
	assert.Same(t, tx, exec.txs[0][0])
	require.NotNil(t, report.Execution)
	assert.Equal(t, domain.BundleLanded, report.Execution.Status)

	st := e.Status()
	assert.Equal(t, int64(1), st.Cycles)
	assert.Equal(t, []string{"a", "b", "c"}, st.Strategies)
	require.NotNil(t, st.LastCycle)
	assert.Equal(t, OutcomeOpportunity, st.LastCycle.Outcome)
}

func TestRunCycleMonitorModeDoesNotExecute(t *testing.T) {
	rec := &stubRecorder{}
	exec := &stubExecutor{}
	e := newEngine([]Strategy{stubStrategy{name: "a", result: Result{Profit: dec("2")}}}, &stubGatherer{}, rec, exec, ModeMonitor)

	report, err := e.RunCycle(context.Background(), solana.NewWallet().PublicKey())
	require.NoError(t, err)
	assert.Equal(t, OutcomeOpportunity, report.Outcome)
	assert.Len(t, rec.opps, 1)
	assert.Empty(t, exec.executed)
}

func TestRunCycleOutcomes(t *testing.T) {
	tests := []struct {
		name string
		errs []error
		want string
	}{
		{name: "nothing found", errs: []error{domain.ErrNoOpportunity, errors.New("boom")}, want: OutcomeNone},
		{name: "below minimum", errs: []error{fmt.Errorf("x: %w", domain.ErrBelowMinProfit), domain.ErrNoOpportunity}, want: OutcomeBelowMin},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var strategies []Strategy
			for i, err := range tt.errs {
				strategies = append(strategies, stubStrategy{name: fmt.Sprint(i), err: err})
			}
			rec := &stubRecorder{}
			report, err := newEngine(strategies, &stubGatherer{}, rec, &stubExecutor{}, ModeTrade).RunCycle(context.Background(), solana.NewWallet().PublicKey())
			require.NoError(t, err)
			assert.Equal(t, tt.want, report.Outcome)
			assert.Len(t, report.Errors, len(tt.errs))
			assert.Empty(t, rec.opps)
		})
	}
}

func TestRunCycleGatherError(t *testing.T) {
	e := newEngine(nil, &stubGatherer{err: errors.New("rpc")}, nil, nil, ModeTrade)
	report, err := e.RunCycle(context.Background(), solana.NewWallet().PublicKey())
	assert.ErrorContains(t, err, "gather market data")
	assert.Equal(t, OutcomeError, report.Outcome)
}

func TestRunCycleSkipsWhenLockHeld(t *testing.T) {
	g := &stubGatherer{}
	e := NewEngine(nil, g, nil, nil, heldLocks{}, EngineConfig{}, discard())
	report, err := e.RunCycle(context.Background(), solana.NewWallet().PublicKey())
	require.NoError(t, err)
	assert.Equal(t, OutcomeSkipped, report.Outcome)
	assert.Zero(t, g.calls.Load())
}

func TestRunHonoursTriggerAndStops(t *testing.T) {
	defer goleak.VerifyNone(t)

	g := &stubGatherer{}
	e := newEngine(nil, g, nil, nil, ModeMonitor)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- e.Run(ctx, solana.NewWallet().PublicKey()) }()

	require.Eventually(t, func() bool { return g.calls.Load() == 1 }, time.Second, 5*time.Millisecond)
	e.Trigger()
	require.Eventually(t, func() bool { return g.calls.Load() == 2 }, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("engine did not stop")
	}
}

func TestTriggerIsDebounced(t *testing.T) {
	defer goleak.VerifyNone(t)

	g := &stubGatherer{}
	e := NewEngine(nil, g, nil, nil, nil, EngineConfig{Mode: ModeMonitor, Interval: time.Hour, MinTriggerGap: time.Hour}, discard())
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- e.Run(ctx, solana.NewWallet().PublicKey()) }()

	require.Eventually(t, func() bool { return g.calls.Load() == 1 }, time.Second, 5*time.Millisecond)
	e.Trigger()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(1), g.calls.Load())

	cancel()
	<-done
}
