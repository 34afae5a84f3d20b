package executor

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/etherfuse-arb/internal/domain"
)

type mockBundler struct{ mock.Mock }

func (m *mockBundler) SendBundle(ctx context.Context, txs []*solana.Transaction) (string, error) {
	args := m.Called(ctx, txs)
	return args.String(0), args.Error(1)
}

func (m *mockBundler) WaitForBundle(ctx context.Context, id string) (domain.BundleStatus, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(domain.BundleStatus), args.Error(1)
}

type mockOpps struct {
	mock.Mock
	domain.OpportunityStore
}

func (m *mockOpps) MarkExecuted(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

type recordingExecs struct {
	domain.ExecutionStore
	created []domain.Execution
}

func (r *recordingExecs) Create(_ context.Context, exec domain.Execution) error {
	r.created = append(r.created, exec)
	return nil
}

func newTestExecutor(b Bundler, opps domain.OpportunityStore, execs domain.ExecutionStore) *Executor {
	e := NewExecutor(b, opps, execs, nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
	e.newID = func() string { return "exec-1" }
	return e
}

func opportunity() domain.Opportunity {
	return domain.Opportunity{
		ID:               "opp-1",
		Mint:             "mint",
		Strategy:         "s",
		ProfitUSD:        decimal.RequireFromString("2.5"),
		USDCAmount:       100_000_000,
		StablebondAmount: 4_000_000,
	}
}

func TestExecuteLanded(t *testing.T) {
	txs := []*solana.Transaction{{}, {}}
	b := &mockBundler{}
	b.On("SendBundle", mock.Anything, txs).Return("bundle-1", nil).Once()
	b.On("WaitForBundle", mock.Anything, "bundle-1").Return(domain.BundleLanded, nil).Once()
	opps := &mockOpps{}
	opps.On("MarkExecuted", mock.Anything, "opp-1").Return(nil).Once()
	execs := &recordingExecs{}

	exec, err := newTestExecutor(b, opps, execs).Execute(context.Background(), opportunity(), txs)
	require.NoError(t, err)

	assert.Equal(t, "exec-1", exec.ID)
	assert.Equal(t, "bundle-1", exec.BundleID)
	assert.Equal(t, domain.BundleLanded, exec.Status)
	assert.True(t, exec.ProfitUSD.Equal(decimal.RequireFromString("2.5")))
	require.NotNil(t, exec.CompletedAt)
	require.Len(t, execs.created, 1)
	assert.Equal(t, "opp-1", execs.created[0].OpportunityID)
	b.AssertExpectations(t)
	opps.AssertExpectations(t)
}

func TestExecuteNotLanded(t *testing.T) {
	b := &mockBundler{}
	b.On("SendBundle", mock.Anything, mock.Anything).Return("bundle-2", nil)
	b.On("WaitForBundle", mock.Anything, "bundle-2").Return(domain.BundleTimeout, nil)
	opps := &mockOpps{}
	execs := &recordingExecs{}

	exec, err := newTestExecutor(b, opps, execs).Execute(context.Background(), opportunity(), []*solana.Transaction{{}})
	assert.ErrorIs(t, err, domain.ErrBundleNotLanded)
	assert.Equal(t, domain.BundleTimeout, exec.Status)
	require.Len(t, execs.created, 1)
	opps.AssertNotCalled(t, "MarkExecuted", mock.Anything, mock.Anything)
}

func TestExecuteSendFailureIsRecorded(t *testing.T) {
	b := &mockBundler{}
	b.On("SendBundle", mock.Anything, mock.Anything).Return("", errors.New("engine unavailable"))
	execs := &recordingExecs{}

	exec, err := newTestExecutor(b, &mockOpps{}, execs).Execute(context.Background(), opportunity(), []*solana.Transaction{{}})
	assert.ErrorContains(t, err, "engine unavailable")
	assert.Equal(t, domain.BundleFailed, exec.Status)
	require.Len(t, execs.created, 1)
	assert.Equal(t, "engine unavailable", execs.created[0].Error)
	b.AssertNotCalled(t, "WaitForBundle", mock.Anything, mock.Anything)
}

func TestExecuteRejectsDuplicates(t *testing.T) {
	b := &mockBundler{}
	b.On("SendBundle", mock.Anything, mock.Anything).Return("bundle-3", nil).Once()
	b.On("WaitForBundle", mock.Anything, "bundle-3").Return(domain.BundleFailed, nil).Once()
	e := newTestExecutor(b, &mockOpps{}, &recordingExecs{})

	_, err := e.Execute(context.Background(), opportunity(), []*solana.Transaction{{}})
	require.ErrorIs(t, err, domain.ErrBundleNotLanded)

	again := opportunity()
	again.ID = "opp-2"
	_, err = e.Execute(context.Background(), again, []*solana.Transaction{{}})
	assert.ErrorIs(t, err, domain.ErrDuplicate, "a new id for the same trade is still a repeat")
	b.AssertNumberOfCalls(t, "SendBundle", 1)
}

func TestExecuteAllowsDifferentTrade(t *testing.T) {
	b := &mockBundler{}
	b.On("SendBundle", mock.Anything, mock.Anything).Return("bundle-4", nil).Twice()
	b.On("WaitForBundle", mock.Anything, "bundle-4").Return(domain.BundleFailed, nil).Twice()
	e := newTestExecutor(b, &mockOpps{}, &recordingExecs{})

	_, err := e.Execute(context.Background(), opportunity(), []*solana.Transaction{{}})
	require.ErrorIs(t, err, domain.ErrBundleNotLanded)

	bigger := opportunity()
	bigger.ID = "opp-3"
	bigger.USDCAmount *= 2
	_, err = e.Execute(context.Background(), bigger, []*solana.Transaction{{}})
	require.ErrorIs(t, err, domain.ErrBundleNotLanded)
	b.AssertNumberOfCalls(t, "SendBundle", 2)
}

func TestTradeKey(t *testing.T) {
	a := opportunity()
	b := opportunity()
	b.ID = "other"
	b.DetectedAt = time.Now()
	assert.Equal(t, tradeKey(a), tradeKey(b))

	b.Strategy = "other"
	assert.NotEqual(t, tradeKey(a), tradeKey(b))
}

func TestExecuteRequiresTransactions(t *testing.T) {
	_, err := newTestExecutor(&mockBundler{}, &mockOpps{}, &recordingExecs{}).Execute(context.Background(), opportunity(), nil)
	assert.ErrorContains(t, err, "no transactions")
}

func TestDedupExpires(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	d := NewDedup(time.Minute)
	d.now = func() time.Time { return now }

	assert.False(t, d.IsDuplicate("a"))
	assert.True(t, d.IsDuplicate("a"))

	now = now.Add(time.Minute)
	d.Cleanup()
	assert.Zero(t, d.Len())
	assert.False(t, d.IsDuplicate("a"))
}
