package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/etherfuse-arb/internal/domain"
)

func TestOpportunityStore(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	s := NewOpportunityStore()
	s.now = func() time.Time { return base.Add(time.Hour) }

	for i, id := range []string{"a", "b", "c"} {
		require.NoError(t, s.Insert(ctx, domain.Opportunity{ID: id, DetectedAt: base.Add(time.Duration(i) * time.Minute)}))
	}
	assert.ErrorIs(t, s.Insert(ctx, domain.Opportunity{ID: "a"}), domain.ErrDuplicate)

	recent, err := s.ListRecent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "c", recent[0].ID)
	assert.Equal(t, "b", recent[1].ID)

	require.NoError(t, s.MarkExecuted(ctx, "b"))
	assert.ErrorIs(t, s.MarkExecuted(ctx, "zzz"), domain.ErrNotFound)

	old, err := s.ListBefore(ctx, base.Add(2*time.Minute))
	require.NoError(t, err)
	require.Len(t, old, 2)
	assert.Equal(t, "a", old[0].ID)
	assert.True(t, old[1].Executed)
	require.NotNil(t, old[1].ExecutedAt)

	n, err := s.DeleteBefore(ctx, base.Add(2*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	left, _ := s.ListRecent(ctx, 0)
	require.Len(t, left, 1)
	assert.Equal(t, "c", left[0].ID)
}

func TestExecutionStoreReplacesById(t *testing.T) {
	ctx := context.Background()
	s := NewExecutionStore()
	now := time.Now()

	require.NoError(t, s.Create(ctx, domain.Execution{ID: "x", Status: domain.BundlePending, StartedAt: now}))
	require.NoError(t, s.Create(ctx, domain.Execution{ID: "x", Status: domain.BundleLanded, StartedAt: now}))
	require.NoError(t, s.Create(ctx, domain.Execution{ID: "y", StartedAt: now.Add(-time.Hour)}))

	recent, err := s.ListRecent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, domain.BundleLanded, recent[0].Status)

	old, err := s.ListBefore(ctx, now.Add(-time.Minute))
	require.NoError(t, err)
	require.Len(t, old, 1)
	assert.Equal(t, "y", old[0].ID)

	n, err := s.DeleteBefore(ctx, now.Add(-time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestAuditStore(t *testing.T) {
	ctx := context.Background()
	s := NewAuditStore()
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	tick := 0
	s.now = func() time.Time { tick++; return base.Add(time.Duration(tick) * time.Minute) }

	for _, ev := range []string{"one", "two", "three"} {
		require.NoError(t, s.Log(ctx, ev, map[string]any{"k": ev}))
	}

	all, err := s.List(ctx, domain.ListOpts{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "three", all[0].Event)

	since := base.Add(2 * time.Minute)
	page, err := s.List(ctx, domain.ListOpts{Since: &since, Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "two", page[0].Event)
}

func TestExecutionStoreByOpportunities(t *testing.T) {
	ctx := context.Background()
	s := NewExecutionStore()
	now := time.Now()

	require.NoError(t, s.Create(ctx, domain.Execution{ID: "x2", OpportunityID: "a", StartedAt: now}))
	require.NoError(t, s.Create(ctx, domain.Execution{ID: "x1", OpportunityID: "a", StartedAt: now.Add(-time.Minute)}))
	require.NoError(t, s.Create(ctx, domain.Execution{ID: "y", OpportunityID: "b", StartedAt: now}))

	got, err := s.ListByOpportunities(ctx, []string{"a", "missing"})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "x1", got[0].ID)

	none, err := s.ListByOpportunities(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, none)

	n, err := s.DeleteByOpportunities(ctx, []string{"a"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	left, _ := s.ListRecent(ctx, 0)
	require.Len(t, left, 1)
	assert.Equal(t, "y", left[0].ID)
}
