// Package memory provides in-process stores used when PostgreSQL is
// disabled. History lives only as long as the process.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/alanyoungcy/etherfuse-arb/internal/domain"
)

var (
	_ domain.OpportunityStore = (*OpportunityStore)(nil)
	_ domain.ExecutionStore   = (*ExecutionStore)(nil)
	_ domain.AuditStore       = (*AuditStore)(nil)
)

// OpportunityStore keeps opportunities in insertion order.
type OpportunityStore struct {
	mu   sync.RWMutex
	opps []domain.Opportunity
	now  func() time.Time
}

// NewOpportunityStore creates an empty OpportunityStore.
func NewOpportunityStore() *OpportunityStore {
	return &OpportunityStore{now: time.Now}
}

// Insert appends opp. Ids are unique.
func (s *OpportunityStore) Insert(_ context.Context, opp domain.Opportunity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, o := range s.opps {
		if o.ID == opp.ID {
			return fmt.Errorf("memory: insert opportunity %s: %w", opp.ID, domain.ErrDuplicate)
		}
	}
	s.opps = append(s.opps, opp)
	return nil
}

// MarkExecuted flags the opportunity as landed.
func (s *OpportunityStore) MarkExecuted(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.opps {
		if s.opps[i].ID == id {
			at := s.now().UTC()
			s.opps[i].Executed = true
			s.opps[i].ExecutedAt = &at
			return nil
		}
	}
	return fmt.Errorf("memory: mark opportunity executed %s: %w", id, domain.ErrNotFound)
}

// ListRecent returns up to limit opportunities, newest first.
func (s *OpportunityStore) ListRecent(_ context.Context, limit int) ([]domain.Opportunity, error) {
	s.mu.RLock()
	out := append([]domain.Opportunity(nil), s.opps...)
	s.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool { return out[i].DetectedAt.After(out[j].DetectedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// ListBefore returns opportunities detected before the cutoff, oldest first.
func (s *OpportunityStore) ListBefore(_ context.Context, before time.Time) ([]domain.Opportunity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Opportunity
	for _, o := range s.opps {
		if o.DetectedAt.Before(before) {
			out = append(out, o)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].DetectedAt.Before(out[j].DetectedAt) })
	return out, nil
}

// DeleteBefore drops opportunities detected before the cutoff.
func (s *OpportunityStore) DeleteBefore(_ context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.opps[:0]
	var n int64
	for _, o := range s.opps {
		if o.DetectedAt.Before(before) {
			n++
			continue
		}
		kept = append(kept, o)
	}
	s.opps = kept
	return n, nil
}

// ExecutionStore keeps executions keyed by id.
type ExecutionStore struct {
	mu    sync.RWMutex
	execs []domain.Execution
}

// NewExecutionStore creates an empty ExecutionStore.
func NewExecutionStore() *ExecutionStore {
	return &ExecutionStore{}
}

// Create stores exec, replacing an earlier record with the same id.
func (s *ExecutionStore) Create(_ context.Context, exec domain.Execution) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.execs {
		if s.execs[i].ID == exec.ID {
			s.execs[i] = exec
			return nil
		}
	}
	s.execs = append(s.execs, exec)
	return nil
}

// ListRecent returns up to limit executions, newest first.
func (s *ExecutionStore) ListRecent(_ context.Context, limit int) ([]domain.Execution, error) {
	s.mu.RLock()
	out := append([]domain.Execution(nil), s.execs...)
	s.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// ListBefore returns executions started before the cutoff, oldest first.
func (s *ExecutionStore) ListBefore(_ context.Context, before time.Time) ([]domain.Execution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Execution
	for _, e := range s.execs {
		if e.StartedAt.Before(before) {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].StartedAt.Before(out[j].StartedAt) })
	return out, nil
}

// DeleteBefore drops executions started before the cutoff.
func (s *ExecutionStore) DeleteBefore(_ context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.execs[:0]
	var n int64
	for _, e := range s.execs {
		if e.StartedAt.Before(before) {
			n++
			continue
		}
		kept = append(kept, e)
	}
	s.execs = kept
	return n, nil
}

// ListByOpportunities returns executions of the given opportunities, oldest
// first.
func (s *ExecutionStore) ListByOpportunities(_ context.Context, opportunityIDs []string) ([]domain.Execution, error) {
	ids := idSet(opportunityIDs)
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Execution
	for _, e := range s.execs {
		if ids[e.OpportunityID] {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].StartedAt.Before(out[j].StartedAt) })
	return out, nil
}

// DeleteByOpportunities drops executions of the given opportunities.
func (s *ExecutionStore) DeleteByOpportunities(_ context.Context, opportunityIDs []string) (int64, error) {
	ids := idSet(opportunityIDs)
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.execs[:0]
	var n int64
	for _, e := range s.execs {
		if ids[e.OpportunityID] {
			n++
			continue
		}
		kept = append(kept, e)
	}
	s.execs = kept
	return n, nil
}

func idSet(ids []string) map[string]bool {
	set := make(map[string]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set
}

// AuditStore is an append-only in-memory audit log.
type AuditStore struct {
	mu      sync.RWMutex
	entries []domain.AuditEntry
	now     func() time.Time
}

// NewAuditStore creates an empty AuditStore.
func NewAuditStore() *AuditStore {
	return &AuditStore{now: time.Now}
}

// Log appends an entry.
func (s *AuditStore) Log(_ context.Context, event string, detail map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, domain.AuditEntry{
		ID:        int64(len(s.entries) + 1),
		Event:     event,
		Detail:    detail,
		CreatedAt: s.now().UTC(),
	})
	return nil
}

// List returns entries newest first, filtered and paged by opts.
func (s *AuditStore) List(_ context.Context, opts domain.ListOpts) ([]domain.AuditEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.AuditEntry
	for i := len(s.entries) - 1; i >= 0; i-- {
		e := s.entries[i]
		if opts.Since != nil && e.CreatedAt.Before(*opts.Since) {
			continue
		}
		if opts.Until != nil && e.CreatedAt.After(*opts.Until) {
			continue
		}
		out = append(out, e)
	}
	if opts.Offset > 0 {
		if opts.Offset >= len(out) {
			return nil, nil
		}
		out = out[opts.Offset:]
	}
	if opts.Limit > 0 && len(out) > opts.Limit {
		out = out[:opts.Limit]
	}
	return out, nil
}
