package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// OpportunityStore persists detected arbitrage opportunities.
type OpportunityStore interface {
	Insert(ctx context.Context, opp Opportunity) error
	MarkExecuted(ctx context.Context, id string) error
	ListRecent(ctx context.Context, limit int) ([]Opportunity, error)
	ListBefore(ctx context.Context, before time.Time) ([]Opportunity, error)
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
}

// ExecutionStore persists bundle submissions and their outcome.
type ExecutionStore interface {
	Create(ctx context.Context, exec Execution) error
	ListRecent(ctx context.Context, limit int) ([]Execution, error)
	ListBefore(ctx context.Context, before time.Time) ([]Execution, error)
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
	ListByOpportunities(ctx context.Context, opportunityIDs []string) ([]Execution, error)
	DeleteByOpportunities(ctx context.Context, opportunityIDs []string) (int64, error)
}

// AuditEntry is a single audit log row.
type AuditEntry struct {
	ID        int64          `json:"id"`
	Event     string         `json:"event"`
	Detail    map[string]any `json:"detail"`
	CreatedAt time.Time      `json:"created_at"`
}

// AuditStore persists an append-only audit log.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
}
