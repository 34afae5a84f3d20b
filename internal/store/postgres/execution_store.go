package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/etherfuse-arb/internal/domain"
)

// ExecutionStore implements domain.ExecutionStore.
type ExecutionStore struct {
	pool *pgxpool.Pool
}

var _ domain.ExecutionStore = (*ExecutionStore)(nil)

// NewExecutionStore creates an ExecutionStore on pool.
func NewExecutionStore(pool *pgxpool.Pool) *ExecutionStore {
	return &ExecutionStore{pool: pool}
}

const executionCols = `id, opportunity_id, bundle_id, status, profit_usd, error, started_at, completed_at`

// Create stores an execution. Re-recording the same id updates its outcome.
func (s *ExecutionStore) Create(ctx context.Context, exec domain.Execution) error {
	const query = `
		INSERT INTO executions (` + executionCols + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			bundle_id    = EXCLUDED.bundle_id,
			status       = EXCLUDED.status,
			error        = EXCLUDED.error,
			completed_at = EXCLUDED.completed_at`

	_, err := s.pool.Exec(ctx, query,
		exec.ID, exec.OpportunityID, exec.BundleID, string(exec.Status),
		exec.ProfitUSD, exec.Error, exec.StartedAt, exec.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: create execution %s: %w", exec.ID, err)
	}
	return nil
}

// ListRecent returns the newest executions first.
func (s *ExecutionStore) ListRecent(ctx context.Context, limit int) ([]domain.Execution, error) {
	query := `SELECT ` + executionCols + ` FROM executions ORDER BY started_at DESC LIMIT $1`
	rows, err := s.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list recent executions: %w", err)
	}
	return collectExecutions(rows)
}

// ListBefore returns every execution started before the cutoff, oldest first.
func (s *ExecutionStore) ListBefore(ctx context.Context, before time.Time) ([]domain.Execution, error) {
	query := `SELECT ` + executionCols + ` FROM executions WHERE started_at < $1 ORDER BY started_at`
	rows, err := s.pool.Query(ctx, query, before)
	if err != nil {
		return nil, fmt.Errorf("postgres: list executions before %s: %w", before.Format(time.RFC3339), err)
	}
	return collectExecutions(rows)
}

// DeleteBefore removes executions started before the cutoff.
func (s *ExecutionStore) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM executions WHERE started_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("postgres: delete executions before %s: %w", before.Format(time.RFC3339), err)
	}
	return tag.RowsAffected(), nil
}

// ListByOpportunities returns every execution of the given opportunities,
// oldest first.
func (s *ExecutionStore) ListByOpportunities(ctx context.Context, opportunityIDs []string) ([]domain.Execution, error) {
	if len(opportunityIDs) == 0 {
		return nil, nil
	}
	query := `SELECT ` + executionCols + ` FROM executions WHERE opportunity_id = ANY($1) ORDER BY started_at`
	rows, err := s.pool.Query(ctx, query, opportunityIDs)
	if err != nil {
		return nil, fmt.Errorf("postgres: list executions by opportunity: %w", err)
	}
	return collectExecutions(rows)
}

// DeleteByOpportunities removes every execution of the given opportunities.
func (s *ExecutionStore) DeleteByOpportunities(ctx context.Context, opportunityIDs []string) (int64, error) {
	if len(opportunityIDs) == 0 {
		return 0, nil
	}
	tag, err := s.pool.Exec(ctx, `DELETE FROM executions WHERE opportunity_id = ANY($1)`, opportunityIDs)
	if err != nil {
		return 0, fmt.Errorf("postgres: delete executions by opportunity: %w", err)
	}
	return tag.RowsAffected(), nil
}

func collectExecutions(rows pgx.Rows) ([]domain.Execution, error) {
	defer rows.Close()

	var out []domain.Execution
	for rows.Next() {
		var (
			e      domain.Execution
			status string
		)
		if err := rows.Scan(
			&e.ID, &e.OpportunityID, &e.BundleID, &status,
			&e.ProfitUSD, &e.Error, &e.StartedAt, &e.CompletedAt,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan execution: %w", err)
		}
		e.Status = domain.BundleStatus(status)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: execution rows: %w", err)
	}
	return out, nil
}
