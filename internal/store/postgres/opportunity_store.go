package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/etherfuse-arb/internal/domain"
)

// OpportunityStore implements domain.OpportunityStore.
type OpportunityStore struct {
	pool *pgxpool.Pool
}

var _ domain.OpportunityStore = (*OpportunityStore)(nil)

// NewOpportunityStore creates an OpportunityStore on pool.
func NewOpportunityStore(pool *pgxpool.Pool) *OpportunityStore {
	return &OpportunityStore{pool: pool}
}

const opportunityCols = `id, mint, strategy, profit_usd, usdc_amount, stablebond_amount,
	etherfuse_price, jupiter_price, tip_usd, detected_at, executed, executed_at`

// Insert stores a newly detected opportunity.
func (s *OpportunityStore) Insert(ctx context.Context, opp domain.Opportunity) error {
	const query = `
		INSERT INTO opportunities (` + opportunityCols + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	_, err := s.pool.Exec(ctx, query,
		opp.ID, opp.Mint, opp.Strategy, opp.ProfitUSD,
		int64(opp.USDCAmount), int64(opp.StablebondAmount),
		opp.EtherfusePrice, opp.JupiterPrice, opp.TipUSD,
		opp.DetectedAt, opp.Executed, opp.ExecutedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert opportunity %s: %w", opp.ID, err)
	}
	return nil
}

// MarkExecuted flags the opportunity as landed.
func (s *OpportunityStore) MarkExecuted(ctx context.Context, id string) error {
	const query = `UPDATE opportunities SET executed = TRUE, executed_at = NOW() WHERE id = $1`

	tag, err := s.pool.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("postgres: mark opportunity executed %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres: mark opportunity executed %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

// ListRecent returns the newest opportunities first.
func (s *OpportunityStore) ListRecent(ctx context.Context, limit int) ([]domain.Opportunity, error) {
	query := `SELECT ` + opportunityCols + ` FROM opportunities ORDER BY detected_at DESC LIMIT $1`
	rows, err := s.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list recent opportunities: %w", err)
	}
	return collectOpportunities(rows)
}

// ListBefore returns every opportunity detected before the cutoff, oldest
// first.
func (s *OpportunityStore) ListBefore(ctx context.Context, before time.Time) ([]domain.Opportunity, error) {
	query := `SELECT ` + opportunityCols + ` FROM opportunities WHERE detected_at < $1 ORDER BY detected_at`
	rows, err := s.pool.Query(ctx, query, before)
	if err != nil {
		return nil, fmt.Errorf("postgres: list opportunities before %s: %w", before.Format(time.RFC3339), err)
	}
	return collectOpportunities(rows)
}

// DeleteBefore removes opportunities detected before the cutoff. Their
// executions go with them.
func (s *OpportunityStore) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM opportunities WHERE detected_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("postgres: delete opportunities before %s: %w", before.Format(time.RFC3339), err)
	}
	return tag.RowsAffected(), nil
}

func collectOpportunities(rows pgx.Rows) ([]domain.Opportunity, error) {
	defer rows.Close()

	var out []domain.Opportunity
	for rows.Next() {
		var (
			o          domain.Opportunity
			usdc, bond int64
		)
		if err := rows.Scan(
			&o.ID, &o.Mint, &o.Strategy, &o.ProfitUSD, &usdc, &bond,
			&o.EtherfusePrice, &o.JupiterPrice, &o.TipUSD,
			&o.DetectedAt, &o.Executed, &o.ExecutedAt,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan opportunity: %w", err)
		}
		o.USDCAmount = uint64(usdc)
		o.StablebondAmount = uint64(bond)
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: opportunity rows: %w", err)
	}
	return out, nil
}
