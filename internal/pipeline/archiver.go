// Package pipeline runs the background jobs that move history out of the
// hot store.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/etherfuse-arb/internal/domain"
	"github.com/alanyoungcy/etherfuse-arb/internal/notify"
)

// Archiver moves opportunities and executions older than the retention
// window to cold storage.
type Archiver struct {
	blobArchiver  domain.Archiver
	retentionDays int
	notifier      *notify.Notifier
	now           func() time.Time
	logger        *slog.Logger
}

// Result counts the records moved by one run.
type Result struct {
	Cutoff        time.Time
	Executions    int64
	Opportunities int64
}

// NewArchiver creates an Archiver. notifier may be nil.
func NewArchiver(blobArchiver domain.Archiver, retentionDays int, notifier *notify.Notifier, logger *slog.Logger) *Archiver {
	return &Archiver{
		blobArchiver:  blobArchiver,
		retentionDays: retentionDays,
		notifier:      notifier,
		now:           time.Now,
		logger:        logger.With(slog.String("component", "archiver")),
	}
}

// Run archives once. Executions go first: deleting an opportunity cascades
// to its executions.
func (a *Archiver) Run(ctx context.Context) (Result, error) {
	res := Result{Cutoff: a.now().UTC().AddDate(0, 0, -a.retentionDays)}
	a.logger.InfoContext(ctx, "starting archive run",
		slog.Time("cutoff", res.Cutoff),
		slog.Int("retention_days", a.retentionDays),
	)

	var err error
	res.Executions, err = a.blobArchiver.ArchiveExecutions(ctx, res.Cutoff)
	if err != nil {
		return res, fmt.Errorf("pipeline: archive executions before %s: %w", res.Cutoff.Format(time.RFC3339), err)
	}
	res.Opportunities, err = a.blobArchiver.ArchiveOpportunities(ctx, res.Cutoff)
	if err != nil {
		return res, fmt.Errorf("pipeline: archive opportunities before %s: %w", res.Cutoff.Format(time.RFC3339), err)
	}

	a.logger.InfoContext(ctx, "archive run complete",
		slog.Int64("executions_archived", res.Executions),
		slog.Int64("opportunities_archived", res.Opportunities),
	)
	if res.Executions+res.Opportunities > 0 {
		msg := fmt.Sprintf("Archived %d opportunities and %d executions older than %s",
			res.Opportunities, res.Executions, res.Cutoff.Format(time.DateOnly))
		if err := a.notifier.Notify(ctx, notify.EventArchive, "History archived", msg); err != nil {
			a.logger.WarnContext(ctx, "notify failed", slog.String("error", err.Error()))
		}
	}
	return res, nil
}

// RunEvery archives immediately and then every interval until ctx ends.
// Failed runs are logged and retried on the next tick.
func (a *Archiver) RunEvery(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if _, err := a.Run(ctx); err != nil && ctx.Err() == nil {
			a.logger.ErrorContext(ctx, "archive run failed", slog.String("error", err.Error()))
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
