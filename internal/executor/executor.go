// Package executor lands arbitrage opportunities as Jito bundles and records
// the outcome.
package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/google/uuid"

	"github.com/alanyoungcy/etherfuse-arb/internal/domain"
	"github.com/alanyoungcy/etherfuse-arb/internal/metrics"
	"github.com/alanyoungcy/etherfuse-arb/internal/notify"
)

// Bundler submits transactions as an atomic bundle. *jito.Client satisfies it.
type Bundler interface {
	SendBundle(ctx context.Context, txs []*solana.Transaction) (string, error)
	WaitForBundle(ctx context.Context, bundleID string) (domain.BundleStatus, error)
}

// Executor sends each distinct trade at most once per dedup window and
// persists the execution.
type Executor struct {
	bundler  Bundler
	opps     domain.OpportunityStore
	execs    domain.ExecutionStore
	notifier *notify.Notifier
	dedup    *Dedup
	logger   *slog.Logger

	now   func() time.Time
	newID func() string
}

// NewExecutor creates an Executor. notifier may be nil.
func NewExecutor(bundler Bundler, opps domain.OpportunityStore, execs domain.ExecutionStore, notifier *notify.Notifier, logger *slog.Logger) *Executor {
	return &Executor{
		bundler:  bundler,
		opps:     opps,
		execs:    execs,
		notifier: notifier,
		dedup:    NewDedup(2 * time.Minute),
		logger:   logger.With(slog.String("component", "executor")),
		now:      time.Now,
		newID:    uuid.NewString,
	}
}

// Execute bundles txs for opp and waits for the block engine verdict. The
// returned Execution is populated whenever a submission was attempted; the
// error wraps domain.ErrBundleNotLanded when the bundle did not land.
func (e *Executor) Execute(ctx context.Context, opp domain.Opportunity, txs []*solana.Transaction) (domain.Execution, error) {
	e.dedup.Cleanup()
	if e.dedup.IsDuplicate(tradeKey(opp)) {
		return domain.Execution{}, fmt.Errorf("executor: opportunity %s repeats a recent trade: %w", opp.ID, domain.ErrDuplicate)
	}
	if len(txs) == 0 {
		return domain.Execution{}, errors.New("executor: no transactions to bundle")
	}

	exec := domain.Execution{
		ID:            e.newID(),
		OpportunityID: opp.ID,
		ProfitUSD:     opp.ProfitUSD,
		StartedAt:     e.now().UTC(),
	}

	bundleID, err := e.bundler.SendBundle(ctx, txs)
	if err != nil {
		exec.Status = domain.BundleFailed
		exec.Error = err.Error()
		e.finish(ctx, opp, &exec)
		return exec, fmt.Errorf("executor: send bundle: %w", err)
	}
	exec.BundleID = bundleID

	status, err := e.bundler.WaitForBundle(ctx, bundleID)
	if err != nil {
		exec.Status = domain.BundleUnknown
		exec.Error = err.Error()
		e.finish(ctx, opp, &exec)
		return exec, fmt.Errorf("executor: wait for bundle %s: %w", bundleID, err)
	}
	exec.Status = status
	e.finish(ctx, opp, &exec)

	if status != domain.BundleLanded {
		return exec, fmt.Errorf("executor: bundle %s %s: %w", bundleID, status, domain.ErrBundleNotLanded)
	}
	return exec, nil
}

// tradeKey identifies the trade an opportunity would make. Every cycle mints
// a new opportunity id, so the same trade found again carries the same key
// but a different id.
func tradeKey(opp domain.Opportunity) string {
	return fmt.Sprintf("%s|%s|%d|%d", opp.Strategy, opp.Mint, opp.USDCAmount, opp.StablebondAmount)
}

// finish persists exec, marks the opportunity and notifies. Storage errors
// are logged; the bundle outcome is already final.
func (e *Executor) finish(ctx context.Context, opp domain.Opportunity, exec *domain.Execution) {
	done := e.now().UTC()
	exec.CompletedAt = &done
	metrics.RecordBundle(string(exec.Status))

	logger := e.logger.With(
		slog.String("execution_id", exec.ID),
		slog.String("opportunity_id", opp.ID),
		slog.String("bundle_id", exec.BundleID),
		slog.String("status", string(exec.Status)),
	)

	if err := e.execs.Create(ctx, *exec); err != nil {
		logger.Error("record execution failed", slog.String("error", err.Error()))
	}

	event, title := notify.EventBundleFailed, "Bundle failed"
	if exec.Status == domain.BundleLanded {
		event, title = notify.EventBundleLanded, "Bundle landed"
		if err := e.opps.MarkExecuted(ctx, opp.ID); err != nil {
			logger.Error("mark opportunity executed failed", slog.String("error", err.Error()))
		}
		logger.Info("bundle landed", slog.String("profit_usd", opp.ProfitUSD.StringFixed(4)))
	} else {
		logger.Warn("bundle did not land", slog.String("error", exec.Error))
	}

	msg := fmt.Sprintf("%s on %s\nprofit: $%s\nstatus: %s", opp.Strategy, opp.Mint, opp.ProfitUSD.StringFixed(2), exec.Status)
	if exec.BundleID != "" {
		msg += "\nbundle: " + exec.BundleID
	}
	if exec.Error != "" {
		msg += "\nerror: " + exec.Error
	}
	if err := e.notifier.Notify(ctx, event, title, msg); err != nil {
		logger.Warn("notify failed", slog.String("error", err.Error()))
	}
}
