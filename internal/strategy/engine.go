package strategy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/etherfuse-arb/internal/domain"
	"github.com/alanyoungcy/etherfuse-arb/internal/metrics"
)

// Engine modes.
const (
	ModeTrade   = "trade"
	ModeMonitor = "monitor"
)

// Cycle outcomes.
const (
	OutcomeOpportunity = "opportunity"
	OutcomeNone        = "none"
	OutcomeBelowMin    = "below_min"
	OutcomeSkipped     = "skipped"
	OutcomeError       = "error"
)

// Gatherer produces the market snapshot for a cycle.
type Gatherer interface {
	Gather(ctx context.Context, mint solana.PublicKey) (domain.MarketData, error)
}

// Recorder persists and announces a detected opportunity.
type Recorder interface {
	RecordOpportunity(ctx context.Context, opp domain.Opportunity, md domain.MarketData) error
}

// ErrorReporter is optionally implemented by a Recorder to hear about
// failed cycles.
type ErrorReporter interface {
	ReportError(ctx context.Context, mint string, err error)
}

// Executor lands an opportunity's transactions on chain.
type Executor interface {
	Execute(ctx context.Context, opp domain.Opportunity, txs []*solana.Transaction) (domain.Execution, error)
}

// EngineConfig controls the trading loop.
type EngineConfig struct {
	Mode          string
	Interval      time.Duration
	MinTriggerGap time.Duration
	LockTTL       time.Duration
}

// CycleReport summarises one trading cycle.
type CycleReport struct {
	StartedAt   time.Time           `json:"started_at"`
	Duration    time.Duration       `json:"duration"`
	Outcome     string              `json:"outcome"`
	Market      *domain.MarketData  `json:"market,omitempty"`
	Opportunity *domain.Opportunity `json:"opportunity,omitempty"`
	Execution   *domain.Execution   `json:"execution,omitempty"`
	Errors      map[string]string   `json:"errors,omitempty"`
}

// Status is the engine state exposed to the status API.
type Status struct {
	Mode       string       `json:"mode"`
	Mint       string       `json:"mint"`
	Strategies []string     `json:"strategies"`
	Cycles     int64        `json:"cycles"`
	LastCycle  *CycleReport `json:"last_cycle,omitempty"`
}

// Engine runs the gather, evaluate, record and execute loop for one mint.
type Engine struct {
	strategies []Strategy
	gatherer   Gatherer
	recorder   Recorder
	executor   Executor
	locks      domain.LockManager
	cfg        EngineConfig
	logger     *slog.Logger

	trigger chan struct{}
	now     func() time.Time
	newID   func() string

	mu     sync.Mutex
	mint   string
	cycles int64
	last   *CycleReport
}

// NewEngine creates an Engine. recorder, executor and locks may be nil;
// without an executor the engine only monitors.
func NewEngine(strategies []Strategy, gatherer Gatherer, recorder Recorder, executor Executor, locks domain.LockManager, cfg EngineConfig, logger *slog.Logger) *Engine {
	if cfg.Interval <= 0 {
		cfg.Interval = 2 * time.Minute
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = cfg.Interval
	}
	if cfg.Mode == "" {
		cfg.Mode = ModeTrade
	}
	return &Engine{
		strategies: strategies,
		gatherer:   gatherer,
		recorder:   recorder,
		executor:   executor,
		locks:      locks,
		cfg:        cfg,
		logger:     logger.With(slog.String("component", "strategy_engine")),
		trigger:    make(chan struct{}, 1),
		now:        time.Now,
		newID:      uuid.NewString,
	}
}

// Trigger requests an early cycle. It never blocks.
func (e *Engine) Trigger() {
	select {
	case e.trigger <- struct{}{}:
	default:
	}
}

// Status returns a snapshot of the engine state.
func (e *Engine) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	names := make([]string, 0, len(e.strategies))
	for _, s := range e.strategies {
		names = append(names, s.Name())
	}
	st := Status{Mode: e.cfg.Mode, Mint: e.mint, Strategies: names, Cycles: e.cycles}
	if e.last != nil {
		last := *e.last
		st.LastCycle = &last
	}
	return st
}

// Run executes a cycle immediately and then on every interval tick or early
// trigger until ctx ends.
func (e *Engine) Run(ctx context.Context, mint solana.PublicKey) error {
	e.mu.Lock()
	e.mint = mint.String()
	e.mu.Unlock()

	e.logger.Info("engine started",
		slog.String("mint", mint.String()),
		slog.String("mode", e.cfg.Mode),
		slog.Duration("interval", e.cfg.Interval),
	)
	defer e.logger.Info("engine stopped")

	ticker := time.NewTicker(e.cfg.Interval)
	defer ticker.Stop()

	lastRun := e.runAndLog(ctx, mint)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			lastRun = e.runAndLog(ctx, mint)
		case <-e.trigger:
			if e.now().Sub(lastRun) < e.cfg.MinTriggerGap {
				e.logger.Debug("trigger debounced")
				continue
			}
			lastRun = e.runAndLog(ctx, mint)
		}
	}
}

func (e *Engine) runAndLog(ctx context.Context, mint solana.PublicKey) time.Time {
	started := e.now()
	report, err := e.RunCycle(ctx, mint)
	if err != nil && !errors.Is(err, context.Canceled) {
		e.logger.Error("cycle failed", slog.String("error", err.Error()))
		if r, ok := e.recorder.(ErrorReporter); ok {
			r.ReportError(ctx, mint.String(), err)
		}
	}
	e.logger.Info("cycle complete",
		slog.String("outcome", report.Outcome),
		slog.Duration("duration", report.Duration),
	)
	return started
}

// RunCycle performs one gather, evaluate, record and execute pass.
func (e *Engine) RunCycle(ctx context.Context, mint solana.PublicKey) (report CycleReport, err error) {
	report = CycleReport{StartedAt: e.now().UTC()}
	defer func() {
		report.Duration = e.now().Sub(report.StartedAt)
		if err != nil && report.Outcome == "" {
			report.Outcome = OutcomeError
		}
		metrics.RecordCycle(report.Outcome, report.Duration)
		e.mu.Lock()
		e.cycles++
		r := report
		e.last = &r
		e.mu.Unlock()
	}()

	if e.locks != nil {
		unlock, err := e.locks.Acquire(ctx, "runner:"+mint.String(), e.cfg.LockTTL)
		if err != nil {
			if errors.Is(err, domain.ErrLockHeld) {
				e.logger.Info("another runner holds the mint, skipping cycle", slog.String("mint", mint.String()))
				report.Outcome = OutcomeSkipped
				return report, nil
			}
			return report, fmt.Errorf("engine: acquire runner lock: %w", err)
		}
		defer unlock()
	}

	md, err := e.gatherer.Gather(ctx, mint)
	if err != nil {
		return report, fmt.Errorf("engine: gather market data: %w", err)
	}
	report.Market = &md

	best, errs, belowMin := e.evaluate(ctx, md, mint)
	if len(errs) > 0 {
		report.Errors = errs
	}
	if ctx.Err() != nil {
		return report, ctx.Err()
	}
	if best == nil {
		report.Outcome = OutcomeNone
		if belowMin {
			report.Outcome = OutcomeBelowMin
		}
		return report, nil
	}

	opp := best.Opportunity(e.newID(), mint, report.StartedAt)
	report.Opportunity = &opp
	report.Outcome = OutcomeOpportunity
	e.logger.Info("opportunity found",
		slog.String("id", opp.ID),
		slog.String("strategy", opp.Strategy),
		slog.String("profit_usd", opp.ProfitUSD.StringFixed(4)),
		slog.Uint64("usdc_amount", opp.USDCAmount),
	)

	if e.recorder != nil {
		if err := e.recorder.RecordOpportunity(ctx, opp, md); err != nil {
			e.logger.Warn("record opportunity failed", slog.String("error", err.Error()))
		}
	}

	if e.cfg.Mode != ModeTrade || e.executor == nil {
		return report, nil
	}
	exec, err := e.executor.Execute(ctx, opp, best.Txs)
	if exec.ID != "" {
		report.Execution = &exec
	}
	if err != nil {
		return report, fmt.Errorf("engine: execute %s: %w", opp.ID, err)
	}
	return report, nil
}

// evaluate runs every strategy concurrently and returns the most profitable
// result. Failed strategies are reported by name; belowMin is set when any
// strategy found a trade under the profit threshold.
func (e *Engine) evaluate(ctx context.Context, md domain.MarketData, mint solana.PublicKey) (best *Result, failures map[string]string, belowMin bool) {
	results := make([]*Result, len(e.strategies))
	errs := make([]error, len(e.strategies))

	var g errgroup.Group
	for i, s := range e.strategies {
		g.Go(func() error {
			res, err := s.Evaluate(ctx, md, mint)
			if err != nil {
				errs[i] = err
				return nil
			}
			results[i] = &res
			return nil
		})
	}
	_ = g.Wait()

	failures = map[string]string{}
	for i, s := range e.strategies {
		name := s.Name()
		switch err := errs[i]; {
		case err == nil:
			metrics.RecordEvaluation(name, OutcomeOpportunity, results[i].Profit.InexactFloat64(), true)
			if best == nil || results[i].Profit.GreaterThan(best.Profit) {
				best = results[i]
			}
		case errors.Is(err, domain.ErrBelowMinProfit):
			metrics.RecordEvaluation(name, OutcomeBelowMin, 0, false)
			failures[name] = err.Error()
			belowMin = true
			e.logger.Info("strategy below minimum profit", slog.String("strategy", name), slog.String("detail", err.Error()))
		case errors.Is(err, domain.ErrNoOpportunity):
			metrics.RecordEvaluation(name, OutcomeNone, 0, false)
			failures[name] = err.Error()
			e.logger.Info("strategy found nothing", slog.String("strategy", name))
		default:
			metrics.RecordEvaluation(name, OutcomeError, 0, false)
			failures[name] = err.Error()
			e.logger.Warn("strategy failed", slog.String("strategy", name), slog.String("error", err.Error()))
		}
	}
	return best, failures, belowMin
}
