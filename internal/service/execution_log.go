package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/alanyoungcy/etherfuse-arb/internal/domain"
)

// ExecutionLog is a domain.ExecutionStore that also streams and audits
// every recorded execution.
type ExecutionLog struct {
	domain.ExecutionStore
	bus    domain.SignalBus
	stream string
	audit  domain.AuditStore
	logger *slog.Logger
}

var _ domain.ExecutionStore = (*ExecutionLog)(nil)

// NewExecutionLog wraps store. bus may be nil.
func NewExecutionLog(store domain.ExecutionStore, bus domain.SignalBus, stream string, audit domain.AuditStore, logger *slog.Logger) *ExecutionLog {
	return &ExecutionLog{
		ExecutionStore: store,
		bus:            bus,
		stream:         stream,
		audit:          audit,
		logger:         logger.With(slog.String("component", "execution_log")),
	}
}

// Create persists exec and then publishes it.
func (l *ExecutionLog) Create(ctx context.Context, exec domain.Execution) error {
	if err := l.ExecutionStore.Create(ctx, exec); err != nil {
		return fmt.Errorf("execution_log: create %s: %w", exec.ID, err)
	}

	if l.bus != nil && l.stream != "" {
		payload, err := json.Marshal(exec)
		if err != nil {
			return fmt.Errorf("execution_log: marshal %s: %w", exec.ID, err)
		}
		if err := l.bus.StreamAppend(ctx, l.stream, payload); err != nil {
			l.logger.WarnContext(ctx, "stream append failed", slog.String("execution_id", exec.ID), slog.String("error", err.Error()))
		}
	}

	detail := map[string]any{
		"id":             exec.ID,
		"opportunity_id": exec.OpportunityID,
		"bundle_id":      exec.BundleID,
		"status":         string(exec.Status),
		"profit_usd":     exec.ProfitUSD.String(),
	}
	if exec.Error != "" {
		detail["error"] = exec.Error
	}
	if err := l.audit.Log(ctx, "bundle."+string(exec.Status), detail); err != nil {
		l.logger.WarnContext(ctx, "audit log failed", slog.String("error", err.Error()))
	}
	return nil
}
