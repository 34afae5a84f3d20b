package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/etherfuse-arb/internal/domain"
)

// OpportunityLister lists recent opportunities.
type OpportunityLister interface {
	ListRecent(ctx context.Context, limit int) ([]domain.Opportunity, error)
}

// ExecutionLister lists recent executions.
type ExecutionLister interface {
	ListRecent(ctx context.Context, limit int) ([]domain.Execution, error)
}

// HistoryHandler serves opportunity and execution history.
type HistoryHandler struct {
	opps   OpportunityLister
	execs  ExecutionLister
	logger *slog.Logger
}

// NewHistoryHandler creates a HistoryHandler.
func NewHistoryHandler(opps OpportunityLister, execs ExecutionLister, logger *slog.Logger) *HistoryHandler {
	return &HistoryHandler{opps: opps, execs: execs, logger: logger.With(slog.String("handler", "history"))}
}

// RecentOpportunities handles GET /api/opportunities/recent?limit=.
func (h *HistoryHandler) RecentOpportunities(w http.ResponseWriter, r *http.Request) {
	opps, err := h.opps.ListRecent(r.Context(), parseLimit(r))
	if err != nil {
		h.logger.ErrorContext(r.Context(), "list opportunities failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to list opportunities")
		return
	}
	if opps == nil {
		opps = []domain.Opportunity{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"opportunities": opps, "count": len(opps)})
}

// RecentExecutions handles GET /api/executions/recent?limit=.
func (h *HistoryHandler) RecentExecutions(w http.ResponseWriter, r *http.Request) {
	execs, err := h.execs.ListRecent(r.Context(), parseLimit(r))
	if err != nil {
		h.logger.ErrorContext(r.Context(), "list executions failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to list executions")
		return
	}
	if execs == nil {
		execs = []domain.Execution{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"executions": execs, "count": len(execs)})
}
