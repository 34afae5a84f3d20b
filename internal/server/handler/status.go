package handler

import (
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/etherfuse-arb/internal/strategy"
)

// StatusProvider exposes the trading loop state. *strategy.Engine
// satisfies it.
type StatusProvider interface {
	Status() strategy.Status
}

// StatusHandler serves the engine status.
type StatusHandler struct {
	engine StatusProvider
}

// NewStatusHandler creates a StatusHandler.
func NewStatusHandler(engine StatusProvider) *StatusHandler {
	return &StatusHandler{engine: engine}
}

type statusResponse struct {
	Mode           string                `json:"mode"`
	Mint           string                `json:"mint"`
	Strategies     []string              `json:"strategies"`
	Cycles         int64                 `json:"cycles"`
	LastCycleAt    *time.Time            `json:"last_cycle_at,omitempty"`
	LastOutcome    string                `json:"last_outcome,omitempty"`
	LastBestProfit *decimal.Decimal      `json:"last_best_profit_usd,omitempty"`
	LastCycle      *strategy.CycleReport `json:"last_cycle,omitempty"`
}

// Status handles GET /api/status.
func (h *StatusHandler) Status(w http.ResponseWriter, _ *http.Request) {
	st := h.engine.Status()
	resp := statusResponse{
		Mode:       st.Mode,
		Mint:       st.Mint,
		Strategies: st.Strategies,
		Cycles:     st.Cycles,
		LastCycle:  st.LastCycle,
	}
	if c := st.LastCycle; c != nil {
		at := c.StartedAt
		resp.LastCycleAt = &at
		resp.LastOutcome = c.Outcome
		if c.Opportunity != nil {
			p := c.Opportunity.ProfitUSD
			resp.LastBestProfit = &p
		}
	}
	writeJSON(w, http.StatusOK, resp)
}
