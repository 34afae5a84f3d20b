// Package service records what the trading loop finds and does: the stores,
// the signal bus, the audit log and operator notifications.
package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/alanyoungcy/etherfuse-arb/internal/amount"
	"github.com/alanyoungcy/etherfuse-arb/internal/domain"
	"github.com/alanyoungcy/etherfuse-arb/internal/notify"
)

// Streams names the signal bus streams events are appended to.
type Streams struct {
	Opportunities string
	Executions    string
}

// ArbService persists and announces detected opportunities.
type ArbService struct {
	opps     domain.OpportunityStore
	bus      domain.SignalBus
	audit    domain.AuditStore
	notifier *notify.Notifier
	streams  Streams
	logger   *slog.Logger
}

// NewArbService creates an ArbService. bus and notifier may be nil.
func NewArbService(opps domain.OpportunityStore, bus domain.SignalBus, audit domain.AuditStore, notifier *notify.Notifier, streams Streams, logger *slog.Logger) *ArbService {
	return &ArbService{
		opps:     opps,
		bus:      bus,
		audit:    audit,
		notifier: notifier,
		streams:  streams,
		logger:   logger.With(slog.String("component", "arb_service")),
	}
}

type opportunityEvent struct {
	Opportunity domain.Opportunity `json:"opportunity"`
	Market      domain.MarketData  `json:"market"`
}

// RecordOpportunity stores opp, then appends it to the opportunity stream,
// audit-logs it and notifies. Only the store write is fatal.
func (s *ArbService) RecordOpportunity(ctx context.Context, opp domain.Opportunity, md domain.MarketData) error {
	if err := s.opps.Insert(ctx, opp); err != nil {
		return fmt.Errorf("arb_service: insert opportunity %s: %w", opp.ID, err)
	}

	if s.bus != nil && s.streams.Opportunities != "" {
		payload, err := json.Marshal(opportunityEvent{Opportunity: opp, Market: md})
		if err != nil {
			return fmt.Errorf("arb_service: marshal opportunity %s: %w", opp.ID, err)
		}
		if err := s.bus.StreamAppend(ctx, s.streams.Opportunities, payload); err != nil {
			s.logger.WarnContext(ctx, "stream append failed",
				slog.String("opportunity_id", opp.ID),
				slog.String("error", err.Error()),
			)
		}
	}

	if err := s.audit.Log(ctx, "opportunity.detected", map[string]any{
		"id":                opp.ID,
		"mint":              opp.Mint,
		"strategy":          opp.Strategy,
		"profit_usd":        opp.ProfitUSD.String(),
		"usdc_amount":       opp.USDCAmount,
		"stablebond_amount": opp.StablebondAmount,
		"etherfuse_price":   opp.EtherfusePrice.String(),
		"jupiter_price":     opp.JupiterPrice.String(),
	}); err != nil {
		s.logger.WarnContext(ctx, "audit log failed", slog.String("error", err.Error()))
	}

	msg := fmt.Sprintf("%s on %s\nprofit: $%s\nsize: %s USDC\netherfuse: %s jupiter: %s",
		opp.Strategy, opp.Mint,
		opp.ProfitUSD.StringFixed(2),
		usdcString(opp.USDCAmount),
		opp.EtherfusePrice.StringFixed(6), opp.JupiterPrice.StringFixed(6),
	)
	if err := s.notifier.Notify(ctx, notify.EventOpportunity, "Arbitrage opportunity", msg); err != nil {
		s.logger.WarnContext(ctx, "notify failed", slog.String("error", err.Error()))
	}
	return nil
}

// ListRecent returns the newest opportunities.
func (s *ArbService) ListRecent(ctx context.Context, limit int) ([]domain.Opportunity, error) {
	opps, err := s.opps.ListRecent(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("arb_service: list opportunities: %w", err)
	}
	return opps, nil
}

// ReportError audit-logs and notifies a cycle failure.
func (s *ArbService) ReportError(ctx context.Context, mint string, cause error) {
	if err := s.audit.Log(ctx, "cycle.error", map[string]any{"mint": mint, "error": cause.Error()}); err != nil {
		s.logger.WarnContext(ctx, "audit log failed", slog.String("error", err.Error()))
	}
	if err := s.notifier.Notify(ctx, notify.EventError, "Trading cycle failed", mint+"\n"+cause.Error()); err != nil {
		s.logger.WarnContext(ctx, "notify failed", slog.String("error", err.Error()))
	}
}

func usdcString(raw uint64) string {
	return amount.ToUIAmount(raw, domain.USDCDecimals).StringFixed(2)
}
