package service

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/etherfuse-arb/internal/domain"
	"github.com/alanyoungcy/etherfuse-arb/internal/notify"
	"github.com/alanyoungcy/etherfuse-arb/internal/store/memory"
)

type fakeBus struct {
	domain.SignalBus
	streams map[string][][]byte
	err     error
}

func (b *fakeBus) StreamAppend(_ context.Context, stream string, payload []byte) error {
	if b.err != nil {
		return b.err
	}
	if b.streams == nil {
		b.streams = map[string][][]byte{}
	}
	b.streams[stream] = append(b.streams[stream], payload)
	return nil
}

type capturingSender struct{ titles []string }

func (s *capturingSender) Send(_ context.Context, title, _ string) error {
	s.titles = append(s.titles, title)
	return nil
}

func (s *capturingSender) Name() string { return "capture" }

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func sampleOpportunity() domain.Opportunity {
	return domain.Opportunity{
		ID:             "opp-1",
		Mint:           "mint",
		Strategy:       domain.StrategyBuyJupiterSellEtherfuse,
		ProfitUSD:      decimal.RequireFromString("3.25"),
		USDCAmount:     250_000_000,
		EtherfusePrice: decimal.RequireFromString("0.051"),
		JupiterPrice:   decimal.RequireFromString("0.05"),
		DetectedAt:     time.Now().UTC(),
	}
}

func TestRecordOpportunity(t *testing.T) {
	ctx := context.Background()
	opps := memory.NewOpportunityStore()
	audit := memory.NewAuditStore()
	bus := &fakeBus{}
	sender := &capturingSender{}
	n := notify.NewNotifier([]notify.Sender{sender}, []string{notify.EventOpportunity}, discard())
	svc := NewArbService(opps, bus, audit, n, Streams{Opportunities: "opps"}, discard())

	require.NoError(t, svc.RecordOpportunity(ctx, sampleOpportunity(), domain.MarketData{Mint: "mint"}))

	stored, err := svc.ListRecent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, stored, 1)

	require.Len(t, bus.streams["opps"], 1)
	var evt opportunityEvent
	require.NoError(t, json.Unmarshal(bus.streams["opps"][0], &evt))
	assert.Equal(t, "opp-1", evt.Opportunity.ID)
	assert.Equal(t, "mint", evt.Market.Mint)

	entries, err := audit.List(ctx, domain.ListOpts{})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "opportunity.detected", entries[0].Event)
	assert.Equal(t, "3.25", entries[0].Detail["profit_usd"])

	assert.Equal(t, []string{"Arbitrage opportunity"}, sender.titles)
}

func TestRecordOpportunityStoreFailureIsFatal(t *testing.T) {
	ctx := context.Background()
	opps := memory.NewOpportunityStore()
	svc := NewArbService(opps, nil, memory.NewAuditStore(), nil, Streams{}, discard())

	require.NoError(t, svc.RecordOpportunity(ctx, sampleOpportunity(), domain.MarketData{}))
	err := svc.RecordOpportunity(ctx, sampleOpportunity(), domain.MarketData{})
	assert.ErrorIs(t, err, domain.ErrDuplicate)
}

func TestRecordOpportunityToleratesBusFailure(t *testing.T) {
	svc := NewArbService(memory.NewOpportunityStore(), &fakeBus{err: errors.New("redis down")}, memory.NewAuditStore(), nil, Streams{Opportunities: "opps"}, discard())
	assert.NoError(t, svc.RecordOpportunity(context.Background(), sampleOpportunity(), domain.MarketData{}))
}

func TestExecutionLog(t *testing.T) {
	ctx := context.Background()
	store := memory.NewExecutionStore()
	audit := memory.NewAuditStore()
	bus := &fakeBus{}
	log := NewExecutionLog(store, bus, "execs", audit, discard())

	exec := domain.Execution{ID: "e1", OpportunityID: "opp-1", BundleID: "b", Status: domain.BundleLanded, ProfitUSD: decimal.NewFromInt(2)}
	require.NoError(t, log.Create(ctx, exec))

	recent, err := log.ListRecent(ctx, 5)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Len(t, bus.streams["execs"], 1)

	entries, err := audit.List(ctx, domain.ListOpts{})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "bundle.Landed", entries[0].Event)
}

func TestReportError(t *testing.T) {
	audit := memory.NewAuditStore()
	sender := &capturingSender{}
	n := notify.NewNotifier([]notify.Sender{sender}, nil, discard())
	svc := NewArbService(memory.NewOpportunityStore(), nil, audit, n, Streams{}, discard())

	svc.ReportError(context.Background(), "mint", errors.New("rpc down"))

	entries, _ := audit.List(context.Background(), domain.ListOpts{})
	require.Len(t, entries, 1)
	assert.Equal(t, "cycle.error", entries[0].Event)
	assert.Equal(t, []string{"Trading cycle failed"}, sender.titles)
}
