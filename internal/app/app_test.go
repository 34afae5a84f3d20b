package app

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/etherfuse-arb/internal/cache/redis"
	"github.com/alanyoungcy/etherfuse-arb/internal/config"
	"github.com/alanyoungcy/etherfuse-arb/internal/domain"
	"github.com/alanyoungcy/etherfuse-arb/internal/ratelimit"
	"github.com/alanyoungcy/etherfuse-arb/internal/store/memory"
	"github.com/alanyoungcy/etherfuse-arb/internal/strategy"
)

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func defaults() *config.Config {
	cfg := config.Defaults()
	return &cfg
}

func writeKeypair(t *testing.T) (string, solana.PublicKey) {
	t.Helper()
	key := solana.NewWallet().PrivateKey
	ints := make([]int, len(key))
	for i, b := range key {
		ints[i] = int(b)
	}
	data, err := json.Marshal(ints)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "id.json")
	require.NoError(t, os.WriteFile(path, data, 0o600))
	return path, key.PublicKey()
}

func TestWireDefaults(t *testing.T) {
	deps, cleanup, err := Wire(context.Background(), defaults(), discard())
	require.NoError(t, err)
	defer cleanup()

	assert.Nil(t, deps.Chain)
	_, err = deps.Wallet()
	assert.ErrorIs(t, err, ErrNoWallet)

	assert.IsType(t, &memory.OpportunityStore{}, deps.Opportunities)
	assert.IsType(t, &memory.ExecutionStore{}, deps.Executions)
	assert.False(t, deps.Persistent)
	assert.Nil(t, deps.PriceCache)
	assert.Nil(t, deps.LockManager)
	assert.Nil(t, deps.SignalBus)
	assert.Nil(t, deps.Archiver)
	assert.IsType(t, &ratelimit.Local{}, deps.Quotes)
	assert.NotNil(t, deps.Etherfuse)
	assert.NotNil(t, deps.Notifier)
}

func TestWireWithWalletAndRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	path, pub := writeKeypair(t)

	cfg := defaults()
	cfg.Solana.KeypairPath = path
	cfg.Redis.Enabled = true
	cfg.Redis.Addr = mr.Addr()
	cfg.RateLimit.Backend = "redis"

	deps, cleanup, err := Wire(context.Background(), cfg, discard())
	require.NoError(t, err)
	defer cleanup()

	wallet, err := deps.Wallet()
	require.NoError(t, err)
	assert.Equal(t, pub, wallet.PublicKey())
	assert.NotNil(t, deps.LockManager)
	assert.NotNil(t, deps.SignalBus)
	assert.IsType(t, &ratelimit.Shared{}, deps.Quotes)
}

func TestWireBadKeypair(t *testing.T) {
	cfg := defaults()
	cfg.Solana.KeypairPath = filepath.Join(t.TempDir(), "missing.json")

	_, cleanup, err := Wire(context.Background(), cfg, discard())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "wire: keypair")
	cleanup()
}

func TestRunRequiresWallet(t *testing.T) {
	a := New(defaults(), discard())
	defer a.Close()

	err := a.Run(context.Background(), solana.NewWallet().PublicKey())
	assert.ErrorIs(t, err, ErrNoWallet)
}

func TestArchiveRequiresStorage(t *testing.T) {
	a := New(defaults(), discard())
	defer a.Close()

	err := a.Archive(context.Background())
	assert.ErrorContains(t, err, "s3.enabled")
}

func TestStrategyConfig(t *testing.T) {
	cfg := defaults()
	cfg.Strategy.MaxUSDCPerTrade = 250.5
	cfg.Strategy.MinProfitUSD = 2
	cfg.Strategy.SamplePoints = 4
	cfg.Jito.DefaultTipUSD = 0.25

	sc, err := strategyConfig(cfg)
	require.NoError(t, err)
	assert.Equal(t, uint64(250_500_000), sc.MaxUSDCPerTrade)
	assert.True(t, sc.MinProfitUSD.Equal(decimal.NewFromInt(2)))
	assert.True(t, sc.DefaultTipUSD.Equal(decimal.RequireFromString("0.25")))
	assert.Equal(t, 4, sc.SamplePoints)
	assert.Equal(t, uint64(20), sc.SlippageBips)
}

func TestStrategyConfigRejectsNegativeCap(t *testing.T) {
	cfg := defaults()
	cfg.Strategy.MaxUSDCPerTrade = -1

	_, err := strategyConfig(cfg)
	assert.Error(t, err)
}

func TestBuildStrategies(t *testing.T) {
	cfg := defaults()
	deps, cleanup, err := Wire(context.Background(), cfg, discard())
	require.NoError(t, err)
	defer cleanup()

	all, err := buildStrategies(cfg, deps, discard())
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, domain.StrategyBuyJupiterSellEtherfuse, all[0].Name())

	cfg.Strategy.Enabled = []string{domain.StrategyBuyEtherfuseSellJupiter}
	one, err := buildStrategies(cfg, deps, discard())
	require.NoError(t, err)
	require.Len(t, one, 1)
	assert.Equal(t, domain.StrategyBuyEtherfuseSellJupiter, one[0].Name())

	cfg.Strategy.Enabled = []string{"nope"}
	_, err = buildStrategies(cfg, deps, discard())
	assert.Error(t, err)
}

type chanTrigger chan struct{}

func (c chanTrigger) Trigger() { c <- struct{}{} }

func TestRelayTriggersFiltersByMint(t *testing.T) {
	mr := miniredis.RunT(t)
	client, err := redis.New(context.Background(), redis.ClientConfig{Addr: mr.Addr()})
	require.NoError(t, err)
	defer client.Close()
	bus := redis.NewSignalBus(client)

	a := New(defaults(), discard())
	mint := solana.NewWallet().PublicKey()
	trig := make(chanTrigger, 4)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.relayTriggers(ctx, bus, trig, mint) }()

	require.Eventually(t, func() bool {
		return mr.PubSubNumSub(redis.ChannelTrigger)[redis.ChannelTrigger] == 1
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, bus.Publish(ctx, redis.ChannelTrigger, []byte(solana.NewWallet().PublicKey().String())))
	require.NoError(t, bus.Publish(ctx, redis.ChannelTrigger, []byte(mint.String())))

	select {
	case <-trig:
	case <-time.After(2 * time.Second):
		t.Fatal("relay did not trigger")
	}
	assert.Empty(t, trig, "other mints are ignored")

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("relay did not stop")
	}
}

func TestChangeHandlerWithoutBusTriggersDirectly(t *testing.T) {
	a := New(defaults(), discard())
	trig := make(chanTrigger, 1)

	h := a.changeHandler(context.Background(), nil, trig, solana.NewWallet().PublicKey())
	h(solana.NewWallet().PublicKey())

	assert.Len(t, trig, 1)
}

func TestChangeHandlerPublishes(t *testing.T) {
	mr := miniredis.RunT(t)
	client, err := redis.New(context.Background(), redis.ClientConfig{Addr: mr.Addr()})
	require.NoError(t, err)
	defer client.Close()
	bus := redis.NewSignalBus(client)

	a := New(defaults(), discard())
	trig := make(chanTrigger, 1)

	h := a.changeHandler(context.Background(), bus, trig, solana.NewWallet().PublicKey())
	h(solana.NewWallet().PublicKey())

	assert.Empty(t, trig, "the relay triggers the engine when the bus is up")

	mr.Close()
	h(solana.NewWallet().PublicKey())
	assert.Len(t, trig, 1, "publish failures fall back to a local trigger")
}

type idleStatus struct{}

func (idleStatus) Status() strategy.Status { return strategy.Status{Mode: strategy.ModeMonitor} }

func TestServerLimitsWithoutRedis(t *testing.T) {
	deps, cleanup, err := Wire(context.Background(), defaults(), discard())
	require.NoError(t, err)
	defer cleanup()

	a := New(defaults(), discard())
	srv := a.newServer(deps, idleStatus{}, deps.Opportunities)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	status := func(path string) int {
		resp, err := http.Get(ts.URL + path)
		require.NoError(t, err)
		resp.Body.Close()
		return resp.StatusCode
	}

	admitted, limited := 0, false
	for i := 0; i < 2*apiRateLimit && !limited; i++ {
		switch code := status("/api/status"); code {
		case http.StatusOK:
			admitted++
		case http.StatusTooManyRequests:
			limited = true
		default:
			t.Fatalf("unexpected status %d", code)
		}
	}
	assert.True(t, limited)
	assert.GreaterOrEqual(t, admitted, apiRateLimit)
	assert.Equal(t, http.StatusOK, status("/api/health"))
}

func TestServerStreamRoutesNeedSignalBus(t *testing.T) {
	deps, cleanup, err := Wire(context.Background(), defaults(), discard())
	require.NoError(t, err)
	defer cleanup()

	a := New(defaults(), discard())
	ts := httptest.NewServer(a.newServer(deps, idleStatus{}, deps.Opportunities).Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/opportunities/stream")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	mr := miniredis.RunT(t)
	cfg := defaults()
	cfg.Redis.Enabled = true
	cfg.Redis.Addr = mr.Addr()
	withBus, cleanupBus, err := Wire(context.Background(), cfg, discard())
	require.NoError(t, err)
	defer cleanupBus()
	require.NoError(t, withBus.SignalBus.StreamAppend(context.Background(), redis.StreamOpportunities, []byte(`{"id":"opp-1"}`)))

	ts2 := httptest.NewServer(New(cfg, discard()).newServer(withBus, idleStatus{}, withBus.Opportunities).Handler())
	defer ts2.Close()

	resp, err = http.Get(ts2.URL + "/api/opportunities/stream")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var body struct {
		Count  int `json:"count"`
		Events []struct {
			Data map[string]any `json:"data"`
		} `json:"events"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Equal(t, 1, body.Count)
	assert.Equal(t, "opp-1", body.Events[0].Data["id"])
}
