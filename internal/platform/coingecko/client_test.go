package coingecko

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/etherfuse-arb/internal/domain"
)

type memCache struct {
	prices map[string]decimal.Decimal
	times  map[string]time.Time
}

func newMemCache() *memCache {
	return &memCache{prices: map[string]decimal.Decimal{}, times: map[string]time.Time{}}
}

func (m *memCache) SetPrice(_ context.Context, id string, p decimal.Decimal, ts time.Time) error {
	m.prices[id], m.times[id] = p, ts
	return nil
}

func (m *memCache) GetPrice(_ context.Context, id string) (decimal.Decimal, time.Time, error) {
	p, ok := m.prices[id]
	if !ok {
		return decimal.Zero, time.Time{}, domain.ErrNotFound
	}
	return p, m.times[id], nil
}

func priceServer(t *testing.T, body string, hits *int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(hits, 1)
		assert.Equal(t, "/simple/price", r.URL.Path)
		assert.Equal(t, "solana", r.URL.Query().Get("ids"))
		assert.Equal(t, "usd", r.URL.Query().Get("vs_currencies"))
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestSOLPrice(t *testing.T) {
	var hits int32
	srv := priceServer(t, `{"solana":{"usd":142.5}}`, &hits)
	c := NewClient(Config{APIURL: srv.URL}, nil, discard())

	price, err := c.SOLPrice(context.Background())
	require.NoError(t, err)
	assert.True(t, price.Equal(decimal.RequireFromString("142.5")))
}

func TestSOLPriceMissing(t *testing.T) {
	var hits int32
	srv := priceServer(t, `{}`, &hits)
	_, err := NewClient(Config{APIURL: srv.URL}, nil, discard()).SOLPrice(context.Background())
	assert.ErrorContains(t, err, "missing")
}

func TestSOLPriceUsesCache(t *testing.T) {
	var hits int32
	srv := priceServer(t, `{"solana":{"usd":100}}`, &hits)
	cache := newMemCache()
	c := NewClient(Config{APIURL: srv.URL, CacheTTL: time.Minute}, cache, discard())
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	_, err := c.SOLPrice(context.Background())
	require.NoError(t, err)
	_, err = c.SOLPrice(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))

	now = now.Add(2 * time.Minute)
	_, err = c.SOLPrice(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&hits), "stale entries are refreshed")
}

func TestLamportsToUSD(t *testing.T) {
	var hits int32
	srv := priceServer(t, `{"solana":{"usd":200}}`, &hits)
	usd, err := NewClient(Config{APIURL: srv.URL}, nil, discard()).LamportsToUSD(context.Background(), 500_000)
	require.NoError(t, err)
	assert.True(t, usd.Equal(decimal.RequireFromString("0.1")), usd.String())
}
