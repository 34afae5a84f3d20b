// Package coingecko fetches the SOL/USD spot price used to value Jito tips.
package coingecko

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/etherfuse-arb/internal/domain"
)

// SOLAssetID is the CoinGecko id of SOL and the cache key of its price.
const SOLAssetID = "solana"

// Config holds the API settings.
type Config struct {
	APIURL   string
	CacheTTL time.Duration
	Timeout  time.Duration
}

// Client is a CoinGecko simple-price client with an optional shared cache.
type Client struct {
	http   *resty.Client
	cache  domain.PriceCache
	ttl    time.Duration
	now    func() time.Time
	logger *slog.Logger
}

// NewClient creates a Client. cache may be nil.
func NewClient(cfg Config, cache domain.PriceCache, logger *slog.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		http:   resty.New().SetBaseURL(cfg.APIURL).SetTimeout(timeout),
		cache:  cache,
		ttl:    cfg.CacheTTL,
		now:    time.Now,
		logger: logger.With(slog.String("component", "coingecko")),
	}
}

// SOLPrice returns the USD price of one SOL.
func (c *Client) SOLPrice(ctx context.Context) (decimal.Decimal, error) {
	if c.cache != nil && c.ttl > 0 {
		price, ts, err := c.cache.GetPrice(ctx, SOLAssetID)
		switch {
		case err == nil && c.now().Sub(ts) < c.ttl:
			return price, nil
		case err != nil && !errors.Is(err, domain.ErrNotFound):
			c.logger.Warn("price cache read failed", slog.String("error", err.Error()))
		}
	}

	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{"ids": SOLAssetID, "vs_currencies": "usd"}).
		Get("/simple/price")
	if err != nil {
		return decimal.Zero, fmt.Errorf("coingecko: simple price: %w", err)
	}
	if resp.IsError() {
		return decimal.Zero, fmt.Errorf("coingecko: simple price: status %d: %s", resp.StatusCode(), resp.String())
	}

	var body map[string]map[string]decimal.Decimal
	if err := json.Unmarshal(resp.Body(), &body); err != nil {
		return decimal.Zero, fmt.Errorf("coingecko: decode simple price: %w", err)
	}
	price, ok := body[SOLAssetID]["usd"]
	if !ok || !price.IsPositive() {
		return decimal.Zero, errors.New("coingecko: SOL price missing from response")
	}

	if c.cache != nil && c.ttl > 0 {
		if err := c.cache.SetPrice(ctx, SOLAssetID, price, c.now()); err != nil {
			c.logger.Warn("price cache write failed", slog.String("error", err.Error()))
		}
	}
	return price, nil
}

// LamportsToUSD values lamports at the current SOL price.
func (c *Client) LamportsToUSD(ctx context.Context, lamports uint64) (decimal.Decimal, error) {
	price, err := c.SOLPrice(ctx)
	if err != nil {
		return decimal.Zero, err
	}
	sol := decimal.NewFromBigInt(new(big.Int).SetUint64(lamports), -9)
	return sol.Mul(price), nil
}
