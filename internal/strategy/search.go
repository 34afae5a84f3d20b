package strategy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/etherfuse-arb/internal/amount"
	"github.com/alanyoungcy/etherfuse-arb/internal/domain"
	"github.com/alanyoungcy/etherfuse-arb/internal/metrics"
	"github.com/alanyoungcy/etherfuse-arb/internal/platform/jupiter"
)

// quoteFunc prices one trade size on Jupiter.
type quoteFunc func(ctx context.Context, usdc, stablebond uint64) (jupiter.PricedQuote, error)

// profitFunc returns the gross profit of trading stablebondUI tokens when
// Jupiter quotes jupiterPrice.
type profitFunc func(jupiterPrice, stablebondUI decimal.Decimal) decimal.Decimal

type candidate struct {
	usdc       uint64
	stablebond uint64
	profit     decimal.Decimal
	quote      jupiter.PricedQuote
}

// searcher samples trade sizes between the configured percentages of a
// maximum and keeps the most profitable one.
type searcher struct {
	cfg    Config
	waiter domain.Waiter
	logger *slog.Logger
	sleep  func(ctx context.Context, d time.Duration) error
}

func newSearcher(cfg Config, waiter domain.Waiter, logger *slog.Logger) *searcher {
	return &searcher{cfg: cfg, waiter: waiter, logger: logger, sleep: sleepCtx}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (s *searcher) search(
	ctx context.Context,
	name, side string,
	md domain.MarketData,
	maxUSDC uint64,
	quote quoteFunc,
	profitOf profitFunc,
) (candidate, error) {
	tip := md.TipUSD(s.cfg.DefaultTipUSD)
	best := candidate{profit: decimal.Zero}
	found := false

	for _, pct := range amount.TradeSizePercents(s.cfg.SamplePoints, s.cfg.MinTradePercent, s.cfg.MaxTradePercent) {
		usdc := amount.Scale(maxUSDC, pct)
		if usdc < s.cfg.MinUSDCAmount {
			continue
		}
		stablebond, err := amount.ToTokenAmount(
			amount.ToUIAmount(usdc, domain.USDCDecimals).Div(md.EtherfusePrice),
			domain.StablebondDecimals,
		)
		if err != nil || stablebond == 0 {
			continue
		}

		q, ok, err := s.quoteWithRetry(ctx, side, usdc, stablebond, quote)
		if err != nil {
			return candidate{}, err
		}
		if !ok {
			continue
		}

		profit := profitOf(q.Price, amount.ToUIAmount(stablebond, domain.StablebondDecimals)).Sub(tip)
		s.logger.Debug("trade size evaluated",
			slog.String("strategy", name),
			slog.Float64("trade_percent", pct),
			slog.String("usdc", amount.ToUIAmount(usdc, domain.USDCDecimals).String()),
			slog.String("stablebond", amount.ToUIAmount(stablebond, domain.StablebondDecimals).String()),
			slog.String("jupiter_price", q.Price.String()),
			slog.String("etherfuse_price", md.EtherfusePrice.String()),
			slog.String("tip_usd", tip.String()),
			slog.String("profit", profit.String()),
		)

		if profit.GreaterThan(best.profit) {
			best = candidate{usdc: usdc, stablebond: stablebond, profit: profit, quote: q}
			found = true
		}
	}

	if !found {
		return candidate{}, domain.ErrNoOpportunity
	}
	if best.profit.LessThan(s.cfg.MinProfitUSD) {
		return candidate{}, fmt.Errorf("%w: %s < %s USD", domain.ErrBelowMinProfit, best.profit.StringFixed(4), s.cfg.MinProfitUSD)
	}
	s.logger.Info("best trade",
		slog.String("strategy", name),
		slog.String("profit", best.profit.StringFixed(4)),
		slog.Uint64("usdc", best.usdc),
		slog.Uint64("stablebond", best.stablebond),
	)
	return best, nil
}

// quoteWithRetry waits on the rate limiter before every attempt. ok is false
// when every attempt failed; err is only set when ctx ends.
func (s *searcher) quoteWithRetry(ctx context.Context, side string, usdc, stablebond uint64, quote quoteFunc) (jupiter.PricedQuote, bool, error) {
	attempts := max(s.cfg.MaxRetries, 1)
	for attempt := 1; ; attempt++ {
		if s.waiter != nil {
			if err := s.waiter.Wait(ctx); err != nil {
				return jupiter.PricedQuote{}, false, err
			}
		}
		q, err := quote(ctx, usdc, stablebond)
		metrics.RecordQuote(side, err)
		if err == nil {
			return q, true, nil
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return jupiter.PricedQuote{}, false, err
		}
		if attempt >= attempts {
			s.logger.Warn("quote failed, skipping size",
				slog.String("side", side),
				slog.Int("attempts", attempt),
				slog.Uint64("usdc", usdc),
				slog.String("error", err.Error()),
			)
			return jupiter.PricedQuote{}, false, nil
		}
		s.logger.Warn("quote failed, retrying",
			slog.String("side", side),
			slog.Int("attempt", attempt),
			slog.String("error", err.Error()),
		)
		if err := s.sleep(ctx, s.cfg.RetryDelay); err != nil {
			return jupiter.PricedQuote{}, false, err
		}
	}
}
