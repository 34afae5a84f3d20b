// Package marketdata assembles the per-cycle market snapshot the strategies
// evaluate.
package marketdata

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/etherfuse-arb/internal/domain"
	"github.com/alanyoungcy/etherfuse-arb/internal/metrics"
)

// Etherfuse supplies the protocol-side price and liquidity.
type Etherfuse interface {
	Price(ctx context.Context, mint solana.PublicKey) (decimal.Decimal, error)
	SellLiquidityUSDC(ctx context.Context, mint solana.PublicKey) (uint64, error)
	PurchaseLiquidity(ctx context.Context, mint solana.PublicKey) (uint64, error)
}

// Wallet supplies the bot's token balances.
type Wallet interface {
	USDCBalance(ctx context.Context) (uint64, error)
	StablebondBalance(ctx context.Context, mint solana.PublicKey) (uint64, error)
}

// Tipper supplies the current Jito tip floor.
type Tipper interface {
	TipFloor(ctx context.Context) (uint64, error)
}

// SOLPricer values lamports in USD.
type SOLPricer interface {
	LamportsToUSD(ctx context.Context, lamports uint64) (decimal.Decimal, error)
}

// Gatherer fetches every MarketData field concurrently.
type Gatherer struct {
	etherfuse Etherfuse
	wallet    Wallet
	tipper    Tipper
	pricer    SOLPricer
	cache     domain.PriceCache
	now       func() time.Time
	logger    *slog.Logger
}

// NewGatherer creates a Gatherer. pricer and cache may be nil.
func NewGatherer(ef Etherfuse, wallet Wallet, tipper Tipper, pricer SOLPricer, cache domain.PriceCache, logger *slog.Logger) *Gatherer {
	return &Gatherer{
		etherfuse: ef,
		wallet:    wallet,
		tipper:    tipper,
		pricer:    pricer,
		cache:     cache,
		now:       time.Now,
		logger:    logger.With(slog.String("component", "marketdata")),
	}
}

// PriceCacheKey is the cache key of the Etherfuse price of mint.
func PriceCacheKey(mint string) string {
	return "etherfuse:" + mint
}

// Gather returns a snapshot for mint. Any required field failing fails the
// whole snapshot; an unpriceable tip leaves JitoTipUSD null.
func (g *Gatherer) Gather(ctx context.Context, mint solana.PublicKey) (domain.MarketData, error) {
	md := domain.MarketData{Mint: mint.String()}
	eg, gctx := errgroup.WithContext(ctx)

	eg.Go(func() error {
		price, err := g.etherfuse.Price(gctx, mint)
		if err != nil {
			return fmt.Errorf("marketdata: etherfuse price: %w", err)
		}
		md.EtherfusePrice = price
		return nil
	})
	eg.Go(func() error {
		v, err := g.etherfuse.SellLiquidityUSDC(gctx, mint)
		if err != nil {
			return fmt.Errorf("marketdata: sell liquidity: %w", err)
		}
		md.SellLiquidityUSDC = v
		return nil
	})
	eg.Go(func() error {
		v, err := g.etherfuse.PurchaseLiquidity(gctx, mint)
		if err != nil {
			return fmt.Errorf("marketdata: purchase liquidity: %w", err)
		}
		md.PurchaseLiquidity = v
		return nil
	})
	eg.Go(func() error {
		v, err := g.wallet.StablebondBalance(gctx, mint)
		if err != nil {
			return fmt.Errorf("marketdata: stablebond holdings: %w", err)
		}
		md.StablebondHoldings = v
		return nil
	})
	eg.Go(func() error {
		v, err := g.wallet.USDCBalance(gctx)
		if err != nil {
			return fmt.Errorf("marketdata: usdc holdings: %w", err)
		}
		md.USDCHoldings = v
		return nil
	})
	eg.Go(func() error {
		tip, err := g.tipper.TipFloor(gctx)
		if err != nil {
			return fmt.Errorf("marketdata: jito tip: %w", err)
		}
		md.JitoTipLamports = tip
		if g.pricer == nil {
			return nil
		}
		usd, err := g.pricer.LamportsToUSD(gctx, tip)
		if err != nil {
			g.logger.Warn("tip not priced, using default", slog.String("error", err.Error()))
			return nil
		}
		md.JitoTipUSD = decimal.NewNullDecimal(usd)
		return nil
	})

	if err := eg.Wait(); err != nil {
		return domain.MarketData{}, err
	}
	md.FetchedAt = g.now().UTC()

	if g.cache != nil {
		if err := g.cache.SetPrice(ctx, PriceCacheKey(md.Mint), md.EtherfusePrice, md.FetchedAt); err != nil {
			g.logger.Warn("price cache write failed", slog.String("error", err.Error()))
		}
	}
	metrics.SetMarket(md.EtherfusePrice.InexactFloat64(), md.JitoTipLamports)

	g.logger.Info("market data",
		slog.String("mint", md.Mint),
		slog.String("etherfuse_price", md.EtherfusePrice.String()),
		slog.Uint64("sell_liquidity_usdc", md.SellLiquidityUSDC),
		slog.Uint64("purchase_liquidity", md.PurchaseLiquidity),
		slog.Uint64("stablebond_holdings", md.StablebondHoldings),
		slog.Uint64("usdc_holdings", md.USDCHoldings),
		slog.Uint64("jito_tip_lamports", md.JitoTipLamports),
	)
	return md, nil
}
