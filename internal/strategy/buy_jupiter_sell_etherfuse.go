package strategy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/etherfuse-arb/internal/amount"
	"github.com/alanyoungcy/etherfuse-arb/internal/domain"
	"github.com/alanyoungcy/etherfuse-arb/internal/platform/jupiter"
)

// BuyJupiterSellEtherfuse buys the stablebond on Jupiter with USDC and
// redeems it instantly against the Etherfuse sell liquidity pool.
type BuyJupiterSellEtherfuse struct {
	quoter   Quoter
	protocol Protocol
	search   *searcher
}

// NewBuyJupiterSellEtherfuse creates the strategy. waiter throttles quote
// requests and may be nil.
func NewBuyJupiterSellEtherfuse(cfg Config, quoter Quoter, protocol Protocol, waiter domain.Waiter, logger *slog.Logger) *BuyJupiterSellEtherfuse {
	return &BuyJupiterSellEtherfuse{
		quoter:   quoter,
		protocol: protocol,
		search:   newSearcher(cfg, waiter, logger.With(slog.String("strategy", domain.StrategyBuyJupiterSellEtherfuse))),
	}
}

// Name implements Strategy.
func (s *BuyJupiterSellEtherfuse) Name() string { return domain.StrategyBuyJupiterSellEtherfuse }

// Evaluate implements Strategy.
func (s *BuyJupiterSellEtherfuse) Evaluate(ctx context.Context, md domain.MarketData, mint solana.PublicKey) (Result, error) {
	if md.USDCHoldings == 0 {
		return Result{}, fmt.Errorf("%s: usdc holdings required: %w", s.Name(), domain.ErrInsufficientBalance)
	}
	if md.SellLiquidityUSDC == 0 {
		return Result{}, fmt.Errorf("%s: sell liquidity required: %w", s.Name(), domain.ErrNoLiquidity)
	}
	if !md.EtherfusePrice.IsPositive() {
		return Result{}, errors.New(s.Name() + ": etherfuse price must be positive")
	}

	liquidity, err := amount.AdjustForSlippage(md.SellLiquidityUSDC, s.search.cfg.SlippageBips)
	if err != nil {
		return Result{}, fmt.Errorf("%s: adjust for slippage: %w", s.Name(), err)
	}
	maxUSDC := amount.MinUint64(liquidity, md.USDCHoldings, s.search.cfg.MaxUSDCPerTrade)

	best, err := s.search.search(ctx, s.Name(), "buy", md, maxUSDC,
		func(ctx context.Context, usdc, _ uint64) (jupiter.PricedQuote, error) {
			return s.quoter.BuyQuote(ctx, mint.String(), usdc)
		},
		func(jupiterPrice, stablebondUI decimal.Decimal) decimal.Decimal {
			return amount.ProfitFromArb(md.EtherfusePrice, jupiterPrice, stablebondUI)
		},
	)
	if err != nil {
		return Result{}, fmt.Errorf("%s: %w", s.Name(), err)
	}

	swap, err := s.quoter.SwapTx(ctx, best.quote.Quote)
	if err != nil {
		return Result{}, fmt.Errorf("%s: jupiter swap tx: %w", s.Name(), err)
	}
	redeem, err := s.protocol.InstantRedemptionTx(ctx, best.stablebond, mint)
	if err != nil {
		return Result{}, fmt.Errorf("%s: instant redemption tx: %w", s.Name(), err)
	}

	return Result{
		Strategy:         s.Name(),
		Profit:           best.profit,
		USDCAmount:       best.usdc,
		StablebondAmount: best.stablebond,
		EtherfusePrice:   md.EtherfusePrice,
		JupiterPrice:     best.quote.Price,
		TipUSD:           md.TipUSD(s.search.cfg.DefaultTipUSD),
		Quote:            best.quote.Quote,
		Txs:              []*solana.Transaction{swap, redeem},
	}, nil
}

var _ Strategy = (*BuyJupiterSellEtherfuse)(nil)
