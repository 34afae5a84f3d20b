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

// BuyEtherfuseSellJupiter purchases the stablebond from the current
// Etherfuse issuance and sells it on Jupiter for USDC.
type BuyEtherfuseSellJupiter struct {
	quoter   Quoter
	protocol Protocol
	search   *searcher
}

// NewBuyEtherfuseSellJupiter creates the strategy. waiter throttles quote
// requests and may be nil.
func NewBuyEtherfuseSellJupiter(cfg Config, quoter Quoter, protocol Protocol, waiter domain.Waiter, logger *slog.Logger) *BuyEtherfuseSellJupiter {
	return &BuyEtherfuseSellJupiter{
		quoter:   quoter,
		protocol: protocol,
		search:   newSearcher(cfg, waiter, logger.With(slog.String("strategy", domain.StrategyBuyEtherfuseSellJupiter))),
	}
}

// Name implements Strategy.
func (s *BuyEtherfuseSellJupiter) Name() string { return domain.StrategyBuyEtherfuseSellJupiter }

// Evaluate implements Strategy.
func (s *BuyEtherfuseSellJupiter) Evaluate(ctx context.Context, md domain.MarketData, mint solana.PublicKey) (Result, error) {
	if md.USDCHoldings == 0 {
		return Result{}, fmt.Errorf("%s: usdc holdings required: %w", s.Name(), domain.ErrInsufficientBalance)
	}
	if md.PurchaseLiquidity == 0 {
		return Result{}, fmt.Errorf("%s: purchase liquidity required: %w", s.Name(), domain.ErrNoLiquidity)
	}
	if !md.EtherfusePrice.IsPositive() {
		return Result{}, errors.New(s.Name() + ": etherfuse price must be positive")
	}

	cfg := s.search.cfg
	maxUI := decimal.Min(
		amount.ToUIAmount(md.PurchaseLiquidity, domain.StablebondDecimals).Mul(md.EtherfusePrice),
		amount.ToUIAmount(md.USDCHoldings, domain.USDCDecimals),
		amount.ToUIAmount(cfg.MaxUSDCPerTrade, domain.USDCDecimals),
	)
	maxUSDC, err := amount.ToTokenAmount(maxUI, domain.USDCDecimals)
	if err != nil {
		return Result{}, fmt.Errorf("%s: max trade size: %w", s.Name(), err)
	}

	best, err := s.search.search(ctx, s.Name(), "sell", md, maxUSDC,
		func(ctx context.Context, _, stablebond uint64) (jupiter.PricedQuote, error) {
			return s.quoter.SellQuote(ctx, mint.String(), stablebond)
		},
		func(jupiterPrice, stablebondUI decimal.Decimal) decimal.Decimal {
			return amount.ProfitFromArb(jupiterPrice, md.EtherfusePrice, stablebondUI)
		},
	)
	if err != nil {
		return Result{}, fmt.Errorf("%s: %w", s.Name(), err)
	}

	purchase, err := s.protocol.PurchaseTx(ctx, best.usdc, mint)
	if err != nil {
		return Result{}, fmt.Errorf("%s: purchase tx: %w", s.Name(), err)
	}
	swap, err := s.quoter.SwapTx(ctx, best.quote.Quote)
	if err != nil {
		return Result{}, fmt.Errorf("%s: jupiter swap tx: %w", s.Name(), err)
	}

	return Result{
		Strategy:         s.Name(),
		Profit:           best.profit,
		USDCAmount:       best.usdc,
		StablebondAmount: best.stablebond,
		EtherfusePrice:   md.EtherfusePrice,
		JupiterPrice:     best.quote.Price,
		TipUSD:           md.TipUSD(cfg.DefaultTipUSD),
		Quote:            best.quote.Quote,
		Txs:              []*solana.Transaction{purchase, swap},
	}, nil
}

var _ Strategy = (*BuyEtherfuseSellJupiter)(nil)
