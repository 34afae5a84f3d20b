// Package strategy searches for profitable round trips between Jupiter and
// the Etherfuse stablebond program and drives the trading loop.
package strategy

import (
	"context"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/etherfuse-arb/internal/domain"
	"github.com/alanyoungcy/etherfuse-arb/internal/platform/jupiter"
)

// Strategy evaluates one direction of the arbitrage.
type Strategy interface {
	Name() string
	Evaluate(ctx context.Context, md domain.MarketData, mint solana.PublicKey) (Result, error)
}

// Result is the best trade a strategy found, with its signed transactions.
type Result struct {
	Strategy         string
	Profit           decimal.Decimal
	USDCAmount       uint64
	StablebondAmount uint64
	EtherfusePrice   decimal.Decimal
	JupiterPrice     decimal.Decimal
	TipUSD           decimal.Decimal
	Quote            jupiter.QuoteResponse
	Txs              []*solana.Transaction
}

// Opportunity converts r into its persisted form.
func (r Result) Opportunity(id string, mint solana.PublicKey, at time.Time) domain.Opportunity {
	return domain.Opportunity{
		ID:               id,
		Mint:             mint.String(),
		Strategy:         r.Strategy,
		ProfitUSD:        r.Profit,
		USDCAmount:       r.USDCAmount,
		StablebondAmount: r.StablebondAmount,
		EtherfusePrice:   r.EtherfusePrice,
		JupiterPrice:     r.JupiterPrice,
		TipUSD:           r.TipUSD,
		DetectedAt:       at,
	}
}

// Quoter prices and builds Jupiter swaps. *jupiter.Client satisfies it.
type Quoter interface {
	BuyQuote(ctx context.Context, mint string, usdcAmount uint64) (jupiter.PricedQuote, error)
	SellQuote(ctx context.Context, mint string, tokenAmount uint64) (jupiter.PricedQuote, error)
	SwapTx(ctx context.Context, quote jupiter.QuoteResponse) (*solana.Transaction, error)
}

// Protocol builds Etherfuse purchase and redemption transactions.
// *etherfuse.Client satisfies it.
type Protocol interface {
	PurchaseTx(ctx context.Context, amount uint64, mint solana.PublicKey) (*solana.Transaction, error)
	InstantRedemptionTx(ctx context.Context, amount uint64, mint solana.PublicKey) (*solana.Transaction, error)
}

// Config holds the trade size search parameters. Amounts are raw USDC.
type Config struct {
	MinUSDCAmount   uint64
	MaxUSDCPerTrade uint64
	MinProfitUSD    decimal.Decimal
	DefaultTipUSD   decimal.Decimal
	SamplePoints    int
	MinTradePercent float64
	MaxTradePercent float64
	SlippageBips    uint64
	MaxRetries      int
	RetryDelay      time.Duration
}

// DefaultConfig returns the production search parameters.
func DefaultConfig() Config {
	return Config{
		MinUSDCAmount:   1_000_000,
		MaxUSDCPerTrade: 1_000_000_000,
		MinProfitUSD:    decimal.NewFromFloat(domain.DefaultMinProfitUSD),
		DefaultTipUSD:   decimal.NewFromFloat(domain.DefaultJitoTipUSD),
		SamplePoints:    8,
		MinTradePercent: 0.01,
		MaxTradePercent: 1.0,
		SlippageBips:    20,
		MaxRetries:      3,
		RetryDelay:      60 * time.Second,
	}
}
