package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Token mint parameters shared by every component.
const (
	USDCMint            = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"
	USDCDecimals        = uint8(6)
	StablebondDecimals  = uint8(6)
	LamportsPerSOL      = uint64(1_000_000_000)
	DefaultSlippageBps  = 300
	DefaultJitoTipUSD   = 0.10
	DefaultMinProfitUSD = 1.0
)

// Strategy names. They are also the values accepted by strategy.enabled.
const (
	StrategyBuyJupiterSellEtherfuse = "buy_jupiter_sell_etherfuse"
	StrategyBuyEtherfuseSellJupiter = "buy_etherfuse_sell_jupiter"
)

// MarketData is a snapshot of every input the strategies need for one cycle.
type MarketData struct {
	Mint               string              `json:"mint"`
	EtherfusePrice     decimal.Decimal     `json:"etherfuse_price"`
	SellLiquidityUSDC  uint64              `json:"sell_liquidity_usdc"`
	PurchaseLiquidity  uint64              `json:"purchase_liquidity"`
	StablebondHoldings uint64              `json:"stablebond_holdings"`
	USDCHoldings       uint64              `json:"usdc_holdings"`
	JitoTipLamports    uint64              `json:"jito_tip_lamports"`
	JitoTipUSD         decimal.NullDecimal `json:"jito_tip_usd"`
	FetchedAt          time.Time           `json:"fetched_at"`
}

// TipUSD returns the Jito tip in USD, or fallback when it could not be priced.
func (m MarketData) TipUSD(fallback decimal.Decimal) decimal.Decimal {
	if m.JitoTipUSD.Valid {
		return m.JitoTipUSD.Decimal
	}
	return fallback
}

// Opportunity is the best round trip a cycle found.
type Opportunity struct {
	ID               string          `json:"id"`
	Mint             string          `json:"mint"`
	Strategy         string          `json:"strategy"`
	ProfitUSD        decimal.Decimal `json:"profit_usd"`
	USDCAmount       uint64          `json:"usdc_amount"`
	StablebondAmount uint64          `json:"stablebond_amount"`
	EtherfusePrice   decimal.Decimal `json:"etherfuse_price"`
	JupiterPrice     decimal.Decimal `json:"jupiter_price"`
	TipUSD           decimal.Decimal `json:"tip_usd"`
	DetectedAt       time.Time       `json:"detected_at"`
	Executed         bool            `json:"executed"`
	ExecutedAt       *time.Time      `json:"executed_at,omitempty"`
}
