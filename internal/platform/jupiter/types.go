package jupiter

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// QuoteRequest describes a swap to price.
type QuoteRequest struct {
	InputMint   string
	OutputMint  string
	Amount      uint64
	SlippageBps int
}

// QuoteResponse is the /quote payload. It is sent back verbatim to /swap.
type QuoteResponse struct {
	InputMint            string          `json:"inputMint"`
	InAmount             uint64          `json:"inAmount,string"`
	OutputMint           string          `json:"outputMint"`
	OutAmount            uint64          `json:"outAmount,string"`
	OtherAmountThreshold uint64          `json:"otherAmountThreshold,string"`
	SwapMode             string          `json:"swapMode"`
	SlippageBps          int             `json:"slippageBps"`
	PriceImpactPct       decimal.Decimal `json:"priceImpactPct"`
	RoutePlan            []RoutePlan     `json:"routePlan"`
	ContextSlot          uint64          `json:"contextSlot"`
	TimeTaken            float64         `json:"timeTaken"`
}

// RoutePlan is one leg of a quoted route.
type RoutePlan struct {
	Percent  int      `json:"percent"`
	SwapInfo SwapInfo `json:"swapInfo"`
}

// SwapInfo identifies the AMM used by a route leg.
type SwapInfo struct {
	AmmKey     string `json:"ammKey"`
	Label      string `json:"label"`
	InputMint  string `json:"inputMint"`
	OutputMint string `json:"outputMint"`
	InAmount   string `json:"inAmount"`
	OutAmount  string `json:"outAmount"`
	FeeAmount  string `json:"feeAmount"`
	FeeMint    string `json:"feeMint"`
}

// PricedQuote pairs a quote with its USD-per-token price.
type PricedQuote struct {
	Price decimal.Decimal
	Quote QuoteResponse
}

type swapRequest struct {
	UserPublicKey           string        `json:"userPublicKey"`
	WrapAndUnwrapSOL        bool          `json:"wrapAndUnwrapSol"`
	AsLegacyTransaction     bool          `json:"asLegacyTransaction"`
	DynamicComputeUnitLimit bool          `json:"dynamicComputeUnitLimit"`
	QuoteResponse           QuoteResponse `json:"quoteResponse"`
	ContextSlot             uint64        `json:"contextSlot"`
	TimeTaken               float64       `json:"timeTaken"`
}

type swapResponse struct {
	SwapTransaction      string `json:"swapTransaction"`
	LastValidBlockHeight uint64 `json:"lastValidBlockHeight"`
}

// APIError is an error payload returned by the Jupiter API.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("jupiter api error (status %d): %s", e.StatusCode, e.Message)
}
