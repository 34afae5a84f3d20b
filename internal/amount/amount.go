// Package amount converts between raw token units and UI amounts and holds
// the checked arithmetic used when sizing trades.
package amount

import (
	"fmt"
	"math"
	"math/big"
	"math/bits"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/etherfuse-arb/internal/domain"
)

const bipsDenominator = 10_000

var maxUint64 = decimal.NewFromBigInt(new(big.Int).SetUint64(math.MaxUint64), 0)

// FromUint64 returns raw as a decimal without going through float64.
func FromUint64(raw uint64) decimal.Decimal {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(raw), 0)
}

// ToUIAmount converts a raw token amount into its UI representation.
func ToUIAmount(raw uint64, decimals uint8) decimal.Decimal {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(raw), -int32(decimals))
}

// ToTokenAmount converts a UI amount to raw token units, truncating any
// precision beyond decimals.
func ToTokenAmount(ui decimal.Decimal, decimals uint8) (uint64, error) {
	raw := ui.Shift(int32(decimals)).Floor()
	if raw.IsNegative() || raw.GreaterThan(maxUint64) {
		return 0, fmt.Errorf("amount: %s with %d decimals: %w", ui.String(), decimals, domain.ErrMathOverflow)
	}
	return raw.BigInt().Uint64(), nil
}

// ProfitFromArb is the USD gained by buying tokenAmount at buyPrice and
// selling it at sellPrice.
func ProfitFromArb(sellPrice, buyPrice, tokenAmount decimal.Decimal) decimal.Decimal {
	return tokenAmount.Mul(sellPrice).Sub(tokenAmount.Mul(buyPrice))
}

// AdjustForSlippage removes bips basis points from amount.
func AdjustForSlippage(amount, bips uint64) (uint64, error) {
	hi, lo := bits.Mul64(amount, bips)
	if hi != 0 {
		return 0, fmt.Errorf("amount: slippage on %d: %w", amount, domain.ErrMathOverflow)
	}
	return amount - lo/bipsDenominator, nil
}

// TradeSizePercents returns points fractions between min and max. Points are
// spread on a t^1.5 curve so small sizes are sampled more densely.
func TradeSizePercents(points int, min, max float64) []float64 {
	if points < 2 {
		return []float64{max}
	}
	out := make([]float64, points)
	last := float64(points - 1)
	for i := range out {
		t := float64(i) / last
		out[i] = min + (max-min)*math.Pow(t, 1.5)
	}
	return out
}

// Scale returns floor(raw * pct).
func Scale(raw uint64, pct float64) uint64 {
	if pct <= 0 {
		return 0
	}
	v := FromUint64(raw).Mul(decimal.NewFromFloat(pct)).Floor().BigInt()
	if !v.IsUint64() {
		return raw
	}
	return v.Uint64()
}

// MinUint64 returns the smallest of values, or 0 when values is empty.
func MinUint64(values ...uint64) uint64 {
	if len(values) == 0 {
		return 0
	}
	m := values[0]
	for _, v := range values[1:] {
		if v < m {
			m = v
		}
	}
	return m
}
