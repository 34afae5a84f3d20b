package strategy

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/etherfuse-arb/internal/domain"
	"github.com/alanyoungcy/etherfuse-arb/internal/platform/jupiter"
)

type mockQuoter struct{ mock.Mock }

func (m *mockQuoter) BuyQuote(ctx context.Context, mint string, usdc uint64) (jupiter.PricedQuote, error) {
	args := m.Called(ctx, mint, usdc)
	return args.Get(0).(jupiter.PricedQuote), args.Error(1)
}

func (m *mockQuoter) SellQuote(ctx context.Context, mint string, amt uint64) (jupiter.PricedQuote, error) {
	args := m.Called(ctx, mint, amt)
	return args.Get(0).(jupiter.PricedQuote), args.Error(1)
}

func (m *mockQuoter) SwapTx(ctx context.Context, q jupiter.QuoteResponse) (*solana.Transaction, error) {
	args := m.Called(ctx, q)
	tx, _ := args.Get(0).(*solana.Transaction)
	return tx, args.Error(1)
}

type mockProtocol struct{ mock.Mock }

func (m *mockProtocol) PurchaseTx(ctx context.Context, amt uint64, mint solana.PublicKey) (*solana.Transaction, error) {
	args := m.Called(ctx, amt, mint)
	tx, _ := args.Get(0).(*solana.Transaction)
	return tx, args.Error(1)
}

func (m *mockProtocol) InstantRedemptionTx(ctx context.Context, amt uint64, mint solana.PublicKey) (*solana.Transaction, error) {
	args := m.Called(ctx, amt, mint)
	tx, _ := args.Get(0).(*solana.Transaction)
	return tx, args.Error(1)
}

type countingWaiter struct{ n atomic.Int32 }

func (w *countingWaiter) Wait(context.Context) error {
	w.n.Add(1)
	return nil
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func priced(price string) jupiter.PricedQuote {
	return jupiter.PricedQuote{Price: dec(price), Quote: jupiter.QuoteResponse{SwapMode: "ExactIn"}}
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.RetryDelay = time.Millisecond
	return cfg
}

func marketData() domain.MarketData {
	return domain.MarketData{
		EtherfusePrice:    dec("0.05"),
		SellLiquidityUSDC: 1_000_000_000,
		PurchaseLiquidity: 1_000_000_000,
		USDCHoldings:      100_000_000,
		JitoTipUSD:        decimal.NewNullDecimal(dec("0.1")),
	}
}

func TestBuyJupiterSellEtherfuseFindsBestSize(t *testing.T) {
	mint := solana.NewWallet().PublicKey()
	q := &mockQuoter{}
	p := &mockProtocol{}
	swap, redeem := &solana.Transaction{}, &solana.Transaction{}

	q.On("BuyQuote", mock.Anything, mint.String(), mock.AnythingOfType("uint64")).Return(priced("0.045"), nil)
	q.On("SwapTx", mock.Anything, mock.Anything).Return(swap, nil).Once()
	p.On("InstantRedemptionTx", mock.Anything, uint64(2_000_000_000), mint).Return(redeem, nil).Once()

	w := &countingWaiter{}
	s := NewBuyJupiterSellEtherfuse(testConfig(), q, p, w, discard())
	res, err := s.Evaluate(context.Background(), marketData(), mint)
	require.NoError(t, err)

	assert.Equal(t, domain.StrategyBuyJupiterSellEtherfuse, res.Strategy)
	assert.Equal(t, uint64(100_000_000), res.USDCAmount, "capped by usdc holdings")
	assert.Equal(t, uint64(2_000_000_000), res.StablebondAmount)
	assert.True(t, res.Profit.Equal(dec("9.9")), res.Profit.String())
	assert.True(t, res.JupiterPrice.Equal(dec("0.045")))
	require.Len(t, res.Txs, 2)
	assert.Same(t, swap, res.Txs[0])
	assert.Same(t, redeem, res.Txs[1])
	assert.Equal(t, int32(8), w.n.Load(), "one wait per quote")
	q.AssertNumberOfCalls(t, "BuyQuote", 8)
	p.AssertExpectations(t)
}

func TestBuyJupiterSellEtherfuseCapsAtLiquidity(t *testing.T) {
	mint := solana.NewWallet().PublicKey()
	q := &mockQuoter{}
	p := &mockProtocol{}
	md := marketData()
	md.SellLiquidityUSDC = 10_000_000

	q.On("BuyQuote", mock.Anything, mint.String(), mock.AnythingOfType("uint64")).Return(priced("0.04"), nil)
	q.On("SwapTx", mock.Anything, mock.Anything).Return(&solana.Transaction{}, nil)
	p.On("InstantRedemptionTx", mock.Anything, mock.Anything, mint).Return(&solana.Transaction{}, nil)

	res, err := NewBuyJupiterSellEtherfuse(testConfig(), q, p, nil, discard()).Evaluate(context.Background(), md, mint)
	require.NoError(t, err)
	assert.Equal(t, uint64(9_980_000), res.USDCAmount, "sell liquidity less the 20 bips haircut")
}

func TestBuyJupiterSellEtherfuseBelowMinimum(t *testing.T) {
	mint := solana.NewWallet().PublicKey()
	q := &mockQuoter{}
	q.On("BuyQuote", mock.Anything, mint.String(), mock.Anything).Return(priced("0.0499"), nil)

	_, err := NewBuyJupiterSellEtherfuse(testConfig(), q, &mockProtocol{}, nil, discard()).Evaluate(context.Background(), marketData(), mint)
	assert.ErrorIs(t, err, domain.ErrBelowMinProfit)
	q.AssertNotCalled(t, "SwapTx", mock.Anything, mock.Anything)
}

func TestBuyJupiterSellEtherfuseNoOpportunity(t *testing.T) {
	mint := solana.NewWallet().PublicKey()
	q := &mockQuoter{}
	q.On("BuyQuote", mock.Anything, mint.String(), mock.Anything).Return(priced("0.06"), nil)

	_, err := NewBuyJupiterSellEtherfuse(testConfig(), q, &mockProtocol{}, nil, discard()).Evaluate(context.Background(), marketData(), mint)
	assert.ErrorIs(t, err, domain.ErrNoOpportunity)
}

func TestBuyJupiterSellEtherfusePreconditions(t *testing.T) {
	mint := solana.NewWallet().PublicKey()
	s := NewBuyJupiterSellEtherfuse(testConfig(), &mockQuoter{}, &mockProtocol{}, nil, discard())

	md := marketData()
	md.USDCHoldings = 0
	_, err := s.Evaluate(context.Background(), md, mint)
	assert.ErrorIs(t, err, domain.ErrInsufficientBalance)

	md = marketData()
	md.SellLiquidityUSDC = 0
	_, err = s.Evaluate(context.Background(), md, mint)
	assert.ErrorIs(t, err, domain.ErrNoLiquidity)
}

func TestQuoteRetries(t *testing.T) {
	mint := solana.NewWallet().PublicKey()
	q := &mockQuoter{}
	q.On("BuyQuote", mock.Anything, mint.String(), mock.Anything).Return(jupiter.PricedQuote{}, errors.New("429")).Twice()
	q.On("BuyQuote", mock.Anything, mint.String(), mock.Anything).Return(priced("0.06"), nil)

	w := &countingWaiter{}
	s := NewBuyJupiterSellEtherfuse(testConfig(), q, &mockProtocol{}, w, discard())
	var sleeps int
	s.search.sleep = func(context.Context, time.Duration) error {
		sleeps++
		return nil
	}

	_, err := s.Evaluate(context.Background(), marketData(), mint)
	assert.ErrorIs(t, err, domain.ErrNoOpportunity)
	assert.Equal(t, 2, sleeps)
	assert.Equal(t, int32(10), w.n.Load())
	q.AssertNumberOfCalls(t, "BuyQuote", 10)
}

func TestQuoteFailuresSkipSizes(t *testing.T) {
	mint := solana.NewWallet().PublicKey()
	q := &mockQuoter{}
	q.On("BuyQuote", mock.Anything, mint.String(), mock.Anything).Return(jupiter.PricedQuote{}, errors.New("down"))

	s := NewBuyJupiterSellEtherfuse(testConfig(), q, &mockProtocol{}, nil, discard())
	s.search.sleep = func(context.Context, time.Duration) error { return nil }

	_, err := s.Evaluate(context.Background(), marketData(), mint)
	assert.ErrorIs(t, err, domain.ErrNoOpportunity)
	q.AssertNumberOfCalls(t, "BuyQuote", 8*3)
}

func TestTxBuildErrorIsReturned(t *testing.T) {
	mint := solana.NewWallet().PublicKey()
	q := &mockQuoter{}
	p := &mockProtocol{}
	q.On("BuyQuote", mock.Anything, mint.String(), mock.Anything).Return(priced("0.045"), nil)
	q.On("SwapTx", mock.Anything, mock.Anything).Return(&solana.Transaction{}, nil)
	p.On("InstantRedemptionTx", mock.Anything, mock.Anything, mint).Return(nil, errors.New("rpc down"))

	_, err := NewBuyJupiterSellEtherfuse(testConfig(), q, p, nil, discard()).Evaluate(context.Background(), marketData(), mint)
	assert.ErrorContains(t, err, "instant redemption tx: rpc down")
}

func TestBuyEtherfuseSellJupiter(t *testing.T) {
	mint := solana.NewWallet().PublicKey()
	q := &mockQuoter{}
	p := &mockProtocol{}
	purchase, swap := &solana.Transaction{}, &solana.Transaction{}

	q.On("SellQuote", mock.Anything, mint.String(), mock.AnythingOfType("uint64")).Return(priced("0.055"), nil)
	q.On("SwapTx", mock.Anything, mock.Anything).Return(swap, nil).Once()
	p.On("PurchaseTx", mock.Anything, uint64(50_000_000), mint).Return(purchase, nil).Once()

	md := marketData()
	md.PurchaseLiquidity = 1_000_000_000 // 1000 tokens at 0.05 = 50 USDC

	res, err := NewBuyEtherfuseSellJupiter(testConfig(), q, p, nil, discard()).Evaluate(context.Background(), md, mint)
	require.NoError(t, err)
	assert.Equal(t, domain.StrategyBuyEtherfuseSellJupiter, res.Strategy)
	assert.Equal(t, uint64(50_000_000), res.USDCAmount)
	assert.Equal(t, uint64(1_000_000_000), res.StablebondAmount)
	assert.True(t, res.Profit.Equal(dec("4.9")), res.Profit.String())
	require.Len(t, res.Txs, 2)
	assert.Same(t, purchase, res.Txs[0])
	assert.Same(t, swap, res.Txs[1])
	q.AssertCalled(t, "SellQuote", mock.Anything, mint.String(), uint64(1_000_000_000))
}

func TestBuyEtherfuseSellJupiterPreconditions(t *testing.T) {
	mint := solana.NewWallet().PublicKey()
	s := NewBuyEtherfuseSellJupiter(testConfig(), &mockQuoter{}, &mockProtocol{}, nil, discard())

	md := marketData()
	md.PurchaseLiquidity = 0
	_, err := s.Evaluate(context.Background(), md, mint)
	assert.ErrorIs(t, err, domain.ErrNoLiquidity)
}

func TestUnpricedTipUsesDefault(t *testing.T) {
	mint := solana.NewWallet().PublicKey()
	q := &mockQuoter{}
	p := &mockProtocol{}
	q.On("BuyQuote", mock.Anything, mint.String(), mock.Anything).Return(priced("0.045"), nil)
	q.On("SwapTx", mock.Anything, mock.Anything).Return(&solana.Transaction{}, nil)
	p.On("InstantRedemptionTx", mock.Anything, mock.Anything, mint).Return(&solana.Transaction{}, nil)

	md := marketData()
	md.JitoTipUSD = decimal.NullDecimal{}
	cfg := testConfig()
	cfg.DefaultTipUSD = dec("0.5")

	res, err := NewBuyJupiterSellEtherfuse(cfg, q, p, nil, discard()).Evaluate(context.Background(), md, mint)
	require.NoError(t, err)
	assert.True(t, res.Profit.Equal(dec("9.5")), res.Profit.String())
	assert.True(t, res.TipUSD.Equal(dec("0.5")))
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	a := NewBuyJupiterSellEtherfuse(testConfig(), &mockQuoter{}, &mockProtocol{}, nil, discard())
	b := NewBuyEtherfuseSellJupiter(testConfig(), &mockQuoter{}, &mockProtocol{}, nil, discard())
	r.Register(a)
	r.Register(b)

	assert.Equal(t, []string{domain.StrategyBuyEtherfuseSellJupiter, domain.StrategyBuyJupiterSellEtherfuse}, r.List())

	all, err := r.Enabled(nil)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	one, err := r.Enabled([]string{domain.StrategyBuyJupiterSellEtherfuse})
	require.NoError(t, err)
	require.Len(t, one, 1)
	assert.Same(t, a, one[0])

	_, err = r.Enabled([]string{"nope"})
	assert.Error(t, err)
}
