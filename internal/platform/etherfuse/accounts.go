package etherfuse

import (
	"context"
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
)

// AccountType is the leading discriminator byte of every program account.
type AccountType uint8

const (
	AccountTypeUninitialized AccountType = iota
	AccountTypeConfig
	AccountTypeBond
	AccountTypeIssuance
	AccountTypePayment
	AccountTypePaymentFeed
	AccountTypeSellLiquidity
)

func (t AccountType) String() string {
	switch t {
	case AccountTypeConfig:
		return "config"
	case AccountTypeBond:
		return "bond"
	case AccountTypeIssuance:
		return "issuance"
	case AccountTypePayment:
		return "payment"
	case AccountTypePaymentFeed:
		return "payment_feed"
	case AccountTypeSellLiquidity:
		return "sell_liquidity"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(t))
	}
}

// Bond is the per-mint bond account.
type Bond struct {
	AccountType     AccountType
	Mint            solana.PublicKey
	IssuanceNumber  uint64
	PaymentFeedType uint8
}

// PaymentFeed describes the oracle pair and payment mint for a feed type.
type PaymentFeed struct {
	AccountType     AccountType
	PaymentFeedType uint8
	BasePriceFeed   solana.PublicKey
	QuotePriceFeed  solana.PublicKey
	PaymentMint     solana.PublicKey
}

// SellLiquidity is the pool backing instant redemptions of a bond.
type SellLiquidity struct {
	AccountType  AccountType
	Bond         solana.PublicKey
	FeeCollector solana.PublicKey
}

// Issuance tracks the supply of one issuance of a bond.
type Issuance struct {
	AccountType    AccountType
	Bond           solana.PublicKey
	IssuanceNumber uint64
	MaxSupply      uint64
	Supply         uint64
}

// Remaining returns how many tokens can still be minted.
func (i Issuance) Remaining() uint64 {
	if i.Supply >= i.MaxSupply {
		return 0
	}
	return i.MaxSupply - i.Supply
}

// decodeAccount borsh-decodes data into out and checks its discriminator.
func decodeAccount(data []byte, want AccountType, out any) error {
	if len(data) == 0 {
		return fmt.Errorf("etherfuse: empty %s account", want)
	}
	if got := AccountType(data[0]); got != want {
		return fmt.Errorf("etherfuse: expected %s account, got %s", want, got)
	}
	if err := bin.NewBorshDecoder(data).Decode(out); err != nil {
		return fmt.Errorf("etherfuse: decode %s account: %w", want, err)
	}
	return nil
}

func (c *Client) loadAccount(ctx context.Context, addr solana.PublicKey, want AccountType, out any) error {
	if err := c.requireChain(); err != nil {
		return err
	}
	data, err := c.chain.AccountData(ctx, addr)
	if err != nil {
		return fmt.Errorf("etherfuse: load %s account: %w", want, err)
	}
	return decodeAccount(data, want, out)
}

// LoadBond fetches and decodes the bond account of mint.
func (c *Client) LoadBond(ctx context.Context, mint solana.PublicKey) (solana.PublicKey, Bond, error) {
	addr, err := c.BondPDA(mint)
	if err != nil {
		return solana.PublicKey{}, Bond{}, err
	}
	var bond Bond
	if err := c.loadAccount(ctx, addr, AccountTypeBond, &bond); err != nil {
		return solana.PublicKey{}, Bond{}, err
	}
	return addr, bond, nil
}

// LoadPaymentFeed fetches and decodes the payment feed for feedType.
func (c *Client) LoadPaymentFeed(ctx context.Context, feedType uint8) (solana.PublicKey, PaymentFeed, error) {
	addr, err := c.PaymentFeedPDA(feedType)
	if err != nil {
		return solana.PublicKey{}, PaymentFeed{}, err
	}
	var feed PaymentFeed
	if err := c.loadAccount(ctx, addr, AccountTypePaymentFeed, &feed); err != nil {
		return solana.PublicKey{}, PaymentFeed{}, err
	}
	return addr, feed, nil
}

// LoadSellLiquidity fetches and decodes the sell liquidity account of bond.
func (c *Client) LoadSellLiquidity(ctx context.Context, bond solana.PublicKey) (solana.PublicKey, SellLiquidity, error) {
	addr, err := c.SellLiquidityPDA(bond)
	if err != nil {
		return solana.PublicKey{}, SellLiquidity{}, err
	}
	var sl SellLiquidity
	if err := c.loadAccount(ctx, addr, AccountTypeSellLiquidity, &sl); err != nil {
		return solana.PublicKey{}, SellLiquidity{}, err
	}
	return addr, sl, nil
}

// LoadIssuance fetches and decodes issuance n of bond.
func (c *Client) LoadIssuance(ctx context.Context, bond solana.PublicKey, n uint64) (solana.PublicKey, Issuance, error) {
	addr, err := c.IssuancePDA(bond, n)
	if err != nil {
		return solana.PublicKey{}, Issuance{}, err
	}
	var iss Issuance
	if err := c.loadAccount(ctx, addr, AccountTypeIssuance, &iss); err != nil {
		return solana.PublicKey{}, Issuance{}, err
	}
	return addr, iss, nil
}
