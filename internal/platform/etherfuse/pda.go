package etherfuse

import (
	"encoding/binary"
	"fmt"

	"github.com/gagliardetto/solana-go"

	"github.com/alanyoungcy/etherfuse-arb/internal/chain"
)

// PDA seeds used by the stablebond program.
var (
	seedBond          = []byte("bond")
	seedIssuance      = []byte("issuance")
	seedPayment       = []byte("payment")
	seedPaymentFeed   = []byte("payment_feed")
	seedSellLiquidity = []byte("sell_liquidity")
	seedConfig        = []byte("config")
)

func (c *Client) findPDA(seeds ...[]byte) (solana.PublicKey, error) {
	addr, _, err := solana.FindProgramAddress(seeds, c.programID)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("etherfuse: find program address %q: %w", seeds[0], err)
	}
	return addr, nil
}

// ConfigPDA derives the global program config account.
func (c *Client) ConfigPDA() (solana.PublicKey, error) {
	return c.findPDA(seedConfig)
}

// BondPDA derives the bond account for a stablebond mint.
func (c *Client) BondPDA(mint solana.PublicKey) (solana.PublicKey, error) {
	return c.findPDA(seedBond, mint[:])
}

// IssuancePDA derives the account of issuance number n of bond.
func (c *Client) IssuancePDA(bond solana.PublicKey, n uint64) (solana.PublicKey, error) {
	var le [8]byte
	binary.LittleEndian.PutUint64(le[:], n)
	return c.findPDA(seedIssuance, bond[:], le[:])
}

// PaymentPDA derives the payment account of an issuance.
func (c *Client) PaymentPDA(issuance solana.PublicKey) (solana.PublicKey, error) {
	return c.findPDA(seedPayment, issuance[:])
}

// PaymentFeedPDA derives the payment feed account for a feed type.
func (c *Client) PaymentFeedPDA(feedType uint8) (solana.PublicKey, error) {
	return c.findPDA(seedPaymentFeed, []byte{feedType})
}

// SellLiquidityPDA derives the instant-redemption liquidity account of bond.
func (c *Client) SellLiquidityPDA(bond solana.PublicKey) (solana.PublicKey, error) {
	return c.findPDA(seedSellLiquidity, bond[:])
}

// WatchedAccounts lists the accounts whose changes move the arbitrage for
// mint: the bond, its sell liquidity account and that account's USDC.
func (c *Client) WatchedAccounts(mint solana.PublicKey) ([]solana.PublicKey, error) {
	bond, err := c.BondPDA(mint)
	if err != nil {
		return nil, err
	}
	sell, err := c.SellLiquidityPDA(bond)
	if err != nil {
		return nil, err
	}
	sellUSDC, err := chain.AssociatedTokenAddress(sell, chain.USDCMint)
	if err != nil {
		return nil, err
	}
	return []solana.PublicKey{bond, sell, sellUSDC}, nil
}
