package chain

import (
	"context"
	"errors"
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"

	"github.com/alanyoungcy/etherfuse-arb/internal/domain"
)

// USDCMint is the mainnet USDC mint.
var USDCMint = solana.MustPublicKeyFromBase58(domain.USDCMint)

// tokenAccountHeader is the prefix shared by SPL Token and Token-2022 accounts.
type tokenAccountHeader struct {
	Mint   solana.PublicKey
	Owner  solana.PublicKey
	Amount uint64
}

const tokenAccountHeaderLen = 72

// AssociatedTokenAddress derives the SPL Token associated account of wallet
// for mint.
func AssociatedTokenAddress(wallet, mint solana.PublicKey) (solana.PublicKey, error) {
	addr, _, err := solana.FindAssociatedTokenAddress(wallet, mint)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("chain: associated token address: %w", err)
	}
	return addr, nil
}

// AssociatedToken2022Address derives the Token-2022 associated account of
// wallet for mint. Stablebond mints live under Token-2022.
func AssociatedToken2022Address(wallet, mint solana.PublicKey) (solana.PublicKey, error) {
	addr, _, err := solana.FindProgramAddress(
		[][]byte{wallet[:], solana.Token2022ProgramID[:], mint[:]},
		solana.SPLAssociatedTokenAccountProgramID,
	)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("chain: associated token-2022 address: %w", err)
	}
	return addr, nil
}

// DecodeTokenAmount returns the balance held by a serialized token account.
func DecodeTokenAmount(data []byte) (uint64, error) {
	if len(data) < tokenAccountHeaderLen {
		return 0, fmt.Errorf("chain: token account too short (%d bytes)", len(data))
	}
	var hdr tokenAccountHeader
	if err := bin.NewBinDecoder(data[:tokenAccountHeaderLen]).Decode(&hdr); err != nil {
		return 0, fmt.Errorf("chain: decode token account: %w", err)
	}
	return hdr.Amount, nil
}

// TokenBalance returns the raw balance of a token account. A missing account
// holds nothing.
func (c *Client) TokenBalance(ctx context.Context, account solana.PublicKey) (uint64, error) {
	data, err := c.AccountData(ctx, account)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return 0, nil
		}
		return 0, err
	}
	return DecodeTokenAmount(data)
}

// USDCBalance returns the wallet's USDC balance.
func (c *Client) USDCBalance(ctx context.Context) (uint64, error) {
	ata, err := AssociatedTokenAddress(c.PublicKey(), USDCMint)
	if err != nil {
		return 0, err
	}
	return c.TokenBalance(ctx, ata)
}

// StablebondBalance returns the wallet's balance of a Token-2022 stablebond.
func (c *Client) StablebondBalance(ctx context.Context, mint solana.PublicKey) (uint64, error) {
	ata, err := AssociatedToken2022Address(c.PublicKey(), mint)
	if err != nil {
		return 0, err
	}
	return c.TokenBalance(ctx, ata)
}
