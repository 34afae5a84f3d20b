package etherfuse

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"

	"github.com/alanyoungcy/etherfuse-arb/internal/amount"
	"github.com/alanyoungcy/etherfuse-arb/internal/chain"
)

// Instruction discriminators of the stablebond program.
const (
	InstructionPurchaseBond          uint8 = 6
	InstructionInstantBondRedemption uint8 = 13
)

type amountArgs struct {
	Discriminator uint8
	Amount        uint64
}

func encodeAmountArgs(discriminator uint8, amt uint64) ([]byte, error) {
	var buf bytes.Buffer
	if err := bin.NewBorshEncoder(&buf).Encode(amountArgs{Discriminator: discriminator, Amount: amt}); err != nil {
		return nil, fmt.Errorf("etherfuse: encode instruction data: %w", err)
	}
	return buf.Bytes(), nil
}

// optionalAccount substitutes the program id for an unset optional account.
func (c *Client) optionalAccount(pk solana.PublicKey) solana.PublicKey {
	if pk.IsZero() {
		return c.programID
	}
	return pk
}

// PurchaseInstruction builds an instruction that buys amount (raw payment
// token units) worth of the stablebond at mint for user.
func (c *Client) PurchaseInstruction(ctx context.Context, user solana.PublicKey, amt uint64, mint solana.PublicKey) (solana.Instruction, error) {
	bondAddr, bond, err := c.LoadBond(ctx, mint)
	if err != nil {
		return nil, err
	}
	feedAddr, feed, err := c.LoadPaymentFeed(ctx, bond.PaymentFeedType)
	if err != nil {
		return nil, err
	}

	configAddr, err := c.ConfigPDA()
	if err != nil {
		return nil, err
	}
	issuanceAddr, err := c.IssuancePDA(bondAddr, bond.IssuanceNumber)
	if err != nil {
		return nil, err
	}
	paymentAddr, err := c.PaymentPDA(issuanceAddr)
	if err != nil {
		return nil, err
	}
	userBondATA, err := chain.AssociatedToken2022Address(user, mint)
	if err != nil {
		return nil, err
	}
	userPaymentATA, err := chain.AssociatedTokenAddress(user, feed.PaymentMint)
	if err != nil {
		return nil, err
	}
	paymentATA, err := chain.AssociatedTokenAddress(paymentAddr, feed.PaymentMint)
	if err != nil {
		return nil, err
	}

	data, err := encodeAmountArgs(InstructionPurchaseBond, amt)
	if err != nil {
		return nil, err
	}

	accounts := solana.AccountMetaSlice{
		solana.Meta(configAddr),
		solana.Meta(user).WRITE().SIGNER(),
		solana.Meta(userBondATA).WRITE(),
		solana.Meta(userPaymentATA).WRITE(),
		solana.Meta(bondAddr).WRITE(),
		solana.Meta(issuanceAddr).WRITE(),
		solana.Meta(mint).WRITE(),
		solana.Meta(paymentAddr).WRITE(),
		solana.Meta(paymentATA).WRITE(),
		solana.Meta(feed.PaymentMint),
		solana.Meta(feedAddr),
		solana.Meta(feed.BasePriceFeed),
		solana.Meta(c.optionalAccount(feed.QuotePriceFeed)),
		solana.Meta(solana.Token2022ProgramID),
		solana.Meta(solana.SPLAssociatedTokenAccountProgramID),
		solana.Meta(solana.TokenProgramID),
		solana.Meta(solana.SystemProgramID),
	}

	c.logger.Debug("purchase instruction",
		slog.String("mint", mint.String()),
		slog.Uint64("amount", amt),
		slog.Uint64("issuance", bond.IssuanceNumber),
	)
	return solana.NewInstruction(c.programID, accounts, data), nil
}

// InstantRedemptionInstruction builds an instruction that redeems amount of
// the stablebond at mint against the sell liquidity pool. The amount is
// capped at the pool's payment token balance.
func (c *Client) InstantRedemptionInstruction(ctx context.Context, user solana.PublicKey, amt uint64, mint solana.PublicKey) (solana.Instruction, error) {
	if err := c.requireChain(); err != nil {
		return nil, err
	}
	bondAddr, bond, err := c.LoadBond(ctx, mint)
	if err != nil {
		return nil, err
	}
	feedAddr, feed, err := c.LoadPaymentFeed(ctx, bond.PaymentFeedType)
	if err != nil {
		return nil, err
	}
	sellAddr, sell, err := c.LoadSellLiquidity(ctx, bondAddr)
	if err != nil {
		return nil, err
	}

	issuanceAddr, err := c.IssuancePDA(bondAddr, bond.IssuanceNumber)
	if err != nil {
		return nil, err
	}
	userBondATA, err := chain.AssociatedToken2022Address(user, mint)
	if err != nil {
		return nil, err
	}
	userPaymentATA, err := chain.AssociatedTokenAddress(user, feed.PaymentMint)
	if err != nil {
		return nil, err
	}
	sellPaymentATA, err := chain.AssociatedTokenAddress(sellAddr, feed.PaymentMint)
	if err != nil {
		return nil, err
	}
	feeCollectorATA, err := chain.AssociatedTokenAddress(sell.FeeCollector, feed.PaymentMint)
	if err != nil {
		return nil, err
	}

	available, err := c.chain.TokenBalance(ctx, sellPaymentATA)
	if err != nil {
		return nil, fmt.Errorf("etherfuse: sell liquidity balance: %w", err)
	}
	redeem := amount.MinUint64(amt, available)

	data, err := encodeAmountArgs(InstructionInstantBondRedemption, redeem)
	if err != nil {
		return nil, err
	}

	accounts := solana.AccountMetaSlice{
		solana.Meta(user).WRITE().SIGNER(),
		solana.Meta(bondAddr).WRITE(),
		solana.Meta(issuanceAddr).WRITE(),
		solana.Meta(userBondATA).WRITE(),
		solana.Meta(sellAddr).WRITE(),
		solana.Meta(sellPaymentATA).WRITE(),
		solana.Meta(feeCollectorATA).WRITE(),
		solana.Meta(mint).WRITE(),
		solana.Meta(userPaymentATA).WRITE(),
		solana.Meta(feed.BasePriceFeed),
		solana.Meta(c.optionalAccount(feed.QuotePriceFeed)),
		solana.Meta(feed.PaymentMint),
		solana.Meta(feedAddr),
		solana.Meta(solana.TokenProgramID),
		solana.Meta(solana.Token2022ProgramID),
		solana.Meta(solana.SPLAssociatedTokenAccountProgramID),
		solana.Meta(solana.SystemProgramID),
	}

	c.logger.Debug("instant redemption instruction",
		slog.String("mint", mint.String()),
		slog.Uint64("requested", amt),
		slog.Uint64("available", available),
		slog.Uint64("amount", redeem),
	)
	return solana.NewInstruction(c.programID, accounts, data), nil
}

// PurchaseTx builds and signs a purchase transaction for the wallet.
func (c *Client) PurchaseTx(ctx context.Context, amt uint64, mint solana.PublicKey) (*solana.Transaction, error) {
	if err := c.requireChain(); err != nil {
		return nil, err
	}
	ix, err := c.PurchaseInstruction(ctx, c.chain.PublicKey(), amt, mint)
	if err != nil {
		return nil, err
	}
	tx, err := c.chain.BuildAndSign(ctx, ix)
	if err != nil {
		return nil, fmt.Errorf("etherfuse: purchase tx: %w", err)
	}
	return tx, nil
}

// InstantRedemptionTx builds and signs an instant redemption transaction for
// the wallet.
func (c *Client) InstantRedemptionTx(ctx context.Context, amt uint64, mint solana.PublicKey) (*solana.Transaction, error) {
	if err := c.requireChain(); err != nil {
		return nil, err
	}
	ix, err := c.InstantRedemptionInstruction(ctx, c.chain.PublicKey(), amt, mint)
	if err != nil {
		return nil, err
	}
	tx, err := c.chain.BuildAndSign(ctx, ix)
	if err != nil {
		return nil, fmt.Errorf("etherfuse: instant redemption tx: %w", err)
	}
	return tx, nil
}

// SellLiquidityUSDC returns the USDC available for instant redemptions of
// the stablebond at mint.
func (c *Client) SellLiquidityUSDC(ctx context.Context, mint solana.PublicKey) (uint64, error) {
	if err := c.requireChain(); err != nil {
		return 0, err
	}
	bondAddr, err := c.BondPDA(mint)
	if err != nil {
		return 0, err
	}
	sellAddr, err := c.SellLiquidityPDA(bondAddr)
	if err != nil {
		return 0, err
	}
	ata, err := chain.AssociatedTokenAddress(sellAddr, chain.USDCMint)
	if err != nil {
		return 0, err
	}
	bal, err := c.chain.TokenBalance(ctx, ata)
	if err != nil {
		return 0, fmt.Errorf("etherfuse: sell liquidity: %w", err)
	}
	return bal, nil
}

// PurchaseLiquidity returns how many stablebond tokens the current issuance
// can still sell.
func (c *Client) PurchaseLiquidity(ctx context.Context, mint solana.PublicKey) (uint64, error) {
	bondAddr, bond, err := c.LoadBond(ctx, mint)
	if err != nil {
		return 0, err
	}
	_, iss, err := c.LoadIssuance(ctx, bondAddr, bond.IssuanceNumber)
	if err != nil {
		return 0, err
	}
	return iss.Remaining(), nil
}
