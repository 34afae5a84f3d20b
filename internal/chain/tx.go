package chain

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/gagliardetto/solana-go"
	computebudget "github.com/gagliardetto/solana-go/programs/compute-budget"
	"github.com/gagliardetto/solana-go/rpc"
)

// BuildAndSign assembles ixs into a transaction paid for and signed by the
// wallet. A SetComputeUnitPrice instruction is prepended when a priority fee
// is configured.
func (c *Client) BuildAndSign(ctx context.Context, ixs ...solana.Instruction) (*solana.Transaction, error) {
	all := make([]solana.Instruction, 0, len(ixs)+1)
	if c.cfg.ComputeUnitPrice > 0 {
		all = append(all, computebudget.NewSetComputeUnitPriceInstruction(c.cfg.ComputeUnitPrice).Build())
	}
	all = append(all, ixs...)

	blockhash, err := c.LatestBlockhash(ctx)
	if err != nil {
		return nil, err
	}

	tx, err := solana.NewTransaction(all, blockhash, solana.TransactionPayer(c.PublicKey()))
	if err != nil {
		return nil, fmt.Errorf("chain: build transaction: %w", err)
	}
	if err := c.Sign(tx); err != nil {
		return nil, err
	}
	return tx, nil
}

// Sign drops any existing signatures on tx and signs it with the wallet.
func (c *Client) Sign(tx *solana.Transaction) error {
	key := c.key
	owner := key.PublicKey()
	tx.Signatures = nil
	if _, err := tx.Sign(func(pk solana.PublicKey) *solana.PrivateKey {
		if pk.Equals(owner) {
			return &key
		}
		return nil
	}); err != nil {
		return fmt.Errorf("chain: sign transaction: %w", err)
	}
	return nil
}

// SendAndConfirm submits tx and polls its signature until it reaches
// confirmed commitment, fails on chain, or ctx ends.
func (c *Client) SendAndConfirm(ctx context.Context, tx *solana.Transaction) (solana.Signature, error) {
	sig, err := c.rpc.SendTransactionWithOpts(ctx, tx, rpc.TransactionOpts{
		PreflightCommitment: rpc.CommitmentConfirmed,
	})
	if err != nil {
		return solana.Signature{}, fmt.Errorf("chain: send transaction: %w", err)
	}
	c.logger.InfoContext(ctx, "transaction sent", slog.String("signature", sig.String()))

	ticker := time.NewTicker(c.cfg.ConfirmPollInterval)
	defer ticker.Stop()

	for {
		res, err := c.rpc.GetSignatureStatuses(ctx, false, sig)
		if err != nil {
			c.logger.WarnContext(ctx, "signature status lookup failed",
				slog.String("signature", sig.String()),
				slog.String("error", err.Error()),
			)
		} else if res != nil && len(res.Value) > 0 && res.Value[0] != nil {
			st := res.Value[0]
			if st.Err != nil {
				return sig, fmt.Errorf("chain: transaction %s failed: %v", sig, st.Err)
			}
			if st.ConfirmationStatus == rpc.ConfirmationStatusConfirmed ||
				st.ConfirmationStatus == rpc.ConfirmationStatusFinalized {
				c.logger.InfoContext(ctx, "transaction confirmed",
					slog.String("signature", sig.String()),
					slog.Uint64("slot", st.Slot),
				)
				return sig, nil
			}
		}

		select {
		case <-ctx.Done():
			return sig, fmt.Errorf("chain: confirm %s: %w", sig, ctx.Err())
		case <-ticker.C:
		}
	}
}
