// Package chain wraps the Solana RPC with the wallet that signs for the bot.
package chain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"

	"github.com/alanyoungcy/etherfuse-arb/internal/domain"
)

// RPC is the subset of the Solana JSON-RPC API the bot uses. *rpc.Client
// satisfies it.
type RPC interface {
	GetLatestBlockhash(ctx context.Context, commitment rpc.CommitmentType) (*rpc.GetLatestBlockhashResult, error)
	GetAccountInfo(ctx context.Context, account solana.PublicKey) (*rpc.GetAccountInfoResult, error)
	SendTransactionWithOpts(ctx context.Context, tx *solana.Transaction, opts rpc.TransactionOpts) (solana.Signature, error)
	GetSignatureStatuses(ctx context.Context, searchTransactionHistory bool, sigs ...solana.Signature) (*rpc.GetSignatureStatusesResult, error)
}

var _ RPC = (*rpc.Client)(nil)

// ClientConfig holds the parameters for a Client.
type ClientConfig struct {
	// ComputeUnitPrice is the priority fee in micro-lamports prepended to
	// every transaction built by BuildAndSign.
	ComputeUnitPrice uint64
	// ConfirmPollInterval is how often SendAndConfirm checks signature status.
	ConfirmPollInterval time.Duration
}

// Client owns the RPC connection and the signing keypair.
type Client struct {
	rpc    RPC
	key    solana.PrivateKey
	cfg    ClientConfig
	logger *slog.Logger
}

// NewClient creates a Client that signs with key.
func NewClient(r RPC, key solana.PrivateKey, cfg ClientConfig, logger *slog.Logger) *Client {
	if cfg.ConfirmPollInterval <= 0 {
		cfg.ConfirmPollInterval = time.Second
	}
	return &Client{
		rpc:    r,
		key:    key,
		cfg:    cfg,
		logger: logger.With(slog.String("component", "chain")),
	}
}

// PublicKey returns the wallet address.
func (c *Client) PublicKey() solana.PublicKey {
	return c.key.PublicKey()
}

// RPC returns the underlying RPC client.
func (c *Client) RPC() RPC {
	return c.rpc
}

// AccountData fetches the raw data of an account. It returns
// domain.ErrNotFound when the account does not exist.
func (c *Client) AccountData(ctx context.Context, account solana.PublicKey) ([]byte, error) {
	res, err := c.rpc.GetAccountInfo(ctx, account)
	if err != nil {
		if errors.Is(err, rpc.ErrNotFound) {
			return nil, fmt.Errorf("chain: account %s: %w", account, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("chain: get account %s: %w", account, err)
	}
	if res == nil || res.Value == nil || res.Value.Data == nil {
		return nil, fmt.Errorf("chain: account %s: %w", account, domain.ErrNotFound)
	}
	return res.Value.Data.GetBinary(), nil
}

// LatestBlockhash returns the most recent finalized blockhash.
func (c *Client) LatestBlockhash(ctx context.Context) (solana.Hash, error) {
	res, err := c.rpc.GetLatestBlockhash(ctx, rpc.CommitmentFinalized)
	if err != nil {
		return solana.Hash{}, fmt.Errorf("chain: latest blockhash: %w", err)
	}
	if res == nil || res.Value == nil {
		return solana.Hash{}, errors.New("chain: latest blockhash: empty response")
	}
	return res.Value.Blockhash, nil
}
