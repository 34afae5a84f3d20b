// Package jito submits transaction bundles to the Jito block engine.
package jito

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/gagliardetto/solana-go/rpc/jsonrpc"
	"github.com/go-resty/resty/v2"
	"github.com/mr-tron/base58"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/etherfuse-arb/internal/amount"
	"github.com/alanyoungcy/etherfuse-arb/internal/domain"
)

// ExplorerURL is the prefix of the public bundle explorer.
const ExplorerURL = "https://explorer.jito.wtf/bundle/"

var lamportsPerSOL = decimal.NewFromInt(int64(domain.LamportsPerSOL))

// Chain builds and signs the tip transaction. *chain.Client satisfies it.
type Chain interface {
	PublicKey() solana.PublicKey
	BuildAndSign(ctx context.Context, ixs ...solana.Instruction) (*solana.Transaction, error)
}

// Config holds the block engine endpoints and polling behaviour.
type Config struct {
	BundlesURL    string
	TipFloorURL   string
	PollInterval  time.Duration
	StatusTimeout time.Duration
	Timeout       time.Duration
}

// Client talks to the block engine JSON-RPC API and the tip floor feed.
type Client struct {
	rpc    jsonrpc.RPCClient
	http   *resty.Client
	chain  Chain
	cfg    Config
	logger *slog.Logger
}

// NewClient creates a Client. chain may be nil when bundles are not sent.
func NewClient(cfg Config, chain Chain, logger *slog.Logger) *Client {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	if cfg.StatusTimeout <= 0 {
		cfg.StatusTimeout = 30 * time.Second
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Client{
		rpc:    jsonrpc.NewClient(cfg.BundlesURL),
		http:   resty.New().SetTimeout(cfg.Timeout),
		chain:  chain,
		cfg:    cfg,
		logger: logger.With(slog.String("component", "jito")),
	}
}

type tipFloor struct {
	Time                        string          `json:"time"`
	LandedTips25thPercentile    decimal.Decimal `json:"landed_tips_25th_percentile"`
	LandedTips50thPercentile    decimal.Decimal `json:"landed_tips_50th_percentile"`
	LandedTips75thPercentile    decimal.Decimal `json:"landed_tips_75th_percentile"`
	LandedTips95thPercentile    decimal.Decimal `json:"landed_tips_95th_percentile"`
	LandedTips99thPercentile    decimal.Decimal `json:"landed_tips_99th_percentile"`
	EMALandedTips50thPercentile decimal.Decimal `json:"ema_landed_tips_50th_percentile"`
}

// TipFloor returns the EMA of the median landed tip in lamports.
func (c *Client) TipFloor(ctx context.Context) (uint64, error) {
	resp, err := c.http.R().SetContext(ctx).Get(c.cfg.TipFloorURL)
	if err != nil {
		return 0, fmt.Errorf("jito: tip floor: %w", err)
	}
	if resp.IsError() {
		return 0, fmt.Errorf("jito: tip floor: status %d: %s", resp.StatusCode(), resp.String())
	}
	var floors []tipFloor
	if err := json.Unmarshal(resp.Body(), &floors); err != nil {
		return 0, fmt.Errorf("jito: decode tip floor: %w", err)
	}
	if len(floors) == 0 {
		return 0, errors.New("jito: tip floor: empty response")
	}
	lamports := floors[0].EMALandedTips50thPercentile.Mul(lamportsPerSOL).Floor()
	if lamports.IsNegative() {
		return 0, fmt.Errorf("jito: tip floor: negative tip %s", lamports)
	}
	return lamports.BigInt().Uint64(), nil
}

// TipAccounts returns the block engine's tip payment accounts.
func (c *Client) TipAccounts(ctx context.Context) ([]solana.PublicKey, error) {
	var raw []string
	if err := c.rpc.CallForInto(ctx, &raw, "getTipAccounts", []interface{}{}); err != nil {
		return nil, fmt.Errorf("jito: getTipAccounts: %w", err)
	}
	accounts := make([]solana.PublicKey, 0, len(raw))
	for _, s := range raw {
		pk, err := solana.PublicKeyFromBase58(s)
		if err != nil {
			return nil, fmt.Errorf("jito: tip account %q: %w", s, err)
		}
		accounts = append(accounts, pk)
	}
	return accounts, nil
}

// SendBundle appends a tip transfer to txs and submits them as one atomic
// bundle. It returns the bundle id.
func (c *Client) SendBundle(ctx context.Context, txs []*solana.Transaction) (string, error) {
	if c.chain == nil {
		return "", errors.New("jito: sending bundles requires a wallet")
	}
	tip, err := c.TipFloor(ctx)
	if err != nil {
		return "", err
	}
	tippers, err := c.TipAccounts(ctx)
	if err != nil {
		return "", err
	}
	if len(tippers) == 0 {
		return "", errors.New("jito: no tip accounts")
	}

	tipIx := system.NewTransferInstruction(tip, c.chain.PublicKey(), tippers[0]).Build()
	tipTx, err := c.chain.BuildAndSign(ctx, tipIx)
	if err != nil {
		return "", fmt.Errorf("jito: tip transaction: %w", err)
	}

	all := make([]*solana.Transaction, 0, len(txs)+1)
	all = append(all, txs...)
	all = append(all, tipTx)

	encoded := make([]string, 0, len(all))
	for i, tx := range all {
		raw, err := tx.MarshalBinary()
		if err != nil {
			return "", fmt.Errorf("jito: serialize transaction %d: %w", i, err)
		}
		encoded = append(encoded, base58.Encode(raw))
	}

	var bundleID string
	if err := c.rpc.CallForInto(ctx, &bundleID, "sendBundle", []interface{}{encoded}); err != nil {
		return "", fmt.Errorf("jito: sendBundle: %w", err)
	}

	c.logger.Info("bundle submitted",
		slog.String("bundle_id", bundleID),
		slog.Int("transactions", len(encoded)),
		slog.String("tip_sol", amount.FromUint64(tip).Div(lamportsPerSOL).String()),
		slog.String("explorer", ExplorerURL+bundleID),
	)
	return bundleID, nil
}

type inflightStatus struct {
	BundleID   string  `json:"bundle_id"`
	Status     string  `json:"status"`
	LandedSlot *uint64 `json:"landed_slot"`
}

type inflightResponse struct {
	Context struct {
		Slot uint64 `json:"slot"`
	} `json:"context"`
	Value []inflightStatus `json:"value"`
}

// BundleStatus fetches the in-flight status of a bundle. ok is false when the
// block engine has no record of it yet.
func (c *Client) BundleStatus(ctx context.Context, bundleID string) (status domain.BundleStatus, ok bool, err error) {
	var resp *inflightResponse
	if err := c.rpc.CallForInto(ctx, &resp, "getInflightBundleStatuses", []interface{}{[]string{bundleID}}); err != nil {
		return "", false, fmt.Errorf("jito: getInflightBundleStatuses: %w", err)
	}
	if resp == nil || len(resp.Value) == 0 {
		return "", false, nil
	}
	return domain.ParseBundleStatus(resp.Value[0].Status), true, nil
}

// WaitForBundle polls the bundle until it lands, fails, reports an
// unrecognised status, or the status timeout elapses.
func (c *Client) WaitForBundle(ctx context.Context, bundleID string) (domain.BundleStatus, error) {
	deadline := time.Now().Add(c.cfg.StatusTimeout)
	ticker := time.NewTicker(c.cfg.PollInterval)
	defer ticker.Stop()

	for {
		status, ok, err := c.BundleStatus(ctx, bundleID)
		if err != nil {
			return "", err
		}
		if ok {
			switch status {
			case domain.BundleLanded, domain.BundleFailed:
				c.logger.Info("bundle finished", slog.String("bundle_id", bundleID), slog.String("status", string(status)))
				return status, nil
			case domain.BundleUnknown:
				c.logger.Warn("bundle status unknown", slog.String("bundle_id", bundleID))
				return status, nil
			}
		}

		if !time.Now().Before(deadline) {
			return domain.BundleTimeout, nil
		}
		select {
		case <-ctx.Done():
			return "", fmt.Errorf("jito: wait for bundle %s: %w", bundleID, ctx.Err())
		case <-ticker.C:
		}
	}
}
