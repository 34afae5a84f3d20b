// Package etherfuse talks to the Etherfuse pricing API and the stablebond
// program on Solana.
package etherfuse

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"
)

// Chain is the wallet-bound Solana access the on-chain operations need.
// *chain.Client satisfies it.
type Chain interface {
	PublicKey() solana.PublicKey
	AccountData(ctx context.Context, account solana.PublicKey) ([]byte, error)
	TokenBalance(ctx context.Context, account solana.PublicKey) (uint64, error)
	BuildAndSign(ctx context.Context, ixs ...solana.Instruction) (*solana.Transaction, error)
}

// Config holds the Etherfuse endpoints.
type Config struct {
	APIURL    string
	ProgramID string
	Timeout   time.Duration
}

// Client combines the REST pricing API with the stablebond program.
type Client struct {
	http      *resty.Client
	programID solana.PublicKey
	chain     Chain
	logger    *slog.Logger
}

// NewClient creates a Client. chain may be nil when only Price is needed.
func NewClient(cfg Config, chain Chain, logger *slog.Logger) (*Client, error) {
	programID, err := solana.PublicKeyFromBase58(cfg.ProgramID)
	if err != nil {
		return nil, fmt.Errorf("etherfuse: parse program id %q: %w", cfg.ProgramID, err)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		http: resty.New().
			SetBaseURL(cfg.APIURL).
			SetTimeout(timeout).
			SetHeader("Accept", "application/json"),
		programID: programID,
		chain:     chain,
		logger:    logger.With(slog.String("component", "etherfuse")),
	}, nil
}

// ProgramID returns the stablebond program address.
func (c *Client) ProgramID() solana.PublicKey {
	return c.programID
}

type bondCostResponse struct {
	BondCostInPaymentToken decimal.Decimal `json:"bond_cost_in_payment_token"`
}

type exchangeRateResponse struct {
	USDToMXN decimal.Decimal `json:"usd_to_mxn"`
}

// Price returns the USD price of one stablebond token: the bond cost in its
// payment token (MXN) divided by the USD/MXN rate.
func (c *Client) Price(ctx context.Context, mint solana.PublicKey) (decimal.Decimal, error) {
	var cost bondCostResponse
	if err := c.getJSON(ctx, "/lookup/bonds/cost/"+mint.String(), &cost); err != nil {
		return decimal.Zero, fmt.Errorf("etherfuse: bond cost %s: %w", mint, err)
	}

	var rate exchangeRateResponse
	if err := c.getJSON(ctx, "/lookup/exchange_rate/usd_to_mxn", &rate); err != nil {
		return decimal.Zero, fmt.Errorf("etherfuse: exchange rate: %w", err)
	}
	if rate.USDToMXN.IsZero() {
		return decimal.Zero, errors.New("etherfuse: exchange rate is zero")
	}

	price := cost.BondCostInPaymentToken.Div(rate.USDToMXN)
	c.logger.Debug("etherfuse price",
		slog.String("mint", mint.String()),
		slog.String("cost_mxn", cost.BondCostInPaymentToken.String()),
		slog.String("usd_to_mxn", rate.USDToMXN.String()),
		slog.String("price_usd", price.String()),
	)
	return price, nil
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	resp, err := c.http.R().SetContext(ctx).Get(path)
	if err != nil {
		return fmt.Errorf("http get: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("status %d: %s", resp.StatusCode(), resp.String())
	}
	if err := json.Unmarshal(resp.Body(), out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *Client) requireChain() error {
	if c.chain == nil {
		return errors.New("etherfuse: on-chain access requires a wallet")
	}
	return nil
}
