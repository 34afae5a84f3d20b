// Package jupiter quotes and builds swaps through the Jupiter aggregator.
package jupiter

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"github.com/go-resty/resty/v2"

	"github.com/alanyoungcy/etherfuse-arb/internal/amount"
	"github.com/alanyoungcy/etherfuse-arb/internal/domain"
)

// Signer signs swap transactions returned by the API. *chain.Client
// satisfies it.
type Signer interface {
	PublicKey() solana.PublicKey
	Sign(tx *solana.Transaction) error
}

// Config holds the Jupiter endpoint settings.
type Config struct {
	QuoteURL    string
	SlippageBps int
	Timeout     time.Duration
}

// Client is a Jupiter v6 API client.
type Client struct {
	http        *resty.Client
	signer      Signer
	slippageBps int
	logger      *slog.Logger
}

// NewClient creates a Client. signer may be nil when SwapTx is not used.
func NewClient(cfg Config, signer Signer, logger *slog.Logger) *Client {
	slippage := cfg.SlippageBps
	if slippage <= 0 {
		slippage = domain.DefaultSlippageBps
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		http: resty.New().
			SetBaseURL(cfg.QuoteURL).
			SetTimeout(timeout).
			SetHeader("Accept", "application/json"),
		signer:      signer,
		slippageBps: slippage,
		logger:      logger.With(slog.String("component", "jupiter")),
	}
}

// Quote asks Jupiter for the best route of req.
func (c *Client) Quote(ctx context.Context, req QuoteRequest) (QuoteResponse, error) {
	slippage := req.SlippageBps
	if slippage <= 0 {
		slippage = c.slippageBps
	}
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"inputMint":   req.InputMint,
			"outputMint":  req.OutputMint,
			"amount":      strconv.FormatUint(req.Amount, 10),
			"slippageBps": strconv.Itoa(slippage),
		}).
		Get("/quote")
	if err != nil {
		return QuoteResponse{}, fmt.Errorf("jupiter: quote: %w", err)
	}

	var quote QuoteResponse
	if err := decode(resp, &quote); err != nil {
		return QuoteResponse{}, fmt.Errorf("jupiter: quote: %w", err)
	}
	return quote, nil
}

// SwapTx builds the swap transaction for quote and signs it with the wallet.
func (c *Client) SwapTx(ctx context.Context, quote QuoteResponse) (*solana.Transaction, error) {
	if c.signer == nil {
		return nil, errors.New("jupiter: swap requires a wallet")
	}
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(swapRequest{
			UserPublicKey:           c.signer.PublicKey().String(),
			WrapAndUnwrapSOL:        true,
			AsLegacyTransaction:     false,
			DynamicComputeUnitLimit: true,
			QuoteResponse:           quote,
			ContextSlot:             quote.ContextSlot,
			TimeTaken:               quote.TimeTaken,
		}).
		Post("/swap")
	if err != nil {
		return nil, fmt.Errorf("jupiter: swap: %w", err)
	}

	var out swapResponse
	if err := decode(resp, &out); err != nil {
		return nil, fmt.Errorf("jupiter: swap: %w", err)
	}

	raw, err := base64.StdEncoding.DecodeString(out.SwapTransaction)
	if err != nil {
		return nil, fmt.Errorf("jupiter: decode swap transaction base64: %w", err)
	}
	tx, err := solana.TransactionFromDecoder(bin.NewBinDecoder(raw))
	if err != nil {
		return nil, fmt.Errorf("jupiter: decode swap transaction: %w", err)
	}
	if err := c.signer.Sign(tx); err != nil {
		return nil, fmt.Errorf("jupiter: %w", err)
	}
	return tx, nil
}

// BuyQuote prices buying the stablebond at mint with usdcAmount raw USDC.
// The price is USDC paid per token received.
func (c *Client) BuyQuote(ctx context.Context, mint string, usdcAmount uint64) (PricedQuote, error) {
	quote, err := c.Quote(ctx, QuoteRequest{InputMint: domain.USDCMint, OutputMint: mint, Amount: usdcAmount})
	if err != nil {
		return PricedQuote{}, err
	}
	if quote.OutAmount == 0 {
		return PricedQuote{}, errors.New("jupiter: buy quote returned zero output")
	}
	price := amount.FromUint64(quote.InAmount).Div(amount.FromUint64(quote.OutAmount))
	return PricedQuote{Price: price, Quote: quote}, nil
}

// SellQuote prices selling tokenAmount raw units of the stablebond at mint
// for USDC. The price is USDC received per token sold.
func (c *Client) SellQuote(ctx context.Context, mint string, tokenAmount uint64) (PricedQuote, error) {
	quote, err := c.Quote(ctx, QuoteRequest{InputMint: mint, OutputMint: domain.USDCMint, Amount: tokenAmount})
	if err != nil {
		return PricedQuote{}, err
	}
	if quote.InAmount == 0 {
		return PricedQuote{}, errors.New("jupiter: sell quote returned zero input")
	}
	price := amount.FromUint64(quote.OutAmount).Div(amount.FromUint64(quote.InAmount))
	return PricedQuote{Price: price, Quote: quote}, nil
}

type errorEnvelope struct {
	Error string `json:"error"`
}

// decode surfaces {"error": ...} payloads as *APIError before unmarshalling
// the body into out.
func decode(resp *resty.Response, out any) error {
	body := resp.Body()
	var envelope errorEnvelope
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Error != "" {
		return &APIError{StatusCode: resp.StatusCode(), Message: envelope.Error}
	}
	if resp.IsError() {
		return &APIError{StatusCode: resp.StatusCode(), Message: resp.String()}
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
