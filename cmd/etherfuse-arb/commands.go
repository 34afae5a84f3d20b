package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/gagliardetto/solana-go"
	"github.com/spf13/cobra"

	"github.com/alanyoungcy/etherfuse-arb/internal/app"
	"github.com/alanyoungcy/etherfuse-arb/internal/chain"
	"github.com/alanyoungcy/etherfuse-arb/internal/config"
	"github.com/alanyoungcy/etherfuse-arb/internal/crypto"
	"github.com/alanyoungcy/etherfuse-arb/internal/platform/jupiter"
)

// cli holds the persistent flag values and the configuration they resolve to.
type cli struct {
	configPath      string
	rpcURL          string
	keypair         string
	etherfuseURL    string
	jupiterQuoteURL string
	jitoBundlesURL  string
	stablebondMint  string
	logLevel        string

	cfg    *config.Config
	logger *slog.Logger
}

func newCLI() *cli {
	return &cli{}
}

func (c *cli) rootCmd() *cobra.Command {
	defaults := config.Defaults()

	root := &cobra.Command{
		Use:           "etherfuse-arb",
		Short:         "Etherfuse stablebond arbitrage bot",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return c.setup(cmd)
		},
	}

	pf := root.PersistentFlags()
	pf.StringVarP(&c.configPath, "config", "C", os.Getenv(config.EnvPrefix+"CONFIG"), "path to a TOML config file")
	pf.StringVar(&c.rpcURL, "rpc", defaults.Solana.RPCURL, "Solana RPC URL")
	pf.StringVar(&c.keypair, "keypair", "", "path to the wallet keypair file (plain or encrypted)")
	pf.StringVar(&c.etherfuseURL, "etherfuse-url", defaults.Etherfuse.APIURL, "Etherfuse API base URL")
	pf.StringVar(&c.jupiterQuoteURL, "jupiter-quote-url", defaults.Jupiter.QuoteURL, "Jupiter quote API base URL")
	pf.StringVar(&c.jitoBundlesURL, "jito-bundles-url", defaults.Jito.BundlesURL, "Jito block engine bundles URL")
	pf.StringVar(&c.stablebondMint, "stablebond-mint", "", "default stablebond mint")
	pf.StringVar(&c.logLevel, "log-level", defaults.LogLevel, "debug, info, warn or error")

	root.AddCommand(
		c.runCmd(),
		c.purchaseCmd(),
		c.redemptionCmd(),
		c.etherfusePriceCmd(),
		c.jupiterQuoteCmd(),
		c.jupiterSwapCmd(),
		c.encryptKeypairCmd(),
		c.archiveCmd(),
	)
	return root
}

// setup loads the config file and environment, then applies the flags the
// user set explicitly.
func (c *cli) setup(cmd *cobra.Command) error {
	cfg, err := config.Load(c.configPath)
	if err != nil {
		return fmt.Errorf("load config %q: %w", c.configPath, err)
	}

	flags := cmd.Flags()
	set := func(name string, dst *string, v string) {
		if flags.Changed(name) {
			*dst = v
		}
	}
	set("rpc", &cfg.Solana.RPCURL, c.rpcURL)
	set("keypair", &cfg.Solana.KeypairPath, c.keypair)
	set("etherfuse-url", &cfg.Etherfuse.APIURL, c.etherfuseURL)
	set("jupiter-quote-url", &cfg.Jupiter.QuoteURL, c.jupiterQuoteURL)
	set("jito-bundles-url", &cfg.Jito.BundlesURL, c.jitoBundlesURL)
	set("stablebond-mint", &cfg.Etherfuse.StablebondMint, c.stablebondMint)
	set("log-level", &cfg.LogLevel, c.logLevel)

	if err := cfg.Validate(); err != nil {
		return err
	}

	c.cfg = cfg
	c.logger = newLogger(cfg.LogLevel)
	slog.SetDefault(c.logger)
	c.logger.Debug("configuration loaded", slog.Any("config", config.RedactedConfig(cfg)))
	return nil
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

// withApp runs fn with a wired application and releases it afterwards.
func (c *cli) withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app.App, deps *app.Dependencies) error) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a := app.New(c.cfg, c.logger)
	defer a.Close()

	deps, err := a.Deps(ctx)
	if err != nil {
		return err
	}
	return fn(ctx, a, deps)
}

func (c *cli) runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run [mint] [slippage-bps]",
		Short: "Run the arbitrage loop for a stablebond mint",
		Long: `Run gathers market data every strategy.interval, evaluates both arbitrage
directions and, in trade mode, lands the most profitable one as a Jito bundle.
The mint defaults to --stablebond-mint or etherfuse.stablebond_mint.`,
		Args: cobra.RangeArgs(0, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			mintArg := c.cfg.Etherfuse.StablebondMint
			if len(args) > 0 {
				mintArg = args[0]
			}
			if mintArg == "" {
				return errors.New("run: a stablebond mint is required")
			}
			mint, err := app.ParseMint(mintArg)
			if err != nil {
				return err
			}
			if len(args) > 1 {
				bps, err := parseSlippage(args[1])
				if err != nil {
					return err
				}
				c.cfg.Jupiter.SlippageBps = bps
			}

			err = c.withApp(cmd, func(ctx context.Context, a *app.App, _ *app.Dependencies) error {
				return a.Run(ctx, mint)
			})
			if errors.Is(err, context.Canceled) {
				c.logger.Info("shut down gracefully")
				return nil
			}
			return err
		},
	}
}

func (c *cli) purchaseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "purchase <amount> <mint>",
		Short: "Purchase stablebonds from Etherfuse with raw USDC units",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			amt, mint, err := parseAmountAndMint(args[0], args[1])
			if err != nil {
				return err
			}
			return c.withApp(cmd, func(ctx context.Context, _ *app.App, deps *app.Dependencies) error {
				wallet, err := deps.Wallet()
				if err != nil {
					return err
				}
				tx, err := deps.Etherfuse.PurchaseTx(ctx, amt, mint)
				if err != nil {
					return err
				}
				return c.sendAndPrint(ctx, cmd, wallet, tx)
			})
		},
	}
}

func (c *cli) redemptionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "instant-bond-redemption <amount> <mint>",
		Short: "Redeem raw stablebond units for USDC through Etherfuse",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			amt, mint, err := parseAmountAndMint(args[0], args[1])
			if err != nil {
				return err
			}
			return c.withApp(cmd, func(ctx context.Context, _ *app.App, deps *app.Dependencies) error {
				wallet, err := deps.Wallet()
				if err != nil {
					return err
				}
				tx, err := deps.Etherfuse.InstantRedemptionTx(ctx, amt, mint)
				if err != nil {
					return err
				}
				return c.sendAndPrint(ctx, cmd, wallet, tx)
			})
		},
	}
}

func (c *cli) etherfusePriceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "etherfuse-price <mint>",
		Short: "Print the Etherfuse USD price of one stablebond",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			mint, err := app.ParseMint(args[0])
			if err != nil {
				return err
			}
			return c.withApp(cmd, func(ctx context.Context, _ *app.App, deps *app.Dependencies) error {
				price, err := deps.Etherfuse.Price(ctx, mint)
				if err != nil {
					return err
				}
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s USD\n", price.String())
				return err
			})
		},
	}
}

func (c *cli) jupiterQuoteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "jupiter-quote <input-mint> <output-mint> <amount> [slippage-bps]",
		Short: "Print the best Jupiter route as JSON",
		Args:  cobra.RangeArgs(3, 4),
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := parseQuoteRequest(args)
			if err != nil {
				return err
			}
			return c.withApp(cmd, func(ctx context.Context, _ *app.App, deps *app.Dependencies) error {
				quote, err := deps.Jupiter.Quote(ctx, req)
				if err != nil {
					return err
				}
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(quote)
			})
		},
	}
}

func (c *cli) jupiterSwapCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "jupiter-swap <input-mint> <output-mint> <amount> [slippage-bps]",
		Short: "Quote, sign and send a Jupiter swap",
		Args:  cobra.RangeArgs(3, 4),
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := parseQuoteRequest(args)
			if err != nil {
				return err
			}
			return c.withApp(cmd, func(ctx context.Context, _ *app.App, deps *app.Dependencies) error {
				wallet, err := deps.Wallet()
				if err != nil {
					return err
				}
				quote, err := deps.Jupiter.Quote(ctx, req)
				if err != nil {
					return err
				}
				tx, err := deps.Jupiter.SwapTx(ctx, quote)
				if err != nil {
					return err
				}
				return c.sendAndPrint(ctx, cmd, wallet, tx)
			})
		},
	}
}

func (c *cli) encryptKeypairCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "encrypt-keypair <input> <output>",
		Short: "Encrypt a Solana keypair file",
		Long: `Encrypt-keypair reads a plain Solana CLI keypair and writes an encrypted
copy. The password is read from ` + config.EnvPrefix + `KEYPAIR_PASSWORD.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			password := c.cfg.Solana.KeypairPassword
			if password == "" {
				return fmt.Errorf("encrypt-keypair: set %sKEYPAIR_PASSWORD", config.EnvPrefix)
			}
			key, err := chain.LoadKeypair(args[0], "")
			if err != nil {
				return err
			}
			blob, err := crypto.EncryptKey(key, password)
			if err != nil {
				return err
			}
			if err := os.WriteFile(args[1], blob, 0o600); err != nil {
				return fmt.Errorf("encrypt-keypair: write %s: %w", args[1], err)
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "encrypted keypair for %s written to %s\n", key.PublicKey(), args[1])
			return err
		},
	}
}

func (c *cli) archiveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "archive",
		Short: "Move history older than archive.retention_days to S3",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withApp(cmd, func(ctx context.Context, a *app.App, _ *app.Dependencies) error {
				return a.Archive(ctx)
			})
		},
	}
}

func (c *cli) sendAndPrint(ctx context.Context, cmd *cobra.Command, wallet *chain.Client, tx *solana.Transaction) error {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Solana.ConfirmTimeout.Duration)
	defer cancel()

	sig, err := wallet.SendAndConfirm(ctx, tx)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(cmd.OutOrStdout(), "confirmed: %s\n", sig)
	return err
}

func parseAmount(s string) (uint64, error) {
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil || n == 0 {
		return 0, fmt.Errorf("invalid amount %q: must be a positive integer in raw token units", s)
	}
	return n, nil
}

func parseSlippage(s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 || n > 10_000 {
		return 0, fmt.Errorf("invalid slippage %q: must be 1-10000 bps", s)
	}
	return n, nil
}

func parseAmountAndMint(amountArg, mintArg string) (uint64, solana.PublicKey, error) {
	amt, err := parseAmount(amountArg)
	if err != nil {
		return 0, solana.PublicKey{}, err
	}
	mint, err := app.ParseMint(mintArg)
	if err != nil {
		return 0, solana.PublicKey{}, err
	}
	return amt, mint, nil
}

// parseQuoteRequest reads <input-mint> <output-mint> <amount> [slippage-bps].
func parseQuoteRequest(args []string) (jupiter.QuoteRequest, error) {
	in, err := app.ParseMint(args[0])
	if err != nil {
		return jupiter.QuoteRequest{}, err
	}
	out, err := app.ParseMint(args[1])
	if err != nil {
		return jupiter.QuoteRequest{}, err
	}
	amt, err := parseAmount(args[2])
	if err != nil {
		return jupiter.QuoteRequest{}, err
	}
	req := jupiter.QuoteRequest{InputMint: in.String(), OutputMint: out.String(), Amount: amt}
	if len(args) > 3 {
		if req.SlippageBps, err = parseSlippage(args[3]); err != nil {
			return jupiter.QuoteRequest{}, err
		}
	}
	return req, nil
}
