// Package config defines the top-level configuration for the arbitrage bot
// and provides validation helpers.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/alanyoungcy/etherfuse-arb/internal/domain"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file, then overridden by ETHERFUSE_ARB_* environment variables and finally by
// explicit command-line flags.
type Config struct {
	Solana    SolanaConfig    `toml:"solana"`
	Etherfuse EtherfuseConfig `toml:"etherfuse"`
	Jupiter   JupiterConfig   `toml:"jupiter"`
	Jito      JitoConfig      `toml:"jito"`
	CoinGecko CoinGeckoConfig `toml:"coingecko"`
	Strategy  StrategyConfig  `toml:"strategy"`
	RateLimit RateLimitConfig `toml:"ratelimit"`
	Redis     RedisConfig     `toml:"redis"`
	Postgres  PostgresConfig  `toml:"postgres"`
	S3        S3Config        `toml:"s3"`
	Archive   ArchiveConfig   `toml:"archive"`
	Feed      FeedConfig      `toml:"feed"`
	Server    ServerConfig    `toml:"server"`
	Notify    NotifyConfig    `toml:"notify"`
	Mode      string          `toml:"mode"`
	LogLevel  string          `toml:"log_level"`
}

// SolanaConfig holds the RPC endpoint and the wallet that signs transactions.
type SolanaConfig struct {
	RPCURL           string   `toml:"rpc_url" validate:"required,url"`
	WSURL            string   `toml:"ws_url" validate:"omitempty,url"`
	KeypairPath      string   `toml:"keypair_path"`
	KeypairPassword  string   `toml:"keypair_password"`
	ComputeUnitPrice uint64   `toml:"compute_unit_price"`
	ConfirmTimeout   duration `toml:"confirm_timeout"`
}

// EtherfuseConfig holds the Etherfuse API endpoint and stablebond program.
type EtherfuseConfig struct {
	APIURL         string `toml:"api_url" validate:"required,url"`
	ProgramID      string `toml:"program_id"`
	StablebondMint string `toml:"stablebond_mint"`
}

// JupiterConfig holds the Jupiter aggregator endpoint.
type JupiterConfig struct {
	QuoteURL    string `toml:"quote_url" validate:"required,url"`
	SlippageBps int    `toml:"slippage_bps"`
}

// JitoConfig holds the block-engine endpoints and bundle polling parameters.
type JitoConfig struct {
	BundlesURL    string   `toml:"bundles_url" validate:"required,url"`
	TipFloorURL   string   `toml:"tip_floor_url" validate:"required,url"`
	DefaultTipUSD float64  `toml:"default_tip_usd"`
	PollInterval  duration `toml:"poll_interval"`
	StatusTimeout duration `toml:"status_timeout"`
}

// CoinGeckoConfig holds the SOL price source.
type CoinGeckoConfig struct {
	APIURL   string   `toml:"api_url" validate:"required,url"`
	CacheTTL duration `toml:"cache_ttl"`
}

// StrategyConfig holds trade sizing and the trading loop cadence.
type StrategyConfig struct {
	Enabled         []string `toml:"enabled"`
	Interval        duration `toml:"interval"`
	MinTriggerGap   duration `toml:"min_trigger_gap"`
	MinUSDCAmount   uint64   `toml:"min_usdc_amount"`
	MaxUSDCPerTrade float64  `toml:"max_usdc_per_trade"`
	MinProfitUSD    float64  `toml:"min_profit_usd"`
	SamplePoints    int      `toml:"sample_points"`
	MinTradePercent float64  `toml:"min_trade_percent"`
	MaxTradePercent float64  `toml:"max_trade_percent"`
	SlippageBips    uint64   `toml:"slippage_bips"`
	MaxRetries      int      `toml:"max_retries"`
	RetryDelay      duration `toml:"retry_delay"`
	RunnerLockTTL   duration `toml:"runner_lock_ttl"`
}

// RateLimitConfig bounds outbound quote requests.
type RateLimitConfig struct {
	// Backend is "local" (in-process token bucket) or "redis" (shared sliding window).
	Backend  string   `toml:"backend"`
	Requests int      `toml:"requests"`
	Window   duration `toml:"window"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Enabled      bool   `toml:"enabled"`
	Addr         string `toml:"addr"`
	Password     string `toml:"password"`
	DB           int    `toml:"db"`
	PoolSize     int    `toml:"pool_size"`
	MaxRetries   int    `toml:"max_retries"`
	TLSEnabled   bool   `toml:"tls_enabled"`
	StreamMaxLen int64  `toml:"stream_max_len"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	Enabled       bool   `toml:"enabled"`
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// S3Config holds S3-compatible object storage parameters.
type S3Config struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// ArchiveConfig controls how long history stays in Postgres before it is
// moved to S3.
type ArchiveConfig struct {
	Interval      duration `toml:"interval"`
	RetentionDays int      `toml:"retention_days"`
}

// FeedConfig controls the account-change websocket feed.
type FeedConfig struct {
	Enabled bool `toml:"enabled"`
}

// duration is a wrapper around time.Duration that supports TOML string decoding
// (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// ServerConfig holds status API parameters.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	APIKey      string   `toml:"api_key"`
	CORSOrigins []string `toml:"cors_origins"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url" validate:"omitempty,url"`
	Events            []string `toml:"events"`
}

// Defaults returns a Config populated with the values the bot runs with when
// no file or environment override is present.
func Defaults() Config {
	return Config{
		Solana: SolanaConfig{
			RPCURL:           "https://api.mainnet-beta.solana.com",
			ComputeUnitPrice: 100_000,
			ConfirmTimeout:   duration{60 * time.Second},
		},
		Etherfuse: EtherfuseConfig{
			APIURL:    "https://api.etherfuse.com",
			ProgramID: DefaultStablebondProgramID,
		},
		Jupiter: JupiterConfig{
			QuoteURL:    "https://quote-api.jup.ag/v6",
			SlippageBps: domain.DefaultSlippageBps,
		},
		Jito: JitoConfig{
			BundlesURL:    "https://slc.mainnet.block-engine.jito.wtf:443/api/v1/bundles",
			TipFloorURL:   "https://bundles.jito.wtf/api/v1/bundles/tip_floor",
			DefaultTipUSD: domain.DefaultJitoTipUSD,
			PollInterval:  duration{time.Second},
			StatusTimeout: duration{30 * time.Second},
		},
		CoinGecko: CoinGeckoConfig{
			APIURL:   "https://api.coingecko.com/api/v3",
			CacheTTL: duration{60 * time.Second},
		},
		Strategy: StrategyConfig{
			Enabled: []string{
				domain.StrategyBuyJupiterSellEtherfuse,
				domain.StrategyBuyEtherfuseSellJupiter,
			},
			Interval:        duration{2 * time.Minute},
			MinTriggerGap:   duration{15 * time.Second},
			MinUSDCAmount:   1_000_000,
			MaxUSDCPerTrade: 1000.0,
			MinProfitUSD:    domain.DefaultMinProfitUSD,
			SamplePoints:    8,
			MinTradePercent: 0.01,
			MaxTradePercent: 1.0,
			SlippageBips:    20,
			MaxRetries:      3,
			RetryDelay:      duration{60 * time.Second},
			RunnerLockTTL:   duration{5 * time.Minute},
		},
		RateLimit: RateLimitConfig{
			Backend:  "local",
			Requests: 10,
			Window:   duration{10 * time.Second},
		},
		Redis: RedisConfig{
			Enabled:      false,
			Addr:         "localhost:6379",
			DB:           0,
			PoolSize:     10,
			MaxRetries:   3,
			StreamMaxLen: 10_000,
		},
		Postgres: PostgresConfig{
			Enabled:       false,
			Host:          "localhost",
			Port:          5432,
			Database:      "postgres",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  5,
			PoolMinConns:  1,
			RunMigrations: true,
		},
		S3: S3Config{
			Enabled:        false,
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "etherfuse-arb",
			ForcePathStyle: true,
		},
		Archive: ArchiveConfig{
			Interval:      duration{24 * time.Hour},
			RetentionDays: 30,
		},
		Feed: FeedConfig{
			Enabled: false,
		},
		Server: ServerConfig{
			Enabled:     false,
			Port:        8000,
			CORSOrigins: []string{"http://localhost:3000"},
		},
		Notify: NotifyConfig{
			Events: []string{"opportunity", "bundle_landed", "bundle_failed", "error"},
		},
		Mode:     "trade",
		LogLevel: "info",
	}
}

// DefaultStablebondProgramID is the stablebond program on mainnet-beta.
const DefaultStablebondProgramID = "etherPFoyPnhfmAMGtnKLHBR7J6BYxeyrqhXMoErtDt"

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"trade":   true,
	"monitor": true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

var validRateLimitBackends = map[string]bool{
	"local": true,
	"redis": true,
}

var validStrategies = map[string]bool{
	domain.StrategyBuyJupiterSellEtherfuse: true,
	domain.StrategyBuyEtherfuseSellJupiter: true,
}

var structValidator = validator.New()

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: trade, monitor)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Endpoint URLs are checked through struct tags.
	if err := structValidator.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			for _, fe := range verrs {
				errs = append(errs, fmt.Sprintf("%s: failed %q check (value %q)", fe.Namespace(), fe.Tag(), fmt.Sprint(fe.Value())))
			}
		} else {
			errs = append(errs, err.Error())
		}
	}

	// Solana
	if c.Solana.ConfirmTimeout.Duration <= 0 {
		errs = append(errs, "solana: confirm_timeout must be > 0")
	}

	// Etherfuse
	if c.Etherfuse.ProgramID == "" {
		errs = append(errs, "etherfuse: program_id must not be empty")
	}

	// Jupiter
	if c.Jupiter.SlippageBps < 0 || c.Jupiter.SlippageBps > 10_000 {
		errs = append(errs, fmt.Sprintf("jupiter: slippage_bps must be 0-10000, got %d", c.Jupiter.SlippageBps))
	}

	// Jito
	if c.Jito.DefaultTipUSD < 0 {
		errs = append(errs, "jito: default_tip_usd must be >= 0")
	}
	if c.Jito.PollInterval.Duration <= 0 {
		errs = append(errs, "jito: poll_interval must be > 0")
	}
	if c.Jito.StatusTimeout.Duration < c.Jito.PollInterval.Duration {
		errs = append(errs, "jito: status_timeout must be >= poll_interval")
	}

	// Strategy
	if len(c.Strategy.Enabled) == 0 {
		errs = append(errs, "strategy: enabled must list at least one strategy")
	}
	for _, name := range c.Strategy.Enabled {
		if !validStrategies[name] {
			errs = append(errs, fmt.Sprintf("strategy: unknown strategy %q", name))
		}
	}
	if c.Strategy.Interval.Duration <= 0 {
		errs = append(errs, "strategy: interval must be > 0")
	}
	if c.Strategy.MaxUSDCPerTrade <= 0 {
		errs = append(errs, "strategy: max_usdc_per_trade must be > 0")
	}
	if c.Strategy.SamplePoints < 1 {
		errs = append(errs, "strategy: sample_points must be >= 1")
	}
	if c.Strategy.MinTradePercent <= 0 || c.Strategy.MaxTradePercent > 1 || c.Strategy.MinTradePercent > c.Strategy.MaxTradePercent {
		errs = append(errs, "strategy: trade percents must satisfy 0 < min_trade_percent <= max_trade_percent <= 1")
	}
	if c.Strategy.SlippageBips > 10_000 {
		errs = append(errs, "strategy: slippage_bips must be <= 10000")
	}
	if c.Strategy.MaxRetries < 1 {
		errs = append(errs, "strategy: max_retries must be >= 1")
	}
	if c.Strategy.RetryDelay.Duration < 0 {
		errs = append(errs, "strategy: retry_delay must be >= 0")
	}

	// Rate limit
	if !validRateLimitBackends[c.RateLimit.Backend] {
		errs = append(errs, fmt.Sprintf("ratelimit: unknown backend %q (valid: local, redis)", c.RateLimit.Backend))
	}
	if c.RateLimit.Backend == "redis" && !c.Redis.Enabled {
		errs = append(errs, "ratelimit: backend redis requires redis.enabled")
	}
	if c.RateLimit.Requests < 1 {
		errs = append(errs, "ratelimit: requests must be >= 1")
	}
	if c.RateLimit.Window.Duration <= 0 {
		errs = append(errs, "ratelimit: window must be > 0")
	}

	// Redis
	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
	}

	// Postgres
	if c.Postgres.Enabled {
		if strings.TrimSpace(c.Postgres.DSN) == "" {
			if c.Postgres.Host == "" {
				errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
			}
			if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
				errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
			}
			if c.Postgres.Database == "" {
				errs = append(errs, "postgres: database must not be empty")
			}
		}
		if c.Postgres.PoolMaxConns < 1 {
			errs = append(errs, "postgres: pool_max_conns must be >= 1")
		}
		if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
			errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
		}
	}

	// S3
	if c.S3.Enabled {
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty")
		}
		if c.S3.Region == "" {
			errs = append(errs, "s3: region must not be empty")
		}
		if !c.Postgres.Enabled {
			errs = append(errs, "s3: archiving requires postgres.enabled")
		}
		if c.Archive.RetentionDays < 1 {
			errs = append(errs, "archive: retention_days must be >= 1")
		}
		if c.Archive.Interval.Duration <= 0 {
			errs = append(errs, "archive: interval must be > 0")
		}
	}

	// Server
	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
	}

	// Notify
	if (c.Notify.TelegramToken == "") != (c.Notify.TelegramChatID == "") {
		errs = append(errs, "notify: telegram_token and telegram_chat_id must be set together")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// WebsocketURL returns the configured websocket endpoint, deriving it from
// the RPC URL when none is set.
func (s SolanaConfig) WebsocketURL() string {
	if s.WSURL != "" {
		return s.WSURL
	}
	switch {
	case strings.HasPrefix(s.RPCURL, "https://"):
		return "wss://" + strings.TrimPrefix(s.RPCURL, "https://")
	case strings.HasPrefix(s.RPCURL, "http://"):
		return "ws://" + strings.TrimPrefix(s.RPCURL, "http://")
	default:
		return s.RPCURL
	}
}
