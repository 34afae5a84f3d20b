package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// EnvPrefix is the prefix of every environment override.
const EnvPrefix = "ETHERFUSE_ARB_"

// Load merges the TOML file at path on top of the built-in defaults, applies
// ETHERFUSE_ARB_* environment variable overrides, and returns the result. An
// empty path skips the file. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, err
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known ETHERFUSE_ARB_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Solana ──
	setStr(&cfg.Solana.RPCURL, EnvPrefix+"SOLANA_RPC_URL")
	setStr(&cfg.Solana.WSURL, EnvPrefix+"SOLANA_WS_URL")
	setStr(&cfg.Solana.KeypairPath, EnvPrefix+"KEYPAIR")
	setStr(&cfg.Solana.KeypairPassword, EnvPrefix+"KEYPAIR_PASSWORD")
	setUint64(&cfg.Solana.ComputeUnitPrice, EnvPrefix+"SOLANA_COMPUTE_UNIT_PRICE")
	setDuration(&cfg.Solana.ConfirmTimeout, EnvPrefix+"SOLANA_CONFIRM_TIMEOUT")

	// ── Etherfuse ──
	setStr(&cfg.Etherfuse.APIURL, EnvPrefix+"ETHERFUSE_API_URL")
	setStr(&cfg.Etherfuse.ProgramID, EnvPrefix+"ETHERFUSE_PROGRAM_ID")
	setStr(&cfg.Etherfuse.StablebondMint, EnvPrefix+"STABLEBOND_MINT")

	// ── Jupiter ──
	setStr(&cfg.Jupiter.QuoteURL, EnvPrefix+"JUPITER_QUOTE_URL")
	setInt(&cfg.Jupiter.SlippageBps, EnvPrefix+"JUPITER_SLIPPAGE_BPS")

	// ── Jito ──
	setStr(&cfg.Jito.BundlesURL, EnvPrefix+"JITO_BUNDLES_URL")
	setStr(&cfg.Jito.TipFloorURL, EnvPrefix+"JITO_TIP_FLOOR_URL")
	setFloat64(&cfg.Jito.DefaultTipUSD, EnvPrefix+"JITO_DEFAULT_TIP_USD")
	setDuration(&cfg.Jito.PollInterval, EnvPrefix+"JITO_POLL_INTERVAL")
	setDuration(&cfg.Jito.StatusTimeout, EnvPrefix+"JITO_STATUS_TIMEOUT")

	// ── CoinGecko ──
	setStr(&cfg.CoinGecko.APIURL, EnvPrefix+"COINGECKO_API_URL")
	setDuration(&cfg.CoinGecko.CacheTTL, EnvPrefix+"COINGECKO_CACHE_TTL")

	// ── Strategy ──
	setStringSlice(&cfg.Strategy.Enabled, EnvPrefix+"STRATEGY_ENABLED")
	setDuration(&cfg.Strategy.Interval, EnvPrefix+"STRATEGY_INTERVAL")
	setDuration(&cfg.Strategy.MinTriggerGap, EnvPrefix+"STRATEGY_MIN_TRIGGER_GAP")
	setUint64(&cfg.Strategy.MinUSDCAmount, EnvPrefix+"STRATEGY_MIN_USDC_AMOUNT")
	setFloat64(&cfg.Strategy.MaxUSDCPerTrade, EnvPrefix+"STRATEGY_MAX_USDC_PER_TRADE")
	setFloat64(&cfg.Strategy.MinProfitUSD, EnvPrefix+"STRATEGY_MIN_PROFIT_USD")
	setInt(&cfg.Strategy.SamplePoints, EnvPrefix+"STRATEGY_SAMPLE_POINTS")
	setUint64(&cfg.Strategy.SlippageBips, EnvPrefix+"STRATEGY_SLIPPAGE_BIPS")
	setInt(&cfg.Strategy.MaxRetries, EnvPrefix+"STRATEGY_MAX_RETRIES")
	setDuration(&cfg.Strategy.RetryDelay, EnvPrefix+"STRATEGY_RETRY_DELAY")

	// ── Rate limit ──
	setStr(&cfg.RateLimit.Backend, EnvPrefix+"RATELIMIT_BACKEND")
	setInt(&cfg.RateLimit.Requests, EnvPrefix+"RATELIMIT_REQUESTS")
	setDuration(&cfg.RateLimit.Window, EnvPrefix+"RATELIMIT_WINDOW")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, EnvPrefix+"REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, EnvPrefix+"REDIS_ADDR")
	setStr(&cfg.Redis.Password, EnvPrefix+"REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, EnvPrefix+"REDIS_DB")
	setInt(&cfg.Redis.PoolSize, EnvPrefix+"REDIS_POOL_SIZE")
	setBool(&cfg.Redis.TLSEnabled, EnvPrefix+"REDIS_TLS_ENABLED")

	// ── Postgres ──
	setBool(&cfg.Postgres.Enabled, EnvPrefix+"POSTGRES_ENABLED")
	setStr(&cfg.Postgres.DSN, EnvPrefix+"POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, EnvPrefix+"POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, EnvPrefix+"POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, EnvPrefix+"POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, EnvPrefix+"POSTGRES_USER")
	setStr(&cfg.Postgres.Password, EnvPrefix+"POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, EnvPrefix+"POSTGRES_SSL_MODE")
	setBool(&cfg.Postgres.RunMigrations, EnvPrefix+"POSTGRES_RUN_MIGRATIONS")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, EnvPrefix+"S3_ENABLED")
	setStr(&cfg.S3.Endpoint, EnvPrefix+"S3_ENDPOINT")
	setStr(&cfg.S3.Region, EnvPrefix+"S3_REGION")
	setStr(&cfg.S3.Bucket, EnvPrefix+"S3_BUCKET")
	setStr(&cfg.S3.AccessKey, EnvPrefix+"S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, EnvPrefix+"S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, EnvPrefix+"S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, EnvPrefix+"S3_FORCE_PATH_STYLE")

	// ── Archive ──
	setDuration(&cfg.Archive.Interval, EnvPrefix+"ARCHIVE_INTERVAL")
	setInt(&cfg.Archive.RetentionDays, EnvPrefix+"ARCHIVE_RETENTION_DAYS")

	// ── Feed ──
	setBool(&cfg.Feed.Enabled, EnvPrefix+"FEED_ENABLED")

	// ── Server ──
	setBool(&cfg.Server.Enabled, EnvPrefix+"SERVER_ENABLED")
	setInt(&cfg.Server.Port, EnvPrefix+"SERVER_PORT")
	setStr(&cfg.Server.APIKey, EnvPrefix+"SERVER_API_KEY")
	setStringSlice(&cfg.Server.CORSOrigins, EnvPrefix+"SERVER_CORS_ORIGINS")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, EnvPrefix+"NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, EnvPrefix+"NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, EnvPrefix+"NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, EnvPrefix+"NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, EnvPrefix+"MODE")
	setStr(&cfg.LogLevel, EnvPrefix+"LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setUint64(dst *uint64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
