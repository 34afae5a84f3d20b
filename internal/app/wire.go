package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"

	s3blob "github.com/alanyoungcy/etherfuse-arb/internal/blob/s3"
	"github.com/alanyoungcy/etherfuse-arb/internal/cache/redis"
	"github.com/alanyoungcy/etherfuse-arb/internal/chain"
	"github.com/alanyoungcy/etherfuse-arb/internal/config"
	"github.com/alanyoungcy/etherfuse-arb/internal/domain"
	"github.com/alanyoungcy/etherfuse-arb/internal/notify"
	"github.com/alanyoungcy/etherfuse-arb/internal/platform/coingecko"
	"github.com/alanyoungcy/etherfuse-arb/internal/platform/etherfuse"
	"github.com/alanyoungcy/etherfuse-arb/internal/platform/jito"
	"github.com/alanyoungcy/etherfuse-arb/internal/platform/jupiter"
	"github.com/alanyoungcy/etherfuse-arb/internal/ratelimit"
	"github.com/alanyoungcy/etherfuse-arb/internal/store/memory"
	"github.com/alanyoungcy/etherfuse-arb/internal/store/postgres"
)

// ErrNoWallet is returned by commands that sign when no keypair is configured.
var ErrNoWallet = errors.New("app: no keypair configured (use --keypair or ETHERFUSE_ARB_KEYPAIR)")

const quoteLimiterKey = "quotes:jupiter"

// Dependencies bundles every client, store and cache the commands use. It is
// built by Wire and torn down by the returned cleanup function.
type Dependencies struct {
	// Chain is nil when no keypair is configured.
	Chain     *chain.Client
	Etherfuse *etherfuse.Client
	Jupiter   *jupiter.Client
	Jito      *jito.Client
	CoinGecko *coingecko.Client

	// Stores fall back to memory when Postgres is disabled.
	Opportunities domain.OpportunityStore
	Executions    domain.ExecutionStore
	Audit         domain.AuditStore
	Persistent    bool

	// Redis-backed; nil when Redis is disabled.
	PriceCache  domain.PriceCache
	RateLimiter domain.RateLimiter
	LockManager domain.LockManager
	SignalBus   domain.SignalBus

	// Quotes paces Jupiter quote requests.
	Quotes domain.Waiter

	// Archiver is nil unless both S3 and Postgres are enabled.
	Archiver domain.Archiver

	Notifier *notify.Notifier
}

// Wallet returns the signing client or ErrNoWallet.
func (d *Dependencies) Wallet() (*chain.Client, error) {
	if d.Chain == nil {
		return nil, ErrNoWallet
	}
	return d.Chain, nil
}

// Wire constructs the concrete implementations selected by cfg. The cleanup
// function releases them in reverse order and is safe to call after an error.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	fail := func(err error) (*Dependencies, func(), error) {
		cleanup()
		return nil, func() {}, err
	}

	deps := &Dependencies{}

	// --- Solana ---
	rpcClient := rpc.New(cfg.Solana.RPCURL)
	closers = append(closers, func() { _ = rpcClient.Close() })

	var (
		efChain  etherfuse.Chain
		signer   jupiter.Signer
		jitoSign jito.Chain
	)
	if cfg.Solana.KeypairPath != "" {
		key, err := chain.LoadKeypair(cfg.Solana.KeypairPath, cfg.Solana.KeypairPassword)
		if err != nil {
			return fail(fmt.Errorf("wire: keypair: %w", err))
		}
		deps.Chain = chain.NewClient(rpcClient, key, chain.ClientConfig{
			ComputeUnitPrice: cfg.Solana.ComputeUnitPrice,
		}, logger)
		efChain, signer, jitoSign = deps.Chain, deps.Chain, deps.Chain
		logger.Info("wallet loaded", slog.String("pubkey", deps.Chain.PublicKey().String()))
	}

	// --- Redis (optional) ---
	if cfg.Redis.Enabled {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:         cfg.Redis.Addr,
			Password:     cfg.Redis.Password,
			DB:           cfg.Redis.DB,
			PoolSize:     cfg.Redis.PoolSize,
			MaxRetries:   cfg.Redis.MaxRetries,
			TLSEnabled:   cfg.Redis.TLSEnabled,
			StreamMaxLen: cfg.Redis.StreamMaxLen,
		})
		if err != nil {
			return fail(fmt.Errorf("wire: redis: %w", err))
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		deps.PriceCache = redis.NewPriceCache(redisClient, cfg.CoinGecko.CacheTTL.Duration)
		deps.RateLimiter = redis.NewRateLimiter(redisClient)
		deps.LockManager = redis.NewLockManager(redisClient)
		deps.SignalBus = redis.NewSignalBus(redisClient)
	}

	if cfg.RateLimit.Backend == "redis" && deps.RateLimiter != nil {
		deps.Quotes = ratelimit.NewShared(deps.RateLimiter, quoteLimiterKey, cfg.RateLimit.Requests, cfg.RateLimit.Window.Duration)
	} else {
		deps.Quotes = ratelimit.NewLocal(cfg.RateLimit.Requests, cfg.RateLimit.Window.Duration)
	}

	// --- Platform clients ---
	ef, err := etherfuse.NewClient(etherfuse.Config{
		APIURL:    cfg.Etherfuse.APIURL,
		ProgramID: cfg.Etherfuse.ProgramID,
	}, efChain, logger)
	if err != nil {
		return fail(fmt.Errorf("wire: etherfuse: %w", err))
	}
	deps.Etherfuse = ef
	deps.Jupiter = jupiter.NewClient(jupiter.Config{
		QuoteURL:    cfg.Jupiter.QuoteURL,
		SlippageBps: cfg.Jupiter.SlippageBps,
	}, signer, logger)
	deps.Jito = jito.NewClient(jito.Config{
		BundlesURL:    cfg.Jito.BundlesURL,
		TipFloorURL:   cfg.Jito.TipFloorURL,
		PollInterval:  cfg.Jito.PollInterval.Duration,
		StatusTimeout: cfg.Jito.StatusTimeout.Duration,
	}, jitoSign, logger)
	deps.CoinGecko = coingecko.NewClient(coingecko.Config{
		APIURL:   cfg.CoinGecko.APIURL,
		CacheTTL: cfg.CoinGecko.CacheTTL.Duration,
	}, deps.PriceCache, logger)

	// --- Persistence ---
	if cfg.Postgres.Enabled {
		pg, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Postgres.DSN,
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			Database: cfg.Postgres.Database,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			SSLMode:  cfg.Postgres.SSLMode,
			MaxConns: cfg.Postgres.PoolMaxConns,
			MinConns: cfg.Postgres.PoolMinConns,
		})
		if err != nil {
			return fail(fmt.Errorf("wire: postgres: %w", err))
		}
		closers = append(closers, pg.Close)

		if cfg.Postgres.RunMigrations {
			if err := pg.RunMigrations(ctx); err != nil {
				return fail(fmt.Errorf("wire: postgres migrations: %w", err))
			}
		}
		pool := pg.Pool()
		deps.Opportunities = postgres.NewOpportunityStore(pool)
		deps.Executions = postgres.NewExecutionStore(pool)
		deps.Audit = postgres.NewAuditStore(pool)
		deps.Persistent = true
	} else {
		deps.Opportunities = memory.NewOpportunityStore()
		deps.Executions = memory.NewExecutionStore()
		deps.Audit = memory.NewAuditStore()
	}

	// --- S3 archive ---
	if cfg.S3.Enabled {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			return fail(fmt.Errorf("wire: s3: %w", err))
		}
		if err := s3Client.Health(ctx); err != nil {
			logger.Warn("s3 bucket not reachable yet", slog.String("error", err.Error()))
		}
		if deps.Persistent {
			deps.Archiver = s3blob.NewArchiver(
				s3blob.NewWriter(s3Client),
				s3blob.NewReader(s3Client),
				deps.Opportunities,
				deps.Executions,
				deps.Audit,
			)
		}
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(cfg.Notify.TelegramToken, cfg.Notify.TelegramChatID))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	return deps, cleanup, nil
}

// ParseMint validates a base58 stablebond mint.
func ParseMint(s string) (solana.PublicKey, error) {
	pk, err := solana.PublicKeyFromBase58(s)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("app: invalid mint %q: %w", s, err)
	}
	return pk, nil
}
