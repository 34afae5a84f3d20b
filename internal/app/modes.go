package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/etherfuse-arb/internal/amount"
	"github.com/alanyoungcy/etherfuse-arb/internal/cache/redis"
	"github.com/alanyoungcy/etherfuse-arb/internal/config"
	"github.com/alanyoungcy/etherfuse-arb/internal/domain"
	"github.com/alanyoungcy/etherfuse-arb/internal/executor"
	"github.com/alanyoungcy/etherfuse-arb/internal/feed"
	"github.com/alanyoungcy/etherfuse-arb/internal/marketdata"
	"github.com/alanyoungcy/etherfuse-arb/internal/pipeline"
	"github.com/alanyoungcy/etherfuse-arb/internal/ratelimit"
	"github.com/alanyoungcy/etherfuse-arb/internal/server"
	"github.com/alanyoungcy/etherfuse-arb/internal/server/handler"
	"github.com/alanyoungcy/etherfuse-arb/internal/service"
	"github.com/alanyoungcy/etherfuse-arb/internal/strategy"
)

const (
	apiRateLimit    = 120
	apiRateWindow   = time.Minute
	shutdownTimeout = 10 * time.Second
)

// Run starts the trading loop for mint together with the optional account
// feed, trigger relay, status server and archiver. It blocks until ctx is
// cancelled or one of them fails.
func (a *App) Run(ctx context.Context, mint solana.PublicKey) error {
	deps, err := a.Deps(ctx)
	if err != nil {
		return err
	}
	if _, err := deps.Wallet(); err != nil {
		return err
	}

	a.logger.InfoContext(ctx, "starting trading loop",
		slog.String("mode", a.cfg.Mode),
		slog.String("mint", mint.String()),
		slog.Bool("persistent", deps.Persistent),
		slog.Bool("redis", deps.SignalBus != nil),
	)

	strategies, err := buildStrategies(a.cfg, deps, a.logger)
	if err != nil {
		return err
	}

	streams := service.Streams{Opportunities: redis.StreamOpportunities, Executions: redis.StreamExecutions}
	arb := service.NewArbService(deps.Opportunities, deps.SignalBus, deps.Audit, deps.Notifier, streams, a.logger)

	var exec strategy.Executor
	if a.cfg.Mode == strategy.ModeTrade {
		execLog := service.NewExecutionLog(deps.Executions, deps.SignalBus, streams.Executions, deps.Audit, a.logger)
		exec = executor.NewExecutor(deps.Jito, deps.Opportunities, execLog, deps.Notifier, a.logger)
	}

	gatherer := marketdata.NewGatherer(deps.Etherfuse, deps.Chain, deps.Jito, deps.CoinGecko, deps.PriceCache, a.logger)
	engine := strategy.NewEngine(strategies, gatherer, arb, exec, deps.LockManager, strategy.EngineConfig{
		Mode:          a.cfg.Mode,
		Interval:      a.cfg.Strategy.Interval.Duration,
		MinTriggerGap: a.cfg.Strategy.MinTriggerGap.Duration,
		LockTTL:       a.cfg.Strategy.RunnerLockTTL.Duration,
	}, a.logger)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return engine.Run(ctx, mint) })

	if a.cfg.Feed.Enabled {
		accounts, err := deps.Etherfuse.WatchedAccounts(mint)
		if err != nil {
			return fmt.Errorf("app: watched accounts: %w", err)
		}
		onChange := a.changeHandler(ctx, deps.SignalBus, engine, mint)
		accountFeed := feed.NewAccountFeed(a.cfg.Solana.WebsocketURL(), accounts, onChange, a.logger)
		g.Go(func() error { return accountFeed.Run(ctx) })
	}

	if deps.SignalBus != nil {
		g.Go(func() error { return a.relayTriggers(ctx, deps.SignalBus, engine, mint) })
	}

	if a.cfg.Server.Enabled {
		srv := a.newServer(deps, engine, arb)
		g.Go(srv.Start)
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	if deps.Archiver != nil {
		archiver := a.archiver(deps)
		g.Go(func() error { return archiver.RunEvery(ctx, a.cfg.Archive.Interval.Duration) })
	}

	return g.Wait()
}

type triggerer interface {
	Trigger()
}

// newServer builds the status API. The Redis limiter is shared between
// processes; without Redis each process limits on its own.
func (a *App) newServer(deps *Dependencies, status handler.StatusProvider, opps handler.OpportunityLister) *server.Server {
	handlers := server.Handlers{
		Health:  handler.NewHealthHandler(),
		Status:  handler.NewStatusHandler(status),
		History: handler.NewHistoryHandler(opps, deps.Executions, a.logger),
	}
	if deps.SignalBus != nil {
		handlers.Stream = handler.NewStreamHandler(deps.SignalBus, redis.StreamOpportunities, redis.StreamExecutions, a.logger)
	}

	limiter := deps.RateLimiter
	if limiter == nil {
		limiter = ratelimit.NewKeyed()
	}
	return server.NewServer(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		APIKey:      a.cfg.Server.APIKey,
		RateLimit:   apiRateLimit,
		RateWindow:  apiRateWindow,
	}, handlers, limiter, a.logger)
}

// changeHandler reacts to a watched account update. With a signal bus the
// change is published so every runner hears it, and the relay triggers the
// local engine; otherwise the engine is triggered directly.
func (a *App) changeHandler(ctx context.Context, bus domain.SignalBus, engine triggerer, mint solana.PublicKey) feed.ChangeHandler {
	return func(account solana.PublicKey) {
		a.logger.Debug("watched account changed", slog.String("account", account.String()))
		if bus != nil {
			err := bus.Publish(ctx, redis.ChannelTrigger, []byte(mint.String()))
			if err == nil {
				return
			}
			a.logger.Warn("publish trigger failed", slog.String("error", err.Error()))
		}
		engine.Trigger()
	}
}

// relayTriggers forwards trigger messages for mint from the signal bus to
// the engine. An empty payload triggers every runner.
func (a *App) relayTriggers(ctx context.Context, bus domain.SignalBus, engine triggerer, mint solana.PublicKey) error {
	ch, err := bus.Subscribe(ctx, redis.ChannelTrigger)
	if err != nil {
		return fmt.Errorf("app: subscribe triggers: %w", err)
	}
	for payload := range ch {
		if len(payload) == 0 || string(payload) == mint.String() {
			engine.Trigger()
		}
	}
	return ctx.Err()
}

// Archive uploads history older than the retention window once.
func (a *App) Archive(ctx context.Context) error {
	deps, err := a.Deps(ctx)
	if err != nil {
		return err
	}
	if deps.Archiver == nil {
		return errors.New("app: archive requires s3.enabled and postgres.enabled")
	}
	_, err = a.archiver(deps).Run(ctx)
	return err
}

func (a *App) archiver(deps *Dependencies) *pipeline.Archiver {
	return pipeline.NewArchiver(deps.Archiver, a.cfg.Archive.RetentionDays, deps.Notifier, a.logger)
}

// buildStrategies registers both directions and returns the enabled ones.
func buildStrategies(cfg *config.Config, deps *Dependencies, logger *slog.Logger) ([]strategy.Strategy, error) {
	sc, err := strategyConfig(cfg)
	if err != nil {
		return nil, err
	}
	reg := strategy.NewRegistry()
	reg.Register(strategy.NewBuyJupiterSellEtherfuse(sc, deps.Jupiter, deps.Etherfuse, deps.Quotes, logger))
	reg.Register(strategy.NewBuyEtherfuseSellJupiter(sc, deps.Jupiter, deps.Etherfuse, deps.Quotes, logger))

	strategies, err := reg.Enabled(cfg.Strategy.Enabled)
	if err != nil {
		return nil, fmt.Errorf("app: enable strategies: %w", err)
	}
	return strategies, nil
}

// strategyConfig converts the file settings into search parameters. The
// per-trade cap is configured in USDC and converted to raw units.
func strategyConfig(cfg *config.Config) (strategy.Config, error) {
	sc := strategy.DefaultConfig()
	s := cfg.Strategy

	maxRaw, err := amount.ToTokenAmount(decimal.NewFromFloat(s.MaxUSDCPerTrade), domain.USDCDecimals)
	if err != nil {
		return sc, fmt.Errorf("app: max_usdc_per_trade: %w", err)
	}
	sc.MaxUSDCPerTrade = maxRaw
	if s.MinUSDCAmount > 0 {
		sc.MinUSDCAmount = s.MinUSDCAmount
	}
	sc.MinProfitUSD = decimal.NewFromFloat(s.MinProfitUSD)
	sc.DefaultTipUSD = decimal.NewFromFloat(cfg.Jito.DefaultTipUSD)
	if s.SamplePoints > 0 {
		sc.SamplePoints = s.SamplePoints
	}
	if s.MaxTradePercent > 0 {
		sc.MinTradePercent = s.MinTradePercent
		sc.MaxTradePercent = s.MaxTradePercent
	}
	sc.SlippageBips = s.SlippageBips
	if s.MaxRetries > 0 {
		sc.MaxRetries = s.MaxRetries
	}
	if s.RetryDelay.Duration > 0 {
		sc.RetryDelay = s.RetryDelay.Duration
	}
	return sc, nil
}
