// Package app wires the bot's dependencies and runs its long-lived loops:
// the trading engine, the account feed, the status server and the archiver.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/alanyoungcy/etherfuse-arb/internal/config"
)

// App is the root application object. It owns the configuration, logger, and
// the cleanup functions registered while wiring.
type App struct {
	cfg     *config.Config
	logger  *slog.Logger
	deps    *Dependencies
	closers []func()
}

// New creates an App from a validated configuration.
func New(cfg *config.Config, logger *slog.Logger) *App {
	return &App{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "app")),
	}
}

// Deps wires the dependencies on first use and returns them.
func (a *App) Deps(ctx context.Context) (*Dependencies, error) {
	if a.deps != nil {
		return a.deps, nil
	}
	deps, cleanup, err := Wire(ctx, a.cfg, a.logger)
	if err != nil {
		return nil, fmt.Errorf("app: wire dependencies: %w", err)
	}
	a.closers = append(a.closers, cleanup)
	a.deps = deps
	return deps, nil
}

// Close tears down all resources in reverse registration order. It is safe to
// call multiple times.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
	a.deps = nil
}
