// Package app initializes and holds long-lived application services, acting as a dependency injection container.
package app

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/ogimet-history/internal/config"
	"github.com/JakeFAU/ogimet-history/internal/crawler"
	collyfetcher "github.com/JakeFAU/ogimet-history/internal/fetcher/colly"
	"github.com/JakeFAU/ogimet-history/internal/logging"
	"github.com/JakeFAU/ogimet-history/internal/metrics"
	"github.com/JakeFAU/ogimet-history/internal/storage/local"
)

// App holds the shared services for one process: configuration, the logger
// and the station runner built from them.
type App struct {
	cfg    config.Config
	logger *zap.Logger
	runner *crawler.Runner
}

// New loads configuration from path (empty for defaults and environment
// only), builds the logger and wires the runner.
func New(path string) (*App, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logger, err := logging.New(logging.Config{
		Development: cfg.Logging.Development,
		Level:       cfg.Logging.Level,
	})
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	return NewWithLogger(cfg, logger), nil
}

// NewWithLogger wires an App from an already loaded Config.
func NewWithLogger(cfg config.Config, logger *zap.Logger) *App {
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics.Init()

	fetcher := collyfetcher.New(collyfetcher.Config{
		UserAgent:   cfg.Fetch.UserAgent,
		Timeout:     cfg.Fetch.Timeout,
		MaxAttempts: cfg.Fetch.MaxAttempts,
		Backoff:     cfg.Fetch.Backoff,

		RequestsPerSecond: cfg.Fetch.RequestsPerSecond,
	}, logger.Named("fetcher"))

	runner := crawler.NewRunner(
		crawler.NewLinkBuilder(cfg.Fetch.BaseURL),
		fetcher,
		SeriesSinks,
		nil,
		nil,
		logger.Named("runner"),
	)

	logger.Debug("application services initialized",
		zap.String("output_root", cfg.Output.Root),
		zap.String("base_url", cfg.Fetch.BaseURL),
		zap.Int("max_attempts", cfg.Fetch.MaxAttempts),
	)
	return &App{cfg: cfg, logger: logger, runner: runner}
}

// SeriesSinks opens the local series store for a run destination.
func SeriesSinks(dir string) (crawler.SeriesSink, error) {
	store, err := local.New(dir)
	if err != nil {
		return nil, fmt.Errorf("open series store: %w", err)
	}
	return store, nil
}

// GetLogger returns the shared zap logger.
func (a *App) GetLogger() *zap.Logger {
	return a.logger
}

// GetConfig returns the loaded configuration.
func (a *App) GetConfig() config.Config {
	return a.cfg
}

// GetRunner returns the station runner.
func (a *App) GetRunner() *crawler.Runner {
	return a.runner
}

// Close dumps metrics and flushes the logger. Each command defers it once it
// has resolved the App, so it also runs when the command fails.
func (a *App) Close() {
	if err := metrics.WriteTextfile(a.cfg.Metrics.Textfile); err != nil {
		a.logger.Warn("Error writing metrics textfile", zap.Error(err))
	}
	// Sync on a console logger commonly fails with EINVAL; nothing to do about it.
	_ = a.logger.Sync()
}
