// Package app wires configuration, database and runner for the binaries.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/ksred/revchain/internal/config"
	"github.com/ksred/revchain/internal/database"
	"github.com/ksred/revchain/internal/migration"
	"github.com/ksred/revchain/internal/migrations"
	"github.com/ksred/revchain/internal/utils"
)

// App holds the connected database and the runner built over it
type App struct {
	Config  *config.Config
	DB      *database.Database
	Runner  *migration.Runner
	Metrics *migration.Metrics
	Logger  zerolog.Logger
}

// SetupLogging configures the logger based on configuration
func SetupLogging(cfg *config.Config) zerolog.Logger {
	logConfig := utils.LoggerConfig{
		Level:      cfg.Server.LogLevel,
		Pretty:     cfg.Server.Debug,
		CallerInfo: cfg.Server.Debug,
		LogFile:    cfg.Server.LogFile,
	}

	utils.SetupGlobalLogger(logConfig)

	return utils.NewLogger(logConfig)
}

// New connects to the configured database and builds a runner over the
// application's revision chain
func New(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*App, error) {
	registry, err := migrations.NewRegistry()
	if err != nil {
		return nil, fmt.Errorf("invalid revision chain: %w", err)
	}

	db, err := connectToDatabase(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	var metrics *migration.Metrics
	if cfg.Metrics.Enabled {
		metrics = migration.NewMetrics(cfg.Metrics.Namespace)
	}

	runner, err := migration.NewRunnerFromConfig(cfg, db.DB(), registry, logger, metrics)
	if err != nil {
		db.Close()
		return nil, err
	}

	logger.Info().
		Str("head", registry.Head()).
		Int("revisions", registry.Len()).
		Str("lock", cfg.LockDriver()).
		Str("transaction_mode", cfg.Migrations.TransactionMode).
		Msg("Migration runner ready")

	return &App{
		Config:  cfg,
		DB:      db,
		Runner:  runner,
		Metrics: metrics,
		Logger:  logger,
	}, nil
}

// NewOffline builds a runner without connecting. It renders SQL for
// from:to ranges in the configured driver's dialect and nothing else.
func NewOffline(cfg *config.Config, logger zerolog.Logger) (*App, error) {
	registry, err := migrations.NewRegistry()
	if err != nil {
		return nil, fmt.Errorf("invalid revision chain: %w", err)
	}

	runner, err := migration.NewOfflineRunner(cfg, registry, logger)
	if err != nil {
		return nil, err
	}

	logger.Debug().Str("driver", cfg.Database.Driver).Msg("Offline mode, no database connection")

	return &App{
		Config: cfg,
		Runner: runner,
		Logger: logger,
	}, nil
}

// Close releases the lock driver and the database connection
func (a *App) Close() {
	if err := a.Runner.Close(); err != nil {
		a.Logger.Error().Err(err).Msg("Failed to close migration lock")
	}
	if a.DB == nil {
		return
	}
	if err := a.DB.Close(); err != nil {
		a.Logger.Error().Err(err).Msg("Failed to close database connection")
	}
}

func connectToDatabase(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*database.Database, error) {
	logger.Info().Str("driver", cfg.Database.Driver).Msg("Connecting to database")

	db := database.NewDatabase(cfg.DatabaseMap(), logger)
	if err := db.Connect(ctx); err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	healthCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := db.Health(healthCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("database health check failed: %w", err)
	}

	logger.Info().Msg("Database connection established")
	return db, nil
}
