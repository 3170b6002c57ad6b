package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ksred/revchain/internal/api"
	"github.com/ksred/revchain/internal/app"
	"github.com/ksred/revchain/internal/config"

	// Import swagger docs
	_ "github.com/ksred/revchain/docs"
)

func main() {
	var (
		configPath string
		upgrade    bool
	)
	flag.StringVar(&configPath, "config", "", "Path to configuration file")
	flag.BoolVar(&upgrade, "upgrade", false, "Upgrade the database to head before serving")
	flag.Parse()

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := app.SetupLogging(cfg)
	logger.Info().
		Str("version", "1.0.0").
		Int("port", cfg.HTTP.Port).
		Msg("Starting revchain HTTP API server")

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to start")
	}
	defer a.Close()

	if upgrade {
		res, err := a.Runner.Upgrade(ctx, "head")
		if err != nil {
			logger.Fatal().Err(err).Msg("Failed to upgrade database")
		}
		logger.Info().Strs("applied", res.Applied).Str("current", res.To).Msg("Database upgraded")
	}

	server, err := api.NewServer(cfg, a.DB, a.Runner, a.Metrics, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create HTTP server")
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := server.Start(cfg.HTTP.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info().Msg("Starting graceful shutdown")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error().Err(err).Msg("HTTP server error")
	}

	logger.Info().Msg("Shutdown complete")
}
