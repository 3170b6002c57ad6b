package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ksred/revchain/internal/app"
	"github.com/ksred/revchain/internal/config"
	"github.com/ksred/revchain/internal/mcp"
)

const version = "v0.1.0"

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "", "Path to configuration file")
	flag.Parse()

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// stdout carries JSON-RPC, so logs go to stderr or the configured file
	logger := app.SetupLogging(cfg)
	logger.Info().Str("version", version).Msg("Starting revchain MCP server")

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to start")
	}
	defer a.Close()

	mcpServer, err := mcp.NewServer(a.Runner, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create MCP server")
	}

	serverErrChan := make(chan error, 1)
	go func() {
		logger.Info().Msg("Starting MCP server on stdio")
		serverErrChan <- mcpServer.Serve(ctx)
	}()

	select {
	case <-ctx.Done():
		logger.Info().Msg("Received shutdown signal")
	case err := <-serverErrChan:
		if err != nil {
			logger.Error().Err(err).Msg("MCP server error")
		}
	}

	logger.Info().Msg("Shutdown complete")
}
