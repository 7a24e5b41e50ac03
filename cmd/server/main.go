// Dexguard - Real-time fraud risk assessment for DEX transactions
package main

import (
	"context"
	"os"

	"github.com/mbd888/dexguard/internal/config"
	"github.com/mbd888/dexguard/internal/logging"
	"github.com/mbd888/dexguard/internal/server"
	"github.com/mbd888/dexguard/internal/traces"
)

// Build info - set by ldflags
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	// Create logger
	logger := logging.New("info", "text")

	logger.Info("starting dexguard",
		"version", Version,
		"commit", Commit,
		"build_time", BuildTime,
	)

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Load detector thresholds, weights, and alert settings. Invalid tuning
	// is fatal at startup; it never silently falls back.
	params, err := config.LoadRiskParams(cfg.RiskParamsFile)
	if err != nil {
		logger.Error("failed to load risk parameters", "error", err)
		os.Exit(1)
	}

	logger.Info("configuration loaded",
		"env", cfg.Env,
		"params_file", cfg.RiskParamsFile,
		"dispatch_level", params.Alerts.DispatchLevel.String(),
	)

	ctx := context.Background()

	// Tracing (no-op when no OTLP endpoint is configured)
	shutdownTracing, err := traces.Init(ctx, cfg.OTLPEndpoint, logger)
	if err != nil {
		logger.Error("failed to initialize tracing", "error", err)
		os.Exit(1)
	}
	defer func() { _ = shutdownTracing(context.Background()) }()

	// Create and run server
	srv, err := server.New(cfg, params, server.WithLogger(logger))
	if err != nil {
		logger.Error("failed to create server", "error", err)
		os.Exit(1)
	}

	if err := srv.Run(ctx); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}
