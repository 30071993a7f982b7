package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/sbenstewart/dutch-bros-hackathon/internal/cart"
	"github.com/sbenstewart/dutch-bros-hackathon/internal/catalog"
	"github.com/sbenstewart/dutch-bros-hackathon/internal/config"
	"github.com/sbenstewart/dutch-bros-hackathon/internal/ingest"
	"github.com/sbenstewart/dutch-bros-hackathon/internal/metrics"
	"github.com/sbenstewart/dutch-bros-hackathon/internal/server"
	"github.com/sbenstewart/dutch-bros-hackathon/internal/store"
	"github.com/sbenstewart/dutch-bros-hackathon/internal/stream"
	"github.com/sbenstewart/dutch-bros-hackathon/internal/transcription"
)

const (
	defaultConfigPath = "configs/config.yaml"
	serviceName       = "voice-order-service"
	serviceVersion    = "1.0.0"
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger based on configuration
	logger := initLogger(cfg.Logging)

	// Log service startup
	logger.Info("Service starting",
		slog.String("service", serviceName),
		slog.String("version", serviceVersion),
		slog.String("config_path", *configPath),
	)

	// Log configuration summary (without sensitive data)
	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.Server.Address),
		slog.Int("http_port", cfg.Server.Port),
		slog.String("menu_path", cfg.Catalog.MenuPath),
		slog.String("transcription_url", cfg.Transcription.URL),
		slog.Int("max_sessions", cfg.Stream.MaxSessions),
		slog.Int("ingest_pace_ms", cfg.Ingest.PaceMS),
		slog.String("log_level", cfg.Logging.Level),
	)

	// Create cancellable context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize Prometheus metrics
	appMetrics := metrics.NewMetrics(prometheus.DefaultRegisterer)
	logger.Info("Prometheus metrics initialized")

	// Load the menu catalog and build the hint matcher
	cat, err := catalog.Load(cfg.Catalog.MenuPath, cfg.Catalog.ModifiersPath)
	if err != nil {
		logger.Error("Failed to load catalog", slog.String("error", err.Error()))
		os.Exit(1)
	}
	matcher := catalog.NewMatcher(cat)
	logger.Info("Catalog loaded",
		slog.Int("categories", len(cat.Categories())),
		slog.Int("products", len(cat.Products())),
		slog.Int("modifier_chains", len(cat.Chains())),
	)

	// Initialize the cart and the ingestion driver
	orderCart := cart.New(logger)
	driver := ingest.New(&cfg.Ingest, matcher, orderCart, nil, logger)
	logger.Info("Ingestion driver initialized",
		slog.Duration("pace", cfg.Ingest.GetPaceDuration()),
	)

	// Open the transcription result store
	results, err := store.Open(store.Options{
		Dir:      cfg.Store.Dir,
		InMemory: cfg.Store.InMemory,
		Logger:   logger,
	})
	if err != nil {
		logger.Error("Failed to open result store", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger.Info("Result store opened",
		slog.String("dir", cfg.Store.Dir),
		slog.Bool("in_memory", cfg.Store.InMemory),
	)

	// Initialize the relay session manager
	streamMgr, err := stream.NewManager(logger, stream.ManagerConfig{
		MaxSessions:     cfg.Stream.MaxSessions,
		SessionTimeout:  cfg.Stream.GetSessionTimeoutDuration(),
		CleanupInterval: cfg.Stream.GetCleanupIntervalDuration(),
		TranscriptionConfig: transcription.Config{
			URL:            cfg.Transcription.URL,
			APIKey:         cfg.Transcription.APIKey,
			ConnectTimeout: cfg.Transcription.GetConnectTimeoutDuration(),
			MaxRetries:     cfg.Transcription.MaxRetries,
		},
	}, results)
	if err != nil {
		logger.Error("Failed to create stream manager", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger.Info("Stream manager initialized",
		slog.Duration("session_timeout", cfg.Stream.GetSessionTimeoutDuration()),
		slog.String("transcription_url", cfg.Transcription.URL),
	)

	// Initialize and start the HTTP API server
	httpServer := server.NewHTTPServer(cfg, logger, cat, orderCart, driver, streamMgr, appMetrics)
	if err := httpServer.Start(); err != nil {
		logger.Error("Failed to start HTTP server", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Setup signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	logger.Info("Service started successfully, waiting for signals...",
		slog.String("http_address", fmt.Sprintf("%s:%d", cfg.Server.Address, cfg.Server.Port)),
	)

	// Wait for shutdown signal
	select {
	case sig := <-sigChan:
		logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
	case <-ctx.Done():
		logger.Info("Context cancelled, shutting down")
	}

	logger.Info("Starting graceful shutdown...")

	// Stop HTTP server first (stop accepting new requests)
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.GetShutdownTimeoutDuration())
	defer shutdownCancel()

	if err := httpServer.Stop(shutdownCtx); err != nil {
		logger.Error("Error stopping HTTP server", slog.String("error", err.Error()))
	}

	// Stop stream manager (cleanup sessions and stop background routines)
	streamMgr.Stop()

	// Close the result store last so in-flight stores can finish
	if err := results.Close(); err != nil {
		logger.Error("Error closing result store", slog.String("error", err.Error()))
	}

	// Get final statistics
	dialStats := streamMgr.GetTranscriptionStats()
	items, subtotal := orderCart.Snapshot()
	logger.Info("Final service statistics",
		slog.Uint64("total_dials", dialStats.TotalDials),
		slog.Uint64("success_dials", dialStats.SuccessDials),
		slog.Uint64("failed_dials", dialStats.FailedDials),
		slog.Int("cart_lines", len(items)),
		slog.Float64("cart_subtotal", subtotal),
	)

	logger.Info("Service stopped")
}

// initLogger creates and configures the structured logger based on configuration
func initLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug,
	}

	var output *os.File
	switch cfg.Output {
	case "stderr":
		output = os.Stderr
	case "stdout", "":
		output = os.Stdout
	default:
		// Assume it's a file path
		file, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to open log file %s: %v, falling back to stdout\n", cfg.Output, err)
			output = os.Stdout
		} else {
			output = file
		}
	}

	var handler slog.Handler
	switch cfg.Format {
	case "json":
		handler = slog.NewJSONHandler(output, opts)
	default:
		handler = slog.NewTextHandler(output, opts)
	}

	return slog.New(handler)
}
