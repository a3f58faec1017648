package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hooman734/stream-subscription-api/internal/capture"
	"github.com/hooman734/stream-subscription-api/internal/config"
	"github.com/hooman734/stream-subscription-api/internal/metrics"
	"github.com/hooman734/stream-subscription-api/internal/server"
	"github.com/hooman734/stream-subscription-api/internal/sink"
	"github.com/hooman734/stream-subscription-api/internal/store"
	"github.com/hooman734/stream-subscription-api/internal/stream"
)

const (
	defaultConfigPath = "configs/config.yaml"
	serviceName       = "stream-subscription-api"
	serviceVersion    = "1.0.0"
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	// The default path may be absent; an explicit one must exist.
	explicit := false
	flag.Visit(func(f *flag.Flag) {
		if f.Name == "config" {
			explicit = true
		}
	})

	// Load configuration
	cfg, err := config.Load(*configPath, !explicit)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger based on configuration
	logger := initLogger(cfg.Logging)

	logger.Info("Service starting",
		slog.String("service", serviceName),
		slog.String("version", serviceVersion),
		slog.String("config_path", *configPath),
	)

	// Log configuration summary (without sensitive data)
	logger.Info("Configuration loaded",
		slog.String("http_address", fmt.Sprintf("%s:%d", cfg.HTTP.Address, cfg.HTTP.Port)),
		slog.Bool("api_key_set", cfg.HTTP.APIKey != ""),
		slog.String("db_path", cfg.Storage.DBPath),
		slog.Int("max_segment_bytes", cfg.Capture.MaxSegmentBytes),
		slog.Bool("skip_first_track", cfg.Capture.SkipFirstTrack),
		slog.Bool("allow_private_networks", cfg.Capture.AllowPrivateNetworks),
		slog.String("directory_root", cfg.Sinks.DirectoryRoot),
		slog.String("log_level", cfg.Logging.Level),
	)

	// Initialize Prometheus metrics
	appMetrics := metrics.NewMetrics(nil)
	logger.Info("Prometheus metrics initialized")

	// Open the stream and sink database
	db, err := store.Open(cfg.Storage.DBPath)
	if err != nil {
		logger.Error("Failed to open database", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer db.Close()

	resolver := sink.NewResolver(sink.Config{
		UploadTimeout: cfg.Sinks.GetUploadTimeout(),
		MaxRetries:    cfg.Sinks.MaxRetries,
		MaxConcurrent: cfg.Sinks.MaxConcurrent,
		RetryBackoff:  cfg.Sinks.GetRetryBackoff(),
		DirectoryRoot: cfg.Sinks.DirectoryRoot,
		UserAgent:     cfg.Capture.UserAgent,
	}, appMetrics, logger)

	captureConfig := capture.Config{
		UserAgent:            cfg.Capture.UserAgent,
		ConnectTimeout:       cfg.Capture.GetConnectTimeout(),
		MaxSegmentBytes:      cfg.Capture.MaxSegmentBytes,
		MinSegmentBytes:      cfg.Capture.MinSegmentBytes,
		SkipFirstTrack:       cfg.Capture.SkipFirstTrack,
		AllowPrivateNetworks: cfg.Capture.AllowPrivateNetworks,
	}
	engines := func(url string) stream.Engine {
		return capture.NewEngine(url, captureConfig, logger)
	}

	events := server.NewBroadcaster(appMetrics, logger)

	registry := stream.NewRegistry(logger)
	sessions := stream.NewManagerFactory(registry, db, resolver, engines, logger,
		stream.WithMetrics(appMetrics),
		stream.WithObserver(events),
	)
	logger.Info("Session manager initialized")

	httpServer := server.NewHTTPServer(logger, cfg, server.Dependencies{
		Store:    db,
		Sessions: sessions,
		Sinks:    resolver,
		Events:   events,
		Metrics:  appMetrics,
	})

	if err := httpServer.Start(); err != nil {
		logger.Error("Failed to start HTTP server", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Setup signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	logger.Info("Service started successfully")

	sig := <-sigChan
	logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
	logger.Info("Starting graceful shutdown...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Shutdown.GetTimeout())
	defer shutdownCancel()

	// Stop HTTP server first (stop accepting new requests)
	if err := httpServer.Stop(shutdownCtx); err != nil {
		logger.Error("Error stopping HTTP server", slog.String("error", err.Error()))
	}

	// Stop every capture and wait for pending uploads
	active := registry.Count()
	if err := registry.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error stopping sessions", slog.String("error", err.Error()))
	}

	stats := resolver.Stats()
	logger.Info("Final upload statistics",
		slog.Int("sessions_stopped", active),
		slog.Uint64("total_requests", stats.TotalRequests),
		slog.Uint64("successful_requests", stats.SuccessRequests),
		slog.Uint64("failed_requests", stats.FailedRequests),
	)

	logger.Info("Service stopped")
}

// initLogger creates and configures the structured logger based on configuration
func initLogger(cfg config.LoggingConfig) *slog.Logger {
	// Parse log level
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
		level = slog.LevelInfo // default fallback
	}

	// Configure handler options
	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug, // Add source info for debug level
	}

	// Determine output destination
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

	// Create handler based on format
	var handler slog.Handler
	switch cfg.Format {
	case "json":
		handler = slog.NewJSONHandler(output, opts)
	case "text", "":
		handler = slog.NewTextHandler(output, opts)
	default:
		// Default to text format
		handler = slog.NewTextHandler(output, opts)
	}

	return slog.New(handler)
}