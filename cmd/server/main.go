package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	flag "github.com/spf13/pflag"

	"github.com/skypro1111/udp-peer-service/internal/config"
	"github.com/skypro1111/udp-peer-service/internal/eventlog"
	"github.com/skypro1111/udp-peer-service/internal/metrics"
	"github.com/skypro1111/udp-peer-service/internal/registry"
	"github.com/skypro1111/udp-peer-service/internal/server"
)

const (
	defaultConfigPath = "configs/config.yaml"
	serviceName       = "udp-peer-service"
	serviceVersion    = "1.0.0"
)

func main() {
	os.Exit(run())
}

// run wires and runs the service, returning the process exit code
func run() int {
	// Parse command line flags
	configPath := flag.StringP("config", "c", defaultConfigPath, "Path to configuration file")
	port := flag.IntP("port", "p", 0, "UDP port to listen on (overrides config)")
	bind := flag.StringP("bind", "b", "", "Address to bind (overrides config)")
	timeout := flag.Duration("timeout", 0, "Peer inactivity timeout (overrides config)")
	sweepInterval := flag.Duration("sweep-interval", 0, "Interval between inactivity sweeps (overrides config)")
	flag.Parse()

	// Load configuration
	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		return 1
	}

	// Command line overrides
	if *port != 0 {
		cfg.Server.UDPPort = *port
	}
	if *bind != "" {
		cfg.Server.BindAddress = *bind
	}
	if *timeout > 0 {
		if err := cfg.Registry.SetInactiveTimeout(*timeout); err != nil {
			fmt.Fprintf(os.Stderr, "Invalid --timeout: %v\n", err)
			return 1
		}
	}
	if *sweepInterval > 0 {
		if err := cfg.Registry.SetSweepInterval(*sweepInterval); err != nil {
			fmt.Fprintf(os.Stderr, "Invalid --sweep-interval: %v\n", err)
			return 1
		}
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		return 1
	}

	// Initialize logger based on configuration
	logger, closeLog := initLogger(cfg.Logging)
	defer closeLog()

	// Log service startup
	logger.Info("Service starting",
		slog.String("service", serviceName),
		slog.String("version", serviceVersion),
		slog.String("config_path", *configPath),
	)

	logger.Info("Configuration loaded",
		slog.Int("udp_port", cfg.Server.UDPPort),
		slog.String("bind_address", cfg.Server.BindAddress),
		slog.String("buffer_size", cfg.Server.BufferSize),
		slog.Duration("inactive_timeout", cfg.Registry.GetInactiveTimeout()),
		slog.Duration("sweep_interval", cfg.Registry.GetSweepInterval()),
		slog.Int("shards", cfg.Registry.Shards),
		slog.String("log_level", cfg.Logging.Level),
	)

	// Event sinks: timestamped console trace or structured log, plus in-memory history
	history, err := eventlog.NewHistory(cfg.Events.HistorySize)
	if err != nil {
		logger.Error("Failed to create event history", slog.String("error", err.Error()))
		return 1
	}

	var trace eventlog.Sink = eventlog.NewSlogSink(logger)
	if cfg.Events.Console {
		trace = eventlog.NewWriterSink(os.Stdout)
	}
	sink := eventlog.Multi(trace, history)

	// Initialize Prometheus metrics
	appMetrics := metrics.NewMetrics(prometheus.DefaultRegisterer)
	logger.Info("Prometheus metrics initialized")

	// Peer registry and its sweeper
	peers := registry.New(
		registry.WithSink(sink),
		registry.WithLogger(logger),
		registry.WithShards(cfg.Registry.Shards),
	)
	sweeper := registry.NewSweeper(peers,
		cfg.Registry.GetSweepInterval(),
		cfg.Registry.GetInactiveTimeout(),
		logger,
	)

	// Initialize UDP server
	udpServer, err := server.NewUDPServer(&cfg.Server, logger, peers, sweeper, sink, appMetrics)
	if err != nil {
		logger.Error("Failed to create UDP server", slog.String("error", err.Error()))
		return 1
	}
	logger.Info("UDP server initialized")

	// Initialize HTTP API server (if enabled)
	var httpServer *server.HTTPServer
	if cfg.HTTP.Enabled {
		httpConfig := server.HTTPServerConfig{
			Port:    cfg.HTTP.Port,
			Address: cfg.HTTP.Address,
		}
		httpServer = server.NewHTTPServer(httpConfig, logger, cfg, peers, udpServer, history,
			appMetrics, prometheus.DefaultGatherer)
		logger.Info("HTTP API server initialized",
			slog.String("address", net.JoinHostPort(cfg.HTTP.Address, strconv.Itoa(cfg.HTTP.Port))),
		)
	}

	// Start UDP server
	if err := udpServer.Start(); err != nil {
		logger.Error("Failed to start UDP server", slog.String("error", err.Error()))
		return 1
	}

	// Start HTTP server (if enabled)
	if httpServer != nil {
		if err := httpServer.Start(); err != nil {
			logger.Error("Failed to start HTTP server", slog.String("error", err.Error()))
			_ = udpServer.Stop()
			return 1
		}
	}

	// Setup signal handling for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("Service started successfully, waiting for signals...",
		slog.String("udp_address", udpServer.LocalAddr().String()),
	)

	// Wait for shutdown signal or a loop failure
	select {
	case <-ctx.Done():
		logger.Info("Received shutdown signal")
	case <-udpServer.Done():
		logger.Error("UDP server loop exited unexpectedly")
	}

	logger.Info("Starting graceful shutdown...")

	// Stop HTTP server first (stop accepting new requests)
	if httpServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()

		if err := httpServer.Stop(shutdownCtx); err != nil {
			logger.Error("Error stopping HTTP server", slog.String("error", err.Error()))
		}
	}

	// Stop UDP server; both loops have exited once this returns
	exitCode := 0
	if err := udpServer.Stop(); err != nil {
		logger.Error("Error stopping UDP server", slog.String("error", err.Error()))
		exitCode = 1
	}

	// Get final statistics
	stats := udpServer.GetStatistics()
	logger.Info("Final server statistics",
		slog.Uint64("datagrams_received", stats.DatagramsReceived),
		slog.Uint64("responses_sent", stats.ResponsesSent),
		slog.Uint64("responses_throttled", stats.ResponsesThrottled),
		slog.Uint64("active_peers", stats.ActivePeers),
	)

	logger.Info("Service stopped")
	return exitCode
}

// loadConfig reads the config file; a missing file at the default path means defaults
func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err == nil {
		return cfg, nil
	}
	if path == defaultConfigPath && errors.Is(err, fs.ErrNotExist) {
		return config.Default(), nil
	}
	return nil, err
}

// initLogger creates and configures the structured logger based on configuration.
// The returned func closes the log file, if one was opened.
func initLogger(cfg config.LoggingConfig) (*slog.Logger, func()) {
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
	closeOutput := func() {}
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
			closeOutput = func() { _ = file.Close() }
		}
	}

	// Create handler based on format
	var handler slog.Handler
	switch cfg.Format {
	case "json":
		handler = slog.NewJSONHandler(output, opts)
	default:
		handler = slog.NewTextHandler(output, opts)
	}

	return slog.New(handler), closeOutput
}
