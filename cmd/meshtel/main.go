// Package main implements the meshtel entry point. Meshtel ingests mesh
// telemetry (gateway link quality and sensor temperatures) from an MQTT topic
// hierarchy into a sqlite reading store and serves it over an HTTP API.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"
	"time"

	"github.com/c360/meshtel/api"
	"github.com/c360/meshtel/config"
	"github.com/c360/meshtel/device"
	"github.com/c360/meshtel/health"
	"github.com/c360/meshtel/ingest"
	inputmqtt "github.com/c360/meshtel/input/mqtt"
	"github.com/c360/meshtel/metric"
	"github.com/c360/meshtel/output/livefeed"
	"github.com/c360/meshtel/store"
)

// Build information constants
const (
	Version = "0.1.0"
	appName = "meshtel"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := run(); err != nil {
		slog.Error("Application failed", "error", err, "exit_code", 1)
		os.Exit(1)
	}
}

func run() error {
	cliCfg := parseFlags()
	if err := validateFlags(cliCfg); err != nil {
		return fmt.Errorf("invalid flags: %w", err)
	}

	if cliCfg.ShowVersion {
		fmt.Printf("%s version %s\n", appName, Version)
		return nil
	}
	if cliCfg.ShowHelp {
		printDetailedHelp()
		return nil
	}

	logger := setupLogger(cliCfg.LogLevel, cliCfg.LogFormat)
	slog.SetDefault(logger)

	slog.Info("Starting meshtel",
		"version", Version,
		"config_path", cliCfg.ConfigPath)

	cfg, err := config.NewLoader().LoadFile(cliCfg.ConfigPath)
	if err != nil {
		return fmt.Errorf("configuration loading failed: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration invalid: %w", err)
	}

	if cliCfg.Validate {
		slog.Info("Configuration is valid")
		return nil
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return runService(ctx, cfg, logger, cliCfg.ShutdownTimeout)
}

// runService wires the components together, starts them, and tears them down
// in reverse order once the context is cancelled.
func runService(ctx context.Context, cfg *config.Config, logger *slog.Logger, shutdownTimeout time.Duration) error {
	registry := metric.NewRegistry()
	metrics := registry.Metrics

	if cfg.Database.Path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o755); err != nil {
			return fmt.Errorf("database directory creation failed: %w", err)
		}
	}

	readingStore, err := store.Open(ctx, cfg.Database.Path, logger)
	if err != nil {
		return fmt.Errorf("reading store open failed: %w", err)
	}
	defer readingStore.Close()

	if err := readingStore.EnsureSchema(ctx); err != nil {
		return fmt.Errorf("schema bootstrap failed: %w", err)
	}

	directory := device.NewSQLDirectory(readingStore.DB(), logger)
	feed := livefeed.NewFeed(logger)
	defer feed.Close()

	pipeline, err := ingest.NewPipeline(ingest.Deps{
		Directory:  directory,
		Store:      readingStore,
		Classifier: ingest.NewClassifier(cfg.Topics.Gateway, cfg.Topics.Temperature),
		Feed:       feed,
		Logger:     logger,
		Metrics:    metrics,
	})
	if err != nil {
		return fmt.Errorf("pipeline construction failed: %w", err)
	}

	input := inputmqtt.NewInput(inputmqtt.InputDeps{
		Config:   cfg.MQTT,
		Topics:   cfg.Topics,
		Pipeline: pipeline,
		Logger:   logger,
		Metrics:  metrics,
	})
	if err := input.Initialize(); err != nil {
		return fmt.Errorf("mqtt input initialization failed: %w", err)
	}
	if err := input.Start(ctx); err != nil {
		return fmt.Errorf("mqtt input start failed: %w", err)
	}
	defer func() {
		if err := input.Stop(shutdownTimeout); err != nil {
			logger.Warn("mqtt input shutdown incomplete", "error", err)
		}
	}()

	monitor := health.NewMonitor()
	monitor.Register("reading-store", readingStore)
	monitor.Register("mqtt-input", input)

	server, err := api.NewServer(api.Deps{
		Config:    cfg.HTTP,
		Pipeline:  pipeline,
		Directory: directory,
		Store:     readingStore,
		Publisher: input,
		Feed:      feed,
		Health:    monitor,
		Metrics:   registry.Handler(),
		Logger:    logger,
	})
	if err != nil {
		return fmt.Errorf("api server construction failed: %w", err)
	}

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.Start()
	}()

	logger.Info("meshtel running",
		"broker", cfg.MQTT.BrokerURL,
		"topics", []string{cfg.Topics.Gateway, cfg.Topics.Temperature},
		"database", cfg.Database.Path,
		"http", cfg.HTTP.Addr)

	select {
	case err := <-serverErr:
		return fmt.Errorf("http server failed: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutdown requested")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http server shutdown incomplete", "error", err)
	}

	return nil
}
