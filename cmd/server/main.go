// Package main - Entry point for the pool-boq HTTP server
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

	"github.com/subosito/gotenv"
	"go.uber.org/zap"

	"pool-boq/adapters/storage"
	"pool-boq/api"
	"pool-boq/core/engine"
	"pool-boq/core/template"
	"pool-boq/internal/config"
	"pool-boq/internal/logging"
	"pool-boq/internal/metrics"
)

var version = "0.1.0"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "pool-boq server: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfgFile := flag.String("config", "", "config file (yaml or json)")
	addr := flag.String("addr", "", "listen address (overrides server.addr)")
	flag.Parse()

	// .env is optional; real environment variables win
	if err := gotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("load .env: %w", err)
	}

	cfg, err := config.Load(*cfgFile)
	if err != nil {
		return err
	}
	if *addr != "" {
		cfg.Server.Addr = *addr
	}
	if err := logging.Initialize(cfg.Logging); err != nil {
		return err
	}
	defer logging.Sync()
	log := logging.Named("server")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := storage.StoreFactory(ctx, cfg.Storage, log)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()
	log.Info("store ready", zap.String("backend", cfg.Storage.Backend))

	var observer metrics.Observer = metrics.Nop{}
	var metricsHandler http.Handler
	if cfg.Metrics.Enabled {
		collectors := metrics.New()
		observer = collectors
		metricsHandler = collectors.Handler()
	}

	var repo template.Repository = store
	if cfg.Storage.Fallback {
		repo = template.WithFallback(store, log, observer)
	}

	e := engine.NewEngine(repo, engine.EngineConfig{
		Quote:   cfg.Quote.Settings(),
		Logger:  log,
		Metrics: observer,
	})
	srv := api.NewServer(e, api.Options{
		Version:        version,
		Logger:         log,
		Metrics:        metricsHandler,
		AllowedOrigins: cfg.Server.AllowedOrigins,
	}).HTTPServer(cfg.Server.Addr)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	log.Info("HTTP server started", zap.String("addr", cfg.Server.Addr), zap.String("version", version))

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return err
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
