// skipper-server streams browser-automation session events to subscribers
// and exposes the automation mutation surface over HTTP.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"skipper/internal/automation"
	"skipper/internal/config"
	"skipper/internal/events"
	"skipper/internal/ghl"
	"skipper/internal/logging"
	"skipper/internal/observability"
	httpserver "skipper/internal/server/http"
	"skipper/internal/storage"
	"skipper/internal/workflow"
)

const shutdownTimeout = 15 * time.Second

func main() {
	root := &cobra.Command{
		Use:          "skipper-server",
		Short:        "Browser automation orchestrator with live event streaming",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run()
		},
	}

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	// Local development keeps its settings in a .env file; absence is fine.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger := logging.NewComponentLogger("Server")

	store, closeStore, err := buildStore(cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	provider, err := automation.NewRedisProvider(cfg.RedisURL, cfg.ProviderAPIKey)
	if err != nil {
		return err
	}

	metrics := observability.NewStreamMetrics(prometheus.DefaultRegisterer)
	bus := events.NewBus(events.WithMetrics(metrics))
	registry := events.NewRegistry(bus, store)
	manager := automation.NewManager(provider, store, metrics)
	executor := workflow.NewExecutor(manager, bus, store)
	ghlService := ghl.NewService(manager, bus, cfg.GHLLoginURL)

	router := httpserver.NewRouter(httpserver.Options{
		Executor: executor,
		GHL:      ghlService,
		Registry: registry,
	})

	srv := &http.Server{
		Addr:        cfg.Addr(),
		Handler:     router,
		ReadTimeout: 30 * time.Second,
		// Streams stay open indefinitely; no write timeout.
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening on %s (store=%s)", cfg.Addr(), cfg.Store)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		logger.Info("received %s, shutting down", sig)
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("http shutdown: %v", err)
	}
	if err := manager.CloseAll(ctx); err != nil {
		logger.Error("close sessions: %v", err)
	}
	return nil
}

func buildStore(cfg *config.Config) (storage.Store, func(), error) {
	if cfg.Store == "redis" {
		store, err := storage.NewRedisStore(cfg.RedisURL, cfg.StoreTTL)
		if err != nil {
			return nil, nil, err
		}
		return store, func() { _ = store.Close() }, nil
	}
	return storage.NewMemoryStore(), func() {}, nil
}
