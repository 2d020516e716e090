package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/afroash/envdash/internal/config"
	"github.com/afroash/envdash/internal/ingest"
	"github.com/afroash/envdash/internal/logging"
	"github.com/afroash/envdash/internal/sampling"
	"github.com/afroash/envdash/internal/server"
	"github.com/afroash/envdash/internal/storage"
)

const version = "v0.3.0"

func main() {
	configPath := flag.String("config", "configs/server.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.LoadAppConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, closer, err := logging.New(cfg.Logging, "server")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to set up logging: %v\n", err)
		os.Exit(1)
	}
	defer closer.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error().Err(err).Msg("Server failed")
		closer.Close()
		os.Exit(1)
	}
}

// run serves until ctx is cancelled, then shuts down gracefully
func run(ctx context.Context, cfg *config.AppConfig, logger zerolog.Logger) error {
	logger.Info().
		Str("version", version).
		Str("addr", cfg.Addr()).
		Str("storage", cfg.Storage.Driver).
		Msg("Starting environment dashboard server")
	logger.Debug().Msg(cfg.String())

	if cfg.Storage.Driver == "sqlite" {
		if err := os.MkdirAll(filepath.Dir(cfg.Storage.Path), 0755); err != nil {
			return fmt.Errorf("failed to create data directory: %w", err)
		}
	}
	store, err := storage.Open(cfg.StorageOptions(), logger)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error().Err(err).Msg("Failed to close store")
		}
		logger.Info().Msg("Store closed")
	}()

	schema, err := cfg.Schema()
	if err != nil {
		return err
	}
	validator, err := ingest.NewValidator(schema)
	if err != nil {
		return err
	}

	serviceConfig, err := cfg.ServiceConfig()
	if err != nil {
		return err
	}
	queries, err := sampling.NewService(store, serviceConfig, logger)
	if err != nil {
		return err
	}

	ingester := server.NewIngester(validator, store, logger)
	api := server.NewAPIHandler(ingester, queries, store, version, logger)
	stream := server.NewStreamHandler(ingester, logger, cfg.Server.AllowedOrigins...)

	handler := server.NewRouter(api, stream, server.RouterConfig{
		AuthToken:      cfg.Server.AuthToken,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		IngestRate:     cfg.Server.IngestRate,
		IngestBurst:    cfg.Server.IngestBurst,
		DashboardPath:  cfg.Server.DashboardPath,
	}, logger)

	httpServer := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info().Str("addr", httpServer.Addr).Msg("Server listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info().Msg("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info().Msg("Server stopped")
	return nil
}
