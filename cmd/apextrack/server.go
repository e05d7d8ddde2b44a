package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/goodtune/apextrack/internal/api"
	"github.com/goodtune/apextrack/internal/config"
	"github.com/goodtune/apextrack/internal/metrics"
	"github.com/goodtune/apextrack/internal/usage"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start apextrack server",
	Long:  `Start the apextrack server with the HTTP API, metrics endpoint, and abandonment sweeper.`,
	RunE:  runServer,
}

func init() {
	rootCmd.AddCommand(serverCmd)
}

func runServer(cmd *cobra.Command, args []string) error {
	// Load configuration
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	// Setup logger
	logger := setupLogger(cfg.Logging)
	log.Logger = logger

	logger.Info().
		Str("version", version).
		Str("config", configPath).
		Msg("Starting apextrack")

	// Initialize storage
	store, err := openStorage(cfg.Storage)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error().Err(err).Msg("Failed to close storage")
		}
	}()

	logger.Info().
		Str("type", cfg.Storage.Type).
		Msg("Storage initialized")

	// Initialize Usage Tracker
	tracker, err := newTracker(cfg, store, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize usage tracker: %w", err)
	}

	sweeper := usage.NewSweeper(
		tracker,
		config.ParseDuration(cfg.Usage.SweepInterval, usage.DefaultSweepInterval),
		logger,
	)

	apiServer := api.NewServer(api.Config{
		ListenAddr:      fmt.Sprintf("%s:%d", cfg.Server.BindAddress, cfg.Server.APIPort),
		RateLimit:       cfg.API.RateLimit,
		RateLimitWindow: config.ParseDuration(cfg.API.RateLimitWindow, time.Minute),
	}, tracker, logger)

	var metricsServer *metrics.Server
	if cfg.Server.MetricsPort > 0 {
		metricsServer = metrics.NewServer(fmt.Sprintf("%s:%d", cfg.Server.BindAddress, cfg.Server.MetricsPort), logger)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(apiServer.ListenAndServe)
	if metricsServer != nil {
		g.Go(metricsServer.ListenAndServe)
	}
	g.Go(func() error {
		return sweeper.Run(gctx)
	})

	// Shut servers down once a signal arrives or any component fails
	g.Go(func() error {
		<-gctx.Done()
		logger.Info().Msg("Shutdown signal received, gracefully stopping...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := apiServer.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("Error stopping API server")
		}
		if metricsServer != nil {
			if err := metricsServer.Shutdown(shutdownCtx); err != nil {
				logger.Error().Err(err).Msg("Error stopping metrics server")
			}
		}
		return nil
	})

	logger.Info().
		Str("api", fmt.Sprintf("http://%s:%d/api", cfg.Server.BindAddress, cfg.Server.APIPort)).
		Int("metrics_port", cfg.Server.MetricsPort).
		Msg("apextrack startup complete")

	if err := g.Wait(); err != nil {
		return fmt.Errorf("server error: %w", err)
	}

	logger.Info().Msg("apextrack stopped")
	return nil
}
