package main

import (
	"fmt"
	"os"

	"github.com/goodtune/apextrack/internal/config"
	"github.com/goodtune/apextrack/internal/storage"
	"github.com/goodtune/apextrack/internal/storage/memory"
	"github.com/goodtune/apextrack/internal/storage/redis"
	"github.com/goodtune/apextrack/internal/usage"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var (
	version    = "dev"
	configPath string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "apextrack",
	Short: "apextrack - equipment usage session tracking service",
	Long: `apextrack tracks how long physical equipment is in use. It runs timed
usage sessions with pause and resume, records manual entries, abandons
sessions left running, and keeps per-asset usage hours up to date.`,
	Version: version,
	RunE: func(cmd *cobra.Command, args []string) error {
		// Default to server command when no subcommand is provided
		return runServer(cmd, args)
	},
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "/etc/apextrack/config.yaml", "Path to configuration file")
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// setupLogger configures the logger based on configuration
func setupLogger(cfg config.LoggingConfig) zerolog.Logger {
	// Set log level
	level := zerolog.InfoLevel
	switch cfg.Level {
	case "debug":
		level = zerolog.DebugLevel
	case "info":
		level = zerolog.InfoLevel
	case "warn":
		level = zerolog.WarnLevel
	case "error":
		level = zerolog.ErrorLevel
	}

	zerolog.SetGlobalLevel(level)

	// Set output format
	if cfg.Format == "text" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}

	// Default to JSON
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

func openStorage(cfg config.StorageConfig) (storage.Store, error) {
	switch cfg.Type {
	case "", "memory":
		return memory.New(), nil
	case "redis":
		return redis.Open(cfg.Redis)
	default:
		return nil, fmt.Errorf("unsupported storage type: %s (must be memory or redis)", cfg.Type)
	}
}

func newTracker(cfg *config.Config, store storage.Store, logger zerolog.Logger) (*usage.Tracker, error) {
	return usage.NewTracker(store, usage.Config{
		AbandonAfter:       config.ParseDuration(cfg.Usage.AbandonAfter, usage.DefaultAbandonAfter),
		AssetNameCacheSize: cfg.Usage.AssetNameCacheSize,
	}, logger)
}

// bootstrap loads configuration and opens storage for one-shot commands.
// Logs go to stderr so command output stays clean.
func bootstrap() (*config.Config, storage.Store, *usage.Tracker, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	logger := setupLogger(cfg.Logging).Output(os.Stderr)

	store, err := openStorage(cfg.Storage)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	tracker, err := newTracker(cfg, store, logger)
	if err != nil {
		_ = store.Close()
		return nil, nil, nil, fmt.Errorf("failed to initialize usage tracker: %w", err)
	}

	return cfg, store, tracker, nil
}
