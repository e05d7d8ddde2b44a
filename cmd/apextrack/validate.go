package main

import (
	"fmt"
	"io"
	"reflect"
	"strings"

	"github.com/fatih/color"
	"github.com/goodtune/apextrack/internal/config"
	"github.com/spf13/cobra"
)

var validateDump bool

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check a configuration file",
	Long: `Load the configuration file the server would use, apply defaults and
environment overrides, and report problems. Keys the server does not read are
listed so typos such as usage_tracking.abandon_afer are caught before deploy.`,
	Args: cobra.NoArgs,
	RunE: runValidate,
}

func init() {
	validateCmd.Flags().BoolVar(&validateDump, "dump", false, "Print the effective configuration, marking values that differ from defaults")
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	red := color.New(color.FgRed, color.Bold)
	green := color.New(color.FgGreen, color.Bold)

	cfg, err := config.Load(configPath)
	if err != nil {
		_, _ = red.Fprintf(cmd.ErrOrStderr(), "✗ %s: %v\n", configPath, err)
		return err
	}

	unknown, err := config.UnknownKeys(configPath)
	if err != nil {
		// Load tolerates a missing file, UnknownKeys does not
		unknown = nil
	}

	_, _ = green.Fprintf(out, "✓ %s is valid\n", configPath)

	if len(unknown) > 0 {
		_, _ = red.Fprintf(out, "\n%d key(s) are not used by apextrack and will be ignored:\n", len(unknown))
		for _, key := range unknown {
			_, _ = red.Fprintf(out, "  %s\n", key)
		}
	}

	if validateDump {
		d := dumper{out: out, unknown: unknown}
		d.dump(cfg, config.Defaults())
	}

	return nil
}

// dumper prints the effective configuration section by section
type dumper struct {
	out     io.Writer
	unknown []string
}

func (d dumper) dump(cfg, defaults *config.Config) {
	rule := strings.Repeat("─", 60)
	_, _ = fmt.Fprintf(d.out, "\n%s\neffective configuration (changed values in yellow)\n%s\n", rule, rule)

	d.section("server")
	d.field("bind_address", cfg.Server.BindAddress, defaults.Server.BindAddress)
	d.field("api_port", cfg.Server.APIPort, defaults.Server.APIPort)
	d.field("metrics_port", cfg.Server.MetricsPort, defaults.Server.MetricsPort)

	d.section("storage")
	d.field("type", cfg.Storage.Type, defaults.Storage.Type)

	d.section("storage.redis")
	r, dr := cfg.Storage.Redis, defaults.Storage.Redis
	d.field("host", r.Host, dr.Host)
	d.field("port", r.Port, dr.Port)
	d.field("password", redactPassword(r.Password), redactPassword(dr.Password))
	d.field("db", r.DB, dr.DB)
	d.field("pool_size", r.PoolSize, dr.PoolSize)
	d.field("min_idle_conns", r.MinIdleConns, dr.MinIdleConns)
	d.field("dial_timeout", r.DialTimeout, dr.DialTimeout)
	d.field("read_timeout", r.ReadTimeout, dr.ReadTimeout)
	d.field("write_timeout", r.WriteTimeout, dr.WriteTimeout)
	d.field("key_prefix", r.KeyPrefix, dr.KeyPrefix)

	d.section("logging")
	d.field("level", cfg.Logging.Level, defaults.Logging.Level)
	d.field("format", cfg.Logging.Format, defaults.Logging.Format)

	d.section("usage_tracking")
	d.field("abandon_after", cfg.Usage.AbandonAfter, defaults.Usage.AbandonAfter)
	d.field("sweep_interval", cfg.Usage.SweepInterval, defaults.Usage.SweepInterval)
	d.field("asset_name_cache_size", cfg.Usage.AssetNameCacheSize, defaults.Usage.AssetNameCacheSize)

	d.section("api")
	d.field("rate_limit", cfg.API.RateLimit, defaults.API.RateLimit)
	d.field("rate_limit_window", cfg.API.RateLimitWindow, defaults.API.RateLimitWindow)

	if len(d.unknown) > 0 {
		d.section("ignored")
		red := color.New(color.FgRed)
		for _, key := range d.unknown {
			_, _ = red.Fprintf(d.out, "  %s\n", key)
		}
	}
}

func (d dumper) section(name string) {
	_, _ = color.New(color.FgCyan, color.Bold).Fprintf(d.out, "\n[%s]\n", name)
}

func (d dumper) field(name string, value, defaultValue any) {
	if reflect.DeepEqual(value, defaultValue) {
		_, _ = fmt.Fprintf(d.out, "  %-22s %v\n", name, value)
		return
	}
	_, _ = color.New(color.FgYellow, color.Bold).Fprintf(d.out, "  %-22s %v (default %v)\n", name, value, defaultValue)
}

func redactPassword(password string) string {
	if password == "" {
		return ""
	}
	return "***REDACTED***"
}
