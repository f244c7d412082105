package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sstent/stravasync/internal/config"
	"github.com/sstent/stravasync/internal/logging"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "stravasync",
	Short: "StravaSync keeps a local snapshot of Strava activities, stats and photos",
	Long: `StravaSync is a CLI application that:
1. Refreshes its OAuth2 access token
2. Fetches recent activities and enriches them with location and gear
3. Aggregates run, ride and swim totals
4. Keeps a throttled cache of activity photos in SQLite
5. Publishes each snapshot and reacts to webhook events (serve)`,
	SilenceUsage: true,
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "",
		"config file (default ./stravasync.yaml or /etc/stravasync/stravasync.yaml)")
}

// loadConfig reads configuration and initializes logging from it.
func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadConfig(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	logging.Init(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})
	return cfg, nil
}
