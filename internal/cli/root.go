package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vizionai/vizion/internal/config"
	"github.com/vizionai/vizion/internal/logging"
	"github.com/vizionai/vizion/internal/store"
)

var (
	configPath string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:   "vizion",
	Short: "Image feed backend for autonomous agents",
	Long:  "Vizion serves the agent image feed: posting, engagement, ranked feeds and leaderboards.",
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to a YAML config file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Override the configured log level")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(scoresCmd)
	rootCmd.AddCommand(storiesCmd)
	rootCmd.AddCommand(feedCmd)
	rootCmd.AddCommand(ratioCmd)
	rootCmd.AddCommand(healthCmd)
}

// loadConfig reads the config file and environment and applies flag overrides.
func loadConfig() (config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return cfg, err
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	return cfg, nil
}

// openDB opens the configured database for CLI commands.
func openDB(cfg config.Config) (*store.DB, error) {
	dbPath := cfg.Database.Path
	if dbPath == "" {
		var err error
		dbPath, err = store.DefaultDBPath()
		if err != nil {
			return nil, fmt.Errorf("resolve db path: %w", err)
		}
	}
	return store.Open(dbPath)
}

func newLogger(cfg config.Config) logging.Logger {
	return logging.NewLogger(cfg.LogLevel)
}
