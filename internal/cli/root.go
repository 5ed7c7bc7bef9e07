// Package cli holds the orchestrator's cobra commands.
package cli

import (
	"fmt"

	"github.com/OldStager01/elastic-orchestrator/internal/logger"
	"github.com/OldStager01/elastic-orchestrator/pkg/config"
	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "orchestrator",
	Short: "Elastic service orchestrator",
	Long: `Deploys operational strings and keeps each dynamic service's instance
count inside its SLA bounds, scaling on threshold breaches with dampening.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (default ./config.yaml, ./configs/config.yaml)")
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// loadConfig reads and validates the configuration and applies the log
// settings.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	logger.Setup(cfg.App.LogLevel, cfg.App.Mode)
	return cfg, nil
}
