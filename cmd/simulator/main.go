package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/OldStager01/elastic-orchestrator/internal/logger"
	"github.com/OldStager01/elastic-orchestrator/internal/simulator"
	"github.com/spf13/cobra"
)

var (
	port       int
	logLevel   string
	autoCreate bool
	seed       int64
	base       float64
	variance   float64
)

var rootCmd = &cobra.Command{
	Use:          "simulator",
	Short:        "Serve synthetic service metrics for the orchestrator's http collector",
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		logger.Setup(logLevel, "development")
		logger.Info("Starting metrics simulator")

		sim := simulator.New(simulator.Config{
			Port:       port,
			AutoCreate: autoCreate,
			Defaults:   simulator.MetricConfig{Base: base, Variance: variance, Min: 0, Max: 100},
			Seed:       seed,
		})

		if err := sim.Start(); err != nil {
			return fmt.Errorf("failed to start simulator: %w", err)
		}

		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		<-sigChan

		logger.Info("Shutting down simulator")
		return sim.Stop()
	},
}

func init() {
	rootCmd.Flags().IntVar(&port, "port", 9000, "simulator server port")
	rootCmd.Flags().StringVar(&logLevel, "log-level", "info", "log level")
	rootCmd.Flags().BoolVar(&autoCreate, "auto-create", true, "create unknown metrics on first read")
	rootCmd.Flags().Int64Var(&seed, "seed", 0, "random seed, 0 for time-based")
	rootCmd.Flags().Float64Var(&base, "base", 50, "base value for auto-created metrics")
	rootCmd.Flags().Float64Var(&variance, "variance", 10, "variance for auto-created metrics")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
