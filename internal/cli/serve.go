package cli

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/OldStager01/elastic-orchestrator/internal/logger"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the orchestrator, its API and the metrics endpoint",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		logger.Infof("Starting %s in %s mode", cfg.App.Name, cfg.App.Mode)

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		app, err := NewApp(ctx, cfg)
		if err != nil {
			return err
		}
		return app.Run(ctx)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
