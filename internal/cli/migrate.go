package cli

import (
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/OldStager01/elastic-orchestrator/internal/logger"
	"github.com/OldStager01/elastic-orchestrator/pkg/database"
)

var (
	migrateFile  string
	migrateCheck bool
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply the event store schema",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if !cfg.Database.Enabled {
			return errors.New("database is disabled in config")
		}

		ctx := cmd.Context()
		db, err := database.Connect(ctx, cfg.Database.ToDBConfig())
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		defer db.Close()

		if logger.Level() >= logrus.DebugLevel {
			if version, err := db.ServerVersion(ctx); err == nil {
				logger.WithField("version", version).Debug("Connected")
			}
		}

		out := cmd.OutOrStdout()
		switch {
		case migrateCheck:
		case migrateFile != "":
			if err := database.NewMigrator(db).RunFile(ctx, migrateFile); err != nil {
				return err
			}
			fmt.Fprintf(out, "applied %s\n", migrateFile)
			return nil
		default:
			if err := db.Migrate(ctx, cfg.Database.MigrationTimeout); err != nil {
				return err
			}
		}

		if err := db.CheckSchema(ctx); err != nil {
			return err
		}
		fmt.Fprintf(out, "event store schema ok (%d tables)\n", len(database.RequiredTables))
		return nil
	},
}

func init() {
	migrateCmd.Flags().StringVar(&migrateFile, "file", "", "apply only this embedded migration")
	migrateCmd.Flags().BoolVar(&migrateCheck, "check", false, "only verify the schema, apply nothing")
	rootCmd.AddCommand(migrateCmd)
}
