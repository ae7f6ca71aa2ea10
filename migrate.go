package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"imagededup/database"
	"imagededup/logging"
	"imagededup/migration"
	"imagededup/scanner"
	"imagededup/signalhandler"
)

func newMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Move the files recorded in an existing index into --dest",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if err := cfg.ValidateMigration(); err != nil {
				return err
			}
			if _, err := startLogging(cfg); err != nil {
				return err
			}
			defer logging.CloseLogger()

			index, err := database.OpenWithRetry(cfg.DatabasePath, openAttempts, openRetryDelay)
			if err != nil {
				return fmt.Errorf("open index: %w", err)
			}
			defer index.Close()

			policy, err := migration.ParseCollisionPolicy(cfg.Collision)
			if err != nil {
				return err
			}

			ctx, stop := signalhandler.NotifyContext(cmd.Context())
			defer stop()

			summary := &scanner.Summary{}
			report, err := scanner.MigrateSurvivors(ctx, index, migration.NewMigrator(cfg.Destination, policy))
			if report != nil {
				summary.Migrated = true
				summary.Moved = report.Moved
				summary.Renamed = report.Renamed
				summary.MissingSurvivors = report.Missing
				summary.MoveFailures = len(report.Failures)
			}
			printMigration(cmd.OutOrStdout(), summary, cfg)
			return err
		},
	}

	cmd.Flags().String("dest", "", "Directory that receives the survivors")
	cmd.Flags().String("collision", "", "Name collision in --dest: rename, overwrite or skip (default rename)")
	return cmd
}
