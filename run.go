package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"imagededup/config"
	"imagededup/database"
	"imagededup/imageprocessor"
	"imagededup/logging"
	"imagededup/migration"
	"imagededup/scanner"
	"imagededup/signalhandler"
	"imagededup/triage"
)

const openAttempts = 3

var openRetryDelay = time.Second

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Index, triage and migrate an image tree",
		Long: `Run the full pipeline over --root:

1. Discover files with the configured extensions
2. Decode and fingerprint them on a pool of workers
3. Commit every fingerprint to the index in one transaction (first path wins)
4. Delete files whose data is truncated or not an image at all
5. Move every indexed file that still exists into --dest`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			return runPipeline(cmd, cfg)
		},
	}

	flags := cmd.Flags()
	flags.String("root", "", "Directory tree to scan")
	flags.String("dest", "", "Directory that receives the survivors")
	flags.String("ext", "", "Comma-separated extensions to include (default jpg,jpeg)")
	flags.Int("workers", 0, "Decode/hash workers (default: number of CPUs, 1 = serial)")
	flags.Int("hash-size", 0, "Mean-hash grid side, a multiple of 8 (default 8)")
	flags.String("collision", "", "Name collision in --dest: rename, overwrite or skip (default rename)")
	flags.String("decoder", "", "Decode backend: standard or opencv (default standard)")
	flags.Bool("keep-corrupt", false, "Report corrupt files instead of deleting them")
	flags.Bool("no-migrate", false, "Stop after indexing and triage")
	return cmd
}

func runPipeline(cmd *cobra.Command, cfg config.Config) error {
	runID, err := startLogging(cfg)
	if err != nil {
		return err
	}
	defer logging.CloseLogger()

	backend, err := imageprocessor.ParseBackend(cfg.Decoder)
	if err != nil {
		return err
	}
	processor, err := imageprocessor.NewProcessor(backend, cfg.HashSize)
	if err != nil {
		return err
	}

	index, err := database.OpenWithRetry(cfg.DatabasePath, openAttempts, openRetryDelay)
	if err != nil {
		return fmt.Errorf("open index: %w", err)
	}
	defer index.Close()

	var migrator *migration.Migrator
	if !cfg.SkipMigration {
		policy, err := migration.ParseCollisionPolicy(cfg.Collision)
		if err != nil {
			return err
		}
		migrator = migration.NewMigrator(cfg.Destination, policy)
	}

	logging.LogInfo("Run %s: root=%s database=%s workers=%d decoder=%s", runID, cfg.Root, cfg.DatabasePath, cfg.Workers, backend)

	ctx, stop := signalhandler.NotifyContext(cmd.Context())
	defer stop()

	s := scanner.New(scanner.Options{
		Root:       cfg.Root,
		Extensions: cfg.Extensions,
		Workers:    cfg.Workers,
		Verbose:    cfg.Verbose,
		Progress:   cmd.OutOrStdout(),
	}, processor, index, triage.NewTriager(cfg.KeepCorrupt), migrator)

	summary, runErr := s.Run(ctx)
	printSummary(cmd.OutOrStdout(), summary, cfg)
	return runErr
}
