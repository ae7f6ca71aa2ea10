package main

import (
	"fmt"
	"os"
	"runtime"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"imagededup/config"
	"imagededup/logging"
	"imagededup/signalhandler"
	"imagededup/utils"
)

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "imagededup",
		Short: "Deduplicate an image collection by perceptual fingerprint",
		Long: `imagededup walks a directory tree, fingerprints every image with a mean hash,
records the first file seen for each fingerprint in a sqlite index, deletes
files whose data is unrecoverable, and moves the surviving files into a
destination directory.

Example:
  $ imagededup run --root /media/photos --dest /media/curated --ext jpg,jpeg
  $ imagededup stats --db ./images.db`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := rootCmd.PersistentFlags()
	flags.String("config", "", "YAML config file")
	flags.String("database", "", "Path to the index database (default: images.db next to the executable)")
	flags.String("db", "", "Alias for --database")
	flags.Bool("debug", false, "Enable debug logging")
	flags.String("logfile", "", "Also write logs to this file")
	flags.Bool("verbose", false, "Print every processed file")

	rootCmd.AddCommand(newRunCmd(), newMigrateCmd(), newStatsCmd(), newLookupCmd())
	return rootCmd
}

func main() {
	runtime.GOMAXPROCS(signalhandler.GetOptimalProcs())

	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig layers defaults, the --config file, the environment and finally
// explicitly set flags
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	cfg := config.Default()

	if path, _ := cmd.Flags().GetString("config"); path != "" {
		if err := config.LoadFile(path, &cfg); err != nil {
			return cfg, err
		}
	}
	if err := config.ApplyEnv(&cfg); err != nil {
		return cfg, err
	}

	flags := cmd.Flags()
	if flags.Changed("database") {
		cfg.DatabasePath, _ = flags.GetString("database")
	}
	if flags.Changed("db") {
		cfg.DatabasePath, _ = flags.GetString("db")
	}
	if flags.Changed("debug") {
		cfg.Debug, _ = flags.GetBool("debug")
	}
	if flags.Changed("logfile") {
		cfg.LogFile, _ = flags.GetString("logfile")
	}
	if flags.Changed("verbose") {
		cfg.Verbose, _ = flags.GetBool("verbose")
	}

	// Flags below only exist on some subcommands.
	if f := flags.Lookup("root"); f != nil && f.Changed {
		cfg.Root = f.Value.String()
	}
	if f := flags.Lookup("dest"); f != nil && f.Changed {
		cfg.Destination = f.Value.String()
	}
	if f := flags.Lookup("ext"); f != nil && f.Changed {
		cfg.Extensions = utils.ParseExtensions(f.Value.String())
	}
	if f := flags.Lookup("collision"); f != nil && f.Changed {
		cfg.Collision = f.Value.String()
	}
	if f := flags.Lookup("decoder"); f != nil && f.Changed {
		cfg.Decoder = f.Value.String()
	}
	if flags.Lookup("workers") != nil && flags.Changed("workers") {
		cfg.Workers, _ = flags.GetInt("workers")
	}
	if flags.Lookup("hash-size") != nil && flags.Changed("hash-size") {
		cfg.HashSize, _ = flags.GetInt("hash-size")
	}
	if flags.Lookup("keep-corrupt") != nil && flags.Changed("keep-corrupt") {
		cfg.KeepCorrupt, _ = flags.GetBool("keep-corrupt")
	}
	if flags.Lookup("no-migrate") != nil && flags.Changed("no-migrate") {
		cfg.SkipMigration, _ = flags.GetBool("no-migrate")
	}

	return cfg, nil
}

// startLogging configures the logger for one command invocation and tags it
// with a fresh run id
func startLogging(cfg config.Config) (string, error) {
	if err := logging.SetupLogger(cfg.LogFile, cfg.Debug); err != nil {
		return "", err
	}
	runID := uuid.NewString()
	logging.WithRun(runID)
	if cfg.LogFile != "" {
		logging.DebugLog("Logging to: %s", cfg.LogFile)
	}
	return runID, nil
}
