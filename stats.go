package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"imagededup/database"
	"imagededup/logging"
)

func newStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show how many fingerprints the index holds",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if _, err := startLogging(cfg); err != nil {
				return err
			}
			defer logging.CloseLogger()

			index, err := openExistingIndex(cfg.DatabasePath)
			if err != nil {
				return err
			}
			defer index.Close()

			stats, err := index.Stats(cmd.Context())
			if err != nil {
				return err
			}

			bold := color.New(color.Bold).SprintFunc()
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Database: %s\n", index.Path())
			fmt.Fprintf(out, "- Indexed files: %s\n", bold(stats.Entries))
			fmt.Fprintf(out, "- Unique fingerprints: %s\n", bold(stats.UniqueFingerprints))
			return nil
		},
	}
}

// openExistingIndex opens the index for read-mostly commands, refusing to
// create a new empty database
func openExistingIndex(path string) (*database.Index, error) {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("database does not exist: %s. Run the run command first", path)
		}
		return nil, fmt.Errorf("cannot access database %s: %w", path, err)
	}
	index, err := database.OpenWithRetry(path, openAttempts, openRetryDelay)
	if err != nil {
		return nil, fmt.Errorf("open index: %w", err)
	}
	return index, nil
}
