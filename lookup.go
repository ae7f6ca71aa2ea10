package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"imagededup/imageprocessor"
	"imagededup/logging"
)

func newLookupCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "lookup IMAGE",
		Short: "Report whether an image's fingerprint is already indexed",
		Long: `Fingerprint IMAGE the same way run does and look it up in the index.

The index keeps the path each fingerprint was first seen at. When that file
has since been migrated, pass --dest to report its current location.

Example:
  $ imagededup lookup --db ./images.db --dest /media/curated ~/Downloads/IMG_0042.jpg
  Fingerprint: a8:81c3e7ff7e3c1800
  Duplicate of: /media/curated/IMG_0042.jpg (indexed as /media/photos/2019/IMG_0042.jpg)`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if _, err := startLogging(cfg); err != nil {
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

			index, err := openExistingIndex(cfg.DatabasePath)
			if err != nil {
				return err
			}
			defer index.Close()

			fp, err := processor.Process(args[0])
			if err != nil {
				return err
			}

			path, found, err := index.Lookup(cmd.Context(), fp)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Fingerprint: %s\n", fp)
			if found {
				yellow := color.New(color.FgYellow).SprintFunc()
				switch current, ok := locateSurvivor(path, cfg.Destination); {
				case ok && current == path:
					fmt.Fprintf(out, "%s %s\n", yellow("Duplicate of:"), path)
				case ok:
					fmt.Fprintf(out, "%s %s (indexed as %s)\n", yellow("Duplicate of:"), current, path)
				default:
					fmt.Fprintf(out, "%s %s (no longer at the recorded path)\n", yellow("Duplicate of:"), path)
				}
			} else {
				green := color.New(color.FgGreen).SprintFunc()
				fmt.Fprintf(out, "%s\n", green("Not indexed"))
			}
			return nil
		},
	}

	cmd.Flags().String("dest", "", "Destination the survivors were migrated to")
	cmd.Flags().Int("hash-size", 0, "Mean-hash grid side; must match the size the index was built with (default 8)")
	cmd.Flags().String("decoder", "", "Decode backend: standard or opencv (default standard)")
	return cmd
}

// locateSurvivor returns where the file indexed at recorded is now: still at
// recorded, or moved into dest under its base name
func locateSurvivor(recorded, dest string) (string, bool) {
	if info, err := os.Stat(recorded); err == nil && info.Mode().IsRegular() {
		return recorded, true
	}
	if dest == "" {
		return "", false
	}
	moved := filepath.Join(dest, filepath.Base(recorded))
	if info, err := os.Stat(moved); err == nil && info.Mode().IsRegular() {
		return moved, true
	}
	return "", false
}
