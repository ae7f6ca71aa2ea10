package main

import (
	"fmt"
	"io"

	"github.com/fatih/color"

	"imagededup/config"
	"imagededup/scanner"
	"imagededup/utils"
)

// printSummary displays statistics after a run
func printSummary(w io.Writer, s *scanner.Summary, cfg config.Config) {
	if s == nil {
		return
	}
	red := color.New(color.FgRed).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()
	green := color.New(color.FgGreen).SprintFunc()

	if s.Interrupted {
		fmt.Fprintf(w, "\n%s\n", yellow("Run interrupted; finished files were committed."))
	} else {
		fmt.Fprintf(w, "\n%s\n", green("Indexing complete."))
	}
	fmt.Fprintf(w, "Processed %d/%d images in %s.\n", s.Processed, s.Discovered, utils.FormatDuration(s.Elapsed))
	fmt.Fprintf(w, "Database: %s\n", cfg.DatabasePath)

	fmt.Fprintf(w, "\nSummary:\n")
	fmt.Fprintf(w, "- Total processed: %d\n", s.Processed)
	if s.Errors > 0 {
		fmt.Fprintf(w, "- Total errors: %s\n", red(s.Errors))
	} else {
		fmt.Fprintf(w, "- Total errors: %d\n", s.Errors)
	}
	fmt.Fprintf(w, "- New fingerprints: %d\n", s.Inserted)
	fmt.Fprintf(w, "- Duplicates: %d\n", s.Duplicates)
	fmt.Fprintf(w, "- Corrupt files deleted: %d\n", s.Deleted)
	if s.KeptCorrupt > 0 {
		fmt.Fprintf(w, "- Corrupt files kept: %s\n", yellow(s.KeptCorrupt))
	}

	printMigration(w, s, cfg)

	if s.Errors > 0 || s.MoveFailures > 0 {
		fmt.Fprintln(w, "Check the log for details.")
	}
}

// printMigration displays the survivor migration part of a summary
func printMigration(w io.Writer, s *scanner.Summary, cfg config.Config) {
	if !s.Migrated {
		return
	}
	fmt.Fprintf(w, "- Moved to %s: %d", cfg.Destination, s.Moved)
	if s.Renamed > 0 {
		fmt.Fprintf(w, " (%d renamed)", s.Renamed)
	}
	fmt.Fprintln(w)
	if s.MissingSurvivors > 0 {
		fmt.Fprintf(w, "- Indexed files no longer on disk: %d\n", s.MissingSurvivors)
	}
	if s.MoveFailures > 0 {
		fmt.Fprintf(w, "- Move failures: %s\n", color.New(color.FgRed).Sprint(s.MoveFailures))
	}
}
