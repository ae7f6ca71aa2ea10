package scanner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"imagededup/database"
	"imagededup/imageprocessor"
	"imagededup/logging"
	"imagededup/migration"
	"imagededup/triage"
	"imagededup/types"
)

// Scanner runs the dedup pipeline over one directory tree
type Scanner struct {
	opts      Options
	processor *imageprocessor.Processor
	index     *database.Index
	triager   *triage.Triager
	migrator  *migration.Migrator
}

// New creates a Scanner. A nil migrator stops the run once the index is
// committed and corrupt files are triaged.
func New(opts Options, processor *imageprocessor.Processor, index *database.Index, triager *triage.Triager, migrator *migration.Migrator) *Scanner {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.Progress == nil {
		opts.Progress = io.Discard
	}
	return &Scanner{
		opts:      opts,
		processor: processor,
		index:     index,
		triager:   triager,
		migrator:  migrator,
	}
}

// ProcessAll decodes and hashes every path on a pool of Options.Workers
// goroutines. Results flow over a channel to a single collector, which owns
// the returned Aggregate. When ctx is cancelled no new file is started; the
// files already finished are still returned along with ctx's error.
func (s *Scanner) ProcessAll(ctx context.Context, paths []string) (*Aggregate, error) {
	agg := &Aggregate{}
	tracker := NewProgressTracker(len(paths), s.opts.Progress, s.opts.Verbose)
	defer tracker.Stop()

	records := make(chan types.ImageRecord, s.opts.Workers)
	collected := make(chan struct{})
	go func() {
		defer close(collected)
		for rec := range records {
			agg.add(rec)
			tracker.Record(rec)
		}
	}()

	var g errgroup.Group
	g.SetLimit(s.opts.Workers)
	for _, path := range paths {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			records <- s.processFile(path)
			return nil
		})
	}
	g.Wait()
	close(records)
	<-collected

	return agg, ctx.Err()
}

func (s *Scanner) processFile(path string) types.ImageRecord {
	fp, err := s.processor.Process(path)
	if err != nil {
		return types.ImageRecord{Path: path, Outcome: types.OutcomeDecodeFailed, Err: err}
	}
	return types.ImageRecord{Path: path, Fingerprint: fp, Outcome: types.OutcomeHashed}
}

// Commit writes every hashed record to the index in one transaction. Records
// are applied in path order so the canonical path of a fingerprint does not
// depend on worker scheduling.
func (s *Scanner) Commit(ctx context.Context, hashed []types.ImageRecord) (inserted, duplicates int, err error) {
	ordered := slices.Clone(hashed)
	slices.SortFunc(ordered, func(a, b types.ImageRecord) int { return strings.Compare(a.Path, b.Path) })

	batch, err := s.index.BeginBatch(ctx)
	if err != nil {
		return 0, 0, err
	}
	defer batch.Rollback()

	for _, rec := range ordered {
		result, err := batch.TryInsert(ctx, rec.Fingerprint, rec.Path)
		if err != nil {
			return 0, 0, err
		}
		if result == types.AlreadyPresent {
			logging.DebugLog("Duplicate: %s (fingerprint %s)", rec.Path, rec.Fingerprint)
		}
	}

	if err := batch.Commit(); err != nil {
		return 0, 0, err
	}
	return batch.Inserted, batch.Duplicates, nil
}

// Run discovers, processes, commits, triages and finally migrates. A storage
// failure aborts the run. When ctx is cancelled during processing the results
// gathered so far are committed, triage and migration are skipped, and ctx's
// error is returned.
func (s *Scanner) Run(ctx context.Context) (*Summary, error) {
	startTime := time.Now()
	summary := &Summary{}
	defer func() { summary.Elapsed = time.Since(startTime) }()

	paths, err := Discover(s.opts.Root, s.opts.Extensions)
	if err != nil {
		return summary, err
	}
	summary.Discovered = len(paths)
	printStartupInfo(s.opts.Progress, CountFormats(paths), s.opts)

	agg, procErr := s.ProcessAll(ctx, paths)
	summary.Processed = agg.Processed()
	summary.Errors = len(agg.Failed)

	// Finished work is kept even when interrupted.
	inserted, duplicates, err := s.Commit(context.WithoutCancel(ctx), agg.Hashed)
	if err != nil {
		return summary, fmt.Errorf("commit index: %w", err)
	}
	summary.Inserted = inserted
	summary.Duplicates = duplicates
	logging.LogInfo("Index committed: %d new, %d duplicates", inserted, duplicates)

	if procErr != nil {
		summary.Interrupted = true
		logging.LogWarning("Run interrupted after %d/%d files; skipping triage and migration", summary.Processed, summary.Discovered)
		return summary, procErr
	}

	for _, rec := range agg.Failed {
		decision := s.triager.Triage(rec.Path, rec.Err)
		if decision.Deleted {
			summary.Deleted++
		} else if decision.Kind.Deletable() {
			summary.KeptCorrupt++
		}
	}

	if s.migrator == nil {
		return summary, nil
	}

	report, err := MigrateSurvivors(ctx, s.index, s.migrator)
	if report != nil {
		summary.Migrated = true
		summary.Moved = report.Moved
		summary.Renamed = report.Renamed
		summary.MissingSurvivors = report.Missing
		summary.MoveFailures = len(report.Failures)
	}
	if err != nil {
		if errors.Is(err, context.Canceled) {
			summary.Interrupted = true
		}
		return summary, err
	}
	return summary, nil
}

// MigrateSurvivors moves every file recorded in the index into the migrator's
// destination. It only reads the index, so it must run after the commit.
func MigrateSurvivors(ctx context.Context, index *database.Index, migrator *migration.Migrator) (*migration.Report, error) {
	entries, err := index.AllEntries(ctx)
	if err != nil {
		return nil, err
	}
	logging.LogInfo("Migrating %d indexed files to %s", len(entries), migrator.Destination)

	report, err := migrator.Migrate(ctx, entries)
	if err != nil {
		return report, fmt.Errorf("migrate: %w", err)
	}
	return report, nil
}

// printStartupInfo displays information about the scan before starting
func printStartupInfo(w io.Writer, stats FileStats, opts Options) {
	fmt.Fprintf(w, "Starting image indexing...\nTotal image files to process: %d\n", stats.Total)

	formats := make([]string, 0, len(stats.ByFormat))
	for format, n := range stats.ByFormat {
		formats = append(formats, fmt.Sprintf("%s: %d", format, n))
	}
	slices.Sort(formats)
	if len(formats) > 0 {
		fmt.Fprintf(w, "By format: %s\n", strings.Join(formats, ", "))
	}

	logging.DebugLog("Found %d image files under %s (workers: %d, extensions: %v)",
		stats.Total, opts.Root, opts.Workers, opts.Extensions)
}
