package scanner

import (
	"io"
	"sync"
	"time"

	"imagededup/imageprocessor"
	"imagededup/types"
)

// Options defines the options for a dedup run
type Options struct {
	Root       string
	Extensions []string
	Workers    int
	Verbose    bool

	// Progress receives the running progress line; nil discards it
	Progress io.Writer
}

// FileStats counts discovered candidates per format
type FileStats struct {
	Total    int
	ByFormat map[imageprocessor.FormatType]int
}

// Aggregate holds every per-file outcome of the parallel phase
type Aggregate struct {
	Hashed []types.ImageRecord
	Failed []types.ImageRecord
}

// Processed returns how many files finished, successfully or not
func (a *Aggregate) Processed() int {
	return len(a.Hashed) + len(a.Failed)
}

func (a *Aggregate) add(rec types.ImageRecord) {
	if rec.Outcome == types.OutcomeHashed {
		a.Hashed = append(a.Hashed, rec)
	} else {
		a.Failed = append(a.Failed, rec)
	}
}

// Summary reports the end-of-run statistics
type Summary struct {
	Discovered int
	Processed  int
	Errors     int

	Inserted   int
	Duplicates int

	Deleted     int
	KeptCorrupt int

	Moved            int
	Renamed          int
	MissingSurvivors int
	MoveFailures     int
	Migrated         bool

	Interrupted bool
	Elapsed     time.Duration
}

// ProgressTracker tracks progress of the scan operation
type ProgressTracker struct {
	processed  int
	errors     int
	totalFiles int
	verbose    bool
	out        io.Writer
	ticker     *time.Ticker
	done       chan struct{}
	stopOnce   sync.Once
	mu         sync.Mutex
}
