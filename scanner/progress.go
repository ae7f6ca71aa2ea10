package scanner

import (
	"fmt"
	"io"
	"time"

	"imagededup/logging"
	"imagededup/types"
)

// NewProgressTracker starts a tracker that redraws the progress line on out
// every 500ms until Stop is called
func NewProgressTracker(totalFiles int, out io.Writer, verbose bool) *ProgressTracker {
	if out == nil {
		out = io.Discard
	}
	tracker := &ProgressTracker{
		ticker:     time.NewTicker(500 * time.Millisecond),
		done:       make(chan struct{}),
		totalFiles: totalFiles,
		verbose:    verbose,
		out:        out,
	}

	go tracker.displayProgress()

	return tracker
}

// displayProgress shows the progress periodically
func (p *ProgressTracker) displayProgress() {
	for {
		select {
		case <-p.done:
			return
		case <-p.ticker.C:
			p.mu.Lock()
			p.printLine()
			p.mu.Unlock()
		}
	}
}

func (p *ProgressTracker) printLine() {
	if p.errors > 0 {
		fmt.Fprintf(p.out, "\rProgress: %d/%d (Errors: %d)", p.processed, p.totalFiles, p.errors)
	} else {
		fmt.Fprintf(p.out, "\rProgress: %d/%d", p.processed, p.totalFiles)
	}
}

// Record counts one finished file
func (p *ProgressTracker) Record(rec types.ImageRecord) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.processed++
	if rec.Outcome == types.OutcomeDecodeFailed {
		p.errors++
		errMsg := ""
		if rec.Err != nil {
			errMsg = rec.Err.Error()
		}
		logging.LogImageProcessed(rec.Path, false, errMsg)
	} else {
		logging.LogImageProcessed(rec.Path, true, "")
	}

	if p.verbose {
		fmt.Fprintf(p.out, "\rProcessed %d/%d: %s\n", p.processed, p.totalFiles, rec.Path)
	}
}

// Counts returns the number of processed files and errors so far
func (p *ProgressTracker) Counts() (processed, errors int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.processed, p.errors
}

// Stop ends the progress display and prints the final line
func (p *ProgressTracker) Stop() {
	p.stopOnce.Do(func() {
		p.ticker.Stop()
		close(p.done)

		p.mu.Lock()
		defer p.mu.Unlock()
		p.printLine()
		fmt.Fprintln(p.out)
	})
}
