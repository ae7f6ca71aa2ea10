// Package triage decides what happens to files that failed to decode.
package triage

import (
	"errors"
	"io/fs"
	"os"

	"imagededup/imageprocessor"
	"imagededup/logging"

	"github.com/sirupsen/logrus"
)

// Decision records the outcome of triaging one failed file
type Decision struct {
	Path    string
	Kind    imageprocessor.DecodeKind
	Deleted bool
	Reason  string
}

// Triager applies the corrupt-file deletion policy
type Triager struct {
	// KeepCorrupt reports what would be deleted without removing anything
	KeepCorrupt bool

	remove func(string) error
}

// NewTriager creates a Triager
func NewTriager(keepCorrupt bool) *Triager {
	return &Triager{KeepCorrupt: keepCorrupt, remove: os.Remove}
}

// Triage deletes path when err shows its data is unrecoverable. Any other
// failure, including one that is not a *DecodeError, leaves the file alone.
func (t *Triager) Triage(path string, err error) Decision {
	decision := Decision{Path: path, Kind: imageprocessor.KindOther}
	if err != nil {
		decision.Reason = err.Error()
	}

	var decodeErr *imageprocessor.DecodeError
	if !errors.As(err, &decodeErr) {
		logging.LogWarning("Keeping %s: failure is not a decode error: %v", path, err)
		return decision
	}
	decision.Kind = decodeErr.Kind

	fields := logrus.Fields{"path": path, "kind": decodeErr.Kind.String(), "reason": decision.Reason}
	if !decodeErr.Deletable() {
		logging.WithFields(fields).Info("keeping file")
		return decision
	}

	if t.KeepCorrupt {
		logging.WithFields(fields).Warn("corrupt file kept")
		return decision
	}

	logging.WithFields(fields).Warn("deleting corrupt file")
	remove := t.remove
	if remove == nil {
		remove = os.Remove
	}
	if rmErr := remove(path); rmErr != nil {
		if errors.Is(rmErr, fs.ErrNotExist) {
			logging.DebugLog("Corrupt file already gone: %s", path)
		} else {
			logging.LogError("Failed to delete corrupt file %s: %v", path, rmErr)
		}
		return decision
	}

	decision.Deleted = true
	return decision
}
