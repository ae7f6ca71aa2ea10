// Package migration moves the survivors recorded in the dedup index into a
// single destination directory.
package migration

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"imagededup/logging"
	"imagededup/types"
)

// CollisionPolicy decides what happens when the destination already holds a
// file with the survivor's name.
type CollisionPolicy string

const (
	// CollisionRename keeps both files, suffixing the incoming one with _1, _2, ...
	CollisionRename CollisionPolicy = "rename"
	// CollisionOverwrite replaces the existing destination file
	CollisionOverwrite CollisionPolicy = "overwrite"
	// CollisionSkip leaves the survivor in place and records a failure
	CollisionSkip CollisionPolicy = "skip"
)

// maxRenameAttempts bounds the _N suffix search for CollisionRename
const maxRenameAttempts = 10000

// ErrDestinationTaken is reported when CollisionSkip refuses to replace a file
var ErrDestinationTaken = errors.New("destination file already exists")

// ParseCollisionPolicy validates a policy name
func ParseCollisionPolicy(s string) (CollisionPolicy, error) {
	switch p := CollisionPolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case CollisionRename, CollisionOverwrite, CollisionSkip:
		return p, nil
	case "":
		return CollisionRename, nil
	default:
		return "", fmt.Errorf("unknown collision policy %q (want rename, overwrite or skip)", s)
	}
}

// MoveError describes one survivor that could not be moved
type MoveError struct {
	Source string
	Target string
	Err    error
}

func (e *MoveError) Error() string {
	return fmt.Sprintf("move %s -> %s: %v", e.Source, e.Target, e.Err)
}

func (e *MoveError) Unwrap() error { return e.Err }

// Report summarizes a migration
type Report struct {
	Moved          int
	Renamed        int
	Missing        int
	AlreadyInPlace int
	Failures       []*MoveError
}

// Migrator relocates indexed files into Destination
type Migrator struct {
	Destination string
	Collision   CollisionPolicy

	rename func(oldpath, newpath string) error
}

// NewMigrator creates a Migrator with the given destination and collision policy
func NewMigrator(destination string, collision CollisionPolicy) *Migrator {
	if collision == "" {
		collision = CollisionRename
	}
	return &Migrator{
		Destination: destination,
		Collision:   collision,
		rename:      os.Rename,
	}
}

// Migrate moves every entry whose file still exists into the destination,
// keeping the base name. Per-file failures are logged and collected in the
// report; only a destination that cannot be created, or ctx being cancelled,
// is returned as an error.
func (m *Migrator) Migrate(ctx context.Context, entries []types.IndexEntry) (*Report, error) {
	report := &Report{}

	if err := os.MkdirAll(m.Destination, 0755); err != nil {
		return report, fmt.Errorf("create destination %s: %w", m.Destination, err)
	}
	destAbs, err := filepath.Abs(m.Destination)
	if err != nil {
		return report, fmt.Errorf("resolve destination %s: %w", m.Destination, err)
	}

	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		info, err := os.Stat(entry.Path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				report.Missing++
				logging.DebugLog("Survivor no longer exists, skipping: %s", entry.Path)
				continue
			}
			m.fail(report, &MoveError{Source: entry.Path, Err: err})
			continue
		}
		if !info.Mode().IsRegular() {
			m.fail(report, &MoveError{Source: entry.Path, Err: fmt.Errorf("not a regular file")})
			continue
		}

		srcAbs, err := filepath.Abs(entry.Path)
		if err == nil && filepath.Dir(srcAbs) == destAbs {
			report.AlreadyInPlace++
			continue
		}

		target, renamed, err := m.resolveTarget(filepath.Base(entry.Path))
		if err != nil {
			m.fail(report, &MoveError{Source: entry.Path, Target: target, Err: err})
			continue
		}

		if err := m.rename(entry.Path, target); err != nil {
			// Cross-device moves surface here as EXDEV; the file stays where it is.
			m.fail(report, &MoveError{Source: entry.Path, Target: target, Err: err})
			continue
		}

		report.Moved++
		if renamed {
			report.Renamed++
		}
		logging.DebugLog("Moved %s -> %s", entry.Path, target)
	}

	return report, nil
}

func (m *Migrator) fail(report *Report, moveErr *MoveError) {
	logging.LogError("Migration failed: %v", moveErr)
	report.Failures = append(report.Failures, moveErr)
}

// resolveTarget picks the destination path for name according to the
// collision policy. renamed is true when the name had to be changed.
func (m *Migrator) resolveTarget(name string) (target string, renamed bool, err error) {
	target = filepath.Join(m.Destination, name)

	exists, err := pathExists(target)
	if err != nil || !exists {
		return target, false, err
	}

	switch m.Collision {
	case CollisionOverwrite:
		logging.LogWarning("Overwriting existing destination file: %s", target)
		return target, false, nil
	case CollisionSkip:
		return target, false, ErrDestinationTaken
	}

	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	for i := 1; i <= maxRenameAttempts; i++ {
		candidate := filepath.Join(m.Destination, fmt.Sprintf("%s_%d%s", stem, i, ext))
		exists, err := pathExists(candidate)
		if err != nil {
			return candidate, false, err
		}
		if !exists {
			return candidate, true, nil
		}
	}
	return target, false, fmt.Errorf("no free name for %s after %d attempts", name, maxRenameAttempts)
}

func pathExists(path string) (bool, error) {
	_, err := os.Lstat(path)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, err
}
