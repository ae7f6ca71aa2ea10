package triage

import (
	"bytes"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"imagededup/imageprocessor"
	"imagededup/logging"
)

func corruptFile(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "corrupt.jpg")
	require.NoError(t, os.WriteFile(path, []byte{0xFF, 0xD8, 0xFF, 0xE0}, 0644))
	return path
}

func decodeErr(path string, kind imageprocessor.DecodeKind) error {
	return &imageprocessor.DecodeError{Path: path, Kind: kind, Err: io.ErrUnexpectedEOF}
}

func TestTriageDeletesUnrecoverableFiles(t *testing.T) {
	for _, kind := range []imageprocessor.DecodeKind{
		imageprocessor.KindTruncated,
		imageprocessor.KindInvalidSignature,
		imageprocessor.KindMalformed,
	} {
		t.Run(kind.String(), func(t *testing.T) {
			path := corruptFile(t)

			d := NewTriager(false).Triage(path, decodeErr(path, kind))

			assert.True(t, d.Deleted)
			assert.Equal(t, kind, d.Kind)
			assert.NotEmpty(t, d.Reason)
			assert.NoFileExists(t, path)
		})
	}
}

func TestTriageKeepsEnvironmentalFailures(t *testing.T) {
	for _, kind := range []imageprocessor.DecodeKind{
		imageprocessor.KindUnreadable,
		imageprocessor.KindUnsupported,
		imageprocessor.KindOther,
	} {
		t.Run(kind.String(), func(t *testing.T) {
			path := corruptFile(t)

			d := NewTriager(false).Triage(path, decodeErr(path, kind))

			assert.False(t, d.Deleted)
			assert.FileExists(t, path)
		})
	}
}

func TestTriageKeepsFilesWithoutDecodeError(t *testing.T) {
	path := corruptFile(t)

	d := NewTriager(false).Triage(path, errors.New("database is locked"))
	assert.False(t, d.Deleted)
	assert.Equal(t, imageprocessor.KindOther, d.Kind)
	assert.FileExists(t, path)

	d = NewTriager(false).Triage(path, nil)
	assert.False(t, d.Deleted)
	assert.FileExists(t, path)
}

func TestTriageKeepCorrupt(t *testing.T) {
	path := corruptFile(t)

	d := NewTriager(true).Triage(path, decodeErr(path, imageprocessor.KindTruncated))

	assert.False(t, d.Deleted)
	assert.Equal(t, imageprocessor.KindTruncated, d.Kind)
	assert.FileExists(t, path)
}

func TestTriageToleratesRemovalFailure(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "already-gone.jpg")
	d := NewTriager(false).Triage(missing, decodeErr(missing, imageprocessor.KindTruncated))
	assert.False(t, d.Deleted)

	path := corruptFile(t)
	tr := NewTriager(false)
	tr.remove = func(string) error { return &fs.PathError{Op: "remove", Path: path, Err: fs.ErrPermission} }
	d = tr.Triage(path, decodeErr(path, imageprocessor.KindTruncated))
	assert.False(t, d.Deleted)
	assert.FileExists(t, path)
}

func TestTriageLogsBeforeRemoving(t *testing.T) {
	var buf bytes.Buffer
	logging.SetOutput(&buf)
	t.Cleanup(func() { logging.SetOutput(os.Stderr) })

	path := corruptFile(t)
	tr := NewTriager(false)
	tr.remove = func(p string) error {
		assert.Contains(t, buf.String(), p, "path is logged before removal")
		assert.Contains(t, buf.String(), "truncated")
		return os.Remove(p)
	}

	d := tr.Triage(path, decodeErr(path, imageprocessor.KindTruncated))
	assert.True(t, d.Deleted)
}
