package scanner

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/jpeg"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"imagededup/database"
	"imagededup/imageprocessor"
	"imagededup/migration"
	"imagededup/triage"
	"imagededup/types"
)

func pattern(w, h, seed int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			v := uint8(((x/(8+seed))+(y/(8+seed)))%2) * 255
			if seed%2 == 1 {
				v = uint8(x * 255 / (w - 1))
			}
			img.Set(x, y, color.RGBA{R: v, G: v, B: uint8(seed * 40), A: 255})
		}
	}
	return img
}

func jpegBytes(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90}))
	return buf.Bytes()
}

func writeFile(t *testing.T, path string, data []byte) string {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, data, 0644))
	return path
}

type fixture struct {
	root  string
	dest  string
	index *database.Index
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	index, err := database.Open(filepath.Join(t.TempDir(), "images.db"))
	require.NoError(t, err)
	t.Cleanup(func() { index.Close() })
	return &fixture{
		root:  t.TempDir(),
		dest:  filepath.Join(t.TempDir(), "survivors"),
		index: index,
	}
}

func (f *fixture) scanner(t *testing.T, workers int, migrate bool) *Scanner {
	t.Helper()
	processor, err := imageprocessor.NewProcessor(imageprocessor.BackendStandard, 8)
	require.NoError(t, err)

	var migrator *migration.Migrator
	if migrate {
		migrator = migration.NewMigrator(f.dest, migration.CollisionRename)
	}
	return New(Options{
		Root:       f.root,
		Extensions: []string{"jpg", "jpeg"},
		Workers:    workers,
	}, processor, f.index, triage.NewTriager(false), migrator)
}

func (f *fixture) entries(t *testing.T) []types.IndexEntry {
	t.Helper()
	entries, err := f.index.AllEntries(context.Background())
	require.NoError(t, err)
	return entries
}

func TestDiscoverFiltersByExtension(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a.jpg"), []byte("x"))
	writeFile(t, filepath.Join(root, "nested", "deeper", "B.JPEG"), []byte("x"))
	writeFile(t, filepath.Join(root, "c.txt"), []byte("x"))
	writeFile(t, filepath.Join(root, "d.png"), []byte("x"))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "dir.jpg"), 0755))
	require.NoError(t, os.Symlink(filepath.Join(root, "missing.jpg"), filepath.Join(root, "broken.jpg")))
	// Links are not followed, even to a valid image.
	require.NoError(t, os.Symlink(filepath.Join(root, "a.jpg"), filepath.Join(root, "link.jpg")))

	paths, err := Discover(root, []string{"jpg", ".jpeg"})
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{
		filepath.Join(root, "a.jpg"),
		filepath.Join(root, "nested", "deeper", "B.JPEG"),
	}, paths)
	for _, p := range paths {
		assert.True(t, filepath.IsAbs(p))
	}
}

func TestDiscoverSkipsUnreadableDirectories(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("permission bits are not enforced for root")
	}
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "ok.jpg"), []byte("x"))
	locked := filepath.Join(root, "locked")
	writeFile(t, filepath.Join(locked, "hidden.jpg"), []byte("x"))
	require.NoError(t, os.Chmod(locked, 0))
	t.Cleanup(func() { os.Chmod(locked, 0755) })

	paths, err := Discover(root, []string{"jpg"})
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(root, "ok.jpg")}, paths)
}

func TestDiscoverMissingRoot(t *testing.T) {
	_, err := Discover(filepath.Join(t.TempDir(), "nope"), []string{"jpg"})
	assert.Error(t, err)
}

func TestRunDuplicatePairAndIgnoredText(t *testing.T) {
	f := newFixture(t)
	data := jpegBytes(t, pattern(96, 64, 0))
	a := writeFile(t, filepath.Join(f.root, "a.jpg"), data)
	b := writeFile(t, filepath.Join(f.root, "b.jpg"), data)
	c := writeFile(t, filepath.Join(f.root, "c.txt"), []byte("notes"))

	summary, err := f.scanner(t, 4, true).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, summary.Discovered)
	assert.Equal(t, 2, summary.Processed)
	assert.Equal(t, 0, summary.Errors)
	assert.Equal(t, 1, summary.Inserted)
	assert.Equal(t, 1, summary.Duplicates)
	assert.Equal(t, 1, summary.Moved)

	entries := f.entries(t)
	require.Len(t, entries, 1)
	assert.Equal(t, a, entries[0].Path, "path order decides the canonical file")

	assert.FileExists(t, filepath.Join(f.dest, "a.jpg"))
	assert.NoFileExists(t, a)
	assert.FileExists(t, b, "the duplicate stays where it was")
	assert.FileExists(t, c)
}

func TestRunDeletesTruncatedFile(t *testing.T) {
	f := newFixture(t)
	data := jpegBytes(t, pattern(256, 256, 1))
	corrupt := writeFile(t, filepath.Join(f.root, "corrupt.jpg"), data[:len(data)/2])

	summary, err := f.scanner(t, 2, true).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Processed)
	assert.Equal(t, 1, summary.Errors)
	assert.Equal(t, 1, summary.Deleted)
	assert.Equal(t, 0, summary.Inserted)
	assert.Empty(t, f.entries(t))
	assert.NoFileExists(t, corrupt)
}

func TestRunNeverDeletesHashedFiles(t *testing.T) {
	f := newFixture(t)
	data := jpegBytes(t, pattern(96, 64, 2))
	keep := writeFile(t, filepath.Join(f.root, "x", "keep.jpg"), data)
	dup := writeFile(t, filepath.Join(f.root, "y", "dup.jpg"), data)
	writeFile(t, filepath.Join(f.root, "z", "junk.jpg"), []byte("not an image"))

	summary, err := f.scanner(t, 3, false).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3, summary.Processed)
	assert.Equal(t, 1, summary.Errors)
	assert.Equal(t, 1, summary.Deleted)
	assert.False(t, summary.Migrated)
	assert.FileExists(t, keep)
	assert.FileExists(t, dup)
}

func TestRunIsIdempotent(t *testing.T) {
	f := newFixture(t)
	writeFile(t, filepath.Join(f.root, "one.jpg"), jpegBytes(t, pattern(96, 64, 0)))
	writeFile(t, filepath.Join(f.root, "two.jpg"), jpegBytes(t, pattern(96, 64, 1)))
	writeFile(t, filepath.Join(f.root, "three.jpg"), jpegBytes(t, pattern(96, 64, 3)))

	first, err := f.scanner(t, 2, false).Run(context.Background())
	require.NoError(t, err)
	rows := len(f.entries(t))
	assert.Equal(t, rows, first.Inserted)
	assert.Positive(t, rows)

	second, err := f.scanner(t, 2, false).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, second.Inserted)
	assert.Equal(t, 3, second.Duplicates)
	assert.Len(t, f.entries(t), rows)
}

func TestSerialAndParallelAgree(t *testing.T) {
	var images [][]byte
	for seed := 0; seed < 4; seed++ {
		images = append(images, jpegBytes(t, pattern(96, 64, seed)))
	}

	run := func(workers int) []types.IndexEntry {
		f := newFixture(t)
		for i := 0; i < 12; i++ {
			writeFile(t, filepath.Join(f.root, "d"+string(rune('a'+i%3)), "img"+string(rune('a'+i))+".jpg"), images[i%len(images)])
		}
		summary, err := f.scanner(t, workers, false).Run(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 12, summary.Processed)
		assert.Equal(t, 12, summary.Inserted+summary.Duplicates)
		return f.entries(t)
	}

	serial := run(1)
	parallel := run(8)

	require.Len(t, parallel, len(serial))
	for i := range serial {
		assert.Equal(t, serial[i].Fingerprint, parallel[i].Fingerprint)
		assert.Equal(t, filepath.Base(serial[i].Path), filepath.Base(parallel[i].Path))
	}
}

func TestProcessAllCountsEveryFile(t *testing.T) {
	f := newFixture(t)
	var paths []string
	for i := 0; i < 20; i++ {
		name := filepath.Join(f.root, string(rune('a'+i))+".jpg")
		if i%5 == 0 {
			paths = append(paths, writeFile(t, name, []byte("broken")))
		} else {
			paths = append(paths, writeFile(t, name, jpegBytes(t, pattern(32, 32, i%4))))
		}
	}

	agg, err := f.scanner(t, 6, false).ProcessAll(context.Background(), paths)
	require.NoError(t, err)
	assert.Equal(t, 20, agg.Processed())
	assert.Len(t, agg.Failed, 4)
	for _, rec := range agg.Failed {
		assert.Equal(t, types.OutcomeDecodeFailed, rec.Outcome)
		assert.Empty(t, rec.Fingerprint)
		assert.Error(t, rec.Err)
	}
	for _, rec := range agg.Hashed {
		assert.NotEmpty(t, rec.Fingerprint)
	}
}

func TestRunInterruptedCommitsFinishedWork(t *testing.T) {
	f := newFixture(t)
	writeFile(t, filepath.Join(f.root, "a.jpg"), jpegBytes(t, pattern(64, 64, 0)))
	data := jpegBytes(t, pattern(64, 64, 1))
	corrupt := writeFile(t, filepath.Join(f.root, "b.jpg"), data[:len(data)/2])

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	summary, err := f.scanner(t, 1, true).Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.True(t, summary.Interrupted)
	assert.Equal(t, 2, summary.Discovered)
	assert.Equal(t, summary.Processed, summary.Inserted+summary.Duplicates+summary.Errors)
	assert.Equal(t, 0, summary.Deleted)
	assert.False(t, summary.Migrated)
	assert.FileExists(t, corrupt, "triage is skipped when interrupted")
	assert.NoDirExists(t, f.dest)
}

func TestRunCommitFailureIsFatal(t *testing.T) {
	f := newFixture(t)
	writeFile(t, filepath.Join(f.root, "a.jpg"), jpegBytes(t, pattern(64, 64, 0)))
	s := f.scanner(t, 1, false)
	require.NoError(t, f.index.Close())

	_, err := s.Run(context.Background())
	assert.ErrorIs(t, err, database.ErrStorage)
}

func TestMigrateSurvivors(t *testing.T) {
	f := newFixture(t)
	src := writeFile(t, filepath.Join(f.root, "photo.jpg"), []byte("x"))
	_, err := f.index.TryInsert(context.Background(), "a8:0000000000000001", src)
	require.NoError(t, err)

	report, err := MigrateSurvivors(context.Background(), f.index, migration.NewMigrator(f.dest, migration.CollisionRename))
	require.NoError(t, err)
	assert.Equal(t, 1, report.Moved)
	assert.FileExists(t, filepath.Join(f.dest, "photo.jpg"))
}

func TestProgressTracker(t *testing.T) {
	var buf bytes.Buffer
	tracker := NewProgressTracker(2, &buf, true)
	tracker.Record(types.ImageRecord{Path: "/p/a.jpg", Outcome: types.OutcomeHashed, Fingerprint: "a8:00"})
	tracker.Record(types.ImageRecord{Path: "/p/b.jpg", Outcome: types.OutcomeDecodeFailed, Err: assert.AnError})
	tracker.Stop()
	tracker.Stop()

	processed, errs := tracker.Counts()
	assert.Equal(t, 2, processed)
	assert.Equal(t, 1, errs)
	assert.Contains(t, buf.String(), "Progress: 2/2 (Errors: 1)")
	assert.Contains(t, buf.String(), "Processed 1/2: /p/a.jpg\n")
	assert.Contains(t, buf.String(), "Processed 2/2: /p/b.jpg\n")
}
