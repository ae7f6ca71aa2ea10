package scanner

import (
	"fmt"
	"io/fs"
	"path/filepath"

	"imagededup/imageprocessor"
	"imagededup/logging"
	"imagededup/utils"
)

// Discover walks root and returns the absolute path of every regular file whose
// extension is in exts. Entries that cannot be read are skipped; only an
// unreadable root is an error.
func Discover(root string, exts []string) ([]string, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve root %s: %w", root, err)
	}

	wanted := make(map[string]bool, len(exts))
	for _, ext := range exts {
		wanted[utils.NormalizeExtension(ext)] = true
	}

	var paths []string
	err = filepath.WalkDir(absRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == absRoot {
				return err
			}
			logging.DebugLog("Skipping %s: %v", path, err)
			return nil
		}
		// Symlinks are skipped; triage and migration act on the path itself.
		if !d.Type().IsRegular() {
			return nil
		}
		if wanted[utils.NormalizeExtension(filepath.Ext(path))] {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", absRoot, err)
	}
	return paths, nil
}

// CountFormats classifies discovered paths by image format
func CountFormats(paths []string) FileStats {
	stats := FileStats{Total: len(paths), ByFormat: make(map[imageprocessor.FormatType]int)}
	for _, path := range paths {
		stats.ByFormat[imageprocessor.GetFileFormat(path)]++
	}
	return stats
}
