package utils

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// GetDefaultDatabasePath returns the default path for the database file
func GetDefaultDatabasePath() string {
	exePath, err := os.Executable()
	if err != nil {
		// Fallback to current directory if executable path can't be determined
		return "images.db"
	}

	return filepath.Join(filepath.Dir(exePath), "images.db")
}

// ParseExtensions turns a comma-separated list such as "JPG, .jpeg" into
// lowercase extensions without the leading dot. Duplicates are dropped.
func ParseExtensions(list string) []string {
	seen := make(map[string]bool)
	var exts []string
	for _, part := range strings.Split(list, ",") {
		ext := NormalizeExtension(part)
		if ext == "" || seen[ext] {
			continue
		}
		seen[ext] = true
		exts = append(exts, ext)
	}
	return exts
}

// NormalizeExtension lowercases ext and strips surrounding space and a leading dot
func NormalizeExtension(ext string) string {
	return strings.TrimPrefix(strings.ToLower(strings.TrimSpace(ext)), ".")
}

// FormatDuration renders d for the end-of-run summary
func FormatDuration(d time.Duration) string {
	switch {
	case d < time.Second:
		return fmt.Sprintf("%dms", d.Milliseconds())
	case d < time.Minute:
		return fmt.Sprintf("%.2fs", d.Seconds())
	default:
		return d.Round(time.Second).String()
	}
}
