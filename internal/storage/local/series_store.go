// Package local implements append-only series files on the local filesystem.
package local

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Sentinel cell values and what they are stored as.
const (
	missingDashes = "----"
	missingText   = "No data"
	traceRain     = "Tr"

	storedMissing = "NA"
	storedTrace   = "0"
)

// SeriesStore appends (timestamp, value) lines to one file per field.
type SeriesStore struct {
	dir string
}

// New opens a store rooted at dir. The directory must already exist and be
// writable; the store never creates or removes it.
func New(dir string) (*SeriesStore, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, fmt.Errorf("series directory is required")
	}
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to stat series directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("series directory path is not a directory")
	}
	return &SeriesStore{dir: dir}, nil
}

// Dir returns the directory the store writes into.
func (s *SeriesStore) Dir() string {
	return s.dir
}

// Write appends one normalized value to field's series file. Every call is a
// separate append; nothing is deduplicated.
func (s *SeriesStore) Write(field, timestamp, raw string) error {
	if strings.TrimSpace(field) == "" {
		return fmt.Errorf("field name is required")
	}
	path := filepath.Join(s.dir, FileName(field))
	// #nosec G304 -- path is built from the whitelisted field name.
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("open series %s: %w", path, err)
	}
	if _, err := fmt.Fprintf(f, "%s, %s\n", timestamp, NormalizeValue(raw)); err != nil {
		_ = f.Close()
		return fmt.Errorf("append series %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close series %s: %w", path, err)
	}
	return nil
}

// FileName maps a field name to its series file name. Names ending in a
// period take a bare "csv" suffix with any group/unit slash dropped, so
// "Wind(km/h)Dir." becomes "Wind(kmh)Dir.csv".
func FileName(field string) string {
	if !strings.HasSuffix(field, ".") {
		return field + ".csv"
	}
	return strings.ReplaceAll(field, "/", "") + "csv"
}

// NormalizeValue maps sentinel cell values to their stored form.
func NormalizeValue(raw string) string {
	switch raw {
	case missingDashes, missingText:
		return storedMissing
	case traceRain:
		return storedTrace
	default:
		return raw
	}
}
