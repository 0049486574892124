// Package completion records finished dataset jobs with a zero-byte marker
// inside the dataset's target directory.
//
// A job is either complete or not: the marker is written only after every
// canonical file has been placed, and its presence means the directory must not
// be processed again. Interrupted jobs leave no marker and are redone from
// scratch on the next run.
package completion

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// MarkerName is the file name of the completion marker.
const MarkerName = ".done"

// MarkerPath returns the marker location for targetDir.
func MarkerPath(targetDir string) string {
	return filepath.Join(targetDir, MarkerName)
}

// IsDone reports whether targetDir carries a completion marker.
func IsDone(targetDir string) bool {
	info, err := os.Stat(MarkerPath(targetDir))
	return err == nil && !info.IsDir()
}

// MarkDone writes the completion marker, creating targetDir when needed.
func MarkDone(targetDir string) error {
	if err := os.MkdirAll(targetDir, 0o755); err != nil {
		return fmt.Errorf("create target directory: %w", err)
	}
	f, err := os.OpenFile(MarkerPath(targetDir), os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("write completion marker: %w", err)
	}
	return f.Close()
}

// Clear removes the completion marker so the next run reprocesses targetDir.
// Canonical files already present are left untouched.
func Clear(targetDir string) error {
	if err := os.Remove(MarkerPath(targetDir)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove completion marker: %w", err)
	}
	return nil
}
