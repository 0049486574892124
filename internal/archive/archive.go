// Package archive verifies and extracts the container formats upstream
// corpora ship in: zip, 7z, tar, and gzip-compressed tar.
//
// Verification reads every member to EOF so the per-entry checksums carried by
// the format (zip CRC-32, 7z CRC, gzip trailer) are actually checked. A
// download cut short by the network is therefore reported as Corrupt rather
// than discovered half-way through extraction.
package archive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"rawbench/internal/services"
)

// Format names an archive container.
type Format string

const (
	FormatZip   Format = "zip"
	Format7z    Format = "7z"
	FormatTar   Format = "tar"
	FormatTarGz Format = "tar.gz"
)

// Formats lists every supported container.
var Formats = []Format{FormatZip, Format7z, FormatTar, FormatTarGz}

// FormatFromPath infers the container from a file name.
func FormatFromPath(path string) (Format, bool) {
	name := strings.ToLower(filepath.Base(path))
	switch {
	case strings.HasSuffix(name, ".tar.gz"), strings.HasSuffix(name, ".tgz"):
		return FormatTarGz, true
	case strings.HasSuffix(name, ".tar"):
		return FormatTar, true
	case strings.HasSuffix(name, ".zip"):
		return FormatZip, true
	case strings.HasSuffix(name, ".7z"):
		return Format7z, true
	default:
		return "", false
	}
}

// State is the verification outcome for an archive on disk.
type State int

const (
	Unknown State = iota
	Valid
	Corrupt
	Missing
)

func (s State) String() string {
	switch s {
	case Valid:
		return "valid"
	case Corrupt:
		return "corrupt"
	case Missing:
		return "missing"
	default:
		return "unknown"
	}
}

// Verify reports the state of the archive at path.
func Verify(ctx context.Context, path string, format Format) State {
	state, _ := Check(ctx, path, format)
	return state
}

// Check is Verify with the reason attached. The error is nil for Valid and
// Missing, and describes the failure for Corrupt and Unknown.
func Check(ctx context.Context, path string, format Format) (State, error) {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Missing, nil
		}
		return Unknown, err
	}
	if info.IsDir() {
		return Unknown, fmt.Errorf("%s is a directory", path)
	}
	if !supported(format) {
		return Unknown, fmt.Errorf("unsupported archive format %q", format)
	}
	err = walk(ctx, path, format, func(e entry) error {
		if !e.regular {
			return nil
		}
		rc, err := e.open()
		if err != nil {
			return err
		}
		defer rc.Close()
		if _, err := io.Copy(io.Discard, rc); err != nil {
			return fmt.Errorf("%s: %w", e.name, err)
		}
		return nil
	})
	if err != nil {
		if ctx.Err() != nil {
			return Unknown, ctx.Err()
		}
		return Corrupt, err
	}
	return Valid, nil
}

// Extract unpacks every member of the archive below destDir. Members whose
// names would land outside destDir are rejected.
func Extract(ctx context.Context, path string, format Format, destDir string) error {
	if !supported(format) {
		return fmt.Errorf("unsupported archive format %q", format)
	}
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return fmt.Errorf("create extraction dir: %w", err)
	}
	err := walk(ctx, path, format, func(e entry) error {
		target, err := safeJoin(destDir, e.name)
		if err != nil {
			return err
		}
		if e.dir {
			return os.MkdirAll(target, 0o755)
		}
		if !e.regular {
			return nil
		}
		return writeEntry(target, e)
	})
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return services.Wrap(services.ErrCorruptArchive, "", "extract", filepath.Base(path), err)
	}
	return nil
}

// Handle tracks one raw archive on disk together with its last known state.
type Handle struct {
	Path   string
	Format Format
	State  State
}

// NewHandle returns a handle whose format is inferred from path.
func NewHandle(path string) Handle {
	format, _ := FormatFromPath(path)
	return Handle{Path: path, Format: format}
}

// Check refreshes and returns the handle's state.
func (h *Handle) Check(ctx context.Context) State {
	h.State = Verify(ctx, h.Path, h.Format)
	return h.State
}

// Discard deletes the archive file and marks the handle Missing.
func (h *Handle) Discard() error {
	if err := os.Remove(h.Path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("discard archive: %w", err)
	}
	h.State = Missing
	return nil
}

func supported(format Format) bool {
	for _, f := range Formats {
		if f == format {
			return true
		}
	}
	return false
}

var errUnsafePath = errors.New("archive member escapes extraction directory")

func safeJoin(root, name string) (string, error) {
	name = strings.ReplaceAll(name, "\\", "/")
	if name == "" || strings.HasPrefix(name, "/") || filepath.IsAbs(name) {
		return "", fmt.Errorf("%w: %q", errUnsafePath, name)
	}
	clean := filepath.Clean(filepath.FromSlash(name))
	if clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %q", errUnsafePath, name)
	}
	return filepath.Join(root, clean), nil
}

func writeEntry(target string, e entry) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}
	rc, err := e.open()
	if err != nil {
		return err
	}
	defer rc.Close()

	mode := e.mode.Perm()
	if mode == 0 {
		mode = 0o644
	}
	out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode|0o200)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, rc); err != nil {
		_ = out.Close()
		return fmt.Errorf("%s: %w", e.name, err)
	}
	return out.Close()
}
