package datasets

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"iter"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"rawbench/internal/archive"
	"rawbench/internal/fetch"
	"rawbench/internal/fileutil"
	"rawbench/internal/logging"
	"rawbench/internal/manifest"
	"rawbench/internal/services"
	"rawbench/internal/workspace"
)

// Session carries the state of one job through the six steps.
type Session struct {
	Dataset    string
	TargetDir  string
	TempRoot   string
	RetainTemp bool
	Manifest   *manifest.Table
	Fetcher    Fetcher
	Logger     *slog.Logger

	// Workspace is the extraction directory prepared during the job, if any.
	Workspace string

	archives []*trackedArchive
	// raw holds downloaded trees (clones, file mirrors) kept under retain-temp.
	raw []string
	// scratch holds paths removed on success regardless of retain-temp.
	scratch []string
	// parents are temp subdirectories removed on success once empty.
	parents []string
}

// Remote describes one raw archive and where it lives below the temp root.
type Remote struct {
	URL    string
	Path   string
	Format archive.Format
	Header map[string]string
}

type trackedArchive struct {
	remote    Remote
	handle    archive.Handle
	corrupted bool
}

// Entries yields the manifest entries for this session's dataset.
func (s *Session) Entries() iter.Seq[manifest.Entry] {
	return s.Manifest.EntriesFor(s.Dataset)
}

// TempPath joins elem below the temp root.
func (s *Session) TempPath(elem ...string) string {
	return filepath.Join(append([]string{s.TempRoot}, elem...)...)
}

// PrepareWorkspace creates a fresh workspace named name under the temp root
// and records it for cleanup.
func (s *Session) PrepareWorkspace(name string) (string, error) {
	dir, err := workspace.Prepare(s.TempRoot, name)
	if err != nil {
		return "", err
	}
	s.Workspace = dir
	return dir, nil
}

// AddScratch registers a path that is removed on success.
func (s *Session) AddScratch(path string) {
	s.scratch = append(s.scratch, path)
}

// AddRaw registers a raw download kept when retain-temp is set.
func (s *Session) AddRaw(path string) {
	s.raw = append(s.raw, path)
}

// AddParent registers a temp subdirectory removed on success once empty.
func (s *Session) AddParent(path string) {
	s.parents = append(s.parents, path)
}

// Track registers a raw archive. Relative remote paths resolve below the
// temp root.
func (s *Session) Track(r Remote) {
	if !filepath.IsAbs(r.Path) {
		r.Path = s.TempPath(r.Path)
	}
	if r.Format == "" {
		r.Format, _ = archive.FormatFromPath(r.Path)
	}
	s.archives = append(s.archives, &trackedArchive{
		remote: r,
		handle: archive.Handle{Path: r.Path, Format: r.Format},
	})
}

// Archives returns the handles of every tracked archive in registration order.
func (s *Session) Archives() []archive.Handle {
	out := make([]archive.Handle, 0, len(s.archives))
	for _, a := range s.archives {
		out = append(out, a.handle)
	}
	return out
}

// VerifyArchives checks every tracked archive already on disk. Corrupt
// archives are deleted so Fetch downloads them again.
func (s *Session) VerifyArchives(ctx context.Context) error {
	for _, a := range s.archives {
		state, err := archive.Check(ctx, a.handle.Path, a.handle.Format)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		a.handle.State = state
		switch state {
		case archive.Valid:
			s.Logger.Info("raw archive present and valid, skipping download",
				logging.String("archive", a.handle.Path),
			)
		case archive.Missing:
			s.Logger.Info("raw archive not present", logging.String("archive", a.handle.Path))
		case archive.Corrupt:
			logging.WarnWithContext(s.Logger, "raw archive failed verification, re-downloading", "archive_corrupt",
				logging.String("archive", a.handle.Path),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "a previous download was likely interrupted"),
				logging.String(logging.FieldImpact, "archive will be downloaded again"),
			)
			a.corrupted = true
			if err := a.handle.Discard(); err != nil {
				return err
			}
		default:
			return fmt.Errorf("verify %s: %w", a.handle.Path, err)
		}
	}
	return nil
}

// FetchArchives downloads every tracked archive that is not Valid. A
// corrupted download is replaced once; corruption after the replacement is
// fatal.
func (s *Session) FetchArchives(ctx context.Context) error {
	for _, a := range s.archives {
		if a.handle.State == archive.Valid {
			continue
		}
		if err := s.fetchArchive(ctx, a); err != nil {
			return err
		}
	}
	return nil
}

func (s *Session) fetchArchive(ctx context.Context, a *trackedArchive) error {
	for {
		s.Logger.Info("downloading raw archive",
			logging.String("url", a.remote.URL),
			logging.String("archive", a.handle.Path),
		)
		if err := s.Fetcher.Download(ctx, fetch.Request{URL: a.remote.URL, Dest: a.handle.Path, Header: a.remote.Header}); err != nil {
			return err
		}
		state, verr := archive.Check(ctx, a.handle.Path, a.handle.Format)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		a.handle.State = state
		if state == archive.Valid {
			return nil
		}
		if state != archive.Corrupt {
			return fmt.Errorf("verify %s after download: %s: %w", a.handle.Path, state, verr)
		}
		if a.corrupted {
			_ = a.handle.Discard()
			return services.Wrap(services.ErrNetwork, s.Dataset, StepFetch,
				"downloaded archive is still corrupt after one retry: "+filepath.Base(a.handle.Path),
				fmt.Errorf("%w: %w", services.ErrCorruptArchive, verr))
		}
		logging.WarnWithContext(s.Logger, "downloaded archive failed verification, retrying once", "archive_corrupt",
			logging.String("archive", a.handle.Path),
			logging.Error(verr),
			logging.String(logging.FieldErrorHint, "upstream transfer was likely truncated"),
			logging.String(logging.FieldImpact, "archive will be downloaded one more time"),
		)
		a.corrupted = true
		if err := a.handle.Discard(); err != nil {
			return err
		}
	}
}

// Place moves or copies each placement into the dataset directory. Missing
// sources follow policy.
func (s *Session) Place(ctx context.Context, placements []Placement, policy MissingPolicy) error {
	if err := os.MkdirAll(s.TargetDir, 0o755); err != nil {
		return fmt.Errorf("create dataset dir: %w", err)
	}
	placed, missing := 0, 0
	for _, p := range placements {
		if err := ctx.Err(); err != nil {
			return err
		}
		dst, err := s.targetPath(p.Dst)
		if err != nil {
			return err
		}
		if _, err := os.Stat(p.Src); err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				return fmt.Errorf("stat %s: %w", p.Src, err)
			}
			if policy == Fatal {
				return services.Wrap(services.ErrMissingExpectedFile, s.Dataset, StepPlace, p.Src, nil)
			}
			missing++
			logging.WarnWithContext(s.Logger, "selected source file missing, skipping", "missing_expected_file",
				logging.String("source", p.Src),
				logging.String("target", p.Dst),
				logging.String(logging.FieldErrorHint, "upstream archive does not contain this manifest entry"),
				logging.String(logging.FieldImpact, "dataset will be incomplete"),
			)
			continue
		}
		if p.Copy {
			err = fileutil.CopyFile(p.Src, dst)
		} else {
			err = fileutil.MoveFile(p.Src, dst)
		}
		if err != nil {
			return fmt.Errorf("place %s: %w", p.Dst, err)
		}
		placed++
	}
	s.Logger.Info("files placed",
		logging.Int("placed", placed),
		logging.Int("missing", missing),
		logging.String("target_dir", s.TargetDir),
	)
	return nil
}

// CleanupTemp removes the workspace and scratch paths, and raw archives and
// downloads unless retain-temp is set.
func (s *Session) CleanupTemp() error {
	var errs []error
	remove := func(path string) {
		if err := workspace.Remove(path); err != nil {
			errs = append(errs, err)
		}
	}
	if s.Workspace != "" {
		remove(s.Workspace)
	}
	for _, p := range s.scratch {
		remove(p)
	}
	if !s.RetainTemp {
		for _, a := range s.archives {
			if err := a.handle.Discard(); err != nil {
				errs = append(errs, err)
			}
		}
		for _, p := range s.raw {
			remove(p)
		}
		for _, p := range s.parents {
			if err := workspace.RemoveIfEmpty(p); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

// DiscardWorkspace removes the workspace of an aborted job. Raw downloads are
// kept so a retry does not download them again.
func (s *Session) DiscardWorkspace() error {
	if s.Workspace == "" {
		return nil
	}
	return workspace.Remove(s.Workspace)
}

func (s *Session) targetPath(rel string) (string, error) {
	rel = strings.TrimSpace(rel)
	clean := filepath.Clean(filepath.FromSlash(rel))
	if rel == "" || filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("invalid canonical path %q", rel)
	}
	return filepath.Join(s.TargetDir, clean), nil
}
