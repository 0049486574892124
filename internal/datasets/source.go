package datasets

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
)

// base supplies the descriptive half of Adapter.
type base struct {
	name         string
	usesManifest bool
	policy       MissingPolicy
}

func (b base) Name() string          { return b.name }
func (b base) UsesManifest() bool    { return b.usesManifest }
func (b base) Policy() MissingPolicy { return b.policy }

// archiveSource implements Locate, Fetch, and Cleanup for adapters whose raw
// material is one or more downloadable archives.
type archiveSource struct {
	remotes []Remote
}

func (a archiveSource) Locate(ctx context.Context, s *Session) error {
	for _, r := range a.remotes {
		s.Track(r)
	}
	return s.VerifyArchives(ctx)
}

func (a archiveSource) Fetch(ctx context.Context, s *Session) error {
	return s.FetchArchives(ctx)
}

func (a archiveSource) Cleanup(ctx context.Context, s *Session) error {
	return s.CleanupTemp()
}

// walkFiles returns every regular file below root as slash-separated paths
// relative to root, sorted.
func walkFiles(root string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		files = append(files, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}

// treePlacements maps every file below root to the same relative path in the
// dataset directory.
func treePlacements(root, prefix string) ([]Placement, error) {
	files, err := walkFiles(root)
	if err != nil {
		return nil, err
	}
	placements := make([]Placement, 0, len(files))
	for _, rel := range files {
		placements = append(placements, Placement{
			Src: filepath.Join(root, filepath.FromSlash(rel)),
			Dst: filepath.ToSlash(filepath.Join(prefix, rel)),
		})
	}
	return placements, nil
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
