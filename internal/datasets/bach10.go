package datasets

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"unicode"

	"rawbench/internal/logging"
)

// Bach10RepoURL hosts the Bach10 v1.1 recordings.
const Bach10RepoURL = "https://github.com/flippy-fyp/Bach10_v1.1"

type bach10 struct {
	base
	repoURL string
	ref     string
}

// NewBach10 clones the repository and keeps <n>/<n>.wav for every numbered
// piece directory.
func NewBach10(ref string) Adapter {
	return &bach10{
		base:    base{name: "Bach10", policy: Fatal},
		repoURL: Bach10RepoURL,
		ref:     ref,
	}
}

func (b *bach10) cloneDir(s *Session) string {
	return s.TempPath("tmp_bach10")
}

// Locate registers the clone directory. Placement moves files out of the
// clone, so an earlier clone is never reused.
func (b *bach10) Locate(_ context.Context, s *Session) error {
	s.AddRaw(b.cloneDir(s))
	return nil
}

func (b *bach10) Fetch(ctx context.Context, s *Session) error {
	s.Logger.Info("cloning repository",
		logging.String("url", b.repoURL),
		logging.String("path", b.cloneDir(s)),
	)
	return s.Fetcher.Clone(ctx, b.repoURL, b.ref, b.cloneDir(s))
}

func (b *bach10) Extract(context.Context, *Session) error {
	return nil
}

func (b *bach10) Select(_ context.Context, s *Session) ([]Placement, error) {
	dir := b.cloneDir(s)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, entry := range entries {
		name := entry.Name()
		if !entry.IsDir() || name == "" || !unicode.IsDigit(rune(name[0])) {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)

	placements := make([]Placement, 0, len(names))
	for _, name := range names {
		placements = append(placements, Placement{
			Src: filepath.Join(dir, name, name+".wav"),
			Dst: name + ".wav",
		})
	}
	return placements, nil
}

func (b *bach10) Cleanup(_ context.Context, s *Session) error {
	return s.CleanupTemp()
}
