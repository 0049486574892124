package datasets

import (
	"context"
	"net/url"
	"path/filepath"
	"strings"

	"rawbench/internal/fetch"
	"rawbench/internal/fileutil"
	"rawbench/internal/logging"
)

// JaCappellaRepo is the Hugging Face dataset repository id.
const JaCappellaRepo = "jaCappella/jaCappella"

// Hub locates a Hugging Face endpoint.
type Hub struct {
	Endpoint string
	Token    string
	Revision string
}

// FileURL returns the resolve URL for a file inside a dataset repository.
func (h Hub) FileURL(repo, path string) string {
	endpoint := strings.TrimRight(strings.TrimSpace(h.Endpoint), "/")
	if endpoint == "" {
		endpoint = "https://huggingface.co"
	}
	revision := strings.TrimSpace(h.Revision)
	if revision == "" {
		revision = "main"
	}
	segments := strings.Split(strings.Trim(path, "/"), "/")
	for i, seg := range segments {
		segments[i] = url.PathEscape(seg)
	}
	return endpoint + "/datasets/" + repo + "/resolve/" + url.PathEscape(revision) + "/" + strings.Join(segments, "/")
}

// Header returns the authorization header for gated repositories.
func (h Hub) Header() map[string]string {
	if strings.TrimSpace(h.Token) == "" {
		return nil
	}
	return map[string]string{"Authorization": "Bearer " + strings.TrimSpace(h.Token)}
}

type hubFile struct {
	repoPath string
	local    string
}

type jaCappella struct {
	base
	hub     Hub
	pending []hubFile
}

// NewJaCappella mirrors only the repository files the manifest references and
// copies them into the dataset directory.
func NewJaCappella(hub Hub) Adapter {
	return &jaCappella{
		base: base{name: "jaCappella", usesManifest: true, policy: Warn},
		hub:  hub,
	}
}

func (j *jaCappella) mirrorDir(s *Session) string {
	return s.TempPath("jaCappella_tmp")
}

func (j *jaCappella) Locate(_ context.Context, s *Session) error {
	root := j.mirrorDir(s)
	s.AddRaw(root)
	j.pending = nil
	seen := make(map[string]struct{})
	present := 0
	for entry := range s.Entries() {
		if entry.OrigPath == "" {
			continue
		}
		if _, dup := seen[entry.OrigPath]; dup {
			continue
		}
		seen[entry.OrigPath] = struct{}{}
		local := filepath.Join(root, filepath.FromSlash(entry.OrigPath))
		if fileutil.Exists(local) {
			present++
			continue
		}
		j.pending = append(j.pending, hubFile{
			repoPath: strings.TrimPrefix(entry.OrigPath, "jaCappella/"),
			local:    local,
		})
	}
	s.Logger.Info("hub mirror inspected",
		logging.Int("present", present),
		logging.Int("pending", len(j.pending)),
	)
	return nil
}

func (j *jaCappella) Fetch(ctx context.Context, s *Session) error {
	for _, f := range j.pending {
		req := fetch.Request{
			URL:    j.hub.FileURL(JaCappellaRepo, f.repoPath),
			Dest:   f.local,
			Header: j.hub.Header(),
		}
		s.Logger.Debug("downloading hub file", logging.String("path", f.repoPath))
		if err := s.Fetcher.Download(ctx, req); err != nil {
			return err
		}
	}
	j.pending = nil
	return nil
}

func (j *jaCappella) Extract(context.Context, *Session) error {
	return nil
}

func (j *jaCappella) Select(_ context.Context, s *Session) ([]Placement, error) {
	root := j.mirrorDir(s)
	var placements []Placement
	for entry := range s.Entries() {
		if entry.OrigPath == "" || entry.AudioPath == "" {
			continue
		}
		placements = append(placements, Placement{
			Src:  filepath.Join(root, filepath.FromSlash(entry.OrigPath)),
			Dst:  entry.AudioPath,
			Copy: true,
		})
	}
	return placements, nil
}

func (j *jaCappella) Cleanup(_ context.Context, s *Session) error {
	return s.CleanupTemp()
}
