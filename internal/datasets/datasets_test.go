package datasets

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"rawbench/internal/archive"
	"rawbench/internal/fetch"
	"rawbench/internal/logging"
	"rawbench/internal/manifest"
	"rawbench/internal/services"
	"rawbench/internal/testsupport"
)

// fakeFetcher serves canned payloads per URL. When a URL has several
// payloads they are served in order and the last one repeats.
type fakeFetcher struct {
	mu       sync.Mutex
	payloads map[string][][]byte
	calls    map[string]int
	headers  []map[string]string
	clone    func(dest string) error
	clones   int
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{payloads: map[string][][]byte{}, calls: map[string]int{}}
}

func (f *fakeFetcher) serve(url string, payloads ...[]byte) {
	f.payloads[url] = payloads
}

func (f *fakeFetcher) Download(ctx context.Context, req fetch.Request) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mu.Lock()
	payloads := f.payloads[req.URL]
	i := f.calls[req.URL]
	f.calls[req.URL]++
	f.headers = append(f.headers, req.Header)
	f.mu.Unlock()
	if len(payloads) == 0 {
		return services.Wrap(services.ErrNetwork, "", "download", req.URL, nil)
	}
	if i >= len(payloads) {
		i = len(payloads) - 1
	}
	if err := os.MkdirAll(filepath.Dir(req.Dest), 0o755); err != nil {
		return err
	}
	return os.WriteFile(req.Dest, payloads[i], 0o644)
}

func (f *fakeFetcher) Unzip(ctx context.Context, archivePath, destDir string) error {
	return archive.Extract(ctx, archivePath, archive.FormatZip, destDir)
}

func (f *fakeFetcher) Clone(_ context.Context, _, _, destDir string) error {
	f.clones++
	if err := os.RemoveAll(destDir); err != nil {
		return err
	}
	if f.clone == nil {
		return errors.New("clone not configured")
	}
	return f.clone(destDir)
}

func (f *fakeFetcher) downloads(url string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[url]
}

func parseManifest(t *testing.T, content string) *manifest.Table {
	t.Helper()
	table, err := manifest.Parse(strings.NewReader(content))
	if err != nil {
		t.Fatalf("Parse manifest: %v", err)
	}
	return table
}

func newSession(t *testing.T, dataset string, table *manifest.Table, fetcher Fetcher) *Session {
	t.Helper()
	root := t.TempDir()
	return &Session{
		Dataset:   dataset,
		TargetDir: filepath.Join(root, "test_data", dataset),
		TempRoot:  filepath.Join(root, "tmp"),
		Manifest:  table,
		Fetcher:   fetcher,
		Logger:    logging.NewNop(),
	}
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return string(data)
}

func assertEmptyDir(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil && !os.IsNotExist(err) {
		t.Fatalf("read dir %s: %v", dir, err)
	}
	if len(entries) != 0 {
		names := make([]string, 0, len(entries))
		for _, e := range entries {
			names = append(names, e.Name())
		}
		t.Fatalf("expected %s to be empty, found %v", dir, names)
	}
}

func TestBach10PlacesNumberedPieces(t *testing.T) {
	fetcher := newFakeFetcher()
	fetcher.clone = func(dest string) error {
		for i := 1; i <= 10; i++ {
			name := fmt.Sprintf("%02d-piece", i)
			path := filepath.Join(dest, name, name+".wav")
			if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
				return err
			}
			if err := os.WriteFile(path, []byte(name), 0o644); err != nil {
				return err
			}
		}
		if err := os.MkdirAll(filepath.Join(dest, "docs"), 0o755); err != nil {
			return err
		}
		return os.WriteFile(filepath.Join(dest, "README.md"), []byte("readme"), 0o644)
	}
	s := newSession(t, "Bach10", nil, fetcher)

	if err := Execute(context.Background(), NewBach10(""), s); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	entries, err := os.ReadDir(s.TargetDir)
	if err != nil {
		t.Fatalf("read target: %v", err)
	}
	if len(entries) != 10 {
		t.Fatalf("expected 10 placed files, got %d", len(entries))
	}
	if got := readFile(t, filepath.Join(s.TargetDir, "03-piece.wav")); got != "03-piece" {
		t.Fatalf("unexpected content %q", got)
	}
	if fetcher.clones != 1 {
		t.Fatalf("expected one clone, got %d", fetcher.clones)
	}
	assertEmptyDir(t, s.TempRoot)
}

func TestBach10MissingPieceIsFatal(t *testing.T) {
	fetcher := newFakeFetcher()
	fetcher.clone = func(dest string) error {
		return os.MkdirAll(filepath.Join(dest, "01-empty"), 0o755)
	}
	s := newSession(t, "Bach10", nil, fetcher)

	err := Execute(context.Background(), NewBach10(""), s)
	if !errors.Is(err, services.ErrMissingExpectedFile) {
		t.Fatalf("expected ErrMissingExpectedFile, got %v", err)
	}
}

const xManifest = `dataset_name|audio_filepath|orig_filepath
X|out/1.wav|raw/a.wav
X|out/2.wav|raw/b.wav
X|out/3.wav|raw/c.wav
Other|ignored.wav|raw/d.wav
`

var xFiles = map[string]string{
	"raw/a.wav": "a",
	"raw/b.wav": "b",
	"raw/c.wav": "c",
	"raw/d.wav": "d",
}

const xURL = "https://example.test/x.zip"

func newXAdapter() *manifestArchive {
	return newManifestArchive("X",
		Remote{URL: xURL, Path: "x.zip", Format: archive.FormatZip},
		"X_tmp",
		func(e manifest.Entry) (string, string, bool) {
			return e.OrigPath, e.AudioPath, e.OrigPath != "" && e.AudioPath != ""
		},
	)
}

func TestManifestArchivePlacesOnlyManifestEntries(t *testing.T) {
	fetcher := newFakeFetcher()
	fetcher.serve(xURL, testsupport.ZipBytes(t, xFiles))
	s := newSession(t, "X", parseManifest(t, xManifest), fetcher)

	if err := Execute(context.Background(), newXAdapter(), s); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	for i, want := range []string{"a", "b", "c"} {
		path := filepath.Join(s.TargetDir, "out", fmt.Sprintf("%d.wav", i+1))
		if got := readFile(t, path); got != want {
			t.Fatalf("%s: expected %q, got %q", path, want, got)
		}
	}
	files, err := walkFiles(s.TargetDir)
	if err != nil {
		t.Fatalf("walk target: %v", err)
	}
	if len(files) != 3 {
		t.Fatalf("expected exactly 3 files, got %v", files)
	}
	assertEmptyDir(t, s.TempRoot)
}

func TestManifestArchiveWarnsOnMissingEntry(t *testing.T) {
	fetcher := newFakeFetcher()
	fetcher.serve(xURL, testsupport.ZipBytes(t, map[string]string{"raw/a.wav": "a"}))
	s := newSession(t, "X", parseManifest(t, xManifest), fetcher)

	if err := Execute(context.Background(), newXAdapter(), s); err != nil {
		t.Fatalf("missing manifest files should only warn: %v", err)
	}
	if got := readFile(t, filepath.Join(s.TargetDir, "out", "1.wav")); got != "a" {
		t.Fatalf("unexpected content %q", got)
	}
}

func TestManifestArchiveRequiresManifest(t *testing.T) {
	s := newSession(t, "X", nil, newFakeFetcher())
	err := Execute(context.Background(), newXAdapter(), s)
	if !errors.Is(err, services.ErrMissingManifest) {
		t.Fatalf("expected ErrMissingManifest, got %v", err)
	}
}

func TestValidArchiveIsNotDownloadedAgain(t *testing.T) {
	fetcher := newFakeFetcher()
	s := newSession(t, "X", parseManifest(t, xManifest), fetcher)
	testsupport.WriteZip(t, filepath.Join(s.TempRoot, "x.zip"), xFiles)

	if err := Execute(context.Background(), newXAdapter(), s); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if n := fetcher.downloads(xURL); n != 0 {
		t.Fatalf("expected no downloads, got %d", n)
	}
}

func TestCorruptArchiveIsReplacedOnce(t *testing.T) {
	fixture := testsupport.ZipBytes(t, xFiles)
	fetcher := newFakeFetcher()
	fetcher.serve(xURL, fixture)
	s := newSession(t, "X", parseManifest(t, xManifest), fetcher)
	s.RetainTemp = true

	raw := filepath.Join(s.TempRoot, "x.zip")
	testsupport.WriteZip(t, raw, xFiles)
	testsupport.Truncate(t, raw)

	if err := Execute(context.Background(), newXAdapter(), s); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if n := fetcher.downloads(xURL); n != 1 {
		t.Fatalf("expected exactly one download, got %d", n)
	}
	kept, err := os.ReadFile(raw)
	if err != nil {
		t.Fatalf("raw archive should be retained: %v", err)
	}
	if !bytes.Equal(kept, fixture) {
		t.Fatal("retained archive differs from the served fixture")
	}
	if _, err := os.Stat(filepath.Join(s.TempRoot, "X_tmp")); !os.IsNotExist(err) {
		t.Fatalf("workspace should be removed, stat err=%v", err)
	}
}

func TestSecondCorruptionIsFatal(t *testing.T) {
	fetcher := newFakeFetcher()
	fetcher.serve(xURL, []byte("not a zip"))
	s := newSession(t, "X", parseManifest(t, xManifest), fetcher)

	err := Execute(context.Background(), newXAdapter(), s)
	if !errors.Is(err, services.ErrNetwork) || !errors.Is(err, services.ErrCorruptArchive) {
		t.Fatalf("expected network error wrapping corrupt archive, got %v", err)
	}
	if n := fetcher.downloads(xURL); n != 2 {
		t.Fatalf("expected two download attempts, got %d", n)
	}
	if _, err := os.Stat(s.TargetDir); !os.IsNotExist(err) {
		t.Fatalf("nothing should be placed, stat err=%v", err)
	}
}

func TestExecuteStopsBeforePlaceWhenCancelled(t *testing.T) {
	fetcher := newFakeFetcher()
	fetcher.serve(xURL, testsupport.ZipBytes(t, xFiles))
	s := newSession(t, "X", parseManifest(t, xManifest), fetcher)

	ctx, cancel := context.WithCancel(context.Background())
	adapter := &cancelOnSelect{manifestArchive: newXAdapter(), cancel: cancel}
	err := Execute(ctx, adapter, s)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if _, err := os.Stat(s.TargetDir); !os.IsNotExist(err) {
		t.Fatalf("place must not run after cancellation, stat err=%v", err)
	}
}

type cancelOnSelect struct {
	*manifestArchive
	cancel context.CancelFunc
}

func (c *cancelOnSelect) Select(ctx context.Context, s *Session) ([]Placement, error) {
	placements, err := c.manifestArchive.Select(ctx, s)
	c.cancel()
	return placements, err
}

func TestPlacePolicies(t *testing.T) {
	s := newSession(t, "P", nil, nil)
	missing := []Placement{{Src: filepath.Join(s.TempRoot, "absent.wav"), Dst: "absent.wav"}}

	if err := s.Place(context.Background(), missing, Warn); err != nil {
		t.Fatalf("warn policy should not fail: %v", err)
	}
	err := s.Place(context.Background(), missing, Fatal)
	if !errors.Is(err, services.ErrMissingExpectedFile) {
		t.Fatalf("expected ErrMissingExpectedFile, got %v", err)
	}

	escape := []Placement{{Src: filepath.Join(s.TempRoot, "absent.wav"), Dst: "../escape.wav"}}
	if err := s.Place(context.Background(), escape, Warn); err == nil {
		t.Fatal("expected error for destination outside the dataset directory")
	}
}

func TestPlaceCopyKeepsSource(t *testing.T) {
	s := newSession(t, "P", nil, nil)
	src := filepath.Join(s.TempRoot, "src.wav")
	testsupport.WriteFile(t, src, 4)

	if err := s.Place(context.Background(), []Placement{{Src: src, Dst: "nested/dst.wav", Copy: true}}, Fatal); err != nil {
		t.Fatalf("Place: %v", err)
	}
	if _, err := os.Stat(src); err != nil {
		t.Fatalf("copy should keep source: %v", err)
	}
	if _, err := os.Stat(filepath.Join(s.TargetDir, "nested", "dst.wav")); err != nil {
		t.Fatalf("expected placed copy: %v", err)
	}
}

func TestAnnotateIgnoresDatasetNameInMessage(t *testing.T) {
	err := services.Wrap(services.ErrNetwork, "", "download", "https://example.invalid/AIR_1_4/AIR.zip", nil)
	got := annotate(err, "AIR", StepFetch)
	if !strings.HasPrefix(got.Error(), "AIR: fetch: ") {
		t.Fatalf("expected dataset and step prefix, got %q", got.Error())
	}
	if !errors.Is(got, services.ErrNetwork) {
		t.Fatalf("expected marker preserved, got %v", got)
	}

	named := services.Wrap(services.ErrMissingExpectedFile, "AIR", StepPlace, "x.wav", nil)
	if annotate(named, "AIR", StepPlace) != named {
		t.Fatal("errors already wrapped for the dataset should pass through")
	}
	if !errors.Is(annotate(context.Canceled, "AIR", StepFetch), context.Canceled) {
		t.Fatal("context errors should pass through")
	}
}
