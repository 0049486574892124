package pipeline_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/gofrs/flock"

	"rawbench/internal/completion"
	"rawbench/internal/config"
	"rawbench/internal/datasets"
	"rawbench/internal/fetch"
	"rawbench/internal/ledger"
	"rawbench/internal/pipeline"
	"rawbench/internal/services"
	"rawbench/internal/testsupport"
)

// stubAdapter places one file per job from a workspace it fills itself.
type stubAdapter struct {
	name         string
	usesManifest bool
	fetchErr     error
	onSelect     func()
	calls        atomic.Int32
}

func (a *stubAdapter) Name() string                   { return a.name }
func (a *stubAdapter) UsesManifest() bool             { return a.usesManifest }
func (a *stubAdapter) Policy() datasets.MissingPolicy { return datasets.Fatal }
func (a *stubAdapter) Locate(context.Context, *datasets.Session) error {
	a.calls.Add(1)
	return nil
}

func (a *stubAdapter) Fetch(context.Context, *datasets.Session) error {
	return a.fetchErr
}

func (a *stubAdapter) Extract(_ context.Context, s *datasets.Session) error {
	dir, err := s.PrepareWorkspace(a.name + "_tmp")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, "clip.wav"), []byte(a.name), 0o644)
}

func (a *stubAdapter) Select(_ context.Context, s *datasets.Session) ([]datasets.Placement, error) {
	if a.onSelect != nil {
		a.onSelect()
	}
	return []datasets.Placement{{Src: filepath.Join(s.Workspace, "clip.wav"), Dst: "clip.wav"}}, nil
}

func (a *stubAdapter) Cleanup(_ context.Context, s *datasets.Session) error {
	return s.CleanupTemp()
}

// servingFetcher answers downloads from an in-memory table.
type servingFetcher struct {
	mu       sync.Mutex
	payloads map[string][]byte
	calls    int
}

func (f *servingFetcher) Download(_ context.Context, req fetch.Request) error {
	f.mu.Lock()
	f.calls++
	data, ok := f.payloads[req.URL]
	f.mu.Unlock()
	if !ok {
		return services.Wrap(services.ErrNetwork, "", "download", req.URL, nil)
	}
	if err := os.MkdirAll(filepath.Dir(req.Dest), 0o755); err != nil {
		return err
	}
	return os.WriteFile(req.Dest, data, 0o644)
}

func (f *servingFetcher) Unzip(context.Context, string, string) error {
	return errors.New("unexpected unzip")
}

func (f *servingFetcher) Clone(context.Context, string, string, string) error {
	return errors.New("unexpected clone")
}

func newDriver(t *testing.T, cfg *config.Config, options ...pipeline.Option) *pipeline.Driver {
	t.Helper()
	options = append([]pipeline.Option{pipeline.WithFetcher(&servingFetcher{})}, options...)
	d, err := pipeline.New(cfg, pipeline.OptionsFromConfig(cfg), options...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return d
}

func openLedger(t *testing.T, cfg *config.Config) *ledger.Store {
	t.Helper()
	store, err := ledger.Open(cfg)
	if err != nil {
		t.Fatalf("ledger.Open: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestRunIsIdempotent(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	a := &stubAdapter{name: "Alpha"}
	b := &stubAdapter{name: "Beta"}
	registry := []datasets.Adapter{a, b}

	if err := newDriver(t, cfg).Run(context.Background(), registry); err != nil {
		t.Fatalf("first Run: %v", err)
	}
	for _, name := range []string{"Alpha", "Beta"} {
		dir := filepath.Join(cfg.Paths.TestDataDir, name)
		if !completion.IsDone(dir) {
			t.Fatalf("%s should be marked done", name)
		}
		if _, err := os.Stat(filepath.Join(dir, "clip.wav")); err != nil {
			t.Fatalf("%s clip missing: %v", name, err)
		}
	}

	if err := newDriver(t, cfg).Run(context.Background(), registry); err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if a.calls.Load() != 1 || b.calls.Load() != 1 {
		t.Fatalf("completed datasets must not run again: alpha=%d beta=%d", a.calls.Load(), b.calls.Load())
	}
}

func TestRunStopsAtFirstFailure(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	boom := errors.New("upstream gone")
	a := &stubAdapter{name: "Alpha"}
	b := &stubAdapter{name: "Beta", fetchErr: boom}
	c := &stubAdapter{name: "Gamma"}

	err := newDriver(t, cfg).Run(context.Background(), []datasets.Adapter{a, b, c})
	if !errors.Is(err, boom) {
		t.Fatalf("expected job error, got %v", err)
	}
	if !completion.IsDone(filepath.Join(cfg.Paths.TestDataDir, "Alpha")) {
		t.Fatal("jobs before the failure keep their marker")
	}
	if completion.IsDone(filepath.Join(cfg.Paths.TestDataDir, "Beta")) {
		t.Fatal("failed job must not be marked done")
	}
	if c.calls.Load() != 0 {
		t.Fatal("jobs after the failure must not start")
	}
	if _, err := os.Stat(filepath.Join(cfg.Paths.TmpDir, "Beta_tmp")); !os.IsNotExist(err) {
		t.Fatalf("failed job should not have reached extraction, stat err=%v", err)
	}
}

func TestRunRequiresManifestForPendingJobs(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	a := &stubAdapter{name: "Alpha", usesManifest: true}

	err := newDriver(t, cfg).Run(context.Background(), []datasets.Adapter{a})
	if !errors.Is(err, services.ErrMissingManifest) {
		t.Fatalf("expected ErrMissingManifest, got %v", err)
	}
	if a.calls.Load() != 0 {
		t.Fatal("no job should run without the manifest")
	}

	if err := completion.MarkDone(filepath.Join(cfg.Paths.TestDataDir, "Alpha")); err != nil {
		t.Fatal(err)
	}
	if err := newDriver(t, cfg).Run(context.Background(), []datasets.Adapter{a}); err != nil {
		t.Fatalf("completed manifest jobs should not need the manifest: %v", err)
	}
}

func TestRunCancelledJobLeavesNoMarker(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := openLedger(t, cfg)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	a := &stubAdapter{name: "Alpha", onSelect: cancel}

	err := newDriver(t, cfg, pipeline.WithLedger(store)).Run(ctx, []datasets.Adapter{a})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	target := filepath.Join(cfg.Paths.TestDataDir, "Alpha")
	if completion.IsDone(target) {
		t.Fatal("cancelled job must not be marked done")
	}
	if _, err := os.Stat(filepath.Join(target, "clip.wav")); !os.IsNotExist(err) {
		t.Fatalf("cancelled job must not place files, stat err=%v", err)
	}
	if _, err := os.Stat(filepath.Join(cfg.Paths.TmpDir, "Alpha_tmp")); !os.IsNotExist(err) {
		t.Fatalf("workspace of a cancelled job should be removed, stat err=%v", err)
	}

	runs, err := store.Recent(context.Background(), 1)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(runs) != 1 || runs[0].Status != ledger.StatusInterrupted {
		t.Fatalf("expected interrupted attempt, got %+v", runs)
	}
}

func TestRunRecordsAttempts(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := openLedger(t, cfg)
	registry := []datasets.Adapter{&stubAdapter{name: "Alpha"}}

	for range 2 {
		if err := newDriver(t, cfg, pipeline.WithLedger(store)).Run(context.Background(), registry); err != nil {
			t.Fatalf("Run: %v", err)
		}
	}
	runs, err := store.Recent(context.Background(), 10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("expected 2 attempts, got %d", len(runs))
	}
	if runs[0].Status != ledger.StatusSkipped || runs[1].Status != ledger.StatusDone {
		t.Fatalf("unexpected statuses: %s, %s", runs[0].Status, runs[1].Status)
	}
	if runs[0].RunID == runs[1].RunID {
		t.Fatal("each run should get its own id")
	}
}

func TestRunRefusesConcurrentRun(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	if err := os.MkdirAll(cfg.Paths.TestDataDir, 0o755); err != nil {
		t.Fatal(err)
	}
	held := flock.New(filepath.Join(cfg.Paths.TestDataDir, pipeline.LockName))
	ok, err := held.TryLock()
	if err != nil || !ok {
		t.Fatalf("TryLock: ok=%v err=%v", ok, err)
	}
	defer held.Unlock()

	err = newDriver(t, cfg).Run(context.Background(), []datasets.Adapter{&stubAdapter{name: "Alpha"}})
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected lock conflict, got %v", err)
	}
}

func TestRunWithWorkerPool(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithWorkers(3))
	var registry []datasets.Adapter
	for _, name := range []string{"Alpha", "Beta", "Gamma", "Delta"} {
		registry = append(registry, &stubAdapter{name: name})
	}
	if err := newDriver(t, cfg).Run(context.Background(), registry); err != nil {
		t.Fatalf("Run: %v", err)
	}
	for _, a := range registry {
		if !completion.IsDone(filepath.Join(cfg.Paths.TestDataDir, a.Name())) {
			t.Fatalf("%s should be done", a.Name())
		}
	}
}

func TestRunCleanupPolicy(t *testing.T) {
	const manifestContent = "dataset_name|audio_filepath\nGuitarSet|00_BN1_mic.wav\n"
	for _, retain := range []bool{false, true} {
		cfg := testsupport.NewConfig(t,
			testsupport.WithManifest(manifestContent),
			testsupport.WithRetainTemp(retain),
		)
		fetcher := &servingFetcher{payloads: map[string][]byte{
			datasets.GuitarSetURL: testsupport.ZipBytes(t, map[string]string{"00_BN1_mic.wav": "pcm"}),
		}}
		d := newDriver(t, cfg, pipeline.WithFetcher(fetcher))
		if err := d.Run(context.Background(), []datasets.Adapter{datasets.NewGuitarSet()}); err != nil {
			t.Fatalf("retain=%v Run: %v", retain, err)
		}
		placed, err := os.ReadFile(filepath.Join(cfg.Paths.TestDataDir, "GuitarSet", "00_BN1_mic.wav"))
		if err != nil || string(placed) != "pcm" {
			t.Fatalf("retain=%v placed file: %q, %v", retain, placed, err)
		}

		entries, err := os.ReadDir(cfg.Paths.TmpDir)
		if err != nil {
			t.Fatalf("read temp root: %v", err)
		}
		var names []string
		for _, e := range entries {
			names = append(names, e.Name())
		}
		if !retain && len(names) != 0 {
			t.Fatalf("expected empty temp root, found %v", names)
		}
		if retain && (len(names) != 1 || names[0] != "audio_mono-mic.zip") {
			t.Fatalf("expected only the raw archive, found %v", names)
		}
	}
}
