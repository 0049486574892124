package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"

	"rawbench/internal/completion"
	"rawbench/internal/datasets"
	"rawbench/internal/testsupport"
)

func markAllDone(t *testing.T, env *cliTestEnv) {
	t.Helper()
	for _, name := range knownDatasets(env.cfg) {
		if err := completion.MarkDone(filepath.Join(env.cfg.Paths.TestDataDir, name)); err != nil {
			t.Fatalf("MarkDone %s: %v", name, err)
		}
	}
}

func TestFetchSkipsCompletedDatasets(t *testing.T) {
	env := setupCLITestEnv(t)
	markAllDone(t, env)

	if out, err := env.run(t, "fetch"); err != nil {
		t.Fatalf("fetch: %v\n%s", err, out)
	}
	if out, err := env.run(t, "fetch", "--only", "DAPS,bach10", "--workers", "2"); err != nil {
		t.Fatalf("fetch --only: %v\n%s", err, out)
	}
}

func TestFetchRejectsUnknownDataset(t *testing.T) {
	env := setupCLITestEnv(t)
	_, err := env.run(t, "fetch", "--only", "NotADataset")
	if err == nil || !strings.Contains(err.Error(), "NotADataset") {
		t.Fatalf("expected unknown dataset error, got %v", err)
	}
}

func TestFetchRejectsConflictingTempFlags(t *testing.T) {
	env := setupCLITestEnv(t)
	if _, err := env.run(t, "fetch", "--rm-tmp", "--keep-tmp"); err == nil {
		t.Fatal("expected error for --rm-tmp with --keep-tmp")
	}
	if _, err := env.run(t, "fetch", "--workers", "0"); err == nil {
		t.Fatal("expected error for zero workers")
	}
}

func TestRunFlagsTempRetention(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cases := []struct {
		args []string
		want bool
	}{
		{nil, true},
		{[]string{"--rm-tmp"}, false},
		{[]string{"--keep-tmp"}, true},
	}
	for _, tc := range cases {
		var flags runFlags
		cmd := &cobra.Command{Use: "fetch"}
		flags.register(cmd)
		if err := cmd.Flags().Parse(tc.args); err != nil {
			t.Fatalf("parse %v: %v", tc.args, err)
		}
		opts, err := flags.options(cmd, cfg)
		if err != nil {
			t.Fatalf("options %v: %v", tc.args, err)
		}
		if opts.RetainTemp != tc.want {
			t.Fatalf("args %v: expected retain temp %v, got %v", tc.args, tc.want, opts.RetainTemp)
		}
	}
}

func TestPrepareMoisesRequiresCorpusDir(t *testing.T) {
	env := setupCLITestEnv(t)
	_, err := env.run(t, "prepare-moises")
	if err == nil || !strings.Contains(err.Error(), "moisesdb-dir") {
		t.Fatalf("expected required flag error, got %v", err)
	}
}

func TestPrepareMoisesFailsForMissingCorpus(t *testing.T) {
	env := setupCLITestEnv(t, testsupport.WithManifest("dataset_name|audio_filepath\nMoisesDB|song.wav\n"))
	_, err := env.run(t, "prepare-moises", "--moisesdb-dir", filepath.Join(env.baseDir, "absent"))
	if err == nil {
		t.Fatal("expected error for missing corpus")
	}
}

func TestStatusListsDatasets(t *testing.T) {
	env := setupCLITestEnv(t, testsupport.WithManifest("dataset_name|audio_filepath\nDAPS|a.wav\nDAPS|b.wav\n"))
	target := filepath.Join(env.cfg.Paths.TestDataDir, "DAPS")
	testsupport.WriteFile(t, filepath.Join(target, "a.wav"), 2048)
	if err := completion.MarkDone(target); err != nil {
		t.Fatal(err)
	}
	testsupport.WriteFile(t, filepath.Join(env.cfg.Paths.TmpDir, "daps.tar.gz"), 10)

	out, err := env.run(t, "status")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	for _, want := range []string{"jaCappella", "DEMAND", "MoisesDB", "daps.tar.gz"} {
		if !strings.Contains(out, want) {
			t.Fatalf("status output missing %q:\n%s", want, out)
		}
	}

	out, err = env.run(t, "--json", "status")
	if err != nil {
		t.Fatalf("status --json: %v", err)
	}
	var payload struct {
		Datasets []datasetStatus `json:"datasets"`
	}
	if err := json.Unmarshal([]byte(out), &payload); err != nil {
		t.Fatalf("decode status json: %v\n%s", err, out)
	}
	for _, d := range payload.Datasets {
		if d.Name != "DAPS" {
			continue
		}
		if !d.Done || d.Files != 1 || d.ManifestEntries != 2 || d.SizeBytes != 2048 {
			t.Fatalf("unexpected DAPS status: %+v", d)
		}
		return
	}
	t.Fatal("DAPS missing from status json")
}

func TestResetClearsMarker(t *testing.T) {
	env := setupCLITestEnv(t)
	target := filepath.Join(env.cfg.Paths.TestDataDir, "Bach10")
	testsupport.WriteFile(t, filepath.Join(target, "01.wav"), 1)
	if err := completion.MarkDone(target); err != nil {
		t.Fatal(err)
	}

	out, err := env.run(t, "reset", "bach10")
	if err != nil {
		t.Fatalf("reset: %v", err)
	}
	if completion.IsDone(target) {
		t.Fatal("marker should be cleared")
	}
	if _, err := os.Stat(filepath.Join(target, "01.wav")); err != nil {
		t.Fatalf("reset must keep placed files: %v", err)
	}
	if !strings.Contains(out, "Bach10") {
		t.Fatalf("unexpected output: %s", out)
	}

	if _, err := env.run(t, "reset", "--purge", "Bach10"); err != nil {
		t.Fatalf("reset --purge: %v", err)
	}
	if _, err := os.Stat(target); !os.IsNotExist(err) {
		t.Fatalf("purge should remove the dataset directory, stat err=%v", err)
	}

	if _, err := env.run(t, "reset", "nope"); err == nil {
		t.Fatal("expected error for unknown dataset")
	}
}

func TestTmpCleanRemovesEverything(t *testing.T) {
	env := setupCLITestEnv(t)
	testsupport.WriteFile(t, filepath.Join(env.cfg.Paths.TmpDir, "x.zip"), 10)
	testsupport.WriteFile(t, filepath.Join(env.cfg.Paths.TmpDir, "X_tmp", "a.wav"), 10)

	out, err := env.run(t, "tmp", "list")
	if err != nil {
		t.Fatalf("tmp list: %v", err)
	}
	if !strings.Contains(out, "X_tmp") || !strings.Contains(out, "x.zip") {
		t.Fatalf("unexpected tmp list output:\n%s", out)
	}

	out, err = env.run(t, "tmp", "clean")
	if err != nil {
		t.Fatalf("tmp clean: %v", err)
	}
	if !strings.Contains(out, "Removed 2 entries") {
		t.Fatalf("unexpected output: %s", out)
	}
	entries, err := os.ReadDir(env.cfg.Paths.TmpDir)
	if err != nil {
		t.Fatalf("read tmp: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected empty temp root, got %d entries", len(entries))
	}
}

func TestTmpCleanKeepsRecentEntries(t *testing.T) {
	env := setupCLITestEnv(t)
	testsupport.WriteFile(t, filepath.Join(env.cfg.Paths.TmpDir, "x.zip"), 10)

	if _, err := env.run(t, "tmp", "clean", "--older-than", "1h"); err != nil {
		t.Fatalf("tmp clean: %v", err)
	}
	if _, err := os.Stat(filepath.Join(env.cfg.Paths.TmpDir, "x.zip")); err != nil {
		t.Fatalf("recent entry should be kept: %v", err)
	}
}

func TestHistoryEmpty(t *testing.T) {
	env := setupCLITestEnv(t)
	out, err := env.run(t, "history")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if !strings.Contains(out, "No runs recorded") {
		t.Fatalf("unexpected output: %s", out)
	}
}

func TestHistoryAfterRun(t *testing.T) {
	env := setupCLITestEnv(t)
	markAllDone(t, env)
	if _, err := env.run(t, "fetch", "--only", "Clotho"); err != nil {
		t.Fatalf("fetch: %v", err)
	}
	out, err := env.run(t, "history")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if !strings.Contains(out, "Clotho") || !strings.Contains(out, "skipped") {
		t.Fatalf("expected skipped Clotho attempt:\n%s", out)
	}
}

func TestDoctorOffline(t *testing.T) {
	env := setupCLITestEnv(t, testsupport.WithManifest("dataset_name\n"))
	for _, name := range []string{datasets.FreischuetzURLList, datasets.FreischuetzHashTable} {
		testsupport.WriteFile(t, env.cfg.AuxiliaryPath(name), 1)
	}
	out, err := env.run(t, "doctor", "--offline")
	if err != nil {
		t.Fatalf("doctor: %v\n%s", err, out)
	}
	for _, want := range []string{"wget", "unzip", "git", "Manifest"} {
		if !strings.Contains(out, want) {
			t.Fatalf("doctor output missing %q:\n%s", want, out)
		}
	}
}

func TestDoctorReportsMissingInputs(t *testing.T) {
	env := setupCLITestEnv(t)
	out, err := env.run(t, "doctor", "--offline")
	if err == nil {
		t.Fatalf("expected failure without manifest:\n%s", out)
	}
	if !strings.Contains(out, "ERROR") {
		t.Fatalf("expected an ERROR line:\n%s", out)
	}
}
