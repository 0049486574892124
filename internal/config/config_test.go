package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"rawbench/internal/config"
)

func TestLoadDefaultConfigUsesEnvTokenAndExpandsPaths(t *testing.T) {
	t.Setenv("HF_TOKEN", "hf-test")
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if resolved == "" {
		t.Fatal("expected resolved path")
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}

	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	if cfg.Paths.TestDataDir != filepath.Join(wd, "test_data") {
		t.Fatalf("unexpected test data dir: %q", cfg.Paths.TestDataDir)
	}
	if cfg.Paths.TmpDir != filepath.Join(wd, "tmp") {
		t.Fatalf("unexpected tmp dir: %q", cfg.Paths.TmpDir)
	}
	wantLogDir := filepath.Join(tempHome, ".local", "share", "rawbench", "logs")
	if cfg.Paths.LogDir != wantLogDir {
		t.Fatalf("unexpected log dir: got %q want %q", cfg.Paths.LogDir, wantLogDir)
	}
	if cfg.ManifestPath() != filepath.Join(wd, "data", "test_strict.csv") {
		t.Fatalf("unexpected manifest path: %q", cfg.ManifestPath())
	}
	if cfg.HuggingFace.Token != "hf-test" {
		t.Fatalf("expected HF token from env, got %q", cfg.HuggingFace.Token)
	}
	if !cfg.Fetch.RetainTemp {
		t.Fatal("expected raw archives to be retained by default")
	}
	if cfg.Fetch.Workers != 1 {
		t.Fatalf("expected sequential default, got %d workers", cfg.Fetch.Workers)
	}
	if cfg.Checksum.Algorithm != "md5" {
		t.Fatalf("unexpected checksum algorithm: %q", cfg.Checksum.Algorithm)
	}
	if cfg.Logging.Format != "console" || cfg.Logging.Level != "info" {
		t.Fatalf("unexpected logging defaults: %+v", cfg.Logging)
	}
}

func TestLoadCustomPath(t *testing.T) {
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "rawbench.toml")

	type payload struct {
		Paths struct {
			TestDataDir string `toml:"test_data_dir"`
			TmpDir      string `toml:"tmp_dir"`
			Manifest    string `toml:"manifest"`
		} `toml:"paths"`
		Fetch struct {
			RetainTemp bool `toml:"retain_temp"`
			Workers    int  `toml:"workers"`
		} `toml:"fetch"`
		Checksum struct {
			Algorithm string `toml:"algorithm"`
		} `toml:"checksum"`
		Logging struct {
			Format string `toml:"format"`
		} `toml:"logging"`
	}
	custom := payload{}
	custom.Paths.TestDataDir = filepath.Join(tempDir, "out")
	custom.Paths.TmpDir = filepath.Join(tempDir, "scratch")
	custom.Paths.Manifest = filepath.Join(tempDir, "manifest.csv")
	custom.Fetch.RetainTemp = false
	custom.Fetch.Workers = 4
	custom.Checksum.Algorithm = "BLAKE3"
	custom.Logging.Format = "JSON"
	data, err := toml.Marshal(custom)
	if err != nil {
		t.Fatalf("marshal custom config: %v", err)
	}
	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		t.Fatalf("write custom config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists {
		t.Fatal("expected exists to be true")
	}
	if resolved != configPath {
		t.Fatalf("unexpected resolved path: got %q want %q", resolved, configPath)
	}
	if cfg.Paths.TestDataDir != filepath.Join(tempDir, "out") {
		t.Fatalf("unexpected test data dir: %q", cfg.Paths.TestDataDir)
	}
	if cfg.ManifestPath() != filepath.Join(tempDir, "manifest.csv") {
		t.Fatalf("expected absolute manifest path to be kept, got %q", cfg.ManifestPath())
	}
	if cfg.Fetch.RetainTemp || cfg.Fetch.Workers != 4 {
		t.Fatalf("unexpected fetch section: %+v", cfg.Fetch)
	}
	if cfg.Checksum.Algorithm != "blake3" {
		t.Fatalf("expected lower-cased algorithm, got %q", cfg.Checksum.Algorithm)
	}
	if cfg.Logging.Format != "json" {
		t.Fatalf("expected json log format, got %q", cfg.Logging.Format)
	}
}

func TestLoadMissingCustomPathFallsBackToDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "absent.toml")
	cfg, resolved, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if exists {
		t.Fatal("expected exists to be false")
	}
	if resolved != path {
		t.Fatalf("unexpected resolved path: %q", resolved)
	}
	if cfg.Paths.Manifest != "test_strict.csv" {
		t.Fatalf("expected default manifest, got %q", cfg.Paths.Manifest)
	}
}

func TestCreateSample(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sample.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample failed: %v", err)
	}

	contents, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read sample: %v", err)
	}
	if !strings.Contains(string(contents), "retain_temp") {
		t.Fatalf("sample config missing retain_temp: %s", contents)
	}

	var cfg config.Config
	if err := toml.Unmarshal(contents, &cfg); err != nil {
		t.Fatalf("unmarshal sample: %v", err)
	}
	if cfg.Paths.TmpDir != "tmp" {
		t.Fatalf("expected sample tmp dir 'tmp', got %q", cfg.Paths.TmpDir)
	}
	if cfg.Fetch.Workers != 1 {
		t.Fatalf("expected sample workers 1, got %d", cfg.Fetch.Workers)
	}
}

func TestValidateDetectsInvalidValues(t *testing.T) {
	cfg := config.Default()
	cfg.Checksum.Algorithm = "crc32"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for unsupported checksum algorithm")
	}

	cfg = config.Default()
	cfg.Fetch.Workers = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for non-positive worker count")
	}

	cfg = config.Default()
	cfg.Paths.TmpDir = cfg.Paths.TestDataDir
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error when tmp dir equals test data dir")
	}

	cfg = config.Default()
	cfg.HuggingFace.Endpoint = "not a url"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for relative huggingface endpoint")
	}

	cfg = config.Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected defaults to validate, got %v", err)
	}
}
