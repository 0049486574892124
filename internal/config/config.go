package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory and input file locations.
type Paths struct {
	TestDataDir string `toml:"test_data_dir"`
	TmpDir      string `toml:"tmp_dir"`
	DataDir     string `toml:"data_dir"`
	Manifest    string `toml:"manifest"`
	LogDir      string `toml:"log_dir"`
}

// Fetch contains configuration for acquisition runs.
type Fetch struct {
	RetainTemp         bool `toml:"retain_temp"`
	Workers            int  `toml:"workers"`
	HTTPTimeoutSeconds int  `toml:"http_timeout_seconds"`
	PreferExternal     bool `toml:"prefer_external"`
	ShowProgress       bool `toml:"show_progress"`
}

// Checksum selects the digest used by the advisory checksum tables.
type Checksum struct {
	Algorithm string `toml:"algorithm"`
}

// HuggingFace contains configuration for Hub-hosted datasets.
type HuggingFace struct {
	Endpoint string `toml:"endpoint"`
	Token    string `toml:"token"`
	Revision string `toml:"revision"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for rawbench.
//
// Configuration sections by subsystem:
//   - Paths: canonical output root, temp root, auxiliary inputs, manifest
//   - Fetch: retain-temp policy, worker count, download behaviour
//   - Checksum: digest algorithm for advisory checksum tables
//   - HuggingFace: Hub endpoint and token for gated datasets
//   - Logging: log format and level
type Config struct {
	Paths       Paths       `toml:"paths"`
	Fetch       Fetch       `toml:"fetch"`
	Checksum    Checksum    `toml:"checksum"`
	HuggingFace HuggingFace `toml:"huggingface"`
	Logging     Logging     `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/rawbench/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("rawbench.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the output, temp, and log directories.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.TestDataDir, c.Paths.TmpDir, c.Paths.LogDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// ManifestPath returns the absolute path of the canonical file-mapping manifest.
func (c *Config) ManifestPath() string {
	if filepath.IsAbs(c.Paths.Manifest) {
		return c.Paths.Manifest
	}
	return filepath.Join(c.Paths.DataDir, c.Paths.Manifest)
}

// AuxiliaryPath resolves a file name inside the auxiliary data directory.
func (c *Config) AuxiliaryPath(name string) string {
	return filepath.Join(c.Paths.DataDir, name)
}

// LedgerPath returns the location of the run history database.
func (c *Config) LedgerPath() string {
	return filepath.Join(c.Paths.LogDir, "rawbench.db")
}

// WgetBinary returns the download tool executable name.
func (c *Config) WgetBinary() string {
	return "wget"
}

// UnzipBinary returns the extraction tool executable name.
func (c *Config) UnzipBinary() string {
	return "unzip"
}

// GitBinary returns the version-control tool executable name.
func (c *Config) GitBinary() string {
	return "git"
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
