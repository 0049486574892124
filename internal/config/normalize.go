package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeFetch()
	c.normalizeChecksum()
	c.normalizeHuggingFace()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.TestDataDir) == "" {
		c.Paths.TestDataDir = defaultTestDataDir
	}
	if c.Paths.TestDataDir, err = expandPath(c.Paths.TestDataDir); err != nil {
		return fmt.Errorf("paths.test_data_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.TmpDir) == "" {
		c.Paths.TmpDir = defaultTmpDir
	}
	if c.Paths.TmpDir, err = expandPath(c.Paths.TmpDir); err != nil {
		return fmt.Errorf("paths.tmp_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		c.Paths.DataDir = defaultDataDir
	}
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	c.Paths.Manifest = strings.TrimSpace(c.Paths.Manifest)
	if c.Paths.Manifest == "" {
		c.Paths.Manifest = defaultManifest
	}
	if strings.HasPrefix(c.Paths.Manifest, "~") {
		if c.Paths.Manifest, err = expandPath(c.Paths.Manifest); err != nil {
			return fmt.Errorf("paths.manifest: %w", err)
		}
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeFetch() {
	if c.Fetch.Workers <= 0 {
		c.Fetch.Workers = defaultWorkers
	}
	if c.Fetch.HTTPTimeoutSeconds < 0 {
		c.Fetch.HTTPTimeoutSeconds = 0
	}
}

func (c *Config) normalizeChecksum() {
	c.Checksum.Algorithm = strings.ToLower(strings.TrimSpace(c.Checksum.Algorithm))
	if c.Checksum.Algorithm == "" {
		c.Checksum.Algorithm = defaultChecksumAlgorithm
	}
}

func (c *Config) normalizeHuggingFace() {
	c.HuggingFace.Endpoint = strings.TrimRight(strings.TrimSpace(c.HuggingFace.Endpoint), "/")
	if c.HuggingFace.Endpoint == "" {
		c.HuggingFace.Endpoint = defaultHFEndpoint
	}
	c.HuggingFace.Revision = strings.TrimSpace(c.HuggingFace.Revision)
	if c.HuggingFace.Revision == "" {
		c.HuggingFace.Revision = defaultHFRevision
	}
	c.HuggingFace.Token = strings.TrimSpace(c.HuggingFace.Token)
	if c.HuggingFace.Token == "" {
		if value, ok := os.LookupEnv("HF_TOKEN"); ok {
			c.HuggingFace.Token = strings.TrimSpace(value)
		} else if value, ok := os.LookupEnv("HUGGING_FACE_HUB_TOKEN"); ok {
			c.HuggingFace.Token = strings.TrimSpace(value)
		}
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
