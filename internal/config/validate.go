package config

import (
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateFetch(); err != nil {
		return err
	}
	if err := c.validateChecksum(); err != nil {
		return err
	}
	if err := c.validateHuggingFace(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validatePaths() error {
	if c.Paths.TestDataDir == "" {
		return errors.New("paths.test_data_dir must be set")
	}
	if c.Paths.TmpDir == "" {
		return errors.New("paths.tmp_dir must be set")
	}
	if filepath.Clean(c.Paths.TmpDir) == filepath.Clean(c.Paths.TestDataDir) {
		return errors.New("paths.tmp_dir must differ from paths.test_data_dir")
	}
	return nil
}

func (c *Config) validateFetch() error {
	if c.Fetch.Workers <= 0 {
		return errors.New("fetch.workers must be positive")
	}
	if c.Fetch.HTTPTimeoutSeconds < 0 {
		return errors.New("fetch.http_timeout_seconds must be >= 0")
	}
	return nil
}

func (c *Config) validateChecksum() error {
	switch c.Checksum.Algorithm {
	case "md5", "sha256", "blake3":
		return nil
	default:
		return fmt.Errorf("checksum.algorithm: unsupported value %q (use md5, sha256, or blake3)", c.Checksum.Algorithm)
	}
}

func (c *Config) validateHuggingFace() error {
	parsed, err := url.Parse(c.HuggingFace.Endpoint)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return fmt.Errorf("huggingface.endpoint must be an absolute URL, got %q", c.HuggingFace.Endpoint)
	}
	return nil
}
