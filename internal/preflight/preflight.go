package preflight

import (
	"context"

	"rawbench/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// Options selects the optional checks.
type Options struct {
	// Offline skips checks that need the network.
	Offline bool
}

// RunAll executes all applicable preflight checks for the given config.
func RunAll(ctx context.Context, cfg *config.Config, opts Options) []Result {
	if cfg == nil {
		return nil
	}
	var results []Result

	results = append(results, CheckWritableDir("Test data directory", cfg.Paths.TestDataDir))
	results = append(results, CheckWritableDir("Temp directory", cfg.Paths.TmpDir))
	results = append(results, CheckWritableDir("Log directory", cfg.Paths.LogDir))
	results = append(results, CheckReadableFile("Manifest", cfg.ManifestPath()))
	for _, name := range []string{"Freischuetz.txt", "Freischuetz-hash.txt"} {
		results = append(results, CheckReadableFile(name, cfg.AuxiliaryPath(name)))
	}

	if !opts.Offline {
		results = append(results, CheckHub(ctx, cfg.HuggingFace.Endpoint, cfg.HuggingFace.Token))
	}
	return results
}

// Failed counts the results that did not pass.
func Failed(results []Result) int {
	n := 0
	for _, r := range results {
		if !r.Passed {
			n++
		}
	}
	return n
}
