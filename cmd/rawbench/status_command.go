package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strconv"

	"github.com/spf13/cobra"

	"rawbench/internal/completion"
	"rawbench/internal/config"
	"rawbench/internal/datasets"
	"rawbench/internal/ledger"
	"rawbench/internal/manifest"
	"rawbench/internal/workspace"
)

type datasetStatus struct {
	Name            string `json:"name"`
	Done            bool   `json:"done"`
	ManifestEntries int    `json:"manifest_entries"`
	Files           int    `json:"files"`
	SizeBytes       int64  `json:"size_bytes"`
	LastStatus      string `json:"last_status,omitempty"`
	LastError       string `json:"last_error,omitempty"`
}

type tempStatus struct {
	Name      string `json:"name"`
	SizeBytes int64  `json:"size_bytes"`
	IsDir     bool   `json:"is_dir"`
}

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show per-dataset completion, file counts, and temp usage",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			// The manifest is optional here; without it entry counts are zero.
			table, _ := manifest.Load(cfg.ManifestPath())
			latest := latestRuns(cmd.Context(), cfg)

			var rows []datasetStatus
			for _, name := range knownDatasets(cfg) {
				target := filepath.Join(cfg.Paths.TestDataDir, name)
				files, size := countFiles(target)
				row := datasetStatus{
					Name:      name,
					Done:      completion.IsDone(target),
					Files:     files,
					SizeBytes: size,
				}
				if table != nil {
					row.ManifestEntries = table.Count(name)
				}
				if run, ok := latest[name]; ok {
					row.LastStatus = string(run.Status)
					row.LastError = run.ErrorKind
				}
				rows = append(rows, row)
			}

			entries, err := workspace.List(cfg.Paths.TmpDir)
			if err != nil {
				return fmt.Errorf("list temp root: %w", err)
			}
			temps := make([]tempStatus, 0, len(entries))
			for _, e := range entries {
				temps = append(temps, tempStatus{Name: e.Name, SizeBytes: e.Size, IsDir: e.IsDir})
			}

			if ctx.JSONMode() {
				return writeJSON(cmd, map[string]any{
					"test_data_dir": cfg.Paths.TestDataDir,
					"datasets":      rows,
					"tmp_dir":       cfg.Paths.TmpDir,
					"tmp_entries":   temps,
				})
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Test data: %s\n", cfg.Paths.TestDataDir)
			tableRows := make([][]string, 0, len(rows))
			for _, r := range rows {
				manifestCol := "-"
				if r.ManifestEntries > 0 {
					manifestCol = strconv.Itoa(r.ManifestEntries)
				}
				last := r.LastStatus
				if r.LastError != "" {
					last += " (" + r.LastError + ")"
				}
				tableRows = append(tableRows, []string{
					r.Name, yesNo(r.Done), manifestCol, strconv.Itoa(r.Files), formatBytes(r.SizeBytes), last,
				})
			}
			fmt.Fprint(out, renderTable(
				[]string{"Dataset", "Done", "Manifest", "Files", "Size", "Last run"},
				tableRows,
				[]columnAlignment{alignLeft, alignLeft, alignRight, alignRight, alignRight, alignLeft},
			))

			fmt.Fprintf(out, "\nTemp root: %s\n", cfg.Paths.TmpDir)
			if len(temps) == 0 {
				fmt.Fprintln(out, "  empty")
				return nil
			}
			var total int64
			for _, t := range temps {
				total += t.SizeBytes
				fmt.Fprintf(out, "  %-32s %10s\n", t.Name, formatBytes(t.SizeBytes))
			}
			fmt.Fprintf(out, "  total %s\n", formatBytes(total))
			return nil
		},
	}
}

// knownDatasets lists every dataset rawbench can produce, acquisition
// registry order first.
func knownDatasets(cfg *config.Config) []string {
	names := datasets.Names(datasets.Registry(cfg))
	return append(names, datasets.NewMoisesDB("").Name())
}

// countFiles counts the regular files below dir, ignoring the completion
// marker.
func countFiles(dir string) (int, int64) {
	var files int
	var size int64
	_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return filepath.SkipAll
			}
			return nil
		}
		if !d.Type().IsRegular() || d.Name() == completion.MarkerName {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		files++
		size += info.Size()
		return nil
	})
	return files, size
}

func latestRuns(ctx context.Context, cfg *config.Config) map[string]ledger.Run {
	store, err := ledger.Open(cfg)
	if err != nil {
		return nil
	}
	defer store.Close()
	runs, err := store.LatestByDataset(ctx)
	if err != nil {
		return nil
	}
	return runs
}
