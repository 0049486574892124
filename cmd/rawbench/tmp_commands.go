package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"rawbench/internal/workspace"
)

func newTmpCommand(ctx *commandContext) *cobra.Command {
	tmpCmd := &cobra.Command{
		Use:   "tmp",
		Short: "Inspect and clean the temp root",
	}
	tmpCmd.AddCommand(newTmpListCommand(ctx))
	tmpCmd.AddCommand(newTmpCleanCommand(ctx))
	return tmpCmd
}

func newTmpListCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List raw archives and workspaces under the temp root",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			entries, err := workspace.List(cfg.Paths.TmpDir)
			if err != nil {
				return fmt.Errorf("list temp root: %w", err)
			}
			if ctx.JSONMode() {
				if entries == nil {
					entries = []workspace.Info{}
				}
				return writeJSON(cmd, map[string]any{"tmp_dir": cfg.Paths.TmpDir, "entries": entries})
			}

			out := cmd.OutOrStdout()
			if len(entries) == 0 {
				fmt.Fprintln(out, "Temp root is empty")
				return nil
			}
			fmt.Fprintf(out, "Temp root: %s\n\n", cfg.Paths.TmpDir)
			var total int64
			rows := make([][]string, 0, len(entries))
			for _, e := range entries {
				kind := "file"
				if e.IsDir {
					kind = "dir"
				}
				total += e.Size
				rows = append(rows, []string{e.Name, kind, formatDuration(time.Since(e.ModTime).Truncate(time.Minute)), formatBytes(e.Size)})
			}
			fmt.Fprint(out, renderTable(
				[]string{"Name", "Kind", "Age", "Size"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignRight, alignRight},
			))
			fmt.Fprintf(out, "\nTotal: %d entries, %s\n", len(entries), formatBytes(total))
			return nil
		},
	}
}

func newTmpCleanCommand(ctx *commandContext) *cobra.Command {
	var olderThan time.Duration

	cmd := &cobra.Command{
		Use:   "clean",
		Short: "Remove raw archives and workspaces from the temp root",
		Long: `Remove raw archives and workspaces from the temp root.

By default everything under the temp root is removed. Use --older-than to keep
recent entries, for example the archives of a run that is still retrying.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.newLogger(cfg)
			if err != nil {
				return err
			}
			result := workspace.CleanStale(cmd.Context(), cfg.Paths.TmpDir, olderThan, logger)

			if ctx.JSONMode() {
				errs := make([]string, 0, len(result.Errors))
				for _, e := range result.Errors {
					errs = append(errs, fmt.Sprintf("%s: %v", e.Path, e.Error))
				}
				return writeJSON(cmd, map[string]any{
					"removed": len(result.Removed),
					"errors":  errs,
				})
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Removed %d entries\n", len(result.Removed))
			for _, e := range result.Errors {
				fmt.Fprintf(out, "  failed: %s: %v\n", e.Path, e.Error)
			}
			if len(result.Errors) > 0 {
				return fmt.Errorf("%d entries could not be removed", len(result.Errors))
			}
			return nil
		},
	}
	cmd.Flags().DurationVar(&olderThan, "older-than", 0, "Only remove entries not modified for this long (e.g. 48h)")
	return cmd
}
