package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"rawbench/internal/completion"
)

func newResetCommand(ctx *commandContext) *cobra.Command {
	var purge bool

	cmd := &cobra.Command{
		Use:   "reset NAME...",
		Short: "Clear completion markers so the next run reacquires datasets",
		Long: `Clear completion markers so the next run reacquires datasets.

Files already placed are kept unless --purge is given, in which case the whole
dataset directory is removed.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			known := knownDatasets(cfg)
			out := cmd.OutOrStdout()
			for _, arg := range args {
				name, ok := matchDataset(known, arg)
				if !ok {
					return fmt.Errorf("unknown dataset %q (known: %s)", arg, strings.Join(known, ", "))
				}
				target := filepath.Join(cfg.Paths.TestDataDir, name)
				if purge {
					if err := os.RemoveAll(target); err != nil {
						return fmt.Errorf("remove %s: %w", target, err)
					}
					fmt.Fprintf(out, "Removed %s\n", target)
					continue
				}
				wasDone := completion.IsDone(target)
				if err := completion.Clear(target); err != nil {
					return err
				}
				if wasDone {
					fmt.Fprintf(out, "Cleared completion marker for %s\n", name)
				} else {
					fmt.Fprintf(out, "%s was not marked complete\n", name)
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&purge, "purge", false, "Remove the dataset directory as well")
	return cmd
}

func matchDataset(known []string, name string) (string, bool) {
	name = strings.TrimSpace(name)
	for _, k := range known {
		if strings.EqualFold(k, name) {
			return k, true
		}
	}
	return "", false
}
