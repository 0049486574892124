package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"rawbench/internal/preflight"
)

func newDoctorCommand(ctx *commandContext) *cobra.Command {
	var offline bool

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check external tools, directories, inputs, and the Hugging Face endpoint",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			tools := preflight.CheckSystemDeps(cfg)
			checks := preflight.RunAll(cmd.Context(), cfg, preflight.Options{Offline: offline})

			if ctx.JSONMode() {
				return writeJSON(cmd, map[string]any{
					"tools":  tools,
					"checks": checks,
				})
			}

			out := cmd.OutOrStdout()
			colorize := isTerminal(out)
			lines := renderSectionHeader("Tools", colorize)
			for _, t := range tools {
				kind := statusOK
				detail := t.Path
				switch {
				case !t.Available && t.Usable():
					kind, detail = statusWarn, t.Detail
				case !t.Available:
					kind, detail = statusError, t.Detail
				}
				lines = append(lines, renderStatusLine(t.Name, kind, detail, colorize))
			}
			lines = append(lines, "")
			lines = append(lines, renderSectionHeader("Paths and services", colorize)...)
			for _, c := range checks {
				kind := statusOK
				if !c.Passed {
					kind = statusError
				}
				lines = append(lines, renderStatusLine(c.Name, kind, c.Detail, colorize))
			}
			fmt.Fprintln(out, strings.Join(lines, "\n"))

			if failed := preflight.Failed(checks); failed > 0 {
				return fmt.Errorf("%d check(s) failed", failed)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&offline, "offline", false, "Skip checks that need the network")
	return cmd
}
