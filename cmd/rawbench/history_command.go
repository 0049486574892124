package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"rawbench/internal/ledger"
)

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent dataset attempts from the run ledger",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			store, err := ledger.Open(cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			runs, err := store.Recent(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if ctx.JSONMode() {
				if runs == nil {
					runs = []ledger.Run{}
				}
				return writeJSON(cmd, runs)
			}

			out := cmd.OutOrStdout()
			if len(runs) == 0 {
				fmt.Fprintln(out, "No runs recorded")
				return nil
			}
			rows := make([][]string, 0, len(runs))
			for _, r := range runs {
				runID := r.RunID
				if len(runID) > 8 {
					runID = runID[:8]
				}
				rows = append(rows, []string{
					runID,
					r.Dataset,
					string(r.Status),
					r.StartedAt.Local().Format(time.DateTime),
					formatDuration(r.Duration()),
					r.ErrorKind,
				})
			}
			fmt.Fprint(out, renderTable(
				[]string{"Run", "Dataset", "Status", "Started", "Took", "Error"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignLeft},
			))
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of attempts to show")
	return cmd
}
