package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/agenthands/powermatch/internal/store"
)

func newRunsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List recorded runs, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, _, closeApp, err := openApp(cmd.Context(), cmd)
			if err != nil {
				return err
			}
			defer closeApp()

			limit, _ := cmd.Flags().GetInt("limit")
			runs, err := a.Store.ListRuns(cmd.Context(), limit)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(runs) == 0 {
				fmt.Fprintln(out, "No runs recorded")
				return nil
			}

			green := color.New(color.FgGreen).SprintFunc()
			red := color.New(color.FgRed).SprintFunc()
			yellow := color.New(color.FgYellow).SprintFunc()
			for _, r := range runs {
				status := yellow(r.Status)
				switch r.Status {
				case store.StatusSucceeded:
					status = green(r.Status)
				case store.StatusFailed:
					status = red(r.Status)
				}
				fmt.Fprintf(out, "%s  %s  %-10s  plants=%d  sources=%v\n",
					r.StartedAt.Format("2006-01-02 15:04:05"), r.ID, status, r.Stats.Plants, r.Sources)
				if r.Error != "" {
					fmt.Fprintf(out, "    %s\n", r.Error)
				}
			}
			return nil
		},
	}
	cmd.Flags().Int("limit", 20, "maximum number of runs to show")
	return cmd
}
