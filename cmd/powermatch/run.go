package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/agenthands/powermatch/internal/config"
	"github.com/agenthands/powermatch/internal/core/model"
	"github.com/agenthands/powermatch/internal/tabular"
)

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the matching pipeline over the configured sources",
		Long: `Read <input-dir>/<source>.csv for every configured source, match them and
write plants.csv, combined.csv, diagnostics.json and the pairwise match tables
to <output-dir>/<run-id>/. The run is also recorded in the sqlite store.

Examples:
  powermatch run --config powermatch.toml
  powermatch run --input data --output out
  powermatch run --cached-only           # fail instead of calling the oracle`,
		RunE: runMatch,
	}
	cmd.Flags().String("input", "", "directory holding <source>.csv files")
	cmd.Flags().String("output", "", "directory receiving run artifacts")
	cmd.Flags().Bool("cached-only", false, "only use cached match tables")
	return cmd
}

func runMatch(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	a, logger, closeApp, err := openApp(ctx, cmd, func(cfg *config.Config) {
		if dir, _ := cmd.Flags().GetString("input"); dir != "" {
			cfg.Run.InputDir = dir
		}
		if dir, _ := cmd.Flags().GetString("output"); dir != "" {
			cfg.Run.OutputDir = dir
		}
		if cachedOnly, _ := cmd.Flags().GetBool("cached-only"); cachedOnly {
			cfg.Run.CachedOnly = true
		}
	})
	if err != nil {
		return err
	}
	defer closeApp()

	cfg := a.Config
	sources := cfg.SourceNames()
	if len(sources) == 0 {
		return errors.New("no sources configured")
	}
	datasets, err := tabular.LoadDir(cfg.Run.InputDir, sources)
	if err != nil {
		return err
	}

	runID := uuid.New().String()
	if err := a.Store.CreateRun(ctx, runID, sources); err != nil {
		return err
	}
	res, runErr := a.Matcher.RunWithID(ctx, runID, datasets)
	if err := a.Store.FinishRun(context.WithoutCancel(ctx), runID, res, runErr); err != nil {
		logger.Error("failed to record run", zap.Error(err))
	}
	if runErr != nil {
		return runErr
	}

	runDir, err := tabular.WriteRun(cfg.Run.OutputDir, res)
	if err != nil {
		return err
	}
	if a.Exporter != nil {
		if err := a.Exporter.Export(ctx, res); err != nil {
			logger.Warn("failed to export run", zap.Error(err))
		}
	}
	printSummary(cmd.OutOrStdout(), runID, runDir, res)
	return nil
}

func printSummary(w io.Writer, runID, runDir string, res *model.Result) {
	green := color.New(color.FgGreen).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()
	bold := color.New(color.Bold).SprintFunc()

	st := res.Diagnostics.Stats
	fmt.Fprintf(w, "%s Run %s finished\n\n", green("✓"), bold(runID))
	fmt.Fprintf(w, "  Records:       %d valid of %d\n", st.ValidRecords, st.InputRecords)
	fmt.Fprintf(w, "  Units:         %d\n", st.UnitRecords)
	fmt.Fprintf(w, "  Matched pairs: %d (%d tables from cache)\n", st.MatchedPairs, st.CachedPairs)
	fmt.Fprintf(w, "  Combined rows: %d\n", st.CombinedRows)
	fmt.Fprintf(w, "  Plants:        %d (%d extended, %d filtered)\n", st.Plants, st.ExtendedPlants, st.FilteredPlants)

	counts := make(map[string]int)
	var kinds []string
	for _, i := range res.Diagnostics.Issues {
		if counts[i.Kind] == 0 {
			kinds = append(kinds, i.Kind)
		}
		counts[i.Kind]++
	}
	if len(kinds) > 0 {
		fmt.Fprintf(w, "\n%s\n", yellow("Issues:"))
		for _, k := range kinds {
			fmt.Fprintf(w, "  %-20s %d\n", k, counts[k])
		}
	}
	fmt.Fprintf(w, "\nArtifacts written to %s\n", runDir)
}
