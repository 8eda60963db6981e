package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

func newCacheCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect and invalidate cached groupings and match tables",
		Long: `Cached artifacts are keyed by stage:

  groups/<source>/<fingerprint>             duplicate groups of one source
  links/<A>_<B>/<country>/<fingerprint>     links of one country partition
  matches/<A>_<B>/<fingerprint>             pairwise match table of two sources

Fingerprints cover the input records and the oracle settings, so entries for
changed inputs are never reused; clearing only reclaims space or forces a
fresh judgment.`,
	}

	listCmd := &cobra.Command{
		Use:   "list [prefix]",
		Short: "List cache keys",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, _, closeApp, err := openApp(cmd.Context(), cmd)
			if err != nil {
				return err
			}
			defer closeApp()

			keys, err := a.Cache.Keys(cmd.Context(), prefixArg(args))
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, k := range keys {
				fmt.Fprintln(out, k)
			}
			fmt.Fprintf(out, "\n%d key(s)\n", len(keys))
			return nil
		},
	}

	clearCmd := &cobra.Command{
		Use:   "clear [prefix]",
		Short: "Invalidate cache entries",
		Long: `Delete every cache entry whose key starts with prefix, or all entries.

Examples:
  powermatch cache clear matches/GEO_OPSD   # force relinking one pair
  powermatch cache clear groups/            # regroup every source
  powermatch cache clear                    # start from scratch`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, _, closeApp, err := openApp(cmd.Context(), cmd)
			if err != nil {
				return err
			}
			defer closeApp()

			n, err := a.Cache.Invalidate(cmd.Context(), prefixArg(args))
			if err != nil {
				return err
			}
			green := color.New(color.FgGreen).SprintFunc()
			fmt.Fprintf(cmd.OutOrStdout(), "%s Removed %d cache entr(ies)\n", green("✓"), n)
			return nil
		},
	}

	cmd.AddCommand(listCmd, clearCmd)
	return cmd
}

func prefixArg(args []string) string {
	if len(args) == 1 {
		return args[0]
	}
	return ""
}
