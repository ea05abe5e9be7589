package main

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/fatih/color"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/tender-intel/internal/schedule"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the daily chain once",
	Long:  "Runs ingest, normalize, dedup, evaluate and digest in order, stopping at the first failed stage. With --catch-up, runs every stage whose last success is stale instead.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		env, err := initPipeline(ctx, "digest", os.Stdout)
		if err != nil {
			return err
		}
		defer env.Close()

		engine, err := env.Engine()
		if err != nil {
			return err
		}

		var summary *schedule.Summary
		if catchUp, _ := cmd.Flags().GetBool("catch-up"); catchUp {
			summary, err = engine.RunDue(ctx)
		} else {
			summary, err = engine.RunChain(ctx)
		}
		if summary != nil {
			formatSummary(os.Stdout, summary)
		}
		if err != nil {
			return err
		}
		if !summary.OK() {
			return eris.New("run: one or more stages failed")
		}
		return nil
	},
}

func formatSummary(w io.Writer, s *schedule.Summary) {
	if len(s.Ran) > 0 {
		fmt.Fprintf(w, "%s %s\n", color.GreenString("ran:"), strings.Join(s.Ran, ", "))
	}
	if len(s.NotDue) > 0 {
		fmt.Fprintf(w, "not due: %s\n", strings.Join(s.NotDue, ", "))
	}
	if len(s.Skipped) > 0 {
		fmt.Fprintf(w, "%s %s\n", color.YellowString("skipped:"), strings.Join(s.Skipped, ", "))
	}
	names := make([]string, 0, len(s.Failed))
	for name := range s.Failed {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(w, "%s %s: %s\n", color.RedString("failed:"), name, s.Failed[name])
	}
}

func init() {
	runCmd.Flags().Bool("catch-up", false, "run every stage that is due instead of the daily chain")
	rootCmd.AddCommand(runCmd)
}
