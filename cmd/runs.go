package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/tender-intel/internal/model"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List recent stage runs",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		hours, _ := cmd.Flags().GetInt("hours")
		runs, err := st.ListRuns(ctx, time.Now().Add(-time.Duration(hours)*time.Hour))
		if err != nil {
			return eris.Wrap(err, "runs")
		}
		if len(runs) == 0 {
			fmt.Fprintln(os.Stderr, "No runs found.")
			return nil
		}

		formatRunsList(os.Stdout, runs)
		return nil
	},
}

// -- runs check --

var runsCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Run the health check once and send any alerts",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		alerts := newChecker(st).Check(ctx)
		if len(alerts) == 0 {
			fmt.Println("No alerts.")
			return nil
		}
		for _, a := range alerts {
			fmt.Printf("[%s] %s: %s\n", a.Severity, a.Type, a.Message)
		}
		return nil
	},
}

func formatRunsList(w io.Writer, runs []model.StageRun) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTAGE\tSTATUS\tSTARTED\tDURATION\tPROCESSED\tNEW\tFAILURES\tERROR")
	for _, r := range runs {
		var processed, created, failures int
		if r.Result != nil {
			processed, created, failures = r.Result.ItemsProcessed, r.Result.NewItems, r.Result.Failures
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%d\t%d\t%d\t%s\n",
			r.ID,
			r.Stage,
			colorStatus(r.Status),
			humanize.Time(r.StartedAt),
			(time.Duration(r.DurationMS) * time.Millisecond).String(),
			processed,
			created,
			failures,
			truncate(r.Error, 60),
		)
	}
	tw.Flush() //nolint:errcheck
}

func colorStatus(s model.StageRunStatus) string {
	switch s {
	case model.StageSuccess:
		return color.GreenString(string(s))
	case model.StagePartial:
		return color.YellowString(string(s))
	case model.StageFailed:
		return color.RedString(string(s))
	}
	return string(s)
}

func init() {
	runsCmd.Flags().Int("hours", 72, "look back this many hours")
	runsCmd.AddCommand(runsCheckCmd)
	rootCmd.AddCommand(runsCmd)
}
