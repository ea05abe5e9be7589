package main

import (
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/sells-group/tender-intel/internal/model"
	"github.com/sells-group/tender-intel/internal/schedule"
)

// stageCommand builds a command that runs one pipeline stage through the
// engine so the run is recorded in the stage run log.
func stageCommand(use, stage, mode, short string) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			env, err := initPipeline(ctx, mode, os.Stdout)
			if err != nil {
				return err
			}
			defer env.Close()

			engine, err := env.Engine()
			if err != nil {
				return err
			}

			result, err := engine.RunStage(ctx, stage)
			if err != nil {
				return err
			}
			formatStageResult(os.Stdout, stage, result)
			return nil
		},
	}
}

var (
	discoverCmd = stageCommand("discover", schedule.StageDiscovery, "ingest",
		"Crawl discovery hubs for new sources and re-probe broken ones")
	ingestCmd = stageCommand("ingest", schedule.StageIngest, "ingest",
		"Fetch every ingestable source and store raw captures")
	normalizeCmd = stageCommand("normalize", schedule.StageNormalize, "store",
		"Normalise pending raw captures into tenders")
	dedupCmd = stageCommand("dedup", schedule.StageDedup, "store",
		"Link duplicate tenders to their canonical record")
	evaluateCmd = stageCommand("evaluate", schedule.StageEvaluate, "store",
		"Score pending tenders against the active profile")
)

func formatStageResult(w io.Writer, stage string, r *model.StageResult) {
	status := color.GreenString(string(r.Status()))
	if r.Status() != model.StageSuccess {
		status = color.YellowString(string(r.Status()))
	}
	fmt.Fprintf(w, "%s %s: %d processed, %d new, %d failures\n",
		stage, status, r.ItemsProcessed, r.NewItems, r.Failures)

	keys := make([]string, 0, len(r.Detail))
	for k := range r.Detail {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(w, "  %s: %v\n", k, r.Detail[k])
	}
}

func init() {
	rootCmd.AddCommand(discoverCmd, ingestCmd, normalizeCmd, dedupCmd, evaluateCmd)
}
