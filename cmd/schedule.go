package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/tender-intel/internal/monitoring"
	"github.com/sells-group/tender-intel/internal/schedule"
	"github.com/sells-group/tender-intel/internal/store"
)

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Run the pipeline on its cron schedule",
	Long:  "Starts the scheduler: weekly discovery, the daily chain, weekly calibration and the feedback threshold check. Health checks run after every daily chain.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate("schedule"); err != nil {
			return err
		}
		env, err := initPipeline(ctx, "digest", os.Stdout)
		if err != nil {
			return err
		}
		defer env.Close()

		engine, err := env.Engine()
		if err != nil {
			return err
		}

		sched, err := schedule.NewScheduler(engine, cfg.Schedule, env.Location,
			schedule.WithMonitor(newChecker(env.Store)))
		if err != nil {
			return err
		}

		if catchUp, _ := cmd.Flags().GetBool("catch-up"); catchUp {
			summary, err := engine.RunDue(ctx)
			if err != nil {
				return err
			}
			formatSummary(os.Stdout, summary)
		}

		zap.L().Info("scheduler running",
			zap.String("timezone", env.Location.String()),
			zap.Int("jobs", len(sched.Entries())),
		)
		sched.Start(ctx)
		return nil
	},
}

func newChecker(st store.Store) *monitoring.Checker {
	return monitoring.NewChecker(
		monitoring.NewCollector(st),
		monitoring.NewAlerter(cfg.Monitoring),
		cfg.Monitoring,
	)
}

func init() {
	scheduleCmd.Flags().Bool("catch-up", true, "run overdue stages before waiting for the next tick")
	rootCmd.AddCommand(scheduleCmd)
}
