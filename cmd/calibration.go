package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/tender-intel/internal/feedback"
	"github.com/sells-group/tender-intel/internal/model"
	"github.com/sells-group/tender-intel/internal/schedule"
)

var calibrationCmd = &cobra.Command{
	Use:   "calibration",
	Short: "Run and review profile calibration",
	Long:  "Commands for running the feedback loop and approving or rejecting its recommendations.",
}

var calibrationRunCmd = stageCommand("run", schedule.StageFeedback, "store",
	"Compare recent decisions with predictions and propose profile changes")

// -- calibration list --

var calibrationListCmd = &cobra.Command{
	Use:   "list",
	Short: "List calibration recommendations",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		status, _ := cmd.Flags().GetString("status")
		if status == "all" {
			status = ""
		}
		recs, err := st.ListRecommendations(ctx, model.RecommendationStatus(status))
		if err != nil {
			return eris.Wrap(err, "calibration list")
		}
		if len(recs) == 0 {
			fmt.Fprintln(os.Stderr, "No recommendations found.")
			return nil
		}
		formatRecommendations(os.Stdout, recs)
		return nil
	},
}

// -- calibration approve --

var calibrationApproveCmd = &cobra.Command{
	Use:   "approve <recommendation-id>",
	Short: "Apply a proposed recommendation to the active profile",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		by, _ := cmd.Flags().GetString("by")
		_, reasoner := initLLM(nil)
		learner := feedback.New(st, cfg.Feedback, feedback.WithReasoner(reasoner))

		res, err := learner.Approve(ctx, args[0], by)
		if err != nil {
			return err
		}
		fmt.Printf("Approved %s: profile now %s, %d tenders queued for re-evaluation\n",
			args[0], res.Profile.Version, res.ReEvaluate)
		return nil
	},
}

// -- calibration reject --

var calibrationRejectCmd = &cobra.Command{
	Use:   "reject <recommendation-id>",
	Short: "Reject a proposed recommendation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		by, _ := cmd.Flags().GetString("by")
		learner := feedback.New(st, cfg.Feedback)
		if err := learner.Reject(ctx, args[0], by); err != nil {
			return err
		}
		fmt.Printf("Rejected %s\n", args[0])
		return nil
	},
}

func formatRecommendations(w io.Writer, recs []model.Recommendation) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTATUS\tTYPE\tTARGET\tCHANGE\tCONFIDENCE\tDESCRIPTION")
	for _, r := range recs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%.2f\t%s\n",
			r.ID,
			r.Status,
			r.Type,
			r.Target,
			formatChange(r.CurrentValue, r.RecommendedValue),
			r.Confidence,
			truncate(r.Description, 60),
		)
	}
	tw.Flush() //nolint:errcheck
}

func formatChange(current, recommended *float64) string {
	switch {
	case current != nil && recommended != nil:
		return fmt.Sprintf("%.2f -> %.2f", *current, *recommended)
	case recommended != nil:
		return fmt.Sprintf("-> %.2f", *recommended)
	default:
		return "-"
	}
}

func init() {
	calibrationListCmd.Flags().String("status", string(model.RecProposed), "filter by status (proposed, approved, rejected, all)")
	calibrationApproveCmd.Flags().String("by", "", "who approved the change")
	calibrationRejectCmd.Flags().String("by", "", "who rejected the change")
	_ = calibrationApproveCmd.MarkFlagRequired("by")
	_ = calibrationRejectCmd.MarkFlagRequired("by")

	calibrationCmd.AddCommand(calibrationRunCmd, calibrationListCmd, calibrationApproveCmd, calibrationRejectCmd)
	rootCmd.AddCommand(calibrationCmd)
}
