package main

import (
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/tender-intel/internal/api"
	"github.com/sells-group/tender-intel/internal/model"
	"github.com/sells-group/tender-intel/internal/store"
)

var decideCmd = &cobra.Command{
	Use:   "decide <tender-id> <action>",
	Short: "Log a go/no-go decision on a tender",
	Long:  "Appends a decision to the decision log. Actions: track, ignore, assign, partner_needed, not_for_us, shortlisted, won, lost.",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		action, ok := api.ParseAction(args[1])
		if !ok {
			return eris.Errorf("unknown decision action %q", args[1])
		}

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		notes, _ := cmd.Flags().GetString("notes")
		by, _ := cmd.Flags().GetString("by")
		stage, _ := cmd.Flags().GetString("stage")

		d := &model.Decision{
			TenderID:  args[0],
			Action:    action,
			Notes:     notes,
			Stage:     stage,
			DecidedBy: by,
			DecidedAt: time.Now().UTC(),
		}
		if err := st.InsertDecision(ctx, d); err != nil {
			if eris.Is(err, store.ErrNotFound) {
				return eris.Errorf("tender %s not found", args[0])
			}
			return eris.Wrap(err, "decide")
		}
		fmt.Printf("Logged %s on %s (%s)\n", d.Action, d.TenderID, d.ID)
		return nil
	},
}

func init() {
	decideCmd.Flags().String("notes", "", "free-text notes")
	decideCmd.Flags().String("by", "", "who made the decision")
	decideCmd.Flags().String("stage", "", "pipeline stage the tender was at")
	rootCmd.AddCommand(decideCmd)
}
