package main

import (
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/tender-intel/internal/digest"
	"github.com/sells-group/tender-intel/internal/schedule"
	"github.com/sells-group/tender-intel/internal/store"
)

var digestCmd = stageCommand("digest", schedule.StageDigest, "digest",
	"Compile today's digest and publish it to the configured sinks")

// -- digest show --

var digestShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the most recent digest",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		d, err := st.LatestDigest(ctx)
		if eris.Is(err, store.ErrNotFound) {
			fmt.Fprintln(os.Stderr, "No digest has been compiled yet.")
			return nil
		}
		if err != nil {
			return eris.Wrap(err, "digest show")
		}
		return digest.Render(os.Stdout, d)
	},
}

func init() {
	digestCmd.AddCommand(digestShowCmd)
	rootCmd.AddCommand(digestCmd)
}
