package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/tender-intel/internal/model"
	"github.com/sells-group/tender-intel/internal/registry"
	"github.com/sells-group/tender-intel/internal/store"
	"github.com/sells-group/tender-intel/internal/validate"
)

var sourcesCmd = &cobra.Command{
	Use:   "sources",
	Short: "Manage the tender source registry",
	Long:  "Commands for importing, exporting, listing, validating and deprecating registry entries.",
}

// -- sources import --

var sourcesImportCmd = &cobra.Command{
	Use:   "import <catalog.yaml>",
	Short: "Import registry entries from a YAML catalog",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		catalog, err := registry.LoadCatalog(args[0])
		if err != nil {
			return err
		}

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		result, err := registry.Import(ctx, st, catalog.Sources)
		if err != nil {
			return eris.Wrap(err, "sources import")
		}

		fmt.Printf("Imported %d sources (%d created, %d updated)\n",
			result.Created+result.Updated, result.Created, result.Updated)
		for _, inv := range result.Invalid {
			fmt.Fprintf(os.Stderr, "  skipped #%d %s: %s\n", inv.Index, inv.Name, inv.Reason)
		}
		return nil
	},
}

// -- sources export --

var sourcesExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the registry as a YAML catalog",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		var w io.Writer = os.Stdout
		if out, _ := cmd.Flags().GetString("out"); out != "" {
			f, err := os.Create(out)
			if err != nil {
				return eris.Wrap(err, "sources export: create output")
			}
			defer f.Close() //nolint:errcheck
			w = f
		}

		n, err := registry.Export(ctx, st, w)
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "Exported %d sources\n", n)
		return nil
	},
}

// -- sources list --

var sourcesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registry entries",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		filter, err := sourceFilterFromFlags(cmd)
		if err != nil {
			return err
		}

		sources, err := st.ListSources(ctx, filter)
		if err != nil {
			return eris.Wrap(err, "sources list")
		}
		if len(sources) == 0 {
			fmt.Fprintln(os.Stderr, "No sources found.")
			return nil
		}

		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(sources)
		}
		formatSourcesList(os.Stdout, sources)
		return nil
	},
}

// -- sources health --

var sourcesHealthCmd = &cobra.Command{
	Use:   "health",
	Short: "Summarise registry health",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		h, err := registry.HealthSummary(ctx, st)
		if err != nil {
			return err
		}

		fmt.Printf("Total:   %d\n", h.Total)
		fmt.Printf("Active:  %d\n", h.Active)
		fmt.Printf("Failing: %d\n", h.Failing)
		fmt.Printf("Pending: %d\n", h.Pending)
		for _, issue := range h.Issues {
			fmt.Printf("  - %s\n", issue)
		}
		return nil
	},
}

// -- sources validate --

var sourcesValidateCmd = &cobra.Command{
	Use:   "validate <url>",
	Short: "Validate a candidate URL and register it if it qualifies",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		classifier, _ := initLLM(nil)
		v := validate.New(newHTTPFetcher(), st, cfg.Fetch.UserAgent, validate.WithClassifier(classifier))

		name, _ := cmd.Flags().GetString("name")
		org, _ := cmd.Flags().GetString("organisation")
		jur, _ := cmd.Flags().GetString("jurisdiction")

		res, err := v.Validate(ctx, validate.Candidate{
			URL:          args[0],
			Name:         name,
			Organisation: org,
			Jurisdiction: model.Jurisdiction(strings.ToUpper(jur)),
		})
		if err != nil {
			return err
		}

		switch res.Outcome {
		case validate.OutcomeRejected:
			fmt.Printf("Rejected: %s", res.Rejection.Reason)
			if res.Rejection.Detail != "" {
				fmt.Printf(" (%s)", res.Rejection.Detail)
			}
			fmt.Println()
		default:
			fmt.Printf("%s: %s [%s, %s]\n", res.Outcome, res.Source.ID, res.Source.SourceType, res.Source.Status)
		}
		return nil
	},
}

// -- sources deprecate --

var sourcesDeprecateCmd = &cobra.Command{
	Use:   "deprecate <source-id>",
	Short: "Deprecate a registry entry",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		reason, _ := cmd.Flags().GetString("reason")
		if err := registry.Deprecate(ctx, st, args[0], reason); err != nil {
			return err
		}
		fmt.Printf("Deprecated %s\n", args[0])
		return nil
	},
}

func sourceFilterFromFlags(cmd *cobra.Command) (store.SourceFilter, error) {
	var filter store.SourceFilter
	statuses, _ := cmd.Flags().GetStringSlice("status")
	for _, s := range statuses {
		status := model.SourceStatus(strings.ToLower(strings.TrimSpace(s)))
		if !status.Valid() {
			return filter, eris.Errorf("unknown source status %q", s)
		}
		filter.Statuses = append(filter.Statuses, status)
	}
	jur, _ := cmd.Flags().GetString("jurisdiction")
	filter.Jurisdiction = model.Jurisdiction(strings.ToUpper(jur))
	filter.Limit, _ = cmd.Flags().GetInt("limit")
	return filter, nil
}

func formatSourcesList(w io.Writer, sources []model.Source) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tJURIS\tTYPE\tSTATUS\tPRIORITY\tRELIABILITY\tLAST CHECK\tNAME")
	for _, src := range sources {
		checked := "never"
		if src.LastCheckedAt != nil {
			checked = humanize.Time(*src.LastCheckedAt)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%.2f\t%s\t%s\n",
			src.ID,
			src.Jurisdiction,
			src.SourceType,
			src.Status,
			src.Priority,
			src.ReliabilityScore,
			checked,
			truncate(src.Name, 50),
		)
	}
	tw.Flush() //nolint:errcheck
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}

func init() {
	sourcesExportCmd.Flags().String("out", "", "write the catalog to a file instead of stdout")

	sourcesListCmd.Flags().StringSlice("status", nil, "filter by status (active, pending_validation, broken, format_changed, deprecated)")
	sourcesListCmd.Flags().String("jurisdiction", "", "filter by jurisdiction (HK, SG, GLOBAL)")
	sourcesListCmd.Flags().Int("limit", 0, "maximum number of sources (0 = all)")
	sourcesListCmd.Flags().Bool("json", false, "print JSON instead of a table")

	sourcesValidateCmd.Flags().String("name", "", "display name for the source")
	sourcesValidateCmd.Flags().String("organisation", "", "publishing organisation")
	sourcesValidateCmd.Flags().String("jurisdiction", "", "jurisdiction hint (HK, SG, GLOBAL)")

	sourcesDeprecateCmd.Flags().String("reason", "", "why the source is deprecated")

	sourcesCmd.AddCommand(sourcesImportCmd, sourcesExportCmd, sourcesListCmd, sourcesHealthCmd, sourcesValidateCmd, sourcesDeprecateCmd)
	rootCmd.AddCommand(sourcesCmd)
}
