package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/mna-tracker/internal/model"
	"github.com/sells-group/mna-tracker/internal/store"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show enrichment status counts and recent runs",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("migrate"); err != nil {
			return err
		}
		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		limit, _ := cmd.Flags().GetInt("runs")
		kind, _ := cmd.Flags().GetString("kind")

		counts, err := st.CountByStatus(ctx)
		if err != nil {
			return eris.Wrap(err, "status")
		}
		runs, err := st.ListRuns(ctx, store.RunFilter{Kind: model.RunKind(kind), Limit: limit})
		if err != nil {
			return eris.Wrap(err, "status")
		}

		formatStatusCounts(os.Stdout, counts)
		fmt.Fprintln(os.Stdout)
		if len(runs) == 0 {
			fmt.Fprintln(os.Stderr, "No runs found.")
			return nil
		}
		formatRunsList(os.Stdout, runs)
		return nil
	},
}

func init() {
	statusCmd.Flags().Int("runs", 10, "number of recent runs to display")
	statusCmd.Flags().String("kind", "", "filter runs by kind (nightly, backfill, ingest, enrich)")
	rootCmd.AddCommand(statusCmd)
}

// formatStatusCounts writes the per-status announcement counts to w.
func formatStatusCounts(out io.Writer, counts map[model.EnrichStatus]int) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	total := 0
	for _, s := range []model.EnrichStatus{model.StatusPending, model.StatusEnriched, model.StatusFailed} {
		_, _ = fmt.Fprintf(w, "%s:\t%d\n", s, counts[s])
		total += counts[s]
	}
	_, _ = fmt.Fprintf(w, "total:\t%d\n", total)
	_ = w.Flush()
}

// formatRunsList writes a tabular list of runs to w.
func formatRunsList(out io.Writer, runs []model.PipelineRun) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tKIND\tWINDOW\tSTATUS\tINSERTED\tENRICHED\tFAILED\tDAYS_FAILED\tSTARTED\tDURATION")
	_, _ = fmt.Fprintln(w, "--\t----\t------\t------\t--------\t--------\t------\t-----------\t-------\t--------")

	for _, r := range runs {
		dur := ""
		if r.CompletedAt != nil {
			dur = r.CompletedAt.Sub(r.StartedAt).Round(time.Second).String()
		}
		window := r.WindowStart.Format(model.DateLayout)
		if !r.WindowEnd.Equal(r.WindowStart) {
			window += ".." + r.WindowEnd.Format(model.DateLayout)
		}

		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%d\t%d\t%d\t%s\t%s\n",
			truncateID(r.ID),
			r.Kind,
			window,
			r.Status,
			r.Counters.Inserted,
			r.Counters.Enriched,
			r.Counters.Failed,
			r.Counters.DaysFailed,
			r.StartedAt.Format("2006-01-02 15:04"),
			dur,
		)
	}
	_ = w.Flush()
}

// truncateID returns the first 8 characters of a UUID for compact display.
func truncateID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
