package main

import (
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/sells-group/mna-tracker/internal/model"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the nightly pipeline (yesterday and today, both stages)",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initPipeline(ctx, prometheus.NewRegistry())
		if err != nil {
			return err
		}
		defer env.Close()

		rc, err := env.Pipeline.RunNightly(ctx)
		if err != nil {
			return err
		}
		env.logRun(rc)
		return nil
	},
}

var backfillCmd = &cobra.Command{
	Use:   "backfill",
	Short: "Ingest and enrich the trailing window of days ending yesterday",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		days, _ := cmd.Flags().GetInt("days")

		env, err := initPipeline(ctx, prometheus.NewRegistry())
		if err != nil {
			return err
		}
		defer env.Close()

		rc, err := env.Pipeline.RunBackfill(ctx, days)
		if err != nil {
			return err
		}
		env.logRun(rc)
		return nil
	},
}

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Run only the fast-forward stage over an explicit date range",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		fromStr, _ := cmd.Flags().GetString("from")
		toStr, _ := cmd.Flags().GetString("to")
		from, err := parseDay("from", fromStr)
		if err != nil {
			return err
		}
		to := from
		if toStr != "" {
			if to, err = parseDay("to", toStr); err != nil {
				return err
			}
		}

		env, err := initPipeline(ctx, prometheus.NewRegistry())
		if err != nil {
			return err
		}
		defer env.Close()

		rc, err := env.Pipeline.Run(ctx, model.RunKindIngest, from, to)
		if err != nil {
			return err
		}
		env.logRun(rc)
		return nil
	},
}

var enrichCmd = &cobra.Command{
	Use:   "enrich",
	Short: "Run only the enrichment stage over the pending set",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if limit, _ := cmd.Flags().GetInt("limit"); limit > 0 {
			cfg.Pipeline.BatchSize = limit
			cfg.Pipeline.MaxBatches = 1
		}

		env, err := initPipeline(ctx, prometheus.NewRegistry())
		if err != nil {
			return err
		}
		defer env.Close()

		today := model.Day(time.Now())
		rc, err := env.Pipeline.Run(ctx, model.RunKindEnrich, today, today)
		if err != nil {
			return err
		}
		env.logRun(rc)
		return nil
	},
}

func init() {
	backfillCmd.Flags().Int("days", 0, "number of days to backfill (default pipeline.backfill_days)")

	ingestCmd.Flags().String("from", "", "first day to ingest (YYYY-MM-DD)")
	ingestCmd.Flags().String("to", "", "last day to ingest (YYYY-MM-DD, default --from)")
	_ = ingestCmd.MarkFlagRequired("from")

	enrichCmd.Flags().Int("limit", 0, "enrich at most this many rows in a single batch")

	rootCmd.AddCommand(runCmd, backfillCmd, ingestCmd, enrichCmd)
}
