package main

import (
	"context"
	"encoding/csv"
	"io"
	"os"
	"time"

	"github.com/jszwec/csvutil"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/mna-tracker/internal/model"
	"github.com/sells-group/mna-tracker/internal/store"
)

const exportPageSize = 500

// exportRow is one CSV line of the announcements export.
type exportRow struct {
	Date             string `csv:"announcement_date"`
	Title            string `csv:"announcement_title"`
	StockCode        string `csv:"stock_code"`
	CompanyName      string `csv:"company_name"`
	DocURL           string `csv:"pdf_link"`
	Industry         string `csv:"industry"`
	MainBusiness     string `csv:"main_business"`
	TransactionType  string `csv:"transaction_type"`
	Acquirer         string `csv:"acquirer"`
	Target           string `csv:"target_company"`
	TransactionPrice string `csv:"transaction_price"`
	AmountCNY        string `csv:"transaction_amount_cny"`
	Summary          string `csv:"summary"`
	Status           string `csv:"status"`
	EnrichAttempts   int    `csv:"enrich_attempts"`
	Source           string `csv:"source"`
}

func toExportRow(a model.Announcement) exportRow {
	r := exportRow{
		Date:             a.Date.Format(model.DateLayout),
		Title:            a.Title,
		StockCode:        a.StockCode,
		CompanyName:      a.CompanyName,
		DocURL:           a.DocURL,
		Industry:         a.Industry,
		MainBusiness:     a.MainBusiness,
		TransactionType:  a.Details.TransactionType,
		Acquirer:         a.Details.Acquirer,
		Target:           a.Details.Target,
		TransactionPrice: a.Details.TransactionPrice,
		Summary:          a.Details.Summary,
		Status:           string(a.Status),
		EnrichAttempts:   a.EnrichAttempts,
		Source:           a.Source,
	}
	if a.Details.AmountCNY.Valid {
		r.AmountCNY = a.Details.AmountCNY.Decimal.String()
	}
	return r
}

// writeCSV encodes announcements as CSV with a header row, even when
// there are no rows.
func writeCSV(out io.Writer, rows []model.Announcement) error {
	w := csv.NewWriter(out)
	enc := csvutil.NewEncoder(w)

	if len(rows) == 0 {
		if err := enc.EncodeHeader(exportRow{}); err != nil {
			return eris.Wrap(err, "export: encode header")
		}
	}
	for _, a := range rows {
		if err := enc.Encode(toExportRow(a)); err != nil {
			return eris.Wrapf(err, "export: encode %s", a.Key())
		}
	}

	w.Flush()
	return eris.Wrap(w.Error(), "export: flush")
}

// collectAnnouncements pages through the store for the filter, oldest first.
func collectAnnouncements(ctx context.Context, st store.Store, filter store.AnnouncementFilter) ([]model.Announcement, error) {
	filter.Ascending = true
	filter.Limit = exportPageSize
	var all []model.Announcement
	for {
		page, err := st.ListAnnouncements(ctx, filter)
		if err != nil {
			return nil, eris.Wrap(err, "export: list announcements")
		}
		all = append(all, page...)
		if len(page) < exportPageSize {
			return all, nil
		}
		filter.Offset += len(page)
	}
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export stored announcements as CSV",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		fromStr, _ := cmd.Flags().GetString("from")
		toStr, _ := cmd.Flags().GetString("to")
		status, _ := cmd.Flags().GetString("status")
		outPath, _ := cmd.Flags().GetString("out")

		filter := store.AnnouncementFilter{Status: model.EnrichStatus(status)}
		var err error
		if fromStr != "" {
			if filter.From, err = parseDay("from", fromStr); err != nil {
				return err
			}
		}
		if toStr != "" {
			if filter.To, err = parseDay("to", toStr); err != nil {
				return err
			}
		}

		if err := cfg.Validate("migrate"); err != nil {
			return err
		}
		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		rows, err := collectAnnouncements(ctx, st, filter)
		if err != nil {
			return err
		}

		var out io.Writer = os.Stdout
		if outPath != "" && outPath != "-" {
			f, err := os.Create(outPath)
			if err != nil {
				return eris.Wrapf(err, "export: create %s", outPath)
			}
			defer f.Close() //nolint:errcheck
			out = f
		}

		start := time.Now()
		if err := writeCSV(out, rows); err != nil {
			return err
		}
		zap.L().Info("export complete",
			zap.Int("rows", len(rows)),
			zap.String("out", outPath),
			zap.Duration("elapsed", time.Since(start)),
		)
		return nil
	},
}

func init() {
	exportCmd.Flags().String("from", "", "first announcement date (YYYY-MM-DD)")
	exportCmd.Flags().String("to", "", "last announcement date (YYYY-MM-DD)")
	exportCmd.Flags().String("status", "", "only export rows with this status (pending, enriched, failed)")
	exportCmd.Flags().String("out", "", "output file (default stdout)")
	rootCmd.AddCommand(exportCmd)
}
