package store

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sells-group/mna-tracker/internal/model"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

var may1 = time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

func stubRow(day time.Time, title, code string) model.NormalizedRow {
	return model.NormalizedRow{
		Date:        day,
		Title:       title,
		StockCode:   code,
		CompanyName: "公司" + code,
		DocURL:      "https://static.cninfo.com.cn/finalpage/" + code + ".PDF",
		Source:      "cninfo",
	}
}

func TestSQLite_MigrateIdempotent(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	_, err := st.UpsertStubs(ctx, may1, []model.NormalizedRow{stubRow(may1, "甲 重组预案", "600001")}, PolicyBackfillMissing)
	require.NoError(t, err)

	require.NoError(t, st.Migrate(ctx))
	require.NoError(t, st.Migrate(ctx))

	list, err := st.ListAnnouncements(ctx, AnnouncementFilter{})
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestSQLite_UpsertStubs_Idempotent(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	rows := []model.NormalizedRow{
		stubRow(may1, "甲 重大资产重组预案", "600001"),
		stubRow(may1, "乙 发行股份购买资产草案", "000002"),
	}

	res, err := st.UpsertStubs(ctx, may1, rows, PolicyBackfillMissing)
	require.NoError(t, err)
	assert.Equal(t, UpsertResult{Inserted: 2}, res)

	res, err = st.UpsertStubs(ctx, may1, rows, PolicyBackfillMissing)
	require.NoError(t, err)
	assert.Equal(t, UpsertResult{Skipped: 2}, res)

	counts, err := st.CountByStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, counts[model.StatusPending])
}

func TestSQLite_UpsertStubs_SameDocDifferentTitles(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	a := stubRow(may1, "甲 重组预案", "600001")
	b := stubRow(may1, "甲 重组预案（摘要）", "600001")
	res, err := st.UpsertStubs(ctx, may1, []model.NormalizedRow{a, b}, PolicyDoNothing)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Inserted)
}

func TestSQLite_UpsertStubs_BackfillMissing(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	sparse := model.NormalizedRow{Date: may1, Title: "甲 重组预案", StockCode: model.MissingValue, CompanyName: "", DocURL: model.MissingValue}
	_, err := st.UpsertStubs(ctx, may1, []model.NormalizedRow{sparse}, PolicyBackfillMissing)
	require.NoError(t, err)

	full := stubRow(may1, "甲 重组预案", "600001")
	full.CompanyName = "甲股份"

	res, err := st.UpsertStubs(ctx, may1, []model.NormalizedRow{full}, PolicyDoNothing)
	require.NoError(t, err)
	assert.Equal(t, UpsertResult{Skipped: 1}, res)

	res, err = st.UpsertStubs(ctx, may1, []model.NormalizedRow{full}, PolicyBackfillMissing)
	require.NoError(t, err)
	assert.Equal(t, UpsertResult{Backfilled: 1}, res)

	got, err := st.GetAnnouncement(ctx, model.NewKey(may1, "甲 重组预案"))
	require.NoError(t, err)
	assert.Equal(t, "600001", got.StockCode)
	assert.Equal(t, "甲股份", got.CompanyName)
	assert.Equal(t, full.DocURL, got.DocURL)

	// Present values are never overwritten.
	other := full
	other.StockCode = "999999"
	other.CompanyName = "别的公司"
	res, err = st.UpsertStubs(ctx, may1, []model.NormalizedRow{other}, PolicyBackfillMissing)
	require.NoError(t, err)
	assert.Equal(t, UpsertResult{Skipped: 1}, res)

	got, err = st.GetAnnouncement(ctx, model.NewKey(may1, "甲 重组预案"))
	require.NoError(t, err)
	assert.Equal(t, "600001", got.StockCode)
	assert.Equal(t, "甲股份", got.CompanyName)
}

func TestSQLite_UpsertStubs_BackfillNeverTouchesDerivedFields(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	sparse := model.NormalizedRow{Date: may1, Title: "甲 重组预案", StockCode: model.MissingValue, DocURL: "http://x/1.pdf"}
	_, err := st.UpsertStubs(ctx, may1, []model.NormalizedRow{sparse}, PolicyBackfillMissing)
	require.NoError(t, err)

	key := model.NewKey(may1, "甲 重组预案")
	status, err := st.UpdateDetails(ctx, key, DetailUpdate{Details: okDetails(), MaxAttempts: 3})
	require.NoError(t, err)
	assert.Equal(t, model.StatusEnriched, status)

	res, err := st.UpsertStubs(ctx, may1, []model.NormalizedRow{stubRow(may1, "甲 重组预案", "600001")}, PolicyBackfillMissing)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Backfilled)

	got, err := st.GetAnnouncement(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, model.StatusEnriched, got.Status)
	assert.Equal(t, "乙公司", got.Details.Target)
	assert.Equal(t, "http://x/1.pdf", got.DocURL)
	assert.Equal(t, "600001", got.StockCode)
}

func TestSQLite_UpsertStubs_BackfilledLinkReopensNoDocument(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	sparse := model.NormalizedRow{Date: may1, Title: "甲 重组预案", StockCode: "600001", CompanyName: "甲股份", DocURL: model.MissingValue}
	_, err := st.UpsertStubs(ctx, may1, []model.NormalizedRow{sparse}, PolicyBackfillMissing)
	require.NoError(t, err)

	key := model.NewKey(may1, "甲 重组预案")
	status, err := st.UpdateDetails(ctx, key, DetailUpdate{
		Details:     model.DealDetails{Outcome: model.OutcomeNoDocument},
		MaxAttempts: 3,
	})
	require.NoError(t, err)
	require.Equal(t, model.StatusFailed, status)

	res, err := st.UpsertStubs(ctx, may1, []model.NormalizedRow{stubRow(may1, "甲 重组预案", "600001")}, PolicyBackfillMissing)
	require.NoError(t, err)
	assert.Equal(t, UpsertResult{Backfilled: 1}, res)

	got, err := st.GetAnnouncement(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, model.StatusPending, got.Status)
	assert.Equal(t, 0, got.EnrichAttempts)
	assert.Empty(t, got.LastError)
	assert.Empty(t, got.Details.Summary)
	assert.Empty(t, got.Details.Acquirer)
	assert.Equal(t, stubRow(may1, "", "600001").DocURL, got.DocURL)

	pending, err := st.SelectPending(ctx, 10, nil)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, got.ID, pending[0].ID)
}

func TestSQLite_UpsertStubs_BackfillKeepsOtherFailures(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	sparse := model.NormalizedRow{Date: may1, Title: "甲 重组预案", StockCode: model.MissingValue, CompanyName: "甲股份", DocURL: "http://x/1.pdf"}
	_, err := st.UpsertStubs(ctx, may1, []model.NormalizedRow{sparse}, PolicyBackfillMissing)
	require.NoError(t, err)

	key := model.NewKey(may1, "甲 重组预案")
	status, err := st.UpdateDetails(ctx, key, DetailUpdate{
		Details:     model.DealDetails{Outcome: model.OutcomeUnreadable},
		MaxAttempts: 1,
	})
	require.NoError(t, err)
	require.Equal(t, model.StatusFailed, status)

	res, err := st.UpsertStubs(ctx, may1, []model.NormalizedRow{stubRow(may1, "甲 重组预案", "600001")}, PolicyBackfillMissing)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Backfilled)

	got, err := st.GetAnnouncement(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, model.StatusFailed, got.Status, "only a missing document is cured by a link")
	assert.Equal(t, 1, got.EnrichAttempts)
	assert.Equal(t, "600001", got.StockCode)
}

func TestSQLite_SelectPending_OrderAndExclude(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	may2 := may1.AddDate(0, 0, 1)
	_, err := st.UpsertStubs(ctx, may2, []model.NormalizedRow{stubRow(may2, "丙 重组预案", "000003")}, PolicyDoNothing)
	require.NoError(t, err)
	_, err = st.UpsertStubs(ctx, may1, []model.NormalizedRow{
		stubRow(may1, "甲 重组预案", "600001"),
		stubRow(may1, "乙 重组草案", "000002"),
	}, PolicyDoNothing)
	require.NoError(t, err)

	pending, err := st.SelectPending(ctx, 10, nil)
	require.NoError(t, err)
	require.Len(t, pending, 3)
	assert.Equal(t, "甲 重组预案", pending[0].Title)
	assert.Equal(t, "乙 重组草案", pending[1].Title)
	assert.Equal(t, "丙 重组预案", pending[2].Title)
	assert.True(t, pending[0].Pending())

	limited, err := st.SelectPending(ctx, 1, []int64{pending[0].ID})
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, "乙 重组草案", limited[0].Title)

	none, err := st.SelectPending(ctx, 0, nil)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestSQLite_UpdateDetails_Enriched(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	_, err := st.UpsertStubs(ctx, may1, []model.NormalizedRow{stubRow(may1, "甲 重组预案", "600001")}, PolicyDoNothing)
	require.NoError(t, err)
	key := model.NewKey(may1, "甲 重组预案")

	status, err := st.UpdateDetails(ctx, key, DetailUpdate{
		Details:     okDetails(),
		Profile:     model.Profile{StockCode: "600001", Industry: "制造业", MainBusiness: "机械"},
		MaxAttempts: 3,
	})
	require.NoError(t, err)
	assert.Equal(t, model.StatusEnriched, status)

	got, err := st.GetAnnouncement(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, model.StatusEnriched, got.Status)
	assert.Equal(t, 1, got.EnrichAttempts)
	assert.Equal(t, "制造业", got.Industry)
	assert.Equal(t, "机械", got.MainBusiness)
	assert.Equal(t, "甲公司", got.Details.Acquirer)
	require.True(t, got.Details.AmountCNY.Valid)
	assert.True(t, got.Details.AmountCNY.Decimal.Equal(decimal.NewFromInt(150000000)))
	assert.Empty(t, got.LastError)

	pending, err := st.SelectPending(ctx, 10, nil)
	require.NoError(t, err)
	assert.Empty(t, pending)

	_, err = st.UpdateDetails(ctx, key, DetailUpdate{Details: okDetails()})
	assert.ErrorIs(t, err, ErrNotPending)
}

func TestSQLite_UpdateDetails_RetryUntilFailed(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	_, err := st.UpsertStubs(ctx, may1, []model.NormalizedRow{stubRow(may1, "甲 重组预案", "600001")}, PolicyDoNothing)
	require.NoError(t, err)
	key := model.NewKey(may1, "甲 重组预案")
	unreachable := DetailUpdate{Details: model.DealDetails{Outcome: model.OutcomeUnreachable}, MaxAttempts: 2}

	status, err := st.UpdateDetails(ctx, key, unreachable)
	require.NoError(t, err)
	assert.Equal(t, model.StatusPending, status)

	got, err := st.GetAnnouncement(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, 1, got.EnrichAttempts)
	assert.Equal(t, "unreachable", got.LastError)
	assert.True(t, got.Details.Empty(), "pending rows keep derived fields null")

	status, err = st.UpdateDetails(ctx, key, unreachable)
	require.NoError(t, err)
	assert.Equal(t, model.StatusFailed, status)

	got, err = st.GetAnnouncement(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, model.DocumentUnreachable, got.Details.Summary)
	assert.NotEqual(t, model.NotDisclosed, got.Details.Target)
}

func TestSQLite_UpdateDetails_Unavailable(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	_, err := st.UpsertStubs(ctx, may1, []model.NormalizedRow{stubRow(may1, "甲 重组预案", "600001")}, PolicyDoNothing)
	require.NoError(t, err)
	key := model.NewKey(may1, "甲 重组预案")

	for i := 0; i < 5; i++ {
		status, err := st.UpdateDetails(ctx, key, DetailUpdate{
			Details:     model.DealDetails{Outcome: model.OutcomeUnavailable},
			MaxAttempts: 2,
		})
		require.NoError(t, err)
		assert.Equal(t, model.StatusPending, status)
	}

	got, err := st.GetAnnouncement(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, 0, got.EnrichAttempts)
}

func TestSQLite_UpdateDetails_NoDocument(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	row := stubRow(may1, "甲 重组预案", "600001")
	row.DocURL = model.MissingValue
	_, err := st.UpsertStubs(ctx, may1, []model.NormalizedRow{row}, PolicyDoNothing)
	require.NoError(t, err)

	status, err := st.UpdateDetails(ctx, row.Key(), DetailUpdate{
		Details:     model.DealDetails{Outcome: model.OutcomeNoDocument},
		MaxAttempts: 3,
	})
	require.NoError(t, err)
	assert.Equal(t, model.StatusFailed, status)
}

func TestSQLite_UpdateDetails_NotFound(t *testing.T) {
	st := newTestSQLiteStore(t)

	_, err := st.UpdateDetails(context.Background(), model.NewKey(may1, "missing"), DetailUpdate{Details: okDetails()})
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = st.GetAnnouncement(context.Background(), model.NewKey(may1, "missing"))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLite_RecordFailure(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	_, err := st.UpsertStubs(ctx, may1, []model.NormalizedRow{stubRow(may1, "甲 重组预案", "600001")}, PolicyDoNothing)
	require.NoError(t, err)
	key := model.NewKey(may1, "甲 重组预案")

	status, err := st.RecordFailure(ctx, key, "profile lookup panicked", 2)
	require.NoError(t, err)
	assert.Equal(t, model.StatusPending, status)

	status, err = st.RecordFailure(ctx, key, "profile lookup panicked", 2)
	require.NoError(t, err)
	assert.Equal(t, model.StatusFailed, status)

	got, err := st.GetAnnouncement(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, 2, got.EnrichAttempts)
	assert.Equal(t, "profile lookup panicked", got.LastError)
}

func TestSQLite_ListAnnouncements_Filter(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	may2 := may1.AddDate(0, 0, 1)
	_, err := st.UpsertStubs(ctx, may1, []model.NormalizedRow{stubRow(may1, "甲 重组预案", "600001")}, PolicyDoNothing)
	require.NoError(t, err)
	_, err = st.UpsertStubs(ctx, may2, []model.NormalizedRow{stubRow(may2, "乙 购买资产草案", "000002")}, PolicyDoNothing)
	require.NoError(t, err)

	all, err := st.ListAnnouncements(ctx, AnnouncementFilter{})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "乙 购买资产草案", all[0].Title, "newest first")

	byDate, err := st.ListAnnouncements(ctx, AnnouncementFilter{From: may2, To: may2})
	require.NoError(t, err)
	require.Len(t, byDate, 1)
	assert.Equal(t, "000002", byDate[0].StockCode)

	byQuery, err := st.ListAnnouncements(ctx, AnnouncementFilter{Query: "重组"})
	require.NoError(t, err)
	require.Len(t, byQuery, 1)

	byCode, err := st.ListAnnouncements(ctx, AnnouncementFilter{StockCode: "600001", Status: model.StatusPending})
	require.NoError(t, err)
	require.Len(t, byCode, 1)
	assert.Equal(t, may1, byCode[0].Date)
}

func TestSQLite_Runs(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	run := &model.PipelineRun{Kind: model.RunKindNightly, WindowStart: may1, WindowEnd: may1.AddDate(0, 0, 1)}
	require.NoError(t, st.StartRun(ctx, run))
	assert.NotEmpty(t, run.ID)
	assert.Equal(t, model.RunStatusRunning, run.Status)

	run.Counters = model.RunCounters{Fetched: 3, Inserted: 2, Enriched: 1}
	require.NoError(t, st.CompleteRun(ctx, run))
	assert.Equal(t, model.RunStatusComplete, run.Status)

	failed := &model.PipelineRun{Kind: model.RunKindBackfill, WindowStart: may1, WindowEnd: may1}
	require.NoError(t, st.StartRun(ctx, failed))
	failed.Error = "store unavailable"
	require.NoError(t, st.CompleteRun(ctx, failed))
	assert.Equal(t, model.RunStatusFailed, failed.Status)

	runs, err := st.ListRuns(ctx, RunFilter{Kind: model.RunKindNightly})
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, run.ID, runs[0].ID)
	assert.Equal(t, 2, runs[0].Counters.Inserted)
	assert.Equal(t, may1, runs[0].WindowStart)
	require.NotNil(t, runs[0].CompletedAt)

	err = st.CompleteRun(ctx, &model.PipelineRun{ID: "nope"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "run not found")
}

func TestSQLite_MigrateLegacySchema(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "legacy.db")
	raw, err := sql.Open("sqlite", dbPath)
	require.NoError(t, err)
	_, err = raw.Exec(`
		CREATE TABLE announcements (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			announcement_date TEXT,
			stock_code TEXT,
			company_name TEXT,
			announcement_title TEXT,
			pdf_link TEXT UNIQUE,
			target_company TEXT,
			transaction_price TEXT,
			shareholders TEXT
		);
		INSERT INTO announcements (announcement_date, stock_code, company_name, announcement_title, pdf_link, target_company, transaction_price)
		VALUES
			('2023-01-05', '600001', '甲', '甲 重组预案', 'http://x/1.pdf', '未提取到', '未提取到'),
			('2023-01-06', '000002', '乙', '乙 重组草案', 'http://x/2.pdf', '丙公司', '1000万元'),
			('2023-01-07', '000003', '丙', '丙 重组预案', 'http://x/3.pdf', '丁公司', '未提取到'),
			('2023-01-08', '000004', '丁', '丁 重组预案', 'http://x/4.pdf', NULL, NULL),
			('2023-01-08', '000004', '丁', '丁 重组预案', 'http://x/5.pdf', NULL, NULL);`)
	require.NoError(t, err)
	require.NoError(t, raw.Close())

	st, err := NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	ctx := context.Background()
	require.NoError(t, st.Migrate(ctx))
	require.NoError(t, st.Migrate(ctx))

	day := func(s string) time.Time {
		d, err := time.Parse(model.DateLayout, s)
		require.NoError(t, err)
		return d
	}

	failed, err := st.GetAnnouncement(ctx, model.NewKey(day("2023-01-05"), "甲 重组预案"))
	require.NoError(t, err)
	assert.Equal(t, model.StatusFailed, failed.Status)

	full, err := st.GetAnnouncement(ctx, model.NewKey(day("2023-01-06"), "乙 重组草案"))
	require.NoError(t, err)
	assert.Equal(t, model.StatusEnriched, full.Status)
	assert.Equal(t, "丙公司", full.Details.Target)
	assert.Equal(t, model.NotDisclosed, full.Details.Summary)

	partial, err := st.GetAnnouncement(ctx, model.NewKey(day("2023-01-07"), "丙 重组预案"))
	require.NoError(t, err)
	assert.Equal(t, model.StatusEnriched, partial.Status)
	assert.Equal(t, model.NotDisclosed, partial.Details.TransactionPrice)

	list, err := st.ListAnnouncements(ctx, AnnouncementFilter{From: day("2023-01-08"), To: day("2023-01-08")})
	require.NoError(t, err)
	require.Len(t, list, 1, "duplicate natural keys collapse")
	assert.Equal(t, model.StatusPending, list[0].Status)
	assert.Equal(t, "http://x/4.pdf", list[0].DocURL)

	// A document link shared by two announcements is accepted.
	shared := model.NormalizedRow{Date: day("2023-01-05"), Title: "甲 重组预案（修订稿）", StockCode: "600001", DocURL: "http://x/1.pdf"}
	res, err := st.UpsertStubs(ctx, shared.Date, []model.NormalizedRow{shared}, PolicyBackfillMissing)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Inserted)
}
