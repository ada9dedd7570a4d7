package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/sells-group/mna-tracker/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	// A single connection serializes writers.
	db.SetMaxOpenConns(1)
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db, now: func() time.Time { return time.Now().UTC() }}, nil
}

const sqliteAnnouncementsTable = `
CREATE TABLE IF NOT EXISTS announcements (
	id                     INTEGER PRIMARY KEY AUTOINCREMENT,
	announcement_date      TEXT NOT NULL,
	announcement_title     TEXT NOT NULL,
	stock_code             TEXT,
	company_name           TEXT,
	pdf_link               TEXT,
	industry               TEXT,
	main_business          TEXT,
	transaction_type       TEXT,
	acquirer               TEXT,
	target_company         TEXT,
	transaction_price      TEXT,
	transaction_amount_cny TEXT,
	summary                TEXT,
	status                 TEXT NOT NULL DEFAULT 'pending',
	enrich_attempts        INTEGER NOT NULL DEFAULT 0,
	last_error             TEXT,
	source                 TEXT,
	created_at             DATETIME,
	updated_at             DATETIME
);`

const sqliteRunsTable = `
CREATE TABLE IF NOT EXISTS pipeline_runs (
	id           TEXT PRIMARY KEY,
	kind         TEXT NOT NULL,
	window_start TEXT NOT NULL,
	window_end   TEXT NOT NULL,
	status       TEXT NOT NULL,
	counters     TEXT NOT NULL DEFAULT '{}',
	error        TEXT,
	started_at   DATETIME NOT NULL,
	completed_at DATETIME
);
CREATE INDEX IF NOT EXISTS idx_pipeline_runs_started_at ON pipeline_runs(started_at);`

const sqliteIndexes = `
CREATE UNIQUE INDEX IF NOT EXISTS ux_announcements_key ON announcements(announcement_date, announcement_title);
CREATE INDEX IF NOT EXISTS idx_announcements_date ON announcements(announcement_date);
CREATE INDEX IF NOT EXISTS idx_announcements_status ON announcements(status);`

// sqliteColumns lists every announcements column with the type used when
// adding it to an older table.
var sqliteColumns = []struct{ name, decl string }{
	{"stock_code", "TEXT"},
	{"company_name", "TEXT"},
	{"pdf_link", "TEXT"},
	{"industry", "TEXT"},
	{"main_business", "TEXT"},
	{"transaction_type", "TEXT"},
	{"acquirer", "TEXT"},
	{"target_company", "TEXT"},
	{"transaction_price", "TEXT"},
	{"transaction_amount_cny", "TEXT"},
	{"summary", "TEXT"},
	{"status", "TEXT NOT NULL DEFAULT 'pending'"},
	{"enrich_attempts", "INTEGER NOT NULL DEFAULT 0"},
	{"last_error", "TEXT"},
	{"source", "TEXT"},
	{"created_at", "DATETIME"},
	{"updated_at", "DATETIME"},
}

// Migrate creates or repairs the schema. It is safe to run on every start.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	log := zap.L().With(zap.String("component", "store.sqlite"))

	if _, err := s.db.ExecContext(ctx, sqliteAnnouncementsTable+sqliteRunsTable); err != nil {
		return eris.Wrap(err, "sqlite: migrate create tables")
	}

	added, err := s.addMissingColumns(ctx)
	if err != nil {
		return err
	}
	if len(added) > 0 {
		log.Info("added announcement columns", zap.Strings("columns", added))
	}

	if err := s.dropDocLinkUnique(ctx); err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx, `DELETE FROM announcements WHERE id NOT IN (
		SELECT MIN(id) FROM announcements GROUP BY announcement_date, announcement_title)`)
	if err != nil {
		return eris.Wrap(err, "sqlite: migrate dedupe")
	}
	if n, _ := res.RowsAffected(); n > 0 {
		log.Info("removed duplicate announcements", zap.Int64("rows", n))
	}

	if _, err := s.db.ExecContext(ctx, sqliteIndexes); err != nil {
		return eris.Wrap(err, "sqlite: migrate indexes")
	}

	for _, stmt := range legacyStatusSQL() {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return eris.Wrap(err, "sqlite: migrate legacy status")
		}
	}
	return nil
}

func (s *SQLiteStore) addMissingColumns(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name FROM pragma_table_info('announcements')`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: migrate table info")
	}
	have := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			rows.Close() //nolint:errcheck
			return nil, eris.Wrap(err, "sqlite: migrate scan column")
		}
		have[name] = true
	}
	rows.Close() //nolint:errcheck
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "sqlite: migrate table info")
	}

	var added []string
	for _, c := range sqliteColumns {
		if have[c.name] {
			continue
		}
		stmt := fmt.Sprintf("ALTER TABLE announcements ADD COLUMN %s %s", c.name, c.decl)
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return nil, eris.Wrapf(err, "sqlite: migrate add column %s", c.name)
		}
		added = append(added, c.name)
	}
	return added, nil
}

// dropDocLinkUnique removes any uniqueness on pdf_link alone. A standalone
// index is dropped; a table constraint requires rebuilding the table.
func (s *SQLiteStore) dropDocLinkUnique(ctx context.Context) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT il.name, il.origin
		FROM pragma_index_list('announcements') AS il, pragma_index_info(il.name) AS ii
		WHERE il."unique" = 1
		GROUP BY il.name, il.origin
		HAVING COUNT(*) = 1 AND MAX(ii.name) = 'pdf_link'`)
	if err != nil {
		return eris.Wrap(err, "sqlite: migrate index list")
	}
	type index struct{ name, origin string }
	var found []index
	for rows.Next() {
		var ix index
		if err := rows.Scan(&ix.name, &ix.origin); err != nil {
			rows.Close() //nolint:errcheck
			return eris.Wrap(err, "sqlite: migrate scan index")
		}
		found = append(found, ix)
	}
	rows.Close() //nolint:errcheck
	if err := rows.Err(); err != nil {
		return eris.Wrap(err, "sqlite: migrate index list")
	}

	rebuild := false
	for _, ix := range found {
		if ix.origin != "c" {
			rebuild = true
			continue
		}
		if _, err := s.db.ExecContext(ctx, fmt.Sprintf("DROP INDEX IF EXISTS %q", ix.name)); err != nil {
			return eris.Wrapf(err, "sqlite: migrate drop index %s", ix.name)
		}
	}
	if !rebuild {
		return nil
	}

	zap.L().Info("rebuilding announcements table without pdf_link uniqueness",
		zap.String("component", "store.sqlite"))

	cols := make([]string, 0, len(sqliteColumns)+3)
	cols = append(cols, "id", "announcement_date", "announcement_title")
	for _, c := range sqliteColumns {
		cols = append(cols, c.name)
	}
	colList := strings.Join(cols, ", ")

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: migrate begin rebuild")
	}
	defer tx.Rollback() //nolint:errcheck

	for _, stmt := range []string{
		"ALTER TABLE announcements RENAME TO announcements_legacy",
		sqliteAnnouncementsTable,
		fmt.Sprintf("INSERT INTO announcements (%s) SELECT %s FROM announcements_legacy ORDER BY id", colList, colList),
		"DROP TABLE announcements_legacy",
	} {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return eris.Wrap(err, "sqlite: migrate rebuild announcements")
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: migrate commit rebuild")
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// UpsertStubs inserts new stubs and applies policy to existing keys, all in
// one transaction.
func (s *SQLiteStore) UpsertStubs(ctx context.Context, day time.Time, rows []model.NormalizedRow, policy ConflictPolicy) (UpsertResult, error) {
	stubs, skipped := prepareStubs(day, rows)
	res := UpsertResult{Skipped: skipped}
	if len(stubs) == 0 {
		return res, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return UpsertResult{}, eris.Wrap(err, "sqlite: begin upsert")
	}
	defer tx.Rollback() //nolint:errcheck

	insert, err := tx.PrepareContext(ctx, `
		INSERT INTO announcements (announcement_date, announcement_title, stock_code, company_name, pdf_link,
			source, status, enrich_attempts, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, 'pending', 0, ?, ?)
		ON CONFLICT(announcement_date, announcement_title) DO NOTHING`)
	if err != nil {
		return UpsertResult{}, eris.Wrap(err, "sqlite: prepare insert")
	}
	defer insert.Close() //nolint:errcheck

	backfill, err := tx.PrepareContext(ctx, sqliteBackfillSQL())
	if err != nil {
		return UpsertResult{}, eris.Wrap(err, "sqlite: prepare backfill")
	}
	defer backfill.Close() //nolint:errcheck

	now := s.now()
	for _, st := range stubs {
		r, err := insert.ExecContext(ctx, st.Date, st.Title, st.StockCode, st.CompanyName, st.DocURL, st.Source, now, now)
		if err != nil {
			return UpsertResult{}, eris.Wrapf(err, "sqlite: insert stub %s %s", st.Date, st.Title)
		}
		if n, _ := r.RowsAffected(); n > 0 {
			res.Inserted++
			continue
		}
		if policy != PolicyBackfillMissing {
			res.Skipped++
			continue
		}
		r, err = backfill.ExecContext(ctx, st.Date, st.Title, st.StockCode, st.CompanyName, st.DocURL, now)
		if err != nil {
			return UpsertResult{}, eris.Wrapf(err, "sqlite: backfill stub %s %s", st.Date, st.Title)
		}
		if n, _ := r.RowsAffected(); n > 0 {
			res.Backfilled++
		} else {
			res.Skipped++
		}
	}

	if err := tx.Commit(); err != nil {
		return UpsertResult{}, eris.Wrap(err, "sqlite: commit upsert")
	}
	return res, nil
}

// sqliteBackfillSQL fills missing stub fields of an existing row. Bind
// parameters: ?1 date, ?2 title, ?3 stock code, ?4 company name, ?5 link,
// ?6 timestamp. A no_document failure that gains a link is reopened.
func sqliteBackfillSQL() string {
	var b strings.Builder
	b.WriteString(`UPDATE announcements SET
			stock_code   = CASE WHEN COALESCE(stock_code, '') IN ('', 'N/A') THEN ?3 ELSE stock_code END,
			company_name = CASE WHEN COALESCE(company_name, '') IN ('', 'N/A') THEN ?4 ELSE company_name END,
			pdf_link     = CASE WHEN COALESCE(pdf_link, '') IN ('', 'N/A') THEN ?5 ELSE pdf_link END,`)
	sets := reopenSets("", "?5")
	for _, col := range reopenColumns {
		b.WriteString("\n\t\t\t" + col + " = " + sets[col] + ",")
	}
	b.WriteString(`
			updated_at   = ?6
		WHERE announcement_date = ?1 AND announcement_title = ?2 AND (
			(COALESCE(stock_code, '') IN ('', 'N/A') AND ?3 NOT IN ('', 'N/A'))
			OR (COALESCE(company_name, '') IN ('', 'N/A') AND ?4 NOT IN ('', 'N/A'))
			OR (COALESCE(pdf_link, '') IN ('', 'N/A') AND ?5 IS NOT NULL))`)
	return b.String()
}

const sqliteSelectAnnouncement = `SELECT id, announcement_date, announcement_title, stock_code, company_name, pdf_link,
	industry, main_business, transaction_type, acquirer, target_company, transaction_price,
	transaction_amount_cny, summary, status, enrich_attempts, last_error, source, created_at, updated_at
	FROM announcements`

// SelectPending returns pending rows, oldest first.
func (s *SQLiteStore) SelectPending(ctx context.Context, limit int, exclude []int64) ([]model.Announcement, error) {
	if limit <= 0 {
		return nil, nil
	}
	query := sqliteSelectAnnouncement + ` WHERE status = 'pending'`
	args := make([]any, 0, len(exclude)+1)
	if len(exclude) > 0 {
		query += ` AND id NOT IN (?` + strings.Repeat(", ?", len(exclude)-1) + `)`
		for _, id := range exclude {
			args = append(args, id)
		}
	}
	query += ` ORDER BY announcement_date ASC, id ASC LIMIT ?`
	args = append(args, limit)

	return s.queryAnnouncements(ctx, query, args...)
}

// UpdateDetails applies an enrichment result to one row.
func (s *SQLiteStore) UpdateDetails(ctx context.Context, key model.Key, upd DetailUpdate) (model.EnrichStatus, error) {
	return s.applyPlan(ctx, key, func(cur rowState) (updatePlan, error) {
		return planUpdate(cur, upd)
	})
}

// RecordFailure counts one failed attempt on a row.
func (s *SQLiteStore) RecordFailure(ctx context.Context, key model.Key, msg string, maxAttempts int) (model.EnrichStatus, error) {
	return s.applyPlan(ctx, key, func(cur rowState) (updatePlan, error) {
		return planFailure(cur, msg, maxAttempts)
	})
}

func (s *SQLiteStore) applyPlan(ctx context.Context, key model.Key, plan func(rowState) (updatePlan, error)) (model.EnrichStatus, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", eris.Wrap(err, "sqlite: begin update")
	}
	defer tx.Rollback() //nolint:errcheck

	var (
		id     int64
		status string
		cur    rowState
	)
	err = tx.QueryRowContext(ctx,
		`SELECT id, status, enrich_attempts FROM announcements WHERE announcement_date = ? AND announcement_title = ?`,
		key.DateString(), key.Title,
	).Scan(&id, &status, &cur.Attempts)
	if errors.Is(err, sql.ErrNoRows) {
		return "", eris.Wrapf(ErrNotFound, "sqlite: update %s", key)
	}
	if err != nil {
		return "", eris.Wrapf(err, "sqlite: read state %s", key)
	}
	cur.Status = model.ParseEnrichStatus(status)

	p, err := plan(cur)
	if err != nil {
		return "", eris.Wrapf(err, "sqlite: plan update %s", key)
	}

	var industry, business any
	if p.Profile != nil {
		industry, business = nullable(p.Profile.Industry), nullable(p.Profile.MainBusiness)
	}
	args := []any{string(p.Status), p.Attempts, nullable(p.LastError)}
	args = append(args, p.detailArgs()...)
	args = append(args, industry, business, s.now(), id)

	r, err := tx.ExecContext(ctx, `
		UPDATE announcements SET status = ?, enrich_attempts = ?, last_error = ?,
			transaction_type = ?, acquirer = ?, target_company = ?, transaction_price = ?,
			transaction_amount_cny = ?, summary = ?,
			industry = COALESCE(?, industry), main_business = COALESCE(?, main_business),
			updated_at = ?
		WHERE id = ? AND status <> 'enriched'`, args...)
	if err != nil {
		return "", eris.Wrapf(err, "sqlite: update %s", key)
	}
	if err := checkRowsAffected(r, key); err != nil {
		return "", err
	}

	if err := tx.Commit(); err != nil {
		return "", eris.Wrapf(err, "sqlite: commit update %s", key)
	}
	return p.Status, nil
}

// GetAnnouncement returns the row with the given key.
func (s *SQLiteStore) GetAnnouncement(ctx context.Context, key model.Key) (*model.Announcement, error) {
	row := s.db.QueryRowContext(ctx,
		sqliteSelectAnnouncement+` WHERE announcement_date = ? AND announcement_title = ?`,
		key.DateString(), key.Title,
	)
	a, err := scanSQLiteAnnouncement(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "sqlite: get %s", key)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get %s", key)
	}
	return a, nil
}

// ListAnnouncements returns rows matching filter.
func (s *SQLiteStore) ListAnnouncements(ctx context.Context, filter AnnouncementFilter) ([]model.Announcement, error) {
	tail, args := announcementQuery(filter, questionMark, func(t time.Time) any {
		return t.Format(model.DateLayout)
	})
	return s.queryAnnouncements(ctx, sqliteSelectAnnouncement+tail, args...)
}

func (s *SQLiteStore) queryAnnouncements(ctx context.Context, query string, args ...any) ([]model.Announcement, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: query announcements")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.Announcement
	for rows.Next() {
		a, err := scanSQLiteAnnouncement(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan announcement")
		}
		out = append(out, *a)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate announcements")
}

// CountByStatus returns the number of rows in each status.
func (s *SQLiteStore) CountByStatus(ctx context.Context) (map[model.EnrichStatus]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM announcements GROUP BY status`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: count by status")
	}
	defer rows.Close() //nolint:errcheck

	counts := map[model.EnrichStatus]int{
		model.StatusPending:  0,
		model.StatusEnriched: 0,
		model.StatusFailed:   0,
	}
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan status count")
		}
		counts[model.ParseEnrichStatus(status)] += n
	}
	return counts, eris.Wrap(rows.Err(), "sqlite: iterate status counts")
}

// StartRun records a new running pipeline run, assigning an id if unset.
func (s *SQLiteStore) StartRun(ctx context.Context, run *model.PipelineRun) error {
	prepareRun(run, s.now())
	counters, err := json.Marshal(run.Counters)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal counters")
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO pipeline_runs (id, kind, window_start, window_end, status, counters, started_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		run.ID, string(run.Kind), run.WindowStart.Format(model.DateLayout), run.WindowEnd.Format(model.DateLayout),
		string(run.Status), string(counters), run.StartedAt,
	)
	return eris.Wrapf(err, "sqlite: start run %s", run.ID)
}

// CompleteRun stores the final status, counters and error of a run.
func (s *SQLiteStore) CompleteRun(ctx context.Context, run *model.PipelineRun) error {
	finishRun(run, s.now())
	counters, err := json.Marshal(run.Counters)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal counters")
	}
	r, err := s.db.ExecContext(ctx,
		`UPDATE pipeline_runs SET status = ?, counters = ?, error = ?, completed_at = ? WHERE id = ?`,
		string(run.Status), string(counters), nullable(run.Error), *run.CompletedAt, run.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: complete run %s", run.ID)
	}
	n, err := r.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: check rows affected")
	}
	if n == 0 {
		return eris.Errorf("sqlite: run not found: %s", run.ID)
	}
	return nil
}

// ListRuns returns pipeline runs, newest first.
func (s *SQLiteStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.PipelineRun, error) {
	tail, args := runQuery(filter, questionMark)
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, kind, window_start, window_end, status, counters, error, started_at, completed_at
		 FROM pipeline_runs`+tail, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close() //nolint:errcheck

	var runs []model.PipelineRun
	for rows.Next() {
		var (
			r                        model.PipelineRun
			kind, status, start, end string
			counters                 string
			runErr                   *string
			completed                sql.NullTime
		)
		if err := rows.Scan(&r.ID, &kind, &start, &end, &status, &counters, &runErr, &r.StartedAt, &completed); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan run")
		}
		r.Kind = model.RunKind(kind)
		r.Status = model.RunStatus(status)
		r.Error = deref(runErr)
		r.WindowStart, _ = time.Parse(model.DateLayout, start)
		r.WindowEnd, _ = time.Parse(model.DateLayout, end)
		if completed.Valid {
			t := completed.Time
			r.CompletedAt = &t
		}
		if err := json.Unmarshal([]byte(counters), &r.Counters); err != nil {
			return nil, eris.Wrapf(err, "sqlite: unmarshal counters for run %s", r.ID)
		}
		runs = append(runs, r)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: iterate runs")
}

// scannable is satisfied by both *sql.Row and *sql.Rows.
type scannable interface {
	Scan(dest ...any) error
}

func scanSQLiteAnnouncement(row scannable) (*model.Announcement, error) {
	var (
		a                                               model.Announcement
		date, status                                    string
		code, name, link, industry, business            *string
		ttype, acquirer, target, price, amount, summary *string
		lastErr, source                                 *string
		created, updated                                sql.NullTime
	)
	err := row.Scan(&a.ID, &date, &a.Title, &code, &name, &link,
		&industry, &business, &ttype, &acquirer, &target, &price,
		&amount, &summary, &status, &a.EnrichAttempts, &lastErr, &source, &created, &updated)
	if err != nil {
		return nil, err
	}

	a.Date, err = time.Parse(model.DateLayout, date)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: parse announcement_date %q", date)
	}
	fillAnnouncement(&a, announcementFields{
		code: code, name: name, link: link, industry: industry, business: business,
		ttype: ttype, acquirer: acquirer, target: target, price: price, amount: amount,
		summary: summary, lastErr: lastErr, source: source, status: status,
	})
	a.CreatedAt = created.Time
	a.UpdatedAt = updated.Time
	return &a, nil
}

func checkRowsAffected(r sql.Result, key model.Key) error {
	n, err := r.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: check rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrNotPending, "sqlite: update %s", key)
	}
	return nil
}

// prepareRun fills the defaults of a run about to start.
func prepareRun(run *model.PipelineRun, now time.Time) {
	if run.ID == "" {
		run.ID = uuid.New().String()
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = now
	}
	run.Status = model.RunStatusRunning
	run.WindowStart = model.Day(run.WindowStart)
	run.WindowEnd = model.Day(run.WindowEnd)
}

// finishRun sets the terminal status and completion time of a run.
func finishRun(run *model.PipelineRun, now time.Time) {
	if run.Status == "" || run.Status == model.RunStatusRunning {
		run.Status = model.RunStatusComplete
		if run.Error != "" {
			run.Status = model.RunStatusFailed
		}
	}
	run.CompletedAt = &now
}

// announcementFields carries nullable scanned columns shared by both backends.
type announcementFields struct {
	code, name, link, industry, business            *string
	ttype, acquirer, target, price, amount, summary *string
	lastErr, source                                 *string
	status                                          string
}

func fillAnnouncement(a *model.Announcement, f announcementFields) {
	a.StockCode = deref(f.code)
	a.CompanyName = deref(f.name)
	a.DocURL = deref(f.link)
	a.Industry = deref(f.industry)
	a.MainBusiness = deref(f.business)
	a.Details = model.DealDetails{
		TransactionType:  deref(f.ttype),
		Acquirer:         deref(f.acquirer),
		Target:           deref(f.target),
		TransactionPrice: deref(f.price),
		AmountCNY:        parseAmount(f.amount),
		Summary:          deref(f.summary),
	}
	a.Status = model.ParseEnrichStatus(f.status)
	a.LastError = deref(f.lastErr)
	a.Source = deref(f.source)
}
