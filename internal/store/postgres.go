package store

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"io/fs"
	"sort"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/mna-tracker/internal/db"
	"github.com/sells-group/mna-tracker/internal/model"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// migrationLockID serializes concurrent Migrate calls across processes.
const migrationLockID = 72024501

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool db.Pool
	now  func() time.Time
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return newPostgresStore(pool), nil
}

func newPostgresStore(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool, now: func() time.Time { return time.Now().UTC() }}
}

// Pool returns the underlying database pool.
func (s *PostgresStore) Pool() db.Pool {
	return s.pool
}

// Close closes the pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

// Migrate applies pending embedded migrations and derives the status of
// legacy rows, all in one transaction under an advisory lock.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	log := zap.L().With(zap.String("component", "store.postgres"))

	entries, err := fs.ReadDir(migrationFS, "migrations")
	if err != nil {
		return eris.Wrap(err, "postgres: read migration dir")
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin migrate")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock($1)", int64(migrationLockID)); err != nil {
		return eris.Wrap(err, "postgres: acquire migration lock")
	}
	if _, err := tx.Exec(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		filename   TEXT PRIMARY KEY,
		applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`); err != nil {
		return eris.Wrap(err, "postgres: ensure migration table")
	}

	applied := make(map[string]bool)
	rows, err := tx.Query(ctx, "SELECT filename FROM schema_migrations")
	if err != nil {
		return eris.Wrap(err, "postgres: query applied migrations")
	}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			rows.Close()
			return eris.Wrap(err, "postgres: scan migration row")
		}
		applied[name] = true
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return eris.Wrap(err, "postgres: query applied migrations")
	}

	for _, entry := range entries {
		name := entry.Name()
		if applied[name] {
			continue
		}
		data, err := migrationFS.ReadFile("migrations/" + name)
		if err != nil {
			return eris.Wrapf(err, "postgres: read migration %s", name)
		}
		if _, err := tx.Exec(ctx, string(data)); err != nil {
			return eris.Wrapf(err, "postgres: apply migration %s", name)
		}
		if _, err := tx.Exec(ctx, "INSERT INTO schema_migrations (filename) VALUES ($1)", name); err != nil {
			return eris.Wrapf(err, "postgres: record migration %s", name)
		}
		log.Info("migration applied", zap.String("file", name))
	}

	for _, stmt := range legacyStatusSQL() {
		if _, err := tx.Exec(ctx, stmt); err != nil {
			return eris.Wrap(err, "postgres: migrate legacy status")
		}
	}

	return eris.Wrap(tx.Commit(ctx), "postgres: commit migrate")
}

var stubColumns = []string{
	"announcement_date", "announcement_title", "stock_code", "company_name",
	"pdf_link", "source", "created_at", "updated_at",
}

// missingExpr matches a stored column that is null, empty or N/A.
func missingExpr(col string) string {
	return "COALESCE(announcements." + col + ", '') IN ('', 'N/A')"
}

func backfillExpr(col string) string {
	return "CASE WHEN " + missingExpr(col) + " THEN EXCLUDED." + col + " ELSE announcements." + col + " END"
}

// stubUpsertConfig returns the BulkUpsert configuration for a conflict policy.
func stubUpsertConfig(policy ConflictPolicy) db.UpsertConfig {
	cfg := db.UpsertConfig{
		Table:        "announcements",
		Columns:      stubColumns,
		ConflictKeys: []string{"announcement_date", "announcement_title"},
		UpdateCols:   []string{},
	}
	if policy != PolicyBackfillMissing {
		return cfg
	}
	cfg.UpdateCols = append([]string{"stock_code", "company_name", "pdf_link"}, reopenColumns...)
	cfg.UpdateCols = append(cfg.UpdateCols, "updated_at")
	cfg.UpdateExpr = reopenSets("announcements.", "EXCLUDED.pdf_link")
	cfg.UpdateExpr["stock_code"] = backfillExpr("stock_code")
	cfg.UpdateExpr["company_name"] = backfillExpr("company_name")
	cfg.UpdateExpr["pdf_link"] = backfillExpr("pdf_link")
	cfg.UpdateWhere = "(" + missingExpr("stock_code") + " AND EXCLUDED.stock_code NOT IN ('', 'N/A'))" +
		" OR (" + missingExpr("company_name") + " AND EXCLUDED.company_name NOT IN ('', 'N/A'))" +
		" OR (" + missingExpr("pdf_link") + " AND EXCLUDED.pdf_link IS NOT NULL)"
	return cfg
}

// UpsertStubs bulk-loads one day's stubs through a temp table in a single
// transaction.
func (s *PostgresStore) UpsertStubs(ctx context.Context, day time.Time, rows []model.NormalizedRow, policy ConflictPolicy) (UpsertResult, error) {
	stubs, skipped := prepareStubs(day, rows)
	res := UpsertResult{Skipped: skipped}
	if len(stubs) == 0 {
		return res, nil
	}

	now := s.now()
	values := make([][]any, len(stubs))
	for i, st := range stubs {
		values[i] = []any{st.Day, st.Title, st.StockCode, st.CompanyName, st.DocURL, st.Source, now, now}
	}

	out, err := db.BulkUpsert(ctx, s.pool, stubUpsertConfig(policy), values)
	if err != nil {
		return UpsertResult{}, eris.Wrapf(err, "postgres: upsert stubs %s", model.Day(day).Format(model.DateLayout))
	}
	res.Inserted = int(out.Inserted)
	res.Backfilled = int(out.Updated)
	res.Skipped += len(stubs) - res.Inserted - res.Backfilled
	return res, nil
}

const pgSelectAnnouncement = `SELECT id, announcement_date, announcement_title, stock_code, company_name, pdf_link,
	industry, main_business, transaction_type, acquirer, target_company, transaction_price,
	transaction_amount_cny::text, summary, status, enrich_attempts, last_error, source, created_at, updated_at
	FROM announcements`

// SelectPending returns pending rows, oldest first.
func (s *PostgresStore) SelectPending(ctx context.Context, limit int, exclude []int64) ([]model.Announcement, error) {
	if limit <= 0 {
		return nil, nil
	}
	if exclude == nil {
		exclude = []int64{}
	}
	return s.queryAnnouncements(ctx,
		pgSelectAnnouncement+` WHERE status = 'pending' AND id <> ALL($1)
		ORDER BY announcement_date ASC, id ASC LIMIT $2`,
		exclude, limit,
	)
}

// UpdateDetails applies an enrichment result to one row.
func (s *PostgresStore) UpdateDetails(ctx context.Context, key model.Key, upd DetailUpdate) (model.EnrichStatus, error) {
	return s.applyPlan(ctx, key, func(cur rowState) (updatePlan, error) {
		return planUpdate(cur, upd)
	})
}

// RecordFailure counts one failed attempt on a row.
func (s *PostgresStore) RecordFailure(ctx context.Context, key model.Key, msg string, maxAttempts int) (model.EnrichStatus, error) {
	return s.applyPlan(ctx, key, func(cur rowState) (updatePlan, error) {
		return planFailure(cur, msg, maxAttempts)
	})
}

func (s *PostgresStore) applyPlan(ctx context.Context, key model.Key, plan func(rowState) (updatePlan, error)) (model.EnrichStatus, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return "", eris.Wrap(err, "postgres: begin update")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	var (
		id     int64
		status string
		cur    rowState
	)
	err = tx.QueryRow(ctx,
		`SELECT id, status, enrich_attempts FROM announcements
		 WHERE announcement_date = $1 AND announcement_title = $2 FOR UPDATE`,
		key.Date, key.Title,
	).Scan(&id, &status, &cur.Attempts)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", eris.Wrapf(ErrNotFound, "postgres: update %s", key)
	}
	if err != nil {
		return "", eris.Wrapf(err, "postgres: read state %s", key)
	}
	cur.Status = model.ParseEnrichStatus(status)

	p, err := plan(cur)
	if err != nil {
		return "", eris.Wrapf(err, "postgres: plan update %s", key)
	}

	var industry, business any
	if p.Profile != nil {
		industry, business = nullable(p.Profile.Industry), nullable(p.Profile.MainBusiness)
	}
	args := []any{string(p.Status), p.Attempts, nullable(p.LastError)}
	args = append(args, p.detailArgs()...)
	args = append(args, industry, business, s.now(), id)

	tag, err := tx.Exec(ctx, `
		UPDATE announcements SET status = $1, enrich_attempts = $2, last_error = $3,
			transaction_type = $4, acquirer = $5, target_company = $6, transaction_price = $7,
			transaction_amount_cny = $8::numeric, summary = $9,
			industry = COALESCE($10, industry), main_business = COALESCE($11, main_business),
			updated_at = $12
		WHERE id = $13 AND status <> 'enriched'`, args...)
	if err != nil {
		return "", eris.Wrapf(err, "postgres: update %s", key)
	}
	if tag.RowsAffected() == 0 {
		return "", eris.Wrapf(ErrNotPending, "postgres: update %s", key)
	}

	if err := tx.Commit(ctx); err != nil {
		return "", eris.Wrapf(err, "postgres: commit update %s", key)
	}
	return p.Status, nil
}

// GetAnnouncement returns the row with the given key.
func (s *PostgresStore) GetAnnouncement(ctx context.Context, key model.Key) (*model.Announcement, error) {
	row := s.pool.QueryRow(ctx,
		pgSelectAnnouncement+` WHERE announcement_date = $1 AND announcement_title = $2`,
		key.Date, key.Title,
	)
	a, err := scanPostgresAnnouncement(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "postgres: get %s", key)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get %s", key)
	}
	return a, nil
}

// ListAnnouncements returns rows matching filter.
func (s *PostgresStore) ListAnnouncements(ctx context.Context, filter AnnouncementFilter) ([]model.Announcement, error) {
	tail, args := announcementQuery(filter, dollar, func(t time.Time) any { return t })
	return s.queryAnnouncements(ctx, pgSelectAnnouncement+tail, args...)
}

func (s *PostgresStore) queryAnnouncements(ctx context.Context, query string, args ...any) ([]model.Announcement, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: query announcements")
	}
	defer rows.Close()

	var out []model.Announcement
	for rows.Next() {
		a, err := scanPostgresAnnouncement(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan announcement")
		}
		out = append(out, *a)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate announcements")
}

// CountByStatus returns the number of rows in each status.
func (s *PostgresStore) CountByStatus(ctx context.Context) (map[model.EnrichStatus]int, error) {
	rows, err := s.pool.Query(ctx, `SELECT status, COUNT(*) FROM announcements GROUP BY status`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: count by status")
	}
	defer rows.Close()

	counts := map[model.EnrichStatus]int{
		model.StatusPending:  0,
		model.StatusEnriched: 0,
		model.StatusFailed:   0,
	}
	for rows.Next() {
		var status string
		var n int64
		if err := rows.Scan(&status, &n); err != nil {
			return nil, eris.Wrap(err, "postgres: scan status count")
		}
		counts[model.ParseEnrichStatus(status)] += int(n)
	}
	return counts, eris.Wrap(rows.Err(), "postgres: iterate status counts")
}

// StartRun records a new running pipeline run, assigning an id if unset.
func (s *PostgresStore) StartRun(ctx context.Context, run *model.PipelineRun) error {
	prepareRun(run, s.now())
	counters, err := json.Marshal(run.Counters)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal counters")
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO pipeline_runs (id, kind, window_start, window_end, status, counters, started_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		run.ID, string(run.Kind), run.WindowStart, run.WindowEnd, string(run.Status), counters, run.StartedAt,
	)
	return eris.Wrapf(err, "postgres: start run %s", run.ID)
}

// CompleteRun stores the final status, counters and error of a run.
func (s *PostgresStore) CompleteRun(ctx context.Context, run *model.PipelineRun) error {
	finishRun(run, s.now())
	counters, err := json.Marshal(run.Counters)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal counters")
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE pipeline_runs SET status = $1, counters = $2, error = $3, completed_at = $4 WHERE id = $5`,
		string(run.Status), counters, nullable(run.Error), *run.CompletedAt, run.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: complete run %s", run.ID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("postgres: run not found: %s", run.ID)
	}
	return nil
}

// ListRuns returns pipeline runs, newest first.
func (s *PostgresStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.PipelineRun, error) {
	tail, args := runQuery(filter, dollar)
	rows, err := s.pool.Query(ctx,
		`SELECT id, kind, window_start, window_end, status, counters, error, started_at, completed_at
		 FROM pipeline_runs`+tail, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	var runs []model.PipelineRun
	for rows.Next() {
		var (
			r            model.PipelineRun
			kind, status string
			counters     []byte
			runErr       *string
		)
		if err := rows.Scan(&r.ID, &kind, &r.WindowStart, &r.WindowEnd, &status, &counters, &runErr, &r.StartedAt, &r.CompletedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan run")
		}
		r.Kind = model.RunKind(kind)
		r.Status = model.RunStatus(status)
		r.Error = deref(runErr)
		if len(counters) > 0 {
			if err := json.Unmarshal(counters, &r.Counters); err != nil {
				return nil, eris.Wrapf(err, "postgres: unmarshal counters for run %s", r.ID)
			}
		}
		runs = append(runs, r)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: iterate runs")
}

func scanPostgresAnnouncement(row pgx.Row) (*model.Announcement, error) {
	var (
		a                                               model.Announcement
		status                                          string
		code, name, link, industry, business            *string
		ttype, acquirer, target, price, amount, summary *string
		lastErr, source                                 *string
		created, updated                                *time.Time
	)
	err := row.Scan(&a.ID, &a.Date, &a.Title, &code, &name, &link,
		&industry, &business, &ttype, &acquirer, &target, &price,
		&amount, &summary, &status, &a.EnrichAttempts, &lastErr, &source, &created, &updated)
	if err != nil {
		return nil, err
	}
	a.Date = model.Day(a.Date)
	fillAnnouncement(&a, announcementFields{
		code: code, name: name, link: link, industry: industry, business: business,
		ttype: ttype, acquirer: acquirer, target: target, price: price, amount: amount,
		summary: summary, lastErr: lastErr, source: source, status: status,
	})
	if created != nil {
		a.CreatedAt = *created
	}
	if updated != nil {
		a.UpdatedAt = *updated
	}
	return &a, nil
}
