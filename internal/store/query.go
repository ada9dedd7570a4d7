package store

import (
	"fmt"
	"strings"
	"time"

	"github.com/sells-group/mna-tracker/internal/model"
)

// placeholder renders the n-th (1-based) bind parameter for a backend.
type placeholder func(n int) string

func questionMark(int) string { return "?" }

func dollar(n int) string { return fmt.Sprintf("$%d", n) }

// queryBuilder accumulates WHERE clauses and their arguments.
type queryBuilder struct {
	ph      placeholder
	clauses []string
	args    []any
}

func newQueryBuilder(ph placeholder) *queryBuilder {
	return &queryBuilder{ph: ph}
}

// next appends arg and returns its placeholder.
func (q *queryBuilder) next(arg any) string {
	q.args = append(q.args, arg)
	return q.ph(len(q.args))
}

// where adds a clause. Each %s in format is replaced by the placeholder of
// the matching arg.
func (q *queryBuilder) where(format string, args ...any) {
	phs := make([]any, len(args))
	for i, a := range args {
		phs[i] = q.next(a)
	}
	q.clauses = append(q.clauses, fmt.Sprintf(format, phs...))
}

func (q *queryBuilder) sql() string {
	if len(q.clauses) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(q.clauses, " AND ")
}

// announcementQuery renders the WHERE/ORDER/LIMIT tail of ListAnnouncements.
// dateArg converts a day into the backend's date parameter.
func announcementQuery(f AnnouncementFilter, ph placeholder, dateArg func(time.Time) any) (string, []any) {
	q := newQueryBuilder(ph)
	if !f.From.IsZero() {
		q.where("announcement_date >= %s", dateArg(model.Day(f.From)))
	}
	if !f.To.IsZero() {
		q.where("announcement_date <= %s", dateArg(model.Day(f.To)))
	}
	if f.Status != "" {
		q.where("status = %s", string(f.Status))
	}
	if f.StockCode != "" {
		q.where("stock_code = %s", f.StockCode)
	}
	if f.Query != "" {
		q.where("announcement_title LIKE %s", "%"+f.Query+"%")
	}

	order := " ORDER BY announcement_date DESC, id DESC"
	if f.Ascending {
		order = " ORDER BY announcement_date ASC, id ASC"
	}

	limit := f.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	tail := q.sql() + order + " LIMIT " + q.next(limit)
	if f.Offset > 0 {
		tail += " OFFSET " + q.next(f.Offset)
	}
	return tail, q.args
}

// runQuery renders the WHERE/ORDER/LIMIT tail of ListRuns.
func runQuery(f RunFilter, ph placeholder) (string, []any) {
	q := newQueryBuilder(ph)
	if f.Kind != "" {
		q.where("kind = %s", string(f.Kind))
	}
	if f.Status != "" {
		q.where("status = %s", string(f.Status))
	}
	limit := f.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	tail := q.sql() + " ORDER BY started_at DESC LIMIT " + q.next(limit)
	if f.Offset > 0 {
		tail += " OFFSET " + q.next(f.Offset)
	}
	return tail, q.args
}

// sentinelList renders the failure sentinels as a SQL literal list.
func sentinelList() string {
	s := model.FailureSentinels()
	quoted := make([]string, len(s))
	for i, v := range s {
		quoted[i] = "'" + strings.ReplaceAll(v, "'", "''") + "'"
	}
	return strings.Join(quoted, ", ")
}

// legacyStatusSQL derives status for rows written before the status column
// existed. Rows whose summary is a failure sentinel, or whose legacy target
// and price both carry one, are failed. Rows with a real summary, or with a
// real legacy target or price, are enriched; their sentinel fields become
// NotDisclosed. Rows touched by the current pipeline never match: pending
// rows always have null derived fields.
func legacyStatusSQL() []string {
	s := sentinelList()
	nd := "'" + model.NotDisclosed + "'"
	present := func(col string) string {
		return fmt.Sprintf("(%[1]s IS NOT NULL AND %[1]s <> '' AND %[1]s NOT IN (%[2]s))", col, s)
	}
	fix := func(col string) string {
		return fmt.Sprintf("%[1]s = CASE WHEN %[1]s IS NULL OR %[1]s = '' OR %[1]s IN (%[2]s) THEN %[3]s ELSE %[1]s END", col, s, nd)
	}
	return []string{
		fmt.Sprintf(`UPDATE announcements SET status = 'failed'
WHERE status = 'pending' AND (summary IN (%[1]s)
	OR (summary IS NULL AND target_company IN (%[1]s) AND transaction_price IN (%[1]s)))`, s),
		fmt.Sprintf(`UPDATE announcements SET status = 'enriched', %s, %s, summary = COALESCE(NULLIF(summary, ''), %s)
WHERE status = 'pending' AND (%s OR (summary IS NULL AND (%s OR %s)))`,
			fix("target_company"), fix("transaction_price"), nd,
			present("summary"), present("target_company"), present("transaction_price")),
	}
}

// reopenColumns hold what a no_document failure wrote. They are cleared when
// the row later gains a document link.
var reopenColumns = []string{
	"status", "enrich_attempts", "transaction_type", "acquirer", "target_company",
	"transaction_price", "transaction_amount_cny", "summary", "last_error",
}

// reopenCond matches a stored row that failed only for lack of a document
// while the incoming stub brings one. cur prefixes stored columns and link is
// the incoming pdf_link expression.
func reopenCond(cur, link string) string {
	return fmt.Sprintf("(%[1]sstatus = '%[2]s' AND %[1]slast_error = '%[3]s' AND COALESCE(%[1]spdf_link, '') IN ('', 'N/A') AND %[4]s IS NOT NULL)",
		cur, model.StatusFailed, model.OutcomeNoDocument, link)
}

// reopenSets returns, per reopenColumns entry, the SET expression that moves
// a matching row back to pending and leaves every other row unchanged.
func reopenSets(cur, link string) map[string]string {
	cond := reopenCond(cur, link)
	sets := make(map[string]string, len(reopenColumns))
	for _, col := range reopenColumns {
		reset := "NULL"
		switch col {
		case "status":
			reset = "'" + string(model.StatusPending) + "'"
		case "enrich_attempts":
			reset = "0"
		}
		sets[col] = fmt.Sprintf("CASE WHEN %s THEN %s ELSE %s%s END", cond, reset, cur, col)
	}
	return sets
}
