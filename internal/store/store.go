// Package store persists announcements and the pipeline run log.
package store

import (
	"context"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"

	"github.com/sells-group/mna-tracker/internal/model"
	"github.com/sells-group/mna-tracker/internal/resilience"
)

var (
	// ErrNotFound is returned when no announcement has the given key.
	ErrNotFound = eris.New("store: announcement not found")
	// ErrNotPending is returned when an update targets an enriched row.
	ErrNotPending = eris.New("store: announcement already enriched")
)

// ConflictPolicy decides what happens when a stub's natural key already exists.
type ConflictPolicy string

const (
	// PolicyDoNothing leaves the existing row untouched.
	PolicyDoNothing ConflictPolicy = "do_nothing"
	// PolicyBackfillMissing fills stock code, company name and document
	// link where the stored value is null, empty or N/A. Derived fields are
	// never touched.
	PolicyBackfillMissing ConflictPolicy = "backfill_missing"
)

// ParseConflictPolicy validates a configured policy name.
func ParseConflictPolicy(s string) (ConflictPolicy, error) {
	switch ConflictPolicy(strings.TrimSpace(s)) {
	case PolicyDoNothing:
		return PolicyDoNothing, nil
	case PolicyBackfillMissing, "":
		return PolicyBackfillMissing, nil
	}
	return "", eris.Errorf("store: unknown conflict policy %q", s)
}

// Store is the persistence interface for the ingestion pipeline.
type Store interface {
	// UpsertStubs writes one day's stubs in a single transaction.
	UpsertStubs(ctx context.Context, day time.Time, rows []model.NormalizedRow, policy ConflictPolicy) (UpsertResult, error)
	// SelectPending returns up to limit pending rows, oldest date first then
	// id, skipping the ids in exclude.
	SelectPending(ctx context.Context, limit int, exclude []int64) ([]model.Announcement, error)
	// UpdateDetails applies an enrichment result to one row in its own
	// transaction and returns the resulting status.
	UpdateDetails(ctx context.Context, key model.Key, upd DetailUpdate) (model.EnrichStatus, error)
	// RecordFailure counts a failed attempt that produced no extraction result.
	RecordFailure(ctx context.Context, key model.Key, msg string, maxAttempts int) (model.EnrichStatus, error)

	GetAnnouncement(ctx context.Context, key model.Key) (*model.Announcement, error)
	ListAnnouncements(ctx context.Context, filter AnnouncementFilter) ([]model.Announcement, error)
	CountByStatus(ctx context.Context) (map[model.EnrichStatus]int, error)

	StartRun(ctx context.Context, run *model.PipelineRun) error
	CompleteRun(ctx context.Context, run *model.PipelineRun) error
	ListRuns(ctx context.Context, filter RunFilter) ([]model.PipelineRun, error)

	Migrate(ctx context.Context) error
	Close() error
}

// UpsertResult counts the outcome of one UpsertStubs call.
type UpsertResult struct {
	Inserted   int
	Backfilled int
	Skipped    int
}

// DetailUpdate is the enrichment result for one row.
type DetailUpdate struct {
	Details     model.DealDetails
	Profile     model.Profile
	MaxAttempts int
}

// AnnouncementFilter controls ListAnnouncements.
type AnnouncementFilter struct {
	From      time.Time
	To        time.Time
	Status    model.EnrichStatus
	StockCode string
	Query     string // substring match on title
	Limit     int
	Offset    int
	// Ascending orders by date then id ascending; the default is newest first.
	Ascending bool
}

// RunFilter controls ListRuns.
type RunFilter struct {
	Kind   model.RunKind
	Status model.RunStatus
	Limit  int
	Offset int
}

const defaultListLimit = 100

// rowState is the persisted state an update is planned against.
type rowState struct {
	Status   model.EnrichStatus
	Attempts int
}

// updatePlan is the set of column values a single row update writes.
// A nil Details clears the derived fields.
type updatePlan struct {
	Status    model.EnrichStatus
	Attempts  int
	Details   *model.DealDetails
	Profile   *model.Profile
	LastError string
}

// planUpdate decides the new status of a row from an extraction outcome.
// ok enriches. no_document fails immediately. unavailable keeps the row
// pending without counting an attempt. Every other failure counts an attempt
// and fails the row once MaxAttempts is reached.
func planUpdate(cur rowState, upd DetailUpdate) (updatePlan, error) {
	if cur.Status == model.StatusEnriched {
		return updatePlan{}, ErrNotPending
	}
	p := updatePlan{Attempts: cur.Attempts}
	if upd.Profile.Industry != "" || upd.Profile.MainBusiness != "" {
		prof := upd.Profile
		p.Profile = &prof
	}

	d := upd.Details
	outcome := d.Outcome
	if outcome == "" {
		outcome = model.OutcomeOK
		if !d.Enriched() {
			outcome = model.OutcomeUnreadable
		}
	}

	switch {
	case outcome == model.OutcomeOK:
		if d.Empty() {
			return updatePlan{}, eris.New("store: enriched details are empty")
		}
		d = d.FillUndisclosed()
		p.Status = model.StatusEnriched
		p.Attempts++
		p.Details = &d
	case outcome.Terminal():
		failed := model.FailedDetails(outcome, d.Strategy)
		p.Status = model.StatusFailed
		p.Attempts++
		p.Details = &failed
		p.LastError = string(outcome)
	case outcome.CountsAttempt():
		p.Attempts++
		p.LastError = string(outcome)
		p.Status = model.StatusPending
		if (resilience.RetryBudget{MaxAttempts: upd.MaxAttempts}).Exhausted(p.Attempts) {
			failed := model.FailedDetails(outcome, d.Strategy)
			p.Status = model.StatusFailed
			p.Details = &failed
		}
	default:
		p.Status = model.StatusPending
		p.LastError = string(outcome)
	}
	return p, nil
}

// planFailure counts one attempt that ended in an error outside extraction.
func planFailure(cur rowState, msg string, maxAttempts int) (updatePlan, error) {
	if cur.Status == model.StatusEnriched {
		return updatePlan{}, ErrNotPending
	}
	p := updatePlan{
		Status:    model.StatusPending,
		Attempts:  cur.Attempts + 1,
		LastError: truncate(msg, 500),
	}
	if (resilience.RetryBudget{MaxAttempts: maxAttempts}).Exhausted(p.Attempts) {
		failed := model.FailedDetails(model.OutcomeUnreadable, "")
		p.Status = model.StatusFailed
		p.Details = &failed
	}
	return p, nil
}

// stub is a NormalizedRow prepared for insertion.
type stub struct {
	Day         time.Time
	Date        string
	Title       string
	StockCode   string
	CompanyName string
	DocURL      any
	Source      any
}

// prepareStubs assigns day to undated rows, drops untitled rows and
// duplicates, and maps missing document links to NULL.
func prepareStubs(day time.Time, rows []model.NormalizedRow) ([]stub, int) {
	seen := make(map[model.Key]bool, len(rows))
	out := make([]stub, 0, len(rows))
	skipped := 0
	for _, r := range rows {
		if r.Date.IsZero() {
			r.Date = day
		}
		k := r.Key()
		if k.Title == "" || seen[k] {
			skipped++
			continue
		}
		seen[k] = true
		out = append(out, stub{
			Day:         k.Date,
			Date:        k.DateString(),
			Title:       k.Title,
			StockCode:   orMissing(r.StockCode),
			CompanyName: orMissing(r.CompanyName),
			DocURL:      nullIfMissing(r.DocURL),
			Source:      nullable(r.Source),
		})
	}
	return out, skipped
}

func orMissing(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return model.MissingValue
	}
	return s
}

func nullIfMissing(s string) any {
	s = strings.TrimSpace(s)
	if model.IsMissing(s) {
		return nil
	}
	return s
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func amountArg(d decimal.NullDecimal) any {
	if !d.Valid {
		return nil
	}
	return d.Decimal.StringFixed(2)
}

func parseAmount(s *string) decimal.NullDecimal {
	if s == nil || *s == "" {
		return decimal.NullDecimal{}
	}
	d, err := decimal.NewFromString(*s)
	if err != nil {
		return decimal.NullDecimal{}
	}
	return decimal.NullDecimal{Decimal: d, Valid: true}
}

// detailArgs returns the derived-field values of a plan in column order:
// transaction_type, acquirer, target_company, transaction_price,
// transaction_amount_cny, summary.
func (p updatePlan) detailArgs() []any {
	if p.Details == nil {
		return []any{nil, nil, nil, nil, nil, nil}
	}
	d := p.Details
	return []any{
		nullable(d.TransactionType),
		nullable(d.Acquirer),
		nullable(d.Target),
		nullable(d.TransactionPrice),
		amountArg(d.AmountCNY),
		nullable(d.Summary),
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
