package source

import (
	"context"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/mna-tracker/internal/model"
	"github.com/sells-group/mna-tracker/internal/reconcile"
	"github.com/sells-group/mna-tracker/internal/resilience"
)

// Source lists keyword-matching announcements over an inclusive date range.
type Source interface {
	Fetch(ctx context.Context, kw KeywordPolicy, start, end time.Time) (FetchResult, error)
}

// FetchResult is the outcome of one Fetch call.
type FetchResult struct {
	Rows       []model.NormalizedRow
	Source     string
	DaysOK     int
	DaysFailed int
	// Scanned counts normalized rows before keyword filtering.
	Scanned int
}

// Adapter fetches from a single provider, one day at a time.
type Adapter struct {
	provider   Provider
	reconciler *reconcile.Reconciler
	breaker    *resilience.CircuitBreaker
	log        *zap.Logger
}

// NewAdapter wraps provider. A nil breaker disables short-circuiting.
func NewAdapter(provider Provider, rec *reconcile.Reconciler, breaker *resilience.CircuitBreaker) *Adapter {
	if rec == nil {
		rec = reconcile.New(reconcile.DefaultThreshold)
	}
	return &Adapter{
		provider:   provider,
		reconciler: rec,
		breaker:    breaker,
		log:        zap.L().With(zap.String("component", "source"), zap.String("provider", provider.Name())),
	}
}

// Name returns the provider name.
func (a *Adapter) Name() string { return a.provider.Name() }

// Fetch iterates the days from start to end inclusive. A day that fails to
// fetch or reconcile is logged and skipped. Rows are filtered on title and
// de-duplicated by natural key. Only context cancellation returns an error.
func (a *Adapter) Fetch(ctx context.Context, kw KeywordPolicy, start, end time.Time) (FetchResult, error) {
	res := FetchResult{Source: a.provider.Name()}
	seen := make(map[model.Key]bool)

	for day := model.Day(start); !day.After(model.Day(end)); day = day.AddDate(0, 0, 1) {
		if err := ctx.Err(); err != nil {
			return res, eris.Wrap(err, "source: fetch cancelled")
		}

		rows, err := a.fetchDay(ctx, day)
		if err != nil {
			if ctx.Err() != nil {
				return res, eris.Wrap(ctx.Err(), "source: fetch cancelled")
			}
			res.DaysFailed++
			a.log.Warn("day fetch failed, skipping",
				zap.String("date", day.Format(model.DateLayout)),
				zap.Bool("short_circuited", errors.Is(err, resilience.ErrCircuitOpen)),
				zap.Error(err),
			)
			continue
		}
		res.DaysOK++
		res.Scanned += len(rows)

		for _, r := range rows {
			if !kw.Match(r.Title) {
				continue
			}
			k := r.Key()
			if seen[k] {
				continue
			}
			seen[k] = true
			res.Rows = append(res.Rows, r)
		}
	}

	fields := []zap.Field{
		zap.Time("start", start),
		zap.Time("end", end),
		zap.Int("days_ok", res.DaysOK),
		zap.Int("days_failed", res.DaysFailed),
		zap.Int("scanned", res.Scanned),
		zap.Int("matched", len(res.Rows)),
	}
	if a.breaker != nil {
		fields = append(fields, zap.Stringer("breaker", a.breaker.State()))
	}
	a.log.Info("fetch complete", fields...)
	return res, nil
}

func (a *Adapter) fetchDay(ctx context.Context, day time.Time) ([]model.NormalizedRow, error) {
	fetch := func(ctx context.Context) (*model.RawTable, error) {
		return a.provider.FetchDay(ctx, day)
	}

	var (
		table *model.RawTable
		err   error
	)
	if a.breaker != nil {
		table, err = resilience.ExecuteVal(ctx, a.breaker, fetch)
	} else {
		table, err = fetch(ctx)
	}
	if err != nil {
		return nil, err
	}

	rows, _, err := a.reconciler.Normalize(table)
	if err != nil {
		return nil, err
	}
	return rows, nil
}
