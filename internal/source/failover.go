package source

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Failover tries a primary source and falls back to a secondary when the
// primary failed every day of the range or returned no rows.
type Failover struct {
	primary   Source
	secondary Source
	log       *zap.Logger
}

// NewFailover creates a Failover. A nil secondary disables fallback.
func NewFailover(primary, secondary Source) *Failover {
	return &Failover{
		primary:   primary,
		secondary: secondary,
		log:       zap.L().With(zap.String("component", "source.failover")),
	}
}

// Fetch calls the primary, then the secondary with identical arguments if
// needed. When both fail the result is empty and the error is nil.
func (f *Failover) Fetch(ctx context.Context, kw KeywordPolicy, start, end time.Time) (FetchResult, error) {
	res, err := f.primary.Fetch(ctx, kw, start, end)
	if err != nil {
		return res, err
	}
	if len(res.Rows) > 0 || f.secondary == nil {
		return res, nil
	}

	reason := "no rows"
	if res.DaysOK == 0 {
		reason = "all days failed"
	}
	f.log.Warn("primary source unusable, switching to secondary",
		zap.String("primary", res.Source),
		zap.String("reason", reason),
		zap.Int("days_failed", res.DaysFailed),
	)

	alt, err := f.secondary.Fetch(ctx, kw, start, end)
	if err != nil {
		return alt, err
	}
	if alt.DaysOK == 0 {
		if res.DaysOK > 0 {
			// The primary answered; an empty range is not an outage.
			f.log.Warn("secondary source failed, keeping empty primary result",
				zap.String("secondary", alt.Source),
				zap.Int("days_failed", alt.DaysFailed),
			)
			return res, nil
		}
		f.log.Error("all sources failed",
			zap.String("primary", res.Source),
			zap.String("secondary", alt.Source),
		)
	}
	return alt, nil
}
