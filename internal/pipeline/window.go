package pipeline

import (
	"context"
	"time"

	"github.com/sells-group/mna-tracker/internal/model"
)

// exchangeZone decides what "today" means for a run.
var exchangeZone = time.FixedZone("CST", 8*60*60)

// today returns the current exchange calendar day as a UTC midnight.
func today(now time.Time) time.Time {
	return model.Day(now.In(exchangeZone))
}

// NightlyWindow returns yesterday..today in exchange time.
func NightlyWindow(now time.Time) (start, end time.Time) {
	end = today(now)
	return end.AddDate(0, 0, -1), end
}

// BackfillWindow returns the trailing days ending yesterday in exchange
// time. days < 1 uses DefaultBackfillDays.
func BackfillWindow(now time.Time, days int) (start, end time.Time) {
	if days < 1 {
		days = DefaultBackfillDays
	}
	end = today(now).AddDate(0, 0, -1)
	return end.AddDate(0, 0, -(days - 1)), end
}

// RunNightly runs both stages over the nightly window.
func (p *Pipeline) RunNightly(ctx context.Context) (*RunContext, error) {
	start, end := NightlyWindow(p.now())
	return p.Run(ctx, model.RunKindNightly, start, end)
}

// RunBackfill runs both stages over the trailing backfill window. days < 1
// uses the configured BackfillDays.
func (p *Pipeline) RunBackfill(ctx context.Context, days int) (*RunContext, error) {
	if days < 1 {
		days = p.opts.BackfillDays
	}
	start, end := BackfillWindow(p.now(), days)
	return p.Run(ctx, model.RunKindBackfill, start, end)
}
