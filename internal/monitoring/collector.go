package monitoring

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/mna-tracker/internal/model"
	"github.com/sells-group/mna-tracker/internal/store"
)

// MetricsSnapshot holds a point-in-time view of ingestion health.
type MetricsSnapshot struct {
	// Announcement backlog.
	Pending  int `json:"pending"`
	Enriched int `json:"enriched"`
	Failed   int `json:"failed"`

	// Pipeline runs started within the lookback window.
	RunsTotal    int     `json:"runs_total"`
	RunsComplete int     `json:"runs_complete"`
	RunsFailed   int     `json:"runs_failed"`
	RunsRunning  int     `json:"runs_running"`
	RunFailRate  float64 `json:"run_fail_rate"`

	// Day and row counters summed over runs in the window.
	DaysOK       int `json:"days_ok"`
	DaysFailed   int `json:"days_failed"`
	RowsInserted int `json:"rows_inserted"`
	RowsEnriched int `json:"rows_enriched"`
	RowsFailed   int `json:"rows_failed"`

	LastRunAt     *time.Time      `json:"last_run_at,omitempty"`
	LastRunStatus model.RunStatus `json:"last_run_status,omitempty"`

	LookbackHours int       `json:"lookback_hours"`
	CollectedAt   time.Time `json:"collected_at"`
}

// StatusSource is the store subset the collector reads.
type StatusSource interface {
	CountByStatus(ctx context.Context) (map[model.EnrichStatus]int, error)
	ListRuns(ctx context.Context, f store.RunFilter) ([]model.PipelineRun, error)
}

// Collector gathers metrics from the store.
type Collector struct {
	store StatusSource
	now   func() time.Time
}

// NewCollector creates a new metrics collector.
func NewCollector(st StatusSource) *Collector {
	return &Collector{store: st, now: time.Now}
}

// maxRunsScanned bounds how many recent runs one snapshot reads.
const maxRunsScanned = 500

// Collect gathers a snapshot over the given lookback window.
func (c *Collector) Collect(ctx context.Context, lookbackHours int) (*MetricsSnapshot, error) {
	now := c.now().UTC()
	snap := &MetricsSnapshot{
		LookbackHours: lookbackHours,
		CollectedAt:   now,
	}

	counts, err := c.store.CountByStatus(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: count by status")
	}
	snap.Pending = counts[model.StatusPending]
	snap.Enriched = counts[model.StatusEnriched]
	snap.Failed = counts[model.StatusFailed]

	runs, err := c.store.ListRuns(ctx, store.RunFilter{Limit: maxRunsScanned})
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: list runs")
	}

	// Runs arrive newest first.
	if len(runs) > 0 {
		last := runs[0]
		snap.LastRunStatus = last.Status
		at := last.StartedAt
		if last.CompletedAt != nil {
			at = *last.CompletedAt
		}
		snap.LastRunAt = &at
	}

	cutoff := now.Add(-time.Duration(lookbackHours) * time.Hour)
	for _, r := range runs {
		if r.StartedAt.Before(cutoff) {
			continue
		}
		snap.RunsTotal++
		switch r.Status {
		case model.RunStatusComplete:
			snap.RunsComplete++
		case model.RunStatusFailed:
			snap.RunsFailed++
		case model.RunStatusRunning:
			snap.RunsRunning++
		}
		snap.DaysOK += r.Counters.DaysOK
		snap.DaysFailed += r.Counters.DaysFailed
		snap.RowsInserted += r.Counters.Inserted
		snap.RowsEnriched += r.Counters.Enriched
		snap.RowsFailed += r.Counters.Failed
	}

	if finished := snap.RunsComplete + snap.RunsFailed; finished > 0 {
		snap.RunFailRate = float64(snap.RunsFailed) / float64(finished)
	}
	return snap, nil
}

func (s *MetricsSnapshot) statusCounts() map[model.EnrichStatus]int {
	return map[model.EnrichStatus]int{
		model.StatusPending:  s.Pending,
		model.StatusEnriched: s.Enriched,
		model.StatusFailed:   s.Failed,
	}
}
