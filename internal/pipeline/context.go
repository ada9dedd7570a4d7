package pipeline

import (
	"sync"
	"time"

	"github.com/sells-group/mna-tracker/internal/model"
	"github.com/sells-group/mna-tracker/internal/store"
)

// RunContext carries the state of one pipeline run across both stages.
type RunContext struct {
	Store store.Store
	RunID string
	Kind  model.RunKind
	Start time.Time
	End   time.Time

	mu        sync.Mutex
	counters  model.RunCounters
	processed map[int64]struct{}
}

// NewRunContext creates a RunContext for the inclusive window [start, end].
// Bounds are truncated to calendar days and swapped if reversed.
func NewRunContext(st store.Store, kind model.RunKind, start, end time.Time) *RunContext {
	start, end = model.Day(start), model.Day(end)
	if end.Before(start) {
		start, end = end, start
	}
	return &RunContext{
		Store:     st,
		Kind:      kind,
		Start:     start,
		End:       end,
		processed: make(map[int64]struct{}),
	}
}

// Counters returns a copy of the counters accumulated so far.
func (rc *RunContext) Counters() model.RunCounters {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	return rc.counters
}

func (rc *RunContext) add(c model.RunCounters) {
	rc.mu.Lock()
	rc.counters.Add(c)
	rc.mu.Unlock()
}

// markProcessed records id as handled in this run.
func (rc *RunContext) markProcessed(id int64) {
	rc.mu.Lock()
	rc.processed[id] = struct{}{}
	rc.mu.Unlock()
}

// processedIDs returns the ids handled so far in this run.
func (rc *RunContext) processedIDs() []int64 {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	ids := make([]int64, 0, len(rc.processed))
	for id := range rc.processed {
		ids = append(ids, id)
	}
	return ids
}

// Days returns the window's calendar days, newest first.
func (rc *RunContext) Days() []time.Time {
	var days []time.Time
	for d := rc.End; !d.Before(rc.Start); d = d.AddDate(0, 0, -1) {
		days = append(days, d)
	}
	return days
}
