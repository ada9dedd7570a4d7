package model

import "time"

// RunKind identifies which pipeline entry point started a run.
type RunKind string

const (
	RunKindNightly  RunKind = "nightly"
	RunKindBackfill RunKind = "backfill"
	RunKindIngest   RunKind = "ingest"
	RunKindEnrich   RunKind = "enrich"
)

// RunStatus represents the current state of a pipeline run.
type RunStatus string

const (
	RunStatusRunning  RunStatus = "running"
	RunStatusComplete RunStatus = "complete"
	RunStatusFailed   RunStatus = "failed"
)

// RunCounters accumulates per-stage counts for one run.
type RunCounters struct {
	Fetched    int `json:"fetched"`
	Inserted   int `json:"inserted"`
	Backfilled int `json:"backfilled"`
	Skipped    int `json:"skipped"`
	Enriched   int `json:"enriched"`
	Failed     int `json:"failed"`
	Retried    int `json:"retried"`
	DaysOK     int `json:"days_ok"`
	DaysFailed int `json:"days_failed"`
}

// Add merges o into c.
func (c *RunCounters) Add(o RunCounters) {
	c.Fetched += o.Fetched
	c.Inserted += o.Inserted
	c.Backfilled += o.Backfilled
	c.Skipped += o.Skipped
	c.Enriched += o.Enriched
	c.Failed += o.Failed
	c.Retried += o.Retried
	c.DaysOK += o.DaysOK
	c.DaysFailed += o.DaysFailed
}

// PipelineRun is one row of the pipeline_runs log.
type PipelineRun struct {
	ID          string      `json:"id"`
	Kind        RunKind     `json:"kind"`
	WindowStart time.Time   `json:"window_start"`
	WindowEnd   time.Time   `json:"window_end"`
	Status      RunStatus   `json:"status"`
	Counters    RunCounters `json:"counters"`
	Error       string      `json:"error,omitempty"`
	StartedAt   time.Time   `json:"started_at"`
	CompletedAt *time.Time  `json:"completed_at,omitempty"`
}

// Profile is the company profile value object keyed by stock code.
type Profile struct {
	StockCode    string `json:"stock_code"`
	Industry     string `json:"industry"`
	MainBusiness string `json:"main_business"`
	Source       string `json:"source,omitempty"`
}

// FailedProfile returns the explicit lookup-failed pair for code.
func FailedProfile(code string) Profile {
	return Profile{
		StockCode:    code,
		Industry:     ProfileLookupFailed,
		MainBusiness: ProfileLookupFailed,
	}
}

// Failed reports whether the profile is the lookup-failed pair.
func (p Profile) Failed() bool {
	return p.Industry == ProfileLookupFailed && p.MainBusiness == ProfileLookupFailed
}
