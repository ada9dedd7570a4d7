package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/sells-group/mna-tracker/internal/model"
)

// Metrics holds the pipeline's prometheus collectors. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	days          *prometheus.CounterVec
	rows          *prometheus.CounterVec
	enrichResults *prometheus.CounterVec
	outcomes      *prometheus.CounterVec
	runs          *prometheus.CounterVec
	stageDuration *prometheus.HistogramVec
	announcements *prometheus.GaugeVec
	lastRun       prometheus.Gauge
}

// NewMetrics creates the collectors and registers them on reg. A nil reg
// uses the default registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		days: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mna_ingest_days_total",
			Help: "Days processed by the fast-forward stage, by result",
		}, []string{"result"}),
		rows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mna_ingest_rows_total",
			Help: "Announcement stubs handled by the fast-forward stage, by result",
		}, []string{"result"}),
		enrichResults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mna_enrich_rows_total",
			Help: "Rows processed by the enrichment stage, by resulting status",
		}, []string{"status"}),
		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mna_extract_outcomes_total",
			Help: "Document extraction outcomes",
		}, []string{"outcome"}),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mna_runs_total",
			Help: "Pipeline runs, by kind and final status",
		}, []string{"kind", "status"}),
		stageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "mna_stage_duration_seconds",
			Help:    "Time spent in each pipeline stage",
			Buckets: prometheus.ExponentialBuckets(1, 2, 14), // 1s to ~2.3h
		}, []string{"stage"}),
		announcements: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "mna_announcements",
			Help: "Stored announcements, by enrichment status",
		}, []string{"status"}),
		lastRun: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "mna_last_run_timestamp_seconds",
			Help: "Unix time the most recent pipeline run finished",
		}),
	}

	reg.MustRegister(
		m.days,
		m.rows,
		m.enrichResults,
		m.outcomes,
		m.runs,
		m.stageDuration,
		m.announcements,
		m.lastRun,
	)
	return m
}

// ObserveDay records one fast-forward day.
func (m *Metrics) ObserveDay(ok bool, fetched, inserted, backfilled, skipped int) {
	if m == nil {
		return
	}
	if !ok {
		m.days.WithLabelValues("failed").Inc()
		return
	}
	m.days.WithLabelValues("ok").Inc()
	m.rows.WithLabelValues("fetched").Add(float64(fetched))
	m.rows.WithLabelValues("inserted").Add(float64(inserted))
	m.rows.WithLabelValues("backfilled").Add(float64(backfilled))
	m.rows.WithLabelValues("skipped").Add(float64(skipped))
}

// ObserveEnrich records one enriched row.
func (m *Metrics) ObserveEnrich(status model.EnrichStatus, outcome model.ExtractOutcome) {
	if m == nil {
		return
	}
	m.enrichResults.WithLabelValues(string(status)).Inc()
	if outcome != "" {
		m.outcomes.WithLabelValues(string(outcome)).Inc()
	}
}

// ObserveStage records the duration of one stage.
func (m *Metrics) ObserveStage(stage string, d time.Duration) {
	if m == nil {
		return
	}
	m.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

// ObserveRun records a finished run.
func (m *Metrics) ObserveRun(run *model.PipelineRun) {
	if m == nil || run == nil {
		return
	}
	m.runs.WithLabelValues(string(run.Kind), string(run.Status)).Inc()
	if run.CompletedAt != nil {
		m.lastRun.Set(float64(run.CompletedAt.Unix()))
	}
}

// SetStatusCounts updates the announcement gauges.
func (m *Metrics) SetStatusCounts(counts map[model.EnrichStatus]int) {
	if m == nil {
		return
	}
	for status, n := range counts {
		m.announcements.WithLabelValues(string(status)).Set(float64(n))
	}
}
