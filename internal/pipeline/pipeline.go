// Package pipeline runs the two-stage acquisition protocol: a fast ingest of
// announcement stubs followed by per-row enrichment of the pending set.
package pipeline

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/mna-tracker/internal/config"
	"github.com/sells-group/mna-tracker/internal/extract"
	"github.com/sells-group/mna-tracker/internal/model"
	"github.com/sells-group/mna-tracker/internal/monitoring"
	"github.com/sells-group/mna-tracker/internal/source"
	"github.com/sells-group/mna-tracker/internal/store"
)

// DetailExtractor produces deal details for one filed document.
type DetailExtractor interface {
	Extract(ctx context.Context, docURL string, hint extract.Hint) model.DealDetails
}

// ProfileResolver returns the company profile for a stock code.
type ProfileResolver interface {
	Resolve(ctx context.Context, code string) model.Profile
}

// Options tune a Pipeline. Zero values fall back to defaults.
type Options struct {
	Keywords       source.KeywordPolicy
	ConflictPolicy store.ConflictPolicy
	BatchSize      int
	MaxBatches     int
	Workers        int
	MaxAttempts    int
	DayDelay       time.Duration
	RowDelay       time.Duration
	BackfillDays   int
}

// Defaults.
const (
	DefaultBatchSize    = 20
	DefaultMaxAttempts  = 3
	DefaultBackfillDays = 270
)

// OptionsFromConfig maps the pipeline and store configuration onto Options.
// The keyword policy is supplied by the caller.
func OptionsFromConfig(cfg *config.Config, kw source.KeywordPolicy) (Options, error) {
	policy, err := store.ParseConflictPolicy(cfg.Store.ConflictPolicy)
	if err != nil {
		return Options{}, eris.Wrap(err, "pipeline: conflict policy")
	}
	p := cfg.Pipeline
	return Options{
		Keywords:       kw,
		ConflictPolicy: policy,
		BatchSize:      p.BatchSize,
		MaxBatches:     p.MaxBatches,
		Workers:        p.EnrichWorkers,
		MaxAttempts:    p.MaxEnrichAttempts,
		DayDelay:       time.Duration(p.DayDelayMs) * time.Millisecond,
		RowDelay:       time.Duration(p.EnrichDelayMs) * time.Millisecond,
		BackfillDays:   p.BackfillDays,
	}, nil
}

func (o Options) withDefaults() Options {
	if o.Keywords.Empty() {
		o.Keywords = source.DefaultKeywordPolicy()
	}
	if o.ConflictPolicy == "" {
		o.ConflictPolicy = store.PolicyBackfillMissing
	}
	if o.BatchSize <= 0 {
		o.BatchSize = DefaultBatchSize
	}
	if o.MaxBatches <= 0 {
		o.MaxBatches = 1
	}
	if o.Workers <= 0 {
		o.Workers = 1
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = DefaultMaxAttempts
	}
	if o.BackfillDays <= 0 {
		o.BackfillDays = DefaultBackfillDays
	}
	return o
}

// Pipeline orchestrates the fast-forward and enrichment stages.
type Pipeline struct {
	store     store.Store
	source    source.Source
	extractor DetailExtractor
	profiles  ProfileResolver
	metrics   *monitoring.Metrics
	opts      Options
	log       *zap.Logger
	now       func() time.Time
}

// New creates a Pipeline. profiles and metrics may be nil.
func New(
	st store.Store,
	src source.Source,
	ex DetailExtractor,
	profiles ProfileResolver,
	metrics *monitoring.Metrics,
	opts Options,
) *Pipeline {
	return &Pipeline{
		store:     st,
		source:    src,
		extractor: ex,
		profiles:  profiles,
		metrics:   metrics,
		opts:      opts.withDefaults(),
		log:       zap.L().With(zap.String("component", "pipeline")),
		now:       time.Now,
	}
}

// Options returns the effective options.
func (p *Pipeline) Options() Options { return p.opts }

// Run executes one pipeline run over the inclusive window [start, end].
// Nightly and backfill runs execute both stages; ingest runs only the
// fast-forward stage and enrich runs only the enrichment stage. The run is
// recorded in the run log whether or not it succeeds.
func (p *Pipeline) Run(ctx context.Context, kind model.RunKind, start, end time.Time) (*RunContext, error) {
	rc := NewRunContext(p.store, kind, start, end)
	log := p.log.With(
		zap.String("kind", string(kind)),
		zap.String("start", rc.Start.Format(model.DateLayout)),
		zap.String("end", rc.End.Format(model.DateLayout)),
	)

	run := &model.PipelineRun{
		Kind:        kind,
		WindowStart: rc.Start,
		WindowEnd:   rc.End,
	}
	if err := p.store.StartRun(ctx, run); err != nil {
		return nil, eris.Wrap(err, "pipeline: start run")
	}
	rc.RunID = run.ID
	log = log.With(zap.String("run_id", run.ID))
	log.Info("pipeline: run started")

	runStart := p.now()
	var runErr error
	if kind != model.RunKindEnrich {
		runErr = p.trackStage(log, "fast_forward", func() error { return p.FastForward(ctx, rc) })
	}
	if runErr == nil && kind != model.RunKindIngest {
		runErr = p.trackStage(log, "enrich", func() error { return p.Enrich(ctx, rc) })
	}

	run.Counters = rc.Counters()
	run.Status = model.RunStatusComplete
	if runErr != nil {
		run.Status = model.RunStatusFailed
		run.Error = runErr.Error()
	}
	// The run log is written even when ctx was cancelled mid-run.
	if err := p.store.CompleteRun(context.WithoutCancel(ctx), run); err != nil {
		log.Warn("pipeline: failed to record run completion", zap.Error(err))
	}
	p.metrics.ObserveRun(run)

	c := run.Counters
	log.Info("pipeline: run finished",
		zap.String("status", string(run.Status)),
		zap.Duration("elapsed", p.now().Sub(runStart)),
		zap.Int("fetched", c.Fetched),
		zap.Int("inserted", c.Inserted),
		zap.Int("backfilled", c.Backfilled),
		zap.Int("enriched", c.Enriched),
		zap.Int("failed", c.Failed),
		zap.Int("days_ok", c.DaysOK),
		zap.Int("days_failed", c.DaysFailed),
	)
	return rc, runErr
}

func (p *Pipeline) trackStage(log *zap.Logger, stage string, fn func() error) error {
	start := p.now()
	err := fn()
	elapsed := p.now().Sub(start)
	p.metrics.ObserveStage(stage, elapsed)
	if err != nil {
		log.Error("pipeline: stage failed",
			zap.String("stage", stage),
			zap.Duration("elapsed", elapsed),
			zap.Error(err),
		)
	}
	return err
}

// wait sleeps for d or until ctx is done.
func wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
