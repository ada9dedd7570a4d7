package pipeline

import (
	"context"
	"errors"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/mna-tracker/internal/extract"
	"github.com/sells-group/mna-tracker/internal/model"
	"github.com/sells-group/mna-tracker/internal/resilience"
	"github.com/sells-group/mna-tracker/internal/store"
)

// Enrich drains the pending set in batches of BatchSize, up to MaxBatches
// batches or until nothing pending remains. Each row is extracted, profiled
// and written in its own transaction; a row that fails is logged with its
// key, charged an attempt and skipped. Rows handled earlier in the same run
// are never selected again.
func (p *Pipeline) Enrich(ctx context.Context, rc *RunContext) error {
	log := p.log.With(zap.String("stage", "enrich"), zap.String("run_id", rc.RunID))
	before := rc.Counters()

	batches := 0
	for batches < p.opts.MaxBatches {
		if err := ctx.Err(); err != nil {
			return eris.Wrap(err, "pipeline: enrich cancelled")
		}

		rows, err := rc.Store.SelectPending(ctx, p.opts.BatchSize, rc.processedIDs())
		if err != nil {
			return eris.Wrap(err, "pipeline: select pending")
		}
		if len(rows) == 0 {
			break
		}
		batches++

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(p.opts.Workers)
		for _, row := range rows {
			rc.markProcessed(row.ID)
			g.Go(func() error {
				p.enrichRow(gctx, rc, row, log)
				if err := wait(gctx, p.opts.RowDelay); err != nil {
					return eris.Wrap(err, "pipeline: enrich cancelled")
				}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}
	}

	after := rc.Counters()
	log.Info("pipeline: enrichment complete",
		zap.Int("batches", batches),
		zap.Int("enriched", after.Enriched-before.Enriched),
		zap.Int("failed", after.Failed-before.Failed),
		zap.Int("retried", after.Retried-before.Retried),
	)
	return nil
}

// enrichRow processes one pending announcement.
func (p *Pipeline) enrichRow(ctx context.Context, rc *RunContext, row model.Announcement, log *zap.Logger) {
	key := row.Key()
	log = log.With(zap.Int64("id", row.ID), zap.String("key", key.String()))

	details := p.extractor.Extract(ctx, row.DocURL, extract.Hint{
		Title:       row.Title,
		CompanyName: row.CompanyName,
		StockCode:   row.StockCode,
	})

	var prof model.Profile
	if p.profiles != nil {
		prof = p.profiles.Resolve(ctx, row.StockCode)
	}

	status, err := rc.Store.UpdateDetails(ctx, key, store.DetailUpdate{
		Details:     details,
		Profile:     prof,
		MaxAttempts: p.opts.MaxAttempts,
	})
	if err != nil {
		if errors.Is(err, store.ErrNotPending) || errors.Is(err, store.ErrNotFound) {
			log.Debug("pipeline: row no longer pending", zap.Error(err))
			return
		}
		log.Error("pipeline: row update failed",
			zap.String("class", resilience.ClassifyError(err)),
			zap.Error(err),
		)
		status = p.recordFailure(ctx, rc, key, err, log)
		rc.add(countStatus(status))
		p.metrics.ObserveEnrich(status, "")
		return
	}

	rc.add(countStatus(status))
	p.metrics.ObserveEnrich(status, details.Outcome)
	fields := []zap.Field{
		zap.String("status", string(status)),
		zap.String("outcome", string(details.Outcome)),
	}
	if status == model.StatusPending {
		budget := resilience.RetryBudget{MaxAttempts: p.opts.MaxAttempts}
		fields = append(fields, zap.Int("attempts_left", budget.Remaining(row.EnrichAttempts+1)))
	}
	log.Debug("pipeline: row processed", fields...)
}

// recordFailure charges one attempt against key. If that also fails the
// row is left pending for the next run.
func (p *Pipeline) recordFailure(ctx context.Context, rc *RunContext, key model.Key, cause error, log *zap.Logger) model.EnrichStatus {
	status, err := rc.Store.RecordFailure(context.WithoutCancel(ctx), key, cause.Error(), p.opts.MaxAttempts)
	if err != nil {
		log.Error("pipeline: record failure", zap.Error(err))
		return model.StatusPending
	}
	return status
}

func countStatus(s model.EnrichStatus) model.RunCounters {
	switch s {
	case model.StatusEnriched:
		return model.RunCounters{Enriched: 1}
	case model.StatusFailed:
		return model.RunCounters{Failed: 1}
	default:
		return model.RunCounters{Retried: 1}
	}
}
