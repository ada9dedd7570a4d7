package main

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/mna-tracker/internal/extract"
	"github.com/sells-group/mna-tracker/internal/fetcher"
	"github.com/sells-group/mna-tracker/internal/model"
	"github.com/sells-group/mna-tracker/internal/monitoring"
	"github.com/sells-group/mna-tracker/internal/pdftext"
	"github.com/sells-group/mna-tracker/internal/pipeline"
	"github.com/sells-group/mna-tracker/internal/profile"
	"github.com/sells-group/mna-tracker/internal/reconcile"
	"github.com/sells-group/mna-tracker/internal/resilience"
	"github.com/sells-group/mna-tracker/internal/source"
	"github.com/sells-group/mna-tracker/internal/store"
)

// openStore opens the configured backend and applies migrations.
func openStore(ctx context.Context) (store.Store, error) {
	var (
		st  store.Store
		err error
	)
	switch cfg.Store.Driver {
	case "sqlite":
		path := cfg.Store.Path
		if path == "" {
			path = "mna.db"
		}
		st, err = store.NewSQLite(path)
	case "postgres":
		st, err = store.NewPostgres(ctx, cfg.Store.DatabaseURL, nil)
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close() //nolint:errcheck
		return nil, err
	}
	return st, nil
}

// buildFetcher creates the shared HTTP fetcher. A configured
// requests_per_second caps every per-host limiter.
func buildFetcher() *fetcher.HTTPFetcher {
	limiters := fetcher.DefaultRateLimiters()
	if rps := cfg.Fetcher.RequestsPerSecond; rps > 0 {
		for _, lim := range limiters {
			if float64(lim.Limit()) > rps {
				lim.SetLimit(rate.Limit(rps))
			}
		}
	}
	return fetcher.NewHTTPFetcher(fetcher.HTTPOptions{
		UserAgent:    cfg.Fetcher.UserAgent,
		Timeout:      time.Duration(cfg.Source.TimeoutSecs) * time.Second,
		MaxRetries:   cfg.Fetcher.MaxRetries,
		RateLimiters: limiters,
	})
}

// buildProvider returns the list provider registered under name.
func buildProvider(f fetcher.Fetcher, name string) (source.Provider, error) {
	switch name {
	case "cninfo":
		c := cfg.Source.Cninfo
		return source.NewCninfoProvider(f, source.CninfoOptions{
			QueryURL:  c.QueryURL,
			StaticURL: c.StaticURL,
			PageSize:  c.PageSize,
			MaxPages:  c.MaxPages,
			PageDelay: time.Duration(c.PageDelayMs) * time.Millisecond,
		}), nil
	case "eastmoney":
		e := cfg.Source.Eastmoney
		return source.NewEastmoneyProvider(f, source.EastmoneyOptions{
			ListURL:   e.ListURL,
			DocURL:    e.DocURL,
			PageSize:  e.PageSize,
			MaxPages:  e.MaxPages,
			PageDelay: time.Duration(e.PageDelayMs) * time.Millisecond,
		}), nil
	default:
		return nil, eris.Errorf("unknown announcement source %q", name)
	}
}

// buildSource wires the primary and optional secondary providers behind
// reconcilers, circuit breakers and failover.
func buildSource(f fetcher.Fetcher, breakers *resilience.ServiceBreakers) (source.Source, error) {
	adapter := func(name string) (*source.Adapter, error) {
		p, err := buildProvider(f, name)
		if err != nil {
			return nil, err
		}
		return source.NewAdapter(p, reconcile.New(cfg.Reconcile.Threshold), breakers.Get("source."+name)), nil
	}

	primary, err := adapter(cfg.Source.Primary)
	if err != nil {
		return nil, err
	}
	if cfg.Source.Secondary == "" || cfg.Source.Secondary == cfg.Source.Primary {
		return source.NewFailover(primary, nil), nil
	}
	secondary, err := adapter(cfg.Source.Secondary)
	if err != nil {
		return nil, err
	}
	return source.NewFailover(primary, secondary), nil
}

// buildExtractor creates the detail extractor for the configured strategy.
func buildExtractor(ctx context.Context, f fetcher.Fetcher) (*extract.Extractor, error) {
	strategy, err := extract.NewStrategy(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if !extract.Available(strategy) {
		zap.L().Warn("extraction strategy has no credentials; rows will be marked unavailable",
			zap.String("strategy", strategy.Name()),
		)
	}
	return extract.New(f, pdftext.NewExtractor(cfg.Extract), strategy, extract.Options{
		Timeout: time.Duration(cfg.Extract.TimeoutSecs) * time.Second,
		TempDir: cfg.Extract.TempDir,
	}), nil
}

// buildProfiles creates the profile resolver, eastmoney first.
func buildProfiles(f fetcher.Fetcher) *profile.Resolver {
	return profile.NewResolver(profile.Options{
		Delay:   time.Duration(cfg.Profile.DelayMs) * time.Millisecond,
		Timeout: time.Duration(cfg.Profile.TimeoutSecs) * time.Second,
	},
		profile.NewEastmoneyLookup(f, cfg.Profile.EastmoneyURL),
		profile.NewSinaLookup(f, cfg.Profile.SinaURL),
	)
}

// loadKeywords returns the keyword policy: the keywords file when set,
// otherwise the inline lists.
func loadKeywords() (source.KeywordPolicy, error) {
	if path := cfg.Pipeline.KeywordsFile; path != "" {
		return source.LoadKeywordPolicy(path)
	}
	kw := cfg.Pipeline.Keywords
	return source.NewKeywordPolicy(kw.Any, kw.Core, kw.Modifier), nil
}

// pipelineEnv holds the resources behind one pipeline command.
type pipelineEnv struct {
	Store    store.Store
	Pipeline *pipeline.Pipeline
	Breakers *resilience.ServiceBreakers
}

// Close releases the store.
func (e *pipelineEnv) Close() {
	if e.Store != nil {
		e.Store.Close() //nolint:errcheck
	}
}

// initPipeline validates config and wires a Pipeline over the configured
// store, sources, extractor and profile resolver.
func initPipeline(ctx context.Context, reg prometheus.Registerer) (*pipelineEnv, error) {
	if err := cfg.Validate("pipeline"); err != nil {
		return nil, err
	}

	kw, err := loadKeywords()
	if err != nil {
		return nil, err
	}
	opts, err := pipeline.OptionsFromConfig(cfg, kw)
	if err != nil {
		return nil, err
	}

	f := buildFetcher()
	breakers := resilience.NewServiceBreakers(resilience.FromCircuitConfig(cfg.Source.BreakerThreshold, 0))
	src, err := buildSource(f, breakers)
	if err != nil {
		return nil, err
	}
	ex, err := buildExtractor(ctx, f)
	if err != nil {
		return nil, err
	}

	st, err := openStore(ctx)
	if err != nil {
		return nil, err
	}

	zap.L().Info("pipeline configured",
		zap.String("store", cfg.Store.Driver),
		zap.String("primary", cfg.Source.Primary),
		zap.String("secondary", cfg.Source.Secondary),
		zap.String("strategy", ex.StrategyName()),
		zap.String("keywords", kw.String()),
	)

	p := pipeline.New(st, src, ex, buildProfiles(f), monitoring.NewMetrics(reg), opts)
	return &pipelineEnv{Store: st, Pipeline: p, Breakers: breakers}, nil
}

// parseDay parses a YYYY-MM-DD flag value.
func parseDay(flag, value string) (time.Time, error) {
	t, err := time.Parse(model.DateLayout, value)
	if err != nil {
		return time.Time{}, eris.Wrapf(err, "invalid --%s %q (want YYYY-MM-DD)", flag, value)
	}
	return t, nil
}

// logRun writes a one-line summary of a finished run, including the state
// of each source breaker.
func (e *pipelineEnv) logRun(rc *pipeline.RunContext) {
	c := rc.Counters()
	zap.L().Info("run finished",
		zap.String("run_id", rc.RunID),
		zap.String("kind", string(rc.Kind)),
		zap.String("start", rc.Start.Format(model.DateLayout)),
		zap.String("end", rc.End.Format(model.DateLayout)),
		zap.Int("inserted", c.Inserted),
		zap.Int("backfilled", c.Backfilled),
		zap.Int("enriched", c.Enriched),
		zap.Int("failed", c.Failed),
		zap.Int("days_failed", c.DaysFailed),
		zap.Any("breakers", breakerStates(e.Breakers)),
	)
}

// breakerStates renders breaker states for logging.
func breakerStates(sb *resilience.ServiceBreakers) map[string]string {
	out := make(map[string]string)
	if sb == nil {
		return out
	}
	for name, st := range sb.States() {
		out[name] = st.String()
	}
	return out
}
