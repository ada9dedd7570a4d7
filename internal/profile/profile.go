// Package profile resolves a stock code to its industry and main business.
package profile

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/mna-tracker/internal/model"
)

// ErrNotFound is returned by a Lookup that answered but had no data for the code.
var ErrNotFound = eris.New("profile: not found")

// Lookup fetches a company profile from one provider.
type Lookup interface {
	Name() string
	Lookup(ctx context.Context, code string) (model.Profile, error)
}

// Resolver tries each Lookup in order and memoizes successful results by
// code. Lookups for codes not yet cached are spaced by the configured delay.
type Resolver struct {
	lookups    []Lookup
	limiter    *rate.Limiter
	timeout    time.Duration
	maxEntries int
	log        *zap.Logger

	mu    sync.Mutex
	cache map[string]model.Profile
}

// Options configure a Resolver.
type Options struct {
	// Delay is the minimum gap between provider calls for different codes.
	Delay   time.Duration
	Timeout time.Duration
	// MaxEntries bounds the memo cache; it is emptied when full.
	MaxEntries int
}

// DefaultMaxEntries is the memo cache bound used when Options leaves it unset.
const DefaultMaxEntries = 5000

// NewResolver creates a Resolver over the given lookups, primary first.
func NewResolver(opts Options, lookups ...Lookup) *Resolver {
	lim := rate.NewLimiter(rate.Inf, 1)
	if opts.Delay > 0 {
		lim = rate.NewLimiter(rate.Every(opts.Delay), 1)
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}
	if opts.MaxEntries <= 0 {
		opts.MaxEntries = DefaultMaxEntries
	}
	return &Resolver{
		lookups:    lookups,
		limiter:    lim,
		timeout:    opts.Timeout,
		maxEntries: opts.MaxEntries,
		log:        zap.L().With(zap.String("component", "profile")),
		cache:      make(map[string]model.Profile),
	}
}

// Resolve returns the profile for code. When every provider fails the
// lookup-failed pair is returned and not cached, so a later call asks the
// providers again.
func (r *Resolver) Resolve(ctx context.Context, code string) model.Profile {
	code = model.NormalizeCode(code)
	if model.IsMissing(code) || model.Exchange(code) == "" {
		return model.FailedProfile(code)
	}

	r.mu.Lock()
	p, ok := r.cache[code]
	r.mu.Unlock()
	if ok {
		return p
	}

	p = r.lookup(ctx, code)
	if p.Failed() {
		return p
	}

	if r.size() >= r.maxEntries {
		r.Forget()
	}
	r.mu.Lock()
	r.cache[code] = p
	r.mu.Unlock()
	return p
}

func (r *Resolver) lookup(ctx context.Context, code string) model.Profile {
	for _, l := range r.lookups {
		if err := r.limiter.Wait(ctx); err != nil {
			r.log.Debug("profile lookup cancelled", zap.String("stock_code", code), zap.Error(err))
			return model.FailedProfile(code)
		}

		lctx, cancel := context.WithTimeout(ctx, r.timeout)
		p, err := l.Lookup(lctx, code)
		cancel()
		if err != nil {
			r.log.Debug("profile provider failed",
				zap.String("provider", l.Name()),
				zap.String("stock_code", code),
				zap.Error(err),
			)
			continue
		}
		p.StockCode = code
		p.Source = l.Name()
		p.Industry = orNotDisclosed(p.Industry)
		p.MainBusiness = orNotDisclosed(p.MainBusiness)
		return p
	}

	r.log.Warn("all profile providers failed", zap.String("stock_code", code))
	return model.FailedProfile(code)
}

// Forget drops every cached profile.
func (r *Resolver) Forget() {
	r.mu.Lock()
	r.cache = make(map[string]model.Profile)
	r.mu.Unlock()
}

func (r *Resolver) size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.cache)
}

func orNotDisclosed(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	if s == "" || s == "--" || s == "-" {
		return model.NotDisclosed
	}
	return s
}
