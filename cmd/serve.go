package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/mna-tracker/internal/model"
	"github.com/sells-group/mna-tracker/internal/monitoring"
	"github.com/sells-group/mna-tracker/internal/quote"
	"github.com/sells-group/mna-tracker/internal/store"
)

var servePort int

const (
	defaultPageLimit = 50
	maxPageLimit     = 500
	statusRunLimit   = 10
)

// profileResolver answers /api/profile lookups.
type profileResolver interface {
	Resolve(ctx context.Context, code string) model.Profile
}

// quoteGetter answers /api/quote lookups.
type quoteGetter interface {
	Get(ctx context.Context, code string) (*quote.Quote, error)
}

// apiDeps are the handlers' collaborators.
type apiDeps struct {
	Store    store.Store
	Profiles profileResolver
	Quotes   quoteGetter
	Registry *prometheus.Registry
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the read-only announcements API and metrics",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if servePort > 0 {
			cfg.Server.Port = servePort
		}
		if err := cfg.Validate("serve"); err != nil {
			return err
		}

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		metrics := monitoring.NewMetrics(reg)

		if cfg.Monitoring.Enabled {
			checker := monitoring.NewChecker(
				monitoring.NewCollector(st),
				monitoring.NewAlerter(cfg.Monitoring),
				metrics,
				cfg.Monitoring,
			)
			go checker.Run(ctx)
		}

		f := buildFetcher()
		handler := buildRouter(apiDeps{
			Store:    st,
			Profiles: buildProfiles(f),
			Quotes:   quote.New(f, cfg.Quote.BaseURL),
			Registry: reg,
		})

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
		}

		errCh := make(chan error, 1)
		go func() {
			zap.L().Info("starting server", zap.Int("port", cfg.Server.Port))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
			close(errCh)
		}()

		select {
		case <-ctx.Done():
		case err := <-errCh:
			if err != nil {
				return eris.Wrap(err, "server error")
			}
		}

		zap.L().Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default server.port)")
	rootCmd.AddCommand(serveCmd)
}

// buildRouter wires the read-only API routes.
func buildRouter(d apiDeps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(r chi.Router) {
		r.Get("/announcements", d.listAnnouncements)
		r.Get("/announcements/{date}/{title}", d.getAnnouncement)
		r.Get("/profile/{code}", d.getProfile)
		r.Get("/quote/{code}", d.getQuote)
		r.Get("/status", d.getStatus)
	})

	if d.Registry != nil {
		r.Handle("/metrics", promhttp.HandlerFor(d.Registry, promhttp.HandlerOpts{}))
	}
	return r
}

func (d apiDeps) listAnnouncements(w http.ResponseWriter, r *http.Request) {
	filter, err := announcementFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	rows, err := d.Store.ListAnnouncements(r.Context(), filter)
	if err != nil {
		zap.L().Error("list announcements", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list announcements")
		return
	}
	if rows == nil {
		rows = []model.Announcement{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"announcements": rows,
		"limit":         filter.Limit,
		"offset":        filter.Offset,
	})
}

// announcementFilter parses the list query parameters.
func announcementFilter(r *http.Request) (store.AnnouncementFilter, error) {
	q := r.URL.Query()
	f := store.AnnouncementFilter{
		StockCode: q.Get("code"),
		Query:     q.Get("q"),
		Limit:     defaultPageLimit,
	}
	if s := q.Get("from"); s != "" {
		t, err := parseDay("from", s)
		if err != nil {
			return f, errors.New("from must be YYYY-MM-DD")
		}
		f.From = t
	}
	if s := q.Get("to"); s != "" {
		t, err := parseDay("to", s)
		if err != nil {
			return f, errors.New("to must be YYYY-MM-DD")
		}
		f.To = t
	}
	switch s := model.EnrichStatus(q.Get("status")); s {
	case "", model.StatusPending, model.StatusEnriched, model.StatusFailed:
		f.Status = s
	default:
		return f, fmt.Errorf("unknown status %q", s)
	}
	if s := q.Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 {
			return f, errors.New("limit must be a positive integer")
		}
		f.Limit = min(n, maxPageLimit)
	}
	if s := q.Get("offset"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			return f, errors.New("offset must be a non-negative integer")
		}
		f.Offset = n
	}
	return f, nil
}

func (d apiDeps) getAnnouncement(w http.ResponseWriter, r *http.Request) {
	date, err := parseDay("date", chi.URLParam(r, "date"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
		return
	}
	title, err := url.PathUnescape(chi.URLParam(r, "title"))
	if err != nil || title == "" {
		writeError(w, http.StatusBadRequest, "invalid title")
		return
	}
	a, err := d.Store.GetAnnouncement(r.Context(), model.NewKey(date, title))
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "announcement not found")
		return
	}
	if err != nil {
		zap.L().Error("get announcement", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load announcement")
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (d apiDeps) getProfile(w http.ResponseWriter, r *http.Request) {
	code := model.NormalizeCode(chi.URLParam(r, "code"))
	if model.Exchange(code) == "" {
		writeError(w, http.StatusBadRequest, "code must be a six-digit A-share code")
		return
	}
	writeJSON(w, http.StatusOK, d.Profiles.Resolve(r.Context(), code))
}

func (d apiDeps) getQuote(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	q, err := d.Quotes.Get(r.Context(), code)
	if errors.Is(err, quote.ErrUnknownCode) {
		writeError(w, http.StatusNotFound, "unknown stock code")
		return
	}
	if err != nil {
		zap.L().Warn("quote lookup failed", zap.String("code", code), zap.Error(err))
		writeError(w, http.StatusBadGateway, "quote service unavailable")
		return
	}
	writeJSON(w, http.StatusOK, q)
}

func (d apiDeps) getStatus(w http.ResponseWriter, r *http.Request) {
	counts, err := d.Store.CountByStatus(r.Context())
	if err != nil {
		zap.L().Error("count by status", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load status")
		return
	}
	runs, err := d.Store.ListRuns(r.Context(), store.RunFilter{Limit: statusRunLimit})
	if err != nil {
		zap.L().Error("list runs", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load status")
		return
	}
	if runs == nil {
		runs = []model.PipelineRun{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"counts": map[string]int{
			string(model.StatusPending):  counts[model.StatusPending],
			string(model.StatusEnriched): counts[model.StatusEnriched],
			string(model.StatusFailed):   counts[model.StatusFailed],
		},
		"runs": runs,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
