// Package http exposes the dashboard core as a JSON API on a chi router.
package http

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"findash/internal/backup"
	"findash/internal/cache"
	applog "findash/internal/log"
	"findash/internal/metrics"
	"findash/internal/middleware/ratelimit"
	"findash/internal/middleware/security"
	"findash/internal/query"
	"findash/internal/services"
	"findash/internal/settings"
	"findash/internal/stats"
)

// Pinger reports whether the store can serve queries.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps are the collaborators the handlers call into. All are required
// except Backups-related fields, which may describe an unconfigured sink.
type Deps struct {
	Store     Pinger
	Records   *services.RecordService
	Lookups   *services.LookupService
	Who       *cache.WhoCache
	Pager     *query.Pager
	Stats     *stats.Aggregator
	Settings  *settings.Store
	Backups   *backup.Service
	Scheduler *backup.Scheduler
	Configs   *backup.ConfigStore
	// SinkAddress is shown as scriptUrl in the backup config view.
	SinkAddress string

	RateLimitPerMinute int
	Logger             *applog.Logger
}

// Server is the HTTP front of the dashboard.
type Server struct {
	http.Server
	deps    Deps
	limiter *ratelimit.Limiter
	logger  *applog.Logger
}

// NewServer wires routes and returns a server ready for ListenAndServe.
func NewServer(addr string, deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = applog.Nop()
	}
	s := &Server{
		deps:    deps,
		limiter: ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: deps.RateLimitPerMinute}),
		logger:  logger.WithComponent(applog.ComponentHTTP),
	}
	s.Server = http.Server{
		Addr:              addr,
		Handler:           s.routes(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		// Restores may take up to the backup timeout.
		WriteTimeout: 2 * time.Minute,
		IdleTimeout:  2 * time.Minute,
	}
	return s
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(applog.Middleware(s.logger))
	r.Use(middleware.Recoverer)
	r.Use(security.Headers(security.DefaultHeadersConfig()))

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/{type}", func(r chi.Router) {
		r.Get("/", s.handleListRecords)
		r.Post("/", s.handleCreateRecord)
		r.Get("/{id}", s.handleGetRecord)
		r.Patch("/{id}", s.handleUpdateRecord)
		r.Delete("/{id}", s.handleDeleteRecord)
	})

	r.Route("/options", func(r chi.Router) {
		r.Get("/categories", s.handleListCategories)
		r.Post("/categories", s.handleAddCategory)
		r.Delete("/categories", s.handleRemoveCategory)
		r.Get("/currencies", s.handleListCurrencies)
		r.Post("/currencies", s.handleAddCurrency)
		r.Delete("/currencies", s.handleRemoveCurrency)
		r.Post("/currencies/rates", s.handleSetRates)
		r.Post("/currency-rates", s.handleSetRates)
		r.Get("/who", s.handleWho)
	})

	r.Get("/stats/categories", s.handleCategoryStats)
	r.Get("/stats/summary", s.handleSummaryStats)

	r.Get("/settings", s.handleGetSettings)
	r.Post("/settings", s.handleUpdateSettings)

	r.Route("/backup", func(r chi.Router) {
		r.Get("/config", s.handleGetBackupConfig)
		r.Post("/config", s.handleUpdateBackupConfig)
		r.Get("/list", s.handleListBackups)
		r.Group(func(r chi.Router) {
			r.Use(s.limiter.Middleware(clientIP, s.rateLimited))
			r.Post("/run", s.handleRunBackup)
			r.Post("/restore", s.handleRestoreBackup)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, errorBody{Error: "route not found", Code: "not_found"})
	})
	return r
}

// Shutdown stops accepting requests, waits for in-flight ones and stops
// the limiter's cleanup goroutine.
func (s *Server) Shutdown(ctx context.Context) error {
	s.limiter.Stop()
	return s.Server.Shutdown(ctx)
}

// clientIP relies on middleware.RealIP having rewritten RemoteAddr.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func (s *Server) rateLimited(w http.ResponseWriter, r *http.Request) {
	applog.FromContext(r.Context()).WarnContext(r.Context(), "Rate limit exceeded",
		applog.FieldClientIP, clientIP(r), applog.FieldPath, r.URL.Path)
	writeJSON(w, http.StatusTooManyRequests, errorBody{Error: "rate limit exceeded", Code: "rate_limited"})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := s.deps.Store.Ping(ctx); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
