// Package server exposes an Explorer over a read-only HTTP API.
package server

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	pak "github.com/meigma/pak"
	"github.com/meigma/pak/metrics"
)

// Default scan limits: scans read every model or map of the mounted
// archives, so they are rate limited across all clients.
const (
	DefaultScanRate  rate.Limit = 2
	DefaultScanBurst            = 4
)

// Config contains the dependencies of the router.
type Config struct {
	// Explorer serves the content (required).
	Explorer *pak.Explorer

	// Logger logs requests. Nil disables request logging.
	Logger *slog.Logger

	// Metrics records request and WebSocket metrics. May be nil.
	Metrics *metrics.Metrics

	// Gatherer backs GET /metrics. Nil leaves the route out.
	Gatherer prometheus.Gatherer

	// CORSOrigins lists allowed cross-origin callers. Nil allows none.
	CORSOrigins []string

	// ScanRate and ScanBurst limit xref and entity scans. Zero values use
	// DefaultScanRate and DefaultScanBurst.
	ScanRate  rate.Limit
	ScanBurst int
}

type handlers struct {
	explorer *pak.Explorer
	logger   *slog.Logger
	metrics  *metrics.Metrics
	scans    *rate.Limiter
	upgrader *websocketUpgrader
}

// NewRouter constructs the HTTP router. It starts no goroutines and opens
// no listeners, so it can be served with httptest.NewServer.
func NewRouter(cfg Config) *chi.Mux {
	scanRate, scanBurst := cfg.ScanRate, cfg.ScanBurst
	if scanRate == 0 {
		scanRate = DefaultScanRate
	}
	if scanBurst == 0 {
		scanBurst = DefaultScanBurst
	}
	h := &handlers{
		explorer: cfg.Explorer,
		logger:   cfg.Logger,
		metrics:  cfg.Metrics,
		scans:    rate.NewLimiter(scanRate, scanBurst),
		upgrader: newWebsocketUpgrader(cfg.CORSOrigins),
	}

	r := chi.NewRouter()

	// Middleware - order matters.
	r.Use(middleware.Recoverer)
	r.Use(observe(cfg.Logger, cfg.Metrics))
	if len(cfg.CORSOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: cfg.CORSOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodOptions},
			AllowedHeaders: []string{"*"},
		}))
	}

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, map[string]string{"status": "ok"})
	})
	if cfg.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api", func(r chi.Router) {
		r.Get("/mounts", h.handleMounts)
		r.Get("/mounts/{id}/overridden", h.handleOverridden)
		r.Get("/mods", h.handleMods)

		r.Get("/list", h.handleList)
		r.Get("/tree", h.handleTree)
		r.Get("/search", h.handleSearch)
		r.Get("/stat/*", h.handleStat)
		r.Get("/file/*", h.handleFile)
		r.Get("/palette", h.handlePalette)

		r.Group(func(r chi.Router) {
			r.Use(h.limitScans)
			r.Get("/xref/texture", h.handleTextureUsage)
			r.Get("/xref/sound", h.handleSoundUsage)
			r.Get("/entities", h.handleEntities)
			r.Get("/entities.ent", h.handleEntFile)
		})
	})

	r.With(h.limitScans).Get("/ws/entities", h.handleEntityScanWS)

	return r
}
