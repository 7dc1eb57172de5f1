package httpapi

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/talkdub-lab/talkdub/internal/config"
	"github.com/talkdub-lab/talkdub/internal/delivery"
	"github.com/talkdub-lab/talkdub/internal/health"
	"github.com/talkdub-lab/talkdub/internal/job"
	"github.com/talkdub-lab/talkdub/internal/notify"
	"github.com/talkdub-lab/talkdub/internal/observe"
	"github.com/talkdub-lab/talkdub/internal/pin"
)

// Server holds the REST handlers and their dependencies.
type Server struct {
	store     *job.Store
	queue     *job.Queue
	pins      *pin.Store
	gate      *delivery.Gate
	notifier  notify.Notifier
	limiter   *IPLimiter
	limits    config.LimitsConfig
	publicURL string
	origins   []string
	metrics   *observe.Metrics
	logger    *slog.Logger

	now func() time.Time
}

// ServerConfig wires a Server's dependencies.
type ServerConfig struct {
	Store     *job.Store
	Queue     *job.Queue
	Pins      *pin.Store
	Gate      *delivery.Gate
	Notifier  notify.Notifier
	Limiter   *IPLimiter
	Limits    config.LimitsConfig
	PublicURL string

	// CORSOrigins lists allowed browser origins. Empty means allow all.
	CORSOrigins []string

	Metrics *observe.Metrics
	Logger  *slog.Logger
}

func NewServer(cfg ServerConfig) *Server {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = observe.DefaultMetrics()
	}
	if len(cfg.CORSOrigins) == 0 {
		cfg.CORSOrigins = []string{"*"}
	}
	return &Server{
		store:     cfg.Store,
		queue:     cfg.Queue,
		pins:      cfg.Pins,
		gate:      cfg.Gate,
		notifier:  cfg.Notifier,
		limiter:   cfg.Limiter,
		limits:    cfg.Limits,
		publicURL: strings.TrimRight(cfg.PublicURL, "/"),
		origins:   cfg.CORSOrigins,
		metrics:   cfg.Metrics,
		logger:    cfg.Logger,
		now:       time.Now,
	}
}

// Router builds the chi router with telemetry, CORS, health endpoints, and
// the versioned API routes.
func (s *Server) Router(checkers ...health.Checker) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(observe.Middleware(s.metrics))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-PIN"},
		MaxAge:         300,
	}))

	h := health.New(checkers...)
	r.Get("/healthz", h.Healthz)
	r.Get("/readyz", h.Readyz)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.With(s.limiter.Middleware("submit", s.limits.SubmissionsPerHour, time.Hour)).
			Post("/jobs", s.handleCreateJob)
		r.With(s.limiter.Middleware("status", s.limits.StatusPerMinute, time.Minute)).
			Get("/jobs/{jobID}/status", s.handleStatus)
		r.With(s.limiter.Middleware("download", s.limits.DownloadsPerMinute, time.Minute)).
			Get("/jobs/{jobID}/download", s.handleDownload)
	})

	return r
}
