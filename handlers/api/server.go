package api

import (
	"context"
	"net/http"
	"runtime"
	"strings"
	"time"

	"github.com/nijaru/autoclip/config"
	"github.com/nijaru/autoclip/middleware"
	"github.com/nijaru/autoclip/services/clips"
	"github.com/nijaru/autoclip/storage"
	"github.com/nijaru/autoclip/validation"
	"github.com/sirupsen/logrus"
)

const uploadRoute = "/upload"

// HealthCheck reports whether a dependency is usable.
type HealthCheck func(ctx context.Context) error

type Server struct {
	jobs      *JobHandler
	clips     *ClipHandler
	events    *EventHandler
	checks    map[string]HealthCheck
	config    *config.Config
	logger    *logrus.Logger
	server    *http.Server
	startTime time.Time
}

type ServerOption func(*Server)

// NewServer creates a new API server with the provided services and options
func NewServer(cfg *config.Config, opts ...ServerOption) *Server {
	s := &Server{
		config:    cfg,
		logger:    logrus.StandardLogger(),
		checks:    make(map[string]HealthCheck),
		startTime: time.Now(),
	}

	for _, opt := range opts {
		opt(s)
	}

	s.server = &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      s.routes(),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	return s
}

// WithServices sets up the handlers with the provided services. Apply
// WithLogger first so the handlers share it.
func WithServices(svc clips.Service, files ClipResolver, events EventSource) ServerOption {
	return func(s *Server) {
		validator := validation.NewValidator(s.config)
		s.jobs = NewJobHandler(svc, validator, s.config.Media.MaxUploadSize, s.config.WriteTimeout, s.logger)
		s.clips = NewClipHandler(files, validator)
		s.events = NewEventHandler(svc, events, s.config.CORS.AllowedOrigins, s.logger)
	}
}

// WithLogger sets a custom logger for the server
func WithLogger(logger *logrus.Logger) ServerOption {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithHealthCheck adds a named dependency check to /health.
func WithHealthCheck(name string, check HealthCheck) ServerOption {
	return func(s *Server) {
		s.checks[name] = check
	}
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.logger.WithField("port", s.config.ServerPort).Info("Starting server")
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down server...")
	return s.server.Shutdown(ctx)
}

func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST "+uploadRoute, s.jobs.HandleUpload)
	s.addV1Routes(mux)
	mux.HandleFunc("GET /health", s.handleHealth)

	root := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, storage.ClipRoute) {
			s.clips.ServeHTTP(w, r)
			return
		}
		mux.ServeHTTP(w, r)
	})

	return s.middleware(root)
}

func (s *Server) addV1Routes(mux *http.ServeMux) {
	const v1Prefix = "/api/v1"

	mux.HandleFunc("GET "+v1Prefix+"/jobs/{id}", s.jobs.HandleGetJob)
	mux.HandleFunc("POST "+v1Prefix+"/jobs/{id}/cancel", s.jobs.HandleCancelJob)
	mux.HandleFunc("GET "+v1Prefix+"/jobs/{id}/events", s.events.HandleEvents)
}

func (s *Server) middleware(handler http.Handler) http.Handler {
	mw := s.config.Middleware
	var middlewares []func(http.Handler) http.Handler

	if mw.EnableRecover {
		middlewares = append(middlewares, middleware.Recovery(s.logger))
	}
	if mw.EnableRequestID {
		middlewares = append(middlewares, middleware.RequestID())
	}
	if mw.EnableLogger {
		middlewares = append(middlewares, middleware.Logging(s.logger))
	}
	if mw.EnableCORS {
		middlewares = append(middlewares, middleware.CORS(s.config.CORS))
	}
	if mw.EnableTimeout {
		// Uploads and clip downloads stream large bodies and are bounded by
		// the server read and write timeouts instead.
		skip := func(r *http.Request) bool {
			return r.URL.Path == uploadRoute || strings.HasPrefix(r.URL.Path, storage.ClipRoute)
		}
		middlewares = append(middlewares, middleware.Timeout(s.config.RequestTimeout, skip))
	}
	if mw.EnableRateLimit && s.config.RateLimit.Enabled {
		rateLimiter := middleware.NewRateLimiter(
			s.config.RateLimit.RequestsPerMinute,
			s.config.RateLimit.BurstSize,
		)
		middlewares = append(middlewares, rateLimiter.Middleware)
	}

	return middleware.Chain(handler, middlewares...)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := map[string]interface{}{
		"status":    "ok",
		"timestamp": time.Now().UTC(),
		"version":   s.config.Version,
		"uptime":    time.Since(s.startTime).String(),
	}

	code := http.StatusOK
	if len(s.checks) > 0 {
		results := make(map[string]string, len(s.checks))
		for name, check := range s.checks {
			if err := check(r.Context()); err != nil {
				results[name] = err.Error()
				status["status"] = "degraded"
				code = http.StatusServiceUnavailable
				continue
			}
			results[name] = "ok"
		}
		status["checks"] = results
	}

	if s.config.Debug {
		status["debug"] = true
		status["goroutines"] = runtime.NumGoroutine()
		var m runtime.MemStats
		runtime.ReadMemStats(&m)
		status["memory"] = map[string]interface{}{
			"allocated": m.Alloc,
			"total":     m.TotalAlloc,
			"system":    m.Sys,
			"gc_cycles": m.NumGC,
		}
	}

	respondJSON(w, r, code, status)
}
