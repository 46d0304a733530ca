// Package server provides the HTTP surface: the management API, the
// navigation endpoint, health checks and metrics.
package server

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/hfi/gotab/internal/manager"
	"github.com/hfi/gotab/internal/resolver"
)

// Report is the body of the health endpoint
type Report struct {
	Status    string            `json:"status"`
	Version   string            `json:"version,omitempty"`
	StartedAt time.Time         `json:"started_at"`
	Uptime    string            `json:"uptime"`
	Probes    map[string]string `json:"probes,omitempty"`
}

// Probe checks one dependency; a nil error means healthy
type Probe func(ctx context.Context) error

// probeTimeout bounds each probe run by a health or readiness request
const probeTimeout = 2 * time.Second

// Deps are the services the API routes call. With a nil Manager only the
// health and metrics routes are served.
type Deps struct {
	Manager  *manager.Manager
	Resolver *resolver.Resolver
	Logger   zerolog.Logger
}

// Server serves the HTTP endpoints
type Server struct {
	mu        sync.RWMutex
	server    *http.Server
	mux       *http.ServeMux
	probes    map[string]Probe
	startTime time.Time
	version   string
	deps      Deps
	logger    zerolog.Logger
}

// Config holds server configuration
type Config struct {
	// Addr is the address to listen on (e.g., "127.0.0.1:8787")
	Addr string `yaml:"addr"`

	// MetricsPath is the path for Prometheus metrics; empty disables it
	MetricsPath string `yaml:"metrics_path"`

	// HealthPath is the path for health checks
	HealthPath string `yaml:"health_path"`

	// ReadyPath is the path for readiness checks
	ReadyPath string `yaml:"ready_path"`

	// LivePath is the path for liveness checks
	LivePath string `yaml:"live_path"`

	// Version is the application version
	Version string `yaml:"-"`
}

// DefaultConfig returns the default server configuration
func DefaultConfig() *Config {
	return &Config{
		Addr:        "127.0.0.1:8787",
		MetricsPath: "/metrics",
		HealthPath:  "/health",
		ReadyPath:   "/ready",
		LivePath:    "/live",
		Version:     "dev",
	}
}

// New creates a new server
func New(cfg *Config, deps Deps) *Server {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	s := &Server{
		mux:       http.NewServeMux(),
		probes:    make(map[string]Probe),
		startTime: time.Now(),
		version:   cfg.Version,
		deps:      deps,
		logger:    deps.Logger.With().Str("component", "server").Logger(),
	}

	// Register routes
	if cfg.MetricsPath != "" {
		s.mux.Handle(cfg.MetricsPath, promhttp.Handler())
	}
	s.mux.HandleFunc(cfg.HealthPath, s.healthHandler)
	s.mux.HandleFunc(cfg.ReadyPath, s.readyHandler)
	s.mux.HandleFunc(cfg.LivePath, s.liveHandler)

	if deps.Manager != nil {
		s.registerAPI()
		s.AddProbe("storage", deps.Manager.Store().Ping)
	}

	s.server = &http.Server{
		Addr:              cfg.Addr,
		Handler:           s.accessLog(s.mux),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
	}

	return s
}

// AddProbe registers a dependency probe under name, replacing any
// probe of the same name
func (s *Server) AddProbe(name string, p Probe) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.probes[name] = p
}

// runProbes runs every probe in name order and returns the failures
func (s *Server) runProbes(ctx context.Context) (names []string, failed map[string]error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names = make([]string, 0, len(s.probes))
	for name := range s.probes {
		names = append(names, name)
	}
	sort.Strings(names)

	failed = make(map[string]error)
	for _, name := range names {
		pctx, cancel := context.WithTimeout(ctx, probeTimeout)
		if err := s.probes[name](pctx); err != nil {
			failed[name] = err
		}
		cancel()
	}
	return names, failed
}

// Serve serves on an existing listener
func (s *Server) Serve(l net.Listener) error {
	return s.server.Serve(l)
}

// Stop gracefully shuts down the server
func (s *Server) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// probeFailed is reported for a failing probe; the error itself is only logged
const probeFailed = "failed"

// healthHandler reports every probe with uptime and version
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	names, failed := s.runProbes(r.Context())

	report := Report{
		Status:    "healthy",
		Version:   s.version,
		StartedAt: s.startTime.UTC(),
		Uptime:    time.Since(s.startTime).Round(time.Second).String(),
		Probes:    make(map[string]string, len(names)),
	}
	for _, name := range names {
		report.Probes[name] = "ok"
		if err, bad := failed[name]; bad {
			report.Probes[name] = probeFailed
			report.Status = "unhealthy"
			s.logger.Warn().Err(err).Str("probe", name).Msg("health probe failed")
		}
	}

	code := http.StatusOK
	if len(failed) > 0 {
		code = http.StatusServiceUnavailable
	}
	s.writeJSON(w, code, report)
}

// readyHandler answers 200 once every probe passes. Probe errors are not
// echoed, only the name of the first failing probe.
func (s *Server) readyHandler(w http.ResponseWriter, r *http.Request) {
	names, failed := s.runProbes(r.Context())
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	for _, name := range names {
		if _, bad := failed[name]; bad {
			w.WriteHeader(http.StatusServiceUnavailable)
			fmt.Fprintf(w, "not ready: %s\n", name)
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	fmt.Fprintln(w, "ready")
}

// liveHandler answers as long as the process serves requests
func (s *Server) liveHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintln(w, "alive")
}

// statusRecorder captures the response status for the access log
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// RequestIDHeader carries the request ID in both directions
const RequestIDHeader = "X-Request-Id"

// accessLog tags each request with an ID and logs one debug line for it
func (s *Server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		id := r.Header.Get(RequestIDHeader)
		if id == "" {
			id = uuid.New().String()
		}
		w.Header().Set(RequestIDHeader, id)

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.Debug().
			Str("request_id", id).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rec.status).
			Dur("duration", time.Since(start)).
			Msg("request")
	})
}

// Handler returns the HTTP handler for testing
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Addr returns the server address
func (s *Server) Addr() string {
	return s.server.Addr
}
