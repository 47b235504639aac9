// Package server exposes the store over HTTP: the SPARQL 1.1 Protocol
// on /sparql and /update, the Graph Store HTTP Protocol on /store, and
// Prometheus metrics on /metrics.
package server

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gopkg.in/yaml.v3"

	"github.com/aleksaelezovic/tetrago/pkg/sparql"
	"github.com/aleksaelezovic/tetrago/pkg/store"
)

// Config configures the HTTP endpoint.
type Config struct {
	// Addr is the listen address (default: localhost:7878)
	Addr string `yaml:"addr"`
	// ReadTimeout bounds request reading
	ReadTimeout time.Duration `yaml:"read_timeout"`
	// WriteTimeout bounds response writing
	WriteTimeout time.Duration `yaml:"write_timeout"`
	// ReadOnly disables the update and graph store write endpoints
	ReadOnly bool `yaml:"read_only"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Addr:         "localhost:7878",
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 5 * time.Minute,
	}
}

// LoadConfig overlays a YAML file over the defaults. A missing file
// yields the defaults.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return cfg, nil
}

// Server serves the SPARQL protocol over one store.
type Server struct {
	config   *Config
	store    *store.Store
	engine   *sparql.Engine
	logger   *slog.Logger
	registry *prometheus.Registry

	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// New creates a Server around a store. Metrics live in a per-server
// registry so multiple servers can coexist in one process.
func New(cfg *Config, st *store.Store, logger *slog.Logger) *Server {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)
	return &Server{
		config:   cfg,
		store:    st,
		engine:   sparql.NewEngine(st, nil, logger),
		logger:   logger,
		registry: registry,
		requests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "tetrago_http_requests_total",
			Help: "HTTP requests by handler and status code.",
		}, []string{"handler", "code"}),
		duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "tetrago_http_request_duration_seconds",
			Help:    "HTTP request latency by handler.",
			Buckets: prometheus.DefBuckets,
		}, []string{"handler"}),
	}
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/sparql", s.instrument("query", s.handleQuery))
	mux.HandleFunc("/query", s.instrument("query", s.handleQuery))
	mux.HandleFunc("/update", s.instrument("update", s.handleUpdate))
	mux.HandleFunc("/store", s.instrument("graphstore", s.handleGraphStore))
	mux.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	return mux
}

// ListenAndServe runs the endpoint until the listener fails.
func (s *Server) ListenAndServe() error {
	srv := &http.Server{
		Addr:         s.config.Addr,
		Handler:      s.Handler(),
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}
	s.logger.Info("SPARQL endpoint listening", slog.String("addr", s.config.Addr))
	return srv.ListenAndServe()
}

// instrument wraps a handler with request metrics.
func (s *Server) instrument(name string, h func(http.ResponseWriter, *http.Request) int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		code := h(w, r)
		s.requests.WithLabelValues(name, fmt.Sprintf("%d", code)).Inc()
		s.duration.WithLabelValues(name).Observe(time.Since(start).Seconds())
	}
}

// writeError sends a plain text error and returns the status code for
// the metrics wrapper.
func (s *Server) writeError(w http.ResponseWriter, status int, message string) int {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_, _ = fmt.Fprintln(w, message)
	return status
}
