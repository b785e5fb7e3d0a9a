package observability

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PrometheusServer exposes metrics via HTTP while a supervised run is alive.
type PrometheusServer struct {
	registry *MetricsRegistry
	server   *http.Server
	logger   *Logger
	port     int
	path     string
	bind     string
}

// PrometheusConfig holds Prometheus server parameters
type PrometheusConfig struct {
	Port int
	Path string
	Bind string // Bind address (empty = all interfaces, "127.0.0.1" = localhost only)
}

// NewPrometheusServer creates a new Prometheus HTTP server
func NewPrometheusServer(cfg PrometheusConfig, registry *MetricsRegistry, logger *Logger) (*PrometheusServer, error) {
	if cfg.Port < 1 || cfg.Port > 65535 {
		return nil, fmt.Errorf("prometheus port must be between 1-65535")
	}
	if cfg.Path == "" {
		cfg.Path = "/metrics"
	}
	if cfg.Path[0] != '/' {
		cfg.Path = "/" + cfg.Path
	}
	if cfg.Bind != "" && cfg.Bind != "0.0.0.0" && cfg.Bind != "::" {
		if ip := net.ParseIP(cfg.Bind); ip == nil {
			return nil, fmt.Errorf("prometheus bind must be a valid IP address: %s", cfg.Bind)
		}
	}

	return &PrometheusServer{
		registry: registry,
		logger:   logger,
		port:     cfg.Port,
		path:     cfg.Path,
		bind:     cfg.Bind,
	}, nil
}

// Start serves metrics until the context is canceled, then shuts down.
func (s *PrometheusServer) Start(ctx context.Context) error {
	mux := http.NewServeMux()

	mux.Handle(s.path, promhttp.HandlerFor(
		s.registry.Registry,
		promhttp.HandlerOpts{
			EnableOpenMetrics: true,
		},
	))

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	addr := fmt.Sprintf("%s:%d", s.bind, s.port)
	s.server = &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("Metrics endpoint starting", map[string]interface{}{
		"addr": addr,
		"path": s.path,
	})

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("Metrics endpoint error", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}()

	<-ctx.Done()
	return s.Stop()
}

// Stop gracefully shuts down the HTTP server
func (s *PrometheusServer) Stop() error {
	if s.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("metrics endpoint shutdown error: %w", err)
	}

	s.logger.Info("Metrics endpoint stopped", nil)
	return nil
}

// URL returns the full URL for the metrics endpoint
func (s *PrometheusServer) URL() string {
	host := s.bind
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "localhost"
	}
	return fmt.Sprintf("http://%s:%d%s", host, s.port, s.path)
}
