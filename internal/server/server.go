// Package server provides the exporter's HTTP surface: the /probe and
// /metrics scrape endpoints, health probes, and internal telemetry.
package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dmaes/prometheus-shelly-exporter/internal/config"
	"github.com/dmaes/prometheus-shelly-exporter/internal/health"
	"github.com/dmaes/prometheus-shelly-exporter/internal/metrics"
	"github.com/dmaes/prometheus-shelly-exporter/internal/security"
)

// deviceProber performs a single-device probe.
type deviceProber interface {
	Probe(ctx context.Context, target, username, password string) (*metrics.Collection, error)
}

// bulkCollector resolves the full /metrics device set.
type bulkCollector interface {
	Collect(ctx context.Context) (*metrics.Collection, error)
}

// snapshotSaver is the write side of the persisted probe store.
type snapshotSaver interface {
	Save(ctx context.Context, target string, snapshot *metrics.Collection) error
}

// Server holds the wired dependencies behind the HTTP handlers.
type Server struct {
	cfg        config.Config
	prober     deviceProber
	aggregator bulkCollector
	store      snapshotSaver
	health     *health.HealthChecker
}

// New wires a server over the given prober, aggregator and store.
func New(cfg config.Config, prober deviceProber, aggregator bulkCollector, store snapshotSaver, hc *health.HealthChecker) *Server {
	return &Server{
		cfg:        cfg,
		prober:     prober,
		aggregator: aggregator,
		store:      store,
		health:     hc,
	}
}

// Routes builds the exporter's router. Device expositions live on /probe
// and /metrics; the exporter's own telemetry is kept apart on /telemetry so
// it never mixes with device series.
func (s *Server) Routes() *mux.Router {
	r := mux.NewRouter()
	r.Use(security.SecurityHeadersMiddleware)

	// Only /probe is throttled: it lets a caller fan the exporter out
	// against arbitrary devices, while /metrics is bounded by the static
	// target list.
	probeHandler := http.Handler(http.HandlerFunc(s.ProbeHandler))
	if s.cfg.ProbeRateLimit > 0 {
		limiter := security.NewRateLimiter(s.cfg.ProbeRateLimit, s.cfg.ProbeRateBurst)
		probeHandler = security.RateLimitMiddleware(limiter)(probeHandler)
	}
	r.Handle("/probe", probeHandler).Methods(http.MethodGet)
	r.HandleFunc("/metrics", s.MetricsHandler).Methods(http.MethodGet)

	r.Handle("/telemetry", promhttp.Handler()).Methods(http.MethodGet)

	r.HandleFunc("/livez", s.LivenessHandler).Methods(http.MethodGet)
	r.HandleFunc("/readyz", s.ReadinessHandler).Methods(http.MethodGet)
	r.HandleFunc("/startupz", s.StartupHandler).Methods(http.MethodGet)
	r.HandleFunc("/healthz", s.DetailedHealthHandler).Methods(http.MethodGet)

	return r
}

// createHTTPServer creates a configured HTTP server with standard timeouts.
// Write timeout leaves headroom for a full static-target probe fan-out.
func createHTTPServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}

// Run serves until ctx is cancelled, then drains in-flight scrapes.
func (s *Server) Run(ctx context.Context) error {
	srv := createHTTPServer(s.cfg.ListenAddr(), s.Routes())

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server ready", "bind", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
