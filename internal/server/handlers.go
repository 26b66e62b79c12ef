package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/dmaes/prometheus-shelly-exporter/internal/errors"
	"github.com/dmaes/prometheus-shelly-exporter/internal/health"
	"github.com/dmaes/prometheus-shelly-exporter/internal/metrics"
	"github.com/dmaes/prometheus-shelly-exporter/internal/types"
)

// ProbeHandler serves /probe: a synchronous scrape of the single device
// named by the target parameter. Optional username and password parameters
// override the globally configured credentials; save=true additionally
// persists the result so /metrics keeps exposing it.
func (s *Server) ProbeHandler(w http.ResponseWriter, r *http.Request) {
	target := r.URL.Query().Get("target")
	if target == "" {
		metrics.RequestsRejected.WithLabelValues("missing_target").Inc()
		http.Error(w, errors.ErrMissingTarget.Error(), http.StatusBadRequest)
		return
	}
	if err := types.ValidateTarget(target); err != nil {
		metrics.RequestsRejected.WithLabelValues("invalid_target").Inc()
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	username := s.cfg.Username
	if v := r.URL.Query().Get("username"); v != "" {
		username = v
	}
	password := s.cfg.Password
	if v := r.URL.Query().Get("password"); v != "" {
		password = v
	}

	col, err := s.prober.Probe(r.Context(), target, username, password)
	if err != nil {
		slog.Warn("probe failed", "target", target, "error", err)
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if r.URL.Query().Get("save") == "true" {
		col.AddCounter("probetime", float64(time.Now().Unix()), nil,
			"Unixtime this target was probed and saved.")
		if err := s.store.Save(r.Context(), target, col); err != nil {
			slog.Error("saving probe snapshot failed", "target", target, "error", err)
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
	}

	writeCollection(w, col)
}

// MetricsHandler serves /metrics: live probes of all static targets merged
// with the persisted snapshots of push-style devices.
func (s *Server) MetricsHandler(w http.ResponseWriter, r *http.Request) {
	col, err := s.aggregator.Collect(r.Context())
	if err != nil {
		slog.Error("collecting device metrics failed", "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	writeCollection(w, col)
}

func writeCollection(w http.ResponseWriter, col *metrics.Collection) {
	w.Header().Set("Content-Type", metrics.ContentType)
	if err := col.WriteText(w); err != nil {
		slog.Error("encoding exposition failed", "error", err)
	}
}

// LivenessHandler answers Kubernetes liveness probes.
func (s *Server) LivenessHandler(w http.ResponseWriter, r *http.Request) {
	s.simpleHealthResponse(w, r, s.health.LivenessCheck)
}

// ReadinessHandler answers Kubernetes readiness probes; it fails when the
// store backend or another registered component is unreachable.
func (s *Server) ReadinessHandler(w http.ResponseWriter, r *http.Request) {
	s.simpleHealthResponse(w, r, s.health.ReadinessCheck)
}

// StartupHandler answers Kubernetes startup probes.
func (s *Server) StartupHandler(w http.ResponseWriter, r *http.Request) {
	s.simpleHealthResponse(w, r, s.health.StartupCheck)
}

func (s *Server) simpleHealthResponse(w http.ResponseWriter, r *http.Request, check func(context.Context) error) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	w.Header().Set("Content-Type", "application/json")
	if err := check(ctx); err != nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		if _, writeErr := w.Write([]byte(`{"status":"unhealthy"}`)); writeErr != nil {
			slog.Error("failed to write health response", "error", writeErr)
		}
		return
	}

	if _, err := w.Write([]byte(`{"status":"ok"}`)); err != nil {
		slog.Error("failed to write health response", "error", err)
	}
}

// DetailedHealthHandler reports the per-component health results.
func (s *Server) DetailedHealthHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	status := s.health.GetHealthStatus(ctx)
	health.WriteHealthResponse(w, status, health.DetermineHTTPStatus(status.Overall))
}
