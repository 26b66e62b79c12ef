package store

import (
	"bytes"
	"context"
	"encoding/gob"
	"fmt"
	"log/slog"
	"time"

	"github.com/dmaes/prometheus-shelly-exporter/internal/config"
	"github.com/dmaes/prometheus-shelly-exporter/internal/errors"
	"github.com/dmaes/prometheus-shelly-exporter/internal/metrics"
)

// Store is the persisted probe store. Save performs an unprotected
// read-modify-write over the whole document: concurrent saves can race and
// the later writer's document wins, which for this low-write-rate workload
// is an accepted limitation rather than something to lock around.
type Store struct {
	backend Backend
}

// New creates a store over the given backend.
func New(backend Backend) *Store {
	return &Store{backend: backend}
}

// NewFromConfig selects and builds the backend the configuration names.
func NewFromConfig(cfg config.Config) (*Store, error) {
	switch cfg.StoreBackend() {
	case "redis":
		backend, err := NewRedisBackend(cfg.RedisURL, cfg.MetricsFile)
		if err != nil {
			return nil, err
		}
		return New(backend), nil
	case "s3":
		backend, err := NewS3Backend(S3Options{
			URL:       cfg.S3URL,
			Bucket:    cfg.S3Bucket,
			Key:       cfg.MetricsFile,
			KeyID:     cfg.S3KeyID,
			SecretKey: cfg.S3SecretKey,
			Verify:    cfg.S3Verify,
		})
		if err != nil {
			return nil, err
		}
		return New(backend), nil
	default:
		return New(NewFileBackend(cfg.MetricsFile)), nil
	}
}

// Backend exposes the store's backing medium, e.g. for health checks.
func (s *Store) Backend() Backend {
	return s.backend
}

// Load reads the entire persisted document. A missing document counts as
// first use: an empty document is durably written before returning, so the
// backing resource exists afterwards. Concurrent initializers may both
// write the empty document; the race is benign because the payload is
// identical.
func (s *Store) Load(ctx context.Context) (map[string]*metrics.Collection, error) {
	start := time.Now()
	defer func() {
		metrics.StoreOperationDuration.WithLabelValues("load").Observe(time.Since(start).Seconds())
	}()

	data, err := s.backend.ReadBytes(ctx)
	if err == errors.ErrNotFound {
		empty := map[string]*metrics.Collection{}
		if err := s.write(ctx, empty); err != nil {
			metrics.StoreOperations.WithLabelValues("load", "error").Inc()
			return nil, err
		}
		slog.Info("initialized persisted metrics document", "backend", s.backend.Name())
		metrics.StoreOperations.WithLabelValues("load", "success").Inc()
		metrics.SavedSnapshots.Set(0)
		return empty, nil
	}
	if err != nil {
		metrics.StoreOperations.WithLabelValues("load", "error").Inc()
		return nil, errors.StoreError{Op: "load", Backend: s.backend.Name(), Underlying: err}
	}

	var snapshots map[string]*metrics.Collection
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&snapshots); err != nil {
		metrics.StoreOperations.WithLabelValues("load", "error").Inc()
		return nil, errors.StoreError{Op: "load", Backend: s.backend.Name(),
			Underlying: fmt.Errorf("decoding document: %w", err)}
	}

	metrics.StoreOperations.WithLabelValues("load", "success").Inc()
	metrics.SavedSnapshots.Set(float64(len(snapshots)))
	return snapshots, nil
}

// Save records snapshot as the latest state of target by rewriting the
// whole document.
func (s *Store) Save(ctx context.Context, target string, snapshot *metrics.Collection) error {
	start := time.Now()
	defer func() {
		metrics.StoreOperationDuration.WithLabelValues("save").Observe(time.Since(start).Seconds())
	}()

	snapshots, err := s.Load(ctx)
	if err != nil {
		metrics.StoreOperations.WithLabelValues("save", "error").Inc()
		return err
	}
	snapshots[target] = snapshot

	if err := s.write(ctx, snapshots); err != nil {
		metrics.StoreOperations.WithLabelValues("save", "error").Inc()
		return err
	}

	metrics.StoreOperations.WithLabelValues("save", "success").Inc()
	metrics.SavedSnapshots.Set(float64(len(snapshots)))
	slog.Debug("saved probe snapshot", "target", target, "snapshots", len(snapshots))
	return nil
}

func (s *Store) write(ctx context.Context, snapshots map[string]*metrics.Collection) error {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(snapshots); err != nil {
		return errors.StoreError{Op: "save", Backend: s.backend.Name(),
			Underlying: fmt.Errorf("encoding document: %w", err)}
	}
	if err := s.backend.WriteBytes(ctx, buf.Bytes()); err != nil {
		return errors.StoreError{Op: "save", Backend: s.backend.Name(), Underlying: err}
	}
	return nil
}
