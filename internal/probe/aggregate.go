package probe

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	"github.com/dmaes/prometheus-shelly-exporter/internal/config"
	"github.com/dmaes/prometheus-shelly-exporter/internal/metrics"
)

// SnapshotLoader is the read side of the persisted probe store.
type SnapshotLoader interface {
	Load(ctx context.Context) (map[string]*metrics.Collection, error)
}

// Aggregator resolves the bulk /metrics device set: every static target is
// probed live (failures degrade to a down indicator), then persisted
// snapshots fill in the devices not covered statically.
type Aggregator struct {
	cfg    config.Config
	prober *Prober
	store  SnapshotLoader
}

// NewAggregator wires a bulk aggregator over the given prober and store.
func NewAggregator(cfg config.Config, prober *Prober, store SnapshotLoader) *Aggregator {
	return &Aggregator{cfg: cfg, prober: prober, store: store}
}

// Collect probes all static targets concurrently, overlays the persisted
// snapshots of non-static devices, and merges everything into one
// collection. Device failures never fail the call; a store failure does.
func (a *Aggregator) Collect(ctx context.Context) (*metrics.Collection, error) {
	results := make([]*metrics.Collection, len(a.cfg.StaticTargets))

	maxConcurrent := a.cfg.MaxConcurrentProbes
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	sem := make(chan struct{}, maxConcurrent)
	var wg sync.WaitGroup

	for i, target := range a.cfg.StaticTargets {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, target string) {
			defer wg.Done()
			defer func() { <-sem }()

			col, err := a.prober.Probe(ctx, target, a.cfg.Username, a.cfg.Password)
			if err != nil {
				slog.Warn("static target unreachable", "target", target, "error", err)
				col = Down(target)
			}
			results[i] = col
		}(i, target)
	}
	wg.Wait()

	static := make(map[string]struct{}, len(a.cfg.StaticTargets))
	for _, target := range a.cfg.StaticTargets {
		static[target] = struct{}{}
	}

	saved, err := a.store.Load(ctx)
	if err != nil {
		return nil, err
	}

	// Static targets shadow a same-named persisted entry, so promoting a
	// push-only device to actively polled needs no store cleanup. Saved
	// snapshots are appended in sorted order to keep output deterministic.
	savedTargets := make([]string, 0, len(saved))
	for target := range saved {
		if _, ok := static[target]; !ok {
			savedTargets = append(savedTargets, target)
		}
	}
	sort.Strings(savedTargets)
	for _, target := range savedTargets {
		results = append(results, saved[target])
	}

	return metrics.Merge(results...), nil
}
