package probe

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/dmaes/prometheus-shelly-exporter/internal/cache"
	"github.com/dmaes/prometheus-shelly-exporter/internal/config"
	exporterrors "github.com/dmaes/prometheus-shelly-exporter/internal/errors"
	"github.com/dmaes/prometheus-shelly-exporter/internal/metrics"
	"github.com/dmaes/prometheus-shelly-exporter/internal/shelly"
)

// Prober performs synchronous single-device probes: discover the device
// type, run the base extraction, then the type-specific profile.
type Prober struct {
	cfg   config.Config
	types *cache.TypeCache
}

// NewProber creates a prober using cfg's timeout and per-target overrides.
// The type cache may be nil to disable device-type caching.
func NewProber(cfg config.Config, types *cache.TypeCache) *Prober {
	return &Prober{cfg: cfg, types: types}
}

// Probe queries the device at target and returns its metric collection. The
// supplied credentials apply unless the per-target config overrides them.
// On any device failure the error is a ProbeError and no collection is
// returned.
func (p *Prober) Probe(ctx context.Context, target, username, password string) (*metrics.Collection, error) {
	start := time.Now()
	col, err := p.probe(ctx, target, username, password)
	metrics.ProbeDuration.WithLabelValues(target).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.ProbeErrors.WithLabelValues(target, errorType(err)).Inc()
		return nil, err
	}
	return col, nil
}

func (p *Prober) probe(ctx context.Context, target, username, password string) (*metrics.Collection, error) {
	timeout := p.cfg.Timeout
	extraLabels := map[string]string{}
	if override, ok := p.cfg.TargetCfg[target]; ok {
		if override.Username != "" {
			username = override.Username
		}
		if override.Password != "" {
			password = override.Password
		}
		if override.Timeout > 0 {
			timeout = time.Duration(override.Timeout) * time.Second
		}
		extraLabels = override.ExtraLabels
	}

	client := shelly.NewClient(target, shelly.Options{
		Username: username,
		Password: password,
		Timeout:  timeout,
	})

	if p.types != nil {
		if typ, ok := p.types.Get(target); ok {
			client.SetDeviceType(typ)
		}
	}

	deviceType, err := client.DeviceType(ctx)
	if err != nil {
		if p.types != nil {
			p.types.Invalidate(target)
		}
		return nil, err
	}
	if p.types != nil {
		p.types.Put(target, deviceType)
	}

	labels := make(map[string]string, len(extraLabels)+2)
	for k, v := range extraLabels {
		labels[k] = v
	}
	labels["name"] = target
	labels["type"] = deviceType

	col := metrics.NewCollection("shelly", labels)

	status, err := client.Get(ctx, "/status")
	if err != nil {
		return nil, err
	}
	if err := collectBase(status, col); err != nil {
		return nil, exporterrors.NewProbeError(target, "/status", err)
	}

	if err := profileFor(deviceType).collect(ctx, client, status, col); err != nil {
		if exporterrors.IsProbeError(err) {
			return nil, err
		}
		return nil, exporterrors.NewProbeError(target, "/status", err)
	}

	slog.Debug("probe complete", "target", target, "type", deviceType, "families", col.Len())
	return col, nil
}

// Down synthesizes the single-series collection reported for a static target
// that could not be probed.
func Down(target string) *metrics.Collection {
	col := metrics.NewCollection("shelly", map[string]string{"name": target})
	col.AddBool("down", true, nil, "Shelly can't be reached")
	return col
}

func errorType(err error) string {
	if errors.Is(err, exporterrors.ErrMissingField) {
		return "malformed_response"
	}
	return "unreachable"
}
