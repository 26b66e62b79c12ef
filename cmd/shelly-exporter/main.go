// Package main provides the Shelly exporter entry point. The exporter
// probes Shelly IoT devices over their local HTTP API and exposes the
// results as Prometheus metrics.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/dmaes/prometheus-shelly-exporter/internal/cache"
	"github.com/dmaes/prometheus-shelly-exporter/internal/config"
	"github.com/dmaes/prometheus-shelly-exporter/internal/health"
	"github.com/dmaes/prometheus-shelly-exporter/internal/probe"
	"github.com/dmaes/prometheus-shelly-exporter/internal/server"
	"github.com/dmaes/prometheus-shelly-exporter/internal/store"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

func setupLogger(cfg config.Config) {
	var handler slog.Handler
	level := slog.LevelInfo

	switch cfg.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}

	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	slog.SetDefault(slog.New(handler))
}

// performHealthCheck probes the running exporter's liveness endpoint; used
// as a container HEALTHCHECK command.
func performHealthCheck() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	client := &http.Client{Timeout: 5 * time.Second}

	host := os.Getenv("HEALTH_CHECK_HOST")
	if host == "" {
		host = "127.0.0.1"
	}
	url := fmt.Sprintf("http://%s:%s/livez", host, cfg.ListenPort)
	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check failed: status %d", resp.StatusCode)
	}

	return nil
}

func printHelp() {
	fmt.Printf("shelly-exporter - Prometheus exporter for Shelly IoT devices\n\n")
	fmt.Printf("Usage: shelly-exporter [options]\n\n")
	fmt.Printf("Options:\n")
	flag.PrintDefaults()
	fmt.Printf("\nEnvironment variables:\n")
	fmt.Printf("  SHELLY_LISTEN_IP        Address to bind to (default: 0.0.0.0)\n")
	fmt.Printf("  SHELLY_LISTEN_PORT      Port to listen on (default: 9686)\n")
	fmt.Printf("  SHELLY_TIMEOUT          Per-device request timeout in seconds (default: 5)\n")
	fmt.Printf("  SHELLY_STATIC_TARGETS   Comma-separated targets probed on every /metrics scrape\n")
	fmt.Printf("  SHELLY_USERNAME         Username for all static targets\n")
	fmt.Printf("  SHELLY_PASSWORD         Password for all static targets\n")
	fmt.Printf("  SHELLY_TARGETCFG        YAML/JSON map of per-target overrides\n")
	fmt.Printf("  SHELLY_METRICS_FILE     File or object key for saved metrics (default: metrics.gob)\n")
	fmt.Printf("  SHELLY_S3_BUCKET        S3 bucket to keep the metrics file in\n")
	fmt.Printf("  SHELLY_S3_URL           S3 endpoint URL\n")
	fmt.Printf("  SHELLY_S3_KEY_ID        S3 access key ID\n")
	fmt.Printf("  SHELLY_S3_SECRET_KEY    S3 secret access key\n")
	fmt.Printf("  SHELLY_S3_VERIFY        Empty, \"false\", or a CA bundle path\n")
	fmt.Printf("  SHELLY_REDIS_URL        Redis URL to keep the metrics document in\n")
	fmt.Printf("  SHELLY_MAX_CONCURRENT_PROBES  Concurrent static-target probes (default: 4)\n")
	fmt.Printf("  SHELLY_TYPE_CACHE_TTL   Device-type cache TTL (default: 5m)\n")
	fmt.Printf("  SHELLY_PROBE_RATE_LIMIT Per-client /probe rate limit in req/s (default: off)\n")
	fmt.Printf("  SHELLY_PROBE_RATE_BURST Per-client /probe burst (default: 5)\n")
	fmt.Printf("  SHELLY_LOG_LEVEL        Log level: debug, info, warn, error (default: info)\n")
	fmt.Printf("  SHELLY_LOG_FORMAT       Log format: text, json (default: text)\n")
	fmt.Printf("  SHELLY_CONFIG_FILE      YAML config file, wins over environment variables\n")
}

func main() {
	var showVersion bool
	var showHelp bool
	var healthCheck bool

	flag.BoolVar(&showVersion, "version", false, "show version information")
	flag.BoolVar(&showHelp, "help", false, "show help information")
	flag.BoolVar(&healthCheck, "health-check", false, "perform health check and exit")
	flag.Parse()

	if healthCheck {
		if err := performHealthCheck(); err != nil {
			slog.Error("Health check failed", "error", err)
			os.Exit(1)
		}
		slog.Info("Health check passed")
		os.Exit(0)
	}

	if showVersion {
		fmt.Printf("shelly-exporter %s (built: %s)\n", version, buildTime)
		if info, ok := debug.ReadBuildInfo(); ok {
			fmt.Printf("go version: %s\n", info.GoVersion)
		}
		os.Exit(0)
	}

	if showHelp {
		printHelp()
		os.Exit(0)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "loading configuration: %v\n", err)
		os.Exit(1)
	}

	setupLogger(cfg)

	if err := cfg.Validate(); err != nil {
		slog.Error("Configuration validation failed", "error", err)
		os.Exit(1)
	}

	slog.Info("Starting shelly-exporter",
		"version", version,
		"build_time", buildTime,
		"bind", cfg.ListenAddr(),
		"store", cfg.StoreBackend(),
		"static_targets", len(cfg.StaticTargets))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := store.NewFromConfig(cfg)
	if err != nil {
		slog.Error("Store initialization failed", "error", err)
		os.Exit(1)
	}

	typeCache := cache.NewTypeCache(cfg.TypeCacheTTL)
	go func() {
		ticker := time.NewTicker(cfg.TypeCacheTTL)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := typeCache.CleanupStaleEntries(); n > 0 {
					slog.Debug("evicted stale type cache entries", "count", n)
				}
			}
		}
	}()

	prober := probe.NewProber(cfg, typeCache)
	aggregator := probe.NewAggregator(cfg, prober, st)

	hc := health.NewHealthChecker()
	hc.RegisterComponent(health.NewStoreHealthChecker(st.Backend()))
	hc.RegisterComponent(health.NewCacheHealthChecker(typeCache))

	srv := server.New(cfg, prober, aggregator, st, hc)

	if err := srv.Run(ctx); err != nil {
		slog.Error("Shutdown with error", "error", err)
		os.Exit(1)
	}
	slog.Info("Shutdown complete")
}
