// Package config provides configuration management for the Shelly exporter.
// Every setting is an environment variable in SHELLY_* form; an optional
// YAML config file replaces the individual settings when given.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/dmaes/prometheus-shelly-exporter/internal/types"
)

// TargetConfig carries per-target overrides applied to both /probe and
// /metrics scrapes of that target.
type TargetConfig struct {
	Username    string            `yaml:"username" json:"username"`
	Password    string            `yaml:"password" json:"password"`
	Timeout     int               `yaml:"timeout" json:"timeout"`
	ExtraLabels map[string]string `yaml:"extra_labels" json:"extra_labels"`
}

// Config holds all settings for the Shelly exporter.
type Config struct {
	ListenIP   string
	ListenPort string

	// Timeout bounds every request against a device, unless overridden
	// per target.
	Timeout time.Duration

	// StaticTargets are probed on every /metrics scrape.
	StaticTargets []string
	// Username and Password authenticate against all static targets.
	Username string
	Password string

	// TargetCfg maps a target identity to its overrides.
	TargetCfg map[string]TargetConfig

	// MetricsFile is the persisted store path: a local file, or the object
	// key when an S3 bucket is configured.
	MetricsFile string

	S3Bucket    string
	S3URL       string
	S3KeyID     string
	S3SecretKey string
	// S3Verify is empty for default TLS verification, "false" to disable
	// it, or a path to a custom CA bundle.
	S3Verify string

	// RedisURL selects the Redis store backend when set.
	RedisURL string

	MaxConcurrentProbes int
	TypeCacheTTL        time.Duration
	// ProbeRateLimit throttles /probe per client IP (requests per second);
	// zero disables throttling.
	ProbeRateLimit float64
	ProbeRateBurst int

	LogLevel  string
	LogFormat string
}

// Load reads configuration from environment variables. When
// SHELLY_CONFIG_FILE points at a YAML file, its values replace the
// individual settings.
func Load() (Config, error) {
	cfg := defaults()

	cfg.loadNetworkSettings()
	cfg.loadTargetSettings()
	cfg.loadStoreSettings()
	cfg.loadLoggingSettings()

	if err := cfg.loadTargetCfg(os.Getenv("SHELLY_TARGETCFG")); err != nil {
		return cfg, err
	}

	if path := os.Getenv("SHELLY_CONFIG_FILE"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return cfg, err
		}
	}

	return cfg, nil
}

func defaults() Config {
	return Config{
		ListenIP:            "0.0.0.0",
		ListenPort:          "9686",
		Timeout:             5 * time.Second,
		MetricsFile:         "metrics.gob",
		TargetCfg:           map[string]TargetConfig{},
		MaxConcurrentProbes: 4,
		TypeCacheTTL:        5 * time.Minute,
		ProbeRateBurst:      5,
		LogLevel:            "info",
		LogFormat:           "text",
	}
}

func (cfg *Config) loadNetworkSettings() {
	if v := os.Getenv("SHELLY_LISTEN_IP"); v != "" {
		cfg.ListenIP = v
	}
	if v := os.Getenv("SHELLY_LISTEN_PORT"); v != "" {
		cfg.ListenPort = v
	}
	if v := os.Getenv("SHELLY_MAX_CONCURRENT_PROBES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.MaxConcurrentProbes = n
		}
	}
	if v := os.Getenv("SHELLY_PROBE_RATE_LIMIT"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f >= 0 {
			cfg.ProbeRateLimit = f
		}
	}
	if v := os.Getenv("SHELLY_PROBE_RATE_BURST"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.ProbeRateBurst = n
		}
	}
}

func (cfg *Config) loadTargetSettings() {
	if v := os.Getenv("SHELLY_STATIC_TARGETS"); v != "" {
		cfg.StaticTargets = splitList(v)
	}
	cfg.Username = os.Getenv("SHELLY_USERNAME")
	cfg.Password = os.Getenv("SHELLY_PASSWORD")

	if v := os.Getenv("SHELLY_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Timeout = d
		} else if sec, err := strconv.Atoi(v); err == nil {
			cfg.Timeout = time.Duration(sec) * time.Second
		}
	}
	if v := os.Getenv("SHELLY_TYPE_CACHE_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.TypeCacheTTL = d
		}
	}
}

func (cfg *Config) loadStoreSettings() {
	if v := os.Getenv("SHELLY_METRICS_FILE"); v != "" {
		cfg.MetricsFile = v
	}
	cfg.S3Bucket = os.Getenv("SHELLY_S3_BUCKET")
	cfg.S3URL = os.Getenv("SHELLY_S3_URL")
	cfg.S3KeyID = os.Getenv("SHELLY_S3_KEY_ID")
	cfg.S3SecretKey = os.Getenv("SHELLY_S3_SECRET_KEY")
	cfg.S3Verify = os.Getenv("SHELLY_S3_VERIFY")
	cfg.RedisURL = os.Getenv("SHELLY_REDIS_URL")
}

func (cfg *Config) loadLoggingSettings() {
	if v := os.Getenv("SHELLY_LOG_LEVEL"); v != "" {
		cfg.LogLevel = strings.ToLower(v)
	}
	if v := os.Getenv("SHELLY_LOG_FORMAT"); v != "" {
		cfg.LogFormat = strings.ToLower(v)
	}
}

// loadTargetCfg parses the SHELLY_TARGETCFG value, a YAML (or JSON, which is
// a YAML subset) mapping from target identity to its overrides.
func (cfg *Config) loadTargetCfg(raw string) error {
	if raw == "" {
		return nil
	}
	parsed := map[string]TargetConfig{}
	if err := yaml.Unmarshal([]byte(raw), &parsed); err != nil {
		return fmt.Errorf("parsing SHELLY_TARGETCFG: %w", err)
	}
	cfg.TargetCfg = parsed
	return nil
}

// fileConfig mirrors the config file schema. Field names follow the
// original exporter's YAML layout.
type fileConfig struct {
	ListenIP            string                  `yaml:"listen_ip"`
	ListenPort          string                  `yaml:"listen_port"`
	Timeout             int                     `yaml:"timeout"`
	StaticTargets       []string                `yaml:"static_targets"`
	Username            string                  `yaml:"username"`
	Password            string                  `yaml:"password"`
	TargetCfg           map[string]TargetConfig `yaml:"targetcfg"`
	MetricsFile         string                  `yaml:"metrics_file"`
	S3Bucket            string                  `yaml:"s3_bucket"`
	S3URL               string                  `yaml:"s3_url"`
	S3KeyID             string                  `yaml:"s3_key_id"`
	S3SecretKey         string                  `yaml:"s3_secret_key"`
	S3Verify            string                  `yaml:"s3_verify"`
	RedisURL            string                  `yaml:"redis_url"`
	MaxConcurrentProbes int                     `yaml:"max_concurrent_probes"`
	ProbeRateLimit      float64                 `yaml:"probe_rate_limit"`
	ProbeRateBurst      int                     `yaml:"probe_rate_burst"`
	LogLevel            string                  `yaml:"log_level"`
	LogFormat           string                  `yaml:"log_format"`
}

func (cfg *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config file: %w", err)
	}
	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("parsing config file %s: %w", path, err)
	}

	if fc.ListenIP != "" {
		cfg.ListenIP = fc.ListenIP
	}
	if fc.ListenPort != "" {
		cfg.ListenPort = fc.ListenPort
	}
	if fc.Timeout > 0 {
		cfg.Timeout = time.Duration(fc.Timeout) * time.Second
	}
	if fc.StaticTargets != nil {
		cfg.StaticTargets = fc.StaticTargets
	}
	if fc.Username != "" {
		cfg.Username = fc.Username
	}
	if fc.Password != "" {
		cfg.Password = fc.Password
	}
	if fc.TargetCfg != nil {
		cfg.TargetCfg = fc.TargetCfg
	}
	if fc.MetricsFile != "" {
		cfg.MetricsFile = fc.MetricsFile
	}
	if fc.S3Bucket != "" {
		cfg.S3Bucket = fc.S3Bucket
	}
	if fc.S3URL != "" {
		cfg.S3URL = fc.S3URL
	}
	if fc.S3KeyID != "" {
		cfg.S3KeyID = fc.S3KeyID
	}
	if fc.S3SecretKey != "" {
		cfg.S3SecretKey = fc.S3SecretKey
	}
	if fc.S3Verify != "" {
		cfg.S3Verify = fc.S3Verify
	}
	if fc.RedisURL != "" {
		cfg.RedisURL = fc.RedisURL
	}
	if fc.MaxConcurrentProbes > 0 {
		cfg.MaxConcurrentProbes = fc.MaxConcurrentProbes
	}
	if fc.ProbeRateLimit > 0 {
		cfg.ProbeRateLimit = fc.ProbeRateLimit
	}
	if fc.ProbeRateBurst > 0 {
		cfg.ProbeRateBurst = fc.ProbeRateBurst
	}
	if fc.LogLevel != "" {
		cfg.LogLevel = strings.ToLower(fc.LogLevel)
	}
	if fc.LogFormat != "" {
		cfg.LogFormat = strings.ToLower(fc.LogFormat)
	}
	return nil
}

// Validate checks the configuration for consistency and required values.
func (cfg Config) Validate() error {
	if err := cfg.validateNetworkSettings(); err != nil {
		return err
	}
	if err := cfg.validateTargets(); err != nil {
		return err
	}
	if err := cfg.validateStoreSettings(); err != nil {
		return err
	}
	return cfg.validateLogSettings()
}

func (cfg Config) validateNetworkSettings() error {
	port, err := strconv.Atoi(cfg.ListenPort)
	if err != nil || port < 1 || port > 65535 {
		return fmt.Errorf("invalid listen port: %s", cfg.ListenPort)
	}
	if cfg.Timeout <= 0 {
		return fmt.Errorf("SHELLY_TIMEOUT must be positive")
	}
	if cfg.MaxConcurrentProbes <= 0 {
		return fmt.Errorf("SHELLY_MAX_CONCURRENT_PROBES must be positive")
	}
	return nil
}

func (cfg Config) validateTargets() error {
	for _, target := range cfg.StaticTargets {
		if err := types.ValidateTarget(target); err != nil {
			return fmt.Errorf("static target %q: %w", target, err)
		}
	}
	return nil
}

func (cfg Config) validateStoreSettings() error {
	if cfg.MetricsFile == "" {
		return fmt.Errorf("metrics file path cannot be empty")
	}
	if cfg.S3Bucket != "" && cfg.RedisURL != "" {
		return fmt.Errorf("cannot use both an S3 bucket and a Redis URL for the persisted store")
	}
	if cfg.S3Bucket != "" && cfg.S3URL == "" {
		return fmt.Errorf("SHELLY_S3_URL is required when SHELLY_S3_BUCKET is set")
	}
	return nil
}

func (cfg Config) validateLogSettings() error {
	validLogLevels := []string{"debug", "info", "warn", "error"}
	if !contains(validLogLevels, cfg.LogLevel) {
		return fmt.Errorf("invalid log level: %s, valid options: %v", cfg.LogLevel, validLogLevels)
	}
	validLogFormats := []string{"json", "text"}
	if !contains(validLogFormats, cfg.LogFormat) {
		return fmt.Errorf("invalid log format: %s, valid options: %v", cfg.LogFormat, validLogFormats)
	}
	return nil
}

// ListenAddr returns the host:port pair the HTTP server binds to.
func (cfg Config) ListenAddr() string {
	return cfg.ListenIP + ":" + cfg.ListenPort
}

// StoreBackend names which persisted-store backend the configuration
// selects: "redis", "s3" or "file".
func (cfg Config) StoreBackend() string {
	switch {
	case cfg.RedisURL != "":
		return "redis"
	case cfg.S3Bucket != "":
		return "s3"
	default:
		return "file"
	}
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}
