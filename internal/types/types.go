// Package types provides core domain types and validation utilities for the
// Shelly exporter. It defines fundamental types like TargetID and MetricName
// along with their validation logic and error definitions.
package types

import (
	"errors"
	"fmt"
	"net"
	"regexp"
)

// TargetID identifies a Shelly device by its network address or hostname.
// It doubles as the key of the persisted probe store.
type TargetID string

// MetricName represents a Prometheus metric name.
type MetricName string

var (
	// ErrInvalidTarget is returned when a target identity is invalid.
	ErrInvalidTarget = errors.New("invalid target")
	// ErrInvalidMetricName is returned when a metric name is invalid.
	ErrInvalidMetricName = errors.New("invalid metric name")

	metricNameRegex = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)
	hostnameRegex   = regexp.MustCompile(`^[a-zA-Z0-9]([a-zA-Z0-9\-]{0,61}[a-zA-Z0-9])?(\.[a-zA-Z0-9]([a-zA-Z0-9\-]{0,61}[a-zA-Z0-9])?)*(:[0-9]{1,5})?$`)
)

// NewTargetID creates a new TargetID with validation.
func NewTargetID(target string) (TargetID, error) {
	if err := ValidateTarget(target); err != nil {
		return "", err
	}
	return TargetID(target), nil
}

// IsValid checks if the TargetID meets validation requirements.
func (t TargetID) IsValid() bool {
	return ValidateTarget(string(t)) == nil
}

func (t TargetID) String() string {
	return string(t)
}

// NewMetricName creates a new MetricName with validation.
func NewMetricName(name string) (MetricName, error) {
	if name == "" {
		return "", fmt.Errorf("metric name cannot be empty")
	}
	if !metricNameRegex.MatchString(name) {
		return "", fmt.Errorf("invalid metric name format: %s", name)
	}
	return MetricName(name), nil
}

// IsValid checks if the MetricName meets validation requirements.
func (m MetricName) IsValid() bool {
	return len(m) > 0 && metricNameRegex.MatchString(string(m))
}

func (m MetricName) String() string {
	return string(m)
}

// ValidateTarget validates that a target identity is an acceptable hostname,
// IP address, or host:port pair. Shelly devices live on private networks, so
// unlike public scrapers no address range is rejected.
func ValidateTarget(target string) error {
	if len(target) == 0 {
		return fmt.Errorf("target cannot be empty")
	}
	if len(target) > 253 {
		return fmt.Errorf("target too long: %d characters", len(target))
	}

	host := target
	if h, _, err := net.SplitHostPort(target); err == nil {
		host = h
	}
	if ip := net.ParseIP(host); ip != nil {
		return nil
	}
	if !hostnameRegex.MatchString(target) {
		return fmt.Errorf("invalid target format: %s", target)
	}
	return nil
}
