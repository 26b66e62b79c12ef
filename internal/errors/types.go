// Package errors provides error types and handling utilities for the Shelly
// exporter.
package errors

import (
	"errors"
	"fmt"
)

// Error constants for common failure conditions.
var (
	// ErrMissingTarget is returned when a probe request carries no target.
	ErrMissingTarget = errors.New("'target' cannot be empty")
	// ErrNotFound is returned by store backends when the persisted document
	// does not exist yet.
	ErrNotFound = errors.New("persisted document not found")
	// ErrMissingField is returned when an expected field is absent from a
	// device's JSON response.
	ErrMissingField = errors.New("missing field in device response")
)

// ProbeError represents a failure to probe a device: transport errors,
// timeouts, non-JSON bodies and missing response fields all end up here.
// A ProbeError turns into a 400 on /probe and a shelly_down series on
// /metrics.
type ProbeError struct {
	Target     string
	Path       string
	Underlying error
}

func (e ProbeError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("probing %s (%s): %v", e.Target, e.Path, e.Underlying)
	}
	return fmt.Sprintf("probing %s: %v", e.Target, e.Underlying)
}

func (e ProbeError) Unwrap() error {
	return e.Underlying
}

// NewProbeError wraps err as a probe failure against target.
func NewProbeError(target, path string, err error) ProbeError {
	return ProbeError{Target: target, Path: path, Underlying: err}
}

// IsProbeError reports whether err is (or wraps) a ProbeError.
func IsProbeError(err error) bool {
	var pe ProbeError
	return errors.As(err, &pe)
}

// StoreError represents a failure of the persisted probe store's backing
// medium. It is fatal for the request that touched the store.
type StoreError struct {
	Op         string
	Backend    string
	Underlying error
}

func (e StoreError) Error() string {
	return fmt.Sprintf("store %s (%s backend): %v", e.Op, e.Backend, e.Underlying)
}

func (e StoreError) Unwrap() error {
	return e.Underlying
}

// ConfigurationError represents an error in configuration validation.
type ConfigurationError struct {
	Field  string
	Value  string
	Reason string
}

func (e ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error in field %s (value: %s): %s", e.Field, e.Value, e.Reason)
}
