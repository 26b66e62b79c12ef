package errors

import (
	"errors"
	"fmt"
	"testing"
)

func TestProbeError(t *testing.T) {
	underlying := errors.New("connection refused")
	err := NewProbeError("192.168.1.42", "/status", underlying)

	if !errors.Is(err, underlying) {
		t.Error("Expected ProbeError to unwrap to its underlying error")
	}

	msg := err.Error()
	if msg == "" {
		t.Fatal("Expected non-empty error message")
	}
	for _, want := range []string{"192.168.1.42", "/status", "connection refused"} {
		if !containsStr(msg, want) {
			t.Errorf("Expected error message to contain %q, got %q", want, msg)
		}
	}
}

func TestIsProbeError(t *testing.T) {
	err := NewProbeError("plug1", "", errors.New("timeout"))
	if !IsProbeError(err) {
		t.Error("Expected IsProbeError to be true for a ProbeError")
	}

	wrapped := fmt.Errorf("handler: %w", err)
	if !IsProbeError(wrapped) {
		t.Error("Expected IsProbeError to see through wrapping")
	}

	if IsProbeError(errors.New("unrelated")) {
		t.Error("Expected IsProbeError to be false for unrelated errors")
	}
}

func TestStoreError(t *testing.T) {
	err := StoreError{Op: "load", Backend: "file", Underlying: errors.New("permission denied")}
	if !containsStr(err.Error(), "load") || !containsStr(err.Error(), "file") {
		t.Errorf("Unexpected store error message: %q", err.Error())
	}
	if errors.Unwrap(err) == nil {
		t.Error("Expected StoreError to unwrap")
	}
}

func TestConfigurationError(t *testing.T) {
	err := ConfigurationError{Field: "SHELLY_LISTEN_PORT", Value: "-1", Reason: "must be positive"}
	if !containsStr(err.Error(), "SHELLY_LISTEN_PORT") {
		t.Errorf("Unexpected configuration error message: %q", err.Error())
	}
}

func containsStr(s, substr string) bool {
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return true
		}
	}
	return false
}
