// Package store implements the persisted probe store: a durable map from
// device identity to its last saved metrics snapshot, kept as one serialized
// document behind a pluggable byte-level backend.
package store

import "context"

// Backend is the byte-level contract a backing medium must satisfy. Reads
// of a not-yet-existing document return errors.ErrNotFound; writes replace
// the whole document and are only as atomic as the medium itself.
type Backend interface {
	// Name identifies the backend in logs and errors.
	Name() string
	// ReadBytes returns the entire persisted document.
	ReadBytes(ctx context.Context) ([]byte, error)
	// WriteBytes replaces the entire persisted document.
	WriteBytes(ctx context.Context, data []byte) error
}
