package shelly

import (
	"fmt"
	"strings"

	"github.com/dmaes/prometheus-shelly-exporter/internal/errors"
)

// Document is a parsed JSON object from a device endpoint. The accessors
// treat a missing or mistyped field as a hard failure: a probe either yields
// a fully built collection for its device variant or no collection at all.
type Document map[string]any

func (d Document) lookup(path ...string) (any, error) {
	var current any = map[string]any(d)
	for i, key := range path {
		obj, ok := current.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%w: %s is not an object", errors.ErrMissingField, strings.Join(path[:i], "."))
		}
		current, ok = obj[key]
		if !ok {
			return nil, fmt.Errorf("%w: %s", errors.ErrMissingField, strings.Join(path[:i+1], "."))
		}
	}
	return current, nil
}

// Float returns the numeric field at path.
func (d Document) Float(path ...string) (float64, error) {
	v, err := d.lookup(path...)
	if err != nil {
		return 0, err
	}
	f, ok := v.(float64)
	if !ok {
		return 0, fmt.Errorf("%w: %s is not a number", errors.ErrMissingField, strings.Join(path, "."))
	}
	return f, nil
}

// Bool returns the boolean field at path.
func (d Document) Bool(path ...string) (bool, error) {
	v, err := d.lookup(path...)
	if err != nil {
		return false, err
	}
	b, ok := v.(bool)
	if !ok {
		return false, fmt.Errorf("%w: %s is not a boolean", errors.ErrMissingField, strings.Join(path, "."))
	}
	return b, nil
}

// String returns the string field at path.
func (d Document) String(path ...string) (string, error) {
	v, err := d.lookup(path...)
	if err != nil {
		return "", err
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("%w: %s is not a string", errors.ErrMissingField, strings.Join(path, "."))
	}
	return s, nil
}

// Objects returns the field at path as a list of JSON objects, e.g. the
// per-channel relays, meters and thermostats arrays.
func (d Document) Objects(path ...string) ([]Document, error) {
	v, err := d.lookup(path...)
	if err != nil {
		return nil, err
	}
	list, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("%w: %s is not an array", errors.ErrMissingField, strings.Join(path, "."))
	}
	docs := make([]Document, 0, len(list))
	for i, item := range list {
		obj, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%w: %s[%d] is not an object", errors.ErrMissingField, strings.Join(path, "."), i)
		}
		docs = append(docs, Document(obj))
	}
	return docs, nil
}
