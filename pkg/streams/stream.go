// Package streams implements the record streams exposed by the connector:
// patients and their per-patient insurances. Streams share the count-driven
// pagination of the NikoHealth external API and declare JSON schemas with
// sensitive-field filtering.
package streams

import (
	"context"
	"encoding/json"
	"fmt"
)

// Record is one row as returned by the API. Field semantics are opaque to
// the connector; only the primary key is ever inspected.
type Record map[string]any

// EmitFunc receives records as a stream produces them. Returning an error
// aborts the read.
type EmitFunc func(Record) error

// Stream is a named, independently pageable resource.
type Stream interface {
	// Name is the stream identifier used in catalogs and log fields.
	Name() string

	// Path is the resource path relative to the API root.
	Path() string

	// PrimaryKey names the record field that uniquely identifies a record.
	PrimaryKey() string

	// Schema returns the declared JSON schema for this stream's records,
	// with sensitive fields filtered per the stream's configuration.
	Schema() (map[string]any, error)

	// Read paginates the stream to exhaustion, emitting every record.
	// A failed read has no resume point; restarting re-reads from page 0.
	Read(ctx context.Context, emit EmitFunc) error
}

// RecordID extracts a record's identifier field as a string. The API is
// inconsistent about whether identifiers arrive as JSON strings or numbers,
// so both are accepted.
func RecordID(rec Record, key string) (string, error) {
	switch v := rec[key].(type) {
	case string:
		if v == "" {
			return "", fmt.Errorf("record field %q is empty", key)
		}
		return v, nil
	case json.Number:
		return v.String(), nil
	case nil:
		return "", fmt.Errorf("record missing field %q", key)
	default:
		return "", fmt.Errorf("record field %q has unsupported type %T", key, v)
	}
}
