// Package dedup implements the deduplication and entity-resolution core:
// normalization, content fingerprinting, the matcher ladder, and the
// resolver that turns matcher verdicts into a single duplicate decision.
// All comparison logic is synchronous and in-memory; storage and the
// optional embedding backend are injected from the outside.
package dedup

import (
	"strings"
	"time"
)

// Record is a read-only view of one row from a source-of-truth table,
// identified by (Table, ID). Fields carries the raw column values; the
// Fingerprinter resolves which fields matter via the table's FieldMapping.
type Record struct {
	Table  string
	ID     string
	Fields map[string]any
}

// Key returns the scan-wide identity of the record.
func (r Record) Key() string {
	return r.Table + ":" + r.ID
}

// Same reports whether two records are the same row.
func (r Record) Same(other Record) bool {
	return r.Table == other.Table && r.ID == other.ID
}

// Field returns the trimmed string value of a column, or "" when the
// column is absent, null, or not string-shaped.
func (r Record) Field(name string) string {
	if name == "" || r.Fields == nil {
		return ""
	}
	raw, ok := r.Fields[name]
	if !ok || raw == nil {
		return ""
	}
	switch v := raw.(type) {
	case string:
		return strings.TrimSpace(v)
	case []byte:
		return strings.TrimSpace(string(v))
	case *string:
		if v == nil {
			return ""
		}
		return strings.TrimSpace(*v)
	default:
		return ""
	}
}

// FirstField returns the first non-empty value among the named columns.
func (r Record) FirstField(names ...string) string {
	for _, name := range names {
		if value := r.Field(name); value != "" {
			return value
		}
	}
	return ""
}

// CreatedAt returns the record's creation timestamp when the named column
// carries one.
func (r Record) CreatedAt(field string) (time.Time, bool) {
	if field == "" || r.Fields == nil {
		return time.Time{}, false
	}
	raw, ok := r.Fields[field]
	if !ok || raw == nil {
		return time.Time{}, false
	}
	switch v := raw.(type) {
	case time.Time:
		return v.UTC(), true
	case *time.Time:
		if v == nil {
			return time.Time{}, false
		}
		return v.UTC(), true
	case string:
		if ts, err := time.Parse(time.RFC3339, strings.TrimSpace(v)); err == nil {
			return ts.UTC(), true
		}
	}
	return time.Time{}, false
}

// IsFlaggedDuplicate reports whether the record already carries duplicate
// metadata from a previous scan.
func (r Record) IsFlaggedDuplicate() bool {
	if r.Fields == nil {
		return false
	}
	raw, ok := r.Fields["duplicate_metadata"]
	if !ok || raw == nil {
		return false
	}
	switch v := raw.(type) {
	case string:
		trimmed := strings.TrimSpace(v)
		return trimmed != "" && trimmed != "null"
	case []byte:
		trimmed := strings.TrimSpace(string(v))
		return trimmed != "" && trimmed != "null"
	case map[string]any:
		return len(v) > 0
	default:
		return true
	}
}
