package dedup

import (
	"errors"
	"fmt"
)

// ErrBackendUnavailable is returned by a SimilarityBackend whose remote
// service cannot be reached. The semantic matcher treats it as "no signal".
var ErrBackendUnavailable = errors.New("similarity backend unavailable")

// MalformedRecordError marks a record missing every comparable field
// (no title, no description text, no URL). Scans log and skip these.
type MalformedRecordError struct {
	Table string
	ID    string
}

func (e *MalformedRecordError) Error() string {
	return fmt.Sprintf("record %s:%s has no comparable fields", e.Table, e.ID)
}

// IsMalformedRecord reports whether err is a MalformedRecordError.
func IsMalformedRecord(err error) bool {
	var target *MalformedRecordError
	return errors.As(err, &target)
}

// ValidationError rejects invalid caller input (unknown table, unknown
// match type, out-of-range confidence) before it reaches storage.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var target *ValidationError
	return errors.As(err, &target)
}

// StorageError wraps a failure fetching or writing records or duplicate
// rows. The scan orchestrator contains these per table; other callers see
// them surface as-is.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// IsStorage reports whether err is a StorageError.
func IsStorage(err error) bool {
	var target *StorageError
	return errors.As(err, &target)
}
