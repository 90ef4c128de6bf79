package db

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/drjforrest/taifa-dedup/internal/dedup"
)

// Tables the record queries are allowed to touch. Raw table names flow
// into SQL, so anything outside this set is rejected up front.
var allowedRecordTables = map[string]struct{}{
	"publications": {},
	"articles":     {},
	"innovations":  {},
}

// AllowedTables returns the queryable source tables in sorted order.
func AllowedTables() []string {
	tables := make([]string, 0, len(allowedRecordTables))
	for table := range allowedRecordTables {
		tables = append(tables, table)
	}
	sort.Strings(tables)
	return tables
}

func validateTable(table string) (string, error) {
	normalized := strings.ToLower(strings.TrimSpace(table))
	if _, ok := allowedRecordTables[normalized]; !ok {
		return "", &dedup.ValidationError{
			Field:  "table",
			Reason: fmt.Sprintf("unknown table %q, expected one of %s", table, strings.Join(AllowedTables(), ", ")),
		}
	}
	return normalized, nil
}

// FetchRecords returns up to limit rows from table, newest first. Every
// column comes back in the record's field map so field mappings can be
// applied downstream without another round trip.
func (p *Pool) FetchRecords(ctx context.Context, table string, limit int) ([]dedup.Record, error) {
	normalized, err := validateTable(table)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 500
	}

	var rows []map[string]any
	if err := p.gdb.WithContext(ctx).
		Table(normalized).
		Order("created_at DESC").
		Limit(limit).
		Find(&rows).Error; err != nil {
		return nil, &dedup.StorageError{Op: "fetch records from " + normalized, Err: err}
	}

	records := make([]dedup.Record, 0, len(rows))
	for _, fields := range rows {
		id := stringifyID(fields["id"])
		if id == "" {
			continue
		}
		records = append(records, dedup.Record{
			Table:  normalized,
			ID:     id,
			Fields: fields,
		})
	}
	return records, nil
}

// FetchRecord returns one row by id, or ErrNoRows when it does not exist.
func (p *Pool) FetchRecord(ctx context.Context, table, id string) (dedup.Record, error) {
	normalized, err := validateTable(table)
	if err != nil {
		return dedup.Record{}, err
	}
	if strings.TrimSpace(id) == "" {
		return dedup.Record{}, &dedup.ValidationError{Field: "id", Reason: "must not be empty"}
	}

	var rows []map[string]any
	if err := p.gdb.WithContext(ctx).
		Table(normalized).
		Where("id = ?", id).
		Limit(1).
		Find(&rows).Error; err != nil {
		return dedup.Record{}, &dedup.StorageError{Op: "fetch record from " + normalized, Err: err}
	}
	if len(rows) == 0 {
		return dedup.Record{}, ErrNoRows
	}

	return dedup.Record{
		Table:  normalized,
		ID:     stringifyID(rows[0]["id"]),
		Fields: rows[0],
	}, nil
}

// UpdateRecordMetadata writes metadata into the record's duplicate_metadata
// column. A nil metadata map clears the column back to NULL.
func (p *Pool) UpdateRecordMetadata(ctx context.Context, table, id string, metadata map[string]any) error {
	normalized, err := validateTable(table)
	if err != nil {
		return err
	}
	if strings.TrimSpace(id) == "" {
		return &dedup.ValidationError{Field: "id", Reason: "must not be empty"}
	}

	query := fmt.Sprintf(`UPDATE %s SET duplicate_metadata = $1::jsonb, updated_at = NOW() WHERE id = $2`, normalized)

	var payload any
	if metadata != nil {
		encoded, err := json.Marshal(metadata)
		if err != nil {
			return &dedup.StorageError{Op: "encode duplicate metadata", Err: err}
		}
		payload = string(encoded)
	}

	tag, err := p.Exec(ctx, query, payload, id)
	if err != nil {
		return &dedup.StorageError{Op: "update duplicate metadata on " + normalized, Err: err}
	}
	if tag.RowsAffected() == 0 {
		return ErrNoRows
	}
	return nil
}

func stringifyID(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case []byte:
		return string(v)
	case fmt.Stringer:
		return v.String()
	default:
		return fmt.Sprintf("%v", v)
	}
}
