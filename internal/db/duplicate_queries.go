package db

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/drjforrest/taifa-dedup/internal/dedup"
)

const (
	DuplicateStatusActive        = "active"
	DuplicateStatusResolved      = "resolved"
	DuplicateStatusFalsePositive = "false_positive"

	// DuplicateStatusAll is a filter value only, never a stored status.
	DuplicateStatusAll = "all"
)

func validDuplicateStatus(status string) bool {
	switch status {
	case DuplicateStatusActive, DuplicateStatusResolved, DuplicateStatusFalsePositive:
		return true
	}
	return false
}

// resolveStatusFilter applies the default listing view: resolved and
// false-positive edges stay hidden unless a status (or "all") is asked
// for explicitly. The returned value is the SQL filter, "" meaning none.
func resolveStatusFilter(raw string) (string, error) {
	status := strings.TrimSpace(raw)
	switch {
	case status == "":
		return DuplicateStatusActive, nil
	case status == DuplicateStatusAll:
		return "", nil
	case validDuplicateStatus(status):
		return status, nil
	}
	return "", &dedup.ValidationError{
		Field:  "status",
		Reason: fmt.Sprintf("unknown status %q, expected active, resolved, false_positive or all", status),
	}
}

// BuildDuplicateMetadata renders the metadata payload stamped onto a
// flagged record's duplicate_metadata column.
func BuildDuplicateMetadata(match dedup.Match, detectedAt time.Time) map[string]any {
	return map[string]any{
		"is_duplicate": true,
		"duplicate_of": map[string]any{
			"table": match.TargetTable,
			"id":    match.TargetID,
		},
		"confidence":  match.Confidence,
		"match_type":  match.MatchType,
		"detected_at": detectedAt.UTC().Format(time.RFC3339),
	}
}

// MarkDuplicate persists a resolved match as an edge in the duplicate
// graph and stamps duplicate metadata onto the source record, all in one
// transaction. Re-marking the same pair updates the existing active edge
// instead of inserting a second one; pairs previously marked
// false_positive get a fresh edge.
func (p *Pool) MarkDuplicate(ctx context.Context, match dedup.Match) (string, error) {
	if match.SourceTable == match.TargetTable && match.SourceID == match.TargetID {
		return "", &dedup.ValidationError{Field: "target_id", Reason: "a record cannot duplicate itself"}
	}
	sourceTable, err := validateTable(match.SourceTable)
	if err != nil {
		return "", err
	}
	if _, err := validateTable(match.TargetTable); err != nil {
		return "", err
	}
	if match.Confidence < 0 || match.Confidence > 1 {
		return "", &dedup.ValidationError{Field: "confidence", Reason: fmt.Sprintf("must be in [0,1], got %f", match.Confidence)}
	}

	fieldsJSON, err := json.Marshal(match.MatchingFields)
	if err != nil {
		return "", &dedup.StorageError{Op: "encode matching fields", Err: err}
	}

	tx, err := p.BeginTx(ctx, TxOptions{})
	if err != nil {
		return "", &dedup.StorageError{Op: "begin mark-duplicate transaction", Err: err}
	}
	defer func() { _ = tx.Rollback(ctx) }()

	recordID, err := markDuplicateInTx(ctx, tx, match, sourceTable, fieldsJSON)
	if err != nil {
		return "", err
	}

	if err := tx.Commit(ctx); err != nil {
		return "", &dedup.StorageError{Op: "commit mark-duplicate transaction", Err: err}
	}
	return recordID, nil
}

// markDuplicateInTx is the transactional body of MarkDuplicate: upsert the
// edge, then stamp duplicate metadata onto the source record.
func markDuplicateInTx(ctx context.Context, tx Tx, match dedup.Match, sourceTable string, fieldsJSON []byte) (string, error) {
	var existingID string
	err := tx.QueryRow(ctx, `
SELECT id
FROM duplicate_records
WHERE source_table = $1 AND source_id = $2
	AND target_table = $3 AND target_id = $4
	AND status = $5
LIMIT 1
`, sourceTable, match.SourceID, match.TargetTable, match.TargetID, DuplicateStatusActive).Scan(&existingID)

	recordID := existingID
	switch {
	case err == nil:
		if _, err := tx.Exec(ctx, `
UPDATE duplicate_records
SET match_type = $1,
	confidence_score = $2,
	matching_fields = $3::jsonb,
	reason = $4,
	updated_at = NOW()
WHERE id = $5
`, match.MatchType, match.Confidence, string(fieldsJSON), match.Reason, existingID); err != nil {
			return "", &dedup.StorageError{Op: "update duplicate record", Err: err}
		}
	case IsNoRows(err):
		recordID = uuid.NewString()
		if _, err := tx.Exec(ctx, `
INSERT INTO duplicate_records
	(id, source_table, source_id, target_table, target_id, match_type, confidence_score, matching_fields, reason, status, created_at, updated_at)
VALUES
	($1, $2, $3, $4, $5, $6, $7, $8::jsonb, $9, $10, NOW(), NOW())
`, recordID, sourceTable, match.SourceID, match.TargetTable, match.TargetID,
			match.MatchType, match.Confidence, string(fieldsJSON), match.Reason, DuplicateStatusActive); err != nil {
			return "", &dedup.StorageError{Op: "insert duplicate record", Err: err}
		}
	default:
		return "", &dedup.StorageError{Op: "look up existing duplicate record", Err: err}
	}

	metadata := BuildDuplicateMetadata(match, time.Now().UTC())
	metadataJSON, err := json.Marshal(metadata)
	if err != nil {
		return "", &dedup.StorageError{Op: "encode duplicate metadata", Err: err}
	}
	updateMetadata := fmt.Sprintf(`UPDATE %s SET duplicate_metadata = $1::jsonb, updated_at = NOW() WHERE id = $2`, sourceTable)
	tag, err := tx.Exec(ctx, updateMetadata, string(metadataJSON), match.SourceID)
	if err != nil {
		return "", &dedup.StorageError{Op: "stamp duplicate metadata on " + sourceTable, Err: err}
	}
	if tag.RowsAffected() == 0 {
		return "", &dedup.MalformedRecordError{Table: sourceTable, ID: match.SourceID}
	}
	return recordID, nil
}

// UpdateDuplicateStatus moves a duplicate edge between active, resolved
// and false_positive. Leaving the active state clears the source record's
// duplicate metadata.
func (p *Pool) UpdateDuplicateStatus(ctx context.Context, id, status string) error {
	if strings.TrimSpace(id) == "" {
		return &dedup.ValidationError{Field: "id", Reason: "must not be empty"}
	}
	if !validDuplicateStatus(status) {
		return &dedup.ValidationError{
			Field:  "status",
			Reason: fmt.Sprintf("unknown status %q, expected active, resolved or false_positive", status),
		}
	}

	tx, err := p.BeginTx(ctx, TxOptions{})
	if err != nil {
		return &dedup.StorageError{Op: "begin status transaction", Err: err}
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := updateStatusInTx(ctx, tx, id, status); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return &dedup.StorageError{Op: "commit status transaction", Err: err}
	}
	return nil
}

// updateStatusInTx is the transactional body of UpdateDuplicateStatus.
// Any transition out of the active state clears the source record's
// duplicate metadata so the record is no longer presented as flagged.
func updateStatusInTx(ctx context.Context, tx Tx, id, status string) error {
	var sourceTable, sourceID string
	err := tx.QueryRow(ctx, `
SELECT source_table, source_id
FROM duplicate_records
WHERE id = $1
`, id).Scan(&sourceTable, &sourceID)
	if err != nil {
		if IsNoRows(err) {
			return ErrNoRows
		}
		return &dedup.StorageError{Op: "look up duplicate record", Err: err}
	}

	if _, err := tx.Exec(ctx, `
UPDATE duplicate_records
SET status = $1, updated_at = NOW()
WHERE id = $2
`, status, id); err != nil {
		return &dedup.StorageError{Op: "update duplicate status", Err: err}
	}

	if status != DuplicateStatusActive {
		clearMetadata := fmt.Sprintf(`UPDATE %s SET duplicate_metadata = NULL, updated_at = NOW() WHERE id = $1`, sourceTable)
		if _, err := tx.Exec(ctx, clearMetadata, sourceID); err != nil {
			return &dedup.StorageError{Op: "clear duplicate metadata on " + sourceTable, Err: err}
		}
	}
	return nil
}

// DuplicateFilters narrows ListDuplicates. Zero values mean "no filter",
// except Status: an empty Status lists active edges only, and
// DuplicateStatusAll lifts the filter.
type DuplicateFilters struct {
	Table         string
	MatchType     string
	Status        string
	MinConfidence float64
	Limit         int
	Offset        int
}

// DuplicateListing is one duplicate edge as returned to callers.
type DuplicateListing struct {
	ID             string          `json:"id"`
	SourceTable    string          `json:"source_table"`
	SourceID       string          `json:"source_id"`
	TargetTable    string          `json:"target_table"`
	TargetID       string          `json:"target_id"`
	MatchType      string          `json:"match_type"`
	Confidence     float64         `json:"confidence"`
	MatchingFields json.RawMessage `json:"matching_fields,omitempty"`
	Reason         string          `json:"reason,omitempty"`
	Status         string          `json:"status"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// ListDuplicates returns duplicate edges matching the filters, newest
// first, plus the total count ignoring pagination.
func (p *Pool) ListDuplicates(ctx context.Context, filters DuplicateFilters) ([]DuplicateListing, int64, error) {
	if filters.MatchType != "" {
		known := false
		for _, mt := range dedup.KnownMatchTypes() {
			if string(mt) == filters.MatchType {
				known = true
				break
			}
		}
		if !known {
			return nil, 0, &dedup.ValidationError{Field: "match_type", Reason: fmt.Sprintf("unknown match type %q", filters.MatchType)}
		}
	}
	statusFilter, err := resolveStatusFilter(filters.Status)
	if err != nil {
		return nil, 0, err
	}
	limit := filters.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	offset := max(0, filters.Offset)

	const where = `
WHERE ($1 = '' OR source_table = $1 OR target_table = $1)
	AND ($2 = '' OR match_type = $2)
	AND ($3 = '' OR status = $3)
	AND confidence_score >= $4
`

	var total int64
	if err := p.QueryRow(ctx, `SELECT COUNT(*) FROM duplicate_records`+where,
		filters.Table, filters.MatchType, statusFilter, filters.MinConfidence).Scan(&total); err != nil {
		return nil, 0, &dedup.StorageError{Op: "count duplicate records", Err: err}
	}

	rows, err := p.Query(ctx, `
SELECT id, source_table, source_id, target_table, target_id,
	match_type, confidence_score, COALESCE(matching_fields, 'null'::jsonb)::text,
	reason, status, created_at, updated_at
FROM duplicate_records
`+where+`
ORDER BY created_at DESC, id
LIMIT $5 OFFSET $6
`, filters.Table, filters.MatchType, statusFilter, filters.MinConfidence, limit, offset)
	if err != nil {
		return nil, 0, &dedup.StorageError{Op: "query duplicate records", Err: err}
	}
	defer rows.Close()

	listings := make([]DuplicateListing, 0, limit)
	for rows.Next() {
		var row DuplicateListing
		var fieldsText string
		if err := rows.Scan(
			&row.ID, &row.SourceTable, &row.SourceID, &row.TargetTable, &row.TargetID,
			&row.MatchType, &row.Confidence, &fieldsText,
			&row.Reason, &row.Status, &row.CreatedAt, &row.UpdatedAt,
		); err != nil {
			return nil, 0, &dedup.StorageError{Op: "scan duplicate record", Err: err}
		}
		if fieldsText != "" && fieldsText != "null" {
			row.MatchingFields = json.RawMessage(fieldsText)
		}
		listings = append(listings, row)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, &dedup.StorageError{Op: "iterate duplicate records", Err: err}
	}

	return listings, total, nil
}

// DuplicateStats aggregates the duplicate graph for reporting.
type DuplicateStats struct {
	Total            int64            `json:"total"`
	ByMatchType      map[string]int64 `json:"by_match_type"`
	ByTable          map[string]int64 `json:"by_table"`
	ByConfidenceBand map[string]int64 `json:"by_confidence_band"`
}

// QueryDuplicateStats returns counts of active duplicate edges grouped by
// match type, source table and confidence band (high >= 0.9, low < 0.7).
func (p *Pool) QueryDuplicateStats(ctx context.Context) (*DuplicateStats, error) {
	stats := &DuplicateStats{
		ByMatchType:      make(map[string]int64),
		ByTable:          make(map[string]int64),
		ByConfidenceBand: make(map[string]int64),
	}

	rows, err := p.Query(ctx, `
SELECT match_type,
	source_table,
	CASE
		WHEN confidence_score >= 0.9 THEN 'high'
		WHEN confidence_score >= 0.7 THEN 'medium'
		ELSE 'low'
	END AS band,
	COUNT(*)::BIGINT
FROM duplicate_records
WHERE status = $1
GROUP BY 1, 2, 3
`, DuplicateStatusActive)
	if err != nil {
		return nil, &dedup.StorageError{Op: "query duplicate stats", Err: err}
	}
	defer rows.Close()

	for rows.Next() {
		var matchType, table, band string
		var count int64
		if err := rows.Scan(&matchType, &table, &band, &count); err != nil {
			return nil, &dedup.StorageError{Op: "scan duplicate stats row", Err: err}
		}
		stats.Total += count
		stats.ByMatchType[matchType] += count
		stats.ByTable[table] += count
		stats.ByConfidenceBand[band] += count
	}
	if err := rows.Err(); err != nil {
		return nil, &dedup.StorageError{Op: "iterate duplicate stats rows", Err: err}
	}

	return stats, nil
}

// NonDuplicateCount returns how many rows of table carry no duplicate flag.
func (p *Pool) NonDuplicateCount(ctx context.Context, table string) (int64, error) {
	normalized, err := validateTable(table)
	if err != nil {
		return 0, err
	}

	query := fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE duplicate_metadata IS NULL`, normalized)
	var count int64
	if err := p.QueryRow(ctx, query).Scan(&count); err != nil {
		return 0, &dedup.StorageError{Op: "count non-duplicates in " + normalized, Err: err}
	}
	return count, nil
}
