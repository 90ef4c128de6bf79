package engine

import (
	"context"
	"sort"
	"time"

	"github.com/drjforrest/taifa-dedup/internal/dedup"
)

// ScanReport summarizes one full duplicate sweep.
type ScanReport struct {
	StartedAt         time.Time         `json:"started_at"`
	FinishedAt        time.Time         `json:"finished_at"`
	TablesScanned     map[string]int    `json:"tables_scanned"`
	SkippedTables     map[string]string `json:"skipped_tables,omitempty"`
	RecordsScanned    int               `json:"records_scanned"`
	SkippedRecords    int               `json:"skipped_records"`
	DuplicatesFound   int               `json:"duplicates_found"`
	DuplicatesByTable map[string]int    `json:"duplicates_by_table"`
}

type scanEntry struct {
	fp        dedup.Fingerprinted
	createdAt time.Time
	hasTime   bool
}

// RunFullScan sweeps the given tables (all configured tables when empty)
// for duplicates. Each record is compared against every older record in
// the corpus, newer records become duplicate-edge sources, and the first
// accepted match per record is persisted. A table that fails to load is
// reported and skipped rather than aborting the sweep.
func (s *Service) RunFullScan(ctx context.Context, tables []string, maxPerTable int) (*ScanReport, error) {
	if len(tables) == 0 {
		tables = s.tables
	}
	if maxPerTable <= 0 {
		maxPerTable = s.maxPerTable
	}

	report := &ScanReport{
		StartedAt:         time.Now().UTC(),
		TablesScanned:     make(map[string]int, len(tables)),
		SkippedTables:     make(map[string]string),
		DuplicatesByTable: make(map[string]int, len(tables)),
	}

	corpus := make([]scanEntry, 0, len(tables)*maxPerTable)
	for _, table := range tables {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		records, err := s.source.FetchRecords(ctx, table, maxPerTable)
		if err != nil {
			s.logger.Warn().
				Err(err).
				Str("table", table).
				Msg("skipping table in full scan")
			report.SkippedTables[table] = err.Error()
			report.TablesScanned[table] = 0
			continue
		}
		report.TablesScanned[table] = len(records)

		mapping := s.resolver.Fingerprinter().Mapping(table)
		for _, rec := range records {
			fp, err := s.resolver.Fingerprinter().Build(rec)
			if err != nil {
				if dedup.IsMalformedRecord(err) {
					report.SkippedRecords++
					continue
				}
				return nil, err
			}
			createdAt, hasTime := rec.CreatedAt(mapping.CreatedField)
			corpus = append(corpus, scanEntry{
				fp:        dedup.Fingerprinted{Record: rec, Fingerprint: fp},
				createdAt: createdAt,
				hasTime:   hasTime,
			})
		}
	}

	// Oldest first, so earlier entries are the canonical side of any
	// edge. Records without timestamps sort before timestamped ones to
	// keep the ordering total.
	sort.SliceStable(corpus, func(i, j int) bool {
		if corpus[i].hasTime != corpus[j].hasTime {
			return !corpus[i].hasTime
		}
		if !corpus[i].createdAt.Equal(corpus[j].createdAt) {
			return corpus[i].createdAt.Before(corpus[j].createdAt)
		}
		return corpus[i].fp.Record.Key() < corpus[j].fp.Record.Key()
	})

	exactIndex := buildBlockingIndex(corpus)

	for i := len(corpus) - 1; i > 0; i-- {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		source := corpus[i]
		report.RecordsScanned++

		if source.fp.Record.IsFlaggedDuplicate() {
			report.SkippedRecords++
			continue
		}

		match := s.bestOlderMatch(ctx, corpus, exactIndex, i)
		if match == nil {
			continue
		}
		if _, err := s.store.MarkDuplicate(ctx, *match); err != nil {
			s.logger.Warn().
				Err(err).
				Str("source", match.SourceTable+":"+match.SourceID).
				Str("target", match.TargetTable+":"+match.TargetID).
				Msg("failed to persist duplicate from scan")
			continue
		}
		report.DuplicatesFound++
		report.DuplicatesByTable[match.SourceTable]++
	}
	if len(corpus) > 0 {
		// The oldest record is only ever a target.
		report.RecordsScanned++
	}

	report.FinishedAt = time.Now().UTC()
	s.logger.Info().
		Int("records_scanned", report.RecordsScanned).
		Int("duplicates_found", report.DuplicatesFound).
		Int("skipped_records", report.SkippedRecords).
		Int("skipped_tables", len(report.SkippedTables)).
		Msg("full duplicate scan complete")
	return report, nil
}

// bestOlderMatch resolves corpus[idx] against all older entries, trying
// hash-blocked candidates first so exact duplicates short-circuit the
// quadratic sweep.
func (s *Service) bestOlderMatch(ctx context.Context, corpus []scanEntry, index map[string][]int, idx int) *dedup.Match {
	source := corpus[idx]

	for _, key := range blockingKeys(source.fp.Fingerprint) {
		for _, candidate := range index[key] {
			if candidate >= idx {
				continue
			}
			if match := s.resolver.ResolveFingerprinted(ctx, source.fp, corpus[candidate].fp); match != nil && match.MatchType == dedup.MatchExact {
				return match
			}
		}
	}

	var best *dedup.Match
	for j := 0; j < idx; j++ {
		match := s.resolver.ResolveFingerprinted(ctx, source.fp, corpus[j].fp)
		if match == nil {
			continue
		}
		if best == nil || match.Confidence > best.Confidence {
			best = match
		}
		if best.Confidence >= 1.0 {
			break
		}
	}
	return best
}

func buildBlockingIndex(corpus []scanEntry) map[string][]int {
	index := make(map[string][]int, len(corpus)*2)
	for i, entry := range corpus {
		for _, key := range blockingKeys(entry.fp.Fingerprint) {
			index[key] = append(index[key], i)
		}
	}
	return index
}

func blockingKeys(fp dedup.ContentFingerprint) []string {
	keys := make([]string, 0, 2)
	if fp.TitleHash != "" {
		keys = append(keys, "t:"+fp.TitleHash)
	}
	if fp.URLHash != "" {
		keys = append(keys, "u:"+fp.URLHash)
	}
	return keys
}
