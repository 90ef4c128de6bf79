package engine

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"github.com/drjforrest/taifa-dedup/internal/db"
	"github.com/drjforrest/taifa-dedup/internal/dedup"
)

// RecordSource supplies candidate records from the content tables.
type RecordSource interface {
	FetchRecords(ctx context.Context, table string, limit int) ([]dedup.Record, error)
	FetchRecord(ctx context.Context, table, id string) (dedup.Record, error)
}

// DuplicateStore persists the duplicate graph.
type DuplicateStore interface {
	MarkDuplicate(ctx context.Context, match dedup.Match) (string, error)
	UpdateDuplicateStatus(ctx context.Context, id, status string) error
	ListDuplicates(ctx context.Context, filters db.DuplicateFilters) ([]db.DuplicateListing, int64, error)
	QueryDuplicateStats(ctx context.Context) (*db.DuplicateStats, error)
}

// Service orchestrates duplicate detection across the configured tables.
type Service struct {
	source      RecordSource
	store       DuplicateStore
	resolver    *dedup.Resolver
	tables      []string
	maxPerTable int
	logger      zerolog.Logger
}

func New(source RecordSource, store DuplicateStore, resolver *dedup.Resolver, tables []string, maxPerTable int, logger zerolog.Logger) (*Service, error) {
	if source == nil {
		return nil, fmt.Errorf("record source is nil")
	}
	if store == nil {
		return nil, fmt.Errorf("duplicate store is nil")
	}
	if resolver == nil {
		return nil, fmt.Errorf("resolver is nil")
	}
	if len(tables) == 0 {
		return nil, fmt.Errorf("at least one source table is required")
	}
	if maxPerTable <= 0 {
		maxPerTable = 500
	}

	return &Service{
		source:      source,
		store:       store,
		resolver:    resolver,
		tables:      tables,
		maxPerTable: maxPerTable,
		logger:      logger,
	}, nil
}

// CheckDuplicates compares one record against recent records in every
// configured table and returns accepted matches, strongest first. Nothing
// is persisted.
func (s *Service) CheckDuplicates(ctx context.Context, rec dedup.Record) ([]dedup.Match, error) {
	recFP, err := s.resolver.Fingerprinter().Build(rec)
	if err != nil {
		return nil, err
	}
	subject := dedup.Fingerprinted{Record: rec, Fingerprint: recFP}

	var matches []dedup.Match
	for _, table := range s.tables {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		candidates, err := s.source.FetchRecords(ctx, table, s.maxPerTable)
		if err != nil {
			return nil, fmt.Errorf("fetch candidates from %s: %w", table, err)
		}
		for _, candidate := range candidates {
			if candidate.Same(rec) {
				continue
			}
			candFP, err := s.resolver.Fingerprinter().Build(candidate)
			if err != nil {
				if dedup.IsMalformedRecord(err) {
					continue
				}
				return nil, err
			}
			match := s.resolver.ResolveFingerprinted(ctx, subject, dedup.Fingerprinted{Record: candidate, Fingerprint: candFP})
			if match != nil {
				matches = append(matches, *match)
			}
		}
	}

	sortMatches(matches)
	return matches, nil
}

// ProcessResult reports the outcome of ProcessAndMark for one record.
type ProcessResult struct {
	Record            dedup.Record
	Matches           []dedup.Match
	MarkedDuplicateID string
}

// ProcessAndMark runs duplicate detection for one stored record and, when
// autoMark is set, persists the strongest match as a duplicate edge.
func (s *Service) ProcessAndMark(ctx context.Context, table, id string, autoMark bool) (*ProcessResult, error) {
	rec, err := s.source.FetchRecord(ctx, table, id)
	if err != nil {
		return nil, err
	}

	matches, err := s.CheckDuplicates(ctx, rec)
	if err != nil {
		return nil, err
	}

	result := &ProcessResult{Record: rec, Matches: matches}
	if !autoMark || len(matches) == 0 {
		return result, nil
	}

	best := matches[0]
	duplicateID, err := s.store.MarkDuplicate(ctx, best)
	if err != nil {
		return nil, fmt.Errorf("mark duplicate: %w", err)
	}
	result.MarkedDuplicateID = duplicateID

	s.logger.Info().
		Str("source", best.SourceTable+":"+best.SourceID).
		Str("target", best.TargetTable+":"+best.TargetID).
		Str("match_type", string(best.MatchType)).
		Float64("confidence", best.Confidence).
		Str("action", string(best.Action)).
		Msg("marked duplicate")
	return result, nil
}

// GetDuplicateRecords lists persisted duplicate edges through the store.
func (s *Service) GetDuplicateRecords(ctx context.Context, filters db.DuplicateFilters) ([]db.DuplicateListing, int64, error) {
	return s.store.ListDuplicates(ctx, filters)
}

// UpdateDuplicateStatus moves a persisted edge between review states.
func (s *Service) UpdateDuplicateStatus(ctx context.Context, id, status string) error {
	return s.store.UpdateDuplicateStatus(ctx, strings.TrimSpace(id), strings.TrimSpace(status))
}

// GetStats aggregates the duplicate graph.
func (s *Service) GetStats(ctx context.Context) (*db.DuplicateStats, error) {
	return s.store.QueryDuplicateStats(ctx)
}

// sortMatches orders matches strongest-first: by confidence, then by
// lexical key for a stable result.
func sortMatches(matches []dedup.Match) {
	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Confidence != matches[j].Confidence {
			return matches[i].Confidence > matches[j].Confidence
		}
		ki := matches[i].TargetTable + ":" + matches[i].TargetID
		kj := matches[j].TargetTable + ":" + matches[j].TargetID
		return ki < kj
	})
}
