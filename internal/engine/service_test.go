package engine

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/drjforrest/taifa-dedup/internal/db"
	"github.com/drjforrest/taifa-dedup/internal/dedup"
)

type fakeSource struct {
	records map[string][]dedup.Record
	failing map[string]error
}

func (s *fakeSource) FetchRecords(_ context.Context, table string, limit int) ([]dedup.Record, error) {
	if err, ok := s.failing[table]; ok {
		return nil, err
	}
	records := s.records[table]
	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}
	return records, nil
}

func (s *fakeSource) FetchRecord(_ context.Context, table, id string) (dedup.Record, error) {
	for _, rec := range s.records[table] {
		if rec.ID == id {
			return rec, nil
		}
	}
	return dedup.Record{}, db.ErrNoRows
}

type fakeStore struct {
	marked   []dedup.Match
	failMark error
}

func (s *fakeStore) MarkDuplicate(_ context.Context, match dedup.Match) (string, error) {
	if s.failMark != nil {
		return "", s.failMark
	}
	s.marked = append(s.marked, match)
	return fmt.Sprintf("dup-%d", len(s.marked)), nil
}

func (s *fakeStore) UpdateDuplicateStatus(context.Context, string, string) error {
	return nil
}

func (s *fakeStore) ListDuplicates(context.Context, db.DuplicateFilters) ([]db.DuplicateListing, int64, error) {
	return nil, 0, nil
}

func (s *fakeStore) QueryDuplicateStats(context.Context) (*db.DuplicateStats, error) {
	return &db.DuplicateStats{}, nil
}

func pubRecord(id, title, url string, createdAt time.Time) dedup.Record {
	fields := map[string]any{
		"title":      title,
		"created_at": createdAt,
	}
	if url != "" {
		fields["url"] = url
	}
	return dedup.Record{Table: "publications", ID: id, Fields: fields}
}

func newTestService(t *testing.T, source *fakeSource, store *fakeStore, tables []string) *Service {
	t.Helper()
	resolver := dedup.NewResolver(dedup.NewFingerprinter(nil), dedup.DefaultMatcherConfig(), nil, zerolog.Nop())
	service, err := New(source, store, resolver, tables, 100, zerolog.Nop())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return service
}

func TestCheckDuplicatesFindsCrossTableMatch(t *testing.T) {
	t.Parallel()

	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	source := &fakeSource{records: map[string][]dedup.Record{
		"publications": {
			pubRecord("p1", "Kenyan Agritech Startup Wins Innovation Prize", "https://example.com/prize", base),
		},
		"articles": {
			{Table: "articles", ID: "a1", Fields: map[string]any{
				"title":      "Kenyan Agritech Startup Wins Innovation Prize",
				"created_at": base.Add(time.Hour),
			}},
			{Table: "articles", ID: "a2", Fields: map[string]any{
				"title":      "Unrelated Banking Regulation Update",
				"created_at": base.Add(2 * time.Hour),
			}},
		},
	}}
	store := &fakeStore{}
	service := newTestService(t, source, store, []string{"publications", "articles"})

	matches, err := service.CheckDuplicates(context.Background(), source.records["publications"][0])
	if err != nil {
		t.Fatalf("CheckDuplicates failed: %v", err)
	}
	if len(matches) != 1 {
		t.Fatalf("expected exactly one match, got %d: %+v", len(matches), matches)
	}
	if matches[0].TargetTable != "articles" || matches[0].TargetID != "a1" {
		t.Fatalf("unexpected target: %+v", matches[0])
	}
	if matches[0].MatchType != dedup.MatchExact {
		t.Fatalf("expected exact match, got %s", matches[0].MatchType)
	}
	if len(store.marked) != 0 {
		t.Fatalf("CheckDuplicates must not persist anything")
	}
}

func TestCheckDuplicatesSkipsMalformedCandidates(t *testing.T) {
	t.Parallel()

	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	source := &fakeSource{records: map[string][]dedup.Record{
		"publications": {
			pubRecord("p1", "A Perfectly Fine Title", "", base),
			{Table: "publications", ID: "broken", Fields: map[string]any{"title": "  "}},
			pubRecord("p2", "A Perfectly Fine Title", "", base.Add(time.Hour)),
		},
	}}
	service := newTestService(t, source, &fakeStore{}, []string{"publications"})

	matches, err := service.CheckDuplicates(context.Background(), source.records["publications"][0])
	if err != nil {
		t.Fatalf("malformed candidate should be skipped, got: %v", err)
	}
	if len(matches) != 1 || matches[0].TargetID != "p2" {
		t.Fatalf("expected single match against p2, got %+v", matches)
	}
}

func TestProcessAndMarkPersistsBestMatch(t *testing.T) {
	t.Parallel()

	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	source := &fakeSource{records: map[string][]dedup.Record{
		"publications": {
			pubRecord("p1", "Digital ID Rollout Reaches Ten Million Users", "", base),
			pubRecord("p2", "Digital ID Rollout Reaches Ten Million Users", "", base.Add(time.Hour)),
		},
	}}
	store := &fakeStore{}
	service := newTestService(t, source, store, []string{"publications"})

	result, err := service.ProcessAndMark(context.Background(), "publications", "p2", true)
	if err != nil {
		t.Fatalf("ProcessAndMark failed: %v", err)
	}
	if result.MarkedDuplicateID == "" {
		t.Fatalf("expected a persisted duplicate id")
	}
	if len(store.marked) != 1 {
		t.Fatalf("expected exactly one mark, got %d", len(store.marked))
	}
	if store.marked[0].SourceID != "p2" || store.marked[0].TargetID != "p1" {
		t.Fatalf("unexpected edge: %+v", store.marked[0])
	}
}

func TestProcessAndMarkWithoutAutoMark(t *testing.T) {
	t.Parallel()

	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	source := &fakeSource{records: map[string][]dedup.Record{
		"publications": {
			pubRecord("p1", "Same Title Twice", "", base),
			pubRecord("p2", "Same Title Twice", "", base.Add(time.Hour)),
		},
	}}
	store := &fakeStore{}
	service := newTestService(t, source, store, []string{"publications"})

	result, err := service.ProcessAndMark(context.Background(), "publications", "p2", false)
	if err != nil {
		t.Fatalf("ProcessAndMark failed: %v", err)
	}
	if result.MarkedDuplicateID != "" {
		t.Fatalf("autoMark=false must not persist, got %q", result.MarkedDuplicateID)
	}
	if len(result.Matches) == 0 {
		t.Fatalf("expected detection results even without marking")
	}
	if len(store.marked) != 0 {
		t.Fatalf("store should be untouched")
	}
}

func TestProcessAndMarkUnknownRecord(t *testing.T) {
	t.Parallel()

	source := &fakeSource{records: map[string][]dedup.Record{}}
	service := newTestService(t, source, &fakeStore{}, []string{"publications"})

	_, err := service.ProcessAndMark(context.Background(), "publications", "missing", true)
	if !errors.Is(err, db.ErrNoRows) {
		t.Fatalf("expected ErrNoRows, got %v", err)
	}
}
