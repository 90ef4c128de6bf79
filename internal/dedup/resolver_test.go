package dedup

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
)

func newTestResolver(backend SimilarityBackend) *Resolver {
	return NewResolver(NewFingerprinter(nil), DefaultMatcherConfig(), backend, zerolog.Nop())
}

func TestResolveSelfPairIsNil(t *testing.T) {
	t.Parallel()

	rec := publicationRecord("p1", "Some Publication", "", "")
	match, err := newTestResolver(nil).Resolve(context.Background(), rec, rec)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if match != nil {
		t.Fatalf("a record must never match itself, got %+v", match)
	}
}

func TestResolvePropagatesMalformedRecord(t *testing.T) {
	t.Parallel()

	good := publicationRecord("p1", "A Real Title", "", "")
	bad := Record{Table: "publications", ID: "p2", Fields: map[string]any{"title": ""}}

	_, err := newTestResolver(nil).Resolve(context.Background(), good, bad)
	if !IsMalformedRecord(err) {
		t.Fatalf("expected MalformedRecordError, got %v", err)
	}
}

func TestResolveExactMatchWinsWithFullConfidence(t *testing.T) {
	t.Parallel()

	a := publicationRecord("p1", "Blockchain Land Registry Pilot in Rwanda", "Government pilot program.", "https://example.com/a")
	b := publicationRecord("p2", "Blockchain Land Registry Pilot in Rwanda", "Government pilot program.", "https://example.com/b")

	match, err := newTestResolver(nil).Resolve(context.Background(), a, b)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if match == nil {
		t.Fatalf("expected a match")
	}
	if match.MatchType != MatchExact || match.Confidence != 1.0 {
		t.Fatalf("expected exact confidence 1.0, got %+v", match)
	}
	if match.Action != ActionMerge {
		t.Fatalf("confidence 1.0 must merge, got %s", match.Action)
	}
	if match.SourceTable != "publications" || match.SourceID != "p1" || match.TargetID != "p2" {
		t.Fatalf("unexpected edge identity: %+v", match)
	}
}

func TestResolveURLOnlyRecordsMatchOnSharedURL(t *testing.T) {
	t.Parallel()

	// URL-only records carry no text, but URL identity still counts.
	a := Record{Table: "publications", ID: "p1", Fields: map[string]any{"url": "https://example.com/x?utm_source=feed"}}
	b := Record{Table: "publications", ID: "p2", Fields: map[string]any{"url": "https://example.com/x"}}

	match, err := newTestResolver(nil).Resolve(context.Background(), a, b)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if match == nil {
		t.Fatalf("expected a url match for url-only records")
	}
	if match.MatchType != MatchURL || match.Confidence != 0.98 {
		t.Fatalf("expected url match at 0.98, got %+v", match)
	}
}

func TestResolveZeroContentGuard(t *testing.T) {
	t.Parallel()

	// Different canonical URLs and no text on either side: nothing to
	// compare, so no match.
	a := Record{Table: "publications", ID: "p1", Fields: map[string]any{"url": "https://example.com/x"}}
	b := Record{Table: "publications", ID: "p2", Fields: map[string]any{"url": "https://example.com/y"}}

	match, err := newTestResolver(nil).Resolve(context.Background(), a, b)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if match != nil {
		t.Fatalf("url-only records with different urls must not match, got %+v", match)
	}

	// One side with text, the other url-only without a shared URL.
	c := publicationRecord("p3", "Some Research Title", "", "")
	match, err = newTestResolver(nil).Resolve(context.Background(), a, c)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if match != nil {
		t.Fatalf("textless pair without url identity must not match, got %+v", match)
	}
}

func TestResolveFuzzyMatchLinksBelowMergeFloor(t *testing.T) {
	t.Parallel()

	a := publicationRecord("p1", "Community Health Workers Deploy Mobile Diagnostics", "", "https://example.com/a")
	b := publicationRecord("p2", "Community Health Workers Pilot Mobile Diagnostics", "", "https://example.com/b")

	match, err := newTestResolver(nil).Resolve(context.Background(), a, b)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if match == nil {
		t.Fatalf("expected a fuzzy match")
	}
	if match.MatchType != MatchFuzzy {
		t.Fatalf("expected fuzzy match type, got %+v", match)
	}
	if match.Confidence >= mergeConfidenceFloor {
		t.Fatalf("pair should land below the merge floor, got %f", match.Confidence)
	}
	if match.Action != ActionLink {
		t.Fatalf("sub-floor confidence must link, got %s", match.Action)
	}
}

func TestResolveSymmetricOutcome(t *testing.T) {
	t.Parallel()

	a := publicationRecord("p1", "Fintech Startup Raises Series A Funding", "Lagos based payments company.", "")
	b := publicationRecord("p2", "Fintech Startup Raises Series B Funding", "Lagos based payments company.", "")

	r := newTestResolver(nil)
	forward, err := r.Resolve(context.Background(), a, b)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	backward, err := r.Resolve(context.Background(), b, a)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}

	if (forward == nil) != (backward == nil) {
		t.Fatalf("asymmetric outcome: %+v vs %+v", forward, backward)
	}
	if forward != nil {
		if forward.MatchType != backward.MatchType || forward.Confidence != backward.Confidence {
			t.Fatalf("asymmetric verdicts: %+v vs %+v", forward, backward)
		}
	}
}

func TestResolvePriorityExactOverFuzzy(t *testing.T) {
	t.Parallel()

	// Identical titles fire both exact and fuzzy; the exact verdict must win.
	a := publicationRecord("p1", "Annual Health Innovation Report", "", "https://example.com/a")
	b := publicationRecord("p2", "Annual Health Innovation Report", "", "https://example.com/b")

	match, err := newTestResolver(nil).Resolve(context.Background(), a, b)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if match == nil || match.MatchType != MatchExact {
		t.Fatalf("expected exact to outrank fuzzy, got %+v", match)
	}
}

type failingBackend struct{}

func (failingBackend) Compare(context.Context, string, string) (float64, error) {
	return 0, errors.New("connection refused")
}

func TestResolveDegradesWhenSemanticBackendFails(t *testing.T) {
	t.Parallel()

	// Titles differ so the definitive matchers stay quiet and the
	// semantic matcher actually runs (and fails).
	a := publicationRecord("p1", "Annual Health Innovation Report 2024", "Section one.", "")
	b := publicationRecord("p2", "Annual Health Innovation Report 2025", "Section one.", "")

	match, err := newTestResolver(failingBackend{}).Resolve(context.Background(), a, b)
	if err != nil {
		t.Fatalf("backend failure must not escape Resolve: %v", err)
	}
	if match == nil || match.MatchType != MatchFuzzy {
		t.Fatalf("remaining matchers should still fire, got %+v", match)
	}
}

func TestActionForMergeFloor(t *testing.T) {
	t.Parallel()

	if actionFor(0.95) != ActionMerge {
		t.Fatalf("0.95 must merge")
	}
	if actionFor(0.949) != ActionLink {
		t.Fatalf("0.949 must link")
	}
}
