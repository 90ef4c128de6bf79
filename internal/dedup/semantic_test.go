package dedup

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"
)

type staticBackend struct {
	cosine float64
	err    error
}

func (b staticBackend) Compare(context.Context, string, string) (float64, error) {
	return b.cosine, b.err
}

func TestSemanticMatcherThreshold(t *testing.T) {
	t.Parallel()

	a := mustFingerprint(t, publicationRecord("a", "Drone Delivery of Vaccines", "Cold chain logistics.", ""))
	b := mustFingerprint(t, publicationRecord("b", "Vaccine Delivery by Drone", "Logistics for the cold chain.", ""))

	m := SemanticSimilarityMatcher{Backend: staticBackend{cosine: 0.91}, Threshold: 0.87}
	verdict, err := m.Match(context.Background(), a, b)
	if err != nil {
		t.Fatalf("Match failed: %v", err)
	}
	if verdict == nil || verdict.Type != MatchSemantic || verdict.Confidence != 0.91 {
		t.Fatalf("unexpected verdict %+v", verdict)
	}

	m.Backend = staticBackend{cosine: 0.86}
	verdict, err = m.Match(context.Background(), a, b)
	if err != nil {
		t.Fatalf("Match failed: %v", err)
	}
	if verdict != nil {
		t.Fatalf("below-threshold cosine must not match, got %+v", verdict)
	}
}

func TestSemanticMatcherWrapsBackendFailure(t *testing.T) {
	t.Parallel()

	a := mustFingerprint(t, publicationRecord("a", "Title One", "", "https://example.com/a"))
	b := mustFingerprint(t, publicationRecord("b", "Title Two", "", "https://example.com/b"))

	m := SemanticSimilarityMatcher{Backend: staticBackend{err: errors.New("dial tcp: refused")}, Threshold: 0.87}
	_, err := m.Match(context.Background(), a, b)
	if !errors.Is(err, ErrBackendUnavailable) {
		t.Fatalf("expected ErrBackendUnavailable, got %v", err)
	}
}

func TestNoopBackendNeverMatches(t *testing.T) {
	t.Parallel()

	a := mustFingerprint(t, publicationRecord("a", "Identical Semantic Text", "", "https://example.com/a"))
	b := mustFingerprint(t, publicationRecord("b", "Identical Semantic Text B", "", "https://example.com/b"))

	m := SemanticSimilarityMatcher{Backend: NoopBackend{}, Threshold: 0.87}
	verdict, err := m.Match(context.Background(), a, b)
	if err != nil {
		t.Fatalf("Match failed: %v", err)
	}
	if verdict != nil {
		t.Fatalf("noop backend must never produce a verdict, got %+v", verdict)
	}
}

func TestEmbeddingBackendCompare(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Texts []string `json:"texts"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if len(req.Texts) != 2 {
			http.Error(w, "expected two texts", http.StatusBadRequest)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"embeddings": [][]float64{{1, 0, 0}, {0.6, 0.8, 0}},
		})
	}))
	defer server.Close()

	backend, err := NewEmbeddingBackend(EmbeddingBackendOptions{Endpoint: server.URL + "/embed"})
	if err != nil {
		t.Fatalf("NewEmbeddingBackend failed: %v", err)
	}

	cosine, err := backend.Compare(context.Background(), "text a", "text b")
	if err != nil {
		t.Fatalf("Compare failed: %v", err)
	}
	if math.Abs(cosine-0.6) > 1e-9 {
		t.Fatalf("cosine = %f, want 0.6", cosine)
	}
}

func TestEmbeddingBackendServerError(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	backend, err := NewEmbeddingBackend(EmbeddingBackendOptions{Endpoint: server.URL + "/embed"})
	if err != nil {
		t.Fatalf("NewEmbeddingBackend failed: %v", err)
	}

	if _, err := backend.Compare(context.Background(), "a", "b"); err == nil {
		t.Fatalf("expected error from 503 response")
	}
}

func TestCosineSimilarity(t *testing.T) {
	t.Parallel()

	got, err := CosineSimilarity([]float64{1, 0}, []float64{1, 0})
	if err != nil {
		t.Fatalf("CosineSimilarity failed: %v", err)
	}
	if math.Abs(got-1) > 1e-9 {
		t.Fatalf("identical vectors = %f, want 1", got)
	}

	got, err = CosineSimilarity([]float64{1, 0}, []float64{0, 1})
	if err != nil {
		t.Fatalf("CosineSimilarity failed: %v", err)
	}
	if math.Abs(got) > 1e-9 {
		t.Fatalf("orthogonal vectors = %f, want 0", got)
	}

	if _, err := CosineSimilarity([]float64{1}, []float64{1, 2}); err == nil {
		t.Fatalf("expected dimension mismatch error")
	}
}
