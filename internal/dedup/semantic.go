package dedup

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"
)

const (
	DefaultEmbeddingMaxLength      = 512
	DefaultEmbeddingRequestTimeout = 45 * time.Second
)

// SimilarityBackend is the optional semantic capability. Compare returns
// the cosine similarity of the two texts' embeddings. Implementations
// return ErrBackendUnavailable (possibly wrapped) when the backend cannot
// be reached; the matcher degrades that to "no verdict".
type SimilarityBackend interface {
	Compare(ctx context.Context, textA, textB string) (float64, error)
}

// NoopBackend is the null-object backend used when no embedding service
// is configured. Absence of the capability is a valid configuration, not
// an error path.
type NoopBackend struct{}

func (NoopBackend) Compare(context.Context, string, string) (float64, error) {
	return 0, nil
}

// SemanticSimilarityMatcher fires on high embedding cosine similarity of
// the records' title+description text.
type SemanticSimilarityMatcher struct {
	Backend   SimilarityBackend
	Threshold float64
}

func (SemanticSimilarityMatcher) Name() string     { return "semantic" }
func (SemanticSimilarityMatcher) Definitive() bool { return false }

func (m SemanticSimilarityMatcher) Match(ctx context.Context, a, b Fingerprinted) (*Verdict, error) {
	if m.Backend == nil {
		return nil, nil
	}
	textA := semanticInput(a)
	textB := semanticInput(b)
	if textA == "" || textB == "" {
		return nil, nil
	}

	cosine, err := m.Backend.Compare(ctx, textA, textB)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	if cosine < m.Threshold {
		return nil, nil
	}
	return &Verdict{
		Type:       MatchSemantic,
		Confidence: cosine,
		Fields:     []string{"title", "description"},
		Reason:     fmt.Sprintf("embedding cosine %.3f >= %.3f", cosine, m.Threshold),
	}, nil
}

func semanticInput(f Fingerprinted) string {
	title := f.Fingerprint.NormalizedTitle
	body := f.Fingerprint.NormalizedDescription
	switch {
	case title == "" && body == "":
		return ""
	case body == "":
		return title
	case title == "":
		return body
	default:
		return title + "\n\n" + body
	}
}

// EmbeddingBackendOptions configures the HTTP embedding backend.
type EmbeddingBackendOptions struct {
	Endpoint       string
	ModelName      string
	MaxLength      int
	RequestTimeout time.Duration
	HTTPClient     *http.Client
}

// EmbeddingBackend calls an HTTP embedding service for both texts in one
// batch and computes the cosine locally. Wire shapes follow the common
// `{"texts": [...]}` and OpenAI-style `/v1/embeddings` conventions.
type EmbeddingBackend struct {
	endpoint       string
	modelName      string
	maxLength      int
	requestTimeout time.Duration
	client         *http.Client
}

// NewEmbeddingBackend builds an HTTP-backed SimilarityBackend.
func NewEmbeddingBackend(opts EmbeddingBackendOptions) (*EmbeddingBackend, error) {
	endpoint := strings.TrimSpace(opts.Endpoint)
	if endpoint == "" {
		return nil, fmt.Errorf("embedding endpoint is required")
	}
	if parsed, err := url.Parse(endpoint); err == nil {
		if parsed.Path == "" || parsed.Path == "/" {
			parsed.Path = "/embed"
			endpoint = parsed.String()
		}
	}

	maxLength := opts.MaxLength
	if maxLength <= 0 {
		maxLength = DefaultEmbeddingMaxLength
	}
	timeout := opts.RequestTimeout
	if timeout <= 0 {
		timeout = DefaultEmbeddingRequestTimeout
	}
	client := opts.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}

	return &EmbeddingBackend{
		endpoint:       endpoint,
		modelName:      strings.TrimSpace(opts.ModelName),
		maxLength:      maxLength,
		requestTimeout: timeout,
		client:         client,
	}, nil
}

type embedRequest struct {
	Texts     []string `json:"texts,omitempty"`
	Input     []string `json:"input,omitempty"`
	Model     string   `json:"model,omitempty"`
	MaxLength int      `json:"max_length,omitempty"`
}

type embedResponse struct {
	Embeddings [][]float64 `json:"embeddings"`
	Data       []struct {
		Index     int       `json:"index"`
		Embedding []float64 `json:"embedding"`
	} `json:"data"`
}

func (e *EmbeddingBackend) Compare(ctx context.Context, textA, textB string) (float64, error) {
	vectors, err := e.embed(ctx, []string{textA, textB})
	if err != nil {
		return 0, err
	}
	if len(vectors) != 2 {
		return 0, fmt.Errorf("embedding response count mismatch: requested=2 returned=%d", len(vectors))
	}
	return CosineSimilarity(vectors[0], vectors[1])
}

func (e *EmbeddingBackend) embed(ctx context.Context, texts []string) ([][]float64, error) {
	payload := embedRequest{
		Texts:     texts,
		Model:     e.modelName,
		MaxLength: e.maxLength,
	}
	if parsed, err := url.Parse(e.endpoint); err == nil && strings.HasSuffix(parsed.Path, "/v1/embeddings") {
		payload = embedRequest{Input: texts, Model: e.modelName}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal embedding request: %w", err)
	}

	requestCtx, cancel := context.WithTimeout(ctx, e.requestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(requestCtx, http.MethodPost, e.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build embedding request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embedding request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read embedding response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("embedding service status %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	var parsed embedResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("decode embedding response: %w", err)
	}

	vectors := parsed.Embeddings
	if len(vectors) == 0 && len(parsed.Data) > 0 {
		sort.Slice(parsed.Data, func(i, j int) bool {
			return parsed.Data[i].Index < parsed.Data[j].Index
		})
		vectors = make([][]float64, 0, len(parsed.Data))
		for _, row := range parsed.Data {
			vectors = append(vectors, row.Embedding)
		}
	}
	if len(vectors) == 0 {
		return nil, fmt.Errorf("embedding response missing vectors")
	}
	return vectors, nil
}

// CosineSimilarity computes the cosine of two equal-length vectors.
func CosineSimilarity(a, b []float64) (float64, error) {
	if len(a) == 0 || len(a) != len(b) {
		return 0, fmt.Errorf("vector dimension mismatch: %d vs %d", len(a), len(b))
	}

	var dot, normA, normB float64
	for i := range a {
		if math.IsNaN(a[i]) || math.IsNaN(b[i]) || math.IsInf(a[i], 0) || math.IsInf(b[i], 0) {
			return 0, fmt.Errorf("vector has non-finite value at index %d", i)
		}
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0, nil
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB)), nil
}
