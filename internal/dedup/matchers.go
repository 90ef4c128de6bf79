package dedup

import (
	"context"
	"fmt"
)

// MatchType tags the signal that produced a duplicate verdict.
type MatchType string

const (
	MatchExact    MatchType = "exact"
	MatchURL      MatchType = "url"
	MatchFuzzy    MatchType = "fuzzy"
	MatchMetadata MatchType = "metadata"
	MatchSemantic MatchType = "semantic"
)

// KnownMatchTypes lists every valid match type tag.
func KnownMatchTypes() []MatchType {
	return []MatchType{MatchExact, MatchURL, MatchFuzzy, MatchMetadata, MatchSemantic}
}

// Action is the disposition assigned to an accepted match. Absence of a
// match is the rejection; no terminal "reject" action exists.
type Action string

const (
	ActionMerge Action = "merge"
	ActionLink  Action = "link"
)

// Verdict is the output of a single matcher for one candidate pair.
type Verdict struct {
	Type       MatchType
	Confidence float64
	Fields     []string
	Reason     string
}

// Matcher is one independent duplicate detector. Match returns nil when
// the signal is absent or below threshold; errors mean the matcher could
// not run at all and are degraded to "no verdict" by the resolver.
type Matcher interface {
	Name() string
	// Definitive matchers (exact content or URL identity) allow the
	// resolver to short-circuit; heuristic matchers never do.
	Definitive() bool
	Match(ctx context.Context, a, b Fingerprinted) (*Verdict, error)
}

// MatcherConfig carries the tunable thresholds of the heuristic matchers.
type MatcherConfig struct {
	// FuzzyTitleThreshold is the default minimum Levenshtein ratio.
	FuzzyTitleThreshold float64
	// FuzzyTitleOverrides relaxes or tightens the ratio per table; entity
	// types with more varied titling get a looser bar.
	FuzzyTitleOverrides map[string]float64
	// KeyPhraseThreshold is the minimum Jaccard similarity of phrase sets.
	KeyPhraseThreshold float64
	// SemanticThreshold is the minimum embedding cosine similarity.
	SemanticThreshold float64
}

// DefaultMatcherConfig returns the shipped thresholds.
func DefaultMatcherConfig() MatcherConfig {
	return MatcherConfig{
		FuzzyTitleThreshold: 0.85,
		FuzzyTitleOverrides: map[string]float64{"innovations": 0.80},
		KeyPhraseThreshold:  0.8,
		SemanticThreshold:   0.87,
	}
}

const urlMatchConfidence = 0.98

// ExactHashMatcher fires on identical non-empty title hashes. A matching
// description hash alone is not enough: titles must agree for "exact".
type ExactHashMatcher struct{}

func (ExactHashMatcher) Name() string     { return "exact_hash" }
func (ExactHashMatcher) Definitive() bool { return true }

func (ExactHashMatcher) Match(_ context.Context, a, b Fingerprinted) (*Verdict, error) {
	if a.Fingerprint.TitleHash == "" || a.Fingerprint.TitleHash != b.Fingerprint.TitleHash {
		return nil, nil
	}
	fields := []string{"title"}
	if a.Fingerprint.DescriptionHash != "" && a.Fingerprint.DescriptionHash == b.Fingerprint.DescriptionHash {
		fields = append(fields, "description")
	}
	return &Verdict{
		Type:       MatchExact,
		Confidence: 1.0,
		Fields:     fields,
		Reason:     "identical normalized title content",
	}, nil
}

// URLMatcher fires when both records resolve to the same canonical URL.
// Checked before the heuristic matchers: URL identity is the strongest
// cheap signal after an exact content hash.
type URLMatcher struct{}

func (URLMatcher) Name() string     { return "url" }
func (URLMatcher) Definitive() bool { return true }

func (URLMatcher) Match(_ context.Context, a, b Fingerprinted) (*Verdict, error) {
	if a.Fingerprint.URLHash == "" || a.Fingerprint.URLHash != b.Fingerprint.URLHash {
		return nil, nil
	}
	return &Verdict{
		Type:       MatchURL,
		Confidence: urlMatchConfidence,
		Fields:     []string{"url"},
		Reason:     fmt.Sprintf("same canonical url %s", a.Fingerprint.NormalizedURL),
	}, nil
}

// FuzzyTitleMatcher fires when the normalized titles are within a
// Levenshtein ratio threshold of each other. The ratio is the confidence.
type FuzzyTitleMatcher struct {
	Threshold float64
	Overrides map[string]float64
}

func (FuzzyTitleMatcher) Name() string     { return "fuzzy_title" }
func (FuzzyTitleMatcher) Definitive() bool { return false }

func (m FuzzyTitleMatcher) thresholdFor(table string) float64 {
	if override, ok := m.Overrides[table]; ok {
		return override
	}
	return m.Threshold
}

func (m FuzzyTitleMatcher) Match(_ context.Context, a, b Fingerprinted) (*Verdict, error) {
	left := a.Fingerprint.NormalizedTitle
	right := b.Fingerprint.NormalizedTitle
	if left == "" || right == "" {
		return nil, nil
	}

	// A pair spanning two tables uses the looser of the two bars.
	threshold := m.thresholdFor(a.Record.Table)
	if other := m.thresholdFor(b.Record.Table); other < threshold {
		threshold = other
	}

	ratio := LevenshteinRatio(left, right)
	if ratio < threshold {
		return nil, nil
	}
	return &Verdict{
		Type:       MatchFuzzy,
		Confidence: ratio,
		Fields:     []string{"title"},
		Reason:     fmt.Sprintf("title similarity %.2f >= %.2f", ratio, threshold),
	}, nil
}

// KeyPhraseOverlapMatcher fires on high Jaccard overlap of key-phrase
// sets. Either side having no phrases means no verdict, never a match.
type KeyPhraseOverlapMatcher struct {
	Threshold float64
}

func (KeyPhraseOverlapMatcher) Name() string     { return "key_phrase_overlap" }
func (KeyPhraseOverlapMatcher) Definitive() bool { return false }

func (m KeyPhraseOverlapMatcher) Match(_ context.Context, a, b Fingerprinted) (*Verdict, error) {
	if len(a.Fingerprint.KeyPhrases) == 0 || len(b.Fingerprint.KeyPhrases) == 0 {
		return nil, nil
	}
	similarity := JaccardSimilarity(a.Fingerprint.KeyPhrases, b.Fingerprint.KeyPhrases)
	if similarity < m.Threshold {
		return nil, nil
	}
	return &Verdict{
		Type:       MatchMetadata,
		Confidence: similarity,
		Fields:     []string{"title", "description"},
		Reason:     fmt.Sprintf("key phrase overlap %.2f >= %.2f", similarity, m.Threshold),
	}, nil
}

// LevenshteinRatio returns a normalized edit-distance similarity in
// [0,1]: 1 minus the Levenshtein distance over the longer rune length.
func LevenshteinRatio(a, b string) float64 {
	if a == b {
		return 1
	}
	ra := []rune(a)
	rb := []rune(b)
	if len(ra) == 0 || len(rb) == 0 {
		return 0
	}

	longer := len(ra)
	if len(rb) > longer {
		longer = len(rb)
	}
	return 1 - float64(levenshteinDistance(ra, rb))/float64(longer)
}

func levenshteinDistance(a, b []rune) int {
	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for j := 0; j <= len(b); j++ {
		prev[j] = j
	}

	for i := 1; i <= len(a); i++ {
		curr[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			curr[j] = min(prev[j]+1, min(curr[j-1]+1, prev[j-1]+cost))
		}
		prev, curr = curr, prev
	}
	return prev[len(b)]
}
