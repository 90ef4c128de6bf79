package dedup

import (
	"context"

	"github.com/rs/zerolog"
)

// Match is the resolver's accepted duplicate verdict for one ordered
// record pair, ready for persistence.
type Match struct {
	SourceTable    string
	SourceID       string
	TargetTable    string
	TargetID       string
	MatchType      MatchType
	Confidence     float64
	MatchingFields []string
	Reason         string
	Action         Action
}

// matchTypePriority reflects empirical signal reliability: exact content
// hash and exact URL are definitive, semantic captures paraphrase,
// key-phrase overlap and fuzzy title are the noisiest.
var matchTypePriority = map[MatchType]int{
	MatchExact:    5,
	MatchURL:      4,
	MatchSemantic: 3,
	MatchMetadata: 2,
	MatchFuzzy:    1,
}

const mergeConfidenceFloor = 0.95

// Resolver runs the matcher ladder over a candidate pair and picks the
// single strongest verdict. Matchers are ordered definitive-first; the
// heuristic matchers all run so a weak early signal cannot mask a
// stronger later one.
type Resolver struct {
	fingerprinter *Fingerprinter
	matchers      []Matcher
	logger        zerolog.Logger
}

// NewResolver assembles the standard matcher ladder. backend may be nil,
// in which case semantic matching is structurally absent.
func NewResolver(fp *Fingerprinter, cfg MatcherConfig, backend SimilarityBackend, logger zerolog.Logger) *Resolver {
	if fp == nil {
		fp = NewFingerprinter(nil)
	}
	if backend == nil {
		backend = NoopBackend{}
	}

	matchers := []Matcher{
		ExactHashMatcher{},
		URLMatcher{},
		SemanticSimilarityMatcher{Backend: backend, Threshold: cfg.SemanticThreshold},
		KeyPhraseOverlapMatcher{Threshold: cfg.KeyPhraseThreshold},
		FuzzyTitleMatcher{Threshold: cfg.FuzzyTitleThreshold, Overrides: cfg.FuzzyTitleOverrides},
	}

	return &Resolver{
		fingerprinter: fp,
		matchers:      matchers,
		logger:        logger,
	}
}

// Fingerprinter exposes the resolver's fingerprint builder so callers can
// precompute fingerprints for candidate sweeps.
func (r *Resolver) Fingerprinter() *Fingerprinter {
	return r.fingerprinter
}

// Resolve compares two records and returns the strongest accepted match,
// or nil when the pair is not a duplicate. A MalformedRecordError is
// returned when either record has no comparable fields at all.
func (r *Resolver) Resolve(ctx context.Context, a, b Record) (*Match, error) {
	if a.Same(b) {
		return nil, nil
	}

	fpA, err := r.fingerprinter.Build(a)
	if err != nil {
		return nil, err
	}
	fpB, err := r.fingerprinter.Build(b)
	if err != nil {
		return nil, err
	}

	return r.ResolveFingerprinted(ctx, Fingerprinted{Record: a, Fingerprint: fpA}, Fingerprinted{Record: b, Fingerprint: fpB}), nil
}

// ResolveFingerprinted is Resolve for callers that already hold
// fingerprints (the scan orchestrator builds each fingerprint once).
func (r *Resolver) ResolveFingerprinted(ctx context.Context, a, b Fingerprinted) *Match {
	if a.Record.Same(b.Record) {
		return nil
	}
	// Zero-content guard: a pair where either side has no text is too
	// weak for the heuristic matchers, but two records that both carry a
	// canonical URL can still match on URL identity alone.
	if !a.Fingerprint.HasContent() || !b.Fingerprint.HasContent() {
		if a.Fingerprint.URLHash == "" || b.Fingerprint.URLHash == "" {
			return nil
		}
	}

	var best *Verdict
	for _, matcher := range r.matchers {
		verdict, err := matcher.Match(ctx, a, b)
		if err != nil {
			// Matcher failures never escape the resolver; the signal is
			// simply absent for this pair.
			r.logger.Debug().
				Err(err).
				Str("matcher", matcher.Name()).
				Str("source", a.Record.Key()).
				Str("target", b.Record.Key()).
				Msg("matcher unavailable, skipping signal")
			continue
		}
		if verdict == nil {
			continue
		}
		if best == nil || strongerVerdict(verdict, best) {
			best = verdict
		}
		if matcher.Definitive() {
			break
		}
	}

	if best == nil {
		return nil
	}
	return &Match{
		SourceTable:    a.Record.Table,
		SourceID:       a.Record.ID,
		TargetTable:    b.Record.Table,
		TargetID:       b.Record.ID,
		MatchType:      best.Type,
		Confidence:     best.Confidence,
		MatchingFields: best.Fields,
		Reason:         best.Reason,
		Action:         actionFor(best.Confidence),
	}
}

func strongerVerdict(candidate, current *Verdict) bool {
	cp := matchTypePriority[candidate.Type]
	bp := matchTypePriority[current.Type]
	if cp != bp {
		return cp > bp
	}
	return candidate.Confidence > current.Confidence
}

// actionFor maps confidence to disposition: high-confidence matches
// auto-merge, everything accepted below that is linked for human review.
func actionFor(confidence float64) Action {
	if confidence >= mergeConfidenceFloor {
		return ActionMerge
	}
	return ActionLink
}
