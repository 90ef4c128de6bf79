package dedup

import (
	"crypto/md5"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// FieldMapping tells the Fingerprinter which columns of a source table
// carry comparable content. Fallback orders are fixed at construction
// time instead of being re-derived per record.
type FieldMapping struct {
	TitleField        string   `json:"title_field"`
	DescriptionFields []string `json:"description_fields"`
	URLFields         []string `json:"url_fields"`
	ContentField      string   `json:"content_field,omitempty"`
	CreatedField      string   `json:"created_field,omitempty"`
}

// DefaultFieldMappings covers the three source-of-truth tables.
func DefaultFieldMappings() map[string]FieldMapping {
	return map[string]FieldMapping{
		"publications": {
			TitleField:        "title",
			DescriptionFields: []string{"description", "abstract", "summary"},
			URLFields:         []string{"url", "source_url"},
			CreatedField:      "created_at",
		},
		"articles": {
			TitleField:        "title",
			DescriptionFields: []string{"description", "summary"},
			URLFields:         []string{"url", "source_url"},
			ContentField:      "content",
			CreatedField:      "created_at",
		},
		"innovations": {
			TitleField:        "title",
			DescriptionFields: []string{"description", "summary"},
			URLFields:         []string{"url", "source_url", "website_url"},
			CreatedField:      "created_at",
		},
	}
}

// ContentFingerprint is the derived, comparable summary of one record.
// Hash fields are empty strings when the underlying content is empty, so
// missing fields can never compare equal.
type ContentFingerprint struct {
	TitleHash             string
	DescriptionHash       string
	URLHash               string
	NormalizedTitle       string
	NormalizedDescription string
	NormalizedURL         string
	WordCount             int
	KeyPhrases            map[string]struct{}
	Language              string
}

// HasContent reports whether the fingerprint carries any title or
// description text. Fingerprints without content never match.
func (fp ContentFingerprint) HasContent() bool {
	return fp.TitleHash != "" || fp.DescriptionHash != ""
}

// Fingerprinted pairs a record with its fingerprint for matcher input.
type Fingerprinted struct {
	Record      Record
	Fingerprint ContentFingerprint
}

// Fingerprinter builds ContentFingerprints using per-table field
// mappings. DetectLanguage and ExtractHTML are optional capabilities;
// either may be nil.
type Fingerprinter struct {
	mappings       map[string]FieldMapping
	fallback       FieldMapping
	DetectLanguage func(text string) string
	ExtractHTML    func(html string) string
}

// NewFingerprinter builds a Fingerprinter over the given mappings. Tables
// without a mapping fall back to a generic field order.
func NewFingerprinter(mappings map[string]FieldMapping) *Fingerprinter {
	if mappings == nil {
		mappings = DefaultFieldMappings()
	}
	return &Fingerprinter{
		mappings: mappings,
		fallback: FieldMapping{
			TitleField:        "title",
			DescriptionFields: []string{"description", "abstract", "summary"},
			URLFields:         []string{"url", "source_url", "website_url"},
			CreatedField:      "created_at",
		},
	}
}

// Mapping returns the field mapping used for a table.
func (f *Fingerprinter) Mapping(table string) FieldMapping {
	if m, ok := f.mappings[table]; ok {
		return m
	}
	return f.fallback
}

// Build derives the fingerprint for one record. A record with no title,
// no description text, and no URL is malformed and cannot be compared.
func (f *Fingerprinter) Build(rec Record) (ContentFingerprint, error) {
	mapping := f.Mapping(rec.Table)

	title := rec.Field(mapping.TitleField)
	description := rec.FirstField(mapping.DescriptionFields...)
	rawURL := rec.FirstField(mapping.URLFields...)

	if description == "" && mapping.ContentField != "" && f.ExtractHTML != nil {
		if html := rec.Field(mapping.ContentField); html != "" {
			description = f.ExtractHTML(html)
		}
	}

	normalizedTitle := NormalizeText(title)
	normalizedDescription := NormalizeText(description)
	normalizedURL := NormalizeURL(rawURL)

	if normalizedTitle == "" && normalizedDescription == "" && normalizedURL == "" {
		return ContentFingerprint{}, &MalformedRecordError{Table: rec.Table, ID: rec.ID}
	}

	language := ""
	if f.DetectLanguage != nil {
		language = f.DetectLanguage(title + " " + description)
	}

	return ContentFingerprint{
		TitleHash:             contentHash(normalizedTitle),
		DescriptionHash:       contentHash(normalizedDescription),
		URLHash:               urlHash(normalizedURL),
		NormalizedTitle:       normalizedTitle,
		NormalizedDescription: normalizedDescription,
		NormalizedURL:         normalizedURL,
		WordCount:             len(strings.Fields(normalizedTitle + " " + normalizedDescription)),
		KeyPhrases:            ExtractKeyPhrases(normalizedTitle+" "+normalizedDescription, language),
		Language:              language,
	}, nil
}

// contentHash returns the hex SHA-256 of normalized text, or "" for empty
// input so that two missing fields never hash-match.
func contentHash(normalized string) string {
	if normalized == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])
}

// urlHash returns the hex MD5 of a normalized URL, or "" when absent.
// MD5 is an identity key here, not a security boundary.
func urlHash(normalizedURL string) string {
	if normalizedURL == "" {
		return ""
	}
	sum := md5.Sum([]byte(normalizedURL))
	return hex.EncodeToString(sum[:])
}

var stopwords = map[string]struct{}{
	"about": {}, "after": {}, "also": {}, "and": {}, "are": {}, "been": {},
	"but": {}, "can": {}, "for": {}, "from": {}, "had": {}, "has": {},
	"have": {}, "her": {}, "his": {}, "how": {}, "into": {}, "its": {},
	"more": {}, "not": {}, "one": {}, "our": {}, "out": {}, "over": {},
	"said": {}, "than": {}, "that": {}, "the": {}, "their": {}, "there": {},
	"they": {}, "this": {}, "was": {}, "were": {}, "what": {}, "when": {},
	"which": {}, "will": {}, "with": {}, "would": {}, "you": {},
}

// ExtractKeyPhrases tokenizes normalized text and emits the surviving
// tokens plus all contiguous 2-gram and 3-gram phrases. The stopword list
// and the three-character minimum are English heuristics, so they apply
// only when the detected language is English or unknown; other languages
// keep every token. Over-generation is deliberate: Jaccard overlap
// tolerates noisy phrase sets better than sparse ones.
func ExtractKeyPhrases(text, language string) map[string]struct{} {
	tokens := Tokenize(text)
	if len(tokens) == 0 {
		return nil
	}

	english := language == "" || language == "en"
	kept := make([]string, 0, len(tokens))
	for _, token := range tokens {
		if english {
			if len(token) <= 3 {
				continue
			}
			if _, ok := stopwords[token]; ok {
				continue
			}
		}
		kept = append(kept, token)
	}
	if len(kept) == 0 {
		return nil
	}

	phrases := make(map[string]struct{}, len(kept)*3)
	for _, token := range kept {
		phrases[token] = struct{}{}
	}
	for i := 0; i+1 < len(kept); i++ {
		phrases[kept[i]+" "+kept[i+1]] = struct{}{}
	}
	for i := 0; i+2 < len(kept); i++ {
		phrases[kept[i]+" "+kept[i+1]+" "+kept[i+2]] = struct{}{}
	}
	return phrases
}

// JaccardSimilarity computes |A∩B| / |A∪B| for two phrase sets.
func JaccardSimilarity(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}

	intersection := 0
	for phrase := range a {
		if _, ok := b[phrase]; ok {
			intersection++
		}
	}
	if intersection == 0 {
		return 0
	}

	union := len(a) + len(b) - intersection
	if union <= 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}
