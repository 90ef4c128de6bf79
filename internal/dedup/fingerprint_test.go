package dedup

import (
	"errors"
	"strings"
	"testing"
)

func publicationRecord(id, title, abstract, url string) Record {
	fields := map[string]any{"title": title}
	if abstract != "" {
		fields["abstract"] = abstract
	}
	if url != "" {
		fields["url"] = url
	}
	return Record{Table: "publications", ID: id, Fields: fields}
}

func TestBuildFingerprintHashesAndPhrases(t *testing.T) {
	t.Parallel()

	fp, err := NewFingerprinter(nil).Build(publicationRecord("p1",
		"Machine Learning for Malaria Diagnosis",
		"A deep learning approach to diagnosing malaria from blood smears.",
		"https://www.example.org/papers/malaria?utm_source=feed"))
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	if fp.TitleHash == "" || fp.DescriptionHash == "" || fp.URLHash == "" {
		t.Fatalf("expected all hashes populated, got %+v", fp)
	}
	if fp.NormalizedURL != "https://example.org/papers/malaria" {
		t.Fatalf("NormalizedURL = %q", fp.NormalizedURL)
	}
	if fp.WordCount == 0 {
		t.Fatalf("expected non-zero word count")
	}
	if _, ok := fp.KeyPhrases["malaria"]; !ok {
		t.Fatalf("expected key phrase 'malaria', got %v", fp.KeyPhrases)
	}
	if _, ok := fp.KeyPhrases["machine learning"]; !ok {
		t.Fatalf("expected 2-gram 'machine learning'")
	}
	if !fp.HasContent() {
		t.Fatalf("fingerprint with title should have content")
	}
}

func TestBuildFingerprintEmptyFieldsStayUnhashed(t *testing.T) {
	t.Parallel()

	fp, err := NewFingerprinter(nil).Build(publicationRecord("p1", "Only a Title", "", ""))
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if fp.DescriptionHash != "" {
		t.Fatalf("empty description must not hash, got %q", fp.DescriptionHash)
	}
	if fp.URLHash != "" {
		t.Fatalf("empty url must not hash, got %q", fp.URLHash)
	}

	other, err := NewFingerprinter(nil).Build(publicationRecord("p2", "A Different Title", "", ""))
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if fp.DescriptionHash == other.DescriptionHash && fp.DescriptionHash != "" {
		t.Fatalf("two empty descriptions compared hash-equal")
	}
}

func TestBuildFingerprintMalformedRecord(t *testing.T) {
	t.Parallel()

	_, err := NewFingerprinter(nil).Build(Record{
		Table:  "publications",
		ID:     "p0",
		Fields: map[string]any{"title": "   ", "abstract": ""},
	})
	if err == nil {
		t.Fatalf("expected error for record with no comparable content")
	}
	var malformed *MalformedRecordError
	if !errors.As(err, &malformed) {
		t.Fatalf("expected MalformedRecordError, got %T: %v", err, err)
	}
	if malformed.Table != "publications" || malformed.ID != "p0" {
		t.Fatalf("unexpected error identity: %+v", malformed)
	}
}

func TestBuildFingerprintDescriptionFallbackOrder(t *testing.T) {
	t.Parallel()

	rec := Record{
		Table: "publications",
		ID:    "p1",
		Fields: map[string]any{
			"title":    "Some Title",
			"abstract": "the abstract text",
			"summary":  "the summary text",
		},
	}
	fp, err := NewFingerprinter(nil).Build(rec)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if fp.NormalizedDescription != "the abstract text" {
		t.Fatalf("expected abstract to win over summary, got %q", fp.NormalizedDescription)
	}
}

func TestBuildFingerprintExtractsHTMLContent(t *testing.T) {
	t.Parallel()

	f := NewFingerprinter(nil)
	f.ExtractHTML = func(html string) string {
		return strings.ToUpper("extracted body")
	}

	// The record carries only the articles content column, so the
	// description must come from the HTML extraction path.
	rec := Record{
		Table: "articles",
		ID:    "a1",
		Fields: map[string]any{
			"title":   "Article Title",
			"content": "<p>ignored by the stub</p>",
		},
	}
	fp, err := f.Build(rec)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if fp.NormalizedDescription != "extracted body" {
		t.Fatalf("expected extracted html body, got %q", fp.NormalizedDescription)
	}
}

func TestDefaultArticlesMappingReadsContentColumn(t *testing.T) {
	t.Parallel()

	if got := DefaultFieldMappings()["articles"].ContentField; got != "content" {
		t.Fatalf("articles content field = %q, want the stored content column", got)
	}
}

func TestExtractKeyPhrasesDropsStopwordsAndShortTokens(t *testing.T) {
	t.Parallel()

	phrases := ExtractKeyPhrases("the rise of solar energy and grid storage", "en")
	for _, banned := range []string{"the", "and", "of"} {
		if _, ok := phrases[banned]; ok {
			t.Fatalf("phrase set should not contain %q: %v", banned, phrases)
		}
	}
	for _, want := range []string{"solar", "energy", "solar energy", "solar energy grid"} {
		if _, ok := phrases[want]; !ok {
			t.Fatalf("phrase set missing %q: %v", want, phrases)
		}
	}

	if got := ExtractKeyPhrases("a an of", "en"); got != nil {
		t.Fatalf("expected nil phrase set, got %v", got)
	}
}

func TestExtractKeyPhrasesSkipsEnglishFilterForOtherLanguages(t *testing.T) {
	t.Parallel()

	text := "vaccin contre le paludisme au kenya"
	french := ExtractKeyPhrases(text, "fr")
	for _, want := range []string{"le", "au", "vaccin contre le"} {
		if _, ok := french[want]; !ok {
			t.Fatalf("non-English text must keep short tokens, missing %q: %v", want, french)
		}
	}

	unknown := ExtractKeyPhrases(text, "")
	if _, ok := unknown["le"]; ok {
		t.Fatalf("unknown language should keep the English filter, got %v", unknown)
	}
}

func TestBuildFingerprintGatesPhrasesOnDetectedLanguage(t *testing.T) {
	t.Parallel()

	f := NewFingerprinter(nil)
	f.DetectLanguage = func(string) string { return "fr" }

	fp, err := f.Build(publicationRecord("p1", "Vaccin contre le paludisme au Kenya", "", ""))
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if fp.Language != "fr" {
		t.Fatalf("Language = %q, want fr", fp.Language)
	}
	if _, ok := fp.KeyPhrases["le"]; !ok {
		t.Fatalf("detected language must reach phrase extraction, got %v", fp.KeyPhrases)
	}
}

func TestJaccardSimilarity(t *testing.T) {
	t.Parallel()

	a := map[string]struct{}{"x": {}, "y": {}, "z": {}}
	b := map[string]struct{}{"y": {}, "z": {}, "w": {}}
	got := JaccardSimilarity(a, b)
	if got != 0.5 {
		t.Fatalf("JaccardSimilarity = %f, want 0.5", got)
	}

	if JaccardSimilarity(nil, b) != 0 {
		t.Fatalf("empty set must yield 0")
	}
	if JaccardSimilarity(a, a) != 1 {
		t.Fatalf("identical sets must yield 1")
	}
}
