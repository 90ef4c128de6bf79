// Package reader recovers comparable text from records that carry raw
// HTML content but no usable description field.
package reader

import (
	"bytes"
	"fmt"
	"net/url"
	"strings"

	readability "codeberg.org/readeck/go-readability/v2"
)

// ExtractText runs readability extraction over a raw HTML document and
// returns cleaned plain text. baseURL resolves relative links inside the
// document and may be empty.
func ExtractText(html string, baseURL string) (string, error) {
	trimmed := strings.TrimSpace(html)
	if trimmed == "" {
		return "", fmt.Errorf("html content is empty")
	}

	pageURL, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil || pageURL.Host == "" {
		pageURL = &url.URL{Scheme: "https", Host: "localhost"}
	}

	article, err := readability.FromReader(strings.NewReader(trimmed), pageURL)
	if err != nil {
		return "", fmt.Errorf("readability parse: %w", err)
	}

	var renderedText bytes.Buffer
	if err := article.RenderText(&renderedText); err != nil {
		return "", fmt.Errorf("render readability text: %w", err)
	}

	text := CleanText(renderedText.String())
	if text == "" {
		text = CleanText(article.Excerpt())
	}
	if text == "" {
		return "", fmt.Errorf("reader extracted empty content")
	}
	return text, nil
}

// CleanText normalizes line endings and collapses extra in-line whitespace.
func CleanText(raw string) string {
	normalized := strings.ReplaceAll(raw, "\r\n", "\n")
	normalized = strings.ReplaceAll(normalized, "\r", "\n")

	lines := strings.Split(normalized, "\n")
	paragraphs := make([]string, 0, len(lines))
	for _, line := range lines {
		clean := strings.Join(strings.Fields(strings.TrimSpace(line)), " ")
		if clean == "" {
			continue
		}
		paragraphs = append(paragraphs, clean)
	}

	return strings.TrimSpace(strings.Join(paragraphs, "\n\n"))
}
