package app

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"github.com/drjforrest/taifa-dedup/internal/cli"
	"github.com/drjforrest/taifa-dedup/internal/config"
	"github.com/drjforrest/taifa-dedup/internal/db"
	"github.com/drjforrest/taifa-dedup/internal/dedup"
	"github.com/drjforrest/taifa-dedup/internal/engine"
	"github.com/drjforrest/taifa-dedup/internal/langdetect"
	"github.com/drjforrest/taifa-dedup/internal/logging"
	"github.com/drjforrest/taifa-dedup/internal/reader"
	mappingschema "github.com/drjforrest/taifa-dedup/schema"
)

const (
	outputFormatTable = "table"
	outputFormatJSON  = "json"
)

func parseOutputFormat(raw, defaultFormat string) (string, error) {
	format := strings.TrimSpace(strings.ToLower(raw))
	if format == "" {
		format = strings.TrimSpace(strings.ToLower(defaultFormat))
	}
	switch format {
	case outputFormatTable, outputFormatJSON:
		return format, nil
	default:
		return "", fmt.Errorf("--format must be table or json")
	}
}

func printJSON(value any) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(value)
}

func writeTable(headers []string, rows [][]string) error {
	writer := tabwriter.NewWriter(os.Stdout, 0, 8, 2, ' ', 0)
	if _, err := fmt.Fprintln(writer, strings.Join(headers, "\t")); err != nil {
		return err
	}
	for _, row := range rows {
		if _, err := fmt.Fprintln(writer, strings.Join(row, "\t")); err != nil {
			return err
		}
	}
	return writer.Flush()
}

func truncateForTable(value string, maxLen int) string {
	trimmed := strings.TrimSpace(value)
	if maxLen <= 0 {
		return trimmed
	}
	if utf8.RuneCountInString(trimmed) <= maxLen {
		return trimmed
	}

	runes := []rune(trimmed)
	if maxLen <= 3 {
		return string(runes[:maxLen])
	}
	return string(runes[:maxLen-3]) + "..."
}

func connectPool(timeout time.Duration, envLoader *cli.EnvLoader) (context.Context, context.CancelFunc, *config.Config, *db.Pool, zerolog.Logger, error) {
	if envLoader != nil {
		if _, err := envLoader.Load(); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
		}
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, nil, nil, nil, zerolog.Logger{}, fmt.Errorf("failed to load config: %w", err)
	}

	logger, err := logging.New(cfg.Environment, cfg.LogLevel)
	if err != nil {
		return nil, nil, nil, nil, zerolog.Logger{}, fmt.Errorf("failed to initialize logger: %w", err)
	}

	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	pool, err := db.NewPool(ctx, cfg)
	if err != nil {
		cancel()
		return nil, nil, nil, nil, zerolog.Logger{}, fmt.Errorf("failed to connect to database: %w", err)
	}

	return ctx, cancel, cfg, pool, logger, nil
}

// loadFieldMappings returns the configured per-table mappings: either the
// built-in defaults or a validated override file.
func loadFieldMappings(cfg *config.Config) (map[string]dedup.FieldMapping, error) {
	if strings.TrimSpace(cfg.FieldMappingPath) == "" {
		return dedup.DefaultFieldMappings(), nil
	}

	raw, err := os.ReadFile(cfg.FieldMappingPath)
	if err != nil {
		return nil, fmt.Errorf("read field mapping file: %w", err)
	}
	mappings, err := mappingschema.ValidateFieldMappings(raw)
	if err != nil {
		return nil, fmt.Errorf("validate field mapping file %s: %w", cfg.FieldMappingPath, err)
	}
	return mappings, nil
}

func newResolver(cfg *config.Config, logger zerolog.Logger) (*dedup.Resolver, error) {
	mappings, err := loadFieldMappings(cfg)
	if err != nil {
		return nil, err
	}

	fp := dedup.NewFingerprinter(mappings)
	fp.DetectLanguage = langdetect.DetectISO6391
	fp.ExtractHTML = func(html string) string {
		text, err := reader.ExtractText(html, "")
		if err != nil {
			return ""
		}
		return text
	}

	matcherCfg := dedup.MatcherConfig{
		FuzzyTitleThreshold: cfg.FuzzyThreshold,
		FuzzyTitleOverrides: cfg.FuzzyThresholdOverrides,
		KeyPhraseThreshold:  cfg.KeyPhraseThreshold,
		SemanticThreshold:   cfg.SemanticThreshold,
	}

	var backend dedup.SimilarityBackend
	if strings.TrimSpace(cfg.SemanticEndpoint) != "" {
		embedding, err := dedup.NewEmbeddingBackend(dedup.EmbeddingBackendOptions{
			Endpoint:       cfg.SemanticEndpoint,
			ModelName:      cfg.SemanticModelName,
			MaxLength:      cfg.SemanticMaxLength,
			RequestTimeout: cfg.SemanticRequestTimeout,
		})
		if err != nil {
			return nil, fmt.Errorf("configure embedding backend: %w", err)
		}
		backend = embedding
	}

	return dedup.NewResolver(fp, matcherCfg, backend, logger), nil
}

func newService(cfg *config.Config, pool *db.Pool, logger zerolog.Logger) (*engine.Service, error) {
	resolver, err := newResolver(cfg, logger)
	if err != nil {
		return nil, err
	}
	return engine.New(pool, pool, resolver, cfg.SourceTableList(), cfg.ScanMaxRecordsPerTable, logger)
}
