package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Environment string `envconfig:"ENVIRONMENT" default:"local"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	DatabaseURL string `envconfig:"DATABASE_URL" required:"true"`
	DBMinConns  int32  `envconfig:"DEDUP_DB_MIN_CONNS" default:"1"`
	DBMaxConns  int32  `envconfig:"DEDUP_DB_MAX_CONNS" default:"8"`

	SourceTables []string `envconfig:"DEDUP_SOURCE_TABLES" default:"publications,articles,innovations"`

	FuzzyThreshold          float64            `envconfig:"DEDUP_FUZZY_THRESHOLD" default:"0.85"`
	FuzzyThresholdOverrides map[string]float64 `envconfig:"DEDUP_FUZZY_THRESHOLD_OVERRIDES" default:"innovations:0.80"`
	KeyPhraseThreshold      float64            `envconfig:"DEDUP_KEY_PHRASE_THRESHOLD" default:"0.8"`
	SemanticThreshold       float64            `envconfig:"DEDUP_SEMANTIC_THRESHOLD" default:"0.87"`

	// Empty endpoint means the semantic matcher is disabled.
	SemanticEndpoint       string        `envconfig:"DEDUP_SEMANTIC_ENDPOINT" default:""`
	SemanticModelName      string        `envconfig:"DEDUP_SEMANTIC_MODEL" default:""`
	SemanticMaxLength      int           `envconfig:"DEDUP_SEMANTIC_MAX_LENGTH" default:"512"`
	SemanticRequestTimeout time.Duration `envconfig:"DEDUP_SEMANTIC_REQUEST_TIMEOUT" default:"45s"`

	ScanMaxRecordsPerTable int `envconfig:"DEDUP_SCAN_MAX_RECORDS" default:"500"`

	// Optional JSON file overriding the built-in per-table field mappings.
	FieldMappingPath string `envconfig:"DEDUP_FIELD_MAPPING_PATH" default:""`
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.DatabaseURL) == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.DBMinConns < 0 {
		return fmt.Errorf("DEDUP_DB_MIN_CONNS must be >= 0")
	}
	if c.DBMaxConns < 1 {
		return fmt.Errorf("DEDUP_DB_MAX_CONNS must be >= 1")
	}
	if c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("DEDUP_DB_MIN_CONNS (%d) cannot exceed DEDUP_DB_MAX_CONNS (%d)", c.DBMinConns, c.DBMaxConns)
	}
	if len(c.SourceTableList()) == 0 {
		return fmt.Errorf("DEDUP_SOURCE_TABLES must name at least one table")
	}
	for name, value := range map[string]float64{
		"DEDUP_FUZZY_THRESHOLD":      c.FuzzyThreshold,
		"DEDUP_KEY_PHRASE_THRESHOLD": c.KeyPhraseThreshold,
		"DEDUP_SEMANTIC_THRESHOLD":   c.SemanticThreshold,
	} {
		if value <= 0 || value > 1 {
			return fmt.Errorf("%s must be in (0,1], got %f", name, value)
		}
	}
	for table, value := range c.FuzzyThresholdOverrides {
		if value <= 0 || value > 1 {
			return fmt.Errorf("DEDUP_FUZZY_THRESHOLD_OVERRIDES[%s] must be in (0,1], got %f", table, value)
		}
	}
	if c.ScanMaxRecordsPerTable < 1 {
		return fmt.Errorf("DEDUP_SCAN_MAX_RECORDS must be >= 1")
	}
	return nil
}

// SourceTableList returns the configured source tables trimmed and
// de-duplicated, preserving order.
func (c *Config) SourceTableList() []string {
	if c == nil {
		return nil
	}

	tables := make([]string, 0, len(c.SourceTables))
	seen := make(map[string]struct{}, len(c.SourceTables))
	for _, raw := range c.SourceTables {
		table := strings.ToLower(strings.TrimSpace(raw))
		if table == "" {
			continue
		}
		if _, exists := seen[table]; exists {
			continue
		}
		seen[table] = struct{}{}
		tables = append(tables, table)
	}
	return tables
}
