package mappingschema

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/drjforrest/taifa-dedup/internal/dedup"
)

//go:embed fieldmap.schema.json
var fieldMapSchemaJSON string

var (
	compileOnce       sync.Once
	compiledSchema    *jsonschema.Schema
	compiledSchemaErr error
)

// ValidateFieldMappings checks a field-mapping document against the
// embedded schema and decodes it into per-table mappings.
func ValidateFieldMappings(payload json.RawMessage) (map[string]dedup.FieldMapping, error) {
	value, err := decodeStrictJSON(payload)
	if err != nil {
		return nil, fmt.Errorf("decode field mapping JSON: %w", err)
	}

	schema, err := loadSchema()
	if err != nil {
		return nil, fmt.Errorf("load schema: %w", err)
	}

	if err := schema.Validate(value); err != nil {
		return nil, fmt.Errorf("schema validation failed: %w", err)
	}

	normalized, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("normalize field mapping JSON: %w", err)
	}

	var mappings map[string]dedup.FieldMapping
	if err := json.Unmarshal(normalized, &mappings); err != nil {
		return nil, fmt.Errorf("unmarshal field mappings: %w", err)
	}

	if err := validateSemantics(mappings); err != nil {
		return nil, err
	}

	return mappings, nil
}

func loadSchema() (*jsonschema.Schema, error) {
	compileOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		compiler.Draft = jsonschema.Draft2020

		if err := compiler.AddResource("fieldmap.schema.json", strings.NewReader(fieldMapSchemaJSON)); err != nil {
			compiledSchemaErr = fmt.Errorf("add schema resource: %w", err)
			return
		}

		schema, err := compiler.Compile("fieldmap.schema.json")
		if err != nil {
			compiledSchemaErr = fmt.Errorf("compile schema: %w", err)
			return
		}

		compiledSchema = schema
	})

	if compiledSchemaErr != nil {
		return nil, compiledSchemaErr
	}
	if compiledSchema == nil {
		return nil, fmt.Errorf("schema not initialized")
	}
	return compiledSchema, nil
}

func decodeStrictJSON(raw []byte) (any, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("document is empty")
	}

	decoder := json.NewDecoder(bytes.NewReader(trimmed))
	decoder.UseNumber()

	var value any
	if err := decoder.Decode(&value); err != nil {
		return nil, err
	}

	if err := decoder.Decode(&struct{}{}); err != io.EOF {
		return nil, fmt.Errorf("document contains trailing content")
	}

	return value, nil
}

func validateSemantics(mappings map[string]dedup.FieldMapping) error {
	for table, mapping := range mappings {
		if strings.TrimSpace(mapping.TitleField) == "" {
			return fmt.Errorf("table %s: title_field must not be empty", table)
		}
		seen := make(map[string]struct{})
		for _, field := range append(append([]string{mapping.TitleField}, mapping.DescriptionFields...), mapping.URLFields...) {
			if strings.TrimSpace(field) == "" {
				return fmt.Errorf("table %s: field names must not be blank", table)
			}
			if _, dup := seen[field]; dup {
				return fmt.Errorf("table %s: field %s listed more than once", table, field)
			}
			seen[field] = struct{}{}
		}
	}
	return nil
}
