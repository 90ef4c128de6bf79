package app

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"sort"

	"github.com/drjforrest/taifa-dedup/internal/dedup"
	mappingschema "github.com/drjforrest/taifa-dedup/schema"
)

func runValidateMapping(args []string) int {
	fs := flag.NewFlagSet("validate-mapping", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if fs.NArg() == 0 {
		fmt.Fprintln(os.Stderr, "validate-mapping requires at least one JSON file argument")
		return 2
	}

	failures := 0
	for _, path := range fs.Args() {
		raw, err := os.ReadFile(path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "FAIL %s: %v\n", path, err)
			failures++
			continue
		}

		mappings, err := mappingschema.ValidateFieldMappings(raw)
		if err != nil {
			fmt.Fprintf(os.Stderr, "FAIL %s: %v\n", path, err)
			failures++
			continue
		}

		fmt.Printf("ok %s: %d table mapping(s)\n", path, len(mappings))
		for _, table := range sortedTables(mappings) {
			mapping := mappings[table]
			fmt.Printf("  %s: title=%s descriptions=%d urls=%d\n",
				table, mapping.TitleField, len(mapping.DescriptionFields), len(mapping.URLFields))
		}
	}

	if failures > 0 {
		fmt.Fprintf(os.Stderr, "%d file(s) failed validation\n", failures)
		return 1
	}
	return 0
}

func sortedTables(mappings map[string]dedup.FieldMapping) []string {
	tables := make([]string, 0, len(mappings))
	for table := range mappings {
		tables = append(tables, table)
	}
	sort.Strings(tables)
	return tables
}
