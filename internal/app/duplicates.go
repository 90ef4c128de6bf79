package app

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/drjforrest/taifa-dedup/internal/cli"
	"github.com/drjforrest/taifa-dedup/internal/db"
)

func runDuplicates(args []string) int {
	fs := flag.NewFlagSet("duplicates", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	timeout := fs.Duration("timeout", 30*time.Second, "Command timeout")
	table := fs.String("table", "", "Filter by source or target table")
	matchType := fs.String("match-type", "", "Filter by match type")
	status := fs.String("status", "active", "Filter by status: active, resolved, false_positive or all")
	minConfidence := fs.Float64("min-confidence", 0, "Minimum confidence score")
	limit := fs.Int("limit", 100, "Maximum rows to return")
	offset := fs.Int("offset", 0, "Rows to skip")
	format := fs.String("format", outputFormatTable, "Output format: table or json")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if fs.NArg() != 0 {
		fmt.Fprintln(os.Stderr, "duplicates does not accept positional arguments")
		return 2
	}

	outputFormat, err := parseOutputFormat(*format, outputFormatTable)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid format: %v\n", err)
		return 2
	}

	ctx, cancel, _, pool, _, err := connectPool(*timeout, envLoader)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer cancel()
	defer pool.Close()

	listings, total, err := pool.ListDuplicates(ctx, db.DuplicateFilters{
		Table:         *table,
		MatchType:     *matchType,
		Status:        *status,
		MinConfidence: *minConfidence,
		Limit:         *limit,
		Offset:        *offset,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to list duplicates: %v\n", err)
		return 1
	}

	if outputFormat == outputFormatJSON {
		if err := printJSON(map[string]any{"total": total, "duplicates": listings}); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to encode JSON: %v\n", err)
			return 1
		}
		return 0
	}

	rows := make([][]string, 0, len(listings))
	for _, row := range listings {
		rows = append(rows, []string{
			row.ID,
			row.SourceTable + ":" + row.SourceID,
			row.TargetTable + ":" + row.TargetID,
			row.MatchType,
			fmt.Sprintf("%.3f", row.Confidence),
			row.Status,
			row.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	if err := writeTable([]string{"id", "source", "target", "match_type", "confidence", "status", "created_at"}, rows); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to render table: %v\n", err)
		return 1
	}

	fmt.Printf("\n%d of %d duplicate records\n", len(listings), total)
	return 0
}
