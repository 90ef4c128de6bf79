package app

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/drjforrest/taifa-dedup/internal/cli"
)

func runStats(args []string) int {
	fs := flag.NewFlagSet("stats", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	timeout := fs.Duration("timeout", 30*time.Second, "Command timeout")
	format := fs.String("format", outputFormatTable, "Output format: table or json")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if fs.NArg() != 0 {
		fmt.Fprintln(os.Stderr, "stats does not accept positional arguments")
		return 2
	}

	outputFormat, err := parseOutputFormat(*format, outputFormatTable)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid format: %v\n", err)
		return 2
	}

	ctx, cancel, cfg, pool, _, err := connectPool(*timeout, envLoader)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer cancel()
	defer pool.Close()

	stats, err := pool.QueryDuplicateStats(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to query duplicate stats: %v\n", err)
		return 1
	}

	nonDuplicates := make(map[string]int64, len(cfg.SourceTableList()))
	for _, table := range cfg.SourceTableList() {
		count, err := pool.NonDuplicateCount(ctx, table)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to count non-duplicates in %s: %v\n", table, err)
			return 1
		}
		nonDuplicates[table] = count
	}

	if outputFormat == outputFormatJSON {
		if err := printJSON(map[string]any{"duplicates": stats, "non_duplicates": nonDuplicates}); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to encode JSON: %v\n", err)
			return 1
		}
		return 0
	}

	rows := [][]string{{"total_active", fmt.Sprintf("%d", stats.Total)}}
	rows = append(rows, countRows("match_type", stats.ByMatchType)...)
	rows = append(rows, countRows("table", stats.ByTable)...)
	rows = append(rows, countRows("confidence", stats.ByConfidenceBand)...)
	rows = append(rows, countRows("clean", nonDuplicates)...)

	if err := writeTable([]string{"metric", "value"}, rows); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to render table: %v\n", err)
		return 1
	}
	return 0
}

func countRows(prefix string, counts map[string]int64) [][]string {
	keys := make([]string, 0, len(counts))
	for key := range counts {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	rows := make([][]string, 0, len(keys))
	for _, key := range keys {
		rows = append(rows, []string{prefix + ":" + key, fmt.Sprintf("%d", counts[key])})
	}
	return rows
}
