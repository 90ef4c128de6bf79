package app

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/drjforrest/taifa-dedup/internal/cli"
)

func runScan(args []string) int {
	fs := flag.NewFlagSet("scan", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	timeout := fs.Duration("timeout", 15*time.Minute, "Command timeout")
	tablesFlag := fs.String("tables", "", "Comma-separated tables to scan (default: all configured)")
	maxPerTable := fs.Int("max-per-table", 0, "Max records to load per table (default: configured limit)")
	format := fs.String("format", outputFormatTable, "Output format: table or json")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if fs.NArg() != 0 {
		fmt.Fprintln(os.Stderr, "scan does not accept positional arguments")
		return 2
	}

	outputFormat, err := parseOutputFormat(*format, outputFormatTable)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid format: %v\n", err)
		return 2
	}

	var tables []string
	for _, raw := range strings.Split(*tablesFlag, ",") {
		if table := strings.TrimSpace(raw); table != "" {
			tables = append(tables, table)
		}
	}

	ctx, cancel, cfg, pool, logger, err := connectPool(*timeout, envLoader)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer cancel()
	defer pool.Close()

	service, err := newService(cfg, pool, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to build dedup service: %v\n", err)
		return 1
	}

	report, err := service.RunFullScan(ctx, tables, *maxPerTable)
	if err != nil {
		logger.Error().Err(err).Msg("full scan failed")
		fmt.Fprintf(os.Stderr, "Scan failed: %v\n", err)
		return 1
	}

	if outputFormat == outputFormatJSON {
		if err := printJSON(report); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to encode JSON: %v\n", err)
			return 1
		}
		return 0
	}

	tableNames := make([]string, 0, len(report.TablesScanned))
	for table := range report.TablesScanned {
		tableNames = append(tableNames, table)
	}
	sort.Strings(tableNames)

	rows := make([][]string, 0, len(tableNames))
	for _, table := range tableNames {
		status := "scanned"
		if reason, skipped := report.SkippedTables[table]; skipped {
			status = "skipped: " + truncateForTable(reason, 60)
		}
		rows = append(rows, []string{
			table,
			fmt.Sprintf("%d", report.TablesScanned[table]),
			fmt.Sprintf("%d", report.DuplicatesByTable[table]),
			status,
		})
	}
	if err := writeTable([]string{"table", "records", "duplicates", "status"}, rows); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to render table: %v\n", err)
		return 1
	}

	fmt.Printf("\nscanned %d records, found %d duplicates, skipped %d records in %s\n",
		report.RecordsScanned,
		report.DuplicatesFound,
		report.SkippedRecords,
		report.FinishedAt.Sub(report.StartedAt).Round(time.Millisecond))
	return 0
}
