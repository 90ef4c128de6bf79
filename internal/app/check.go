package app

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/drjforrest/taifa-dedup/internal/cli"
	"github.com/drjforrest/taifa-dedup/internal/dedup"
)

func runCheck(args []string) int {
	fs := flag.NewFlagSet("check", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	timeout := fs.Duration("timeout", 2*time.Minute, "Command timeout")
	table := fs.String("table", "", "Source table of the record (required)")
	id := fs.String("id", "", "Record ID (required)")
	mark := fs.Bool("mark", false, "Persist the strongest match as a duplicate record")
	format := fs.String("format", outputFormatTable, "Output format: table or json")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if fs.NArg() != 0 {
		fmt.Fprintln(os.Stderr, "check does not accept positional arguments")
		return 2
	}
	if strings.TrimSpace(*table) == "" || strings.TrimSpace(*id) == "" {
		fmt.Fprintln(os.Stderr, "check requires --table and --id")
		return 2
	}

	outputFormat, err := parseOutputFormat(*format, outputFormatTable)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid format: %v\n", err)
		return 2
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

	result, err := service.ProcessAndMark(ctx, *table, *id, *mark)
	if err != nil {
		if dedup.IsMalformedRecord(err) {
			fmt.Fprintf(os.Stderr, "Record has no comparable content: %v\n", err)
			return 1
		}
		logger.Error().Err(err).Msg("duplicate check failed")
		fmt.Fprintf(os.Stderr, "Check failed: %v\n", err)
		return 1
	}

	if outputFormat == outputFormatJSON {
		if err := printJSON(result); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to encode JSON: %v\n", err)
			return 1
		}
		return 0
	}

	if len(result.Matches) == 0 {
		fmt.Printf("no duplicates found for %s:%s\n", *table, *id)
		return 0
	}

	rows := make([][]string, 0, len(result.Matches))
	for _, match := range result.Matches {
		rows = append(rows, []string{
			match.TargetTable + ":" + match.TargetID,
			string(match.MatchType),
			fmt.Sprintf("%.3f", match.Confidence),
			string(match.Action),
			strings.Join(match.MatchingFields, ","),
			truncateForTable(match.Reason, 50),
		})
	}
	if err := writeTable([]string{"target", "match_type", "confidence", "action", "fields", "reason"}, rows); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to render table: %v\n", err)
		return 1
	}

	if result.MarkedDuplicateID != "" {
		fmt.Printf("\nmarked duplicate %s\n", result.MarkedDuplicateID)
	}
	return 0
}
