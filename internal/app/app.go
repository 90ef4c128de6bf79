package app

import (
	"fmt"
	"os"
	"strings"
)

// Run executes the CLI command and returns a process exit code.
func Run(args []string) int {
	if len(args) == 0 {
		printUsage()
		return 2
	}

	switch strings.ToLower(strings.TrimSpace(args[0])) {
	case "help", "--help", "-h":
		printUsage()
		return 0
	case "health":
		return runHealth(args[1:])
	case "scan":
		return runScan(args[1:])
	case "check":
		return runCheck(args[1:])
	case "duplicates":
		return runDuplicates(args[1:])
	case "stats":
		return runStats(args[1:])
	case "mark-status":
		return runMarkStatus(args[1:])
	case "validate-mapping":
		return runValidateMapping(args[1:])
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", args[0])
		printUsage()
		return 2
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "taifa-dedup CLI")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Usage:")
	fmt.Fprintln(os.Stderr, "  taifa-dedup <command> [flags]")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Commands:")
	fmt.Fprintln(os.Stderr, "  health            Verify database connectivity")
	fmt.Fprintln(os.Stderr, "  scan              Run a full duplicate sweep over the source tables")
	fmt.Fprintln(os.Stderr, "  check             Detect duplicates for one stored record")
	fmt.Fprintln(os.Stderr, "  duplicates        List persisted duplicate records")
	fmt.Fprintln(os.Stderr, "  stats             Show duplicate graph statistics")
	fmt.Fprintln(os.Stderr, "  mark-status       Move a duplicate record between review states")
	fmt.Fprintln(os.Stderr, "  validate-mapping  Validate a field-mapping JSON file")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Use \"taifa-dedup <command> -h\" for command-specific flags.")
}
