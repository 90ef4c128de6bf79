package app

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/drjforrest/taifa-dedup/internal/cli"
	"github.com/drjforrest/taifa-dedup/internal/db"
)

func runMarkStatus(args []string) int {
	fs := flag.NewFlagSet("mark-status", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	timeout := fs.Duration("timeout", 30*time.Second, "Command timeout")
	id := fs.String("id", "", "Duplicate record ID (required)")
	status := fs.String("status", "", "New status: active, resolved or false_positive (required)")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if fs.NArg() != 0 {
		fmt.Fprintln(os.Stderr, "mark-status does not accept positional arguments")
		return 2
	}
	if strings.TrimSpace(*id) == "" || strings.TrimSpace(*status) == "" {
		fmt.Fprintln(os.Stderr, "mark-status requires --id and --status")
		return 2
	}

	ctx, cancel, _, pool, logger, err := connectPool(*timeout, envLoader)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer cancel()
	defer pool.Close()

	if err := pool.UpdateDuplicateStatus(ctx, *id, *status); err != nil {
		if db.IsNoRows(err) {
			fmt.Fprintf(os.Stderr, "No duplicate record with id %s\n", *id)
			return 1
		}
		logger.Error().Err(err).Str("id", *id).Msg("status update failed")
		fmt.Fprintf(os.Stderr, "Failed to update status: %v\n", err)
		return 1
	}

	fmt.Printf("updated duplicate %s to %s\n", *id, *status)
	return 0
}
