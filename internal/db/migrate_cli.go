package db

import (
	"errors"
	"fmt"
	"io"
	"log"
)

// MigrateHelp describes the migrate subcommand.
const MigrateHelp = `Usage: neo -db <path> migrate <action>

Actions:
  up      Apply all pending migrations
  down    Roll back the most recent migration
  status  Show the current migration version
  help    Show this help
`

var errMigrateUsage = errors.New("missing migrate action")

// RunMigrateCommand handles the 'migrate' subcommand against the database
// at dbPath and prints the resulting schema version to out.
func RunMigrateCommand(out io.Writer, args []string, dbPath string) error {
	if len(args) < 1 {
		fmt.Fprint(out, MigrateHelp)
		return errMigrateUsage
	}

	action := args[0]
	if action == "help" {
		fmt.Fprint(out, MigrateHelp)
		return nil
	}

	// Open without running migrations: the action decides what to apply.
	database, err := OpenDB(dbPath)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer database.Close()

	switch action {
	case "up":
		log.Printf("Running migrations...")
		if err := database.MigrateUp(); err != nil {
			return err
		}
	case "down":
		log.Printf("Rolling back one migration...")
		if err := database.MigrateDown(); err != nil {
			return err
		}
	case "status":
	default:
		fmt.Fprint(out, MigrateHelp)
		return fmt.Errorf("unknown migrate action: %s", action)
	}

	version, dirty, err := database.MigrateVersion()
	if err != nil {
		return fmt.Errorf("failed to get migration status: %w", err)
	}
	fmt.Fprintf(out, "Current version: %d (dirty: %v)\n", version, dirty)
	if dirty {
		fmt.Fprintln(out, "WARNING: a migration failed mid-execution; inspect the database before retrying.")
	}
	return nil
}
