package db

import (
	"fmt"
	"io"
	"strconv"
)

const migrateHelp = `Usage: servocam migrate <action> [args]

Actions:
  up             apply all pending migrations
  down           roll back the most recent migration
  status         print the current schema version
  force <N>      mark the schema as version N without running migrations
  help           show this message
`

// RunMigrateCommand handles the migrate subcommand.
func RunMigrateCommand(args []string, dbPath string, out io.Writer) error {
	if len(args) < 1 || args[0] == "help" {
		io.WriteString(out, migrateHelp)
		if len(args) < 1 {
			return fmt.Errorf("missing migrate action")
		}
		return nil
	}

	database, err := OpenDB(dbPath)
	if err != nil {
		return err
	}
	defer database.Close()

	switch action := args[0]; action {
	case "up":
		if err := database.MigrateUp(); err != nil {
			return err
		}
	case "down":
		if err := database.MigrateDown(); err != nil {
			return err
		}
	case "status":
	case "force":
		if len(args) < 2 {
			return fmt.Errorf("usage: servocam migrate force <version>")
		}
		v, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("invalid version %q: %w", args[1], err)
		}
		if err := database.MigrateForce(v); err != nil {
			return err
		}
	default:
		io.WriteString(out, migrateHelp)
		return fmt.Errorf("unknown migrate action %q", action)
	}

	version, dirty, err := database.MigrateVersion()
	if err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}
	fmt.Fprintf(out, "schema version %d (dirty: %v)\n", version, dirty)
	return nil
}
