package db

import (
	"fmt"
	"io"
	"strconv"
)

// RunMigrateCommand handles the 'migrate' subcommand. Output goes to w.
func RunMigrateCommand(w io.Writer, args []string, dbPath string) error {
	if len(args) < 1 {
		PrintMigrateHelp(w)
		return fmt.Errorf("migrate: missing action")
	}
	action := args[0]
	if action == "help" {
		PrintMigrateHelp(w)
		return nil
	}

	// Open without migrating: the migrations manage the schema.
	database, err := OpenDB(dbPath)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer database.Close()

	switch action {
	case "up":
		if err := database.MigrateUp(); err != nil {
			return err
		}
		fmt.Fprintln(w, "✓ All migrations applied successfully")
	case "down":
		if err := database.MigrateDown(); err != nil {
			return err
		}
		fmt.Fprintln(w, "✓ Rolled back one migration")
	case "status":
		st, err := database.GetMigrationStatus()
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "Current version: %d\n", st.Current)
		fmt.Fprintf(w, "Latest version:  %d\n", st.Latest)
		switch {
		case st.Dirty:
			fmt.Fprintln(w, "State: DIRTY (fix the failed migration, then run 'migrate force <version>')")
		case st.Pending():
			fmt.Fprintf(w, "State: %d migration(s) pending\n", st.Latest-st.Current)
		default:
			fmt.Fprintln(w, "State: up to date")
		}
	case "version":
		v, err := versionArg(args, "version")
		if err != nil {
			return err
		}
		if err := database.MigrateTo(uint(v)); err != nil {
			return err
		}
		fmt.Fprintf(w, "✓ Migrated to version %d\n", v)
	case "force":
		v, err := versionArg(args, "force")
		if err != nil {
			return err
		}
		if err := database.MigrateForce(v); err != nil {
			return err
		}
		fmt.Fprintf(w, "✓ Forced version to %d\n", v)
	default:
		PrintMigrateHelp(w)
		return fmt.Errorf("unknown migrate action: %s", action)
	}
	return nil
}

func versionArg(args []string, action string) (int, error) {
	if len(args) < 2 {
		return 0, fmt.Errorf("usage: marker-tool migrate %s <version_number>", action)
	}
	v, err := strconv.Atoi(args[1])
	if err != nil || v < 0 {
		return 0, fmt.Errorf("invalid version %q", args[1])
	}
	return v, nil
}

// PrintMigrateHelp prints usage for the migrate subcommand.
func PrintMigrateHelp(w io.Writer) {
	fmt.Fprint(w, `Usage: marker-tool migrate <action> [args]

Actions:
  up                 Apply all pending migrations
  down               Roll back the most recent migration
  status             Show current and latest schema versions
  version <n>        Migrate up or down to version n
  force <n>          Record version n without running migrations (recovery only)
  help               Show this help
`)
}
