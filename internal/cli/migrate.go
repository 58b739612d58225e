package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/lherron/gnosmerge/internal/cli/appctx"
	"github.com/lherron/gnosmerge/internal/db"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Run any pending ledger migrations",
	Long: `Migrate applies any pending SQL migrations to the run ledger.

Migrations are embedded in the gnosmerge binary and tracked via the
schema_migrations table. Each migration file is applied exactly once, so
this command is safe to run multiple times.

Use --dry-run to see which migrations would be applied without running them.
Use --status to show the current migration status.`,
	Args: cobra.NoArgs,
	RunE: appctx.WithApp(appctx.Options{}, runMigrate),
}

var (
	migrateDryRun bool
	migrateStatus bool
)

func init() {
	rootCmd.AddCommand(migrateCmd)

	migrateCmd.Flags().BoolVar(&migrateDryRun, "dry-run", false, "Show which migrations would be applied without running them")
	migrateCmd.Flags().BoolVar(&migrateStatus, "status", false, "Show current migration status")
}

func runMigrate(app *appctx.App, cmd *cobra.Command, args []string) error {
	if app.Config.LedgerPath == "" {
		return fmt.Errorf("ledger path not specified (use --ledger or set GNOSMERGE_LEDGER_PATH)")
	}

	database, err := db.Open(app.Config.LedgerPath)
	if err != nil {
		return fmt.Errorf("failed to open ledger: %w", err)
	}
	defer database.Close()

	w := cmd.OutOrStdout()
	if migrateStatus {
		return showMigrationStatus(w, database)
	}
	if migrateDryRun {
		return showPendingMigrations(w, database)
	}

	applied, err := database.MigrateWithInfo()
	if err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	if len(applied) == 0 {
		fmt.Fprintln(w, "Ledger is up to date. No migrations to apply.")
	} else {
		for _, m := range applied {
			fmt.Fprintf(w, "✓ Applied migration: %s\n", m)
		}
		fmt.Fprintf(w, "\nApplied %s.\n", pluralize(len(applied), "migration"))
	}

	return nil
}

func showMigrationStatus(w io.Writer, database *db.DB) error {
	applied, pending, err := database.MigrationStatus()
	if err != nil {
		return fmt.Errorf("failed to get migration status: %w", err)
	}

	if len(applied) == 0 && len(pending) == 0 {
		fmt.Fprintln(w, "No migrations found.")
		return nil
	}

	if len(applied) > 0 {
		fmt.Fprintln(w, "Applied migrations:")
		for _, m := range applied {
			fmt.Fprintf(w, "  ✓ %s\n", m)
		}
	}

	if len(pending) > 0 {
		if len(applied) > 0 {
			fmt.Fprintln(w)
		}
		fmt.Fprintln(w, "Pending migrations:")
		for _, m := range pending {
			fmt.Fprintf(w, "  ○ %s\n", m)
		}
	}

	return nil
}

func showPendingMigrations(w io.Writer, database *db.DB) error {
	_, pending, err := database.MigrationStatus()
	if err != nil {
		return fmt.Errorf("failed to get migration status: %w", err)
	}

	if len(pending) == 0 {
		fmt.Fprintln(w, "No pending migrations. Ledger is up to date.")
		return nil
	}

	fmt.Fprintln(w, "Pending migrations (would be applied):")
	for _, m := range pending {
		fmt.Fprintf(w, "  ○ %s\n", m)
	}
	fmt.Fprintf(w, "\nTotal: %s would be applied.\n", pluralize(len(pending), "migration"))

	return nil
}
