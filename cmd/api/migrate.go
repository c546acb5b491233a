package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/spec-kit/ticket-lifecycle/internal/persistence"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Run database migrations",
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply all pending migrations",
	RunE:  runMigrateUp,
}

var migrateStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "List migrations and whether they are applied",
	RunE:  runMigrateStatus,
}

func init() {
	migrateCmd.AddCommand(migrateUpCmd)
	migrateCmd.AddCommand(migrateStatusCmd)
}

func runMigrateUp(cmd *cobra.Command, _ []string) error {
	app, err := bootstrap(cmd.Context(), bootstrapOptions{requireDatabase: true})
	if err != nil {
		return err
	}
	defer app.Close()

	if err := persistence.RunMigrations(cmd.Context(), app.pg.Pool(), app.logger); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), "migrate up: ok")
	return nil
}

func runMigrateStatus(cmd *cobra.Command, _ []string) error {
	app, err := bootstrap(cmd.Context(), bootstrapOptions{requireDatabase: true})
	if err != nil {
		return err
	}
	defer app.Close()

	statuses, err := persistence.MigrationStatuses(cmd.Context(), app.pg.Pool())
	if err != nil {
		return fmt.Errorf("migrate status: %w", err)
	}
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "VERSION\tAPPLIED\tFILE")
	for _, s := range statuses {
		fmt.Fprintf(w, "%d\t%t\t%s\n", s.Version, s.Applied, s.Path)
	}
	return w.Flush()
}
