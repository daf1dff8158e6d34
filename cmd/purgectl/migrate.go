package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"attachpurge/backend/internal/app"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the database schema",
	Long: `Create or update the spaces, attachments and retention_policies tables
in the configured database. Safe to run repeatedly.

Examples:
  ATTACHPURGE_DATABASE_TYPE=postgres \
  ATTACHPURGE_DATABASE_DSN='postgres://wiki:secret@db/wiki?sslmode=disable' \
  purgectl migrate`,
	RunE: migrate,
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}

func migrate(cmd *cobra.Command, args []string) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}
	defer log.Sync()

	if cfg.Database.UsesMemoryStore() {
		return fmt.Errorf("database.type is not set, nothing to migrate")
	}

	st, err := app.OpenStorage(cfg, log)
	if err != nil {
		return err
	}
	defer st.Close()

	if err := st.SQL.Migrate(); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "schema is up to date (%s)\n", st.SQL.Driver())
	return nil
}
