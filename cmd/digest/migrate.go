package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/golang-migrate/migrate/v4"
	"github.com/spf13/cobra"

	"daily-digest/internal/infra/db"
	"daily-digest/internal/observability/logging"
)

var migrateDown bool

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply the database schema",
	Long: `Apply the embedded migrations to DATABASE_URL.

Examples:
  digest migrate
  digest migrate --down   # roll back one migration`,
	Args: cobra.NoArgs,
	RunE: runMigrate,
}

func init() {
	migrateCmd.Flags().BoolVar(&migrateDown, "down", false, "roll back the most recent migration instead")
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	logger := logging.NewLogger()

	database, err := db.Open(cmd.Context(), os.Getenv("DATABASE_URL"))
	if err != nil {
		return err
	}
	defer func() {
		if err := database.Close(); err != nil {
			logger.Error("failed to close database", slog.Any("error", err))
		}
	}()

	if !migrateDown {
		return db.MigrateUp(database)
	}

	m, err := db.NewMigrator(database)
	if err != nil {
		return err
	}
	if err := m.Steps(-1); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("roll back migration: %w", err)
	}
	logger.Info("rolled back one migration")
	return nil
}
