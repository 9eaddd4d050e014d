package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/kozaktomas/attendance-engine/internal/config"
	"github.com/kozaktomas/attendance-engine/internal/database/postgres"
	"github.com/kozaktomas/attendance-engine/internal/database/sqlite"
	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending database migrations",
	Long: `Apply every pending schema migration of the configured driver.
Migrations also run automatically whenever a command opens storage.`,
	Args: cobra.NoArgs,
	RunE: runMigrate,
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}

func runMigrate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ctx := context.Background()

	if cfg.Database.Driver == config.DriverSQLite {
		db, err := sqlite.OpenDB(ctx, cfg.Database.SQLitePath)
		if err != nil {
			return fmt.Errorf("failed to migrate SQLite database: %w", err)
		}
		defer db.Close()
		fmt.Printf("SQLite database %s is up to date\n", cfg.Database.SQLitePath)
		return nil
	}

	if cfg.Database.URL == "" {
		return errors.New("DATABASE_URL environment variable is required")
	}
	pool, err := postgres.NewPool(&cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to create PostgreSQL pool: %w", err)
	}
	defer pool.Close()

	if err := pool.Migrate(ctx); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	versions, err := pool.MigrationsApplied(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("Applied migrations (%d):\n", len(versions))
	for _, v := range versions {
		fmt.Printf("  %s\n", v)
	}
	return nil
}
