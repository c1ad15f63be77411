package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/migrate"

	"github.com/sriramreddyM/coco-annotator/internal/db/bunx"
	"github.com/sriramreddyM/coco-annotator/internal/migrations"
)

var dbCmd = &cobra.Command{
	Use:   "db",
	Short: "Database management commands",
	Long:  `Commands for managing database migrations and schema.`,
}

var dbInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize migration tables",
	Long:  `Creates the migration tracking tables in the database. Run this once during initial setup.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		db, migrator, err := openMigrator()
		if err != nil {
			return err
		}
		defer bunx.Close(db)

		ctx := cmd.Context()
		if err := migrator.Init(ctx); err != nil {
			return fmt.Errorf("failed to initialize migrator: %w", err)
		}

		logger.Info("migration tables initialized")
		return nil
	},
}

var dbMigrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Run database migrations",
	Long:  `Applies all pending migrations to the database with locking to prevent concurrent migrations.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		db, migrator, err := openMigrator()
		if err != nil {
			return err
		}
		defer bunx.Close(db)

		ctx := cmd.Context()

		// Acquire lock to prevent concurrent migrations
		if err := migrator.Lock(ctx); err != nil {
			return fmt.Errorf("failed to acquire migration lock: %w", err)
		}
		defer func() {
			if err := migrator.Unlock(ctx); err != nil {
				logger.Warn("failed to release migration lock", "error", err)
			}
		}()

		group, err := migrator.Migrate(ctx)
		if err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}

		if group.ID == 0 {
			logger.Info("no new migrations to apply")
		} else {
			logger.Info("applied migration group", "group", group.ID)
		}

		return nil
	},
}

var dbStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show migration status",
	Long:  `Displays the current migration status and pending migrations.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		db, migrator, err := openMigrator()
		if err != nil {
			return err
		}
		defer bunx.Close(db)

		ctx := cmd.Context()
		ms, err := migrator.MigrationsWithStatus(ctx)
		if err != nil {
			return fmt.Errorf("failed to get migration status: %w", err)
		}

		fmt.Println("Migrations:")
		for _, m := range ms {
			status := "pending"
			if m.GroupID > 0 {
				status = fmt.Sprintf("applied (group %d)", m.GroupID)
			}
			fmt.Printf("  %s: %s\n", m.Name, status)
		}

		return nil
	},
}

var dbRollbackCmd = &cobra.Command{
	Use:   "rollback",
	Short: "Rollback last migration group",
	Long:  `Rolls back the most recently applied migration group with locking to prevent concurrent operations.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		db, migrator, err := openMigrator()
		if err != nil {
			return err
		}
		defer bunx.Close(db)

		ctx := cmd.Context()

		// Acquire lock to prevent concurrent rollbacks
		if err := migrator.Lock(ctx); err != nil {
			return fmt.Errorf("failed to acquire migration lock: %w", err)
		}
		defer func() {
			if err := migrator.Unlock(ctx); err != nil {
				logger.Warn("failed to release migration lock", "error", err)
			}
		}()

		group, err := migrator.Rollback(ctx)
		if err != nil {
			return fmt.Errorf("rollback failed: %w", err)
		}

		if group.ID == 0 {
			logger.Info("no migrations to roll back")
		} else {
			logger.Info("rolled back migration group", "group", group.ID)
		}

		return nil
	},
}

var dbLockCmd = &cobra.Command{
	Use:   "lock",
	Short: "Manually acquire migration lock",
	Long:  `Acquires the migration lock. Useful for debugging or maintenance operations.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		db, migrator, err := openMigrator()
		if err != nil {
			return err
		}
		defer bunx.Close(db)

		ctx := cmd.Context()
		if err := migrator.Lock(ctx); err != nil {
			return fmt.Errorf("failed to acquire migration lock: %w", err)
		}

		logger.Info("migration lock acquired; run 'db unlock' when finished")
		return nil
	},
}

var dbUnlockCmd = &cobra.Command{
	Use:   "unlock",
	Short: "Force release migration lock",
	Long:  `Force releases the migration lock. Use this if a migration crashed while holding the lock.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		db, migrator, err := openMigrator()
		if err != nil {
			return err
		}
		defer bunx.Close(db)

		ctx := cmd.Context()
		if err := migrator.Unlock(ctx); err != nil {
			return fmt.Errorf("failed to release migration lock: %w", err)
		}

		logger.Info("migration lock released")
		return nil
	},
}

// openMigrator connects to the configured database and prepares a migrator
// over the registered migrations.
func openMigrator() (*bun.DB, *migrate.Migrator, error) {
	db, err := bunx.NewDB(cfg.DatabaseURL, bunx.WithMaxOpenConns(cfg.MaxDBConnections))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, migrate.NewMigrator(db, migrations.Migrations), nil
}

func init() {
	rootCmd.AddCommand(dbCmd)
	dbCmd.AddCommand(dbInitCmd)
	dbCmd.AddCommand(dbMigrateCmd)
	dbCmd.AddCommand(dbStatusCmd)
	dbCmd.AddCommand(dbRollbackCmd)
	dbCmd.AddCommand(dbLockCmd)
	dbCmd.AddCommand(dbUnlockCmd)
}
