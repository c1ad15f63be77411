package migrations

import (
	"context"
	"fmt"

	casbinbunadapter "github.com/sriramreddyM/coco-annotator/internal/auth/bunadapter"
	"github.com/sriramreddyM/coco-annotator/internal/db/models"
	"github.com/uptrace/bun"
)

func init() {
	Migrations.MustRegister(up_20261001000001, down_20261001000001)
}

// up_20261001000001 creates the account, dataset, image and annotation tables
func up_20261001000001(ctx context.Context, db *bun.DB) error {
	fmt.Print(" [up] creating users table...")
	if _, err := db.NewCreateTable().Model((*models.User)(nil)).IfNotExists().Exec(ctx); err != nil {
		return fmt.Errorf("failed to create users table: %w", err)
	}
	fmt.Println(" OK")

	fmt.Print(" [up] creating sessions table...")
	_, err := db.NewCreateTable().
		Model((*models.Session)(nil)).
		IfNotExists().
		ForeignKey(`(user_id) REFERENCES users(id) ON DELETE CASCADE`).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to create sessions table: %w", err)
	}
	if _, err := db.ExecContext(ctx, `CREATE INDEX IF NOT EXISTS idx_sessions_user_id ON sessions(user_id)`); err != nil {
		return fmt.Errorf("failed to create index on sessions.user_id: %w", err)
	}
	if _, err := db.ExecContext(ctx, `CREATE INDEX IF NOT EXISTS idx_sessions_expires_at ON sessions(expires_at)`); err != nil {
		return fmt.Errorf("failed to create index on sessions.expires_at: %w", err)
	}
	fmt.Println(" OK")

	fmt.Print(" [up] creating datasets and categories tables...")
	if _, err := db.NewCreateTable().Model((*models.Dataset)(nil)).IfNotExists().Exec(ctx); err != nil {
		return fmt.Errorf("failed to create datasets table: %w", err)
	}
	if _, err := db.NewCreateTable().Model((*models.Category)(nil)).IfNotExists().Exec(ctx); err != nil {
		return fmt.Errorf("failed to create categories table: %w", err)
	}
	fmt.Println(" OK")

	fmt.Print(" [up] creating images table...")
	_, err = db.NewCreateTable().
		Model((*models.Image)(nil)).
		IfNotExists().
		ForeignKey(`(dataset_id) REFERENCES datasets(id) ON DELETE CASCADE`).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to create images table: %w", err)
	}
	if _, err := db.ExecContext(ctx, `CREATE INDEX IF NOT EXISTS idx_images_dataset_id ON images(dataset_id)`); err != nil {
		return fmt.Errorf("failed to create index on images.dataset_id: %w", err)
	}
	fmt.Println(" OK")

	fmt.Print(" [up] creating annotations table...")
	_, err = db.NewCreateTable().
		Model((*models.Annotation)(nil)).
		IfNotExists().
		ForeignKey(`(image_id) REFERENCES images(id) ON DELETE CASCADE`).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to create annotations table: %w", err)
	}
	if _, err := db.ExecContext(ctx, `CREATE INDEX IF NOT EXISTS idx_annotations_image_id ON annotations(image_id)`); err != nil {
		return fmt.Errorf("failed to create index on annotations.image_id: %w", err)
	}
	fmt.Println(" OK")

	fmt.Print(" [up] creating casbin_rules table...")
	if _, err := db.NewCreateTable().Model((*casbinbunadapter.CasbinRule)(nil)).IfNotExists().Exec(ctx); err != nil {
		return fmt.Errorf("failed to create casbin_rules table: %w", err)
	}
	fmt.Println(" OK")

	return nil
}

// down_20261001000001 drops all tables
func down_20261001000001(ctx context.Context, db *bun.DB) error {
	fmt.Print(" [down] dropping all tables...")

	tables := []string{
		"casbin_rules",
		"annotations",
		"images",
		"categories",
		"datasets",
		"sessions",
		"users",
	}

	cascade := ""
	if IsPostgreSQL(db) {
		cascade = " CASCADE"
	}
	for _, table := range tables {
		if _, err := db.ExecContext(ctx, fmt.Sprintf("DROP TABLE IF EXISTS %s%s", table, cascade)); err != nil {
			return fmt.Errorf("failed to drop %s: %w", table, err)
		}
	}

	fmt.Println(" OK")
	return nil
}
