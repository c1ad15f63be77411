package migrations

import (
	"context"
	"fmt"

	"github.com/sriramreddyM/coco-annotator/internal/auth"
	"github.com/uptrace/bun"
)

func init() {
	Migrations.MustRegister(up_20261001000002, down_20261001000002)
}

// up_20261001000002 seeds the default relation-role rules
func up_20261001000002(ctx context.Context, db *bun.DB) error {
	fmt.Print(" [up] seeding default Casbin policies...")

	rules := auth.DefaultPolicyRules()
	_, err := db.NewInsert().
		Model(&rules).
		On("CONFLICT (ptype, v0, v1, v2, v3, v4, v5) DO NOTHING"). // Idempotent
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("seed casbin policies: %w", err)
	}

	fmt.Println(" OK")
	return nil
}

// down_20261001000002 removes the seeded rules, leaving operator-added ones
func down_20261001000002(ctx context.Context, db *bun.DB) error {
	fmt.Print(" [down] removing default Casbin policies...")

	for _, r := range auth.DefaultPolicyRules() {
		r := r
		if _, err := db.NewDelete().Model(&r).WherePK().Exec(ctx); err != nil {
			return fmt.Errorf("remove casbin policy %v: %w", r.Values(), err)
		}
	}

	fmt.Println(" OK")
	return nil
}
