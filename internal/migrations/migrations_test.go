package migrations

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun/migrate"

	"github.com/sriramreddyM/coco-annotator/internal/auth"
	casbinbunadapter "github.com/sriramreddyM/coco-annotator/internal/auth/bunadapter"
	"github.com/sriramreddyM/coco-annotator/internal/db/bunx"
)

func TestMigrations_UpAndDown(t *testing.T) {
	db, err := bunx.NewDB(":memory:")
	require.NoError(t, err)
	defer bunx.Close(db)

	ctx := context.Background()
	assert.True(t, IsSQLite(db))
	assert.False(t, IsPostgreSQL(db))

	migrator := migrate.NewMigrator(db, Migrations)
	require.NoError(t, migrator.Init(ctx))

	group, err := migrator.Migrate(ctx)
	require.NoError(t, err)
	assert.False(t, group.IsZero())

	for _, table := range []string{"users", "sessions", "datasets", "categories", "images", "annotations", "casbin_rules"} {
		_, err := db.NewSelect().Table(table).Limit(1).Exec(ctx)
		assert.NoError(t, err, "table %s should exist", table)
	}

	var rules []casbinbunadapter.CasbinRule
	require.NoError(t, db.NewSelect().Model(&rules).Scan(ctx))
	assert.Len(t, rules, len(auth.DefaultPolicyRules()))

	// Re-running is a no-op.
	group, err = migrator.Migrate(ctx)
	require.NoError(t, err)
	assert.True(t, group.IsZero())

	_, err = migrator.Rollback(ctx)
	require.NoError(t, err)

	_, err = db.NewSelect().Table("users").Limit(1).Exec(ctx)
	assert.Error(t, err)
}

func TestInitEnforcer_LoadsSeededRules(t *testing.T) {
	db, err := bunx.NewDB(":memory:")
	require.NoError(t, err)
	defer bunx.Close(db)

	ctx := context.Background()
	migrator := migrate.NewMigrator(db, Migrations)
	require.NoError(t, migrator.Init(ctx))
	_, err = migrator.Migrate(ctx)
	require.NoError(t, err)

	enforcer, err := auth.InitEnforcer(db)
	require.NoError(t, err)

	ok, err := enforcer.Enforce(auth.RoleMember, "image", auth.ActionEdit)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = enforcer.Enforce(auth.RolePublic, "image", auth.ActionDelete)
	require.NoError(t, err)
	assert.False(t, ok)

	// Rules added at runtime are persisted through the adapter.
	added, err := enforcer.AddPolicy(auth.RoleUser, "image", auth.ActionView, "allow")
	require.NoError(t, err)
	assert.True(t, added)

	count, err := db.NewSelect().Model((*casbinbunadapter.CasbinRule)(nil)).Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, len(auth.DefaultPolicyRules())+1, count)
}
