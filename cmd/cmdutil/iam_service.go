package cmdutil

import (
	"fmt"
	"log/slog"

	"github.com/casbin/casbin/v2"
	"github.com/uptrace/bun"

	"github.com/sriramreddyM/coco-annotator/internal/auth"
	"github.com/sriramreddyM/coco-annotator/internal/config"
	"github.com/sriramreddyM/coco-annotator/internal/db/bunx"
	"github.com/sriramreddyM/coco-annotator/internal/repository"
	"github.com/sriramreddyM/coco-annotator/internal/services/iam"
	"github.com/sriramreddyM/coco-annotator/internal/telemetry"
)

// IAMServiceOptions controls how commands construct the IAM service.
type IAMServiceOptions struct {
	// EnableAutoSave persists enforcer mutations to casbin_rules immediately.
	EnableAutoSave bool

	// DatabaseMetrics and AuthMetrics are optional.
	DatabaseMetrics *telemetry.DatabaseMetrics
	AuthMetrics     *telemetry.AuthMetrics

	Logger *slog.Logger
}

// IAMServiceBundle bundles the service with the connection and account
// repositories it was built from so callers can reuse them.
type IAMServiceBundle struct {
	Service  iam.Service
	DB       *bun.DB
	Users    repository.UserRepository
	Sessions repository.SessionRepository
	Enforcer casbin.IEnforcer
	Codec    *auth.TokenCodec
}

// Close releases the underlying database connection.
func (b *IAMServiceBundle) Close() {
	if b == nil || b.DB == nil {
		return
	}
	bunx.Close(b.DB)
}

// NewIAMServiceBundle centralizes IAM service construction for commands.
// It opens the database, loads the Casbin policy and returns a ready-to-use service.
func NewIAMServiceBundle(cfg *config.Config, opts IAMServiceOptions) (*IAMServiceBundle, error) {
	dbOpts := []bunx.Option{bunx.WithMaxOpenConns(cfg.MaxDBConnections)}
	if opts.DatabaseMetrics != nil {
		dbOpts = append(dbOpts, bunx.WithQueryHook(bunx.NewMetricsHook(opts.DatabaseMetrics)))
	}
	db, err := bunx.NewDB(cfg.DatabaseURL, dbOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	enforcer, err := auth.InitEnforcer(db)
	if err != nil {
		bunx.Close(db)
		return nil, fmt.Errorf("failed to initialize casbin enforcer: %w", err)
	}
	enforcer.EnableAutoSave(opts.EnableAutoSave)

	codec, err := auth.NewTokenCodec(cfg.SecretKey, cfg.TokenTTL)
	if err != nil {
		bunx.Close(db)
		return nil, fmt.Errorf("failed to create token codec: %w", err)
	}

	users := repository.NewBunUserRepository(db)
	sessions := repository.NewBunSessionRepository(db)

	iamService, err := iam.NewIAMService(
		iam.IAMServiceDependencies{
			Users:    users,
			Sessions: sessions,
			Codec:    codec,
			Enforcer: enforcer,
			Metrics:  opts.AuthMetrics,
			Logger:   opts.Logger,
		},
		iam.IAMServiceConfig{
			SessionTTL:      cfg.SessionTTL,
			AnonymousAccess: cfg.AnonymousAccess,
		},
	)
	if err != nil {
		bunx.Close(db)
		return nil, fmt.Errorf("failed to create IAM service: %w", err)
	}

	return &IAMServiceBundle{
		Service:  iamService,
		DB:       db,
		Users:    users,
		Sessions: sessions,
		Enforcer: enforcer,
		Codec:    codec,
	}, nil
}
