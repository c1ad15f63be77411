package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"github.com/sriramreddyM/coco-annotator/internal/db/bunx"
	"github.com/sriramreddyM/coco-annotator/internal/db/models"
)

// BunSessionRepository implements SessionRepository using Bun ORM
type BunSessionRepository struct {
	db *bun.DB
}

var _ SessionRepository = (*BunSessionRepository)(nil)

// NewBunSessionRepository creates a new Bun-based session repository
func NewBunSessionRepository(db *bun.DB) *BunSessionRepository {
	return &BunSessionRepository{db: db}
}

// Create inserts a new session
func (r *BunSessionRepository) Create(ctx context.Context, session *models.Session) error {
	if session.ID == "" {
		session.ID = bunx.NewUUIDv7()
	}
	now := time.Now().UTC()
	if session.CreatedAt.IsZero() {
		session.CreatedAt = now
	}
	if session.LastUsedAt.IsZero() {
		session.LastUsedAt = now
	}
	session.ExpiresAt = session.ExpiresAt.UTC()

	if _, err := r.db.NewInsert().Model(session).Exec(ctx); err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

// GetByTokenHash retrieves a session and its owning user in one query.
// This is the primary lookup method for cookie authentication
func (r *BunSessionRepository) GetByTokenHash(ctx context.Context, tokenHash string) (*models.Session, error) {
	session := new(models.Session)
	err := r.db.NewSelect().
		Model(session).
		Relation("User").
		Where("sess.token_hash = ?", tokenHash).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("get session by token: %w", notFound(err, "session"))
	}
	return session, nil
}

// Revoke marks a session as revoked
func (r *BunSessionRepository) Revoke(ctx context.Context, id string) error {
	result, err := r.db.NewUpdate().
		Model((*models.Session)(nil)).
		Set("revoked = ?", true).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("revoke session: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("revoke session rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("revoke session: %w: session %s", ErrNotFound, id)
	}
	return nil
}

// DeleteExpired removes sessions that expired before now
func (r *BunSessionRepository) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	result, err := r.db.NewDelete().
		Model((*models.Session)(nil)).
		Where("expires_at < ?", now.UTC()).
		Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("delete expired sessions: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete expired sessions rows affected: %w", err)
	}
	return int(rows), nil
}
