package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"github.com/sriramreddyM/coco-annotator/internal/auth"
	"github.com/sriramreddyM/coco-annotator/internal/db/bunx"
	"github.com/sriramreddyM/coco-annotator/internal/db/models"
)

// BunUserRepository implements UserRepository using Bun ORM
type BunUserRepository struct {
	db *bun.DB
}

var _ UserRepository = (*BunUserRepository)(nil)

// NewBunUserRepository creates a new Bun-based user repository
func NewBunUserRepository(db *bun.DB) *BunUserRepository {
	return &BunUserRepository{db: db}
}

// Create inserts a new user. ID, folded username and timestamps are filled in when empty.
func (r *BunUserRepository) Create(ctx context.Context, user *models.User) error {
	if user.ID == "" {
		user.ID = bunx.NewUUIDv7()
	}
	user.UsernameFold = auth.FoldUsername(user.Username)
	now := time.Now().UTC()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	user.UpdatedAt = now

	if _, err := r.db.NewInsert().Model(user).Exec(ctx); err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

// GetByID retrieves a user by their ID
func (r *BunUserRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	user := new(models.User)
	err := r.db.NewSelect().
		Model(user).
		Where("id = ?", id).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("get user by ID: %w", notFound(err, "user %s", id))
	}
	return user, nil
}

// GetByUsername retrieves a user by username, ignoring case
func (r *BunUserRepository) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	user := new(models.User)
	err := r.db.NewSelect().
		Model(user).
		Where("username_fold = ?", auth.FoldUsername(username)).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("get user by username: %w", notFound(err, "user %q", username))
	}
	return user, nil
}

// Count returns the number of registered accounts
func (r *BunUserRepository) Count(ctx context.Context) (int, error) {
	n, err := r.db.NewSelect().Model((*models.User)(nil)).Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("count users: %w", err)
	}
	return n, nil
}

// List returns every user ordered by username
func (r *BunUserRepository) List(ctx context.Context) ([]models.User, error) {
	var users []models.User
	if err := r.db.NewSelect().Model(&users).Order("username_fold ASC").Scan(ctx); err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return users, nil
}

// ListSeenSince returns users whose last_seen is at or after since
func (r *BunUserRepository) ListSeenSince(ctx context.Context, since time.Time) ([]models.User, error) {
	var users []models.User
	err := r.db.NewSelect().
		Model(&users).
		Where("last_seen IS NOT NULL").
		Where("last_seen >= ?", since.UTC()).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list users seen since %s: %w", since.Format(time.RFC3339), err)
	}
	return users, nil
}

// SetPasswordHash replaces the stored password hash
func (r *BunUserRepository) SetPasswordHash(ctx context.Context, id string, hash string) error {
	return r.update(ctx, id, "set password", func(q *bun.UpdateQuery) *bun.UpdateQuery {
		return q.Set("password_hash = ?", hash)
	})
}

// TouchLastSeen records activity. Concurrent touches are last-write-wins.
func (r *BunUserRepository) TouchLastSeen(ctx context.Context, id string, at time.Time) error {
	return r.update(ctx, id, "touch last_seen", func(q *bun.UpdateQuery) *bun.UpdateQuery {
		return q.Set("last_seen = ?", at.UTC())
	})
}

// IncrementContributions adds to the crowd-sourcing counters atomically
func (r *BunUserRepository) IncrementContributions(ctx context.Context, id string, images, annotations int) error {
	return r.update(ctx, id, "increment contributions", func(q *bun.UpdateQuery) *bun.UpdateQuery {
		return q.
			Set("cs_images = cs_images + ?", images).
			Set("cs_annotations = cs_annotations + ?", annotations)
	})
}

func (r *BunUserRepository) update(ctx context.Context, id, op string, set func(*bun.UpdateQuery) *bun.UpdateQuery) error {
	q := r.db.NewUpdate().
		Model((*models.User)(nil)).
		Set("updated_at = ?", time.Now().UTC()).
		Where("id = ?", id)
	result, err := set(q).Exec(ctx)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s rows affected: %w", op, err)
	}
	if rows == 0 {
		return fmt.Errorf("%s: %w: user %s", op, ErrNotFound, id)
	}
	return nil
}
