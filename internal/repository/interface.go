package repository

import (
	"context"
	"time"

	"github.com/sriramreddyM/coco-annotator/internal/db/models"
)

// UserRepository exposes persistence operations for accounts.
type UserRepository interface {
	Create(ctx context.Context, user *models.User) error
	GetByID(ctx context.Context, id string) (*models.User, error)
	// GetByUsername matches ignoring case.
	GetByUsername(ctx context.Context, username string) (*models.User, error)
	Count(ctx context.Context) (int, error)
	List(ctx context.Context) ([]models.User, error)
	ListSeenSince(ctx context.Context, since time.Time) ([]models.User, error)
	SetPasswordHash(ctx context.Context, id string, hash string) error
	TouchLastSeen(ctx context.Context, id string, at time.Time) error
	IncrementContributions(ctx context.Context, id string, images, annotations int) error
}

// SessionRepository exposes persistence operations for cookie sessions.
type SessionRepository interface {
	Create(ctx context.Context, session *models.Session) error
	// GetByTokenHash loads the session with its User populated.
	GetByTokenHash(ctx context.Context, tokenHash string) (*models.Session, error)
	Revoke(ctx context.Context, id string) error
	DeleteExpired(ctx context.Context, now time.Time) (int, error)
}

// DatasetRepository exposes persistence operations for datasets.
type DatasetRepository interface {
	Create(ctx context.Context, dataset *models.Dataset) error
	GetByID(ctx context.Context, id int64) (*models.Dataset, error)
	List(ctx context.Context) ([]models.Dataset, error)
}

// CategoryRepository exposes persistence operations for annotation categories.
type CategoryRepository interface {
	Create(ctx context.Context, category *models.Category) error
	ListByIDs(ctx context.Context, ids []int64) ([]models.Category, error)
}

// ImageFilter selects images for listing. Deleted images are never returned.
type ImageFilter struct {
	// AllDatasets disables dataset scoping. Otherwise only images in
	// DatasetIDs are returned, and an empty DatasetIDs matches nothing.
	AllDatasets bool
	DatasetIDs  []int64
	Offset      int
	Limit       int
}

// ImageRepository exposes persistence operations for images and their
// crowd-sourcing state.
type ImageRepository interface {
	Create(ctx context.Context, image *models.Image) error
	// GetByID returns the image even when soft-deleted.
	GetByID(ctx context.Context, id int64) (*models.Image, error)
	List(ctx context.Context, filter ImageFilter) ([]models.Image, int, error)
	ExistsPath(ctx context.Context, path string) (bool, error)
	SoftDelete(ctx context.Context, id int64, at time.Time) error
	SetAnnotating(ctx context.Context, id int64, annotating bool) error
	// AddAnnotatedBy records username in cs_annotated and reports whether it was new.
	AddAnnotatedBy(ctx context.Context, id int64, username string) (bool, error)
	// AddFlaggedBy records username in cs_flagged_users and reports whether it was new.
	AddFlaggedBy(ctx context.Context, id int64, username string) (bool, error)
	// SetApprovedBy records the approver and reports whether it is the first one.
	SetApprovedBy(ctx context.Context, id int64, username string) (bool, error)
	AddAnnotations(ctx context.Context, id int64, n int) error
}

// AnnotationRepository exposes persistence operations for annotations.
type AnnotationRepository interface {
	// ListByImage returns non-deleted annotations on the image. A nil
	// categoryIDs matches every category.
	ListByImage(ctx context.Context, imageID int64, categoryIDs []int64) ([]models.Annotation, error)
	CreateMany(ctx context.Context, annotations []models.Annotation) error
}
