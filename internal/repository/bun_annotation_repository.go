package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"github.com/sriramreddyM/coco-annotator/internal/db/models"
)

// BunAnnotationRepository implements AnnotationRepository using Bun ORM
type BunAnnotationRepository struct {
	db *bun.DB
}

var _ AnnotationRepository = (*BunAnnotationRepository)(nil)

// NewBunAnnotationRepository creates a new Bun-based annotation repository
func NewBunAnnotationRepository(db *bun.DB) *BunAnnotationRepository {
	return &BunAnnotationRepository{db: db}
}

// ListByImage returns the image's non-deleted annotations
func (r *BunAnnotationRepository) ListByImage(ctx context.Context, imageID int64, categoryIDs []int64) ([]models.Annotation, error) {
	annotations := []models.Annotation{}
	if categoryIDs != nil && len(categoryIDs) == 0 {
		return annotations, nil
	}

	q := r.db.NewSelect().
		Model(&annotations).
		Where("image_id = ?", imageID).
		Where("deleted = ?", false).
		Order("id ASC")
	if categoryIDs != nil {
		q = q.Where("category_id IN (?)", bun.In(categoryIDs))
	}
	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("list annotations for image %d: %w", imageID, err)
	}
	return annotations, nil
}

// CreateMany inserts annotations in one statement
func (r *BunAnnotationRepository) CreateMany(ctx context.Context, annotations []models.Annotation) error {
	if len(annotations) == 0 {
		return nil
	}
	now := time.Now().UTC()
	for i := range annotations {
		if annotations[i].CreatedAt.IsZero() {
			annotations[i].CreatedAt = now
		}
	}
	if _, err := r.db.NewInsert().Model(&annotations).Exec(ctx); err != nil {
		return fmt.Errorf("create annotations: %w", err)
	}
	return nil
}
