package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect"

	"github.com/sriramreddyM/coco-annotator/internal/db/models"
)

// BunImageRepository implements ImageRepository using Bun ORM
type BunImageRepository struct {
	db *bun.DB
}

var _ ImageRepository = (*BunImageRepository)(nil)

// NewBunImageRepository creates a new Bun-based image repository
func NewBunImageRepository(db *bun.DB) *BunImageRepository {
	return &BunImageRepository{db: db}
}

// Create inserts a new image
func (r *BunImageRepository) Create(ctx context.Context, image *models.Image) error {
	if image.CreatedAt.IsZero() {
		image.CreatedAt = time.Now().UTC()
	}
	if image.CSAnnotated == nil {
		image.CSAnnotated = models.StringSet{}
	}
	if image.CSFlaggedUsers == nil {
		image.CSFlaggedUsers = models.StringSet{}
	}
	if _, err := r.db.NewInsert().Model(image).Exec(ctx); err != nil {
		return fmt.Errorf("create image: %w", err)
	}
	return nil
}

// GetByID retrieves an image by ID
func (r *BunImageRepository) GetByID(ctx context.Context, id int64) (*models.Image, error) {
	image := new(models.Image)
	err := r.db.NewSelect().
		Model(image).
		Where("id = ?", id).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("get image: %w", notFound(err, "image %d", id))
	}
	return image, nil
}

// List returns one page of non-deleted images plus the total match count
func (r *BunImageRepository) List(ctx context.Context, filter ImageFilter) ([]models.Image, int, error) {
	images := []models.Image{}
	if !filter.AllDatasets && len(filter.DatasetIDs) == 0 {
		return images, 0, nil
	}

	q := r.db.NewSelect().
		Model(&images).
		Where("deleted = ?", false).
		Order("id ASC")
	if !filter.AllDatasets {
		q = q.Where("dataset_id IN (?)", bun.In(filter.DatasetIDs))
	}
	if filter.Offset > 0 {
		q = q.Offset(filter.Offset)
	}
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}

	total, err := q.ScanAndCount(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("list images: %w", err)
	}
	return images, total, nil
}

// ExistsPath reports whether any image, deleted or not, is stored at path
func (r *BunImageRepository) ExistsPath(ctx context.Context, path string) (bool, error) {
	exists, err := r.db.NewSelect().
		Model((*models.Image)(nil)).
		Where("path = ?", path).
		Exists(ctx)
	if err != nil {
		return false, fmt.Errorf("check image path: %w", err)
	}
	return exists, nil
}

// SoftDelete flags the image deleted and stamps the deletion time
func (r *BunImageRepository) SoftDelete(ctx context.Context, id int64, at time.Time) error {
	return r.update(ctx, id, "soft delete image", func(q *bun.UpdateQuery) *bun.UpdateQuery {
		return q.Set("deleted = ?", true).Set("deleted_date = ?", at.UTC())
	})
}

// SetAnnotating sets the cs_annotating flag
func (r *BunImageRepository) SetAnnotating(ctx context.Context, id int64, annotating bool) error {
	return r.update(ctx, id, "set annotating", func(q *bun.UpdateQuery) *bun.UpdateQuery {
		return q.Set("cs_annotating = ?", annotating)
	})
}

// SetApprovedBy records the approving user and reports whether the image had
// no approver before. Among concurrent callers at most one sees first=true.
func (r *BunImageRepository) SetApprovedBy(ctx context.Context, id int64, username string) (bool, error) {
	result, err := r.db.NewUpdate().
		Model((*models.Image)(nil)).
		Set("approved_by = ?", username).
		Where("id = ?", id).
		Where("(approved_by IS NULL OR approved_by = '')").
		Exec(ctx)
	if err != nil {
		return false, fmt.Errorf("set first approved_by: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("set first approved_by rows affected: %w", err)
	}
	if rows > 0 {
		return true, nil
	}

	err = r.update(ctx, id, "set approved_by", func(q *bun.UpdateQuery) *bun.UpdateQuery {
		return q.Set("approved_by = ?", username)
	})
	return false, err
}

// AddAnnotations increases num_annotations by n and marks the image annotated
func (r *BunImageRepository) AddAnnotations(ctx context.Context, id int64, n int) error {
	return r.update(ctx, id, "add annotations", func(q *bun.UpdateQuery) *bun.UpdateQuery {
		return q.
			Set("num_annotations = num_annotations + ?", n).
			Set("annotated = ?", true)
	})
}

// AddAnnotatedBy adds username to cs_annotated
func (r *BunImageRepository) AddAnnotatedBy(ctx context.Context, id int64, username string) (bool, error) {
	return r.addToSet(ctx, id, "cs_annotated", username, func(img *models.Image) *models.StringSet {
		return &img.CSAnnotated
	})
}

// AddFlaggedBy adds username to cs_flagged_users
func (r *BunImageRepository) AddFlaggedBy(ctx context.Context, id int64, username string) (bool, error) {
	return r.addToSet(ctx, id, "cs_flagged_users", username, func(img *models.Image) *models.StringSet {
		return &img.CSFlaggedUsers
	})
}

// addToSet does a read-modify-write of a JSON set column inside a transaction.
// PostgreSQL locks the row; SQLite serialises writers on its single connection.
func (r *BunImageRepository) addToSet(ctx context.Context, id int64, column, value string, field func(*models.Image) *models.StringSet) (bool, error) {
	added := false
	err := r.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		image := new(models.Image)
		q := tx.NewSelect().Model(image).Where("id = ?", id)
		if r.db.Dialect().Name() == dialect.PG {
			q = q.For("UPDATE")
		}
		if err := q.Scan(ctx); err != nil {
			return notFound(err, "image %d", id)
		}

		set := field(image)
		if !set.Add(value) {
			return nil
		}
		added = true

		_, err := tx.NewUpdate().
			Model((*models.Image)(nil)).
			Set("? = ?", bun.Ident(column), *set).
			Where("id = ?", id).
			Exec(ctx)
		return err
	})
	if err != nil {
		return false, fmt.Errorf("update image %s: %w", column, err)
	}
	return added, nil
}

func (r *BunImageRepository) update(ctx context.Context, id int64, op string, set func(*bun.UpdateQuery) *bun.UpdateQuery) error {
	q := r.db.NewUpdate().
		Model((*models.Image)(nil)).
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
		return fmt.Errorf("%s: %w: image %d", op, ErrNotFound, id)
	}
	return nil
}
