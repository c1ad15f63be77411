package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"github.com/sriramreddyM/coco-annotator/internal/db/models"
)

// BunDatasetRepository implements DatasetRepository using Bun ORM
type BunDatasetRepository struct {
	db *bun.DB
}

var _ DatasetRepository = (*BunDatasetRepository)(nil)

// NewBunDatasetRepository creates a new Bun-based dataset repository
func NewBunDatasetRepository(db *bun.DB) *BunDatasetRepository {
	return &BunDatasetRepository{db: db}
}

// Create inserts a new dataset
func (r *BunDatasetRepository) Create(ctx context.Context, dataset *models.Dataset) error {
	if dataset.CreatedAt.IsZero() {
		dataset.CreatedAt = time.Now().UTC()
	}
	if _, err := r.db.NewInsert().Model(dataset).Exec(ctx); err != nil {
		return fmt.Errorf("create dataset: %w", err)
	}
	return nil
}

// GetByID retrieves a non-deleted dataset
func (r *BunDatasetRepository) GetByID(ctx context.Context, id int64) (*models.Dataset, error) {
	dataset := new(models.Dataset)
	err := r.db.NewSelect().
		Model(dataset).
		Where("id = ?", id).
		Where("deleted = ?", false).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("get dataset: %w", notFound(err, "dataset %d", id))
	}
	return dataset, nil
}

// List returns every non-deleted dataset
func (r *BunDatasetRepository) List(ctx context.Context) ([]models.Dataset, error) {
	var datasets []models.Dataset
	err := r.db.NewSelect().
		Model(&datasets).
		Where("deleted = ?", false).
		Order("id ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list datasets: %w", err)
	}
	return datasets, nil
}

// BunCategoryRepository implements CategoryRepository using Bun ORM
type BunCategoryRepository struct {
	db *bun.DB
}

var _ CategoryRepository = (*BunCategoryRepository)(nil)

// NewBunCategoryRepository creates a new Bun-based category repository
func NewBunCategoryRepository(db *bun.DB) *BunCategoryRepository {
	return &BunCategoryRepository{db: db}
}

// Create inserts a new category
func (r *BunCategoryRepository) Create(ctx context.Context, category *models.Category) error {
	if category.CreatedAt.IsZero() {
		category.CreatedAt = time.Now().UTC()
	}
	if _, err := r.db.NewInsert().Model(category).Exec(ctx); err != nil {
		return fmt.Errorf("create category: %w", err)
	}
	return nil
}

// ListByIDs returns the non-deleted categories among ids
func (r *BunCategoryRepository) ListByIDs(ctx context.Context, ids []int64) ([]models.Category, error) {
	if len(ids) == 0 {
		return []models.Category{}, nil
	}
	var categories []models.Category
	err := r.db.NewSelect().
		Model(&categories).
		Where("id IN (?)", bun.In(ids)).
		Where("deleted = ?", false).
		Order("id ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	return categories, nil
}
