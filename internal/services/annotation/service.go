// Package annotation copies annotations between images and exports an
// image with its annotations in COCO format.
package annotation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/sriramreddyM/coco-annotator/internal/auth"
	"github.com/sriramreddyM/coco-annotator/internal/db/models"
	"github.com/sriramreddyM/coco-annotator/internal/repository"
	"github.com/sriramreddyM/coco-annotator/internal/services/iam"
	"github.com/sriramreddyM/coco-annotator/internal/services/images"
)

var (
	ErrInvalidImageIDs = errors.New("invalid image ids")
	ErrCopySelf        = errors.New("cannot copy self")
	ErrSizeMismatch    = errors.New("image sizes do not match")
)

// ImageLookup resolves an image inside the caller's visibility scope.
type ImageLookup interface {
	Visible(ctx context.Context, p *iam.Principal, id int64) (*models.Image, *models.Dataset, error)
}

// Service implements annotation copy and COCO export.
type Service struct {
	lookup      ImageLookup
	images      repository.ImageRepository
	annotations repository.AnnotationRepository
	categories  repository.CategoryRepository
	iam         iam.Service
	logger      *slog.Logger
}

// NewService creates an annotation service.
func NewService(lookup ImageLookup, imgs repository.ImageRepository, annotations repository.AnnotationRepository,
	categories repository.CategoryRepository, iamService iam.Service, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		lookup:      lookup,
		images:      imgs,
		annotations: annotations,
		categories:  categories,
		iam:         iamService,
		logger:      logger,
	}
}

// CopyAnnotations clones the non-deleted annotations of fromID onto toID and
// returns how many were created. A nil categoryIDs copies the categories of
// the source image's dataset.
func (s *Service) CopyAnnotations(ctx context.Context, p *iam.Principal, fromID, toID int64, categoryIDs []int64) (int, error) {
	from, fromDS, err := s.lookup.Visible(ctx, p, fromID)
	if err != nil {
		return 0, invalidIDs(err)
	}
	to, toDS, err := s.lookup.Visible(ctx, p, toID)
	if err != nil {
		return 0, invalidIDs(err)
	}
	if from.ID == to.ID {
		return 0, ErrCopySelf
	}
	if from.Width != to.Width || from.Height != to.Height {
		return 0, ErrSizeMismatch
	}
	if err := s.iam.Authorize(ctx, p, auth.ActionEdit, iam.ImageResource(to, toDS)); err != nil {
		return 0, err
	}

	if categoryIDs == nil {
		categoryIDs = append([]int64{}, fromDS.Categories...)
	}
	source, err := s.annotations.ListByImage(ctx, from.ID, categoryIDs)
	if err != nil {
		return 0, err
	}
	if len(source) == 0 {
		return 0, nil
	}

	clones := make([]models.Annotation, 0, len(source))
	for _, a := range source {
		clones = append(clones, a.CloneOnto(to, p.Username()))
	}
	if err := s.annotations.CreateMany(ctx, clones); err != nil {
		return 0, err
	}
	if err := s.images.AddAnnotations(ctx, to.ID, len(clones)); err != nil {
		return 0, err
	}

	s.logger.InfoContext(ctx, "annotations copied",
		"from", from.ID, "to", to.ID, "count", len(clones), "by", p.Username())
	return len(clones), nil
}

func invalidIDs(err error) error {
	if errors.Is(err, images.ErrInvalidImageID) {
		return ErrInvalidImageIDs
	}
	return err
}

// COCO is a single-image COCO document.
type COCO struct {
	Images      []COCOImage      `json:"images"`
	Categories  []COCOCategory   `json:"categories"`
	Annotations []COCOAnnotation `json:"annotations"`
}

type COCOImage struct {
	ID       int64  `json:"id"`
	FileName string `json:"file_name"`
	Path     string `json:"path"`
	Width    int    `json:"width"`
	Height   int    `json:"height"`
}

type COCOCategory struct {
	ID            int64  `json:"id"`
	Name          string `json:"name"`
	SuperCategory string `json:"supercategory"`
	Color         string `json:"color,omitempty"`
}

type COCOAnnotation struct {
	ID           int64          `json:"id"`
	ImageID      int64          `json:"image_id"`
	CategoryID   int64          `json:"category_id"`
	Segmentation models.RawJSON `json:"segmentation"`
	Area         float64        `json:"area"`
	BBox         []float64      `json:"bbox"`
	IsCrowd      bool           `json:"iscrowd"`
	Color        string         `json:"color,omitempty"`
	Metadata     models.RawJSON `json:"metadata,omitempty"`
}

// ImageCOCO exports one visible image. The caller needs the download
// capability on it.
func (s *Service) ImageCOCO(ctx context.Context, p *iam.Principal, id int64) (*COCO, error) {
	img, ds, err := s.lookup.Visible(ctx, p, id)
	if err != nil {
		return nil, err
	}
	if err := s.iam.Authorize(ctx, p, auth.ActionDownload, iam.ImageResource(img, ds)); err != nil {
		return nil, err
	}

	annotations, err := s.annotations.ListByImage(ctx, img.ID, nil)
	if err != nil {
		return nil, err
	}

	categoryIDs := append([]int64{}, ds.Categories...)
	for _, a := range annotations {
		if !slices.Contains(categoryIDs, a.CategoryID) {
			categoryIDs = append(categoryIDs, a.CategoryID)
		}
	}
	categories, err := s.categories.ListByIDs(ctx, categoryIDs)
	if err != nil {
		return nil, fmt.Errorf("load categories: %w", err)
	}

	doc := &COCO{
		Images: []COCOImage{{
			ID:       img.ID,
			FileName: img.FileName,
			Path:     img.Path,
			Width:    img.Width,
			Height:   img.Height,
		}},
		Categories:  make([]COCOCategory, 0, len(categories)),
		Annotations: make([]COCOAnnotation, 0, len(annotations)),
	}
	for _, c := range categories {
		doc.Categories = append(doc.Categories, COCOCategory{
			ID:            c.ID,
			Name:          c.Name,
			SuperCategory: c.SuperCategory,
			Color:         c.Color,
		})
	}
	for _, a := range annotations {
		bbox := []float64(a.BBox)
		if bbox == nil {
			bbox = []float64{}
		}
		doc.Annotations = append(doc.Annotations, COCOAnnotation{
			ID:           a.ID,
			ImageID:      a.ImageID,
			CategoryID:   a.CategoryID,
			Segmentation: a.Segmentation,
			Area:         a.Area,
			BBox:         bbox,
			IsCrowd:      a.IsCrowd,
			Color:        a.Color,
			Metadata:     a.Metadata,
		})
	}
	return doc, nil
}
