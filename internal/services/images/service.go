// Package images implements listing, upload, rendering and the
// crowd-sourcing operations on images (annotating, flag, approve).
package images

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/sriramreddyM/coco-annotator/internal/auth"
	"github.com/sriramreddyM/coco-annotator/internal/db/models"
	"github.com/sriramreddyM/coco-annotator/internal/repository"
	"github.com/sriramreddyM/coco-annotator/internal/services/iam"
	"github.com/sriramreddyM/coco-annotator/internal/services/imaging"
	"github.com/sriramreddyM/coco-annotator/internal/telemetry"
)

const tracerName = "annotator/services/images"

// Default and upper bound of the page size of List.
const (
	DefaultPerPage = 50
	MaxPerPage     = 1000
)

var (
	// ErrInvalidImageID is returned when the image does not exist, is
	// deleted, or lies outside the caller's visibility scope.
	ErrInvalidImageID     = errors.New("invalid image id")
	ErrDatasetNotFound    = errors.New("dataset does not exist")
	ErrFileExists         = errors.New("file already exists")
	ErrUploadNotPermitted = errors.New("upload not permitted")
	ErrInvalidFileName    = errors.New("invalid file name")
)

// Renderer produces JPEG responses and drops cached ones.
type Renderer interface {
	Render(ctx context.Context, img *models.Image, opts imaging.Options) ([]byte, error)
	Invalidate(ctx context.Context, imageID int64) error
}

// Dependencies of the image service.
type Dependencies struct {
	Images   repository.ImageRepository
	Datasets repository.DatasetRepository
	Users    repository.UserRepository
	IAM      iam.Service
	Renderer Renderer
	Logger   *slog.Logger
	// MaxPixels bounds the declared dimensions of uploads; zero selects
	// imaging.DefaultMaxPixels.
	MaxPixels int
	// Now overrides the clock in tests.
	Now func() time.Time
}

// Service implements the image namespace.
type Service struct {
	images   repository.ImageRepository
	datasets repository.DatasetRepository
	users    repository.UserRepository
	iam      iam.Service
	renderer  Renderer
	maxPixels int
	logger    *slog.Logger
	now       func() time.Time
}

// NewService creates an image service.
func NewService(deps Dependencies) *Service {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	return &Service{
		images:    deps.Images,
		datasets:  deps.Datasets,
		users:     deps.Users,
		iam:       deps.IAM,
		renderer:  deps.Renderer,
		maxPixels: deps.MaxPixels,
		logger:    logger,
		now:       now,
	}
}

// ListParams selects one page of images. Page is 1-based.
type ListParams struct {
	Page    int
	PerPage int
}

// Page is one page of visible images.
type Page struct {
	Total   int
	Pages   int
	Page    int
	PerPage int
	Images  []models.Image
}

// List returns the visible, non-deleted images on the requested page.
// Pages is total/per_page + 1.
func (s *Service) List(ctx context.Context, p *iam.Principal, params ListParams) (*Page, error) {
	if params.Page < 1 {
		params.Page = 1
	}
	if params.PerPage < 1 {
		params.PerPage = DefaultPerPage
	}
	params.PerPage = min(params.PerPage, MaxPerPage)

	filter := repository.ImageFilter{
		Offset: (params.Page - 1) * params.PerPage,
		Limit:  params.PerPage,
	}
	var datasets []models.Dataset
	if !p.SeesAllDatasets() {
		var err error
		if datasets, err = s.datasets.List(ctx); err != nil {
			return nil, fmt.Errorf("list datasets: %w", err)
		}
	}
	filter.AllDatasets, filter.DatasetIDs = p.VisibleDatasets(datasets)

	imgs, total, err := s.images.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list images: %w", err)
	}
	return &Page{
		Total:   total,
		Pages:   total/params.PerPage + 1,
		Page:    params.Page,
		PerPage: params.PerPage,
		Images:  imgs,
	}, nil
}

// Visible returns a non-deleted image inside the caller's visibility scope
// together with its dataset, or ErrInvalidImageID.
func (s *Service) Visible(ctx context.Context, p *iam.Principal, id int64) (*models.Image, *models.Dataset, error) {
	img, err := s.images.GetByID(ctx, id)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, nil, ErrInvalidImageID
		}
		return nil, nil, err
	}
	if img.Deleted {
		return nil, nil, ErrInvalidImageID
	}
	ds, err := s.datasets.GetByID(ctx, img.DatasetID)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, nil, ErrInvalidImageID
		}
		return nil, nil, err
	}
	if !p.CanSeeDataset(ds) {
		return nil, nil, ErrInvalidImageID
	}
	return img, ds, nil
}

// Render returns the JPEG rendering of a visible image.
func (s *Service) Render(ctx context.Context, p *iam.Principal, id int64, opts imaging.Options) ([]byte, *models.Image, error) {
	img, ds, err := s.Visible(ctx, p, id)
	if err != nil {
		return nil, nil, err
	}
	if err := s.iam.Authorize(ctx, p, auth.ActionView, iam.ImageResource(img, ds)); err != nil {
		return nil, nil, err
	}
	data, err := s.renderer.Render(ctx, img, opts)
	if err != nil {
		return nil, nil, fmt.Errorf("render image %d: %w", id, err)
	}
	return data, img, nil
}

// UploadInput is one uploaded file.
type UploadInput struct {
	DatasetID int64
	FileName  string
	Data      []byte
	Latitude  *float64
	Longitude *float64
}

// Upload validates and stores a new image in its dataset directory and
// returns the new image id.
func (s *Service) Upload(ctx context.Context, p *iam.Principal, in UploadInput) (int64, error) {
	ctx, span := telemetry.StartSpan(ctx, tracerName, "images.Upload",
		attribute.Int64(telemetry.AttrDatasetID, in.DatasetID),
	)
	defer span.End()

	ds, err := s.datasets.GetByID(ctx, in.DatasetID)
	if err != nil {
		if repository.IsNotFound(err) {
			return 0, ErrDatasetNotFound
		}
		return 0, err
	}
	if ds.Deleted {
		return 0, ErrDatasetNotFound
	}
	if !ds.IsPublic && !p.CanEdit(iam.DatasetResource(ds)) {
		return 0, ErrUploadNotPermitted
	}

	name, err := cleanFileName(in.FileName)
	if err != nil {
		return 0, err
	}
	path := filepath.Join(ds.Directory, name)

	exists, err := s.images.ExistsPath(ctx, path)
	if err != nil {
		return 0, err
	}
	if exists {
		return 0, ErrFileExists
	}

	info, err := imaging.Probe(in.Data, s.maxPixels)
	if err != nil {
		return 0, err
	}

	if err := writeNewFile(path, in.Data); err != nil {
		telemetry.RecordError(span, err)
		return 0, err
	}

	img := &models.Image{
		DatasetID:  ds.ID,
		Path:       path,
		FileName:   name,
		Width:      info.Width,
		Height:     info.Height,
		UploadedBy: p.Username(),
	}
	if in.Latitude != nil && in.Longitude != nil {
		img.Latitude, img.Longitude = in.Latitude, in.Longitude
	}
	if err := s.images.Create(ctx, img); err != nil {
		_ = os.Remove(path)
		telemetry.RecordError(span, err)
		return 0, fmt.Errorf("create image: %w", err)
	}

	span.SetAttributes(attribute.Int64(telemetry.AttrImageID, img.ID))
	s.logger.InfoContext(ctx, "image uploaded",
		"image_id", img.ID, "dataset_id", ds.ID, "file", name, "by", img.UploadedBy)
	return img.ID, nil
}

func cleanFileName(name string) (string, error) {
	name = filepath.Base(strings.ReplaceAll(strings.TrimSpace(name), `\`, "/"))
	if name == "" || name == "." || name == "/" || name == ".." || strings.HasPrefix(name, ".") {
		return "", ErrInvalidFileName
	}
	return name, nil
}

// writeNewFile fails with ErrFileExists rather than replacing a file on disk.
func writeNewFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create dataset directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return ErrFileExists
		}
		return fmt.Errorf("create image file: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		_ = os.Remove(path)
		return fmt.Errorf("write image file: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(path)
		return fmt.Errorf("write image file: %w", err)
	}
	return nil
}

// Delete soft-deletes a visible image the caller may delete.
func (s *Service) Delete(ctx context.Context, p *iam.Principal, id int64) error {
	img, ds, err := s.Visible(ctx, p, id)
	if err != nil {
		return err
	}
	if err := s.iam.Authorize(ctx, p, auth.ActionDelete, iam.ImageResource(img, ds)); err != nil {
		return err
	}
	if err := s.images.SoftDelete(ctx, id, s.now().UTC()); err != nil {
		return fmt.Errorf("delete image %d: %w", id, err)
	}
	if err := s.renderer.Invalidate(ctx, id); err != nil {
		s.logger.WarnContext(ctx, "render cache invalidation failed", "image_id", id, "error", err)
	}
	s.logger.InfoContext(ctx, "image deleted", "image_id", id, "by", p.Username())
	return nil
}

// UpdateInput is the body of the image update endpoint.
type UpdateInput struct {
	Annotating       bool `json:"cs_annotating"`
	AnnotationsAdded bool `json:"is_annotations_added"`
}

// Update sets the annotating flag. When annotations were added the caller
// is recorded in cs_annotated and, the first time only, credited with one
// annotation contribution.
func (s *Service) Update(ctx context.Context, p *iam.Principal, id int64, in UpdateInput) (*models.Image, error) {
	if _, _, err := s.Visible(ctx, p, id); err != nil {
		return nil, err
	}
	if err := s.images.SetAnnotating(ctx, id, in.Annotating); err != nil {
		return nil, err
	}
	if in.AnnotationsAdded {
		added, err := s.images.AddAnnotatedBy(ctx, id, p.Username())
		if err != nil {
			return nil, err
		}
		if added && !p.IsAnonymous() {
			if err := s.users.IncrementContributions(ctx, p.User.ID, 0, 1); err != nil {
				return nil, err
			}
		}
	}
	return s.images.GetByID(ctx, id)
}

// Flag records the caller in cs_flagged_users when flagged is set.
func (s *Service) Flag(ctx context.Context, p *iam.Principal, id int64, flagged bool) error {
	if _, _, err := s.Visible(ctx, p, id); err != nil {
		return err
	}
	if !flagged {
		return nil
	}
	if _, err := s.images.AddFlaggedBy(ctx, id, p.Username()); err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "image flagged", "image_id", id, "by", p.Username())
	return nil
}

// Approve marks the image approved by the caller and, on first approval,
// credits its uploader with one image contribution.
func (s *Service) Approve(ctx context.Context, p *iam.Principal, id int64) error {
	img, ds, err := s.Visible(ctx, p, id)
	if err != nil {
		return err
	}
	if err := s.iam.Authorize(ctx, p, auth.ActionEdit, iam.ImageResource(img, ds)); err != nil {
		return err
	}
	first, err := s.images.SetApprovedBy(ctx, id, p.Username())
	if err != nil {
		return err
	}
	if !first || img.UploadedBy == "" {
		return nil
	}

	uploader, err := s.users.GetByUsername(ctx, img.UploadedBy)
	if err != nil {
		if repository.IsNotFound(err) {
			s.logger.WarnContext(ctx, "approved image has no stored uploader", "image_id", id, "uploaded_by", img.UploadedBy)
			return nil
		}
		return err
	}
	return s.users.IncrementContributions(ctx, uploader.ID, 1, 0)
}
