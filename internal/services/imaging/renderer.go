package imaging

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/singleflight"

	"github.com/sriramreddyM/coco-annotator/internal/db/models"
	"github.com/sriramreddyM/coco-annotator/internal/telemetry"
)

const tracerName = "annotator/services/imaging"

// DefaultThumbnailSize bounds the longest edge of generated thumbnails.
const DefaultThumbnailSize = 512

// Options selects the rendering of one image. Zero sizes default to the
// stored dimensions.
type Options struct {
	Width     int
	Height    int
	Thumbnail bool
}

// Limits bounds what a Renderer generates and decodes. Zero values select
// DefaultThumbnailSize and DefaultMaxPixels.
type Limits struct {
	ThumbnailSize int
	MaxPixels     int
}

// Renderer produces JPEG responses for stored images. Identical concurrent
// requests share one render.
type Renderer struct {
	cache         Cache
	group         singleflight.Group
	thumbnailSize int
	maxPixels     int
	metrics       *telemetry.RenderMetrics
	logger        *slog.Logger
}

// NewRenderer creates a renderer. cache may be nil to disable caching.
func NewRenderer(cache Cache, limits Limits, metrics *telemetry.RenderMetrics, logger *slog.Logger) *Renderer {
	if limits.ThumbnailSize <= 0 {
		limits.ThumbnailSize = DefaultThumbnailSize
	}
	if limits.MaxPixels <= 0 {
		limits.MaxPixels = DefaultMaxPixels
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Renderer{
		cache:         cache,
		thumbnailSize: limits.ThumbnailSize,
		maxPixels:     limits.MaxPixels,
		metrics:       metrics,
		logger:        logger,
	}
}

// Render returns the JPEG bytes of img bounded by opts.
func (r *Renderer) Render(ctx context.Context, img *models.Image, opts Options) ([]byte, error) {
	key := Key{ImageID: img.ID, Width: opts.Width, Height: opts.Height, Thumbnail: opts.Thumbnail}
	if key.Width <= 0 {
		key.Width = img.Width
	}
	if key.Height <= 0 {
		key.Height = img.Height
	}

	ctx, span := telemetry.StartSpan(ctx, tracerName, "imaging.Render",
		attribute.Int64(telemetry.AttrImageID, img.ID),
		attribute.Bool(telemetry.AttrRenderThumbnail, opts.Thumbnail),
	)
	defer span.End()

	if r.cache != nil {
		data, hit, err := r.cache.Get(ctx, key)
		if err != nil {
			r.logger.WarnContext(ctx, "render cache lookup failed", "key", key.String(), "error", err)
		}
		if r.metrics != nil {
			r.metrics.RecordLookup(ctx, hit)
		}
		span.SetAttributes(attribute.Bool(telemetry.AttrRenderCacheHit, hit))
		if hit {
			return data, nil
		}
	}

	v, err, _ := r.group.Do(key.String(), func() (any, error) {
		start := time.Now()
		data, err := r.render(img, key)
		if err != nil {
			return nil, err
		}
		if r.metrics != nil {
			r.metrics.RecordRender(ctx, key.Thumbnail, float64(time.Since(start))/float64(time.Millisecond))
		}
		if r.cache != nil {
			if err := r.cache.Set(ctx, key, data); err != nil {
				r.logger.WarnContext(ctx, "render cache store failed", "key", key.String(), "error", err)
			}
		}
		return data, nil
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	return v.([]byte), nil
}

// Invalidate drops cached renders of an image.
func (r *Renderer) Invalidate(ctx context.Context, imageID int64) error {
	if r.cache == nil {
		return nil
	}
	return r.cache.InvalidateImage(ctx, imageID)
}

func (r *Renderer) render(img *models.Image, key Key) ([]byte, error) {
	var (
		src image.Image
		err error
	)
	if key.Thumbnail {
		src, err = r.Thumbnail(img)
	} else {
		src, err = DecodeFile(img.Path, r.maxPixels)
	}
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := EncodeJPEG(&buf, Resize(src, key.Width, key.Height)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Thumbnail returns the derived thumbnail of img, generating and storing it
// under the dataset's thumbnail directory on first use.
func (r *Renderer) Thumbnail(img *models.Image) (image.Image, error) {
	path := img.ThumbnailPath()
	thumb, err := DecodeFile(path, r.maxPixels)
	if err == nil {
		return thumb, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		r.logger.Warn("regenerating unreadable thumbnail", "path", path, "error", err)
	}

	src, err := DecodeFile(img.Path, r.maxPixels)
	if err != nil {
		return nil, err
	}
	resized := Resize(src, r.thumbnailSize, r.thumbnailSize)
	if err := writeJPEGFile(path, resized); err != nil {
		return nil, err
	}
	return resized, nil
}

// writeJPEGFile writes through a temporary file so readers never observe a
// partially written thumbnail.
func writeJPEGFile(path string, img image.Image) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create thumbnail directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".tmp-*.jpg")
	if err != nil {
		return fmt.Errorf("create thumbnail: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := EncodeJPEG(tmp, img); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write thumbnail: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("store thumbnail: %w", err)
	}
	return nil
}
