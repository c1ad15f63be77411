package imaging

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/gif"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sriramreddyM/coco-annotator/internal/db/models"
)

func writePNG(t *testing.T, path string, w, h int) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.NRGBA{R: uint8(x), G: uint8(y), B: 200, A: 128})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
	return buf.Bytes()
}

func decodeJPEG(t *testing.T, data []byte) image.Image {
	t.Helper()
	img, err := jpeg.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	return img
}

func TestFit(t *testing.T) {
	tests := []struct {
		name         string
		srcW, srcH   int
		maxW, maxH   int
		wantW, wantH int
	}{
		{"unbounded", 200, 100, 0, 0, 200, 100},
		{"width bound", 200, 100, 50, 0, 50, 25},
		{"height bound", 200, 100, 0, 20, 40, 20},
		{"both bounds, height tighter", 200, 100, 100, 10, 20, 10},
		{"never enlarges", 200, 100, 1000, 1000, 200, 100},
		{"tiny result clamps to one pixel", 1000, 1, 10, 10, 10, 1},
		{"empty source", 0, 0, 10, 10, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, h := Fit(tt.srcW, tt.srcH, tt.maxW, tt.maxH)
			assert.Equal(t, tt.wantW, w)
			assert.Equal(t, tt.wantH, h)
		})
	}
}

func TestProbe(t *testing.T) {
	data := writePNG(t, filepath.Join(t.TempDir(), "a.png"), 30, 20)
	info, err := Probe(data, 0)
	require.NoError(t, err)
	assert.Equal(t, Info{Width: 30, Height: 20, Format: "png"}, info)

	_, err = Probe([]byte("definitely not an image"), 0)
	assert.ErrorIs(t, err, ErrUnsupportedImage)
}

// gifHeader is a bare GIF header declaring w x h pixels with no pixel data.
func gifHeader(w, h uint16) []byte {
	return []byte{
		'G', 'I', 'F', '8', '9', 'a',
		byte(w), byte(w >> 8), byte(h), byte(h >> 8),
		0x00, 0x00, 0x00,
		0x3b,
	}
}

func TestProbe_PixelLimit(t *testing.T) {
	data := writePNG(t, filepath.Join(t.TempDir(), "a.png"), 30, 20)

	_, err := Probe(data, 600)
	assert.NoError(t, err)
	_, err = Probe(data, 599)
	assert.ErrorIs(t, err, ErrUnsupportedImage)

	_, err = Probe(gifHeader(65535, 65535), 0)
	assert.ErrorIs(t, err, ErrUnsupportedImage)
}

func TestDecodeFile_PixelLimit(t *testing.T) {
	dir := t.TempDir()
	bomb := filepath.Join(dir, "bomb.gif")
	require.NoError(t, os.WriteFile(bomb, gifHeader(65535, 65535), 0o644))

	_, err := DecodeFile(bomb, 0)
	assert.ErrorIs(t, err, ErrUnsupportedImage)

	small := filepath.Join(dir, "small.png")
	writePNG(t, small, 30, 20)
	img, err := DecodeFile(small, 600)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 30, 20), img.Bounds())
	_, err = DecodeFile(small, 599)
	assert.ErrorIs(t, err, ErrUnsupportedImage)
}

func TestRenderer_RejectsOversizedStoredFile(t *testing.T) {
	r, cache := newTestRenderer(t)
	img := &models.Image{ID: 3, Path: filepath.Join(t.TempDir(), "bomb.gif"), Width: 10, Height: 10}
	require.NoError(t, os.WriteFile(img.Path, gifHeader(65535, 65535), 0o644))

	_, err := r.Render(context.Background(), img, Options{Thumbnail: true})
	assert.ErrorIs(t, err, ErrUnsupportedImage)
	assert.Equal(t, 0, cache.sets)
	assert.NoFileExists(t, img.ThumbnailPath())
}

func TestResize_FlattensAlpha(t *testing.T) {
	src := image.NewNRGBA(image.Rect(0, 0, 4, 4))
	out := Resize(src, 0, 0)
	assert.Equal(t, image.Rect(0, 0, 4, 4), out.Bounds())
	// Fully transparent pixels become the white canvas.
	assert.Equal(t, color.RGBA{R: 255, G: 255, B: 255, A: 255}, out.RGBAAt(1, 1))
}

type countingCache struct {
	*LRUCache
	sets int
}

func (c *countingCache) Set(ctx context.Context, key Key, data []byte) error {
	c.sets++
	return c.LRUCache.Set(ctx, key, data)
}

func newTestRenderer(t *testing.T) (*Renderer, *countingCache) {
	t.Helper()
	lc, err := NewLRUCache(16)
	require.NoError(t, err)
	cache := &countingCache{LRUCache: lc}
	return NewRenderer(cache, Limits{ThumbnailSize: 64}, nil, nil), cache
}

func TestRenderer_Render(t *testing.T) {
	dir := t.TempDir()
	img := &models.Image{ID: 7, Path: filepath.Join(dir, "ds", "photo.png"), Width: 200, Height: 100}
	writePNG(t, img.Path, 200, 100)
	r, cache := newTestRenderer(t)
	ctx := context.Background()

	full, err := r.Render(ctx, img, Options{})
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 200, 100), decodeJPEG(t, full).Bounds())

	small, err := r.Render(ctx, img, Options{Width: 50})
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 50, 100*50/200), decodeJPEG(t, small).Bounds())

	big, err := r.Render(ctx, img, Options{Width: 4000, Height: 4000})
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 200, 100), decodeJPEG(t, big).Bounds())
	assert.Equal(t, 3, cache.sets)

	again, err := r.Render(ctx, img, Options{Width: 50})
	require.NoError(t, err)
	assert.Equal(t, small, again)
	assert.Equal(t, 3, cache.sets, "second request is served from the cache")

	require.NoError(t, r.Invalidate(ctx, img.ID))
	assert.Equal(t, 0, cache.Len())
}

func TestRenderer_Thumbnail(t *testing.T) {
	dir := t.TempDir()
	img := &models.Image{ID: 1, Path: filepath.Join(dir, "ds", "photo.png"), Width: 200, Height: 100}
	writePNG(t, img.Path, 200, 100)
	r, _ := newTestRenderer(t)

	data, err := r.Render(context.Background(), img, Options{Thumbnail: true})
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 64, 32), decodeJPEG(t, data).Bounds())

	thumbPath := filepath.Join(dir, "ds", models.ThumbnailDir, "photo.png.jpg")
	require.FileExists(t, thumbPath)

	// The stored thumbnail is reused even after the original disappears.
	require.NoError(t, os.Remove(img.Path))
	thumb, err := r.Thumbnail(img)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 64, 32), thumb.Bounds())
}

func writeSolid(t *testing.T, path string, c color.Color, encode func(*bytes.Buffer, image.Image) error) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 20, 20))
	for y := 0; y < 20; y++ {
		for x := 0; x < 20; x++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	require.NoError(t, encode(&buf, img))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
}

func TestRenderer_ThumbnailsOfSameStemFilesStayDistinct(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "ds")
	blue := &models.Image{ID: 1, Path: filepath.Join(dir, "a.png"), Width: 20, Height: 20}
	red := &models.Image{ID: 2, Path: filepath.Join(dir, "a.gif"), Width: 20, Height: 20}
	writeSolid(t, blue.Path, color.RGBA{B: 255, A: 255}, func(b *bytes.Buffer, img image.Image) error {
		return png.Encode(b, img)
	})
	writeSolid(t, red.Path, color.RGBA{R: 255, A: 255}, func(b *bytes.Buffer, img image.Image) error {
		paletted := image.NewPaletted(img.Bounds(), color.Palette{color.RGBA{R: 255, A: 255}})
		return gif.Encode(b, paletted, nil)
	})
	require.NotEqual(t, blue.ThumbnailPath(), red.ThumbnailPath())

	r, _ := newTestRenderer(t)
	ctx := context.Background()
	_, err := r.Render(ctx, blue, Options{Thumbnail: true})
	require.NoError(t, err)
	data, err := r.Render(ctx, red, Options{Thumbnail: true})
	require.NoError(t, err)

	cr, _, cb, _ := decodeJPEG(t, data).At(10, 10).RGBA()
	assert.Greater(t, cr>>8, uint32(200), "red image keeps its own pixels")
	assert.Less(t, cb>>8, uint32(60))
	assert.FileExists(t, blue.ThumbnailPath())
	assert.FileExists(t, red.ThumbnailPath())
}

func TestRenderer_MissingFile(t *testing.T) {
	r, cache := newTestRenderer(t)
	img := &models.Image{ID: 2, Path: filepath.Join(t.TempDir(), "missing.png"), Width: 10, Height: 10}

	_, err := r.Render(context.Background(), img, Options{})
	assert.Error(t, err)
	assert.Equal(t, 0, cache.sets)
}

func TestLRUCache_InvalidateImage(t *testing.T) {
	c, err := NewLRUCache(8)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, Key{ImageID: 1, Width: 10}, []byte("a")))
	require.NoError(t, c.Set(ctx, Key{ImageID: 1, Width: 20, Thumbnail: true}, []byte("b")))
	require.NoError(t, c.Set(ctx, Key{ImageID: 2, Width: 10}, []byte("c")))

	require.NoError(t, c.InvalidateImage(ctx, 1))
	_, ok, _ := c.Get(ctx, Key{ImageID: 1, Width: 10})
	assert.False(t, ok)
	data, ok, _ := c.Get(ctx, Key{ImageID: 2, Width: 10})
	assert.True(t, ok)
	assert.Equal(t, []byte("c"), data)
}

func TestNewRedisCache_BadURL(t *testing.T) {
	_, err := NewRedisCache(context.Background(), "not-a-redis-url", 0)
	assert.Error(t, err)
}
