package imaging

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"io"
	"os"

	// Formats accepted on upload and render.
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// ErrUnsupportedImage is returned when the data is not a decodable image.
var ErrUnsupportedImage = errors.New("unsupported or corrupt image")

// DefaultMaxPixels bounds width*height when no explicit limit is given.
const DefaultMaxPixels = 89478485

// Info describes an image without decoding its pixels.
type Info struct {
	Width  int
	Height int
	Format string
}

// Probe reads the header of data and reports its dimensions and format.
// Images declaring more than maxPixels pixels are rejected; maxPixels <= 0
// selects DefaultMaxPixels.
func Probe(data []byte, maxPixels int) (Info, error) {
	return probe(bytes.NewReader(data), maxPixels)
}

func probe(r io.Reader, maxPixels int) (Info, error) {
	cfg, format, err := image.DecodeConfig(r)
	if err != nil {
		return Info{}, fmt.Errorf("%w: %v", ErrUnsupportedImage, err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return Info{}, fmt.Errorf("%w: empty dimensions", ErrUnsupportedImage)
	}
	if maxPixels <= 0 {
		maxPixels = DefaultMaxPixels
	}
	if int64(cfg.Width)*int64(cfg.Height) > int64(maxPixels) {
		return Info{}, fmt.Errorf("%w: %dx%d exceeds the %d pixel limit", ErrUnsupportedImage, cfg.Width, cfg.Height, maxPixels)
	}
	return Info{Width: cfg.Width, Height: cfg.Height, Format: format}, nil
}

// Decode decodes a full image from r.
func Decode(r io.Reader) (image.Image, error) {
	img, _, err := image.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedImage, err)
	}
	return img, nil
}

// DecodeFile opens and decodes the image stored at path. The header is
// checked against maxPixels before any pixel data is allocated.
func DecodeFile(path string, maxPixels int) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open image: %w", err)
	}
	defer f.Close()

	if _, err := probe(f, maxPixels); err != nil {
		return nil, err
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("rewind image: %w", err)
	}
	return Decode(f)
}
