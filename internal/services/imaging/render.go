package imaging

import (
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"io"

	"golang.org/x/image/draw"
)

// JPEGQuality is the quality of every encoded response.
const JPEGQuality = 90

// Fit returns the largest size with the aspect ratio of srcW x srcH that fits
// into maxW x maxH without exceeding the source size. A non-positive bound
// leaves that dimension unconstrained.
func Fit(srcW, srcH, maxW, maxH int) (int, int) {
	if srcW <= 0 || srcH <= 0 {
		return 0, 0
	}
	if maxW <= 0 || maxW > srcW {
		maxW = srcW
	}
	if maxH <= 0 || maxH > srcH {
		maxH = srcH
	}

	w, h := srcW, srcH
	if w > maxW {
		h = max(1, h*maxW/w)
		w = maxW
	}
	if h > maxH {
		w = max(1, w*maxH/h)
		h = maxH
	}
	return w, h
}

// Resize shrinks src to fit inside maxW x maxH and flattens it onto an
// opaque white canvas.
func Resize(src image.Image, maxW, maxH int) *image.RGBA {
	b := src.Bounds()
	w, h := Fit(b.Dx(), b.Dy(), maxW, maxH)

	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(dst, dst.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	if w == b.Dx() && h == b.Dy() {
		draw.Draw(dst, dst.Bounds(), src, b.Min, draw.Over)
		return dst
	}
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, b, draw.Over, nil)
	return dst
}

// EncodeJPEG writes img as a JPEG at JPEGQuality.
func EncodeJPEG(w io.Writer, img image.Image) error {
	if err := jpeg.Encode(w, img, &jpeg.Options{Quality: JPEGQuality}); err != nil {
		return fmt.Errorf("encode jpeg: %w", err)
	}
	return nil
}
