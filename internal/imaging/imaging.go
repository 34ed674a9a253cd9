// Package imaging normalizes user images before they go to the vision model.
package imaging

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

const (
	DefaultMaxDimension = 1024
	// DefaultMaxPixels bounds the decoded size; compressed size says little
	// about the memory a decode needs.
	DefaultMaxPixels = 40_000_000
	JPEGQuality         = 85
	OutputMIMEType      = "image/jpeg"
)

var (
	ErrEmptyImage    = errors.New("imaging: empty image")
	ErrTooManyPixels = errors.New("imaging: image dimensions too large")
)

// Result is a normalized JPEG.
type Result struct {
	Data           []byte
	MIMEType       string
	SourceFormat   string
	Width, Height  int
	OriginalWidth  int
	OriginalHeight int
}

// Normalize decodes a JPEG, PNG, GIF or WebP image, downscales it to fit a
// maxDim square while keeping the aspect ratio, and re-encodes it as JPEG.
// Images already within bounds are re-encoded without scaling. Images whose
// header declares more than maxPixels pixels are rejected before decoding.
func Normalize(raw []byte, maxDim, maxPixels int) (Result, error) {
	if len(raw) == 0 {
		return Result{}, ErrEmptyImage
	}
	if maxDim <= 0 {
		maxDim = DefaultMaxDimension
	}
	if maxPixels <= 0 {
		maxPixels = DefaultMaxPixels
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(raw))
	if err != nil {
		return Result{}, fmt.Errorf("decode image header: %w", err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 || int64(cfg.Width)*int64(cfg.Height) > int64(maxPixels) {
		return Result{}, fmt.Errorf("%w: %dx%d exceeds %d pixels", ErrTooManyPixels, cfg.Width, cfg.Height, maxPixels)
	}
	src, format, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return Result{}, fmt.Errorf("decode image: %w", err)
	}

	b := src.Bounds()
	w, h := fitWithin(b.Dx(), b.Dy(), maxDim)
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	// JPEG has no alpha; composite onto white so transparent areas do not turn black.
	draw.Draw(dst, dst.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	if w == b.Dx() && h == b.Dy() {
		draw.Draw(dst, dst.Bounds(), src, b.Min, draw.Over)
	} else {
		draw.CatmullRom.Scale(dst, dst.Bounds(), src, b, draw.Over, nil)
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: JPEGQuality}); err != nil {
		return Result{}, fmt.Errorf("encode jpeg: %w", err)
	}
	return Result{
		Data:           buf.Bytes(),
		MIMEType:       OutputMIMEType,
		SourceFormat:   format,
		Width:          w,
		Height:         h,
		OriginalWidth:  b.Dx(),
		OriginalHeight: b.Dy(),
	}, nil
}

func fitWithin(w, h, maxDim int) (int, int) {
	if w <= maxDim && h <= maxDim {
		return w, h
	}
	if w >= h {
		nh := h * maxDim / w
		if nh < 1 {
			nh = 1
		}
		return maxDim, nh
	}
	nw := w * maxDim / h
	if nw < 1 {
		nw = 1
	}
	return nw, maxDim
}
