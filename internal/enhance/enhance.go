// Package enhance implements the page image enhancement pipeline: a
// pure, deterministic transform from a source image and a configuration
// to a processed image. Stages run in a fixed order and each stage is a
// true no-op when disabled.
package enhance

import (
	"fmt"
	"image"
	"image/jpeg"
	"io"
	"os"

	// Page sources are JPEG, PNG or WEBP per the naming profiles.
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/webp"
)

// UnsupportedImageError reports an unreadable or corrupt source image.
// It is recoverable per page: the page is omitted and the run continues.
type UnsupportedImageError struct {
	Path string
	Err  error
}

func (e *UnsupportedImageError) Error() string {
	return fmt.Sprintf("unsupported or corrupt image %s: %v", e.Path, e.Err)
}

func (e *UnsupportedImageError) Unwrap() error {
	return e.Err
}

// Config contains the options for one pipeline run. It is immutable for
// the duration of a run and consumed read-only.
type Config struct {
	// TargetWidth scales pages so their width matches, preserving aspect
	// ratio. 0 disables resizing.
	TargetWidth int `json:"target_width"`
	// Quality is the JPEG quality of staged output (1-100).
	Quality int `json:"quality"`
	// Contrast is a multiplier around the image mean; 1.0 is identity.
	Contrast float64 `json:"contrast"`
	// Sharpen is the unsharp-mask amount; 0 is identity.
	Sharpen float64 `json:"sharpen"`
	// Grayscale converts to single-channel luminance.
	Grayscale bool `json:"grayscale"`
	// AdaptiveThreshold binarizes against a local-neighborhood mean.
	// Forces grayscale first.
	AdaptiveThreshold bool `json:"adaptive_threshold"`
	// Denoise applies an edge-preserving bilateral smoothing before the
	// contrast and sharpening stages.
	Denoise bool `json:"denoise"`
	// AutoContrast stretches the histogram to full range before the
	// Contrast multiplier is applied.
	AutoContrast bool `json:"auto_contrast"`
	// TrimBorders crops uniform page borders and re-pads with a white
	// margin of PadPixels.
	TrimBorders bool `json:"trim_borders"`
	PadPixels   int  `json:"pad_pixels"`
	// Dither applies a Floyd-Steinberg dither to 16 gray levels as the
	// final stage, for e-ink panels.
	Dither bool `json:"dither"`
}

// DefaultConfig mirrors the defaults of the desktop optimizer.
func DefaultConfig() Config {
	return Config{
		TargetWidth:  1200,
		Quality:      84,
		Contrast:     1.15,
		Sharpen:      0.6,
		Denoise:      true,
		AutoContrast: true,
		TrimBorders:  true,
		PadPixels:    16,
	}
}

// Process applies the enabled stages to src in their fixed order and
// returns the result. The source image is never mutated; stages that are
// disabled (or configured to identity) pass their input through
// untouched. The same function serves production runs and live previews.
func Process(src image.Image, cfg Config) image.Image {
	img := src
	img = resizeToWidth(img, cfg.TargetWidth)
	if cfg.Grayscale {
		img = grayscale(img)
	}
	if cfg.Denoise {
		img = bilateral(img)
	}
	if cfg.AutoContrast {
		img = autoContrast(img)
	}
	if cfg.Contrast > 0 && cfg.Contrast != 1.0 {
		img = contrast(img, cfg.Contrast)
	}
	if cfg.Sharpen > 0 {
		img = unsharp(img, cfg.Sharpen)
	}
	if cfg.AdaptiveThreshold {
		// Threshold implies a single channel; grayscale is applied first
		// if it has not been already.
		img = adaptiveThreshold(grayscale(img))
	}
	if cfg.TrimBorders {
		img = trimAndPad(img, cfg.PadPixels)
	}
	if cfg.Dither {
		img = einkDither(img)
	}
	return img
}

// Decode reads and decodes a source page image.
func Decode(r io.Reader, name string) (image.Image, error) {
	img, _, err := image.Decode(r)
	if err != nil {
		return nil, &UnsupportedImageError{Path: name, Err: err}
	}
	return img, nil
}

// DecodeFile decodes a source page image from disk.
func DecodeFile(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &UnsupportedImageError{Path: path, Err: err}
	}
	defer f.Close()
	return Decode(f, path)
}

// EncodeJPEG writes img as JPEG with the configured quality.
func EncodeJPEG(w io.Writer, img image.Image, quality int) error {
	if quality <= 0 {
		quality = DefaultConfig().Quality
	}
	if quality > 100 {
		quality = 100
	}
	return jpeg.Encode(w, img, &jpeg.Options{Quality: quality})
}
