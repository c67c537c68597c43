// Package preprocess enhances a rendered page so barcodes in its top strip decode reliably.
package preprocess

import (
	"context"
	"fmt"
	"image"

	"github.com/disintegration/imaging"
	"golang.org/x/image/draw"

	"github.com/justMega/barcode-pdf-pc/internal/domain"
	"github.com/justMega/barcode-pdf-pc/internal/observability"
)

// Params are the calibration constants of the transform chain
type Params struct {
	// Width and Height of the intermediate resize. Aspect ratio is not preserved.
	Width  int `yaml:"width"`
	Height int `yaml:"height"`

	// CropHeight is the height of the strip kept from the top-left corner (~20% of Height)
	CropHeight int `yaml:"crop_height"`

	// ContrastPercentage is passed to imaging.AdjustContrast. 55.56 gives a
	// linear gain of 2.25 around mid-gray.
	ContrastPercentage float64 `yaml:"contrast_percentage"`

	// SharpenKernel is a 3x3 convolution kernel, row-major
	SharpenKernel [9]float64 `yaml:"sharpen_kernel"`

	JPEGQuality int `yaml:"jpeg_quality"`
}

// DefaultParams returns the calibrated chain
func DefaultParams() Params {
	return Params{
		Width:              3072,
		Height:             3072,
		CropHeight:         615,
		ContrastPercentage: 55.56,
		SharpenKernel: [9]float64{
			0, -1, 0,
			-1, 5, -1,
			0, -1, 0,
		},
		JPEGQuality: 95,
	}
}

// Validate checks the parameters are usable
func (p Params) Validate() error {
	if p.Width <= 0 || p.Height <= 0 {
		return fmt.Errorf("resize dimensions must be positive, got %dx%d", p.Width, p.Height)
	}
	if p.CropHeight <= 0 || p.CropHeight > p.Height {
		return fmt.Errorf("crop height must be in (0, %d], got %d", p.Height, p.CropHeight)
	}
	if p.ContrastPercentage < -100 || p.ContrastPercentage > 100 {
		return fmt.Errorf("contrast percentage must be in [-100, 100], got %g", p.ContrastPercentage)
	}
	if p.JPEGQuality < 1 || p.JPEGQuality > 100 {
		return fmt.Errorf("jpeg quality must be in [1, 100], got %d", p.JPEGQuality)
	}
	return nil
}

// Preprocessor applies the fixed transform chain to page images
type Preprocessor struct {
	params Params
	logger *observability.Logger
}

// New creates a Preprocessor. Invalid params fall back to DefaultParams.
func New(params Params, logger *observability.Logger) *Preprocessor {
	if logger == nil {
		logger = observability.Nop()
	}
	logger = logger.WithOperation("preprocess")
	if err := params.Validate(); err != nil {
		logger.Warn().Err(err).Msg("invalid preprocess parameters, using defaults")
		params = DefaultParams()
	}
	return &Preprocessor{params: params, logger: logger}
}

// Params returns the parameters in use
func (p *Preprocessor) Params() Params {
	return p.params
}

// Apply runs resize, crop, grayscale, contrast and sharpen in that order.
// The result is single-channel and depends only on img.
func (p *Preprocessor) Apply(img image.Image) *image.Gray {
	out := imaging.Resize(img, p.params.Width, p.params.Height, imaging.Lanczos)
	out = imaging.Crop(out, image.Rect(0, 0, p.params.Width, p.params.CropHeight))
	out = imaging.Grayscale(out)
	out = imaging.AdjustContrast(out, p.params.ContrastPercentage)
	out = imaging.Convolve3x3(out, p.params.SharpenKernel, nil)
	return toGray(out)
}

// ProcessFile reads the image at path, applies the chain and overwrites the file
// with the grayscale result as JPEG.
func (p *Preprocessor) ProcessFile(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return domain.IOError(path, "preprocess cancelled", err)
	}

	img, err := imaging.Open(path)
	if err != nil {
		return domain.IOError(path, "failed to read page image", err)
	}

	gray := p.Apply(img)

	if err := imaging.Save(gray, path, imaging.JPEGQuality(p.params.JPEGQuality)); err != nil {
		return domain.IOError(path, "failed to write preprocessed image", err)
	}

	p.logger.Debug().
		Str("image", path).
		Int("width", gray.Bounds().Dx()).
		Int("height", gray.Bounds().Dy()).
		Msg("preprocessed page image")

	return nil
}

func toGray(img image.Image) *image.Gray {
	b := img.Bounds()
	gray := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(gray, gray.Bounds(), img, b.Min, draw.Src)
	return gray
}
