package pdf

import (
	"context"
	"errors"
	"fmt"
	"image"

	"github.com/disintegration/imaging"
	"github.com/gen2brain/go-fitz"

	"github.com/justMega/barcode-pdf-pc/internal/domain"
	"github.com/justMega/barcode-pdf-pc/internal/observability"
)

const (
	// DefaultDPI is the rasterization resolution for page 1
	DefaultDPI = 300.0

	// DefaultJPEGQuality is used for the temporary raster file
	DefaultJPEGQuality = 95
)

// Renderer rasterizes the first page of a PDF with go-fitz (MuPDF)
type Renderer struct {
	dpi       float64
	quality   int
	validator *Validator
	logger    *observability.Logger
}

// NewRenderer creates a renderer. Zero values fall back to the defaults.
func NewRenderer(dpi float64, quality int, logger *observability.Logger) *Renderer {
	if dpi <= 0 {
		dpi = DefaultDPI
	}
	if quality < 1 || quality > 100 {
		quality = DefaultJPEGQuality
	}
	if logger == nil {
		logger = observability.Nop()
	}
	return &Renderer{
		dpi:       dpi,
		quality:   quality,
		validator: NewValidator(),
		logger:    logger.WithOperation("render"),
	}
}

// RenderFirstPage renders page 1 of doc to doc.RasterPath() as a JPEG.
func (r *Renderer) RenderFirstPage(ctx context.Context, doc domain.SourceDocument) (domain.RenderedPage, error) {
	page := domain.RenderedPage{Source: doc.Path}

	if err := r.validator.ValidatePath(doc.Path); err != nil {
		return page, domain.RenderError(doc.Path, "invalid source document", err)
	}

	// pdfcpu is stricter than MuPDF; a parse failure here is only a warning
	// and the final word belongs to the rasterizer.
	pages, err := r.validator.PageCount(doc.Path)
	switch {
	case err != nil:
		r.logger.Warn().Str("document", doc.Path).Err(err).Msg("pdfcpu could not parse document, trying rasterizer")
	case pages < 1:
		return page, domain.RenderError(doc.Path, "document has no pages", nil)
	}

	img, err := r.rasterize(ctx, doc.Path)
	if err != nil {
		return page, err
	}

	page.ImagePath = doc.RasterPath()
	if err := imaging.Save(img, page.ImagePath, imaging.JPEGQuality(r.quality)); err != nil {
		return page, domain.RenderError(doc.Path, "failed to write page image", err)
	}

	bounds := img.Bounds()
	page.Width = bounds.Dx()
	page.Height = bounds.Dy()

	r.logger.Debug().
		Str("document", doc.Path).
		Str("image", page.ImagePath).
		Int("width", page.Width).
		Int("height", page.Height).
		Msg("rendered first page")

	return page, nil
}

type rasterResult struct {
	img image.Image
	err error
}

// rasterize runs MuPDF off the caller's goroutine so a timeout can abandon it.
// Nothing is written to disk here, so an abandoned render leaves no artifact.
func (r *Renderer) rasterize(ctx context.Context, path string) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, domain.RenderError(path, "render cancelled", err)
	}

	done := make(chan rasterResult, 1)
	go func() {
		img, err := renderPageOne(path, r.dpi)
		done <- rasterResult{img: img, err: err}
	}()

	select {
	case res := <-done:
		if res.err != nil {
			return nil, domain.RenderError(path, "failed to render first page", res.err)
		}
		return res.img, nil
	case <-ctx.Done():
		return nil, domain.RenderError(path, "render cancelled", ctx.Err())
	}
}

func renderPageOne(path string, dpi float64) (image.Image, error) {
	doc, err := fitz.New(path)
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}
	defer doc.Close()

	if doc.NumPage() < 1 {
		return nil, errors.New("document has no pages")
	}

	img, err := doc.ImageDPI(0, dpi)
	if err != nil {
		return nil, fmt.Errorf("render page 1: %w", err)
	}
	return img, nil
}
