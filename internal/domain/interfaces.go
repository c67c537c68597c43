package domain

import "context"

// Renderer rasterizes the first page of a PDF
type Renderer interface {
	// RenderFirstPage writes page 1 of doc to doc.RasterPath() and describes it.
	// On error the returned page may still carry an ImagePath if a file was created.
	RenderFirstPage(ctx context.Context, doc SourceDocument) (RenderedPage, error)
}

// Preprocessor rewrites a rendered page in place for barcode legibility
type Preprocessor interface {
	ProcessFile(ctx context.Context, imagePath string) error
}

// Decoder reads a barcode from a preprocessed image file
type Decoder interface {
	// DecodeFile never returns an error: any failure is reported as NotFound
	DecodeFile(ctx context.Context, imagePath string) DecodeResult
}

// Disposer files a document according to its decode result
type Disposer interface {
	// Dispose moves doc into output when result carries a usable barcode.
	// A non-nil error means the document is still at its original path.
	Dispose(ctx context.Context, doc SourceDocument, result DecodeResult, output string) (Outcome, error)

	// Cleanup removes a temporary raster; a missing file is not an error
	Cleanup(imagePath string) error
}
