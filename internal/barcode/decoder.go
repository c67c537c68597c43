// Package barcode locates and decodes a single barcode in a page image.
package barcode

import (
	"context"
	"fmt"
	"image"

	"github.com/disintegration/imaging"
	"github.com/makiuchi-d/gozxing"
	"github.com/makiuchi-d/gozxing/aztec"
	"github.com/makiuchi-d/gozxing/datamatrix"
	"github.com/makiuchi-d/gozxing/oned"
	"github.com/makiuchi-d/gozxing/oned/rss"
	"github.com/makiuchi-d/gozxing/qrcode"

	"github.com/justMega/barcode-pdf-pc/internal/domain"
	"github.com/justMega/barcode-pdf-pc/internal/observability"
)

type namedReader struct {
	name   string
	reader gozxing.Reader
}

// Decoder tries the one-dimensional formats, then QR Code, Data Matrix and
// Aztec. The first reader that succeeds wins.
type Decoder struct {
	tryHarder bool
	logger    *observability.Logger
}

// NewDecoder creates a decoder. tryHarder trades speed for recall.
func NewDecoder(tryHarder bool, logger *observability.Logger) *Decoder {
	if logger == nil {
		logger = observability.Nop()
	}
	return &Decoder{
		tryHarder: tryHarder,
		logger:    logger.WithOperation("decode"),
	}
}

func (d *Decoder) hints() map[gozxing.DecodeHintType]interface{} {
	hints := map[gozxing.DecodeHintType]interface{}{}
	if d.tryHarder {
		hints[gozxing.DecodeHintType_TRY_HARDER] = true
	}
	return hints
}

// readers are built per call; gozxing readers keep internal state.
func (d *Decoder) readers(hints map[gozxing.DecodeHintType]interface{}) []namedReader {
	return []namedReader{
		{"code128", oned.NewCode128Reader()},
		{"code39", oned.NewCode39Reader()},
		{"code93", oned.NewCode93Reader()},
		{"upc/ean", oned.NewMultiFormatUPCEANReader(hints)},
		{"itf", oned.NewITFReader()},
		{"codabar", oned.NewCodaBarReader()},
		{"rss14", rss.NewRSS14Reader()},
		{"qr", qrcode.NewQRCodeReader()},
		{"datamatrix", datamatrix.NewDataMatrixReader()},
		{"aztec", aztec.NewAztecReader()},
	}
}

// Decode returns the first barcode found in img
func (d *Decoder) Decode(img image.Image) (domain.DecodeResult, error) {
	bmp, err := gozxing.NewBinaryBitmapFromImage(img)
	if err != nil {
		return domain.NotFound(), domain.DecodeError("", "failed to binarize image", err)
	}

	hints := d.hints()
	var lastErr error
	for _, r := range d.readers(hints) {
		result, err := r.reader.Decode(bmp, hints)
		if err != nil {
			lastErr = fmt.Errorf("%s: %w", r.name, err)
			continue
		}
		return domain.Decoded(result.GetBarcodeFormat().String(), result.GetText()), nil
	}
	return domain.NotFound(), domain.DecodeError("", "no barcode found", lastErr)
}

// DecodeFile reads the image at path and decodes it. Every failure, including
// an unreadable file or a done context, is reported as NotFound and logged at
// debug level.
func (d *Decoder) DecodeFile(ctx context.Context, path string) domain.DecodeResult {
	result, err := d.decodeFile(ctx, path)
	if err != nil {
		d.logger.Debug().Str("image", path).Err(err).Msg("no barcode decoded")
		return domain.NotFound()
	}

	d.logger.Debug().
		Str("image", path).
		Str("symbology", result.Symbology).
		Str("text", result.Text).
		Msg("barcode decoded")
	return result
}

type decodeOutcome struct {
	result domain.DecodeResult
	err    error
}

// decodeFile runs the readers off the caller's goroutine so the document
// timeout bounds the decode as well.
func (d *Decoder) decodeFile(ctx context.Context, path string) (domain.DecodeResult, error) {
	if err := ctx.Err(); err != nil {
		return domain.NotFound(), domain.DecodeError(path, "decode cancelled", err)
	}

	done := make(chan decodeOutcome, 1)
	go func() {
		img, err := imaging.Open(path)
		if err != nil {
			done <- decodeOutcome{domain.NotFound(), domain.DecodeError(path, "could not read image", err)}
			return
		}
		result, err := d.Decode(img)
		done <- decodeOutcome{result, err}
	}()

	select {
	case out := <-done:
		return out.result, out.err
	case <-ctx.Done():
		return domain.NotFound(), domain.DecodeError(path, "decode cancelled", ctx.Err())
	}
}
