// Package testutil builds barcode images and PDFs for pipeline tests.
package testutil

import (
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/makiuchi-d/gozxing"
	"github.com/makiuchi-d/gozxing/oned"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/stretchr/testify/require"
)

// Page geometry in PDF points. pdfcpu's "full" import makes the page exactly
// the size of the image, so pixels map 1:1 to points.
const (
	PageWidth  = 600
	PageHeight = 848
)

// Code128 renders text as a Code 128 symbol of the given pixel size.
func Code128(t testing.TB, text string, width, height int) image.Image {
	t.Helper()

	matrix, err := oned.NewCode128Writer().Encode(text, gozxing.BarcodeFormat_CODE_128, width, height, nil)
	require.NoError(t, err)
	return matrix
}

// BlankPage returns a white page-sized image.
func BlankPage() *image.NRGBA {
	return imaging.New(PageWidth, PageHeight, color.White)
}

// BarcodePage returns a page with a Code 128 symbol for text near the top edge,
// inside the strip the preprocessor keeps.
func BarcodePage(t testing.TB, text string) *image.NRGBA {
	t.Helper()
	return imaging.Paste(BlankPage(), Code128(t, text, 500, 100), image.Pt(50, 30))
}

// BottomBarcodePage places the symbol near the bottom edge, outside the cropped strip.
func BottomBarcodePage(t testing.TB, text string) *image.NRGBA {
	t.Helper()
	return imaging.Paste(BlankPage(), Code128(t, text, 500, 100), image.Pt(50, PageHeight-150))
}

// WriteImagePDF writes a single-page PDF containing img to path.
func WriteImagePDF(t testing.TB, path string, img image.Image) {
	t.Helper()

	pngPath := filepath.Join(t.TempDir(), "page.png")
	require.NoError(t, imaging.Save(img, pngPath))
	require.NoError(t, api.ImportImagesFile([]string{pngPath}, path, pdfcpu.DefaultImportConfig(), nil))
}

// WriteBarcodePDF writes a single-page PDF with a Code 128 symbol for text.
func WriteBarcodePDF(t testing.TB, path, text string) {
	t.Helper()
	WriteImagePDF(t, path, BarcodePage(t, text))
}

// WriteBlankPDF writes a single-page PDF without any barcode.
func WriteBlankPDF(t testing.TB, path string) {
	t.Helper()
	WriteImagePDF(t, path, BlankPage())
}

// WriteFile writes raw bytes, for non-PDF fixtures.
func WriteFile(t testing.TB, path string, data []byte) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, data, 0o644))
}

// FilesWithExt lists the names of regular files in dir ending in ext.
func FilesWithExt(t testing.TB, dir, ext string) []string {
	t.Helper()

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)

	var names []string
	for _, e := range entries {
		if !e.IsDir() && filepath.Ext(e.Name()) == ext {
			names = append(names, e.Name())
		}
	}
	return names
}
