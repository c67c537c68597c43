package commands

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/justMega/barcode-pdf-pc/internal/domain"
)

func TestDocumentRow(t *testing.T) {
	relocated := domain.DocumentResult{
		Document: domain.SourceDocument{Path: "/in/scan1.pdf"},
		Decode:   domain.Decoded("CODE_128", "INV-7"),
		Outcome:  domain.Relocated("/out/INV-7.pdf"),
	}
	assert.Equal(t, []string{"scan1.pdf", "relocated", "INV-7", "/out/INV-7.pdf"}, documentRow(relocated))

	failed := domain.DocumentResult{
		Document: domain.SourceDocument{Path: "/in/scan2.pdf"},
		Outcome:  domain.Failed(errors.New("render failed")),
	}
	assert.Equal(t, []string{"scan2.pdf", "failed", "", "render failed"}, documentRow(failed))
}

func TestShortID(t *testing.T) {
	assert.Equal(t, "0123abcd", shortID("0123abcd-0000-0000-0000-000000000000"))
	assert.Equal(t, "abc", shortID("abc"))
}

func TestVersionCommand(t *testing.T) {
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"version", "--no-color"})
	defer rootCmd.SetArgs(nil)

	assert.NoError(t, rootCmd.Execute())
	assert.Equal(t, "barcode-filer "+Version+"\n", out.String())
}
