package pdf

import (
	"fmt"
	"os"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"github.com/justMega/barcode-pdf-pc/internal/domain"
)

func init() {
	// Keep pdfcpu from creating a config directory under the user's home.
	model.ConfigPath = "disable"
}

// Validator checks that a path points at a readable PDF with at least one page
type Validator struct {
	conf *model.Configuration
}

// NewValidator creates a validator using pdfcpu's relaxed validation mode,
// which tolerates the small structural defects common in scanner output.
func NewValidator() *Validator {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	return &Validator{conf: conf}
}

// ValidatePath validates that path is an existing regular file with the ".pdf" extension
func (v *Validator) ValidatePath(path string) error {
	if strings.TrimSpace(path) == "" {
		return domain.ValidationError("file path cannot be empty", nil)
	}

	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return domain.ValidationError(fmt.Sprintf("file does not exist: %s", path), err)
		}
		return domain.ValidationError(fmt.Sprintf("cannot access file: %s", path), err)
	}

	if info.IsDir() {
		return domain.ValidationError(fmt.Sprintf("path is a directory, not a file: %s", path), nil)
	}

	if !domain.IsEligible(path) {
		return domain.ValidationError(fmt.Sprintf("file is not a .pdf: %s", path), nil)
	}

	return nil
}

// PageCount parses the document with pdfcpu and returns its number of pages
func (v *Validator) PageCount(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("open pdf: %w", err)
	}
	defer f.Close()

	n, err := api.PageCount(f, v.conf)
	if err != nil {
		return 0, fmt.Errorf("parse pdf: %w", err)
	}
	return n, nil
}
