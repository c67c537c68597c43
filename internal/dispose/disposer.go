// Package dispose files classified documents into the output folder.
package dispose

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"unicode"
	"unicode/utf8"

	"github.com/justMega/barcode-pdf-pc/internal/domain"
	"github.com/justMega/barcode-pdf-pc/internal/observability"
)

// MaxNameBytes caps the length of a file name derived from barcode text
const MaxNameBytes = 200

// maxSuffix bounds the search for a free "<name>-N.pdf" slot
const maxSuffix = 9999

// CollisionPolicy decides what happens when the destination already exists
type CollisionPolicy string

const (
	CollisionError     CollisionPolicy = "error"
	CollisionSuffix    CollisionPolicy = "suffix"
	CollisionOverwrite CollisionPolicy = "overwrite"
)

// ParseCollisionPolicy parses a policy name. Empty means CollisionError.
func ParseCollisionPolicy(s string) (CollisionPolicy, error) {
	switch CollisionPolicy(strings.ToLower(strings.TrimSpace(s))) {
	case "", CollisionError:
		return CollisionError, nil
	case CollisionSuffix:
		return CollisionSuffix, nil
	case CollisionOverwrite:
		return CollisionOverwrite, nil
	default:
		return "", fmt.Errorf("unknown collision policy %q (want error, suffix or overwrite)", s)
	}
}

// SanitizeName turns decoded barcode text into a safe file name without extension.
func SanitizeName(text string) (string, error) {
	name := strings.Map(func(r rune) rune {
		if unicode.IsControl(r) || strings.ContainsRune(`/\<>:"|?*`, r) {
			return '_'
		}
		return r
	}, strings.TrimSpace(text))

	if len(name) > MaxNameBytes {
		cut := MaxNameBytes
		for cut > 0 && !utf8.RuneStart(name[cut]) {
			cut--
		}
		name = name[:cut]
	}

	if name == "" || name == "." || name == ".." {
		return "", fmt.Errorf("%w: %q", domain.ErrInvalidBarcodeText, text)
	}
	return name, nil
}

// Disposer moves decoded documents to the output folder and removes temporary rasters
type Disposer struct {
	policy CollisionPolicy
	logger *observability.Logger
}

// NewDisposer creates a disposer with the given collision policy
func NewDisposer(policy CollisionPolicy, logger *observability.Logger) *Disposer {
	if policy == "" {
		policy = CollisionError
	}
	if logger == nil {
		logger = observability.Nop()
	}
	return &Disposer{
		policy: policy,
		logger: logger.WithOperation("dispose"),
	}
}

// Policy returns the collision policy in use
func (d *Disposer) Policy() CollisionPolicy {
	return d.policy
}

// Dispose files doc according to result. A NotFound result, unusable barcode
// text or a done context leave the document where it is with a nil error.
// A returned error is always a disposition error and the document is untouched.
func (d *Disposer) Dispose(ctx context.Context, doc domain.SourceDocument, result domain.DecodeResult, output string) (domain.Outcome, error) {
	if !result.Found {
		d.logger.Info().Str("document", doc.Path).Msg("no barcode found, leaving document in place")
		return domain.LeftInPlace("no barcode found"), nil
	}

	if err := ctx.Err(); err != nil {
		d.logger.Warn().Str("document", doc.Path).Err(err).Msg("scan cancelled before filing, leaving document in place")
		return domain.LeftInPlace("cancelled before disposition"), nil
	}

	name, err := SanitizeName(result.Text)
	if err != nil {
		d.logger.Warn().Str("document", doc.Path).Str("text", result.Text).Err(err).Msg("barcode text is not a usable file name")
		outcome := domain.LeftInPlace("barcode text is not a usable file name")
		outcome.Err = err
		return outcome, nil
	}

	output = filepath.Clean(output)
	if err := checkOutput(output); err != nil {
		return domain.Failed(err), err
	}

	dest, reserved, err := d.reserve(output, name)
	if err != nil {
		derr := domain.DispositionError(doc.Path, "cannot claim destination", err)
		return domain.Failed(derr), derr
	}

	if err := move(doc.Path, dest); err != nil {
		if reserved {
			os.Remove(dest)
		}
		derr := domain.DispositionError(doc.Path, fmt.Sprintf("failed to move document to %s", dest), err)
		return domain.Failed(derr), derr
	}

	d.logger.Info().
		Str("document", doc.Path).
		Str("destination", dest).
		Str("text", result.Text).
		Msg("document relocated")
	return domain.Relocated(dest), nil
}

func checkOutput(output string) error {
	info, err := os.Stat(output)
	if err != nil {
		return domain.DispositionError(output, "output folder is not accessible", err)
	}
	if !info.IsDir() {
		return domain.DispositionError(output, "output folder is not a directory", nil)
	}
	return nil
}

// destination joins name onto the output folder and refuses anything that
// would land outside it.
func destination(output, name string) (string, error) {
	path := filepath.Join(output, name+domain.PDFExtension)
	if filepath.Dir(path) != output {
		return "", fmt.Errorf("%w: path escapes output folder", domain.ErrInvalidBarcodeText)
	}
	return path, nil
}

// reserve picks the destination path for name under the collision policy.
// For error and suffix policies an empty placeholder is created with O_EXCL so
// two workers never pick the same path; reserved reports whether it exists.
func (d *Disposer) reserve(output, name string) (path string, reserved bool, err error) {
	path, err = destination(output, name)
	if err != nil {
		return "", false, err
	}

	switch d.policy {
	case CollisionOverwrite:
		return path, false, nil

	case CollisionSuffix:
		for i := 0; i <= maxSuffix; i++ {
			candidate := path
			if i > 0 {
				candidate, err = destination(output, fmt.Sprintf("%s-%d", name, i))
				if err != nil {
					return "", false, err
				}
			}
			err = claim(candidate)
			if err == nil {
				return candidate, true, nil
			}
			if !errors.Is(err, os.ErrExist) {
				return "", false, err
			}
		}
		return "", false, fmt.Errorf("%w: no free slot for %q", domain.ErrDestinationExists, name)

	default:
		if err := claim(path); err != nil {
			if errors.Is(err, os.ErrExist) {
				return "", false, fmt.Errorf("%w: %s", domain.ErrDestinationExists, path)
			}
			return "", false, err
		}
		return path, true, nil
	}
}

func claim(path string) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return err
	}
	return f.Close()
}

// move renames src to dst, copying when the two are on different filesystems.
func move(src, dst string) error {
	err := os.Rename(src, dst)
	if err == nil {
		return nil
	}
	if !errors.Is(err, syscall.EXDEV) {
		return err
	}

	if err := copyFile(src, dst); err != nil {
		os.Remove(dst)
		return fmt.Errorf("cross-device copy: %w", err)
	}
	if err := os.Remove(src); err != nil {
		os.Remove(dst)
		return fmt.Errorf("remove source after copy: %w", err)
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return err
	}

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return err
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	if err := out.Sync(); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// Cleanup deletes the temporary raster at path. A missing file is not an error.
func (d *Disposer) Cleanup(path string) error {
	if path == "" {
		return nil
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return domain.CleanupError(path, "failed to delete temporary image", err)
	}
	return nil
}
