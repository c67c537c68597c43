package domain

import (
	"errors"
	"fmt"
)

// ErrorType classifies pipeline failures
type ErrorType string

const (
	ErrorTypeRender      ErrorType = "render"
	ErrorTypeDecode      ErrorType = "decode"
	ErrorTypeDisposition ErrorType = "disposition"
	ErrorTypeCleanup     ErrorType = "cleanup"
	ErrorTypeValidation  ErrorType = "validation"
	ErrorTypeConfig      ErrorType = "config"
	ErrorTypeIO          ErrorType = "io"
)

var (
	// ErrDestinationExists is returned when the output path is taken and the
	// collision policy forbids replacing it
	ErrDestinationExists = errors.New("destination already exists")

	// ErrInvalidBarcodeText is returned when decoded text cannot be used as a file name
	ErrInvalidBarcodeText = errors.New("decoded text is not a usable file name")

	// ErrScanInProgress is returned when a scan is requested while another is running
	ErrScanInProgress = errors.New("scan already in progress")
)

// DomainError represents a pipeline error scoped to a single document
type DomainError struct {
	Type    ErrorType
	Message string
	Path    string
	Err     error
}

func (e *DomainError) Error() string {
	msg := fmt.Sprintf("[%s] %s", e.Type, e.Message)
	if e.Path != "" {
		msg = fmt.Sprintf("%s (%s)", msg, e.Path)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewError creates a new domain error
func NewError(errType ErrorType, message, path string, err error) *DomainError {
	return &DomainError{
		Type:    errType,
		Message: message,
		Path:    path,
		Err:     err,
	}
}

func RenderError(path, message string, err error) *DomainError {
	return NewError(ErrorTypeRender, message, path, err)
}

func DecodeError(path, message string, err error) *DomainError {
	return NewError(ErrorTypeDecode, message, path, err)
}

func DispositionError(path, message string, err error) *DomainError {
	return NewError(ErrorTypeDisposition, message, path, err)
}

func CleanupError(path, message string, err error) *DomainError {
	return NewError(ErrorTypeCleanup, message, path, err)
}

func ValidationError(message string, err error) *DomainError {
	return NewError(ErrorTypeValidation, message, "", err)
}

func ConfigError(message string, err error) *DomainError {
	return NewError(ErrorTypeConfig, message, "", err)
}

func IOError(path, message string, err error) *DomainError {
	return NewError(ErrorTypeIO, message, path, err)
}

// TypeOf returns the ErrorType of the first DomainError in err's chain, or "".
func TypeOf(err error) ErrorType {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Type
	}
	return ""
}

func IsRenderError(err error) bool      { return TypeOf(err) == ErrorTypeRender }
func IsDispositionError(err error) bool { return TypeOf(err) == ErrorTypeDisposition }
func IsCleanupError(err error) bool     { return TypeOf(err) == ErrorTypeCleanup }
