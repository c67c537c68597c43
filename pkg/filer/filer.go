// Package filer is the embeddable API of the barcode filer: scan an input
// folder and file every PDF under the barcode printed on its first page.
package filer

import (
	"context"
	"errors"

	"github.com/joho/godotenv"

	"github.com/justMega/barcode-pdf-pc/internal/app"
	"github.com/justMega/barcode-pdf-pc/internal/config"
	"github.com/justMega/barcode-pdf-pc/internal/domain"
	"github.com/justMega/barcode-pdf-pc/internal/observability"
)

// Re-export result types for the public API
type (
	Config         = config.Config
	ScanSummary    = domain.ScanSummary
	DocumentResult = domain.DocumentResult
	DecodeResult   = domain.DecodeResult
	Outcome        = domain.Outcome
	OutcomeKind    = domain.OutcomeKind
	ScanEvent      = domain.ScanEvent
	EventType      = domain.EventType
)

// Outcome kinds
const (
	OutcomeRelocated   = domain.OutcomeRelocated
	OutcomeLeftInPlace = domain.OutcomeLeftInPlace
	OutcomeFailed      = domain.OutcomeFailed
)

// Event type constants
const (
	EventScanStart        = domain.EventScanStart
	EventDocumentStart    = domain.EventDocumentStart
	EventDocumentComplete = domain.EventDocumentComplete
	EventScanComplete     = domain.EventScanComplete
	EventError            = domain.EventError
)

// ErrScanInProgress is returned when Scan is called while another scan runs
var ErrScanInProgress = domain.ErrScanInProgress

// Client is the main entry point for embedding the filer
type Client struct {
	app *app.App
}

// DefaultConfig returns the calibrated defaults; set Folders before use.
func DefaultConfig() *Config {
	return config.DefaultConfig()
}

// NewClient loads .env and settings.json (or configPath) and creates a client.
func NewClient(ctx context.Context, configPath string) (*Client, error) {
	_ = godotenv.Load() // Ignore error if .env doesn't exist

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, domain.ConfigError("failed to load configuration", err)
	}
	return New(ctx, cfg)
}

// New creates a client from cfg. Logging is disabled; use the CLI for logs.
func New(ctx context.Context, cfg *Config) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, domain.ConfigError("invalid configuration", err)
	}
	if err := cfg.RequireFolders(); err != nil {
		return nil, domain.ConfigError("invalid configuration", err)
	}

	a, err := app.Build(ctx, cfg, observability.Nop(), nil)
	if err != nil {
		return nil, err
	}
	return &Client{app: a}, nil
}

// Scan processes the input folder once and returns the summary
func (c *Client) Scan(ctx context.Context) (ScanSummary, error) {
	return c.app.RunScan(ctx, nil)
}

// ScanEvents starts a scan and streams its progress. The channel is closed
// when the scan ends; a batch-level failure arrives as an EventError.
func (c *Client) ScanEvents(ctx context.Context) <-chan ScanEvent {
	eventCh := make(chan ScanEvent, 100)

	go func() {
		defer close(eventCh)
		if _, err := c.app.RunScan(ctx, eventCh); err != nil && !isReported(err) {
			eventCh <- ScanEvent{Type: EventError, Payload: err.Error()}
		}
	}()

	return eventCh
}

// isReported reports whether the scanner already emitted an error event for err.
// Errors raised before the scanner starts are not.
func isReported(err error) bool {
	return !errors.Is(err, domain.ErrScanInProgress) && domain.TypeOf(err) != domain.ErrorTypeConfig
}

// Close releases the scan history store
func (c *Client) Close() error {
	return c.app.Close()
}
