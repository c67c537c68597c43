// Package app owns the scanner, its settings and the scan history, and runs
// one scan at a time on request.
package app

import (
	"context"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/justMega/barcode-pdf-pc/internal/barcode"
	"github.com/justMega/barcode-pdf-pc/internal/config"
	"github.com/justMega/barcode-pdf-pc/internal/dispose"
	"github.com/justMega/barcode-pdf-pc/internal/domain"
	"github.com/justMega/barcode-pdf-pc/internal/ledger"
	"github.com/justMega/barcode-pdf-pc/internal/metrics"
	"github.com/justMega/barcode-pdf-pc/internal/observability"
	"github.com/justMega/barcode-pdf-pc/internal/pdf"
	"github.com/justMega/barcode-pdf-pc/internal/preprocess"
	"github.com/justMega/barcode-pdf-pc/internal/scan"
)

// Scanner runs one scan over a folder pair
type Scanner interface {
	ScanWithEvents(ctx context.Context, input, output string, eventCh chan<- domain.ScanEvent) (domain.ScanSummary, error)
}

// History stores and lists past scans
type History interface {
	BeginRun(ctx context.Context, s domain.ScanSummary) error
	RecordResult(ctx context.Context, runID string, r domain.DocumentResult) error
	FinishRun(ctx context.Context, s domain.ScanSummary, scanErr error) error
	Recent(ctx context.Context, limit int) ([]ledger.Entry, error)
	Runs(ctx context.Context, limit int) ([]ledger.Run, error)
	Close() error
}

// App is the application state: folder settings, scanner and history
type App struct {
	folders config.FoldersConfig
	scanner Scanner
	history History
	logger  *observability.Logger

	mu      sync.Mutex
	running bool
	last    *LastScan
}

// LastScan is the outcome of the most recent scan
type LastScan struct {
	Summary domain.ScanSummary
	Err     error
}

// New creates an App. history may be nil when the ledger is disabled.
func New(folders config.FoldersConfig, scanner Scanner, history History, logger *observability.Logger) *App {
	if logger == nil {
		logger = observability.Nop()
	}
	return &App{
		folders: folders,
		scanner: scanner,
		history: history,
		logger:  logger.WithOperation("app"),
	}
}

// Build wires the full pipeline from cfg. Metrics are registered on reg when it is non-nil.
func Build(ctx context.Context, cfg *config.Config, logger *observability.Logger, reg prometheus.Registerer) (*App, error) {
	if logger == nil {
		logger = observability.Nop()
	}

	pipeline := scan.NewPipeline(
		pdf.NewRenderer(cfg.Pipeline.RenderDPI, cfg.Pipeline.JPEGQuality, logger),
		preprocess.New(cfg.Preprocess, logger),
		barcode.NewDecoder(cfg.Pipeline.TryHarder, logger),
		dispose.NewDisposer(cfg.CollisionPolicy(), logger),
		cfg.Pipeline.DocumentTimeout,
		logger,
	)

	var m *metrics.Metrics
	if reg != nil {
		m = metrics.New(reg)
	}
	scanner := scan.NewScanner(pipeline, cfg.Pipeline.Workers, m, logger)

	var history History
	if opts := cfg.LedgerOptions(); opts.Enabled() {
		l, err := ledger.Open(ctx, opts)
		if err != nil {
			return nil, fmt.Errorf("open ledger: %w", err)
		}
		history = l
	}

	return New(cfg.Folders, scanner, history, logger), nil
}

// Folders returns the configured folder pair
func (a *App) Folders() config.FoldersConfig {
	return a.folders
}

// HasHistory reports whether scans are recorded
func (a *App) HasHistory() bool {
	return a.history != nil
}

// Running reports whether a scan is in progress
func (a *App) Running() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.running
}

// RunScan scans the configured input folder into the output folder.
// It returns domain.ErrScanInProgress if another scan is running.
func (a *App) RunScan(ctx context.Context, eventCh chan<- domain.ScanEvent) (domain.ScanSummary, error) {
	if a.folders.Input == "" || a.folders.Output == "" {
		return domain.ScanSummary{}, domain.ConfigError("input_folder and output_folder must be set", nil)
	}

	a.mu.Lock()
	if a.running {
		a.mu.Unlock()
		return domain.ScanSummary{}, domain.ErrScanInProgress
	}
	a.running = true
	a.mu.Unlock()

	defer func() {
		a.mu.Lock()
		a.running = false
		a.mu.Unlock()
	}()

	summary, err := a.scanner.ScanWithEvents(ctx, a.folders.Input, a.folders.Output, eventCh)

	// History is written even when the scan was cancelled.
	a.record(context.WithoutCancel(ctx), summary, err)

	a.mu.Lock()
	a.last = &LastScan{Summary: summary, Err: err}
	a.mu.Unlock()

	return summary, err
}

// Last returns the most recent scan, if any
func (a *App) Last() (LastScan, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.last == nil {
		return LastScan{}, false
	}
	return *a.last, true
}

// Recent returns recorded document results, newest first
func (a *App) Recent(ctx context.Context, limit int) ([]ledger.Entry, error) {
	if a.history == nil {
		return nil, fmt.Errorf("scan history is disabled")
	}
	return a.history.Recent(ctx, limit)
}

// Runs returns recorded scans, newest first
func (a *App) Runs(ctx context.Context, limit int) ([]ledger.Run, error) {
	if a.history == nil {
		return nil, fmt.Errorf("scan history is disabled")
	}
	return a.history.Runs(ctx, limit)
}

// Close releases the history store
func (a *App) Close() error {
	if a.history == nil {
		return nil
	}
	return a.history.Close()
}

func (a *App) record(ctx context.Context, summary domain.ScanSummary, scanErr error) {
	if a.history == nil || summary.RunID == "" {
		return
	}

	logger := a.logger.WithRunID(summary.RunID)
	if err := a.history.BeginRun(ctx, summary); err != nil {
		logger.Warn().Err(err).Msg("failed to record scan run")
		return
	}
	for _, r := range summary.Results {
		if err := a.history.RecordResult(ctx, summary.RunID, r); err != nil {
			logger.Warn().Err(err).Str("document", r.Document.Path).Msg("failed to record document result")
		}
	}
	if err := a.history.FinishRun(ctx, summary, scanErr); err != nil {
		logger.Warn().Err(err).Msg("failed to finish scan run record")
	}
}
