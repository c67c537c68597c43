// Package scan walks the input folder and runs the barcode pipeline on every PDF.
package scan

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/justMega/barcode-pdf-pc/internal/domain"
	"github.com/justMega/barcode-pdf-pc/internal/metrics"
	"github.com/justMega/barcode-pdf-pc/internal/observability"
)

// Scanner processes a static snapshot of the input folder
type Scanner struct {
	pipeline *Pipeline
	workers  int
	metrics  *metrics.Metrics
	logger   *observability.Logger
}

// NewScanner creates a scanner. workers <= 0 means one worker per CPU;
// workers == 1 processes documents strictly in listing order.
func NewScanner(pipeline *Pipeline, workers int, m *metrics.Metrics, logger *observability.Logger) *Scanner {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if logger == nil {
		logger = observability.Nop()
	}
	return &Scanner{
		pipeline: pipeline,
		workers:  workers,
		metrics:  m,
		logger:   logger.WithOperation("scan"),
	}
}

// Workers returns the worker pool size
func (s *Scanner) Workers() int {
	return s.workers
}

// List returns the eligible documents of input in name order and the number
// of entries skipped. Subdirectories are not descended into.
func (s *Scanner) List(input string) ([]domain.SourceDocument, int, error) {
	entries, err := os.ReadDir(input)
	if err != nil {
		return nil, 0, domain.IOError(input, "failed to read input folder", err)
	}

	var docs []domain.SourceDocument
	skipped := 0
	for _, e := range entries {
		if e.IsDir() || !domain.IsEligible(e.Name()) {
			s.logger.Debug().Str("entry", e.Name()).Msg("skipping non-pdf entry")
			skipped++
			continue
		}
		docs = append(docs, domain.SourceDocument{Path: filepath.Join(input, e.Name())})
	}
	return docs, skipped, nil
}

// Scan runs the pipeline over every eligible document in input, filing
// decoded documents into output.
func (s *Scanner) Scan(ctx context.Context, input, output string) (domain.ScanSummary, error) {
	return s.ScanWithEvents(ctx, input, output, nil)
}

// ScanWithEvents is Scan with progress events sent to eventCh. Events are
// dropped rather than blocking when eventCh is full.
//
// A failing document never stops the batch. The returned error is reserved for
// batch-level problems: unreadable input, missing output or cancellation.
func (s *Scanner) ScanWithEvents(ctx context.Context, input, output string, eventCh chan<- domain.ScanEvent) (domain.ScanSummary, error) {
	summary := domain.ScanSummary{
		RunID:     uuid.NewString(),
		Input:     input,
		Output:    output,
		StartedAt: time.Now(),
	}
	logger := s.logger.WithRunID(summary.RunID)

	err := s.run(ctx, &summary, logger, eventCh)
	summary.Duration = time.Since(summary.StartedAt)
	s.metrics.ObserveScan(err)

	if err != nil {
		logger.Error().Err(err).Msg("scan failed")
		s.emit(logger, eventCh, domain.ScanEvent{Type: domain.EventError, RunID: summary.RunID, Payload: err.Error()})
		return summary, err
	}

	logger.Info().
		Int("relocated", summary.Relocated).
		Int("left_in_place", summary.LeftInPlace).
		Int("failed", summary.Failed).
		Int("skipped", summary.Skipped).
		Dur("duration", summary.Duration).
		Msg("scan complete")
	s.emit(logger, eventCh, domain.ScanEvent{
		Type:    domain.EventScanComplete,
		RunID:   summary.RunID,
		Total:   summary.Processed(),
		Payload: fmt.Sprintf("%d relocated, %d left in place, %d failed", summary.Relocated, summary.LeftInPlace, summary.Failed),
	})
	return summary, nil
}

func (s *Scanner) run(ctx context.Context, summary *domain.ScanSummary, logger *observability.Logger, eventCh chan<- domain.ScanEvent) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("scan cancelled: %w", err)
	}
	if err := requireDir(summary.Output, "output"); err != nil {
		return err
	}

	docs, skipped, err := s.List(summary.Input)
	if err != nil {
		return err
	}
	summary.Skipped = skipped
	s.metrics.ObserveSkipped(skipped)

	logger.Info().
		Str("input", summary.Input).
		Str("output", summary.Output).
		Int("documents", len(docs)).
		Int("skipped", skipped).
		Int("workers", s.workers).
		Msg("scan started")
	s.emit(logger, eventCh, domain.ScanEvent{Type: domain.EventScanStart, RunID: summary.RunID, Total: len(docs)})

	results := make([]*domain.DocumentResult, len(docs))
	var mu sync.Mutex

	var g errgroup.Group
	g.SetLimit(s.workers)

	for i, doc := range docs {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			// Re-check: the slot may have been granted after cancellation.
			if ctx.Err() != nil {
				return nil
			}
			s.emit(logger, eventCh, domain.ScanEvent{Type: domain.EventDocumentStart, RunID: summary.RunID, Document: doc.Path})

			r := s.pipeline.Process(ctx, doc, summary.Output)
			s.metrics.ObserveDocument(r)

			logger.Info().
				Str("document", doc.Path).
				Str("outcome", string(r.Outcome.Kind)).
				Str("destination", r.Outcome.Destination).
				Str("reason", r.Outcome.Reason).
				Dur("duration", r.Duration).
				Msg("document processed")

			mu.Lock()
			results[i] = &r
			mu.Unlock()

			s.emit(logger, eventCh, domain.ScanEvent{Type: domain.EventDocumentComplete, RunID: summary.RunID, Document: doc.Path, Result: &r})
			return nil
		})
	}
	// Workers never return errors; Wait only joins them.
	_ = g.Wait()

	for _, r := range results {
		if r != nil {
			summary.Add(*r)
		}
	}

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("scan cancelled after %d of %d documents: %w", summary.Processed(), len(docs), err)
	}
	return nil
}

func (s *Scanner) emit(logger *observability.Logger, eventCh chan<- domain.ScanEvent, event domain.ScanEvent) {
	if eventCh == nil {
		return
	}
	event.Timestamp = time.Now()
	select {
	case eventCh <- event:
	default:
		logger.Warn().Str("event", string(event.Type)).Msg("event channel full, dropping event")
	}
}

func requireDir(path, role string) error {
	if path == "" {
		return domain.ValidationError(fmt.Sprintf("%s folder is not set", role), nil)
	}
	info, err := os.Stat(path)
	if err != nil {
		return domain.IOError(path, fmt.Sprintf("%s folder is not accessible", role), err)
	}
	if !info.IsDir() {
		return domain.IOError(path, fmt.Sprintf("%s folder is not a directory", role), nil)
	}
	return nil
}
