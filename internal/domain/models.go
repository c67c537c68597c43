package domain

import (
	"path/filepath"
	"strings"
	"time"
)

// PDFExtension is the only extension the scanner picks up. The match is exact,
// so "REPORT.PDF" is skipped.
const PDFExtension = ".pdf"

// RasterExtension is the extension of the temporary page image.
const RasterExtension = ".jpg"

// SourceDocument is a PDF discovered in the input folder
type SourceDocument struct {
	Path string
}

// Name returns the file name of the document
func (d SourceDocument) Name() string {
	return filepath.Base(d.Path)
}

// RasterPath returns the temporary image path for the document: same directory,
// same base name, .jpg extension.
func (d SourceDocument) RasterPath() string {
	return strings.TrimSuffix(d.Path, filepath.Ext(d.Path)) + RasterExtension
}

// IsEligible reports whether a file name has exactly the ".pdf" extension
func IsEligible(name string) bool {
	return filepath.Ext(name) == PDFExtension
}

// RenderedPage is the rasterized first page of a SourceDocument
type RenderedPage struct {
	Source    string
	ImagePath string // Temporary JPG beside the source
	Width     int
	Height    int
}

// DecodeResult is either a decoded barcode or NotFound
type DecodeResult struct {
	Found     bool   `json:"found"`
	Symbology string `json:"symbology,omitempty"`
	Text      string `json:"text,omitempty"`
}

// Decoded builds a successful DecodeResult
func Decoded(symbology, text string) DecodeResult {
	return DecodeResult{Found: true, Symbology: symbology, Text: text}
}

// NotFound builds a DecodeResult for a page without a readable barcode
func NotFound() DecodeResult {
	return DecodeResult{}
}

// OutcomeKind is the disposition of a processed document
type OutcomeKind string

const (
	OutcomeRelocated   OutcomeKind = "relocated"
	OutcomeLeftInPlace OutcomeKind = "left_in_place"
	OutcomeFailed      OutcomeKind = "failed"
)

// Outcome describes where a document ended up
type Outcome struct {
	Kind        OutcomeKind `json:"kind"`
	Destination string      `json:"destination,omitempty"`
	Reason      string      `json:"reason,omitempty"`
	Err         error       `json:"-"`
}

// Relocated builds an outcome for a moved document
func Relocated(destination string) Outcome {
	return Outcome{Kind: OutcomeRelocated, Destination: destination}
}

// LeftInPlace builds an outcome for a document that stays in the input folder
func LeftInPlace(reason string) Outcome {
	return Outcome{Kind: OutcomeLeftInPlace, Reason: reason}
}

// Failed builds an outcome for a document whose pipeline hit an error.
// The document itself is still at its original path.
func Failed(err error) Outcome {
	return Outcome{Kind: OutcomeFailed, Reason: err.Error(), Err: err}
}

// DocumentState is a completed step of the per-document state machine
type DocumentState string

const (
	StateDiscovered   DocumentState = "discovered"
	StateRendered     DocumentState = "rendered"
	StatePreprocessed DocumentState = "preprocessed"
	StateDecoded      DocumentState = "decoded"
	StateDisposed     DocumentState = "disposed"
	StateCleanedUp    DocumentState = "cleaned_up"
)

// DocumentResult is the record of one pipeline invocation
type DocumentResult struct {
	Document SourceDocument  `json:"document"`
	Decode   DecodeResult    `json:"decode"`
	Outcome  Outcome         `json:"outcome"`
	States   []DocumentState `json:"states"`
	Duration time.Duration   `json:"duration"`

	// FinishedAt is when cleanup completed
	FinishedAt time.Time `json:"finished_at"`
}

// LastState returns the terminal state reached by the document
func (r DocumentResult) LastState() DocumentState {
	if len(r.States) == 0 {
		return ""
	}
	return r.States[len(r.States)-1]
}

// ScanSummary aggregates the results of one scan over the input folder
type ScanSummary struct {
	RunID       string           `json:"run_id"`
	Input       string           `json:"input_folder"`
	Output      string           `json:"output_folder"`
	Results     []DocumentResult `json:"results"`
	Relocated   int              `json:"relocated"`
	LeftInPlace int              `json:"left_in_place"`
	Failed      int              `json:"failed"`
	Skipped     int              `json:"skipped"`
	StartedAt   time.Time        `json:"started_at"`
	Duration    time.Duration    `json:"duration"`
}

// Add records a document result and updates the counters
func (s *ScanSummary) Add(r DocumentResult) {
	s.Results = append(s.Results, r)
	switch r.Outcome.Kind {
	case OutcomeRelocated:
		s.Relocated++
	case OutcomeLeftInPlace:
		s.LeftInPlace++
	case OutcomeFailed:
		s.Failed++
	}
}

// Processed returns the number of documents that went through the pipeline
func (s *ScanSummary) Processed() int {
	return s.Relocated + s.LeftInPlace + s.Failed
}

// EventType is the kind of a ScanEvent
type EventType string

const (
	EventScanStart        EventType = "scan_start"
	EventDocumentStart    EventType = "document_start"
	EventDocumentComplete EventType = "document_complete"
	EventScanComplete     EventType = "scan_complete"
	EventError            EventType = "error"
)

// ScanEvent reports scan progress to an optional listener
type ScanEvent struct {
	Type      EventType       `json:"type"`
	RunID     string          `json:"run_id"`
	Total     int             `json:"total,omitempty"`
	Document  string          `json:"document,omitempty"`
	Result    *DocumentResult `json:"result,omitempty"`
	Payload   string          `json:"payload,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}
