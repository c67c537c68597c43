package scan

import (
	"context"
	"time"

	"github.com/justMega/barcode-pdf-pc/internal/domain"
	"github.com/justMega/barcode-pdf-pc/internal/observability"
)

// DefaultDocumentTimeout bounds rendering and decoding of a single document
const DefaultDocumentTimeout = 2 * time.Minute

// Pipeline runs render, preprocess, decode and dispose for one document
type Pipeline struct {
	renderer     domain.Renderer
	preprocessor domain.Preprocessor
	decoder      domain.Decoder
	disposer     domain.Disposer
	timeout      time.Duration
	logger       *observability.Logger
}

// NewPipeline creates a pipeline. A zero timeout means DefaultDocumentTimeout.
func NewPipeline(
	renderer domain.Renderer,
	preprocessor domain.Preprocessor,
	decoder domain.Decoder,
	disposer domain.Disposer,
	timeout time.Duration,
	logger *observability.Logger,
) *Pipeline {
	if timeout <= 0 {
		timeout = DefaultDocumentTimeout
	}
	if logger == nil {
		logger = observability.Nop()
	}
	return &Pipeline{
		renderer:     renderer,
		preprocessor: preprocessor,
		decoder:      decoder,
		disposer:     disposer,
		timeout:      timeout,
		logger:       logger,
	}
}

// Process files doc into output. It never returns an error: failures become a
// failed outcome. The temporary raster is removed on every path, and the
// result always ends in StateCleanedUp.
//
// States records only the steps that completed. A step that fails is not
// recorded, so a failed move reads decoded, cleaned_up.
func (p *Pipeline) Process(ctx context.Context, doc domain.SourceDocument, output string) (result domain.DocumentResult) {
	start := time.Now()
	logger := p.logger.WithDocument(doc.Path)

	result = domain.DocumentResult{
		Document: doc,
		Decode:   domain.NotFound(),
		States:   []domain.DocumentState{domain.StateDiscovered},
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	var imagePath string
	defer func() {
		if err := p.disposer.Cleanup(imagePath); err != nil {
			logger.Warn().Err(err).Str("image", imagePath).Msg("failed to remove temporary image")
		}
		result.States = append(result.States, domain.StateCleanedUp)
		result.FinishedAt = time.Now()
		result.Duration = result.FinishedAt.Sub(start)
	}()

	page, err := p.renderer.RenderFirstPage(ctx, doc)
	imagePath = page.ImagePath
	if err != nil {
		logger.Error().Err(err).Msg("render failed")
		result.Outcome = domain.Failed(err)
		return result
	}
	result.States = append(result.States, domain.StateRendered)

	if err := p.preprocessor.ProcessFile(ctx, imagePath); err != nil {
		logger.Error().Err(err).Msg("preprocess failed")
		result.Outcome = domain.Failed(err)
		return result
	}
	result.States = append(result.States, domain.StatePreprocessed)

	result.Decode = p.decoder.DecodeFile(ctx, imagePath)
	result.States = append(result.States, domain.StateDecoded)

	outcome, err := p.disposer.Dispose(ctx, doc, result.Decode, output)
	result.Outcome = outcome
	if err != nil {
		if outcome.Kind != domain.OutcomeFailed {
			result.Outcome = domain.Failed(err)
		}
		logger.Error().Err(err).Msg("disposition failed")
		return result
	}
	result.States = append(result.States, domain.StateDisposed)

	return result
}
