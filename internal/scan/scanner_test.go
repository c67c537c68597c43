package scan

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/justMega/barcode-pdf-pc/internal/dispose"
	"github.com/justMega/barcode-pdf-pc/internal/domain"
	"github.com/justMega/barcode-pdf-pc/internal/metrics"
	"github.com/justMega/barcode-pdf-pc/internal/testutil"
)

// Fake PDFs carry their barcode as plain text: "BARCODE:<text>" or anything else for none.

type fakeRenderer struct {
	fail        map[string]bool
	failAfterIO map[string]bool
}

func (f *fakeRenderer) RenderFirstPage(ctx context.Context, doc domain.SourceDocument) (domain.RenderedPage, error) {
	page := domain.RenderedPage{Source: doc.Path}
	name := doc.Name()
	if f.fail[name] {
		return page, domain.RenderError(doc.Path, "corrupt", nil)
	}

	data, err := os.ReadFile(doc.Path)
	if err != nil {
		return page, domain.RenderError(doc.Path, "read", err)
	}
	page.ImagePath = doc.RasterPath()
	if err := os.WriteFile(page.ImagePath, data, 0o644); err != nil {
		return page, domain.RenderError(doc.Path, "write", err)
	}
	if f.failAfterIO[name] {
		return page, domain.RenderError(doc.Path, "truncated image", nil)
	}
	return page, nil
}

type fakePreprocessor struct {
	fail bool
}

func (f *fakePreprocessor) ProcessFile(ctx context.Context, path string) error {
	if f.fail {
		return errors.New("preprocess failed")
	}
	return nil
}

type fakeDecoder struct {
	onDecode func()
}

func (f *fakeDecoder) DecodeFile(ctx context.Context, path string) domain.DecodeResult {
	if f.onDecode != nil {
		f.onDecode()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return domain.NotFound()
	}
	if text, ok := strings.CutPrefix(string(data), "BARCODE:"); ok {
		return domain.Decoded("CODE_128", text)
	}
	return domain.NotFound()
}

type env struct {
	in, out string
}

func newEnv(t *testing.T) env {
	t.Helper()
	root := t.TempDir()
	e := env{in: filepath.Join(root, "in"), out: filepath.Join(root, "out")}
	require.NoError(t, os.Mkdir(e.in, 0o755))
	require.NoError(t, os.Mkdir(e.out, 0o755))
	return e
}

func (e env) write(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(e.in, name)
	testutil.WriteFile(t, path, []byte(content))
	return path
}

func newScanner(r domain.Renderer, p domain.Preprocessor, d domain.Decoder, workers int) *Scanner {
	pipeline := NewPipeline(r, p, d, dispose.NewDisposer(dispose.CollisionError, nil), time.Minute, nil)
	return NewScanner(pipeline, workers, nil, nil)
}

func defaultScanner(workers int) *Scanner {
	return newScanner(&fakeRenderer{}, &fakePreprocessor{}, &fakeDecoder{}, workers)
}

func TestScan_PDFAndReadme(t *testing.T) {
	e := newEnv(t)
	e.write(t, "doc1.pdf", "BARCODE:INV-1")
	readme := e.write(t, "readme.md", "# notes")

	summary, err := defaultScanner(1).Scan(context.Background(), e.in, e.out)
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Relocated)
	assert.Equal(t, 1, summary.Skipped)
	assert.NotEmpty(t, summary.RunID)

	assert.FileExists(t, filepath.Join(e.out, "INV-1.pdf"))
	assert.NoFileExists(t, filepath.Join(e.in, "doc1.pdf"))
	assert.NoFileExists(t, filepath.Join(e.in, "doc1.jpg"))

	data, err := os.ReadFile(readme)
	require.NoError(t, err)
	assert.Equal(t, "# notes", string(data))
}

func TestScan_DecodeMissLeavesDocument(t *testing.T) {
	e := newEnv(t)
	src := e.write(t, "blank.pdf", "no barcode here")

	summary, err := defaultScanner(1).Scan(context.Background(), e.in, e.out)
	require.NoError(t, err)

	assert.Equal(t, 1, summary.LeftInPlace)
	assert.FileExists(t, src)
	assert.Empty(t, testutil.FilesWithExt(t, e.in, ".jpg"))
	assert.Empty(t, testutil.FilesWithExt(t, e.out, ".pdf"))

	r := summary.Results[0]
	assert.Equal(t, domain.StateCleanedUp, r.LastState())
	assert.Equal(t, []domain.DocumentState{
		domain.StateDiscovered, domain.StateRendered, domain.StatePreprocessed,
		domain.StateDecoded, domain.StateDisposed, domain.StateCleanedUp,
	}, r.States)
}

func TestScan_SkipsIneligibleEntries(t *testing.T) {
	e := newEnv(t)
	e.write(t, "REPORT.PDF", "BARCODE:UPPER")
	e.write(t, "noextension", "BARCODE:NOEXT")
	e.write(t, "archive.pdf.bak", "BARCODE:BAK")
	sub := filepath.Join(e.in, "nested.pdf")
	require.NoError(t, os.Mkdir(sub, 0o755))
	testutil.WriteFile(t, filepath.Join(sub, "inner.pdf"), []byte("BARCODE:INNER"))

	summary, err := defaultScanner(2).Scan(context.Background(), e.in, e.out)
	require.NoError(t, err)

	assert.Equal(t, 0, summary.Processed())
	assert.Equal(t, 4, summary.Skipped)
	assert.Empty(t, testutil.FilesWithExt(t, e.out, ".pdf"))
	assert.FileExists(t, filepath.Join(sub, "inner.pdf"))
}

func TestScan_FailureDoesNotStopBatch(t *testing.T) {
	e := newEnv(t)
	e.write(t, "a.pdf", "BARCODE:A")
	bad := e.write(t, "b.pdf", "BARCODE:B")
	e.write(t, "c.pdf", "BARCODE:C")

	r := &fakeRenderer{fail: map[string]bool{"b.pdf": true}}
	summary, err := newScanner(r, &fakePreprocessor{}, &fakeDecoder{}, 1).Scan(context.Background(), e.in, e.out)
	require.NoError(t, err)

	assert.Equal(t, 2, summary.Relocated)
	assert.Equal(t, 1, summary.Failed)
	assert.FileExists(t, bad)
	assert.FileExists(t, filepath.Join(e.out, "A.pdf"))
	assert.FileExists(t, filepath.Join(e.out, "C.pdf"))

	failed := summary.Results[1]
	assert.Equal(t, bad, failed.Document.Path)
	assert.Equal(t, domain.OutcomeFailed, failed.Outcome.Kind)
	assert.True(t, domain.IsRenderError(failed.Outcome.Err))
	assert.Equal(t, []domain.DocumentState{domain.StateDiscovered, domain.StateCleanedUp}, failed.States)
}

func TestScan_CleanupAfterEveryFailure(t *testing.T) {
	tests := []struct {
		name     string
		renderer *fakeRenderer
		pre      *fakePreprocessor
	}{
		{"render fails after writing image", &fakeRenderer{failAfterIO: map[string]bool{"doc.pdf": true}}, &fakePreprocessor{}},
		{"preprocess fails", &fakeRenderer{}, &fakePreprocessor{fail: true}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEnv(t)
			src := e.write(t, "doc.pdf", "BARCODE:X")

			summary, err := newScanner(tt.renderer, tt.pre, &fakeDecoder{}, 1).Scan(context.Background(), e.in, e.out)
			require.NoError(t, err)

			assert.Equal(t, 1, summary.Failed)
			assert.FileExists(t, src)
			assert.Empty(t, testutil.FilesWithExt(t, e.in, ".jpg"))
			assert.Equal(t, domain.StateCleanedUp, summary.Results[0].LastState())
		})
	}
}

func TestScan_ExistingImageUntouchedWhenRenderFailsEarly(t *testing.T) {
	e := newEnv(t)
	e.write(t, "doc.pdf", "BARCODE:X")
	photo := e.write(t, "doc.jpg", "a photo")

	r := &fakeRenderer{fail: map[string]bool{"doc.pdf": true}}
	_, err := newScanner(r, &fakePreprocessor{}, &fakeDecoder{}, 1).Scan(context.Background(), e.in, e.out)
	require.NoError(t, err)
	assert.FileExists(t, photo)
}

func TestScan_ManyDocumentsConcurrently(t *testing.T) {
	e := newEnv(t)
	const n = 20
	for i := 0; i < n; i++ {
		name := string(rune('a'+i)) + ".pdf"
		e.write(t, name, "BARCODE:DOC-"+strings.ToUpper(name[:1]))
	}

	summary, err := defaultScanner(4).Scan(context.Background(), e.in, e.out)
	require.NoError(t, err)

	assert.Equal(t, n, summary.Relocated)
	assert.Len(t, testutil.FilesWithExt(t, e.out, ".pdf"), n)
	assert.Empty(t, testutil.FilesWithExt(t, e.in, ".jpg"))

	// Results keep listing order regardless of completion order.
	for i, r := range summary.Results {
		assert.Equal(t, string(rune('a'+i))+".pdf", r.Document.Name())
	}
}

func TestScan_BatchLevelErrors(t *testing.T) {
	e := newEnv(t)
	s := defaultScanner(1)

	_, err := s.Scan(context.Background(), filepath.Join(e.in, "missing"), e.out)
	assert.Error(t, err)

	_, err = s.Scan(context.Background(), e.in, filepath.Join(e.out, "missing"))
	assert.Error(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	src := e.write(t, "doc.pdf", "BARCODE:X")
	_, err = s.Scan(ctx, e.in, e.out)
	assert.ErrorIs(t, err, context.Canceled)
	assert.FileExists(t, src)
}

func TestScan_CancelMidBatch(t *testing.T) {
	e := newEnv(t)
	first := e.write(t, "a.pdf", "BARCODE:A")
	second := e.write(t, "b.pdf", "BARCODE:B")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var once sync.Once
	d := &fakeDecoder{onDecode: func() { once.Do(cancel) }}
	summary, err := newScanner(&fakeRenderer{}, &fakePreprocessor{}, d, 1).Scan(ctx, e.in, e.out)
	require.ErrorIs(t, err, context.Canceled)

	// The in-flight document is not moved once its context is done.
	require.Len(t, summary.Results, 1)
	assert.Equal(t, domain.OutcomeLeftInPlace, summary.Results[0].Outcome.Kind)
	assert.FileExists(t, first)
	assert.FileExists(t, second)
	assert.Empty(t, testutil.FilesWithExt(t, e.in, ".jpg"))
}

func TestScan_CollisionIsPerDocumentFailure(t *testing.T) {
	e := newEnv(t)
	testutil.WriteFile(t, filepath.Join(e.out, "DUP.pdf"), []byte("existing"))
	src := e.write(t, "doc.pdf", "BARCODE:DUP")

	summary, err := defaultScanner(1).Scan(context.Background(), e.in, e.out)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Failed)
	assert.ErrorIs(t, summary.Results[0].Outcome.Err, domain.ErrDestinationExists)
	assert.FileExists(t, src)

	// The failed move is not recorded as a completed step.
	assert.Equal(t, []domain.DocumentState{
		domain.StateDiscovered,
		domain.StateRendered,
		domain.StatePreprocessed,
		domain.StateDecoded,
		domain.StateCleanedUp,
	}, summary.Results[0].States)
	assert.False(t, summary.Results[0].FinishedAt.IsZero())
}

func TestScan_EventsAndMetrics(t *testing.T) {
	e := newEnv(t)
	e.write(t, "a.pdf", "BARCODE:A")
	e.write(t, "b.pdf", "nothing")
	e.write(t, "c.txt", "skip")

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	pipeline := NewPipeline(&fakeRenderer{}, &fakePreprocessor{}, &fakeDecoder{}, dispose.NewDisposer(dispose.CollisionError, nil), 0, nil)
	s := NewScanner(pipeline, 2, m, nil)

	events := make(chan domain.ScanEvent, 32)
	summary, err := s.ScanWithEvents(context.Background(), e.in, e.out, events)
	require.NoError(t, err)
	close(events)

	counts := map[domain.EventType]int{}
	for ev := range events {
		assert.Equal(t, summary.RunID, ev.RunID)
		counts[ev.Type]++
	}
	assert.Equal(t, 1, counts[domain.EventScanStart])
	assert.Equal(t, 2, counts[domain.EventDocumentStart])
	assert.Equal(t, 2, counts[domain.EventDocumentComplete])
	assert.Equal(t, 1, counts[domain.EventScanComplete])

	n, err := promtest.GatherAndCount(reg, "barcode_filer_documents_processed_total")
	require.NoError(t, err)
	assert.Equal(t, 2, n, "one series per outcome")
}

func TestList(t *testing.T) {
	e := newEnv(t)
	e.write(t, "b.pdf", "")
	e.write(t, "a.pdf", "")
	e.write(t, "notes.txt", "")

	docs, skipped, err := defaultScanner(1).List(e.in)
	require.NoError(t, err)
	assert.Equal(t, 1, skipped)
	require.Len(t, docs, 2)
	assert.Equal(t, "a.pdf", docs[0].Name())
	assert.Equal(t, "b.pdf", docs[1].Name())
}

func TestNewScanner_DefaultWorkers(t *testing.T) {
	s := NewScanner(nil, 0, nil, nil)
	assert.Positive(t, s.Workers())
}
