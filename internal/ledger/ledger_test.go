package ledger

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/justMega/barcode-pdf-pc/internal/domain"
)

func openSQLite(t *testing.T) *Ledger {
	t.Helper()
	l, err := Open(context.Background(), Config{
		Driver:     DriverSQLite,
		SQLitePath: filepath.Join(t.TempDir(), "ledger.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })
	return l
}

func TestConfig_Enabled(t *testing.T) {
	assert.False(t, Config{}.Enabled())
	assert.False(t, Config{Driver: DriverNone}.Enabled())
	assert.True(t, Config{Driver: DriverSQLite}.Enabled())
}

func TestOpen_Errors(t *testing.T) {
	ctx := context.Background()

	_, err := Open(ctx, Config{Driver: "mysql"})
	assert.Error(t, err)

	_, err = Open(ctx, Config{Driver: DriverSQLite})
	assert.Error(t, err)

	_, err = Open(ctx, Config{Driver: DriverPostgres})
	assert.Error(t, err)
}

func TestRebind(t *testing.T) {
	pg := &Ledger{driver: DriverPostgres}
	assert.Equal(t, "SELECT a FROM t WHERE x = $1 AND y = $2", pg.rebind("SELECT a FROM t WHERE x = ? AND y = ?"))

	lite := &Ledger{driver: DriverSQLite}
	assert.Equal(t, "x = ?", lite.rebind("x = ?"))
}

func TestLedger_RunLifecycle(t *testing.T) {
	l := openSQLite(t)
	ctx := context.Background()

	tick := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	l.now = func() time.Time {
		tick = tick.Add(time.Second)
		return tick
	}

	summary := domain.ScanSummary{
		RunID:     uuid.NewString(),
		Input:     "/scans/in",
		Output:    "/scans/out",
		StartedAt: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
	}
	require.NoError(t, l.BeginRun(ctx, summary))

	results := []domain.DocumentResult{
		{
			Document: domain.SourceDocument{Path: "/scans/in/a.pdf"},
			Decode:   domain.Decoded("CODE_128", "INV-1"),
			Outcome:  domain.Relocated("/scans/out/INV-1.pdf"),
			Duration: 1500 * time.Millisecond,
		},
		{
			Document: domain.SourceDocument{Path: "/scans/in/b.pdf"},
			Decode:   domain.NotFound(),
			Outcome:  domain.LeftInPlace("no barcode found"),
			Duration: 800 * time.Millisecond,
		},
	}
	for _, r := range results {
		require.NoError(t, l.RecordResult(ctx, summary.RunID, r))
		summary.Add(r)
	}
	summary.Skipped = 1
	summary.Duration = 3 * time.Second
	require.NoError(t, l.FinishRun(ctx, summary, nil))

	entries, err := l.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	newest := entries[0]
	assert.Equal(t, "/scans/in/b.pdf", newest.Source)
	assert.Equal(t, domain.OutcomeLeftInPlace, newest.Outcome)
	assert.Equal(t, "no barcode found", newest.Reason)
	assert.Equal(t, 800*time.Millisecond, newest.Duration)

	oldest := entries[1]
	assert.Equal(t, summary.RunID, oldest.RunID)
	assert.Equal(t, "INV-1", oldest.Text)
	assert.Equal(t, "CODE_128", oldest.Symbology)
	assert.Equal(t, "/scans/out/INV-1.pdf", oldest.Destination)
	assert.Equal(t, time.Date(2026, 3, 1, 9, 0, 1, 0, time.UTC), oldest.ProcessedAt)

	runs, err := l.Runs(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, 1, runs[0].Relocated)
	assert.Equal(t, 1, runs[0].LeftInPlace)
	assert.Equal(t, 1, runs[0].Skipped)
	assert.Equal(t, summary.StartedAt.Add(3*time.Second), runs[0].FinishedAt)
	assert.Empty(t, runs[0].Error)
}

func TestLedger_FinishRunWithError(t *testing.T) {
	l := openSQLite(t)
	ctx := context.Background()

	summary := domain.ScanSummary{RunID: "run-err", Input: "/in", Output: "/out", StartedAt: time.Now()}
	require.NoError(t, l.BeginRun(ctx, summary))
	require.NoError(t, l.FinishRun(ctx, summary, errors.New("input folder unreadable")))

	runs, err := l.Runs(ctx, 1)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "input folder unreadable", runs[0].Error)

	assert.Error(t, l.FinishRun(ctx, domain.ScanSummary{RunID: "unknown"}, nil))
}

func TestLedger_ProcessedAtFollowsDocumentCompletion(t *testing.T) {
	l := openSQLite(t)
	ctx := context.Background()
	l.now = func() time.Time { return time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC) }

	base := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	require.NoError(t, l.BeginRun(ctx, domain.ScanSummary{RunID: "r", StartedAt: base}))

	// Recorded in listing order; the second document finished first.
	results := []domain.DocumentResult{
		{Document: domain.SourceDocument{Path: "/in/a.pdf"}, Outcome: domain.LeftInPlace("x"), FinishedAt: base.Add(3 * time.Second)},
		{Document: domain.SourceDocument{Path: "/in/b.pdf"}, Outcome: domain.LeftInPlace("x"), FinishedAt: base.Add(1 * time.Second)},
		{Document: domain.SourceDocument{Path: "/in/c.pdf"}, Outcome: domain.LeftInPlace("x"), FinishedAt: base.Add(2 * time.Second)},
	}
	for _, r := range results {
		require.NoError(t, l.RecordResult(ctx, "r", r))
	}

	entries, err := l.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, "/in/a.pdf", entries[0].Source)
	assert.Equal(t, "/in/c.pdf", entries[1].Source)
	assert.Equal(t, "/in/b.pdf", entries[2].Source)
	assert.Equal(t, base.Add(3*time.Second), entries[0].ProcessedAt)
}

func TestLedger_RecentLimit(t *testing.T) {
	l := openSQLite(t)
	ctx := context.Background()

	require.NoError(t, l.BeginRun(ctx, domain.ScanSummary{RunID: "r", StartedAt: time.Now()}))
	for i := 0; i < 5; i++ {
		require.NoError(t, l.RecordResult(ctx, "r", domain.DocumentResult{Outcome: domain.LeftInPlace("x")}))
	}

	entries, err := l.Recent(ctx, 3)
	require.NoError(t, err)
	assert.Len(t, entries, 3)
}

func TestLedger_Postgres(t *testing.T) {
	dsn := os.Getenv("LEDGER_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("LEDGER_TEST_POSTGRES_DSN not set")
	}

	ctx := context.Background()
	l, err := Open(ctx, Config{Driver: DriverPostgres, PostgresDSN: dsn})
	require.NoError(t, err)
	defer l.Close()

	summary := domain.ScanSummary{RunID: uuid.NewString(), Input: "/in", Output: "/out", StartedAt: time.Now()}
	require.NoError(t, l.BeginRun(ctx, summary))
	require.NoError(t, l.RecordResult(ctx, summary.RunID, domain.DocumentResult{
		Document: domain.SourceDocument{Path: "/in/a.pdf"},
		Outcome:  domain.LeftInPlace("no barcode found"),
	}))
	require.NoError(t, l.FinishRun(ctx, summary, nil))

	entries, err := l.Recent(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}
