package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/justMega/barcode-pdf-pc/cmd/barcode-filer/ui"
	"github.com/justMega/barcode-pdf-pc/internal/ledger"
)

var (
	historyLimit int
	historyRuns  bool
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recently filed documents",
	Long:  "List the most recent document results, or scan runs with --runs, from the scan ledger.",
	RunE:  runHistory,
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "number of entries to show")
	historyCmd.Flags().BoolVar(&historyRuns, "runs", false, "list scan runs instead of documents")
	rootCmd.AddCommand(historyCmd)
}

func runHistory(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	opts := cfg.LedgerOptions()
	if !opts.Enabled() {
		return fmt.Errorf("scan history is disabled (ledger.driver is %q)", cfg.Ledger.Driver)
	}

	l, err := ledger.Open(ctx, opts)
	if err != nil {
		return fmt.Errorf("open ledger: %w", err)
	}
	defer l.Close()

	if historyRuns {
		return printRuns(ctx, l)
	}
	return printEntries(ctx, l)
}

func printEntries(ctx context.Context, l *ledger.Ledger) error {
	entries, err := l.Recent(ctx, historyLimit)
	if err != nil {
		return err
	}

	ui.Section("Recent Documents")
	if len(entries) == 0 {
		ui.Info("No documents recorded yet")
		return nil
	}

	rows := make([][]string, 0, len(entries))
	for _, e := range entries {
		detail := e.Destination
		if detail == "" {
			detail = e.Reason
		}
		rows = append(rows, []string{
			e.ProcessedAt.Local().Format("2006-01-02 15:04:05"),
			ui.Truncate(e.Source, 50),
			string(e.Outcome),
			ui.Truncate(e.Text, 30),
			ui.Truncate(detail, 50),
		})
	}
	ui.Table([]string{"Processed", "Source", "Outcome", "Barcode", "Detail"}, rows)
	return nil
}

func printRuns(ctx context.Context, l *ledger.Ledger) error {
	runs, err := l.Runs(ctx, historyLimit)
	if err != nil {
		return err
	}

	ui.Section("Scan Runs")
	if len(runs) == 0 {
		ui.Info("No scans recorded yet")
		return nil
	}

	rows := make([][]string, 0, len(runs))
	for _, r := range runs {
		status := "ok"
		if r.Error != "" {
			status = ui.Truncate(r.Error, 40)
		}
		rows = append(rows, []string{
			r.StartedAt.Local().Format("2006-01-02 15:04:05"),
			shortID(r.ID),
			fmt.Sprintf("%d", r.Relocated),
			fmt.Sprintf("%d", r.LeftInPlace),
			fmt.Sprintf("%d", r.Failed),
			fmt.Sprintf("%d", r.Skipped),
			status,
		})
	}
	ui.Table([]string{"Started", "Run", "Relocated", "Left", "Failed", "Skipped", "Status"}, rows)
	return nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
