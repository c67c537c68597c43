package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/justMega/barcode-pdf-pc/cmd/barcode-filer/ui"
	"github.com/justMega/barcode-pdf-pc/internal/app"
	"github.com/justMega/barcode-pdf-pc/internal/domain"
)

var (
	scanInput  string
	scanOutput string
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Scan the input folder once",
	Long: `Scan every .pdf file directly inside the input folder. Documents whose first page
carries a readable barcode are moved to the output folder as <barcode>.pdf; the rest stay
in the input folder.`,
	RunE: runScan,
}

func init() {
	scanCmd.Flags().StringVarP(&scanInput, "input", "i", "", "input folder (overrides input_folder)")
	scanCmd.Flags().StringVarP(&scanOutput, "output", "o", "", "output folder (overrides output_folder)")
	rootCmd.AddCommand(scanCmd)
}

func runScan(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if scanInput != "" {
		cfg.Folders.Input = scanInput
	}
	if scanOutput != "" {
		cfg.Folders.Output = scanOutput
	}
	if err := cfg.RequireFolders(); err != nil {
		return err
	}

	logger := newLogger(cfg, true)
	a, err := app.Build(ctx, cfg, logger, nil)
	if err != nil {
		return err
	}
	defer a.Close()

	ui.Section("Barcode Scan")
	ui.Info("Input folder:  %s", cfg.Folders.Input)
	ui.Info("Output folder: %s", cfg.Folders.Output)
	ui.Newline()

	eventCh := make(chan domain.ScanEvent, 100)
	type scanResult struct {
		summary domain.ScanSummary
		err     error
	}
	done := make(chan scanResult, 1)
	go func() {
		defer close(eventCh)
		summary, err := a.RunScan(ctx, eventCh)
		done <- scanResult{summary, err}
	}()

	spinner := ui.NewSpinner("Listing input folder...")
	spinner.Start()
	spinning := true
	var bar *ui.ProgressBar

	for ev := range eventCh {
		switch ev.Type {
		case domain.EventScanStart:
			spinner.Stop()
			spinning = false
			if ev.Total > 0 {
				bar = ui.NewProgressBar(int64(ev.Total), "Filing documents")
			}
		case domain.EventDocumentComplete:
			if bar != nil {
				bar.Increment()
			}
		}
	}
	if spinning {
		spinner.Stop()
	}
	if bar != nil {
		bar.Finish()
	}

	res := <-done
	printSummary(res.summary)
	if res.err != nil {
		ui.Error("Scan stopped: %v", res.err)
		return fmt.Errorf("scan failed: %w", res.err)
	}
	return nil
}

func printSummary(s domain.ScanSummary) {
	if len(s.Results) > 0 {
		ui.Section("Documents")
		rows := make([][]string, 0, len(s.Results))
		for _, r := range s.Results {
			rows = append(rows, documentRow(r))
		}
		ui.Table([]string{"Document", "Outcome", "Barcode", "Detail"}, rows)
	}

	ui.Section("Scan Summary")
	ui.Table([]string{"Metric", "Value"}, [][]string{
		{"Run", s.RunID},
		{"Relocated", fmt.Sprintf("%d", s.Relocated)},
		{"Left in place", fmt.Sprintf("%d", s.LeftInPlace)},
		{"Failed", fmt.Sprintf("%d", s.Failed)},
		{"Skipped (not .pdf)", fmt.Sprintf("%d", s.Skipped)},
		{"Duration", ui.FormatDuration(s.Duration)},
	})
	ui.Newline()

	switch {
	case s.Failed > 0:
		ui.Warning("%d document(s) failed and were left in the input folder", s.Failed)
	case s.Processed() == 0:
		ui.Info("No PDF documents found")
	default:
		ui.Success("%d document(s) filed", s.Relocated)
	}
}

func documentRow(r domain.DocumentResult) []string {
	detail := r.Outcome.Destination
	if detail == "" {
		detail = r.Outcome.Reason
	}
	return []string{
		r.Document.Name(),
		string(r.Outcome.Kind),
		ui.Truncate(r.Decode.Text, 40),
		ui.Truncate(detail, 60),
	}
}
