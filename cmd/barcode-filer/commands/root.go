package commands

import (
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/justMega/barcode-pdf-pc/cmd/barcode-filer/ui"
)

var (
	cfgFile string
	verbose bool
	noColor bool
)

var rootCmd = &cobra.Command{
	Use:   "barcode-filer",
	Short: "Barcode filer - files scanned PDFs by the barcode on their first page",
	Long: `Barcode filer scans an input folder for PDF documents, reads the barcode printed
on the first page of each one and moves it into the output folder under the decoded text.
Documents without a readable barcode stay where they are.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		_ = godotenv.Load() // Ignore error if .env doesn't exist
		ui.InitUI(noColor, verbose)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path (default: ./settings.json)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
