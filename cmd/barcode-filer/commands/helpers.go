package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/justMega/barcode-pdf-pc/internal/config"
	"github.com/justMega/barcode-pdf-pc/internal/observability"
)

// loadConfig reads the configuration named by --config.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if verbose {
		cfg.Observability.LogLevel = "debug"
	}
	return cfg, nil
}

// newLogger builds the process logger. quiet raises the level to warn so log
// lines do not tear through the progress bar.
func newLogger(cfg *config.Config, quiet bool) *observability.Logger {
	level := cfg.Observability.LogLevel
	if quiet && !verbose {
		level = "warn"
	}
	return observability.NewLogger(observability.LogConfig{
		Level:       level,
		Format:      cfg.Observability.LogFormat,
		Output:      os.Stderr,
		ServiceName: "barcode-filer",
	})
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}
