// Package ui provides console output helpers for the barcode-filer CLI.
package ui

import (
	"github.com/fatih/color"
)

var verboseFlag bool

// InitUI applies the color and verbose settings.
func InitUI(noColor, verbose bool) {
	verboseFlag = verbose

	if noColor {
		color.NoColor = true
	}
}

// Verbose reports whether verbose output was requested.
func Verbose() bool {
	return verboseFlag
}
