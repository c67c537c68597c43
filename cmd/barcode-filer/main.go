package main

import (
	"fmt"
	"os"

	"github.com/justMega/barcode-pdf-pc/cmd/barcode-filer/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
