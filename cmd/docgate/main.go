// Package main provides the entry point for the docgate CLI.
package main

import (
	"os"

	"github.com/inkwell-ai/docgate/cmd/docgate/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
