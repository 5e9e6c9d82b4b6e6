// Package main provides the entry point for the flintd daemon CLI.
package main

import (
	"os"

	"github.com/flint-notes/flint/cmd/flintd/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
