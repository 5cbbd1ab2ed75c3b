// Package main provides the entry point for the scribe CLI.
package main

import (
	"fmt"
	"os"

	"github.com/mwinckel/scribe/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
