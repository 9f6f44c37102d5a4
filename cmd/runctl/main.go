// Package main provides the CLI entry point for runctl.
package main

import (
	"fmt"
	"os"

	"github.com/arclabs561/runctl/internal/cmd"
)

// Version is the current version of runctl, injected at build time
// via -ldflags.
var Version = "dev"

func main() {
	cmd.Version = Version
	rootCmd := cmd.NewRootCommand()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
