// Package main provides the entry point for the demongrep CLI.
package main

import (
	"os"

	"github.com/yxanul/demongrep/cmd/demongrep/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(cmd.ExitCode(err))
	}
}
