// Package main provides the entry point for the askfs CLI.
package main

import (
	"os"

	"github.com/askfs/askfs/cmd/askfs/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
