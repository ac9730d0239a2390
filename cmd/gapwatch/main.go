package main

import (
	"os"

	"github.com/wonny/gapwatch/cmd/gapwatch/commands"
)

// main is the entry point for the gapwatch CLI
// ⭐ single CLI entry point: go run ./cmd/gapwatch [command]
func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
