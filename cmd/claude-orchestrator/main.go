package main

import (
	"os"

	"github.com/nichiki/claude-orchestrator/cmd/claude-orchestrator/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
