package main

import (
	"os"

	"github.com/OldStager01/elastic-orchestrator/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
