package main

import (
	"os"

	"github.com/fmuoria/shortlist-agent/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
