package main

import (
	"os"

	"ascendly-scoring/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
