package main

import (
	"os"

	"github.com/herdhq/herd/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
