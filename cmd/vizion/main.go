package main

import (
	"os"

	"github.com/vizionai/vizion/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
