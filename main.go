package main

import (
	"os"

	"github.com/cartolab/terrastack/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
