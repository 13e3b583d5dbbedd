// Package main is the entry point for the tvjuke application.
package main

import (
	"os"

	"github.com/tvjuke/tvjuke/cmd/tvjuke/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
