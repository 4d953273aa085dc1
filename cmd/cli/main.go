// Package main is the entry point for the pool-boq CLI.
package main

import (
	"os"

	"pool-boq/cmd/cli/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
