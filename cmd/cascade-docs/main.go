// Package main provides the entry point for the cascade-docs CLI.
package main

import (
	"os"

	"github.com/cascadedocs/cascade/cmd/cascade-docs/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
