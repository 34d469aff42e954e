// Package main provides the entrypoint for gh-approval-gate.
package main

import (
	"os"

	"github.com/isometry/gh-approval-gate/cmd"
)

func main() {
	if err := cmd.New().Execute(); err != nil {
		os.Exit(1)
	}
}
