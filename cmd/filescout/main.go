// Package main provides the entry point for the filescout CLI.
package main

import (
	"os"

	"github.com/Itsme23476/filescout/cmd/filescout/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
