// Package main provides the entry point for the connectly CLI.
package main

import (
	"fmt"
	"os"

	"github.com/connectly/connectly-client/internal/command"
)

func main() {
	if err := command.App().Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
