// Package main provides the entry point for exsim-ctl, the management
// client of exsim.
package main

import (
	"fmt"
	"os"

	"github.com/sudheendrakatikar/exsim/internal/cli/command"
)

func main() {
	if err := command.App().Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
