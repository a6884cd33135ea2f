package main

import (
	"os"

	"github.com/mxfmover/mxfmover/cmd/mxfmover/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		commands.PrintErr("Error: %v", err)
		os.Exit(1)
	}
}
