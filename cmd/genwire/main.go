// Package main is the entry point for the genwire CLI.
//
// Usage:
//
//	genwire [flags] <command> [args]
//
// Commands:
//
//	generate   - Generate Go client code for a project (genwire.yml)
//	worker     - Serve the generator protocol over stdin/stdout
//	version    - Show version information
package main

import (
	"fmt"
	"os"

	"github.com/syssam/genwire/cmd/genwire/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
