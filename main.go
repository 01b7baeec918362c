// ./main.go
package main

import (
	"github.com/webgym/webgym/cmd"
)

// main is the entry point for the webgym CLI.
func main() {
	// Execute the root command defined in the cmd package.
	// This handles all command-line parsing, configuration, and execution.
	cmd.Execute()
}
