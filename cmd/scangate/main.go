package main

import (
	"github.com/halcyonsec/scangate/cmd"
)

// main is the entry point for the scangate CLI.
func main() {
	cmd.Execute()
}
