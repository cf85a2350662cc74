// The main package for the paperdock executable.
package main

import (
	"github.com/paperdock/paperdock/cmd"
)

// main is the entry point of the application.
// It defers all execution to the Cobra CLI library.
func main() {
	cmd.Execute()
}
