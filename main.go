// The main package for the feedsync executable.
package main

import (
	"github.com/JakeFAU/feedsync/cmd"
)

// main defers all execution to the Cobra CLI.
func main() {
	cmd.Execute()
}
