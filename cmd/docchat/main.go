// Command docchat is the entry point for the document chat system.
// It provides the retrieval server, the indexing pipeline, and an
// interactive terminal client (via Cobra subcommands).
package main

import (
	"fmt"
	"os"

	"github.com/54b3r/docchat-go/cmd/docchat/commands"
)

func main() {
	if err := commands.NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
