// Command docqa is the entry point for the documentation Q&A service.
// It provides a CLI interface (via Cobra) for asking questions, searching
// the corpus, ingesting documentation, and running the HTTP server.
package main

import (
	"fmt"
	"os"

	"github.com/54b3r/docqa-go/cmd/docqa/commands"
)

func main() {
	if err := commands.NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
