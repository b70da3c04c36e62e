// Notebookd is a citation-grounded notebook daemon.
//
// It ingests sources into a per-owner vector index and answers questions
// about them with inline citations over HTTP.
//
// Usage:
//
//	# Start the server with defaults
//	notebookd serve
//
//	# Configure via file or environment
//	notebookd serve --config ~/.config/notebookd/config.yaml
//	SERVER_PORT=9000 notebookd serve
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version information (set via ldflags during build).
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

func main() {
	root := &cobra.Command{
		Use:           "notebookd",
		Short:         "Citation-grounded notebook daemon",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(newServeCmd())
	root.AddCommand(newVersionCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("notebookd\n")
			fmt.Printf("Version:    %s\n", version)
			fmt.Printf("Commit:     %s\n", gitCommit)
			fmt.Printf("Build Date: %s\n", buildDate)
		},
	}
}
