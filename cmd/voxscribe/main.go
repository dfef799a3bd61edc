// Command voxscribe runs the recording-to-document pipeline: a web UI plus
// watcher by default, or one-shot subcommands.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	root := &cobra.Command{
		Use:   "voxscribe",
		Short: "Turn voice recordings into structured documents",
		Long: "VoxScribe fetches recordings from the Plaud API or a watch folder,\n" +
			"transcribes them with Whisper, and writes structured documents via Claude.",
		SilenceUsage: true,
	}
	root.AddCommand(serveCmd(), processCmd(), recordingsCmd(), versionCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("voxscribe %s\n", version)
		},
	}
}
