package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

// Version is set at build time via -ldflags.
var Version = "dev"

var rootCmd = &cobra.Command{
	Use:   "taskveil",
	Short: "Taskveil is a task manager with a concealed encrypted chat",
	Long: `A task management service whose interface conceals an end-to-end
encrypted chat. The server stores and relays opaque message blobs; it never
holds the keys to read them.`,
}

func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}
