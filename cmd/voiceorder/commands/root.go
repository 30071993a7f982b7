package commands

import (
	"github.com/spf13/cobra"
)

var (
	// Global flags
	serverURL string
	verbose   bool
)

var rootCmd = &cobra.Command{
	Use:   "voiceorder",
	Short: "CLI client for the voice order service",
	Long: `voiceorder - command line client for the voice order service.

Commands:
  stream  Stream a WAV file through the live transcription relay
  ingest  Post a recognized-order payload
  cart    Show the current cart
  menu    Show the menu catalog
  result  Show the latest stored transcription result

Examples:
  voiceorder --server http://localhost:8080 menu
  voiceorder stream order.wav --linger 2s
  voiceorder ingest payload.json
  voiceorder cart`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "http://localhost:8080", "voice order service base URL")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}
