// Package main provides the voiceorder CLI client.
//
// Usage:
//
//	voiceorder [flags] <command> [args]
//
// Commands:
//
//	stream - Stream a WAV file through the live transcription relay
//	ingest - Post a recognized-order payload to the server
//	cart   - Show the current cart
//	menu   - Show the menu catalog
//	result - Show the latest stored transcription result
package main

import (
	"fmt"
	"os"

	"github.com/sbenstewart/dutch-bros-hackathon/cmd/voiceorder/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
