package commands

import (
	"bytes"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sbenstewart/dutch-bros-hackathon/internal/ingest"
	"github.com/sbenstewart/dutch-bros-hackathon/internal/protocol"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest <payload.json>",
	Short: "Post a recognized-order payload",
	Long: `Post a recognized-order payload to the ingestion endpoint.

Example payload file (payload.json):
  {
    "items": [
      {"product_hint": "golden eagle", "size": "large", "temperature": "iced"},
      {"product_hint": "latte", "quantity": 2, "modifiers": ["oat milk"]}
    ]
  }

Examples:
  voiceorder ingest payload.json
  voiceorder --server http://localhost:8080 ingest payload.json`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("failed to read payload file: %w", err)
		}

		// Validate locally so malformed files fail before the request.
		payload, err := protocol.ParseIngestPayload(data)
		if err != nil {
			return err
		}
		printVerbose("Posting %d items", len(payload.Items))

		var result ingest.Result
		if err := postJSON("/api/orders/ingest", bytes.NewReader(data), &result); err != nil {
			return err
		}

		fmt.Println(labelStyle.Render("Ingested"))
		fmt.Printf("  added:  %d\n", result.Added)
		fmt.Printf("  merged: %d\n", result.Merged)
		for _, hint := range result.Skipped {
			fmt.Println(dimStyle.Render("  skipped: " + hint))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(ingestCmd)
}
