package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var resultCmd = &cobra.Command{
	Use:   "result",
	Short: "Show the latest stored transcription result",
	RunE: func(cmd *cobra.Command, args []string) error {
		var body struct {
			Status     string    `json:"status"`
			SessionID  string    `json:"session_id"`
			Transcript string    `json:"transcript"`
			CapturedAt time.Time `json:"captured_at"`
		}
		if err := getJSON("/api/transcription/result", &body); err != nil {
			return err
		}

		if body.Status != "COMPLETED" {
			fmt.Println(dimStyle.Render("no transcription result stored yet"))
			return nil
		}

		fmt.Println(finalStyle.Render(body.Transcript))
		fmt.Println(dimStyle.Render(fmt.Sprintf("session %s at %s",
			body.SessionID, body.CapturedAt.Format(time.RFC3339))))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(resultCmd)
}
