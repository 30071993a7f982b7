package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/sbenstewart/dutch-bros-hackathon/internal/capture"
	"github.com/sbenstewart/dutch-bros-hackathon/internal/transcription"
)

var lingerAfterDrain time.Duration

var streamCmd = &cobra.Command{
	Use:   "stream <file.wav>",
	Short: "Stream a WAV file through the live transcription relay",
	Long: `Stream a mono 16-bit WAV file through the live transcription relay.

The file is downsampled to 16 kHz PCM, chunked and sent over the
server's /ws/transcribe-live websocket. Partial and final transcript
segments print as they arrive. After the file drains the session
lingers briefly so trailing segments can land, then stops and prints
session statistics.

Examples:
  voiceorder stream order.wav
  voiceorder stream order.wav --linger 5s
  voiceorder --server http://localhost:8080 stream order.wav`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		endpoint, err := wsURL("/ws/transcribe-live")
		if err != nil {
			return err
		}

		client, err := transcription.NewClient(transcription.Config{
			URL:            endpoint,
			ConnectTimeout: 5 * time.Second,
			MaxRetries:     1,
		})
		if err != nil {
			return err
		}

		level := slog.LevelWarn
		if verbose {
			level = slog.LevelInfo
		}
		logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

		printVerbose("Streaming %s to %s", args[0], endpoint)

		session, err := capture.Start(cmd.Context(), capture.Config{
			Source: capture.NewFileSource(args[0], 0),
			Dialer: capture.DialerFunc(func(ctx context.Context) (capture.TranscriptStream, error) {
				return client.Dial(ctx)
			}),
			Logger: logger,
		})
		if err != nil {
			return err
		}

		// Give trailing segments time to land once the file drains.
		go func() {
			<-session.Done()
			printVerbose("Audio source drained, lingering %s", lingerAfterDrain)
			time.Sleep(lingerAfterDrain)
			session.Stop()
		}()

		for event, err := range session.Events() {
			if err != nil {
				fmt.Println(errorStyle.Render("error   " + err.Error()))
				session.Stop()
				continue
			}
			switch event.Type {
			case capture.EventPartial:
				fmt.Println(partialStyle.Render("partial " + event.Transcript))
			case capture.EventFinal:
				fmt.Println(finalStyle.Render("final   " + event.Transcript))
			case capture.EventStopped:
				printVerbose("Session stopped")
			}
		}

		stats := session.GetStats()
		fmt.Println(dimStyle.Render(fmt.Sprintf(
			"sent %d chunks (%d bytes), %d partials, %d finals",
			stats.ChunksSent, stats.BytesSent, stats.Partials, stats.Finals)))
		return nil
	},
}

func init() {
	streamCmd.Flags().DurationVar(&lingerAfterDrain, "linger", 2*time.Second, "wait for trailing transcripts after the audio drains")

	rootCmd.AddCommand(streamCmd)
}
