// Package protocol defines the wire formats at the service boundary:
// JSON transcript messages on the transcription channel, the recognized-order
// ingestion payload, and the fixed binary framing of PCM audio chunks.
package protocol
