package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Transcript message status values
const (
	StatusPartial = "PARTIAL_SEGMENT"
	StatusFinal   = "FINAL_SEGMENT"
	StatusError   = "ERROR"
)

// Audio chunk framing
const (
	// AudioChunkSamples is the number of PCM samples carried by one binary message.
	AudioChunkSamples = 1024

	// BytesPerSample is the width of one 16-bit signed little-endian sample.
	BytesPerSample = 2

	// AudioChunkBytes is the exact size of one binary audio message.
	AudioChunkBytes = AudioChunkSamples * BytesPerSample
)

// ErrMalformedPayload marks an ingestion payload whose items array is
// missing, empty, or not decodable. Ingestion is a no-op for such payloads.
var ErrMalformedPayload = errors.New("malformed ingestion payload")

// TranscriptMessage is one JSON text frame on the transcription channel.
// Recognition results carry Status + Transcript; failures carry Status
// "ERROR" + Detail.
type TranscriptMessage struct {
	Status     string `json:"status"`
	Transcript string `json:"transcript,omitempty"`
	Detail     string `json:"detail,omitempty"`
}

// IngestItem is one recognized drink in an ingestion payload. ProductHint
// is free text from the transcript; everything else is optional.
type IngestItem struct {
	ProductHint string   `json:"product_hint"`
	Quantity    int      `json:"quantity,omitempty"`
	Size        string   `json:"size,omitempty"`
	Temperature string   `json:"temperature,omitempty"`
	Modifiers   []string `json:"modifiers,omitempty"`
}

// IngestPayload is the recognized-order payload posted by the upstream
// entity extractor.
type IngestPayload struct {
	Items        []IngestItem `json:"items"`
	Notes        string       `json:"notes,omitempty"`
	CustomerName string       `json:"customer_name,omitempty"`
}

// ParseTranscriptMessage parses a JSON text frame from the transcription
// channel and validates its status value.
func ParseTranscriptMessage(data []byte) (*TranscriptMessage, error) {
	var msg TranscriptMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("failed to parse transcript message: %w", err)
	}
	if err := ValidateTranscriptMessage(&msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// ValidateTranscriptMessage checks the message against the known status set.
func ValidateTranscriptMessage(msg *TranscriptMessage) error {
	switch msg.Status {
	case StatusPartial, StatusFinal:
		return nil
	case StatusError:
		if msg.Detail == "" {
			return fmt.Errorf("error message missing detail")
		}
		return nil
	default:
		return fmt.Errorf("unknown transcript status: %q", msg.Status)
	}
}

// Encode serializes the message for a websocket text frame.
func (m *TranscriptMessage) Encode() ([]byte, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("failed to encode transcript message: %w", err)
	}
	return data, nil
}

// IsTerminalError reports whether the message is a backend-reported error.
func (m *TranscriptMessage) IsTerminalError() bool {
	return m.Status == StatusError
}

// ParseIngestPayload parses and validates a recognized-order payload.
// Any decode failure or a missing/empty items array yields an error
// matching ErrMalformedPayload.
func ParseIngestPayload(data []byte) (*IngestPayload, error) {
	var payload IngestPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if err := ValidateIngestPayload(&payload); err != nil {
		return nil, err
	}
	return &payload, nil
}

// ValidateIngestPayload checks that the payload carries at least one item.
// Item contents are not validated here: an unresolvable hint is skipped
// downstream, not rejected at the boundary.
func ValidateIngestPayload(payload *IngestPayload) error {
	if payload.Items == nil {
		return fmt.Errorf("%w: missing items array", ErrMalformedPayload)
	}
	if len(payload.Items) == 0 {
		return fmt.Errorf("%w: empty items array", ErrMalformedPayload)
	}
	return nil
}

// ValidateAudioChunk checks a binary frame against the fixed chunk size.
func ValidateAudioChunk(data []byte) error {
	if len(data) != AudioChunkBytes {
		return fmt.Errorf("invalid audio chunk size: expected %d bytes, got %d", AudioChunkBytes, len(data))
	}
	return nil
}

// String returns a human-readable representation of the message.
func (m *TranscriptMessage) String() string {
	switch m.Status {
	case StatusError:
		return fmt.Sprintf("TranscriptMessage{Status:%s, Detail:%q}", m.Status, m.Detail)
	default:
		return fmt.Sprintf("TranscriptMessage{Status:%s, Transcript:%q}", m.Status, m.Transcript)
	}
}

// String returns a human-readable representation of the payload.
func (p *IngestPayload) String() string {
	hints := make([]string, 0, len(p.Items))
	for _, it := range p.Items {
		hints = append(hints, it.ProductHint)
	}
	return fmt.Sprintf("IngestPayload{Items:%d, Hints:[%s]}", len(p.Items), strings.Join(hints, ", "))
}
