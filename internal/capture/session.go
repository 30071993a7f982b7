package capture

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"os"
	"sync"

	"github.com/sbenstewart/dutch-bros-hackathon/internal/audio"
	"github.com/sbenstewart/dutch-bros-hackathon/internal/protocol"
)

// ErrPermissionDenied marks an audio source the process is not allowed
// to open.
var ErrPermissionDenied = errors.New("audio source permission denied")

// eventBuffer is the size of the session event queue.
const eventBuffer = 64

// TranscriptStream is the upstream half of a capture session. It accepts
// binary audio chunks and yields transcript messages until closed.
// *transcription.Stream satisfies it.
type TranscriptStream interface {
	SendAudio(chunk []byte) error
	Recv(ctx context.Context) iter.Seq2[*protocol.TranscriptMessage, error]
	Close() error
}

// Dialer opens a transcript stream for a capture session.
type Dialer interface {
	Dial(ctx context.Context) (TranscriptStream, error)
}

// DialerFunc adapts a function to the Dialer interface.
type DialerFunc func(ctx context.Context) (TranscriptStream, error)

// Dial calls f.
func (f DialerFunc) Dial(ctx context.Context) (TranscriptStream, error) {
	return f(ctx)
}

// EventType names a capture session event.
type EventType string

// Capture session event types
const (
	EventPartial EventType = "partial"
	EventFinal   EventType = "final"
	EventStopped EventType = "stopped"
)

// Event is one transcript update observed by a capture session.
type Event struct {
	Type       EventType
	Transcript string
}

// Config configures a capture session.
type Config struct {
	// Source supplies blocks of float samples.
	Source Source

	// Dialer opens the transcript stream the session feeds.
	Dialer Dialer

	// TargetSampleRate is the PCM rate sent upstream. Defaults to 16000.
	TargetSampleRate int

	// Logger for session lifecycle events. Defaults to slog.Default().
	Logger *slog.Logger
}

// SessionStats represents capture session statistics
type SessionStats struct {
	ChunksSent uint64 `json:"chunks_sent"`
	BytesSent  uint64 `json:"bytes_sent"`
	Partials   uint64 `json:"partials"`
	Finals     uint64 `json:"finals"`
}

type sessionEvent struct {
	evt *Event
	err error
}

// Session pumps audio from a source into a transcript stream and surfaces
// the transcript events that come back.
type Session struct {
	source Source
	stream TranscriptStream
	ds     *audio.Downsampler
	logger *slog.Logger

	events     chan sessionEvent
	sourceDone chan struct{}
	stopping   chan struct{}
	cancel     context.CancelFunc
	stopOnce   sync.Once
	wg         sync.WaitGroup

	// Statistics
	chunksSent uint64
	bytesSent  uint64
	partials   uint64
	finals     uint64
	mu         sync.RWMutex
}

// Start opens the source, dials the transcript stream and begins pumping
// audio. A source the process may not open yields an error matching
// ErrPermissionDenied.
func Start(ctx context.Context, cfg Config) (*Session, error) {
	if cfg.Source == nil {
		return nil, fmt.Errorf("source cannot be nil")
	}
	if cfg.Dialer == nil {
		return nil, fmt.Errorf("dialer cannot be nil")
	}
	if cfg.TargetSampleRate <= 0 {
		cfg.TargetSampleRate = 16000
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	if err := cfg.Source.Open(); err != nil {
		if errors.Is(err, os.ErrPermission) {
			return nil, fmt.Errorf("%w: %v", ErrPermissionDenied, err)
		}
		return nil, fmt.Errorf("failed to open audio source: %w", err)
	}

	stream, err := cfg.Dialer.Dial(ctx)
	if err != nil {
		if cerr := cfg.Source.Close(); cerr != nil {
			cfg.Logger.Warn("Failed to close audio source", "error", cerr.Error())
		}
		return nil, fmt.Errorf("failed to connect transcript stream: %w", err)
	}

	recvCtx, cancel := context.WithCancel(context.Background())
	s := &Session{
		source:     cfg.Source,
		stream:     stream,
		ds:         audio.NewDownsampler(cfg.Source.SampleRate(), cfg.TargetSampleRate),
		logger:     cfg.Logger,
		events:     make(chan sessionEvent, eventBuffer),
		sourceDone: make(chan struct{}),
		stopping:   make(chan struct{}),
		cancel:     cancel,
	}

	cfg.Logger.Info("Capture session started",
		"source_rate", cfg.Source.SampleRate(),
		"target_rate", cfg.TargetSampleRate)

	s.wg.Add(2)
	go s.pumpLoop()
	go s.recvLoop(recvCtx)
	return s, nil
}

// pumpLoop reads sample blocks from the source and relays the downsampled
// chunks upstream until the source drains or the session stops.
func (s *Session) pumpLoop() {
	defer s.wg.Done()
	for {
		select {
		case <-s.stopping:
			return
		default:
		}

		samples, err := s.source.Read()
		if err != nil {
			select {
			case <-s.stopping:
				return
			default:
			}
			if errors.Is(err, io.EOF) {
				s.logger.Info("Audio source drained")
				close(s.sourceDone)
				return
			}
			s.logger.Error("Audio source read failed", "error", err.Error())
			s.emit(nil, fmt.Errorf("audio source read failed: %w", err))
			return
		}

		for _, chunk := range s.ds.Process(samples) {
			if err := s.stream.SendAudio(chunk); err != nil {
				s.logger.Error("Failed to send audio chunk", "error", err.Error())
				s.emit(nil, fmt.Errorf("failed to send audio chunk: %w", err))
				return
			}
			s.mu.Lock()
			s.chunksSent++
			s.bytesSent += uint64(len(chunk))
			s.mu.Unlock()
		}
	}
}

// recvLoop turns upstream transcript messages into session events. Its
// context is canceled by Stop; that cancellation is not an error.
func (s *Session) recvLoop(ctx context.Context) {
	defer s.wg.Done()
	for msg, err := range s.stream.Recv(ctx) {
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			s.emit(nil, fmt.Errorf("transcript stream failed: %w", err))
			return
		}
		switch msg.Status {
		case protocol.StatusPartial:
			s.mu.Lock()
			s.partials++
			s.mu.Unlock()
			s.emit(&Event{Type: EventPartial, Transcript: msg.Transcript}, nil)
		case protocol.StatusFinal:
			s.mu.Lock()
			s.finals++
			s.mu.Unlock()
			s.emit(&Event{Type: EventFinal, Transcript: msg.Transcript}, nil)
		case protocol.StatusError:
			s.emit(nil, fmt.Errorf("transcription failed: %s", msg.Detail))
		}
	}
}

// emit queues an event for the consumer. Once teardown begins pending
// events are dropped so the loops can always exit.
func (s *Session) emit(evt *Event, err error) {
	select {
	case s.events <- sessionEvent{evt: evt, err: err}:
	case <-s.stopping:
	}
}

// Events yields transcript events and errors in arrival order. The sequence
// ends after the EventStopped entry that Stop enqueues. An error does not
// end the session; the caller decides whether to keep consuming or stop.
func (s *Session) Events() iter.Seq2[*Event, error] {
	return func(yield func(*Event, error) bool) {
		for se := range s.events {
			if !yield(se.evt, se.err) {
				return
			}
		}
	}
}

// Done is closed once the source has been read to the end. Transcript
// events may still arrive afterwards.
func (s *Session) Done() <-chan struct{} {
	return s.sourceDone
}

// Stop tears the session down: the source and the upstream stream are
// closed first so a blocked read or in-flight send fails immediately,
// then the pump and receive loops are waited out. Teardown failures are
// logged, never returned, and calling Stop again is a no-op.
func (s *Session) Stop() error {
	s.stopOnce.Do(func() {
		s.logger.Info("Stopping capture session")
		close(s.stopping)
		s.cancel()

		if err := s.source.Close(); err != nil {
			s.logger.Warn("Failed to close audio source", "error", err.Error())
		}
		if err := s.stream.Close(); err != nil {
			s.logger.Warn("Failed to close transcript stream", "error", err.Error())
		}

		s.wg.Wait()
		s.ds.Reset()

		select {
		case s.events <- sessionEvent{evt: &Event{Type: EventStopped}}:
		default:
		}
		close(s.events)

		stats := s.GetStats()
		s.logger.Info("Capture session stopped",
			"chunks_sent", stats.ChunksSent,
			"bytes_sent", stats.BytesSent,
			"partials", stats.Partials,
			"finals", stats.Finals)
	})
	return nil
}

// GetStats returns a snapshot of session statistics.
func (s *Session) GetStats() SessionStats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return SessionStats{
		ChunksSent: s.chunksSent,
		BytesSent:  s.bytesSent,
		Partials:   s.partials,
		Finals:     s.finals,
	}
}
