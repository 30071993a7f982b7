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
	"testing"
	"time"

	"github.com/sbenstewart/dutch-bros-hackathon/internal/protocol"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeSource struct {
	mu      sync.Mutex
	blocks  [][]float32
	next    int
	rate    int
	openErr error
	readErr error
	closed  bool
	onClose func()
}

func (f *fakeSource) Open() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.openErr
}

func (f *fakeSource) Read() ([]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return nil, io.EOF
	}
	if f.next >= len(f.blocks) {
		if f.readErr != nil {
			return nil, f.readErr
		}
		return nil, io.EOF
	}
	block := f.blocks[f.next]
	f.next++
	return block, nil
}

func (f *fakeSource) SampleRate() int { return f.rate }

func (f *fakeSource) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	if f.onClose != nil {
		f.onClose()
	}
	return nil
}

func (f *fakeSource) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

type fakeStream struct {
	mu        sync.Mutex
	sent      [][]byte
	sendErr   error
	msgs      chan *protocol.TranscriptMessage
	closed    bool
	closeOnce sync.Once
	onClose   func()
}

func newFakeStream() *fakeStream {
	return &fakeStream{msgs: make(chan *protocol.TranscriptMessage, 16)}
}

func (f *fakeStream) SendAudio(chunk []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	buf := make([]byte, len(chunk))
	copy(buf, chunk)
	f.sent = append(f.sent, buf)
	return nil
}

func (f *fakeStream) Recv(ctx context.Context) iter.Seq2[*protocol.TranscriptMessage, error] {
	return func(yield func(*protocol.TranscriptMessage, error) bool) {
		for {
			select {
			case <-ctx.Done():
				yield(nil, ctx.Err())
				return
			case msg, ok := <-f.msgs:
				if !ok {
					return
				}
				if !yield(msg, nil) {
					return
				}
			}
		}
	}
}

func (f *fakeStream) Close() error {
	f.closeOnce.Do(func() {
		f.mu.Lock()
		f.closed = true
		onClose := f.onClose
		f.mu.Unlock()
		close(f.msgs)
		if onClose != nil {
			onClose()
		}
	})
	return nil
}

func (f *fakeStream) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func (f *fakeStream) sentSizes() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	sizes := make([]int, len(f.sent))
	for i, chunk := range f.sent {
		sizes[i] = len(chunk)
	}
	return sizes
}

type fakeDialer struct {
	mu     sync.Mutex
	stream TranscriptStream
	err    error
	calls  int
}

func (d *fakeDialer) Dial(ctx context.Context) (TranscriptStream, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls++
	if d.err != nil {
		return nil, d.err
	}
	return d.stream, nil
}

func (d *fakeDialer) callCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls
}

func startTestSession(t *testing.T, source *fakeSource, stream *fakeStream) *Session {
	t.Helper()
	s, err := Start(context.Background(), Config{
		Source:           source,
		Dialer:           &fakeDialer{stream: stream},
		TargetSampleRate: 16000,
		Logger:           testLogger(),
	})
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	return s
}

func waitDone(t *testing.T, s *Session) {
	t.Helper()
	select {
	case <-s.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("Done was not signaled after the source drained")
	}
}

func eventually(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}

func collectEvents(s *Session) ([]*Event, []error) {
	var events []*Event
	var errs []error
	for evt, err := range s.Events() {
		if err != nil {
			errs = append(errs, err)
			continue
		}
		events = append(events, evt)
	}
	return events, errs
}

func TestSessionSendsDownsampledAudio(t *testing.T) {
	source := &fakeSource{rate: 16000, blocks: [][]float32{make([]float32, 2048)}}
	stream := newFakeStream()
	s := startTestSession(t, source, stream)

	waitDone(t, s)

	sizes := stream.sentSizes()
	if len(sizes) != 2 {
		t.Fatalf("Expected 2 chunks relayed, got %d", len(sizes))
	}
	for i, size := range sizes {
		if size != protocol.AudioChunkBytes {
			t.Errorf("Chunk %d: expected %d bytes, got %d", i, protocol.AudioChunkBytes, size)
		}
	}

	stats := s.GetStats()
	if stats.ChunksSent != 2 {
		t.Errorf("Expected ChunksSent 2, got %d", stats.ChunksSent)
	}
	if stats.BytesSent != uint64(2*protocol.AudioChunkBytes) {
		t.Errorf("Expected BytesSent %d, got %d", 2*protocol.AudioChunkBytes, stats.BytesSent)
	}

	if err := s.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
}

func TestSessionRelaysTranscripts(t *testing.T) {
	source := &fakeSource{rate: 16000}
	stream := newFakeStream()
	s := startTestSession(t, source, stream)

	stream.msgs <- &protocol.TranscriptMessage{Status: protocol.StatusPartial, Transcript: "large"}
	stream.msgs <- &protocol.TranscriptMessage{Status: protocol.StatusFinal, Transcript: "large iced latte"}

	eventually(t, func() bool {
		stats := s.GetStats()
		return stats.Partials == 1 && stats.Finals == 1
	}, "transcript events were not consumed")

	if err := s.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	events, errs := collectEvents(s)
	if len(errs) != 0 {
		t.Fatalf("Unexpected errors: %v", errs)
	}
	want := []struct {
		eventType  EventType
		transcript string
	}{
		{EventPartial, "large"},
		{EventFinal, "large iced latte"},
		{EventStopped, ""},
	}
	if len(events) != len(want) {
		t.Fatalf("Expected %d events, got %d", len(want), len(events))
	}
	for i, w := range want {
		if events[i].Type != w.eventType {
			t.Errorf("Event %d: expected type %s, got %s", i, w.eventType, events[i].Type)
		}
		if events[i].Transcript != w.transcript {
			t.Errorf("Event %d: expected transcript %q, got %q", i, w.transcript, events[i].Transcript)
		}
	}
}

func TestSessionStopTwice(t *testing.T) {
	source := &fakeSource{rate: 16000}
	stream := newFakeStream()
	s := startTestSession(t, source, stream)

	if err := s.Stop(); err != nil {
		t.Fatalf("First stop failed: %v", err)
	}
	if err := s.Stop(); err != nil {
		t.Errorf("Second stop returned error: %v", err)
	}

	if !source.isClosed() {
		t.Error("Expected source to be closed")
	}
	if !stream.isClosed() {
		t.Error("Expected stream to be closed")
	}
}

func TestSessionTeardownOrder(t *testing.T) {
	var mu sync.Mutex
	var order []string

	source := &fakeSource{rate: 16000}
	source.onClose = func() {
		mu.Lock()
		order = append(order, "source")
		mu.Unlock()
	}
	stream := newFakeStream()
	stream.onClose = func() {
		mu.Lock()
		order = append(order, "stream")
		mu.Unlock()
	}

	s := startTestSession(t, source, stream)
	if err := s.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(order) != 2 || order[0] != "source" || order[1] != "stream" {
		t.Errorf("Expected teardown order [source stream], got %v", order)
	}
}

// stalledStream blocks every send until the stream is closed, the way a
// peer that stopped reading its socket would.
type stalledStream struct {
	entered   chan struct{}
	release   chan struct{}
	enterOnce sync.Once
	closeOnce sync.Once
}

func newStalledStream() *stalledStream {
	return &stalledStream{
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
}

func (s *stalledStream) SendAudio([]byte) error {
	s.enterOnce.Do(func() { close(s.entered) })
	<-s.release
	return errors.New("connection closed")
}

func (s *stalledStream) Recv(ctx context.Context) iter.Seq2[*protocol.TranscriptMessage, error] {
	return func(yield func(*protocol.TranscriptMessage, error) bool) {
		<-ctx.Done()
	}
}

func (s *stalledStream) Close() error {
	s.closeOnce.Do(func() { close(s.release) })
	return nil
}

func TestStopUnblocksStalledSend(t *testing.T) {
	source := &fakeSource{rate: 16000, blocks: [][]float32{make([]float32, 2048)}}
	stream := newStalledStream()

	s, err := Start(context.Background(), Config{
		Source:           source,
		Dialer:           &fakeDialer{stream: stream},
		TargetSampleRate: 16000,
		Logger:           testLogger(),
	})
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	select {
	case <-stream.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("Pump never reached the stalled send")
	}

	done := make(chan struct{})
	go func() {
		s.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop hung while a send was in flight")
	}
}

func TestStartPermissionDenied(t *testing.T) {
	source := &fakeSource{
		rate:    16000,
		openErr: fmt.Errorf("open /dev/snd: %w", os.ErrPermission),
	}
	dialer := &fakeDialer{stream: newFakeStream()}

	_, err := Start(context.Background(), Config{
		Source: source,
		Dialer: dialer,
		Logger: testLogger(),
	})
	if err == nil {
		t.Fatal("Expected error for denied source")
	}
	if !errors.Is(err, ErrPermissionDenied) {
		t.Errorf("Expected ErrPermissionDenied, got %v", err)
	}
	if dialer.callCount() != 0 {
		t.Errorf("Expected no dial after open failure, got %d", dialer.callCount())
	}
}

func TestStartDialFailure(t *testing.T) {
	source := &fakeSource{rate: 16000}
	dialer := &fakeDialer{err: fmt.Errorf("connection refused")}

	_, err := Start(context.Background(), Config{
		Source: source,
		Dialer: dialer,
		Logger: testLogger(),
	})
	if err == nil {
		t.Fatal("Expected error for failed dial")
	}
	if !contains(err.Error(), "failed to connect transcript stream") {
		t.Errorf("Unexpected error: %v", err)
	}
	if !source.isClosed() {
		t.Error("Expected source to be closed after dial failure")
	}
}

func TestStartValidation(t *testing.T) {
	tests := []struct {
		name     string
		config   Config
		errorMsg string
	}{
		{
			name:     "nil source",
			config:   Config{Dialer: &fakeDialer{stream: newFakeStream()}, Logger: testLogger()},
			errorMsg: "source cannot be nil",
		},
		{
			name:     "nil dialer",
			config:   Config{Source: &fakeSource{rate: 16000}, Logger: testLogger()},
			errorMsg: "dialer cannot be nil",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Start(context.Background(), tt.config)
			if err == nil {
				t.Fatal("Expected error but got none")
			}
			if !contains(err.Error(), tt.errorMsg) {
				t.Errorf("Expected error containing %q, got %q", tt.errorMsg, err.Error())
			}
		})
	}
}

func TestSessionUpstreamErrorSurfaces(t *testing.T) {
	source := &fakeSource{rate: 16000}
	stream := newFakeStream()
	s := startTestSession(t, source, stream)

	stream.msgs <- &protocol.TranscriptMessage{Status: protocol.StatusError, Detail: "decoder crashed"}

	errCh := make(chan error, 1)
	go func() {
		for _, err := range s.Events() {
			if err != nil {
				errCh <- err
				return
			}
		}
	}()

	select {
	case err := <-errCh:
		if !contains(err.Error(), "decoder crashed") {
			t.Errorf("Expected error detail in %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Expected a transcription error event")
	}

	if err := s.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
}

func TestSessionSourceReadErrorSurfaces(t *testing.T) {
	source := &fakeSource{rate: 16000, readErr: fmt.Errorf("device wedged")}
	stream := newFakeStream()
	s := startTestSession(t, source, stream)

	errCh := make(chan error, 1)
	go func() {
		for _, err := range s.Events() {
			if err != nil {
				errCh <- err
				return
			}
		}
	}()

	select {
	case err := <-errCh:
		if !contains(err.Error(), "audio source read failed") || !contains(err.Error(), "device wedged") {
			t.Errorf("Unexpected error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Expected a source read error event")
	}

	if err := s.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
}

func TestSessionSendErrorSurfaces(t *testing.T) {
	source := &fakeSource{rate: 16000, blocks: [][]float32{make([]float32, 1024)}}
	stream := newFakeStream()
	stream.sendErr = fmt.Errorf("broken pipe")
	s := startTestSession(t, source, stream)

	errCh := make(chan error, 1)
	go func() {
		for _, err := range s.Events() {
			if err != nil {
				errCh <- err
				return
			}
		}
	}()

	select {
	case err := <-errCh:
		if !contains(err.Error(), "failed to send audio chunk") {
			t.Errorf("Unexpected error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Expected a send error event")
	}

	if err := s.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
}

// contains checks if a string contains a substring
func contains(s, substr string) bool {
	return len(s) >= len(substr) && (s == substr || len(substr) == 0 ||
		(len(s) > 0 && len(substr) > 0 && findSubstring(s, substr)))
}

func findSubstring(s, substr string) bool {
	for i := 0; i <= len(s)-len(substr); i++ {
		if s[i:i+len(substr)] == substr {
			return true
		}
	}
	return false
}
