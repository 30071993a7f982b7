package transcription

import (
	"context"
	"fmt"
	"iter"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/sbenstewart/dutch-bros-hackathon/internal/protocol"
)

// sendTimeout bounds one audio chunk write so a stalled upstream peer
// cannot block the sender forever.
const sendTimeout = 10 * time.Second

// Stream is one live transcription websocket session. Writes go
// through SendAudio; a background goroutine owns all reads.
type Stream struct {
	conn      *websocket.Conn
	recvChan  chan *protocol.TranscriptMessage
	errChan   chan error
	closeChan chan struct{}
	closeOnce sync.Once
	writeMu   sync.Mutex
}

func newStream(conn *websocket.Conn) *Stream {
	s := &Stream{
		conn:      conn,
		recvChan:  make(chan *protocol.TranscriptMessage, 100),
		errChan:   make(chan error, 1),
		closeChan: make(chan struct{}),
	}
	go s.receiveLoop()
	return s
}

// SendAudio relays one binary audio chunk upstream.
func (s *Stream) SendAudio(chunk []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.conn.SetWriteDeadline(time.Now().Add(sendTimeout))
	if err := s.conn.WriteMessage(websocket.BinaryMessage, chunk); err != nil {
		return fmt.Errorf("failed to send audio chunk: %w", err)
	}
	return nil
}

// receiveLoop reads transcript messages until the connection ends.
func (s *Stream) receiveLoop() {
	defer close(s.recvChan)

	for {
		msgType, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return
			}
			select {
			case s.errChan <- err:
			default:
			}
			return
		}

		if msgType != websocket.TextMessage {
			continue
		}

		msg, err := protocol.ParseTranscriptMessage(data)
		if err != nil {
			select {
			case s.errChan <- fmt.Errorf("bad transcript message: %w", err):
			default:
			}
			return
		}

		select {
		case s.recvChan <- msg:
		case <-s.closeChan:
			return
		}
	}
}

// Recv yields transcript messages until the stream ends. Iteration
// stops after a terminal ERROR message, a transport failure, or
// context cancellation; a clean upstream close ends it without error.
func (s *Stream) Recv(ctx context.Context) iter.Seq2[*protocol.TranscriptMessage, error] {
	return func(yield func(*protocol.TranscriptMessage, error) bool) {
		for {
			select {
			case <-ctx.Done():
				yield(nil, ctx.Err())
				return
			case <-s.closeChan:
				return
			case msg, ok := <-s.recvChan:
				if !ok {
					select {
					case err := <-s.errChan:
						yield(nil, err)
					default:
					}
					return
				}
				if !yield(msg, nil) {
					return
				}
				if msg.IsTerminalError() {
					return
				}
			}
		}
	}
}

// Close sends a close frame and tears down the connection. Safe to
// call more than once.
func (s *Stream) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.closeChan)
		deadline := time.Now().Add(time.Second)
		s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
		err = s.conn.Close()
	})
	return err
}
