package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/sbenstewart/dutch-bros-hackathon/internal/protocol"
	"github.com/sbenstewart/dutch-bros-hackathon/internal/stream"
	"github.com/sbenstewart/dutch-bros-hackathon/internal/transcription"
)

// wsWriteTimeout bounds a single websocket write to a client.
const wsWriteTimeout = 10 * time.Second

// wsClient serializes writes to one client websocket connection.
type wsClient struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *wsClient) send(messageType int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	return c.conn.WriteMessage(messageType, data)
}

// handleTranscribeLive implements GET /ws/transcribe-live. Binary audio
// frames from the client are validated and forwarded upstream; transcript
// messages flow back verbatim. On disconnect the joined final transcript
// becomes the latest stored result.
func (h *HTTPServer) handleTranscribeLive(w http.ResponseWriter, r *http.Request) {
	session, err := h.streamMgr.CreateSession()
	if err != nil {
		if errors.Is(err, stream.ErrSessionLimit) {
			writeError(w, http.StatusServiceUnavailable, "Session limit reached", h.logger)
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to create session", h.logger)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.streamMgr.RemoveSession(session.ID)
		h.logger.Error("Websocket upgrade failed", slog.String("error", err.Error()))
		return
	}

	// An expired session gets its websocket closed by the manager's
	// cleanup routine, which lands us on the normal disconnect path.
	session.SetCloser(func() { conn.Close() })

	h.metrics.RecordSessionStarted()
	h.logger.Info("Relay session connected",
		slog.String("session_id", session.ID),
		slog.String("remote_addr", r.RemoteAddr),
	)

	h.relay(session, conn)

	if err := h.streamMgr.StoreResult(session); err != nil {
		h.logger.Error("Failed to store transcription result",
			slog.String("session_id", session.ID),
			slog.String("error", err.Error()),
		)
	}
	h.streamMgr.RemoveSession(session.ID)
	h.metrics.RecordSessionClosed()
}

// relay runs one audio relay session until the client disconnects or the
// upstream connection dies.
func (h *HTTPServer) relay(session *stream.Session, conn *websocket.Conn) {
	defer conn.Close()

	client := &wsClient{conn: conn}

	upstream, err := h.streamMgr.DialUpstream(context.Background())
	if err != nil {
		h.logger.Error("Upstream dial failed",
			slog.String("session_id", session.ID),
			slog.String("error", err.Error()),
		)
		h.sendRelayError(client, session, "transcription backend unavailable")
		return
	}
	defer upstream.Close()

	recvCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		h.relayTranscripts(recvCtx, session, client, upstream)
	}()

	// Client read loop: binary audio frames go upstream, everything else
	// is ignored.
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			break
		}
		if msgType != websocket.BinaryMessage {
			continue
		}

		if err := protocol.ValidateAudioChunk(data); err != nil {
			session.RecordInvalidChunk()
			h.metrics.RecordInvalidChunk()
			h.logger.Warn("Dropping invalid audio chunk",
				slog.String("session_id", session.ID),
				slog.String("error", err.Error()),
			)
			continue
		}

		if err := upstream.SendAudio(data); err != nil {
			h.logger.Error("Failed to forward audio chunk",
				slog.String("session_id", session.ID),
				slog.String("error", err.Error()),
			)
			h.sendRelayError(client, session, "transcription backend unavailable")
			break
		}
		session.RecordChunk(len(data))
		h.metrics.RecordChunkRelayed(len(data))
	}

	cancel()
	upstream.Close()
	wg.Wait()
}

// relayTranscripts forwards upstream transcript messages to the client and
// aggregates final segments on the session.
func (h *HTTPServer) relayTranscripts(ctx context.Context, session *stream.Session, client *wsClient, upstream *transcription.Stream) {
	for msg, err := range upstream.Recv(ctx) {
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			h.logger.Error("Upstream stream failed",
				slog.String("session_id", session.ID),
				slog.String("error", err.Error()),
			)
			h.sendRelayError(client, session, "transcription backend failed")
			return
		}

		switch msg.Status {
		case protocol.StatusPartial:
			session.RecordPartial()
			h.metrics.RecordTranscriptEvent("partial")
		case protocol.StatusFinal:
			session.RecordFinal(msg.Transcript)
			h.metrics.RecordTranscriptEvent("final")
		case protocol.StatusError:
			h.metrics.RecordTranscriptEvent("error")
		}

		data, err := msg.Encode()
		if err != nil {
			h.logger.Error("Failed to encode transcript message",
				slog.String("session_id", session.ID),
				slog.String("error", err.Error()),
			)
			continue
		}
		if err := client.send(websocket.TextMessage, data); err != nil {
			return
		}
	}
}

// sendRelayError sends an ERROR transcript message to the client.
func (h *HTTPServer) sendRelayError(client *wsClient, session *stream.Session, detail string) {
	msg := &protocol.TranscriptMessage{Status: protocol.StatusError, Detail: detail}
	data, err := msg.Encode()
	if err != nil {
		return
	}
	if err := client.send(websocket.TextMessage, data); err != nil {
		h.logger.Warn("Failed to send relay error",
			slog.String("session_id", session.ID),
			slog.String("error", err.Error()),
		)
	}
}

// handleCartEvents implements GET /ws/cart. Each connection gets a cart
// snapshot followed by every cart event until it disconnects.
func (h *HTTPServer) handleCartEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("Websocket upgrade failed", slog.String("error", err.Error()))
		return
	}
	defer conn.Close()

	client := &wsClient{conn: conn}
	events, unsubscribe := h.cart.Subscribe()
	defer unsubscribe()

	h.logger.Info("Cart subscriber connected", slog.String("remote_addr", r.RemoteAddr))

	// Paint the current cart before streaming deltas.
	items, subtotal := h.cart.Snapshot()
	snapshot, err := json.Marshal(map[string]interface{}{
		"type":     "snapshot",
		"items":    items,
		"subtotal": subtotal,
	})
	if err == nil {
		if err := client.send(websocket.TextMessage, snapshot); err != nil {
			return
		}
	}

	// Reader goroutine detects client disconnect.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-done:
			h.logger.Info("Cart subscriber disconnected", slog.String("remote_addr", r.RemoteAddr))
			return
		case evt, ok := <-events:
			if !ok {
				return
			}
			data, err := json.Marshal(evt)
			if err != nil {
				continue
			}
			if err := client.send(websocket.TextMessage, data); err != nil {
				return
			}
		}
	}
}
