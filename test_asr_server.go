package main

import (
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// One binary audio message: 1024 samples of 16-bit PCM.
	audioChunkBytes = 2048

	// How many chunks of audio "recognize" one more word of the phrase.
	chunksPerWord = 4
)

// testPhrase is the canned recognition result. Partials grow word by word,
// then a final segment carries the whole phrase and recognition restarts.
var testPhrase = []string{"large", "iced", "golden", "eagle", "with", "oat", "milk"}

type transcriptMessage struct {
	Status     string `json:"status"`
	Transcript string `json:"transcript,omitempty"`
	Detail     string `json:"detail,omitempty"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

func streamHandler(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("❌ Upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	log.Printf("🎧 STREAM CONNECTED: %s", r.RemoteAddr)

	var (
		chunks     int
		audioBytes int
		words      int
	)
	started := time.Now()

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			break
		}
		if msgType != websocket.BinaryMessage {
			continue
		}

		chunks++
		audioBytes += len(data)

		if len(data) != audioChunkBytes {
			log.Printf("⚠️  Unexpected chunk size: %d bytes (want %d)", len(data), audioChunkBytes)
			sendMessage(conn, transcriptMessage{
				Status: "ERROR",
				Detail: "unexpected audio chunk size",
			})
			continue
		}

		if chunks%chunksPerWord != 0 {
			continue
		}

		words++
		if words < len(testPhrase) {
			partial := strings.Join(testPhrase[:words], " ")
			sendMessage(conn, transcriptMessage{
				Status:     "PARTIAL_SEGMENT",
				Transcript: partial,
			})
			log.Printf("📝 PARTIAL SENT: '%s'", partial)
		} else {
			full := strings.Join(testPhrase, " ")
			sendMessage(conn, transcriptMessage{
				Status:     "FINAL_SEGMENT",
				Transcript: full,
			})
			log.Printf("✅ FINAL SENT: '%s'", full)
			words = 0
		}
	}

	log.Printf("👋 STREAM CLOSED: %s (%d chunks, %d bytes, %s)",
		r.RemoteAddr, chunks, audioBytes, time.Since(started).Round(time.Millisecond))
	log.Println("---")
}

func sendMessage(conn *websocket.Conn, msg transcriptMessage) {
	if err := conn.WriteJSON(msg); err != nil {
		log.Printf("❌ Send failed: %v", err)
	}
}

func main() {
	http.HandleFunc("/ws", streamHandler)

	port := ":9000"
	log.Printf("🚀 Mock ASR Server starting on port %s", port)
	log.Printf("📡 Endpoint: ws://localhost%s/ws", port)
	log.Println("💡 Update your config to use: ws://localhost:9000/ws")

	if err := http.ListenAndServe(port, nil); err != nil {
		log.Fatal("Server failed to start:", err)
	}
}
