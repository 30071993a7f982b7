package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/sbenstewart/dutch-bros-hackathon/internal/cart"
	"github.com/sbenstewart/dutch-bros-hackathon/internal/protocol"
	"github.com/sbenstewart/dutch-bros-hackathon/internal/stream"
)

// writeJSON writes a JSON response
func writeJSON(w http.ResponseWriter, status int, data interface{}, logger *slog.Logger) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Error("Failed to encode JSON response", slog.String("error", err.Error()))
	}
}

// writeError writes an error response in JSON format
func writeError(w http.ResponseWriter, status int, message string, logger *slog.Logger) {
	writeJSON(w, status, map[string]string{"error": message}, logger)
}

// handleRoot implements the / endpoint with API documentation
func (h *HTTPServer) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		writeError(w, http.StatusNotFound, "Not found", h.logger)
		return
	}

	apiDoc := map[string]interface{}{
		"service": "voice-order-service",
		"version": "1.0.0",
		"endpoints": map[string]interface{}{
			"GET /":                            "API documentation",
			"GET /health":                      "Service health check",
			"GET /streams":                     "List active relay sessions",
			"GET /metrics":                     "Prometheus metrics",
			"GET /api/menu":                    "Menu categories and products",
			"GET /api/menu/modifiers":          "Modifier chains",
			"POST /api/orders/ingest":          "Ingest a recognized order payload",
			"GET /api/cart":                    "Current cart contents",
			"POST /api/cart/items/{id}/increment": "Increase line quantity",
			"POST /api/cart/items/{id}/decrement": "Decrease line quantity",
			"DELETE /api/cart/items/{id}":      "Remove a cart line",
			"DELETE /api/cart":                 "Clear the cart",
			"GET /api/transcription/result":    "Latest stored transcript",
			"GET /api/transcription/results":   "All stored transcripts",
			"GET /ws/transcribe-live":          "Live audio relay websocket",
			"GET /ws/cart":                     "Cart event websocket",
		},
		// Capture contract for browser clients feeding /ws/transcribe-live.
		"audio": map[string]interface{}{
			"target_sample_rate": h.config.Audio.TargetSampleRate,
			"channels":           h.config.Audio.Channels,
			"bit_depth":          h.config.Audio.BitDepth,
			"chunk_bytes":        protocol.AudioChunkBytes,
		},
		"timestamp": time.Now().UTC(),
	}

	writeJSON(w, http.StatusOK, apiDoc, h.logger)
}

// handleHealth implements the /health endpoint
func (h *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	uptime := time.Since(h.startTime)
	transcriptionStats := h.streamMgr.GetTranscriptionStats()
	items, subtotal := h.cart.Snapshot()

	health := map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
		"uptime":    uptime.String(),
		"service": map[string]interface{}{
			"name":    "voice-order-service",
			"version": "1.0.0",
		},
		"components": map[string]interface{}{
			"relay": map[string]interface{}{
				"status":          "running",
				"active_sessions": h.streamMgr.GetActiveSessionCount(),
			},
			"cart": map[string]interface{}{
				"status":   "running",
				"lines":    len(items),
				"subtotal": subtotal,
			},
			"transcription": map[string]interface{}{
				"status":       "running",
				"total_dials":  transcriptionStats.TotalDials,
				"success_rate": transcriptionStats.SuccessRate,
			},
		},
	}

	writeJSON(w, http.StatusOK, health, h.logger)
}

// handleStreams implements the /streams endpoint
func (h *HTTPServer) handleStreams(w http.ResponseWriter, r *http.Request) {
	sessions := h.streamMgr.GetAllSessions()

	response := map[string]interface{}{
		"total_sessions": len(sessions),
		"timestamp":      time.Now().UTC(),
		"sessions":       sessions,
	}

	writeJSON(w, http.StatusOK, response, h.logger)
}

// handleMenu implements GET /api/menu
func (h *HTTPServer) handleMenu(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"categories": h.catalog.Categories(),
	}, h.logger)
}

// handleModifiers implements GET /api/menu/modifiers
func (h *HTTPServer) handleModifiers(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"default_chain": h.catalog.DefaultChainID(),
		"chains":        h.catalog.Chains(),
	}, h.logger)
}

// handleIngest implements POST /api/orders/ingest
func (h *HTTPServer) handleIngest(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Failed to read request body", h.logger)
		return
	}

	payload, err := protocol.ParseIngestPayload(body)
	if err != nil {
		h.logger.Warn("Rejected ingestion payload", slog.String("error", err.Error()))
		writeError(w, http.StatusBadRequest, "Malformed ingestion payload", h.logger)
		return
	}

	// The batch runs to completion even if the caller goes away: the cart
	// drives the kiosk display, not the POSTing client.
	result, err := h.driver.Ingest(context.Background(), payload)
	if result != nil {
		h.metrics.RecordIngestBatch(result.Added, result.Merged, len(result.Skipped))
		h.syncCartGauge()
	}
	if err != nil {
		if errors.Is(err, protocol.ErrMalformedPayload) {
			writeError(w, http.StatusBadRequest, "Malformed ingestion payload", h.logger)
			return
		}
		h.logger.Error("Ingestion failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "Ingestion failed", h.logger)
		return
	}

	h.logger.Info("Order payload ingested",
		slog.Int("added", result.Added),
		slog.Int("merged", result.Merged),
		slog.Int("skipped", len(result.Skipped)),
	)

	writeJSON(w, http.StatusOK, result, h.logger)
}

// handleCart implements GET /api/cart
func (h *HTTPServer) handleCart(w http.ResponseWriter, r *http.Request) {
	items, subtotal := h.cart.Snapshot()

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"items":        items,
		"subtotal":     subtotal,
		"last_updated": h.cart.LastTouched(),
	}, h.logger)
}

// handleIncrementItem implements POST /api/cart/items/{itemID}/increment
func (h *HTTPServer) handleIncrementItem(w http.ResponseWriter, r *http.Request) {
	itemID := chi.URLParam(r, "itemID")

	item, err := h.cart.Increment(itemID)
	if err != nil {
		if errors.Is(err, cart.ErrItemNotFound) {
			writeError(w, http.StatusNotFound, "Cart item not found", h.logger)
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to update cart item", h.logger)
		return
	}

	writeJSON(w, http.StatusOK, item, h.logger)
}

// handleDecrementItem implements POST /api/cart/items/{itemID}/decrement
func (h *HTTPServer) handleDecrementItem(w http.ResponseWriter, r *http.Request) {
	itemID := chi.URLParam(r, "itemID")

	item, err := h.cart.Decrement(itemID)
	if err != nil {
		if errors.Is(err, cart.ErrItemNotFound) {
			writeError(w, http.StatusNotFound, "Cart item not found", h.logger)
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to update cart item", h.logger)
		return
	}

	writeJSON(w, http.StatusOK, item, h.logger)
}

// handleRemoveItem implements DELETE /api/cart/items/{itemID}
func (h *HTTPServer) handleRemoveItem(w http.ResponseWriter, r *http.Request) {
	itemID := chi.URLParam(r, "itemID")

	if err := h.cart.Remove(itemID); err != nil {
		if errors.Is(err, cart.ErrItemNotFound) {
			writeError(w, http.StatusNotFound, "Cart item not found", h.logger)
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to remove cart item", h.logger)
		return
	}

	h.syncCartGauge()
	writeJSON(w, http.StatusOK, map[string]string{"status": "removed"}, h.logger)
}

// handleClearCart implements DELETE /api/cart
func (h *HTTPServer) handleClearCart(w http.ResponseWriter, r *http.Request) {
	h.cart.Clear()
	h.syncCartGauge()

	writeJSON(w, http.StatusOK, map[string]string{"status": "cleared"}, h.logger)
}

// handleLatestResult implements GET /api/transcription/result
func (h *HTTPServer) handleLatestResult(w http.ResponseWriter, r *http.Request) {
	result, err := h.streamMgr.LatestResult()
	if err != nil {
		if errors.Is(err, stream.ErrNoResult) {
			writeJSON(w, http.StatusOK, map[string]string{"status": "NO_DATA"}, h.logger)
			return
		}
		h.logger.Error("Failed to load latest result", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "Failed to load result", h.logger)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":      "COMPLETED",
		"session_id":  result.SessionID,
		"transcript":  result.Transcript,
		"captured_at": result.CapturedAt,
	}, h.logger)
}

// handleAllResults implements GET /api/transcription/results
func (h *HTTPServer) handleAllResults(w http.ResponseWriter, r *http.Request) {
	results, err := h.streamMgr.AllResults()
	if err != nil {
		h.logger.Error("Failed to list results", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "Failed to list results", h.logger)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"total":   len(results),
		"results": results,
	}, h.logger)
}

// syncCartGauge refreshes the cart line gauge after a mutation.
func (h *HTTPServer) syncCartGauge() {
	items, _ := h.cart.Snapshot()
	h.metrics.SetCartLines(len(items))
}
