package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sbenstewart/dutch-bros-hackathon/internal/cart"
	"github.com/sbenstewart/dutch-bros-hackathon/internal/catalog"
	"github.com/sbenstewart/dutch-bros-hackathon/internal/config"
	"github.com/sbenstewart/dutch-bros-hackathon/internal/ingest"
	"github.com/sbenstewart/dutch-bros-hackathon/internal/metrics"
	"github.com/sbenstewart/dutch-bros-hackathon/internal/stream"
)

// HTTPServer provides the REST API and websocket endpoints
type HTTPServer struct {
	server    *http.Server
	logger    *slog.Logger
	config    *config.Config
	catalog   *catalog.Catalog
	cart      *cart.Cart
	driver    *ingest.Driver
	streamMgr *stream.Manager
	metrics   *metrics.Metrics
	upgrader  websocket.Upgrader

	// Server state
	startTime time.Time
}

// NewHTTPServer creates the HTTP server with all routes wired
func NewHTTPServer(cfg *config.Config, logger *slog.Logger, cat *catalog.Catalog,
	crt *cart.Cart, driver *ingest.Driver, streamMgr *stream.Manager, m *metrics.Metrics) *HTTPServer {

	h := &HTTPServer{
		logger:    logger,
		config:    cfg,
		catalog:   cat,
		cart:      crt,
		driver:    driver,
		streamMgr: streamMgr,
		metrics:   m,
		startTime: time.Now(),
	}

	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     h.checkOrigin,
	}

	// No blanket read/write timeouts: the websocket relays are long-lived.
	h.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Address, cfg.Server.Port),
		Handler:           h.setupRoutes(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	return h
}

// setupRoutes configures the router and middleware stack
func (h *HTTPServer) setupRoutes() chi.Router {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(h.instrument)
	r.Use(chimiddleware.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   h.config.Server.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/", h.handleRoot)
	r.Get("/health", h.handleHealth)
	r.Get("/streams", h.handleStreams)

	// Prometheus metrics endpoint
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		// Menu endpoints
		r.Get("/menu", h.handleMenu)
		r.Get("/menu/modifiers", h.handleModifiers)

		// Order ingestion
		r.Post("/orders/ingest", h.handleIngest)

		// Cart endpoints
		r.Get("/cart", h.handleCart)
		r.Post("/cart/items/{itemID}/increment", h.handleIncrementItem)
		r.Post("/cart/items/{itemID}/decrement", h.handleDecrementItem)
		r.Delete("/cart/items/{itemID}", h.handleRemoveItem)
		r.Delete("/cart", h.handleClearCart)

		// Transcription results
		r.Get("/transcription/result", h.handleLatestResult)
		r.Get("/transcription/results", h.handleAllResults)
	})

	// Websocket endpoints
	r.Get("/ws/transcribe-live", h.handleTranscribeLive)
	r.Get("/ws/cart", h.handleCartEvents)

	return r
}

// instrument logs each request and records HTTP metrics once the handler
// returns. Websocket upgrades are skipped: wrapping the response writer
// would hide the Hijacker and their connections outlive the request scope.
func (h *HTTPServer) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/ws/") {
			next.ServeHTTP(w, r)
			return
		}

		start := time.Now()

		// Create a response writer wrapper to capture status code
		ww := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(ww, r)

		// The route pattern is only known after routing has run.
		endpoint := chi.RouteContext(r.Context()).RoutePattern()
		if endpoint == "" {
			endpoint = r.URL.Path
		}

		duration := time.Since(start)
		h.metrics.RecordHTTPRequest(r.Method, endpoint, strconv.Itoa(ww.statusCode), duration.Seconds())

		h.logger.Info("HTTP request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", ww.statusCode),
			slog.Int64("duration_ms", duration.Milliseconds()),
			slog.String("remote_addr", r.RemoteAddr),
		)
	})
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// checkOrigin validates the websocket handshake origin against the
// configured allow list. Non-browser clients send no origin and pass.
func (h *HTTPServer) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range h.config.Server.AllowedOrigins {
		if allowed == "*" || strings.EqualFold(allowed, origin) {
			return true
		}
	}
	return false
}

// Start starts the HTTP server
func (h *HTTPServer) Start() error {
	h.logger.Info("Starting HTTP server",
		slog.String("address", h.server.Addr),
	)

	go func() {
		if err := h.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			h.logger.Error("HTTP server error", slog.String("error", err.Error()))
		}
	}()

	return nil
}

// Stop gracefully stops the HTTP server
func (h *HTTPServer) Stop(ctx context.Context) error {
	h.logger.Info("Stopping HTTP server...")

	return h.server.Shutdown(ctx)
}
