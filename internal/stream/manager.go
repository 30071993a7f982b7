package stream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sbenstewart/dutch-bros-hackathon/internal/store"
	"github.com/sbenstewart/dutch-bros-hackathon/internal/transcription"
)

// ErrNoResult indicates that no transcription result has been recorded yet.
var ErrNoResult = errors.New("no transcription result recorded")

// ErrSessionLimit indicates that the relay session limit has been reached.
var ErrSessionLimit = errors.New("session limit reached")

// Result store keys. Per-session results live under resultKeyPrefix and the
// most recent transcript is duplicated under latestResultKey.
const (
	resultKeyPrefix = "result:"
	latestResultKey = "latest"
)

// Session represents one live audio relay session between a client
// websocket and the upstream transcription service.
type Session struct {
	ID           string
	StartTime    time.Time
	LastActivity time.Time

	// Relay accounting
	chunksRelayed uint64
	bytesRelayed  uint64
	invalidChunks uint64
	partials      uint64

	// Final transcript segments in arrival order
	finals []string

	// Transport teardown invoked when the cleanup routine expires the
	// session.
	closer func()

	mu sync.RWMutex
}

// SetCloser registers the hook that tears down the session's transport
// when the manager expires it.
func (s *Session) SetCloser(fn func()) {
	s.mu.Lock()
	s.closer = fn
	s.mu.Unlock()
}

// closeTransport runs the registered teardown hook, if any.
func (s *Session) closeTransport() {
	s.mu.RLock()
	fn := s.closer
	s.mu.RUnlock()
	if fn != nil {
		fn()
	}
}

// Touch updates the last activity time for the session.
func (s *Session) Touch() {
	s.mu.Lock()
	s.LastActivity = time.Now()
	s.mu.Unlock()
}

// RecordChunk counts one relayed audio chunk.
func (s *Session) RecordChunk(sizeBytes int) {
	s.mu.Lock()
	s.chunksRelayed++
	s.bytesRelayed += uint64(sizeBytes)
	s.LastActivity = time.Now()
	s.mu.Unlock()
}

// RecordInvalidChunk counts one rejected binary frame.
func (s *Session) RecordInvalidChunk() {
	s.mu.Lock()
	s.invalidChunks++
	s.LastActivity = time.Now()
	s.mu.Unlock()
}

// RecordPartial counts one partial transcript update.
func (s *Session) RecordPartial() {
	s.mu.Lock()
	s.partials++
	s.LastActivity = time.Now()
	s.mu.Unlock()
}

// RecordFinal appends one final transcript segment.
func (s *Session) RecordFinal(text string) {
	s.mu.Lock()
	if strings.TrimSpace(text) != "" {
		s.finals = append(s.finals, text)
	}
	s.LastActivity = time.Now()
	s.mu.Unlock()
}

// Transcript returns the final segments joined into one utterance.
func (s *Session) Transcript() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return strings.Join(s.finals, " ")
}

// GetSessionInfo returns a snapshot of the session for monitoring APIs.
func (s *Session) GetSessionInfo() SessionInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return SessionInfo{
		SessionID:     s.ID,
		StartTime:     s.StartTime,
		LastActivity:  s.LastActivity,
		Duration:      time.Since(s.StartTime),
		ChunksRelayed: s.chunksRelayed,
		BytesRelayed:  s.bytesRelayed,
		InvalidChunks: s.invalidChunks,
		Partials:      s.partials,
		Finals:        uint64(len(s.finals)),
	}
}

// SessionInfo represents relay session information for monitoring and APIs
type SessionInfo struct {
	SessionID     string        `json:"session_id"`
	StartTime     time.Time     `json:"start_time"`
	LastActivity  time.Time     `json:"last_activity"`
	Duration      time.Duration `json:"duration"`
	ChunksRelayed uint64        `json:"chunks_relayed"`
	BytesRelayed  uint64        `json:"bytes_relayed"`
	InvalidChunks uint64        `json:"invalid_chunks"`
	Partials      uint64        `json:"partials"`
	Finals        uint64        `json:"finals"`
}

// StoredResult is one persisted transcription outcome.
type StoredResult struct {
	SessionID  string    `json:"session_id"`
	Transcript string    `json:"transcript"`
	CapturedAt time.Time `json:"captured_at"`
}

// ManagerConfig contains configuration for the stream manager
type ManagerConfig struct {
	MaxSessions         int
	SessionTimeout      time.Duration
	CleanupInterval     time.Duration
	TranscriptionConfig transcription.Config
}

// Manager tracks all active relay sessions, owns the upstream transcription
// client and persists finished transcripts to the result store.
type Manager struct {
	sessions map[string]*Session
	mu       sync.RWMutex
	logger   *slog.Logger

	maxSessions     int
	timeout         time.Duration
	cleanupInterval time.Duration

	// Transcription client
	transcriptionClient *transcription.Client

	// Result persistence
	results *store.Store

	// Cleanup management
	ctx     context.Context
	cancel  context.CancelFunc
	cleanup chan struct{}
}

// NewManager creates a new stream manager
func NewManager(logger *slog.Logger, config ManagerConfig, results *store.Store) (*Manager, error) {
	ctx, cancel := context.WithCancel(context.Background())

	transcriptionClient, err := transcription.NewClient(config.TranscriptionConfig)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to create transcription client: %w", err)
	}

	interval := config.CleanupInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}

	mgr := &Manager{
		sessions:            make(map[string]*Session),
		logger:              logger,
		maxSessions:         config.MaxSessions,
		timeout:             config.SessionTimeout,
		cleanupInterval:     interval,
		transcriptionClient: transcriptionClient,
		results:             results,
		ctx:                 ctx,
		cancel:              cancel,
		cleanup:             make(chan struct{}),
	}

	// Start cleanup goroutine
	go mgr.startCleanupRoutine()

	return mgr, nil
}

// CreateSession registers a new relay session. It fails with ErrSessionLimit
// once the configured maximum is reached.
func (m *Manager) CreateSession() (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.maxSessions > 0 && len(m.sessions) >= m.maxSessions {
		return nil, fmt.Errorf("%w (%d)", ErrSessionLimit, m.maxSessions)
	}

	now := time.Now()
	session := &Session{
		ID:           uuid.New().String(),
		StartTime:    now,
		LastActivity: now,
	}
	m.sessions[session.ID] = session

	m.logger.Info("Created relay session",
		slog.String("session_id", session.ID),
		slog.Int("active_sessions", len(m.sessions)),
	)

	return session, nil
}

// GetSession retrieves an existing relay session
func (m *Manager) GetSession(sessionID string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	session, exists := m.sessions[sessionID]
	return session, exists
}

// GetActiveSessionCount returns the number of currently active sessions
func (m *Manager) GetActiveSessionCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// GetAllSessions returns a snapshot of all active sessions (for monitoring)
func (m *Manager) GetAllSessions() []SessionInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()

	sessions := make([]SessionInfo, 0, len(m.sessions))
	for _, session := range m.sessions {
		sessions = append(sessions, session.GetSessionInfo())
	}

	return sessions
}

// DialUpstream opens a transcript stream to the upstream service.
func (m *Manager) DialUpstream(ctx context.Context) (*transcription.Stream, error) {
	return m.transcriptionClient.Dial(ctx)
}

// StoreResult persists the session transcript. Sessions that produced no
// final segments are skipped so an idle connection cannot clobber the
// latest result.
func (m *Manager) StoreResult(session *Session) error {
	transcript := session.Transcript()
	if transcript == "" {
		return nil
	}

	result := StoredResult{
		SessionID:  session.ID,
		Transcript: transcript,
		CapturedAt: time.Now(),
	}
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to encode transcription result: %w", err)
	}

	if err := m.results.Set(resultKeyPrefix+session.ID, data); err != nil {
		return fmt.Errorf("failed to store transcription result: %w", err)
	}
	if err := m.results.Set(latestResultKey, data); err != nil {
		return fmt.Errorf("failed to store latest result: %w", err)
	}

	m.logger.Info("Stored transcription result",
		slog.String("session_id", session.ID),
		slog.Int("transcript_chars", len(transcript)),
	)

	return nil
}

// LatestResult returns the most recently stored transcript. It fails with
// ErrNoResult when nothing has been recorded yet.
func (m *Manager) LatestResult() (*StoredResult, error) {
	data, err := m.results.Get(latestResultKey)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrNoResult
		}
		return nil, fmt.Errorf("failed to load latest result: %w", err)
	}

	var result StoredResult
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("failed to decode stored result: %w", err)
	}
	return &result, nil
}

// ResultFor returns the stored transcript for one session.
func (m *Manager) ResultFor(sessionID string) (*StoredResult, error) {
	data, err := m.results.Get(resultKeyPrefix + sessionID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrNoResult
		}
		return nil, fmt.Errorf("failed to load result: %w", err)
	}

	var result StoredResult
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("failed to decode stored result: %w", err)
	}
	return &result, nil
}

// AllResults returns every stored per-session transcript in key order.
func (m *Manager) AllResults() ([]*StoredResult, error) {
	values, err := m.results.List(resultKeyPrefix)
	if err != nil {
		return nil, fmt.Errorf("failed to list results: %w", err)
	}

	results := make([]*StoredResult, 0, len(values))
	for _, data := range values {
		var result StoredResult
		if err := json.Unmarshal(data, &result); err != nil {
			return nil, fmt.Errorf("failed to decode stored result: %w", err)
		}
		results = append(results, &result)
	}
	return results, nil
}

// RemoveSession removes a relay session
func (m *Manager) RemoveSession(sessionID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	session, exists := m.sessions[sessionID]
	if !exists {
		return false
	}

	info := session.GetSessionInfo()
	m.logger.Info("Removing relay session",
		slog.String("session_id", sessionID),
		slog.Duration("duration", info.Duration),
		slog.Uint64("chunks_relayed", info.ChunksRelayed),
		slog.Uint64("invalid_chunks", info.InvalidChunks),
		slog.Uint64("partials", info.Partials),
		slog.Uint64("finals", info.Finals),
	)

	delete(m.sessions, sessionID)
	return true
}

// Stop gracefully stops the stream manager
func (m *Manager) Stop() {
	m.logger.Info("Stopping stream manager...")

	// Cancel context to stop cleanup routine
	m.cancel()

	// Wait for cleanup routine to finish
	<-m.cleanup

	// Log final statistics
	activeCount := m.GetActiveSessionCount()
	transcriptionStats := m.transcriptionClient.GetStats()

	m.logger.Info("Stream manager stopped",
		slog.Int("remaining_sessions", activeCount),
		slog.Uint64("total_dials", transcriptionStats.TotalDials),
		slog.Uint64("success_dials", transcriptionStats.SuccessDials),
		slog.Float64("dial_success_rate", transcriptionStats.SuccessRate),
	)
}

// GetTranscriptionStats returns current transcription client statistics
func (m *Manager) GetTranscriptionStats() transcription.ClientStats {
	return m.transcriptionClient.GetStats()
}

// startCleanupRoutine runs in a separate goroutine to clean up expired sessions
func (m *Manager) startCleanupRoutine() {
	defer close(m.cleanup)

	ticker := time.NewTicker(m.cleanupInterval)
	defer ticker.Stop()

	m.logger.Info("Stream cleanup routine started",
		slog.Duration("timeout", m.timeout),
		slog.Duration("check_interval", m.cleanupInterval),
	)

	for {
		select {
		case <-m.ctx.Done():
			m.logger.Info("Stream cleanup routine stopping")
			return

		case <-ticker.C:
			m.cleanupExpiredSessions()
		}
	}
}

// cleanupExpiredSessions closes and removes sessions that have been
// inactive for too long. Closing the transport kicks the relay handler
// into its normal disconnect path.
func (m *Manager) cleanupExpiredSessions() {
	now := time.Now()
	expiredSessions := make([]string, 0)

	// Find expired sessions
	m.mu.RLock()
	for sessionID, session := range m.sessions {
		session.mu.RLock()
		lastActivity := session.LastActivity
		session.mu.RUnlock()

		if now.Sub(lastActivity) > m.timeout {
			expiredSessions = append(expiredSessions, sessionID)
		}
	}
	m.mu.RUnlock()

	// Close and remove expired sessions
	if len(expiredSessions) > 0 {
		m.logger.Info("Cleaning up expired sessions",
			slog.Int("expired_count", len(expiredSessions)),
		)

		for _, sessionID := range expiredSessions {
			if session, exists := m.GetSession(sessionID); exists {
				session.closeTransport()
			}
			m.RemoveSession(sessionID)
		}
	}
}
