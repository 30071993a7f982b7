package stream

import (
	"errors"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/sbenstewart/dutch-bros-hackathon/internal/store"
	"github.com/sbenstewart/dutch-bros-hackathon/internal/transcription"
)

// createTestManagerConfig creates a test configuration for the manager
func createTestManagerConfig() ManagerConfig {
	return ManagerConfig{
		MaxSessions:     8,
		SessionTimeout:  60 * time.Second,
		CleanupInterval: 30 * time.Second,
		TranscriptionConfig: transcription.Config{
			URL:            "ws://localhost:9999/ws",
			APIKey:         "test-key",
			ConnectTimeout: 5 * time.Second,
			MaxRetries:     1,
		},
	}
}

func newTestManager(t *testing.T, config ManagerConfig) *Manager {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	results, err := store.Open(store.Options{InMemory: true, Logger: logger})
	if err != nil {
		t.Fatalf("Failed to open result store: %v", err)
	}
	t.Cleanup(func() { results.Close() })

	mgr, err := NewManager(logger, config, results)
	if err != nil {
		t.Fatalf("Failed to create manager: %v", err)
	}
	t.Cleanup(mgr.Stop)

	return mgr
}

func TestNewManager(t *testing.T) {
	config := createTestManagerConfig()
	mgr := newTestManager(t, config)

	if mgr.timeout != config.SessionTimeout {
		t.Errorf("Expected timeout %v, got %v", config.SessionTimeout, mgr.timeout)
	}

	if mgr.GetActiveSessionCount() != 0 {
		t.Errorf("Expected 0 active sessions, got %d", mgr.GetActiveSessionCount())
	}
}

func TestCreateSession(t *testing.T) {
	mgr := newTestManager(t, createTestManagerConfig())

	session, err := mgr.CreateSession()
	if err != nil {
		t.Fatalf("Failed to create session: %v", err)
	}

	if session.ID == "" {
		t.Error("Expected non-empty session ID")
	}

	if mgr.GetActiveSessionCount() != 1 {
		t.Errorf("Expected 1 active session, got %d", mgr.GetActiveSessionCount())
	}
}

func TestCreateSessionLimit(t *testing.T) {
	config := createTestManagerConfig()
	config.MaxSessions = 2
	mgr := newTestManager(t, config)

	for i := 0; i < 2; i++ {
		if _, err := mgr.CreateSession(); err != nil {
			t.Fatalf("Failed to create session %d: %v", i, err)
		}
	}

	_, err := mgr.CreateSession()
	if err == nil {
		t.Fatal("Expected error once session limit is reached")
	}
	if !errors.Is(err, ErrSessionLimit) {
		t.Errorf("Expected ErrSessionLimit, got %v", err)
	}

	if mgr.GetActiveSessionCount() != 2 {
		t.Errorf("Expected 2 active sessions, got %d", mgr.GetActiveSessionCount())
	}
}

func TestGetSession(t *testing.T) {
	mgr := newTestManager(t, createTestManagerConfig())

	originalSession, err := mgr.CreateSession()
	if err != nil {
		t.Fatalf("Failed to create session: %v", err)
	}

	// Test getting existing session
	session, exists := mgr.GetSession(originalSession.ID)
	if !exists {
		t.Error("Expected session to exist")
	}

	if session != originalSession {
		t.Error("Expected same session instance")
	}

	// Test getting non-existent session
	_, exists = mgr.GetSession("missing-session")
	if exists {
		t.Error("Expected session to not exist")
	}
}

func TestSessionTouch(t *testing.T) {
	mgr := newTestManager(t, createTestManagerConfig())

	session, err := mgr.CreateSession()
	if err != nil {
		t.Fatalf("Failed to create session: %v", err)
	}

	originalActivity := session.GetSessionInfo().LastActivity

	// Wait a bit to ensure time difference
	time.Sleep(10 * time.Millisecond)

	session.Touch()

	if !session.GetSessionInfo().LastActivity.After(originalActivity) {
		t.Error("Expected last activity to be updated")
	}
}

func TestRemoveSession(t *testing.T) {
	mgr := newTestManager(t, createTestManagerConfig())

	session, err := mgr.CreateSession()
	if err != nil {
		t.Fatalf("Failed to create session: %v", err)
	}

	if mgr.GetActiveSessionCount() != 1 {
		t.Errorf("Expected 1 active session, got %d", mgr.GetActiveSessionCount())
	}

	// Remove session
	removed := mgr.RemoveSession(session.ID)
	if !removed {
		t.Error("Expected session to be removed")
	}

	if mgr.GetActiveSessionCount() != 0 {
		t.Errorf("Expected 0 active sessions, got %d", mgr.GetActiveSessionCount())
	}

	// Try to remove non-existent session
	removed = mgr.RemoveSession("missing-session")
	if removed {
		t.Error("Expected non-existent session to not be removed")
	}
}

func TestGetAllSessions(t *testing.T) {
	mgr := newTestManager(t, createTestManagerConfig())

	first, err := mgr.CreateSession()
	if err != nil {
		t.Fatalf("Failed to create session 1: %v", err)
	}

	second, err := mgr.CreateSession()
	if err != nil {
		t.Fatalf("Failed to create session 2: %v", err)
	}

	sessions := mgr.GetAllSessions()
	if len(sessions) != 2 {
		t.Errorf("Expected 2 sessions, got %d", len(sessions))
	}

	seen := make(map[string]bool)
	for _, info := range sessions {
		seen[info.SessionID] = true
	}

	if !seen[first.ID] {
		t.Errorf("Expected session %s to be listed", first.ID)
	}
	if !seen[second.ID] {
		t.Errorf("Expected session %s to be listed", second.ID)
	}
}

func TestSessionConcurrency(t *testing.T) {
	config := createTestManagerConfig()
	config.MaxSessions = 0 // unlimited
	mgr := newTestManager(t, config)

	// Test concurrent session creation
	numGoroutines := 10
	numSessionsPerGoroutine := 10
	var wg sync.WaitGroup

	wg.Add(numGoroutines)
	for i := 0; i < numGoroutines; i++ {
		go func() {
			defer wg.Done()

			for j := 0; j < numSessionsPerGoroutine; j++ {
				session, err := mgr.CreateSession()
				if err != nil {
					t.Errorf("Failed to create session: %v", err)
					return
				}

				session.RecordChunk(2048)
				session.Touch()
			}
		}()
	}

	wg.Wait()

	expectedSessions := numGoroutines * numSessionsPerGoroutine
	if mgr.GetActiveSessionCount() != expectedSessions {
		t.Errorf("Expected %d active sessions, got %d", expectedSessions, mgr.GetActiveSessionCount())
	}
}

func TestCleanupExpiredSessions(t *testing.T) {
	// Use very short timeout for testing
	shortTimeout := 100 * time.Millisecond
	config := createTestManagerConfig()
	config.SessionTimeout = shortTimeout
	mgr := newTestManager(t, config)

	session, err := mgr.CreateSession()
	if err != nil {
		t.Fatalf("Failed to create session: %v", err)
	}

	if mgr.GetActiveSessionCount() != 1 {
		t.Errorf("Expected 1 active session, got %d", mgr.GetActiveSessionCount())
	}

	// Wait for session to expire and cleanup to run
	time.Sleep(shortTimeout + 50*time.Millisecond)
	mgr.cleanupExpiredSessions() // Manually trigger cleanup

	if mgr.GetActiveSessionCount() != 0 {
		t.Errorf("Expected 0 active sessions after cleanup, got %d", mgr.GetActiveSessionCount())
	}

	// Verify session is actually removed
	_, exists := mgr.GetSession(session.ID)
	if exists {
		t.Error("Expected session to be removed after cleanup")
	}

	// Test that updated activity prevents cleanup
	survivor, err := mgr.CreateSession()
	if err != nil {
		t.Fatalf("Failed to create session: %v", err)
	}

	// Update activity before timeout
	time.Sleep(shortTimeout / 2)
	survivor.Touch()
	time.Sleep(shortTimeout / 2)
	mgr.cleanupExpiredSessions()

	// Session should still exist
	if mgr.GetActiveSessionCount() != 1 {
		t.Errorf("Expected 1 active session after activity update, got %d", mgr.GetActiveSessionCount())
	}

	// Now let it expire
	time.Sleep(shortTimeout + 50*time.Millisecond)
	mgr.cleanupExpiredSessions()

	if mgr.GetActiveSessionCount() != 0 {
		t.Errorf("Expected 0 active sessions after final cleanup, got %d", mgr.GetActiveSessionCount())
	}
}

func TestCleanupClosesExpiredTransport(t *testing.T) {
	config := createTestManagerConfig()
	config.SessionTimeout = 50 * time.Millisecond
	mgr := newTestManager(t, config)

	expired, err := mgr.CreateSession()
	if err != nil {
		t.Fatalf("Failed to create session: %v", err)
	}
	closed := make(chan struct{})
	var once sync.Once
	expired.SetCloser(func() { once.Do(func() { close(closed) }) })

	active, err := mgr.CreateSession()
	if err != nil {
		t.Fatalf("Failed to create session: %v", err)
	}
	activeClosed := false
	active.SetCloser(func() { activeClosed = true })

	time.Sleep(100 * time.Millisecond)
	active.Touch()
	mgr.cleanupExpiredSessions()

	select {
	case <-closed:
	default:
		t.Error("Expected cleanup to close the expired session's transport")
	}
	if activeClosed {
		t.Error("Expected the active session's transport to stay open")
	}
	if mgr.GetActiveSessionCount() != 1 {
		t.Errorf("Expected 1 session to survive cleanup, got %d", mgr.GetActiveSessionCount())
	}
}

func TestSessionAccounting(t *testing.T) {
	mgr := newTestManager(t, createTestManagerConfig())

	session, err := mgr.CreateSession()
	if err != nil {
		t.Fatalf("Failed to create session: %v", err)
	}

	session.RecordChunk(2048)
	session.RecordChunk(2048)
	session.RecordInvalidChunk()
	session.RecordPartial()
	session.RecordFinal("large iced latte")
	session.RecordFinal("with oat milk")
	session.RecordFinal("   ")

	info := session.GetSessionInfo()

	if info.ChunksRelayed != 2 {
		t.Errorf("Expected 2 relayed chunks, got %d", info.ChunksRelayed)
	}
	if info.BytesRelayed != 4096 {
		t.Errorf("Expected 4096 relayed bytes, got %d", info.BytesRelayed)
	}
	if info.InvalidChunks != 1 {
		t.Errorf("Expected 1 invalid chunk, got %d", info.InvalidChunks)
	}
	if info.Partials != 1 {
		t.Errorf("Expected 1 partial, got %d", info.Partials)
	}
	if info.Finals != 2 {
		t.Errorf("Expected 2 finals, got %d", info.Finals)
	}
	if info.Duration <= 0 {
		t.Errorf("Expected positive duration, got %v", info.Duration)
	}

	if got := session.Transcript(); got != "large iced latte with oat milk" {
		t.Errorf("Unexpected transcript: %q", got)
	}
}

func TestStoreAndLoadResults(t *testing.T) {
	mgr := newTestManager(t, createTestManagerConfig())

	first, err := mgr.CreateSession()
	if err != nil {
		t.Fatalf("Failed to create session: %v", err)
	}
	first.RecordFinal("large iced latte")
	first.RecordFinal("with soft top")

	if err := mgr.StoreResult(first); err != nil {
		t.Fatalf("StoreResult failed: %v", err)
	}

	latest, err := mgr.LatestResult()
	if err != nil {
		t.Fatalf("LatestResult failed: %v", err)
	}
	if latest.SessionID != first.ID {
		t.Errorf("Expected session %s, got %s", first.ID, latest.SessionID)
	}
	if latest.Transcript != "large iced latte with soft top" {
		t.Errorf("Unexpected transcript: %q", latest.Transcript)
	}
	if latest.CapturedAt.IsZero() {
		t.Error("Expected CapturedAt to be set")
	}

	// A second finished session replaces the latest result
	second, err := mgr.CreateSession()
	if err != nil {
		t.Fatalf("Failed to create session: %v", err)
	}
	second.RecordFinal("medium caramelizer")

	if err := mgr.StoreResult(second); err != nil {
		t.Fatalf("StoreResult failed: %v", err)
	}

	latest, err = mgr.LatestResult()
	if err != nil {
		t.Fatalf("LatestResult failed: %v", err)
	}
	if latest.Transcript != "medium caramelizer" {
		t.Errorf("Expected latest transcript to be replaced, got %q", latest.Transcript)
	}

	// Per-session results survive
	stored, err := mgr.ResultFor(first.ID)
	if err != nil {
		t.Fatalf("ResultFor failed: %v", err)
	}
	if stored.Transcript != "large iced latte with soft top" {
		t.Errorf("Unexpected stored transcript: %q", stored.Transcript)
	}

	all, err := mgr.AllResults()
	if err != nil {
		t.Fatalf("AllResults failed: %v", err)
	}
	if len(all) != 2 {
		t.Errorf("Expected 2 stored results, got %d", len(all))
	}
}

func TestStoreResultSkipsEmptyTranscript(t *testing.T) {
	mgr := newTestManager(t, createTestManagerConfig())

	session, err := mgr.CreateSession()
	if err != nil {
		t.Fatalf("Failed to create session: %v", err)
	}

	if err := mgr.StoreResult(session); err != nil {
		t.Fatalf("StoreResult failed: %v", err)
	}

	if _, err := mgr.LatestResult(); !errors.Is(err, ErrNoResult) {
		t.Errorf("Expected ErrNoResult, got %v", err)
	}
}

func TestResultsBeforeAnySession(t *testing.T) {
	mgr := newTestManager(t, createTestManagerConfig())

	if _, err := mgr.LatestResult(); !errors.Is(err, ErrNoResult) {
		t.Errorf("Expected ErrNoResult for latest, got %v", err)
	}
	if _, err := mgr.ResultFor("missing-session"); !errors.Is(err, ErrNoResult) {
		t.Errorf("Expected ErrNoResult for missing session, got %v", err)
	}

	all, err := mgr.AllResults()
	if err != nil {
		t.Fatalf("AllResults failed: %v", err)
	}
	if len(all) != 0 {
		t.Errorf("Expected no stored results, got %d", len(all))
	}
}
