package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sbenstewart/dutch-bros-hackathon/internal/cart"
	"github.com/sbenstewart/dutch-bros-hackathon/internal/catalog"
	"github.com/sbenstewart/dutch-bros-hackathon/internal/config"
	"github.com/sbenstewart/dutch-bros-hackathon/internal/protocol"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestDriver(t *testing.T, paceMS int, confirmer Confirmer) (*Driver, *cart.Cart) {
	t.Helper()

	menu := `{"categories":[{"name":"Espresso","products":[
		{"chainproductid":101,"name":"Golden Eagle","cost":5.79},
		{"chainproductid":102,"name":"Caramelizer","cost":5.29},
		{"chainproductid":103,"name":"Latte","cost":5.49}]}]}`

	dir := t.TempDir()
	menuPath := filepath.Join(dir, "menu.json")
	if err := os.WriteFile(menuPath, []byte(menu), 0644); err != nil {
		t.Fatalf("Failed to write menu file: %v", err)
	}

	cat, err := catalog.Load(menuPath, filepath.Join(dir, "modifiers.json"))
	if err != nil {
		t.Fatalf("Failed to load catalog: %v", err)
	}

	c := cart.New(testLogger())
	cfg := &config.IngestConfig{PaceMS: paceMS}
	return New(cfg, catalog.NewMatcher(cat), c, confirmer, testLogger()), c
}

func drainEvents(events <-chan cart.Event) []cart.Event {
	var out []cart.Event
	for {
		select {
		case evt := <-events:
			out = append(out, evt)
		default:
			return out
		}
	}
}

func TestIngestOrderAndSkip(t *testing.T) {
	driver, c := newTestDriver(t, 1, nil)

	payload := &protocol.IngestPayload{Items: []protocol.IngestItem{
		{ProductHint: "latte"},
		{ProductHint: "quantum smoothie"},
		{ProductHint: "golden eagle"},
	}}

	result, err := driver.Ingest(context.Background(), payload)
	if err != nil {
		t.Fatalf("Failed to ingest payload: %v", err)
	}

	if result.Added != 2 {
		t.Errorf("Expected 2 added lines, got %d", result.Added)
	}
	if len(result.Skipped) != 1 || result.Skipped[0] != "quantum smoothie" {
		t.Errorf("Expected skipped hint 'quantum smoothie', got %v", result.Skipped)
	}

	items := c.Items()
	if len(items) != 2 {
		t.Fatalf("Expected 2 cart lines, got %d", len(items))
	}
	if items[0].Name != "Latte" || items[1].Name != "Golden Eagle" {
		t.Errorf("Expected hint order preserved, got [%s, %s]", items[0].Name, items[1].Name)
	}
}

func TestIngestMergesRepeatedItems(t *testing.T) {
	driver, c := newTestDriver(t, 1, nil)

	payload := &protocol.IngestPayload{Items: []protocol.IngestItem{
		{ProductHint: "latte"},
		{ProductHint: "latte"},
	}}

	result, err := driver.Ingest(context.Background(), payload)
	if err != nil {
		t.Fatalf("Failed to ingest payload: %v", err)
	}

	if result.Added != 1 || result.Merged != 1 {
		t.Errorf("Expected 1 added and 1 merged, got %d and %d", result.Added, result.Merged)
	}
	if len(result.LineIDs) != 2 || result.LineIDs[0] != result.LineIDs[1] {
		t.Errorf("Expected both commits to land on one line, got %v", result.LineIDs)
	}

	items := c.Items()
	if len(items) != 1 {
		t.Fatalf("Expected 1 cart line, got %d", len(items))
	}
	if items[0].Quantity != 2 {
		t.Errorf("Expected quantity 2, got %d", items[0].Quantity)
	}
}

func TestIngestMalformedPayload(t *testing.T) {
	driver, c := newTestDriver(t, 1, nil)
	events, cancel := c.Subscribe()
	defer cancel()

	tests := []struct {
		name    string
		payload *protocol.IngestPayload
	}{
		{"nil payload", nil},
		{"empty items", &protocol.IngestPayload{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := driver.Ingest(context.Background(), tt.payload)
			if !errors.Is(err, protocol.ErrMalformedPayload) {
				t.Errorf("Expected ErrMalformedPayload, got %v", err)
			}
		})
	}

	if len(c.Items()) != 0 {
		t.Errorf("Expected untouched cart, got %d lines", len(c.Items()))
	}
	if evts := drainEvents(events); len(evts) != 0 {
		t.Errorf("Expected no cart events for malformed payloads, got %d", len(evts))
	}
}

func TestIngestFocusesCartOnce(t *testing.T) {
	driver, c := newTestDriver(t, 1, nil)
	events, cancel := c.Subscribe()
	defer cancel()

	payload := &protocol.IngestPayload{Items: []protocol.IngestItem{{ProductHint: "latte"}}}
	if _, err := driver.Ingest(context.Background(), payload); err != nil {
		t.Fatalf("Failed to ingest payload: %v", err)
	}
	if _, err := driver.Ingest(context.Background(), payload); err != nil {
		t.Fatalf("Failed to ingest payload: %v", err)
	}

	focus := 0
	for _, evt := range drainEvents(events) {
		if evt.Type == cart.EventFocus {
			focus++
		}
	}
	if focus != 1 {
		t.Errorf("Expected exactly 1 focus event, got %d", focus)
	}
}

func TestIngestConfirmerDeclines(t *testing.T) {
	decline := ConfirmerFunc(func(_ context.Context, item *catalog.ResolvedItem) (bool, error) {
		return item.Product.Name != "Caramelizer", nil
	})
	driver, c := newTestDriver(t, 1, decline)

	payload := &protocol.IngestPayload{Items: []protocol.IngestItem{
		{ProductHint: "latte"},
		{ProductHint: "caramelizer"},
	}}

	result, err := driver.Ingest(context.Background(), payload)
	if err != nil {
		t.Fatalf("Failed to ingest payload: %v", err)
	}

	if result.Added != 1 {
		t.Errorf("Expected 1 added line, got %d", result.Added)
	}
	if len(result.Skipped) != 1 || result.Skipped[0] != "caramelizer" {
		t.Errorf("Expected declined hint in skipped list, got %v", result.Skipped)
	}
	if len(c.Items()) != 1 {
		t.Errorf("Expected 1 cart line, got %d", len(c.Items()))
	}
}

func TestIngestConfirmerError(t *testing.T) {
	calls := 0
	failing := ConfirmerFunc(func(context.Context, *catalog.ResolvedItem) (bool, error) {
		calls++
		if calls > 1 {
			return false, fmt.Errorf("confirmation channel closed")
		}
		return true, nil
	})
	driver, c := newTestDriver(t, 1, failing)

	payload := &protocol.IngestPayload{Items: []protocol.IngestItem{
		{ProductHint: "latte"},
		{ProductHint: "golden eagle"},
	}}

	result, err := driver.Ingest(context.Background(), payload)
	if err == nil {
		t.Fatal("Expected confirmation error, got nil")
	}
	if result.Added != 1 {
		t.Errorf("Expected partial progress of 1 added line, got %d", result.Added)
	}
	if len(c.Items()) != 1 {
		t.Errorf("Expected committed line to survive the error, got %d lines", len(c.Items()))
	}
}

func TestIngestContextEndsPacing(t *testing.T) {
	driver, c := newTestDriver(t, 50, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	payload := &protocol.IngestPayload{Items: []protocol.IngestItem{
		{ProductHint: "latte"},
		{ProductHint: "golden eagle"},
	}}

	result, err := driver.Ingest(ctx, payload)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Expected context.Canceled, got %v", err)
	}
	if result.Added != 1 {
		t.Errorf("Expected 1 line before cancellation, got %d", result.Added)
	}
	if len(c.Items()) != 1 {
		t.Errorf("Expected merged line to be kept, got %d lines", len(c.Items()))
	}
}

func TestIngestPacesBetweenItems(t *testing.T) {
	driver, _ := newTestDriver(t, 30, nil)

	payload := &protocol.IngestPayload{Items: []protocol.IngestItem{
		{ProductHint: "latte"},
		{ProductHint: "caramelizer"},
		{ProductHint: "golden eagle"},
	}}

	start := time.Now()
	if _, err := driver.Ingest(context.Background(), payload); err != nil {
		t.Fatalf("Failed to ingest payload: %v", err)
	}
	elapsed := time.Since(start)

	// Two gaps between three items.
	if elapsed < 60*time.Millisecond {
		t.Errorf("Expected at least 60ms of pacing, got %v", elapsed)
	}
}

func TestUnsetPaceFallsBackToDefault(t *testing.T) {
	driver, _ := newTestDriver(t, 0, nil)

	if driver.pace != defaultPace {
		t.Errorf("Expected default pace %v when pace_ms is unset, got %v", defaultPace, driver.pace)
	}
}

func TestConfiguredPaceOverridesDefault(t *testing.T) {
	driver, _ := newTestDriver(t, 250, nil)

	if driver.pace != 250*time.Millisecond {
		t.Errorf("Expected configured pace 250ms, got %v", driver.pace)
	}
}

func TestIngestQuantityHint(t *testing.T) {
	driver, c := newTestDriver(t, 1, nil)

	payload := &protocol.IngestPayload{Items: []protocol.IngestItem{
		{ProductHint: "latte", Quantity: 3},
	}}

	if _, err := driver.Ingest(context.Background(), payload); err != nil {
		t.Fatalf("Failed to ingest payload: %v", err)
	}

	items := c.Items()
	if len(items) != 1 {
		t.Fatalf("Expected 1 cart line, got %d", len(items))
	}
	if items[0].Quantity != 3 {
		t.Errorf("Expected quantity 3, got %d", items[0].Quantity)
	}
}
