package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/sbenstewart/dutch-bros-hackathon/internal/cart"
	"github.com/sbenstewart/dutch-bros-hackathon/internal/catalog"
	"github.com/sbenstewart/dutch-bros-hackathon/internal/config"
	"github.com/sbenstewart/dutch-bros-hackathon/internal/protocol"
)

// Confirmer approves a resolved item before it is committed. It may
// edit the resolved selections in place.
type Confirmer interface {
	Confirm(ctx context.Context, item *catalog.ResolvedItem) (bool, error)
}

// ConfirmerFunc adapts a function to the Confirmer interface.
type ConfirmerFunc func(ctx context.Context, item *catalog.ResolvedItem) (bool, error)

// Confirm calls f.
func (f ConfirmerFunc) Confirm(ctx context.Context, item *catalog.ResolvedItem) (bool, error) {
	return f(ctx, item)
}

// defaultPace is the inter-item delay used when pace_ms is left unset,
// slow enough for the kiosk to animate one line at a time.
const defaultPace = 600 * time.Millisecond

// AutoConfirmer approves every item immediately.
type AutoConfirmer struct{}

// Confirm always approves.
func (AutoConfirmer) Confirm(context.Context, *catalog.ResolvedItem) (bool, error) {
	return true, nil
}

// Result reports how an ingested payload landed in the cart.
type Result struct {
	LineIDs []string `json:"line_ids"`
	Added   int      `json:"added"`
	Merged  int      `json:"merged"`
	Skipped []string `json:"skipped,omitempty"`
}

// Driver commits recognized hints to the cart in strict input order.
// One driver serves the whole service lifetime; its first ingestion
// brings the cart into view.
type Driver struct {
	matcher   *catalog.Matcher
	cart      *cart.Cart
	confirmer Confirmer
	pace      time.Duration
	logger    *slog.Logger
	focusOnce sync.Once
}

// New creates a driver. A nil confirmer auto-approves every item and an
// unset pace falls back to defaultPace.
func New(cfg *config.IngestConfig, matcher *catalog.Matcher, c *cart.Cart, confirmer Confirmer, logger *slog.Logger) *Driver {
	if confirmer == nil {
		confirmer = AutoConfirmer{}
	}
	pace := cfg.GetPaceDuration()
	if cfg.PaceMS == 0 {
		pace = defaultPace
	}
	return &Driver{
		matcher:   matcher,
		cart:      c,
		confirmer: confirmer,
		pace:      pace,
		logger:    logger,
	}
}

// Ingest resolves and commits every item in the payload sequentially.
// Unresolved hints are skipped and the batch continues; lines already
// merged stay in the cart even when the context ends the batch early.
func (d *Driver) Ingest(ctx context.Context, payload *protocol.IngestPayload) (*Result, error) {
	if payload == nil || len(payload.Items) == 0 {
		return nil, protocol.ErrMalformedPayload
	}

	d.focusOnce.Do(d.cart.Focus)

	result := &Result{}
	for i, item := range payload.Items {
		hint := catalog.Hint{
			Product:     item.ProductHint,
			Quantity:    item.Quantity,
			Size:        item.Size,
			Temperature: item.Temperature,
			Modifiers:   item.Modifiers,
		}

		resolved, err := d.matcher.Resolve(hint)
		if err != nil {
			d.logger.Warn("Skipping unresolved hint",
				"hint", item.ProductHint,
				"error", err.Error())
			result.Skipped = append(result.Skipped, item.ProductHint)
			continue
		}

		ok, err := d.confirmer.Confirm(ctx, resolved)
		if err != nil {
			return result, fmt.Errorf("confirmation failed: %w", err)
		}
		if !ok {
			d.logger.Info("Item declined at confirmation",
				"product", resolved.Product.Name)
			result.Skipped = append(result.Skipped, item.ProductHint)
			continue
		}

		merge := d.cart.Merge(resolved)
		result.LineIDs = append(result.LineIDs, merge.Item.ID)
		if merge.Merged {
			result.Merged++
		} else {
			result.Added++
		}

		if i < len(payload.Items)-1 {
			if err := d.pause(ctx); err != nil {
				return result, err
			}
		}
	}

	d.logger.Info("Ingested order payload",
		"items", len(payload.Items),
		"added", result.Added,
		"merged", result.Merged,
		"skipped", len(result.Skipped))
	return result, nil
}

// pause waits out the inter-item delay, or returns early when the
// context ends.
func (d *Driver) pause(ctx context.Context) error {
	if d.pace <= 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d.pace):
		return nil
	}
}
