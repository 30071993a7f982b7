package cart

import (
	"errors"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/sbenstewart/dutch-bros-hackathon/internal/catalog"
)

// ErrItemNotFound is returned when a cart line id does not exist.
var ErrItemNotFound = errors.New("cart item not found")

// subscriberBuffer is the per-subscriber event channel capacity.
// Events for subscribers that fall further behind are dropped.
const subscriberBuffer = 16

// EventType identifies a cart change notification.
type EventType string

const (
	EventItemAdded       EventType = "item_added"
	EventItemMerged      EventType = "item_merged"
	EventQuantityChanged EventType = "quantity_changed"
	EventItemRemoved     EventType = "item_removed"
	EventCleared         EventType = "cleared"
	EventFocus           EventType = "focus"
)

// Event is one cart change, published to all subscribers in commit
// order.
type Event struct {
	Type     EventType `json:"type"`
	Item     *Item     `json:"item,omitempty"`
	Subtotal float64   `json:"subtotal"`
	// ScrollToEnd asks list views to scroll so the touched line is
	// visible.
	ScrollToEnd bool `json:"scroll_to_end,omitempty"`
}

// MergeResult reports how a resolved hint landed in the cart.
type MergeResult struct {
	Item   *Item
	Merged bool
}

// Cart is the in-memory order state. All methods are safe for
// concurrent use.
type Cart struct {
	mu          sync.RWMutex
	items       []*Item
	lastTouched time.Time
	subs        map[int]chan Event
	nextSub     int
	logger      *slog.Logger
}

// New creates an empty cart.
func New(logger *slog.Logger) *Cart {
	return &Cart{
		subs:        make(map[int]chan Event),
		lastTouched: time.Now(),
		logger:      logger,
	}
}

// Merge commits a resolved hint. A line with the same signature has
// its quantity increased and keeps its id; otherwise a new line is
// appended.
func (c *Cart) Merge(resolved *catalog.ResolvedItem) *MergeResult {
	c.mu.Lock()
	defer c.mu.Unlock()

	incoming := newItem(resolved)
	c.lastTouched = time.Now()

	for _, existing := range c.items {
		if existing.signature == incoming.signature {
			existing.Quantity += incoming.Quantity
			c.logger.Info("Merged cart line",
				"item_id", existing.ID,
				"product", existing.Name,
				"quantity", existing.Quantity)
			c.notify(Event{Type: EventItemMerged, Item: existing.clone(), Subtotal: c.subtotalLocked(), ScrollToEnd: true})
			return &MergeResult{Item: existing.clone(), Merged: true}
		}
	}

	c.items = append(c.items, incoming)
	c.logger.Info("Added cart line",
		"item_id", incoming.ID,
		"product", incoming.Name,
		"quantity", incoming.Quantity,
		"unit_price", incoming.UnitPrice)
	c.notify(Event{Type: EventItemAdded, Item: incoming.clone(), Subtotal: c.subtotalLocked(), ScrollToEnd: true})
	return &MergeResult{Item: incoming.clone(), Merged: false}
}

// Increment raises a line's quantity by one.
func (c *Cart) Increment(id string) (*Item, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	item := c.findLocked(id)
	if item == nil {
		return nil, ErrItemNotFound
	}
	item.Quantity++
	c.lastTouched = time.Now()
	c.notify(Event{Type: EventQuantityChanged, Item: item.clone(), Subtotal: c.subtotalLocked()})
	return item.clone(), nil
}

// Decrement lowers a line's quantity by one. Quantity never drops
// below one; at one the call is a no-op.
func (c *Cart) Decrement(id string) (*Item, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	item := c.findLocked(id)
	if item == nil {
		return nil, ErrItemNotFound
	}
	if item.Quantity <= 1 {
		return item.clone(), nil
	}
	item.Quantity--
	c.lastTouched = time.Now()
	c.notify(Event{Type: EventQuantityChanged, Item: item.clone(), Subtotal: c.subtotalLocked()})
	return item.clone(), nil
}

// Remove deletes a line from the cart.
func (c *Cart) Remove(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i, item := range c.items {
		if item.ID == id {
			c.items = append(c.items[:i], c.items[i+1:]...)
			c.lastTouched = time.Now()
			c.logger.Info("Removed cart line", "item_id", id, "product", item.Name)
			c.notify(Event{Type: EventItemRemoved, Item: item.clone(), Subtotal: c.subtotalLocked()})
			return nil
		}
	}
	return ErrItemNotFound
}

// Clear empties the cart.
func (c *Cart) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.items = nil
	c.lastTouched = time.Now()
	c.logger.Info("Cleared cart")
	c.notify(Event{Type: EventCleared, Subtotal: 0})
}

// Focus tells subscribers to bring the cart into view.
func (c *Cart) Focus() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.notify(Event{Type: EventFocus, Subtotal: c.subtotalLocked()})
}

// Items returns a snapshot of the cart lines in insertion order.
func (c *Cart) Items() []*Item {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]*Item, len(c.items))
	for i, item := range c.items {
		out[i] = item.clone()
	}
	return out
}

// Snapshot returns the cart lines together with the subtotal they sum
// to, read under one lock.
func (c *Cart) Snapshot() ([]*Item, float64) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]*Item, len(c.items))
	for i, item := range c.items {
		out[i] = item.clone()
	}
	return out, c.subtotalLocked()
}

// Subtotal sums unit price times quantity over all lines.
func (c *Cart) Subtotal() float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.subtotalLocked()
}

// LastTouched reports when the cart last changed.
func (c *Cart) LastTouched() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastTouched
}

// Subscribe registers a cart event listener. The returned function
// unsubscribes and closes the channel.
func (c *Cart) Subscribe() (<-chan Event, func()) {
	c.mu.Lock()
	defer c.mu.Unlock()

	id := c.nextSub
	c.nextSub++
	ch := make(chan Event, subscriberBuffer)
	c.subs[id] = ch

	return ch, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if existing, ok := c.subs[id]; ok {
			delete(c.subs, id)
			close(existing)
		}
	}
}

func (c *Cart) findLocked(id string) *Item {
	for _, item := range c.items {
		if item.ID == id {
			return item
		}
	}
	return nil
}

func (c *Cart) subtotalLocked() float64 {
	var total float64
	for _, item := range c.items {
		total += item.UnitPrice * float64(item.Quantity)
	}
	return math.Round(total*100) / 100
}

// notify delivers an event to every subscriber without blocking the
// cart mutation that produced it.
func (c *Cart) notify(evt Event) {
	for id, ch := range c.subs {
		select {
		case ch <- evt:
		default:
			c.logger.Warn("Dropping cart event for slow subscriber",
				"subscriber", id,
				"type", string(evt.Type))
		}
	}
}
