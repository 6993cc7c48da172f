package core

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"math"
	"sync"
	"time"
)

var (
	// ErrStockExceeded is returned when a cart mutation would push a line
	// past its recorded stock ceiling. The cart is left unchanged.
	ErrStockExceeded = errors.New("stock exceeded")
)

// CartLine is a product snapshot taken at add time plus the chosen quantity.
// The snapshot's stock value is the line's quantity ceiling; live stock is
// only consulted again at checkout.
type CartLine struct {
	Product  Product `json:"product"`
	Quantity int     `json:"quantity"`
}

// Subtotal returns price * quantity for the line.
func (l CartLine) Subtotal() float64 {
	return l.Product.Price * float64(l.Quantity)
}

// CartStore owns the shopping cart: at most one line per product id.
// Persistence is an injected hook run synchronously after every mutation,
// so the store is testable against a fake port. Subscribers are notified
// after the persist hook returns.
type CartStore struct {
	mu      sync.Mutex
	lines   map[string]CartLine
	persist func(lines []CartLine)
	subs    []func(lines []CartLine)
}

// NewCartStore builds an empty cart. persist may be nil (no-op hook).
func NewCartStore(persist func(lines []CartLine)) *CartStore {
	return &CartStore{
		lines:   make(map[string]CartLine),
		persist: persist,
	}
}

// Subscribe registers an observer invoked after every committed mutation
// with a snapshot of the lines. Not safe to call concurrently with mutations.
func (s *CartStore) Subscribe(fn func(lines []CartLine)) {
	s.subs = append(s.subs, fn)
}

// Add puts one unit of product in the cart. A repeated add increments the
// existing line and refreshes its snapshot from the argument; incrementing
// past the snapshot stock returns ErrStockExceeded and changes nothing.
func (s *CartStore) Add(product Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	line, ok := s.lines[product.ID]
	if !ok {
		if product.Stock < 1 {
			return ErrStockExceeded
		}
		s.lines[product.ID] = CartLine{Product: product, Quantity: 1}
		s.committedLocked()
		return nil
	}

	if line.Quantity >= product.Stock {
		return ErrStockExceeded
	}
	s.lines[product.ID] = CartLine{Product: product, Quantity: line.Quantity + 1}
	s.committedLocked()
	return nil
}

// Remove deletes the line for id. Removing an absent id is a no-op.
func (s *CartStore) Remove(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.lines[id]; !ok {
		return
	}
	delete(s.lines, id)
	s.committedLocked()
}

// SetQuantity sets the line's quantity clamped to [1, snapshot stock].
// Unknown ids are ignored.
func (s *CartStore) SetQuantity(id string, quantity int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	line, ok := s.lines[id]
	if !ok {
		return
	}
	if quantity < 1 {
		quantity = 1
	}
	if quantity > line.Product.Stock {
		quantity = line.Product.Stock
	}
	line.Quantity = quantity
	s.lines[id] = line
	s.committedLocked()
}

// Clear empties the cart unconditionally.
func (s *CartStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.lines = make(map[string]CartLine)
	s.committedLocked()
}

// Lines returns a snapshot of the cart lines.
func (s *CartStore) Lines() []CartLine {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Total returns the sum of price*quantity over all lines, rounded to 2
// decimal places.
func (s *CartStore) Total() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	var total float64
	for _, line := range s.lines {
		total += line.Subtotal()
	}
	return math.Round(total*100) / 100
}

// Count returns the sum of quantities over all lines.
func (s *CartStore) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	var count int
	for _, line := range s.lines {
		count += line.Quantity
	}
	return count
}

// Restore replaces the cart content from a persisted JSON blob. A malformed
// blob resets to an empty cart without error; callers run this once at
// startup before serving traffic. Restore does not trigger the persist hook.
func (s *CartStore) Restore(blob string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var lines []CartLine
	if err := json.Unmarshal([]byte(blob), &lines); err != nil {
		log.Printf("cart restore: discarding malformed state: %v", err)
		s.lines = make(map[string]CartLine)
		return
	}

	s.lines = make(map[string]CartLine, len(lines))
	for _, line := range lines {
		if line.Product.ID == "" || line.Quantity < 1 || line.Product.Stock < 1 {
			continue
		}
		// Restored quantities honor the snapshot stock ceiling like every
		// other mutation.
		if line.Quantity > line.Product.Stock {
			line.Quantity = line.Product.Stock
		}
		s.lines[line.Product.ID] = line
	}
}

func (s *CartStore) snapshotLocked() []CartLine {
	out := make([]CartLine, 0, len(s.lines))
	for _, line := range s.lines {
		out = append(out, line)
	}
	return out
}

// committedLocked runs the persist hook and observers with a fresh snapshot.
func (s *CartStore) committedLocked() {
	snapshot := s.snapshotLocked()
	if s.persist != nil {
		s.persist(snapshot)
	}
	for _, fn := range s.subs {
		fn(snapshot)
	}
}

// CartPersistHook writes the full cart to the KV under CartKey after every
// mutation. Write failures are logged, never surfaced: a broken persistence
// backend must not take cart mutation down with it.
func CartPersistHook(kv KV) func(lines []CartLine) {
	return func(lines []CartLine) {
		b, err := json.Marshal(lines)
		if err != nil {
			log.Printf("cart persist: marshal failed: %v", err)
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := kv.Set(ctx, CartKey, string(b)); err != nil {
			log.Printf("cart persist: write failed: %v", err)
		}
	}
}

// RestoreCart loads the persisted cart into store, treating a missing or
// unreadable blob as an empty cart.
func RestoreCart(ctx context.Context, kv KV, store *CartStore) {
	blob, ok, err := kv.Get(ctx, CartKey)
	if err != nil {
		log.Printf("cart restore: read failed: %v", err)
		return
	}
	if !ok {
		return
	}
	store.Restore(blob)
}
