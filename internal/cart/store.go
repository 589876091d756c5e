// Package cart implements the shopping cart: a persisted list of lines
// with selection state and aggregates that are recomputed on every
// mutation.
package cart

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/agatticelli/flower-shop/internal/catalog"
	"github.com/agatticelli/flower-shop/internal/money"
	"github.com/agatticelli/flower-shop/internal/platform/observability"
)

// Config holds Store dependencies. Only Persister is required.
type Config struct {
	Key       string // storage key, defaults to DefaultStorageKey
	Persister Persister
	Logger    *observability.Logger
	Metrics   *observability.Metrics
	Clock     func() time.Time
	IDFunc    func() string
}

// Store is the single source of truth for one cart. Every method is one
// atomic state transition.
type Store struct {
	key       string
	persister Persister
	logger    *observability.Logger
	metrics   *observability.Metrics
	now       func() time.Time
	newID     func() string

	mu     sync.RWMutex
	items  []Item
	totals Totals
	isOpen bool
}

// NewStore creates a store and rehydrates it from the persister. A
// missing or corrupt stored cart starts empty; other load errors are
// returned.
func NewStore(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.Persister == nil {
		return nil, errors.New("cart: persister is required")
	}
	if cfg.Key == "" {
		cfg.Key = DefaultStorageKey
	}
	if cfg.Logger == nil {
		cfg.Logger = observability.NewNopLogger()
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.IDFunc == nil {
		cfg.IDFunc = uuid.NewString
	}

	s := &Store{
		key:       cfg.Key,
		persister: cfg.Persister,
		logger:    cfg.Logger,
		metrics:   cfg.Metrics,
		now:       cfg.Clock,
		newID:     cfg.IDFunc,
	}

	snap, err := cfg.Persister.Load(ctx, cfg.Key)
	switch {
	case err == nil:
		s.items = sanitize(snap.Items)
		s.totals = computeTotals(s.items)
	case errors.Is(err, ErrNotFound):
	case errors.Is(err, ErrCorrupt):
		s.logger.LogWarn(ctx, "Discarding corrupt stored cart", "key", cfg.Key, "error", err)
	default:
		return nil, fmt.Errorf("failed to load cart %s: %w", cfg.Key, err)
	}

	return s, nil
}

// sanitize drops lines that violate cart invariants
func sanitize(items []Item) []Item {
	out := make([]Item, 0, len(items))
	seen := make(map[string]bool, len(items))
	for _, it := range items {
		if it.Quantity < 1 || it.ProductID == "" || seen[it.ProductID] {
			continue
		}
		if it.Quantity > it.Product.StockQuantity {
			continue
		}
		seen[it.ProductID] = true
		out = append(out, it)
	}
	return out
}

// Key returns the storage key
func (s *Store) Key() string {
	return s.key
}

// AddItem adds quantity units of product, merging into an existing line
// for the same product. The resulting quantity is checked against
// product.StockQuantity and a merged line takes product as its new
// snapshot. New lines start selected.
func (s *Store) AddItem(ctx context.Context, product catalog.Product, quantity int) Result {
	if product.ID == "" {
		return s.record(ctx, "add", rejected(ReasonInvalidProduct, "Product has no id"))
	}
	if quantity < 1 {
		return s.record(ctx, "add", rejected(ReasonInvalidQuantity, "Quantity must be at least 1"))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if idx := s.indexByProduct(product.ID); idx >= 0 {
		line := s.items[idx]
		next := line.Quantity + quantity
		if next > product.StockQuantity {
			return s.record(ctx, "add", rejected(ReasonExceedsStock,
				"Only %d of %s in stock, %d already in cart", product.StockQuantity, product.Name, line.Quantity))
		}
		// The snapshot follows the product that was checked
		s.items[idx].Product = product
		s.items[idx].Quantity = next
	} else {
		if quantity > product.StockQuantity {
			return s.record(ctx, "add", rejected(ReasonExceedsStock,
				"Only %d of %s in stock", product.StockQuantity, product.Name))
		}
		s.items = append(s.items, Item{
			ID:        s.newID(),
			ProductID: product.ID,
			Product:   product,
			Quantity:  quantity,
			Selected:  true,
			AddedAt:   s.now().UTC(),
		})
	}

	return s.commit(ctx, "add")
}

// RemoveItem deletes a line
func (s *Store) RemoveItem(ctx context.Context, itemID string) Result {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.indexByID(itemID)
	if idx < 0 {
		return s.record(ctx, "remove", rejected(ReasonNotFound, "Item %s is not in the cart", itemID))
	}
	s.items = append(s.items[:idx], s.items[idx+1:]...)

	return s.commit(ctx, "remove")
}

// RemoveItems deletes every listed line that exists in one transition.
// Result.Removed reports how many of the ids were still in the cart.
func (s *Store) RemoveItems(ctx context.Context, itemIDs ...string) Result {
	drop := make(map[string]bool, len(itemIDs))
	for _, id := range itemIDs {
		drop[id] = true
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.items[:0]
	removed := 0
	for _, it := range s.items {
		if drop[it.ID] {
			removed++
			continue
		}
		kept = append(kept, it)
	}
	if removed == 0 {
		return s.record(ctx, "remove_many", rejected(ReasonNotFound, "None of the items are in the cart"))
	}
	s.items = kept

	r := s.commit(ctx, "remove_many")
	r.Removed = removed
	return r
}

// UpdateQuantity sets a line's quantity. A quantity below 1 removes the
// line; a quantity above the stock ceiling is rejected.
func (s *Store) UpdateQuantity(ctx context.Context, itemID string, quantity int) Result {
	if quantity < 1 {
		return s.RemoveItem(ctx, itemID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.indexByID(itemID)
	if idx < 0 {
		return s.record(ctx, "update", rejected(ReasonNotFound, "Item %s is not in the cart", itemID))
	}
	line := s.items[idx]
	if quantity > line.Product.StockQuantity {
		return s.record(ctx, "update", rejected(ReasonExceedsStock,
			"Only %d of %s in stock", line.Product.StockQuantity, line.Product.Name))
	}
	s.items[idx].Quantity = quantity

	return s.commit(ctx, "update")
}

// ClearCart removes every line
func (s *Store) ClearCart(ctx context.Context) Result {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.items = nil
	return s.commit(ctx, "clear")
}

// ToggleItemSelection flips a line's selected flag
func (s *Store) ToggleItemSelection(ctx context.Context, itemID string) Result {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.indexByID(itemID)
	if idx < 0 {
		return s.record(ctx, "toggle", rejected(ReasonNotFound, "Item %s is not in the cart", itemID))
	}
	s.items[idx].Selected = !s.items[idx].Selected

	return s.commit(ctx, "toggle")
}

// SelectAllItems sets every line's selected flag
func (s *Store) SelectAllItems(ctx context.Context, selected bool) Result {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.items {
		s.items[i].Selected = selected
	}
	return s.commit(ctx, "select_all")
}

// Items returns a copy of the cart lines
func (s *Store) Items() []Item {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneItems(s.items)
}

// SelectedItems returns the lines marked for checkout
func (s *Store) SelectedItems() []Item {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Item, 0, len(s.items))
	for _, it := range s.items {
		if it.Selected {
			out = append(out, it)
		}
	}
	return out
}

func (s *Store) TotalItems() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.totals.TotalItems
}

func (s *Store) TotalPrice() money.USD {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.totals.TotalPrice
}

func (s *Store) TotalSelectedItems() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.totals.TotalSelectedItems
}

func (s *Store) TotalSelectedPrice() money.USD {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.totals.TotalSelectedPrice
}

// Snapshot returns items and aggregates as one consistent view
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

func (s *Store) snapshotLocked() Snapshot {
	return Snapshot{
		Items:     cloneItems(s.items),
		UpdatedAt: s.now().UTC(),
		Totals:    s.totals,
	}
}

// IsOpen reports the cart panel visibility
func (s *Store) IsOpen() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isOpen
}

func (s *Store) OpenCart() {
	s.mu.Lock()
	s.isOpen = true
	s.mu.Unlock()
}

func (s *Store) CloseCart() {
	s.mu.Lock()
	s.isOpen = false
	s.mu.Unlock()
}

// ToggleCart flips visibility and returns the new state
func (s *Store) ToggleCart() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.isOpen = !s.isOpen
	return s.isOpen
}

// commit recomputes aggregates and persists (caller must hold lock).
// Persistence failures are logged and counted, never reported as a
// rejected mutation.
func (s *Store) commit(ctx context.Context, op string) Result {
	s.totals = computeTotals(s.items)

	if err := s.persister.Save(ctx, s.key, s.snapshotLocked()); err != nil {
		s.logger.LogError(ctx, "Failed to persist cart", err, "key", s.key, "op", op, "backend", s.persister.Name())
		s.metrics.RecordCartPersistError(ctx, s.persister.Name())
	}

	return s.record(ctx, op, ok())
}

func (s *Store) record(ctx context.Context, op string, r Result) Result {
	s.metrics.RecordCartMutation(ctx, op, r.OK)
	if !r.OK {
		s.logger.LogDebug(ctx, "Cart mutation rejected", "op", op, "reason", string(r.Reason))
	}
	return r
}

func (s *Store) indexByID(id string) int {
	for i, it := range s.items {
		if it.ID == id {
			return i
		}
	}
	return -1
}

func (s *Store) indexByProduct(productID string) int {
	for i, it := range s.items {
		if it.ProductID == productID {
			return i
		}
	}
	return -1
}
