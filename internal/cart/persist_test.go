package cart

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestStorageKey(t *testing.T) {
	tests := []struct {
		base, session, want string
	}{
		{"", "", "cart-storage"},
		{"", "abc", "cart-storage:abc"},
		{"shop-cart", "abc", "shop-cart:abc"},
	}
	for _, tt := range tests {
		if got := StorageKey(tt.base, tt.session); got != tt.want {
			t.Errorf("StorageKey(%q, %q) = %q, want %q", tt.base, tt.session, got, tt.want)
		}
	}
}

func TestFilePersister_RoundTrip(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	p, err := NewFilePersister(dir)
	if err != nil {
		t.Fatal(err)
	}

	key := StorageKey("", "session/1")
	if _, err := p.Load(ctx, key); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	s := newTestStore(t, p)
	s.key = key
	_ = s.AddItem(ctx, roses, 4)

	snap, err := p.Load(ctx, key)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(snap.Items) != 1 || snap.TotalItems != 4 {
		t.Errorf("unexpected snapshot %+v", snap)
	}

	// the key is escaped into a single file name
	entries, _ := os.ReadDir(dir)
	if len(entries) != 1 || strings.Contains(entries[0].Name(), "/") {
		t.Errorf("unexpected files %v", entries)
	}

	if err := p.Delete(ctx, key); err != nil {
		t.Fatal(err)
	}
	if err := p.Delete(ctx, key); err != nil {
		t.Errorf("second delete should be a no-op, got %v", err)
	}

	t.Log("✓ File persister round-trips carts")
}

func TestDecode_RecomputesAggregates(t *testing.T) {
	raw := `{"items":[{"id":"l1","productId":"p1","product":{"id":"p1","name":"Tulip","price":2.5,"stockQuantity":9},"quantity":4,"selected":true}],
"totalItems":999,"totalPrice":1}`

	snap, err := decode([]byte(raw))
	if err != nil {
		t.Fatal(err)
	}
	if snap.TotalItems != 4 || snap.TotalPrice.Cents() != 1000 {
		t.Errorf("aggregates not recomputed: %+v", snap.Totals)
	}
}

func TestNewStore_CorruptDataStartsEmpty(t *testing.T) {
	dir := t.TempDir()
	p, _ := NewFilePersister(dir)
	if err := os.WriteFile(filepath.Join(dir, "cart-storage.json"), []byte("{not json"), 0o600); err != nil {
		t.Fatal(err)
	}

	s := newTestStore(t, p)
	if len(s.Items()) != 0 {
		t.Error("corrupt cart should load empty")
	}
}

type failingPersister struct{ *MemoryPersister }

func (failingPersister) Load(ctx context.Context, key string) (Snapshot, error) {
	return Snapshot{}, errors.New("connection refused")
}

func TestNewStore_LoadErrorIsReturned(t *testing.T) {
	_, err := NewStore(context.Background(), Config{Persister: failingPersister{NewMemoryPersister()}})
	if err == nil {
		t.Fatal("expected error from unreachable backend")
	}
}

func TestNewStore_SanitizesStoredLines(t *testing.T) {
	ctx := context.Background()
	p := NewMemoryPersister()
	bad := Snapshot{Items: []Item{
		{ID: "a", ProductID: "p1", Product: roses, Quantity: 2},
		{ID: "b", ProductID: "p1", Product: roses, Quantity: 1},  // duplicate product
		{ID: "c", ProductID: "p2", Product: lily, Quantity: 0},   // below 1
		{ID: "d", ProductID: "p3", Product: lily, Quantity: 50},  // above stock
	}}
	if err := p.Save(ctx, DefaultStorageKey, bad); err != nil {
		t.Fatal(err)
	}

	s := newTestStore(t, p)
	items := s.Items()
	if len(items) != 1 || items[0].ID != "a" {
		t.Errorf("unexpected items after sanitize: %+v", items)
	}
	if s.TotalItems() != 2 {
		t.Errorf("total = %d, want 2", s.TotalItems())
	}
}

func TestRegistry_OneStorePerSession(t *testing.T) {
	ctx := context.Background()
	p := NewMemoryPersister()
	r := NewRegistry("", p, nil, nil)

	a1, err := r.Get(ctx, "alice")
	if err != nil {
		t.Fatal(err)
	}
	a2, _ := r.Get(ctx, "alice")
	b, _ := r.Get(ctx, "bob")

	if a1 != a2 {
		t.Error("same session should return the same store")
	}
	if a1 == b {
		t.Error("different sessions should not share a store")
	}
	if a1.Key() != "cart-storage:alice" {
		t.Errorf("key = %q", a1.Key())
	}

	_ = a1.AddItem(ctx, roses, 1)
	r.Forget("alice")
	reloaded, _ := r.Get(ctx, "alice")
	if reloaded == a1 || reloaded.TotalItems() != 1 {
		t.Error("forgotten session should rehydrate from the persister")
	}
	if r.Len() != 2 {
		t.Errorf("Len = %d, want 2", r.Len())
	}
}

func TestRegistry_CapsLoadedStores(t *testing.T) {
	ctx := context.Background()
	r := NewRegistry("", NewMemoryPersister(), nil, nil, WithMaxSessions(5))
	defer r.Close()

	for i := 0; i < 100; i++ {
		if _, err := r.Get(ctx, fmt.Sprintf("anon-%d", i)); err != nil {
			t.Fatal(err)
		}
	}
	if r.Len() > 5 {
		t.Errorf("Len = %d, want at most 5", r.Len())
	}

	t.Log("✓ 100 sessions keep at most 5 stores loaded")
}

func TestRegistry_EvictedSessionRehydrates(t *testing.T) {
	ctx := context.Background()
	r := NewRegistry("", NewMemoryPersister(), nil, nil, WithMaxSessions(2))
	defer r.Close()

	alice, _ := r.Get(ctx, "alice")
	if res := alice.AddItem(ctx, roses, 3); !res.OK {
		t.Fatalf("add failed: %+v", res)
	}
	_, _ = r.Get(ctx, "bob")
	_, _ = r.Get(ctx, "carol") // pushes alice out

	again, err := r.Get(ctx, "alice")
	if err != nil {
		t.Fatal(err)
	}
	if again == alice {
		t.Error("expected a freshly loaded store after eviction")
	}
	if again.TotalItems() != 3 {
		t.Errorf("rehydrated total = %d, want 3", again.TotalItems())
	}

	t.Log("✓ evicted session reloads its persisted cart")
}

func TestRegistry_IdleStoreExpires(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 2, 14, 9, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	r := NewRegistry("", NewMemoryPersister(), nil, nil,
		WithIdleTTL(10*time.Minute),
		WithRegistryClock(clock),
	)
	defer r.Close()

	first, _ := r.Get(ctx, "alice")

	now = now.Add(8 * time.Minute)
	if s, _ := r.Get(ctx, "alice"); s != first {
		t.Fatal("store used within the idle window should be kept")
	}

	// the hit above restarted the timer
	now = now.Add(8 * time.Minute)
	if s, _ := r.Get(ctx, "alice"); s != first {
		t.Fatal("idle timer should restart on every use")
	}

	now = now.Add(11 * time.Minute)
	if s, _ := r.Get(ctx, "alice"); s == first {
		t.Error("idle store should have been dropped")
	}

	t.Log("✓ idle stores expire, active ones stay loaded")
}
