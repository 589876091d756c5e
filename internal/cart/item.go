package cart

import (
	"time"

	"github.com/agatticelli/flower-shop/internal/catalog"
	"github.com/agatticelli/flower-shop/internal/money"
)

// Item is one cart line. Product is a snapshot taken when the line was
// created; its StockQuantity is the ceiling for Quantity.
type Item struct {
	ID        string          `json:"id"`
	ProductID string          `json:"productId"`
	Product   catalog.Product `json:"product"`
	Quantity  int             `json:"quantity"`
	Selected  bool            `json:"selected"`
	AddedAt   time.Time       `json:"addedAt"`
}

// Subtotal is price × quantity
func (i Item) Subtotal() money.USD {
	return i.Product.Price.Mul(i.Quantity)
}

// Totals are the cart aggregates. They always equal a fold over the items.
type Totals struct {
	TotalItems         int       `json:"totalItems"`
	TotalPrice         money.USD `json:"totalPrice"`
	TotalSelectedItems int       `json:"totalSelectedItems"`
	TotalSelectedPrice money.USD `json:"totalSelectedPrice"`
}

// computeTotals folds items into aggregates
func computeTotals(items []Item) Totals {
	var t Totals
	for _, it := range items {
		sub := it.Subtotal()
		t.TotalItems += it.Quantity
		t.TotalPrice = t.TotalPrice.Add(sub)
		if it.Selected {
			t.TotalSelectedItems += it.Quantity
			t.TotalSelectedPrice = t.TotalSelectedPrice.Add(sub)
		}
	}
	return t
}

// Snapshot is the persisted form of a cart: items plus denormalized
// aggregates. The open/closed flag is not persisted.
type Snapshot struct {
	Items     []Item    `json:"items"`
	UpdatedAt time.Time `json:"updatedAt"`
	Totals
}

func cloneItems(items []Item) []Item {
	out := make([]Item, len(items))
	copy(out, items)
	return out
}
