package catalog

import (
	"encoding/json"
	"testing"

	"github.com/agatticelli/flower-shop/internal/money"
)

func TestProductQuery_CacheKeyNormalizes(t *testing.T) {
	a := ProductQuery{Search: " roses "}
	b := ProductQuery{Page: 1, PageSize: 12, Search: "roses"}

	if a.CacheKey() != b.CacheKey() {
		t.Errorf("keys differ: %q vs %q", a.CacheKey(), b.CacheKey())
	}
	if a.CacheKey() == (ProductQuery{Page: 2}).CacheKey() {
		t.Error("different pages must have different keys")
	}
}

func TestOrderStatus_Unmarshal(t *testing.T) {
	var o struct {
		Status OrderStatus `json:"status"`
	}
	if err := json.Unmarshal([]byte(`{"status":"PAID"}`), &o); err != nil {
		t.Fatal(err)
	}
	if o.Status != OrderPaid {
		t.Errorf("status = %q", o.Status)
	}
	if err := json.Unmarshal([]byte(`{"status":"lost"}`), &o); err == nil {
		t.Error("expected error for unknown status")
	}
}

func TestProduct_DecodeBackendPayload(t *testing.T) {
	payload := `{"id":"p1","name":"Red Roses","price":"39.90","stockQuantity":5,"categoryId":"c1"}`

	var p Product
	if err := json.Unmarshal([]byte(payload), &p); err != nil {
		t.Fatal(err)
	}
	if p.Price != money.NewUSDFromCents(3990) {
		t.Errorf("price = %s", p.Price)
	}
	if !p.InStock() {
		t.Error("expected in stock")
	}
}

func TestOrderItem_Subtotal(t *testing.T) {
	item := OrderItem{Quantity: 3, UnitPrice: money.NewUSD(12.5)}
	if got := item.Subtotal(); got.Cents() != 3750 {
		t.Errorf("subtotal = %s", got)
	}
}

func TestShippingInfo_Validate(t *testing.T) {
	ok := ShippingInfo{Name: "Ada", Phone: "555-0100", Address: "1 Garden Way"}
	if err := ok.Validate(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}

	missing := ok
	missing.Address = "  "
	if err := missing.Validate(); err == nil {
		t.Error("expected error for blank address")
	}
}
