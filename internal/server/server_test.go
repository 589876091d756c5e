package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/agatticelli/flower-shop/internal/cart"
	"github.com/agatticelli/flower-shop/internal/catalog"
	"github.com/agatticelli/flower-shop/internal/checkout"
	"github.com/agatticelli/flower-shop/internal/money"
	"github.com/agatticelli/flower-shop/internal/platform/apierr"
	"github.com/agatticelli/flower-shop/internal/platform/resilience"
	"github.com/agatticelli/flower-shop/internal/storefront"
)

type fakeCatalogue struct {
	products map[string]catalog.Product
	err      error
}

func (f *fakeCatalogue) ListProducts(_ context.Context, q catalog.ProductQuery) (*catalog.ProductPage, error) {
	if f.err != nil {
		return nil, f.err
	}
	q = q.Normalize()
	page := &catalog.ProductPage{Page: q.Page, PageSize: q.PageSize}
	for _, p := range f.products {
		page.Items = append(page.Items, p)
	}
	page.Total = len(page.Items)
	return page, nil
}

func (f *fakeCatalogue) GetProduct(_ context.Context, id string) (*catalog.Product, error) {
	if f.err != nil {
		return nil, f.err
	}
	p, ok := f.products[id]
	if !ok {
		return nil, apierr.FromStatus(http.StatusNotFound, "product not found")
	}
	return &p, nil
}

func (f *fakeCatalogue) ListCategories(context.Context) ([]catalog.Category, error) {
	return nil, f.err
}

type fakeOrders struct{ placed int }

func (f *fakeOrders) CreateOrder(_ context.Context, req catalog.CreateOrderRequest) (*catalog.Order, error) {
	f.placed++
	return &catalog.Order{ID: "o-1", Items: req.Items, TotalAmount: req.TotalAmount, Status: catalog.OrderPending}, nil
}

type fakeHealth struct{ ready bool }

func (f fakeHealth) Health() storefront.Health { return storefront.Health{Backend: "test"} }
func (f fakeHealth) Ready() bool              { return f.ready }

var peony = catalog.Product{ID: "p-peony", Name: "Peony", Price: money.NewUSD(18), StockQuantity: 5}

type testEnv struct {
	srv       *Server
	catalogue *fakeCatalogue
	orders    *fakeOrders
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	cat := &fakeCatalogue{products: map[string]catalog.Product{peony.ID: peony}}
	orders := &fakeOrders{}
	svc, err := checkout.NewService(checkout.Config{Orders: orders})
	if err != nil {
		t.Fatalf("checkout.NewService: %v", err)
	}
	srv, err := New(Config{
		Catalogue: cat,
		Carts:     cart.NewRegistry("", cart.NewMemoryPersister(), nil, nil),
		Checkout:  svc,
		Health:    fakeHealth{ready: true},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return &testEnv{srv: srv, catalogue: cat, orders: orders}
}

func (e *testEnv) do(t *testing.T, method, path, session, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if session != "" {
		req.Header.Set(sessionHeader, session)
	}
	rec := httptest.NewRecorder()
	e.srv.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeMutation(t *testing.T, rec *httptest.ResponseRecorder) mutationResponse {
	t.Helper()
	var resp mutationResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v (%s)", err, rec.Body.String())
	}
	return resp
}

func TestCart_AddAndRead(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/cart/items", "s1", `{"productId":"p-peony","quantity":2}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("add status = %d: %s", rec.Code, rec.Body.String())
	}
	resp := decodeMutation(t, rec)
	if !resp.Result.OK || resp.Cart.TotalItems != 2 || resp.Cart.TotalPrice != money.NewUSD(36) {
		t.Errorf("unexpected response: %+v", resp)
	}

	rec = env.do(t, http.MethodGet, "/api/cart", "s1", "")
	var view cartView
	if err := json.Unmarshal(rec.Body.Bytes(), &view); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(view.Items) != 1 || view.Items[0].Quantity != 2 {
		t.Errorf("unexpected cart: %+v", view)
	}

	// Separate sessions have separate carts
	rec = env.do(t, http.MethodGet, "/api/cart", "s2", "")
	_ = json.Unmarshal(rec.Body.Bytes(), &view)
	if len(view.Items) != 0 {
		t.Errorf("session s2 should have an empty cart")
	}

	t.Log("✓ Cart add/read scoped per session")
}

func TestCart_RejectionIsConflict(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/cart/items", "s1", `{"productId":"p-peony","quantity":9}`)
	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", rec.Code)
	}
	resp := decodeMutation(t, rec)
	if resp.Result.OK || resp.Result.Reason != cart.ReasonExceedsStock {
		t.Errorf("unexpected result: %+v", resp.Result)
	}

	t.Log("✓ Business rejections answered with 409 and the result")
}

func TestCart_UpstreamNotFound(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/cart/items", "s1", `{"productId":"nope","quantity":1}`)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}

	t.Log("✓ Upstream 404 mapped through")
}

func TestCart_UpdateToggleRemove(t *testing.T) {
	env := newTestEnv(t)
	resp := decodeMutation(t, env.do(t, http.MethodPost, "/api/cart/items", "s1", `{"productId":"p-peony"}`))
	id := resp.Cart.Items[0].ID

	resp = decodeMutation(t, env.do(t, http.MethodPatch, "/api/cart/items/"+id, "s1", `{"quantity":4}`))
	if resp.Cart.TotalItems != 4 {
		t.Errorf("quantity update not applied: %+v", resp.Cart)
	}

	resp = decodeMutation(t, env.do(t, http.MethodPost, "/api/cart/items/"+id+"/toggle", "s1", ""))
	if resp.Cart.TotalSelectedItems != 0 {
		t.Errorf("toggle should deselect the line")
	}

	resp = decodeMutation(t, env.do(t, http.MethodPost, "/api/cart/select", "s1", `{"selected":true}`))
	if resp.Cart.TotalSelectedItems != 4 {
		t.Errorf("select all should select the line")
	}

	rec := env.do(t, http.MethodDelete, "/api/cart/items/"+id, "s1", "")
	resp = decodeMutation(t, rec)
	if rec.Code != http.StatusOK || resp.Cart.TotalItems != 0 || !resp.Cart.TotalPrice.IsZero() {
		t.Errorf("remove failed: %d %+v", rec.Code, resp.Cart)
	}

	rec = env.do(t, http.MethodDelete, "/api/cart/items/"+id, "s1", "")
	if rec.Code != http.StatusConflict {
		t.Errorf("removing a missing line should be 409, got %d", rec.Code)
	}

	t.Log("✓ Line update, toggle, select-all and remove")
}

func TestCart_Visibility(t *testing.T) {
	env := newTestEnv(t)

	var v visibility
	_ = json.Unmarshal(env.do(t, http.MethodPost, "/api/cart/open", "s1", "").Body.Bytes(), &v)
	if !v.IsOpen {
		t.Error("open should set isOpen")
	}
	_ = json.Unmarshal(env.do(t, http.MethodPost, "/api/cart/toggle", "s1", "").Body.Bytes(), &v)
	if v.IsOpen {
		t.Error("toggle should close")
	}

	t.Log("✓ Cart panel visibility")
}

func TestCheckout_Endpoint(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/checkout", "s1", `{"shipping":{"name":"Lin","phone":"555","address":"2 Rose St"}}`)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("empty cart checkout status = %d, want 422", rec.Code)
	}

	env.do(t, http.MethodPost, "/api/cart/items", "s1", `{"productId":"p-peony","quantity":1}`)
	rec = env.do(t, http.MethodPost, "/api/checkout", "s1", `{"shipping":{"name":"Lin","phone":"555","address":"2 Rose St"}}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("checkout status = %d: %s", rec.Code, rec.Body.String())
	}
	if env.orders.placed != 1 {
		t.Errorf("expected one order, got %d", env.orders.placed)
	}

	rec = env.do(t, http.MethodPost, "/api/checkout", "s1", `{"unknown":true}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("malformed body status = %d, want 400", rec.Code)
	}

	t.Log("✓ Checkout endpoint statuses")
}

func TestErrors_CircuitOpenAndServerErrors(t *testing.T) {
	env := newTestEnv(t)

	env.catalogue.err = resilience.ErrCircuitOpen
	if rec := env.do(t, http.MethodGet, "/api/products", "", ""); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("circuit open status = %d, want 503", rec.Code)
	}

	env.catalogue.err = apierr.FromStatus(http.StatusInternalServerError, "boom")
	rec := env.do(t, http.MethodGet, "/api/categories", "", "")
	if rec.Code != http.StatusBadGateway {
		t.Errorf("server error status = %d, want 502", rec.Code)
	}
	var body errorBody
	_ = json.Unmarshal(rec.Body.Bytes(), &body)
	if body.Error != "Server error, please try again later" {
		t.Errorf("unexpected message %q", body.Error)
	}

	env.catalogue.err = apierr.FromStatus(http.StatusUnauthorized, "expired")
	if rec := env.do(t, http.MethodGet, "/api/products/p-peony", "", ""); rec.Code != http.StatusUnauthorized {
		t.Errorf("unauthorized status = %d, want 401", rec.Code)
	}

	t.Log("✓ Upstream errors mapped to statuses and user messages")
}

func TestSession_CookieIssued(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/cart", "", "")
	cookies := rec.Result().Cookies()
	if len(cookies) != 1 || cookies[0].Name != sessionCookie || cookies[0].Value == "" {
		t.Fatalf("expected sid cookie, got %+v", cookies)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/cart", nil)
	req.AddCookie(cookies[0])
	rec = httptest.NewRecorder()
	env.srv.Handler().ServeHTTP(rec, req)
	if len(rec.Result().Cookies()) != 0 {
		t.Error("existing cookie should be reused")
	}

	t.Log("✓ Session cookie issued once")
}

func TestHealthAndReady(t *testing.T) {
	env := newTestEnv(t)
	if rec := env.do(t, http.MethodGet, "/health", "", ""); rec.Code != http.StatusOK {
		t.Errorf("health status = %d", rec.Code)
	}
	if rec := env.do(t, http.MethodGet, "/ready", "", ""); rec.Code != http.StatusOK {
		t.Errorf("ready status = %d", rec.Code)
	}

	env.srv.cfg.Health = fakeHealth{ready: false}
	if rec := env.do(t, http.MethodGet, "/ready", "", ""); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("not ready status = %d, want 503", rec.Code)
	}

	t.Log("✓ Health and readiness")
}
