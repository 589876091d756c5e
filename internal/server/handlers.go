package server

import (
	"net/http"
	"strconv"

	"github.com/agatticelli/flower-shop/internal/cart"
	"github.com/agatticelli/flower-shop/internal/catalog"
	"github.com/agatticelli/flower-shop/internal/checkout"
)

// cartView is the cart as returned to the shopper
type cartView struct {
	cart.Snapshot
	IsOpen bool `json:"isOpen"`
}

type mutationResponse struct {
	Result cart.Result `json:"result"`
	Cart   cartView    `json:"cart"`
}

func viewOf(c *cart.Store) cartView {
	return cartView{Snapshot: c.Snapshot(), IsOpen: c.IsOpen()}
}

// writeResult answers a mutation; a rejected Result is a 409
func writeResult(w http.ResponseWriter, c *cart.Store, res cart.Result) {
	status := http.StatusOK
	if !res.OK {
		status = http.StatusConflict
	}
	writeJSON(w, status, mutationResponse{Result: res, Cart: viewOf(c)})
}

func (s *Server) getCart(w http.ResponseWriter, r *http.Request, _ string, c *cart.Store) {
	writeJSON(w, http.StatusOK, viewOf(c))
}

func (s *Server) clearCart(w http.ResponseWriter, r *http.Request, _ string, c *cart.Store) {
	writeResult(w, c, c.ClearCart(r.Context()))
}

type addItemRequest struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

// addItem looks up the current product so the line captures fresh price
// and stock.
func (s *Server) addItem(w http.ResponseWriter, r *http.Request, _ string, c *cart.Store) {
	var req addItemRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(r.Context(), w, err)
		return
	}
	if req.Quantity == 0 {
		req.Quantity = 1
	}
	if req.ProductID == "" {
		writeResult(w, c, cart.Result{Reason: cart.ReasonInvalidProduct, Message: "Product id is required"})
		return
	}

	product, err := s.cfg.Catalogue.GetProduct(r.Context(), req.ProductID)
	if err != nil {
		s.writeError(r.Context(), w, err)
		return
	}
	writeResult(w, c, c.AddItem(r.Context(), *product, req.Quantity))
}

type quantityRequest struct {
	Quantity int `json:"quantity"`
}

func (s *Server) updateQuantity(w http.ResponseWriter, r *http.Request, _ string, c *cart.Store) {
	var req quantityRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(r.Context(), w, err)
		return
	}
	writeResult(w, c, c.UpdateQuantity(r.Context(), r.PathValue("id"), req.Quantity))
}

func (s *Server) removeItem(w http.ResponseWriter, r *http.Request, _ string, c *cart.Store) {
	writeResult(w, c, c.RemoveItem(r.Context(), r.PathValue("id")))
}

func (s *Server) toggleItem(w http.ResponseWriter, r *http.Request, _ string, c *cart.Store) {
	writeResult(w, c, c.ToggleItemSelection(r.Context(), r.PathValue("id")))
}

type selectRequest struct {
	Selected bool `json:"selected"`
}

func (s *Server) selectAll(w http.ResponseWriter, r *http.Request, _ string, c *cart.Store) {
	var req selectRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(r.Context(), w, err)
		return
	}
	writeResult(w, c, c.SelectAllItems(r.Context(), req.Selected))
}

type visibility struct {
	IsOpen bool `json:"isOpen"`
}

func (s *Server) openCart(w http.ResponseWriter, r *http.Request, _ string, c *cart.Store) {
	c.OpenCart()
	writeJSON(w, http.StatusOK, visibility{IsOpen: c.IsOpen()})
}

func (s *Server) closeCart(w http.ResponseWriter, r *http.Request, _ string, c *cart.Store) {
	c.CloseCart()
	writeJSON(w, http.StatusOK, visibility{IsOpen: c.IsOpen()})
}

func (s *Server) toggleCart(w http.ResponseWriter, r *http.Request, _ string, c *cart.Store) {
	writeJSON(w, http.StatusOK, visibility{IsOpen: c.ToggleCart()})
}

func (s *Server) listProducts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	query := catalog.ProductQuery{
		CategoryID: q.Get("categoryId"),
		Search:     q.Get("keyword"),
	}
	query.Page, _ = strconv.Atoi(q.Get("page"))
	query.PageSize, _ = strconv.Atoi(q.Get("pageSize"))

	page, err := s.cfg.Catalogue.ListProducts(r.Context(), query)
	if err != nil {
		s.writeError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (s *Server) getProduct(w http.ResponseWriter, r *http.Request) {
	p, err := s.cfg.Catalogue.GetProduct(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) listCategories(w http.ResponseWriter, r *http.Request) {
	cats, err := s.cfg.Catalogue.ListCategories(r.Context())
	if err != nil {
		s.writeError(r.Context(), w, err)
		return
	}
	if cats == nil {
		cats = []catalog.Category{}
	}
	writeJSON(w, http.StatusOK, cats)
}

func (s *Server) checkout(w http.ResponseWriter, r *http.Request, session string, c *cart.Store) {
	var req checkout.Request
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(r.Context(), w, err)
		return
	}
	req.SessionID = session

	receipt, err := s.cfg.Checkout.Checkout(r.Context(), c, req)
	if err != nil {
		s.writeError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusCreated, receipt)
}

type healthResponse struct {
	Status  string `json:"status"`
	Backend any    `json:"backend,omitempty"`
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "healthy"}
	if s.cfg.Health != nil {
		resp.Backend = s.cfg.Health.Health()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) ready(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Health != nil && !s.cfg.Health.Ready() {
		writeJSON(w, http.StatusServiceUnavailable, healthResponse{Status: "not ready"})
		return
	}
	writeJSON(w, http.StatusOK, healthResponse{Status: "ready"})
}
