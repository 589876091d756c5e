package storefront

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/agatticelli/flower-shop/internal/catalog"
)

// CreateOrder places an order. It uses a smaller retry budget than
// reads. Stock for the ordered products changes, so their cached entries
// and the listings are invalidated.
func (c *Client) CreateOrder(ctx context.Context, req catalog.CreateOrderRequest) (*catalog.Order, error) {
	if len(req.Items) == 0 {
		return nil, errors.New("order has no items")
	}

	order, err := call[*catalog.Order](c, ctx, "create_order", request{
		method:     http.MethodPost,
		path:       "/orders",
		body:       req,
		maxRetries: retries(c.orderRetries),
	})
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, fmt.Errorf("create_order: empty response")
	}

	for _, it := range req.Items {
		c.product.Invalidate(it.ProductID)
	}
	c.products.InvalidateAll()
	c.dashboard.InvalidateAll()

	return order, nil
}

// GetOrder returns one order
func (c *Client) GetOrder(ctx context.Context, id string) (*catalog.Order, error) {
	return call[*catalog.Order](c, ctx, "get_order", request{
		method: http.MethodGet,
		path:   "/orders/" + url.PathEscape(id),
	})
}

// ListOrders returns the current user's orders
func (c *Client) ListOrders(ctx context.Context, q catalog.OrderQuery) (*catalog.OrderPage, error) {
	query := url.Values{}
	if q.Page > 0 {
		query.Set("page", strconv.Itoa(q.Page))
	}
	if q.PageSize > 0 {
		query.Set("pageSize", strconv.Itoa(q.PageSize))
	}
	if q.Status != "" {
		query.Set("status", string(q.Status))
	}

	page, err := call[*catalog.OrderPage](c, ctx, "list_orders", request{
		method: http.MethodGet,
		path:   "/orders",
		query:  query,
	})
	if err != nil {
		return nil, err
	}
	if page == nil {
		page = &catalog.OrderPage{}
	}
	return page, nil
}

// CancelOrder cancels a pending order
func (c *Client) CancelOrder(ctx context.Context, id string) error {
	_, err := call[struct{}](c, ctx, "cancel_order", request{
		method:     http.MethodPost,
		path:       "/orders/" + url.PathEscape(id) + "/cancel",
		maxRetries: retries(c.orderRetries),
	})
	if err == nil {
		c.dashboard.InvalidateAll()
	}
	return err
}

type statusUpdate struct {
	Status catalog.OrderStatus `json:"status"`
}

// UpdateOrderStatus moves an order through its lifecycle (admin)
func (c *Client) UpdateOrderStatus(ctx context.Context, id string, status catalog.OrderStatus) error {
	if !status.Valid() {
		return fmt.Errorf("invalid order status %q", status)
	}
	_, err := call[struct{}](c, ctx, "update_order_status", request{
		method: http.MethodPut,
		path:   "/admin/orders/" + url.PathEscape(id) + "/status",
		body:   statusUpdate{Status: status},
	})
	if err == nil {
		c.dashboard.InvalidateAll()
	}
	return err
}
