// Package catalog holds the shop's domain types as exchanged with the
// backend: products, categories, orders and sessions.
package catalog

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/agatticelli/flower-shop/internal/money"
)

// Product is a sellable item
type Product struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	Description   string    `json:"description,omitempty"`
	Price         money.USD `json:"price"`
	StockQuantity int       `json:"stockQuantity"`
	ImageURL      string    `json:"imageUrl,omitempty"`
	CategoryID    string    `json:"categoryId,omitempty"`
	CategoryName  string    `json:"categoryName,omitempty"`
	Status        string    `json:"status,omitempty"` // active, inactive
}

// InStock reports whether at least one unit is available
func (p Product) InStock() bool {
	return p.StockQuantity > 0
}

// Category groups products
type Category struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Description  string `json:"description,omitempty"`
	ProductCount int    `json:"productCount,omitempty"`
}

// ProductQuery filters and paginates product listings
type ProductQuery struct {
	Page       int    `json:"page,omitempty"`
	PageSize   int    `json:"pageSize,omitempty"`
	CategoryID string `json:"categoryId,omitempty"`
	Search     string `json:"search,omitempty"`
}

// Normalize fills paging defaults
func (q ProductQuery) Normalize() ProductQuery {
	if q.Page < 1 {
		q.Page = 1
	}
	if q.PageSize < 1 {
		q.PageSize = 12
	}
	q.Search = strings.TrimSpace(q.Search)
	return q
}

// CacheKey is a stable key for this query
func (q ProductQuery) CacheKey() string {
	q = q.Normalize()
	return fmt.Sprintf("page=%d&size=%d&category=%s&q=%s", q.Page, q.PageSize, q.CategoryID, q.Search)
}

// ProductPage is one page of a product listing
type ProductPage struct {
	Items    []Product `json:"list"`
	Total    int       `json:"total"`
	Page     int       `json:"page"`
	PageSize int       `json:"pageSize"`
}

// OrderStatus is the lifecycle state of an order
type OrderStatus string

const (
	OrderPending   OrderStatus = "pending"
	OrderPaid      OrderStatus = "paid"
	OrderShipped   OrderStatus = "shipped"
	OrderCompleted OrderStatus = "completed"
	OrderCancelled OrderStatus = "cancelled"
)

// Valid reports whether s is a known status
func (s OrderStatus) Valid() bool {
	switch s {
	case OrderPending, OrderPaid, OrderShipped, OrderCompleted, OrderCancelled:
		return true
	}
	return false
}

// UnmarshalJSON rejects unknown statuses
func (s *OrderStatus) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	status := OrderStatus(strings.ToLower(raw))
	if !status.Valid() {
		return fmt.Errorf("unknown order status %q", raw)
	}
	*s = status
	return nil
}

// OrderItem is a line in an order with its price at order time
type OrderItem struct {
	ProductID   string    `json:"productId"`
	ProductName string    `json:"productName"`
	Quantity    int       `json:"quantity"`
	UnitPrice   money.USD `json:"price"`
}

// Subtotal is UnitPrice × Quantity
func (i OrderItem) Subtotal() money.USD {
	return i.UnitPrice.Mul(i.Quantity)
}

// ShippingInfo is where and to whom an order is delivered
type ShippingInfo struct {
	Name    string `json:"name"`
	Phone   string `json:"phone"`
	Email   string `json:"email,omitempty"`
	Address string `json:"address"`
}

// Validate checks required delivery fields
func (s ShippingInfo) Validate() error {
	switch {
	case strings.TrimSpace(s.Name) == "":
		return fmt.Errorf("shipping name is required")
	case strings.TrimSpace(s.Phone) == "":
		return fmt.Errorf("shipping phone is required")
	case strings.TrimSpace(s.Address) == "":
		return fmt.Errorf("shipping address is required")
	}
	return nil
}

// Order is a placed order
type Order struct {
	ID            string       `json:"id"`
	OrderNumber   string       `json:"orderNo,omitempty"`
	UserID        string       `json:"userId,omitempty"`
	Items         []OrderItem  `json:"items"`
	TotalAmount   money.USD    `json:"totalAmount"`
	Status        OrderStatus  `json:"status"`
	Shipping      ShippingInfo `json:"shipping"`
	PaymentMethod string       `json:"paymentMethod,omitempty"`
	Note          string       `json:"note,omitempty"`
	CreatedAt     time.Time    `json:"createdAt"`
}

// CreateOrderRequest is the payload for placing an order
type CreateOrderRequest struct {
	Items         []OrderItem  `json:"items"`
	TotalAmount   money.USD    `json:"totalAmount"`
	Shipping      ShippingInfo `json:"shipping"`
	PaymentMethod string       `json:"paymentMethod,omitempty"`
	Note          string       `json:"note,omitempty"`
}

// OrderQuery filters an order listing
type OrderQuery struct {
	Page     int         `json:"page,omitempty"`
	PageSize int         `json:"pageSize,omitempty"`
	Status   OrderStatus `json:"status,omitempty"`
}

// OrderPage is one page of orders
type OrderPage struct {
	Items []Order `json:"list"`
	Total int     `json:"total"`
}

// DashboardStats is the admin overview
type DashboardStats struct {
	TotalOrders   int       `json:"totalOrders"`
	TotalRevenue  money.USD `json:"totalRevenue"`
	TotalProducts int       `json:"totalProducts"`
	TotalUsers    int       `json:"totalUsers"`
	PendingOrders int       `json:"pendingOrders"`
	LowStockCount int       `json:"lowStockCount"`
}

// User is an authenticated account
type User struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Role     string `json:"role"` // customer, admin
}

// IsAdmin reports whether the user may call admin endpoints
func (u User) IsAdmin() bool {
	return u.Role == "admin"
}

// Session is the result of a successful login
type Session struct {
	Token string `json:"token"`
	User  User   `json:"user"`
}
