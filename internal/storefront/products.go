package storefront

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"golang.org/x/sync/errgroup"

	"github.com/agatticelli/flower-shop/internal/catalog"
	"github.com/agatticelli/flower-shop/internal/platform/cache"
)

// batchConcurrency bounds parallel product fetches in GetProducts
const batchConcurrency = 4

// ListProducts returns a page of products (cached)
func (c *Client) ListProducts(ctx context.Context, q catalog.ProductQuery) (*catalog.ProductPage, error) {
	return c.products.Call(ctx, q.Normalize())
}

// GetProduct returns one product (cached)
func (c *Client) GetProduct(ctx context.Context, id string) (*catalog.Product, error) {
	if id == "" {
		return nil, errors.New("product id is required")
	}
	return c.product.Call(ctx, id)
}

// GetProducts fetches several products concurrently, preserving order.
// Any failure cancels the rest.
func (c *Client) GetProducts(ctx context.Context, ids []string) ([]catalog.Product, error) {
	out := make([]catalog.Product, len(ids))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(batchConcurrency)

	for i, id := range ids {
		g.Go(func() error {
			p, err := c.GetProduct(gctx, id)
			if err != nil {
				return fmt.Errorf("product %s: %w", id, err)
			}
			out[i] = *p
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// ListCategories returns all categories (cached)
func (c *Client) ListCategories(ctx context.Context) ([]catalog.Category, error) {
	return c.categories.Call(ctx, struct{}{})
}

// CreateProduct adds a product (admin). Catalogue listings are invalidated.
func (c *Client) CreateProduct(ctx context.Context, p catalog.Product) (*catalog.Product, error) {
	created, err := call[*catalog.Product](c, ctx, "create_product", request{
		method: http.MethodPost,
		path:   "/admin/products",
		body:   p,
	})
	if err != nil {
		return nil, err
	}
	c.invalidateCatalogue()
	return created, nil
}

// UpdateProduct replaces a product (admin)
func (c *Client) UpdateProduct(ctx context.Context, p catalog.Product) (*catalog.Product, error) {
	if p.ID == "" {
		return nil, errors.New("product id is required")
	}
	updated, err := call[*catalog.Product](c, ctx, "update_product", request{
		method: http.MethodPut,
		path:   "/admin/products/" + url.PathEscape(p.ID),
		body:   p,
	})
	if err != nil {
		return nil, err
	}
	c.product.Invalidate(p.ID)
	c.invalidateCatalogue()
	return updated, nil
}

// DeleteProduct removes a product (admin)
func (c *Client) DeleteProduct(ctx context.Context, id string) error {
	_, err := call[struct{}](c, ctx, "delete_product", request{
		method: http.MethodDelete,
		path:   "/admin/products/" + url.PathEscape(id),
	})
	if err != nil {
		return err
	}
	c.product.Invalidate(id)
	c.invalidateCatalogue()
	return nil
}

// invalidateCatalogue drops listings, categories and dashboard stats
func (c *Client) invalidateCatalogue() {
	c.products.InvalidateAll()
	c.categories.InvalidateAll()
	c.dashboard.InvalidateAll()
}

func (c *Client) fetchProducts(ctx context.Context, q catalog.ProductQuery) (*catalog.ProductPage, error) {
	query := url.Values{}
	query.Set("page", strconv.Itoa(q.Page))
	query.Set("pageSize", strconv.Itoa(q.PageSize))
	if q.CategoryID != "" {
		query.Set("categoryId", q.CategoryID)
	}
	if q.Search != "" {
		query.Set("keyword", q.Search)
	}

	page, err := call[*catalog.ProductPage](c, ctx, "list_products", request{
		method: http.MethodGet,
		path:   "/products",
		query:  query,
	})
	if err != nil {
		return nil, err
	}
	if page == nil {
		page = &catalog.ProductPage{}
	}
	if page.Page == 0 {
		page.Page = q.Page
	}
	if page.PageSize == 0 {
		page.PageSize = q.PageSize
	}
	return page, nil
}

func (c *Client) fetchProduct(ctx context.Context, id string) (*catalog.Product, error) {
	p, err := call[*catalog.Product](c, ctx, "get_product", request{
		method: http.MethodGet,
		path:   "/products/" + url.PathEscape(id),
	})
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, fmt.Errorf("get_product: empty response for %s", id)
	}
	return p, nil
}

func (c *Client) fetchCategories(ctx context.Context, _ struct{}) ([]catalog.Category, error) {
	return call[[]catalog.Category](c, ctx, "list_categories", request{
		method: http.MethodGet,
		path:   "/categories",
	})
}

// WarmupProviders returns cache warmers for the first catalogue page and
// the category list.
func (c *Client) WarmupProviders() []cache.WarmupProvider {
	return []cache.WarmupProvider{
		cache.ProviderFunc{ProviderName: "products", Fn: func(ctx context.Context) error {
			_, err := c.ListProducts(ctx, catalog.ProductQuery{})
			return err
		}},
		cache.ProviderFunc{ProviderName: "categories", Fn: func(ctx context.Context) error {
			_, err := c.ListCategories(ctx)
			return err
		}},
	}
}
