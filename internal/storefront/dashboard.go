package storefront

import (
	"context"
	"net/http"

	"github.com/agatticelli/flower-shop/internal/catalog"
)

// GetDashboardStats returns the admin overview (cached briefly)
func (c *Client) GetDashboardStats(ctx context.Context) (*catalog.DashboardStats, error) {
	return c.dashboard.Call(ctx, struct{}{})
}

func (c *Client) fetchDashboard(ctx context.Context, _ struct{}) (*catalog.DashboardStats, error) {
	stats, err := call[*catalog.DashboardStats](c, ctx, "dashboard_stats", request{
		method: http.MethodGet,
		path:   "/admin/dashboard/stats",
	})
	if err != nil {
		return nil, err
	}
	if stats == nil {
		stats = &catalog.DashboardStats{}
	}
	return stats, nil
}
