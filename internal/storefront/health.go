package storefront

import (
	"time"

	"github.com/agatticelli/flower-shop/internal/platform/resilience"
)

// Health is the backend connection state as seen by this client. It feeds
// the /health and /ready endpoints.
type Health struct {
	Backend             string        `json:"backend"`
	LastSuccess         time.Time     `json:"lastSuccess,omitzero"`
	LastFailure         time.Time     `json:"lastFailure,omitzero"`
	LastError           string        `json:"lastError,omitempty"`
	LastDuration        time.Duration `json:"lastDurationNs"`
	ConsecutiveFailures int           `json:"consecutiveFailures"`
	CircuitState        string        `json:"circuitState"`
}

// Health returns the current backend health
func (c *Client) Health() Health {
	c.healthMu.RLock()
	defer c.healthMu.RUnlock()
	h := c.health
	h.CircuitState = c.cb.State().String()
	return h
}

// Ready reports whether the client is willing to send traffic
func (c *Client) Ready() bool {
	return c.cb.State() != resilience.StateOpen
}

func (c *Client) recordHealth(err error, duration time.Duration) {
	c.healthMu.Lock()
	defer c.healthMu.Unlock()

	c.health.LastDuration = duration
	if err == nil {
		c.health.LastSuccess = time.Now()
		c.health.LastError = ""
		c.health.ConsecutiveFailures = 0
		return
	}

	c.health.LastFailure = time.Now()
	c.health.LastError = err.Error()
	c.health.ConsecutiveFailures++
}
