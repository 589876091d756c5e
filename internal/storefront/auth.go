package storefront

import (
	"context"
	"errors"
	"net/http"
	"sync"

	"github.com/agatticelli/flower-shop/internal/catalog"
)

// TokenSource holds the bearer credential sent to the backend
type TokenSource interface {
	Token() string
	SetToken(token string)
	Clear()
}

// MemoryTokenSource is a process-local TokenSource
type MemoryTokenSource struct {
	mu    sync.RWMutex
	token string
}

// NewMemoryTokenSource creates an empty token source
func NewMemoryTokenSource() *MemoryTokenSource {
	return &MemoryTokenSource{}
}

func (m *MemoryTokenSource) Token() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.token
}

func (m *MemoryTokenSource) SetToken(token string) {
	m.mu.Lock()
	m.token = token
	m.mu.Unlock()
}

func (m *MemoryTokenSource) Clear() {
	m.SetToken("")
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Login authenticates and stores the returned token. Credentials
// failures are never retried.
func (c *Client) Login(ctx context.Context, username, password string) (*catalog.Session, error) {
	session, err := call[*catalog.Session](c, ctx, "login", request{
		method:     http.MethodPost,
		path:       "/auth/login",
		body:       loginRequest{Username: username, Password: password},
		maxRetries: retries(0),
	})
	if err != nil {
		return nil, err
	}
	if session == nil || session.Token == "" {
		return nil, errors.New("login: backend returned no token")
	}
	c.tokens.SetToken(session.Token)
	c.logger.LogInfo(ctx, "Signed in to backend", "user", session.User.Username)
	return session, nil
}

// Logout ends the backend session. The local token is cleared even if
// the backend call fails.
func (c *Client) Logout(ctx context.Context) error {
	defer c.tokens.Clear()

	_, err := call[struct{}](c, ctx, "logout", request{
		method:     http.MethodPost,
		path:       "/auth/logout",
		maxRetries: retries(0),
	})
	return err
}
