package apierr

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"testing"
)

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

var _ net.Error = timeoutErr{}

func TestClassify(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		kind      Kind
		status    int
		retryable bool
	}{
		{"bad request", &StatusError{Status: 400}, KindClient, 400, false},
		{"unauthorized", &StatusError{Status: 401}, KindClient, 401, false},
		{"not found wrapped", fmt.Errorf("get product: %w", &StatusError{Status: 404}), KindClient, 404, false},
		{"too many requests", &StatusError{Status: 429}, KindClient, 429, true},
		{"internal", &StatusError{Status: 500}, KindServer, 500, true},
		{"bad gateway", &StatusError{Status: 502}, KindServer, 502, true},
		{"net timeout", timeoutErr{}, KindNetwork, 0, true},
		{"url error", &url.Error{Op: "Get", URL: "http://x", Err: errors.New("connection refused")}, KindNetwork, 0, true},
		{"deadline", context.DeadlineExceeded, KindNetwork, 0, true},
		{"canceled", context.Canceled, KindUnknown, 0, false},
		{"plain", errors.New("boom"), KindUnknown, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := Classify(tt.err)
			if e.Kind != tt.kind {
				t.Errorf("kind = %s, want %s", e.Kind, tt.kind)
			}
			if e.Status != tt.status {
				t.Errorf("status = %d, want %d", e.Status, tt.status)
			}
			if got := IsRetryable(tt.err); got != tt.retryable {
				t.Errorf("IsRetryable = %v, want %v", got, tt.retryable)
			}
			if !errors.Is(e, tt.err) && e.Err != nil {
				t.Errorf("classified error does not wrap original")
			}
		})
	}
}

func TestClassifyIdempotent(t *testing.T) {
	first := Classify(&StatusError{Status: 503})
	second := Classify(fmt.Errorf("wrapped: %w", first))
	if first != second {
		t.Error("Classify should return the already-classified error")
	}
	if Classify(nil) != nil {
		t.Error("Classify(nil) should be nil")
	}
}

func TestUserMessage(t *testing.T) {
	tests := []struct {
		err  *Error
		want string
	}{
		{FromStatus(401, ""), "Your session has expired, please sign in again"},
		{FromStatus(403, ""), "You do not have permission to do that"},
		{FromStatus(404, ""), "The requested resource was not found"},
		{FromStatus(422, "name is required"), "name is required"},
		{FromStatus(500, "db down"), "Server error, please try again later"},
		{&Error{Kind: KindNetwork}, "Network unavailable, please check your connection"},
		{&Error{Kind: KindUnknown}, "Something went wrong, please try again"},
	}

	for _, tt := range tests {
		if got := tt.err.UserMessage(); got != tt.want {
			t.Errorf("%v: UserMessage = %q, want %q", tt.err, got, tt.want)
		}
	}
}

func TestHTTPStatus(t *testing.T) {
	if got := HTTPStatus(FromStatus(404, "")); got != http.StatusNotFound {
		t.Errorf("got %d, want 404", got)
	}
	if got := HTTPStatus(FromStatus(500, "")); got != http.StatusBadGateway {
		t.Errorf("got %d, want 502", got)
	}
	if got := HTTPStatus(timeoutErr{}); got != http.StatusServiceUnavailable {
		t.Errorf("got %d, want 503", got)
	}
	if !IsUnauthorized(fmt.Errorf("x: %w", &StatusError{Status: 401})) {
		t.Error("expected IsUnauthorized")
	}
	if !IsNotFound(FromStatus(404, "")) {
		t.Error("expected IsNotFound")
	}
}
