// Package apierr classifies failures of calls to the shop backend.
//
// Transport errors are classified once, at the client boundary, into a
// small taxonomy that drives retry decisions and the message shown to
// shoppers.
package apierr

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
)

// Kind is the classification of a failed call.
type Kind int

const (
	// KindUnknown is an unclassified failure.
	KindUnknown Kind = iota
	// KindNetwork means no response was received.
	KindNetwork
	// KindClient is a 4xx response: malformed, unauthorized, forbidden, not found.
	KindClient
	// KindServer is a 5xx response.
	KindServer
)

func (k Kind) String() string {
	switch k {
	case KindNetwork:
		return "network"
	case KindClient:
		return "client"
	case KindServer:
		return "server"
	default:
		return "unknown"
	}
}

// Error is a classified backend failure.
type Error struct {
	Kind    Kind
	Status  int    // HTTP status or envelope code; 0 when no response
	Message string // backend-provided message, if any
	Err     error
}

func (e *Error) Error() string {
	if e.Status != 0 {
		if e.Err != nil {
			return fmt.Sprintf("%s error (status %d): %s: %v", e.Kind, e.Status, e.detail(), e.Err)
		}
		return fmt.Sprintf("%s error (status %d): %s", e.Kind, e.Status, e.detail())
	}
	if e.Err != nil {
		return fmt.Sprintf("%s error: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s error: %s", e.Kind, e.detail())
}

func (e *Error) detail() string {
	if e.Message != "" {
		return e.Message
	}
	return http.StatusText(e.Status)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// UserMessage returns text suitable for showing to a shopper.
func (e *Error) UserMessage() string {
	switch e.Kind {
	case KindNetwork:
		return "Network unavailable, please check your connection"
	case KindServer:
		return "Server error, please try again later"
	case KindClient:
		switch e.Status {
		case http.StatusUnauthorized:
			return "Your session has expired, please sign in again"
		case http.StatusForbidden:
			return "You do not have permission to do that"
		case http.StatusNotFound:
			return "The requested resource was not found"
		case http.StatusTooManyRequests:
			return "Too many requests, please slow down"
		}
		if e.Message != "" {
			return e.Message
		}
		return "The request was invalid"
	default:
		return "Something went wrong, please try again"
	}
}

// StatusError is returned by the transport for a non-2xx HTTP response or a
// non-success envelope code.
type StatusError struct {
	Status  int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("unexpected status %d: %s", e.Status, e.Message)
	}
	return fmt.Sprintf("unexpected status %d", e.Status)
}

// FromStatus builds a classified error for an HTTP status or envelope code.
func FromStatus(status int, message string) *Error {
	return &Error{
		Kind:    kindForStatus(status),
		Status:  status,
		Message: message,
	}
}

func kindForStatus(status int) Kind {
	switch {
	case status >= 400 && status < 500:
		return KindClient
	case status >= 500 && status < 600:
		return KindServer
	default:
		return KindUnknown
	}
}

// Classify converts any error into an *Error. Already-classified errors are
// returned as is. Classify(nil) returns nil.
func Classify(err error) *Error {
	if err == nil {
		return nil
	}

	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr
	}

	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return &Error{
			Kind:    kindForStatus(statusErr.Status),
			Status:  statusErr.Status,
			Message: statusErr.Message,
			Err:     err,
		}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return &Error{Kind: KindNetwork, Err: err}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return &Error{Kind: KindNetwork, Err: err}
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return &Error{Kind: KindNetwork, Err: err}
	}

	return &Error{Kind: KindUnknown, Err: err}
}

// IsRetryable reports whether err is transient. Network and server errors
// are; client errors are not, except 429.
func IsRetryable(err error) bool {
	e := Classify(err)
	if e == nil {
		return false
	}
	if errors.Is(e, context.Canceled) {
		return false
	}

	switch e.Kind {
	case KindNetwork, KindServer:
		return true
	case KindClient:
		return e.Status == http.StatusTooManyRequests
	default:
		return false
	}
}

// IsUnauthorized reports whether err is a 401.
func IsUnauthorized(err error) bool {
	e := Classify(err)
	return e != nil && e.Status == http.StatusUnauthorized
}

// IsNotFound reports whether err is a 404.
func IsNotFound(err error) bool {
	e := Classify(err)
	return e != nil && e.Status == http.StatusNotFound
}

// HTTPStatus maps a classified error to the status our own HTTP surface
// should answer with.
func HTTPStatus(err error) int {
	e := Classify(err)
	if e == nil {
		return http.StatusOK
	}
	switch e.Kind {
	case KindClient:
		return e.Status
	case KindNetwork:
		return http.StatusServiceUnavailable
	case KindServer:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
