package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/agatticelli/flower-shop/internal/checkout"
	"github.com/agatticelli/flower-shop/internal/platform/apierr"
	"github.com/agatticelli/flower-shop/internal/platform/resilience"
)

// errorBody is the JSON error response
type errorBody struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

var errBadRequest = errors.New("malformed request body")

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return errors.Join(errBadRequest, err)
	}
	return nil
}

// writeError maps err to a status and a shopper-facing message
func (s *Server) writeError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, errBadRequest):
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error(), Kind: "request"})
		return
	case errors.Is(err, checkout.ErrNothingSelected):
		writeJSON(w, http.StatusUnprocessableEntity, errorBody{Error: "Select at least one item to check out", Kind: "checkout"})
		return
	case errors.Is(err, checkout.ErrInvalidShipping):
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error(), Kind: "checkout"})
		return
	case errors.Is(err, resilience.ErrCircuitOpen):
		writeJSON(w, http.StatusServiceUnavailable, errorBody{Error: "Service temporarily unavailable, please try again shortly", Kind: "unavailable"})
		return
	case errors.Is(err, context.Canceled):
		// client went away
		return
	}

	classified := apierr.Classify(err)
	status := apierr.HTTPStatus(classified)
	if status >= 500 {
		s.logger.LogError(ctx, "Request failed", err, "status", status)
	} else {
		s.logger.LogWarn(ctx, "Request rejected upstream", "status", status, "error", err)
	}
	s.metrics.RecordError(ctx, classified.Kind.String())
	writeJSON(w, status, errorBody{Error: classified.UserMessage(), Kind: classified.Kind.String()})
}
