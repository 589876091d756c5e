package server

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/agatticelli/flower-shop/internal/cart"
)

const (
	sessionHeader = "X-Session-ID"
	sessionCookie = "sid"
	maxBodyBytes  = 1 << 20
)

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// instrument traces and measures every request by its route pattern
func (s *Server) instrument(next *http.ServeMux) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		_, pattern := next.Handler(r)
		if pattern == "" {
			pattern = "unmatched"
		}

		ctx, span := s.tracer.StartSpan(r.Context(), "HTTP "+pattern,
			attribute.String("http.method", r.Method),
			attribute.String("http.route", pattern),
		)
		defer span.End()

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		r.Body = http.MaxBytesReader(rec, r.Body, maxBodyBytes)
		next.ServeHTTP(rec, r.WithContext(ctx))

		duration := time.Since(start)
		span.SetAttributes(attribute.Int("http.status_code", rec.status))
		s.metrics.RecordHTTPRequest(ctx, pattern, rec.status, duration)
		s.logger.LogDebug(ctx, "HTTP request",
			"method", r.Method,
			"route", pattern,
			"status", rec.status,
			"duration_ms", duration.Milliseconds(),
		)
	})
}

// sessionID reads the session from the header or cookie, issuing a new
// cookie when neither is present.
func sessionID(w http.ResponseWriter, r *http.Request) string {
	if id := r.Header.Get(sessionHeader); id != "" {
		return id
	}
	if c, err := r.Cookie(sessionCookie); err == nil && c.Value != "" {
		return c.Value
	}

	id := uuid.NewString()
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	w.Header().Set(sessionHeader, id)
	return id
}

type cartHandler func(w http.ResponseWriter, r *http.Request, session string, c *cart.Store)

// withCart resolves the session's cart before calling h
func (s *Server) withCart(h cartHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		session := sessionID(w, r)
		c, err := s.cfg.Carts.Get(r.Context(), session)
		if err != nil {
			s.writeError(r.Context(), w, err)
			return
		}
		h(w, r, session, c)
	}
}
