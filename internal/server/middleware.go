package server

import (
	"crypto/subtle"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/felixge/httpsnoop"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/afroash/envdash/internal/metrics"
)

// requestLogger logs each request and records its metrics under the route template
func requestLogger(logger zerolog.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			route := r.URL.Path
			if current := mux.CurrentRoute(r); current != nil {
				if tmpl, err := current.GetPathTemplate(); err == nil {
					route = tmpl
				}
			}

			m := httpsnoop.CaptureMetrics(next, w, r)

			metrics.HTTPRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(m.Code)).Inc()
			metrics.HTTPRequestDurationSeconds.WithLabelValues(r.Method, route).Observe(m.Duration.Seconds())

			event := logger.Debug()
			if m.Code >= http.StatusInternalServerError {
				event = logger.Error()
			}
			event.
				Str("method", r.Method).
				Str("route", route).
				Str("query", r.URL.RawQuery).
				Int("status", m.Code).
				Int64("bytes", m.Written).
				Dur("duration", m.Duration).
				Str("remote_addr", r.RemoteAddr).
				Msg("HTTP request")
		})
	}
}

// requireToken rejects requests without the bearer token. An empty token disables the check.
func requireToken(token string, logger zerolog.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		if token == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !validateToken(r.Header.Get("Authorization"), token) {
				logger.Warn().Str("remote_addr", r.RemoteAddr).Str("path", r.URL.Path).Msg("Rejected request: bad or missing token")
				writeJSON(w, http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// validateToken checks a "Bearer <token>" header
func validateToken(authHeader, token string) bool {
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return false
	}
	got := strings.TrimPrefix(authHeader, "Bearer ")
	return subtle.ConstantTimeCompare([]byte(got), []byte(token)) == 1
}

// rateLimit answers 429 once the shared limiter is exhausted. A nil limiter disables limiting.
func rateLimit(limiter *rate.Limiter, transport string) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		if limiter == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.Allow() {
				metrics.IngestTotal.WithLabelValues(transport, "rate_limited").Inc()
				w.Header().Set("Retry-After", "1")
				writeJSON(w, http.StatusTooManyRequests, ErrorResponse{Error: "rate limit exceeded"})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// recoveryLogger adapts zerolog to handlers.RecoveryHandlerLogger
type recoveryLogger struct {
	logger zerolog.Logger
}

func (l recoveryLogger) Println(v ...interface{}) {
	l.logger.Error().Msg(strings.TrimSpace(fmt.Sprintln(v...)))
}
