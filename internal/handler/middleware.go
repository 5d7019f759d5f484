package handler

import (
	"fmt"
	"net"
	"net/http"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/prn-tf/keygate/internal/metrics"
	"github.com/prn-tf/keygate/internal/pkg/crypto"
)

// RequestIDHeader carries the request ID back to the client.
const RequestIDHeader = "X-Request-ID"

// RequestLogger assigns a request ID, stores a request-scoped logger in the
// context and logs the start and end of every request.
func RequestLogger(logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			requestID := uuid.NewString()
			reqLogger := logger.With().Str("request_id", requestID).Logger()
			ctx := reqLogger.WithContext(r.Context())

			w.Header().Set(RequestIDHeader, requestID)

			reqLogger.Info().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Str("action", r.URL.Query().Get("action")).
				Str("remote_addr", r.RemoteAddr).
				Str("proto", r.Proto).
				Msg("incoming request")

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			defer func() {
				reqLogger.Info().
					Int("status", ww.Status()).
					Int("bytes", ww.BytesWritten()).
					Dur("duration", time.Since(start)).
					Msg("request completed")
			}()

			next.ServeHTTP(ww, r.WithContext(ctx))
		})
	}
}

// PanicHandler recovers from panics in handlers, logs the stack trace and
// answers with a generic failure if nothing was written yet.
func PanicHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww, ok := w.(middleware.WrapResponseWriter)
		if !ok {
			ww = middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		}

		defer func() {
			if p := recover(); p != nil {
				if p == http.ErrAbortHandler {
					panic(p)
				}

				zerolog.Ctx(r.Context()).Error().
					Str("panic", fmt.Sprintf("%v", p)).
					Str("stack_trace", string(debug.Stack())).
					Msg("panic occurred")

				if ww.Status() == 0 {
					writeJSON(ww, r, http.StatusInternalServerError, failure(msgInternalError))
				}
			}
		}()

		next.ServeHTTP(ww, r)
	})
}

// RateLimiter throttles requests per client address with a token bucket.
type RateLimiter struct {
	rps     rate.Limit
	burst   int
	ttl     time.Duration
	metrics *metrics.Metrics

	mu        sync.Mutex
	clients   map[string]*clientLimiter
	lastSweep time.Time
}

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter creates a per-client limiter. Idle clients are forgotten
// after ttl.
func NewRateLimiter(rps float64, burst int, ttl time.Duration, m *metrics.Metrics) *RateLimiter {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &RateLimiter{
		rps:       rate.Limit(rps),
		burst:     burst,
		ttl:       ttl,
		metrics:   m,
		clients:   make(map[string]*clientLimiter),
		lastSweep: time.Now(),
	}
}

// Allow reports whether client may make a request now.
func (rl *RateLimiter) Allow(client string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	if now.Sub(rl.lastSweep) > rl.ttl {
		for k, c := range rl.clients {
			if now.Sub(c.lastSeen) > rl.ttl {
				delete(rl.clients, k)
			}
		}
		rl.lastSweep = now
	}

	c, ok := rl.clients[client]
	if !ok {
		c = &clientLimiter{limiter: rate.NewLimiter(rl.rps, rl.burst)}
		rl.clients[client] = c
	}
	c.lastSeen = now

	return c.limiter.AllowN(now, 1)
}

// Handler implements rate limiting middleware.
func (rl *RateLimiter) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		host, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			host = r.RemoteAddr
		}

		if !rl.Allow(host) {
			zerolog.Ctx(r.Context()).Warn().
				Str("remote_addr", host).
				Str("path", r.URL.Path).
				Msg("rate limit exceeded")
			rl.metrics.IncRateLimited()

			w.Header().Set("Retry-After", "1")
			writeJSON(w, r, http.StatusTooManyRequests, failure(msgTooManyRequests))
			return
		}

		next.ServeHTTP(w, r)
	})
}

// adminAuthorized checks the bearer token against token.
// An empty token disables the check.
func adminAuthorized(r *http.Request, token string) bool {
	if token == "" {
		return true
	}

	header := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(header) < len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return false
	}

	return crypto.ConstantTimeEqual(strings.TrimSpace(header[len(prefix):]), token)
}
