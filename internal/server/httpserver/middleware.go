package httpserver

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sudheendrakatikar/exsim/internal/core/domain"
)

// Middleware wraps an http.Handler.
type Middleware func(http.Handler) http.Handler

// Chain applies middlewares with the first one outermost.
func Chain(h http.Handler, middlewares ...Middleware) http.Handler {
	for i := len(middlewares) - 1; i >= 0; i-- {
		h = middlewares[i](h)
	}
	return h
}

type requestIDKey struct{}

// RequestIDFrom returns the request ID stored by RequestID, or "".
func RequestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.Reader, 0)
)

// RequestID keeps the caller's X-Request-ID or assigns a ULID, and echoes
// it in the response.
func RequestID() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get("X-Request-ID")
			if id == "" {
				entropyMu.Lock()
				id = ulid.MustNew(ulid.Now(), entropy).String()
				entropyMu.Unlock()
			}
			w.Header().Set("X-Request-ID", id)
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey{}, id)))
		})
	}
}

// AccessLog logs each request. Successful requests are logged at debug
// since /metrics is scraped continuously.
func AccessLog(logger *slog.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(sw, r)

			level := slog.LevelDebug
			switch {
			case sw.status >= 500:
				level = slog.LevelError
			case sw.status >= 400:
				level = slog.LevelWarn
			}
			logger.Log(r.Context(), level, "management request",
				"request_id", RequestIDFrom(r.Context()),
				"method", r.Method,
				"path", r.URL.Path,
				"status", sw.status,
				"duration", time.Since(start),
				"client", clientHost(r))
		})
	}
}

// Recover turns a handler panic into a 500 with the runtime error code.
func Recover(logger *slog.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if v := recover(); v != nil {
					logger.Error("management handler panicked",
						"request_id", RequestIDFrom(r.Context()),
						"path", r.URL.Path,
						"panic", v)
					writeError(w, http.StatusInternalServerError, domain.ErrRuntime.Code, "internal server error")
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// Instrument counts requests and observes their latency on reg.
func Instrument(reg prometheus.Registerer) Middleware {
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "exsim",
		Subsystem: "management",
		Name:      "http_requests_total",
		Help:      "Management HTTP requests, by method and status code.",
	}, []string{"method", "code"})
	latency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "exsim",
		Subsystem: "management",
		Name:      "http_request_duration_seconds",
		Help:      "Management HTTP request latency.",
		Buckets:   []float64{.001, .005, .01, .05, .1, .5, 1},
	}, []string{"method"})
	reg.MustRegister(requests, latency)

	return func(next http.Handler) http.Handler {
		return promhttp.InstrumentHandlerCounter(requests,
			promhttp.InstrumentHandlerDuration(latency, next))
	}
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// clientHost is the peer host of the request. The management endpoint is
// not meant to sit behind a proxy, so forwarding headers are ignored.
func clientHost(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("X-Error-Code", code)
	writeJSON(w, status, map[string]string{"code": code, "message": message})
}
