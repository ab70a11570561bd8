package httpx

import (
	"crypto/subtle"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/ariefcatur/order-lifecycle/internal/logging"
	"github.com/ariefcatur/order-lifecycle/internal/metrics"
)

// Observe puts a request-scoped logger in the context, echoes the request
// id and records one access log line and latency sample per request.
func Observe(base *zap.Logger, m *metrics.Metrics) func(http.Handler) http.Handler {
	if base == nil {
		base = zap.NewNop()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rid := middleware.GetReqID(r.Context())
			if rid != "" {
				w.Header().Set(middleware.RequestIDHeader, rid)
			}
			log := base.With(zap.String("request_id", rid))
			ctx := logging.ContextWithLogger(r.Context(), log)

			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(ctx))

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			route := routePattern(r)
			took := time.Since(start)
			m.ObserveHTTP(route, r.Method, strconv.Itoa(status), took.Seconds())
			log.Info("http request",
				zap.String("method", r.Method),
				zap.String("route", route),
				zap.Int("status", status),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("took", took),
			)
		})
	}
}

// routePattern is the matched chi template, which keeps metric labels
// low-cardinality.
func routePattern(r *http.Request) string {
	if rc := chi.RouteContext(r.Context()); rc != nil {
		if p := rc.RoutePattern(); p != "" {
			return p
		}
	}
	return "unmatched"
}

// RequireServiceToken guards internal routes with a shared bearer token.
func RequireServiceToken(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := r.Header.Get("Authorization")
			if h == "" {
				writeJSON(w, http.StatusUnauthorized, ErrorResponse{Error: "UNAUTHORIZED", Message: "authorization header missing"})
				return
			}
			got, ok := strings.CutPrefix(h, "Bearer ")
			if !ok || subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
				writeJSON(w, http.StatusForbidden, ErrorResponse{Error: "FORBIDDEN", Message: "invalid service token"})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
