package ratelimiter

import (
	"log/slog"
	"math"
	"net/http"
	"strconv"

	"github.com/dmitrymomot/billingkit/pkg/handler"
	"github.com/dmitrymomot/billingkit/pkg/logger"
)

// DeniedMessage is shown to clients that exceeded their bucket.
const DeniedMessage = "Too many attempts. Please wait a moment and try again."

// KeyFunc picks the bucket for a request. An empty key skips limiting.
type KeyFunc func(r *http.Request) string

// FirstOf returns the first non-empty key.
func FirstOf(fns ...KeyFunc) KeyFunc {
	return func(r *http.Request) string {
		for _, fn := range fns {
			if key := fn(r); key != "" {
				return key
			}
		}
		return ""
	}
}

// Prefixed namespaces a non-empty key.
func Prefixed(prefix string, fn KeyFunc) KeyFunc {
	return func(r *http.Request) string {
		if key := fn(r); key != "" {
			return prefix + key
		}
		return ""
	}
}

// Middleware answers 429 with a JSON envelope once the bucket is empty.
// Store failures are logged and the request goes through.
func Middleware(l *Limiter, key KeyFunc, log *slog.Logger) func(http.Handler) http.Handler {
	if log == nil {
		log = logger.Nop()
	}
	log = log.With(logger.Component("ratelimiter"))

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			k := key(r)
			if k == "" {
				next.ServeHTTP(w, r)
				return
			}
			res, err := l.Allow(r.Context(), k)
			if err != nil {
				log.ErrorContext(r.Context(), "rate limit check failed", logger.Error(err))
				next.ServeHTTP(w, r)
				return
			}

			h := w.Header()
			h.Set("X-RateLimit-Limit", strconv.Itoa(res.Limit))
			h.Set("X-RateLimit-Remaining", strconv.Itoa(max(0, res.Remaining)))
			h.Set("X-RateLimit-Reset", strconv.FormatInt(res.ResetAt.Unix(), 10))
			if res.Allowed() {
				next.ServeHTTP(w, r)
				return
			}

			if secs := int(math.Ceil(res.RetryAfter(l.now()).Seconds())); secs > 0 {
				h.Set("Retry-After", strconv.Itoa(secs))
			}
			log.WarnContext(r.Context(), "rate limit exceeded", slog.String("key", k))
			if err := handler.JSONError(handler.ErrTooManyRequests, DeniedMessage).Render(w, r); err != nil {
				log.ErrorContext(r.Context(), "render rate limit response", logger.Error(err))
			}
		})
	}
}
