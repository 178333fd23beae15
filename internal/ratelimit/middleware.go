package ratelimit

import (
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/noah-isme/candle-checkout/internal/common"
	"github.com/noah-isme/candle-checkout/internal/obs"
)

// Config describes how to derive a rate limit key and what to tell denied clients.
type Config struct {
	Key     func(*http.Request) string
	Message string
	Route   string
}

// Handler enforces rate limits before delegating to the next handler.
type Handler struct {
	Limiter   Limiter
	Config    Config
	OnError   func(error)
	OnLimited func(*http.Request, Result)
	Now       func() time.Time
}

// Middleware implements the http.Handler middleware interface. Limiter errors
// fail open.
func (h Handler) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.Limiter == nil {
			next.ServeHTTP(w, r)
			return
		}
		keyFn := h.Config.Key
		if keyFn == nil {
			keyFn = common.ClientKey
		}
		res, err := h.Limiter.Check(r.Context(), keyFn(r))
		if err != nil {
			if h.OnError != nil {
				h.OnError(err)
			}
			next.ServeHTTP(w, r)
			return
		}

		headers := w.Header()
		headers.Set("X-RateLimit-Limit", strconv.Itoa(res.Limit))
		headers.Set("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
		headers.Set("X-RateLimit-Reset", strconv.FormatInt(res.ResetAt.Unix(), 10))

		if !res.Allowed {
			retryAfter := int(math.Ceil(res.RetryAfter(h.now()).Seconds()))
			headers.Set("Retry-After", strconv.Itoa(retryAfter))
			obs.CountRateLimited(h.route())
			if h.OnLimited != nil {
				h.OnLimited(r, res)
			}
			common.JSON(w, http.StatusTooManyRequests, common.Failure{
				Success:    false,
				Error:      h.message(),
				RetryAfter: retryAfter,
			})
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (h Handler) now() time.Time {
	if h.Now != nil {
		return h.Now()
	}
	return time.Now()
}

func (h Handler) message() string {
	if h.Config.Message != "" {
		return h.Config.Message
	}
	return "rate limit exceeded"
}

func (h Handler) route() string {
	if h.Config.Route != "" {
		return h.Config.Route
	}
	return "unknown"
}
