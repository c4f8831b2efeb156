package chi

import (
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/marcelsud/webhook-dispatch/internal/user"
	"github.com/marcelsud/webhook-dispatch/ratelimit"
	"github.com/marcelsud/webhook-dispatch/routes"
	"github.com/rs/zerolog"
)

const (
	HeaderLimit      = "X-RateLimit-Limit"
	HeaderRemaining  = "X-RateLimit-Remaining"
	HeaderReset      = "X-RateLimit-Reset"
	HeaderRetryAfter = "Retry-After"
)

const unknownClient = "unknown"

/* RateLimit guards every request whose method and path match a loaded policy
 * The identifier is scoped by route_id, so each policy keeps its own window
 * Every response on a protected route carries the X-RateLimit-* headers; a disabled limiter reports the full limit
 */
func RateLimit(limiter *ratelimit.Limiter, loader *routes.Loader, logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if loader == nil || limiter == nil {
				next.ServeHTTP(w, r)
				return
			}
			route, ok := loader.Match(r.Method, r.URL.Path)
			if !ok {
				next.ServeHTTP(w, r)
				return
			}

			identifier, ok := identify(r, route.Identify)
			if !ok {
				writeError(w, http.StatusUnauthorized, "unauthorized", "authentication required", nil)
				return
			}

			result := limiter.Check(r.Context(), ratelimit.Key(route.RouteID, identifier), route.Limit, route.Window())
			setRateLimitHeaders(w, result)

			if !result.Allowed {
				retryAfter := int(result.RetryAfter(limiter.Now()) / time.Second)
				logger.Info().
					Str("route_id", route.RouteID).
					Str("identifier", identifier).
					Int("retry_after_seconds", retryAfter).
					Msg("rate limit exceeded")

				w.Header().Set(HeaderRetryAfter, strconv.Itoa(retryAfter))
				writeError(w, http.StatusTooManyRequests, "rate_limited",
					"too many requests, retry in "+strconv.Itoa(retryAfter)+" seconds",
					map[string]any{"retry_after_seconds": retryAfter})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func setRateLimitHeaders(w http.ResponseWriter, result ratelimit.Result) {
	w.Header().Set(HeaderLimit, strconv.Itoa(result.Limit))
	w.Header().Set(HeaderRemaining, strconv.Itoa(result.Remaining))
	w.Header().Set(HeaderReset, result.ResetAt.UTC().Format(time.RFC3339))
}

// identify builds "user:<id>" or "ip:<addr>"; false means the policy needs a user and there is none
func identify(r *http.Request, mode routes.Identify) (string, bool) {
	userID, authenticated := user.FromContext(r.Context())
	switch mode {
	case routes.ByUser:
		if !authenticated {
			return "", false
		}
		return "user:" + userID, true
	case routes.ByIP:
		return "ip:" + ClientIP(r), true
	default:
		if authenticated {
			return "user:" + userID, true
		}
		return "ip:" + ClientIP(r), true
	}
}

// ClientIP prefers the first X-Forwarded-For entry, then X-Real-IP, then the peer address
func ClientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil && host != "" {
		return host
	}
	if r.RemoteAddr != "" {
		return r.RemoteAddr
	}
	return unknownClient
}
