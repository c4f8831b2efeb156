package chi

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/marcelsud/webhook-dispatch/internal/user"
	"github.com/marcelsud/webhook-dispatch/ratelimit"
	"github.com/marcelsud/webhook-dispatch/webhook"
	"github.com/rs/zerolog"
)

// eventRequest fires a domain event at every subscribed webhook
type eventRequest struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type eventResponse struct {
	Event     string `json:"event"`
	Scheduled int    `json:"scheduled"`
}

type loginRequest struct {
	UserID   string `json:"user_id"`
	Password string `json:"password"`
}

type healthResponse struct {
	Status    string          `json:"status"`
	RateLimit rateLimitHealth `json:"rate_limit"`
}

type rateLimitHealth struct {
	Mode    string `json:"mode"`
	Healthy bool   `json:"healthy"`
	Error   string `json:"error,omitempty"`
}

// health handles GET /health; an unreachable limiter store degrades but never fails the check
func health(limiter *ratelimit.Limiter) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp := healthResponse{
			Status:    "healthy",
			RateLimit: rateLimitHealth{Mode: ratelimit.Disabled.String(), Healthy: true},
		}
		if limiter != nil {
			resp.RateLimit.Mode = limiter.Mode().String()
			if err := limiter.HealthCheck(r.Context()); err != nil {
				resp.Status = "degraded"
				resp.RateLimit.Healthy = false
				resp.RateLimit.Error = err.Error()
			}
		}
		writeJSON(w, http.StatusOK, resp)
	})
}

// postEvent handles POST /v1/events
func postEvent(dispatcher Dispatcher, logger zerolog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req eventRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_body", "request body must be a JSON object", nil)
			return
		}

		event, err := webhook.NewEventType(req.Event)
		if err != nil {
			writeError(w, http.StatusBadRequest, "validation_error", err.Error(), map[string]any{"field": "event"})
			return
		}
		if len(req.Data) == 0 {
			req.Data = json.RawMessage(`{}`)
		}

		scheduled, err := dispatcher.Dispatch(r.Context(), event, req.Data)
		if err != nil {
			writeDomainError(w, logger, err)
			return
		}
		writeJSON(w, http.StatusAccepted, eventResponse{Event: event.String(), Scheduled: scheduled})
	})
}

// cronCleanup handles POST /v1/cron/cleanup, authorized by the shared cron secret
func cronCleanup(service webhook.UseCase, secret string, logger zerolog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if secret == "" {
			writeError(w, http.StatusNotFound, "not_found", "cron endpoint is disabled", nil)
			return
		}
		if !bearerMatches(r, secret) {
			writeError(w, http.StatusUnauthorized, "unauthorized", "invalid cron secret", nil)
			return
		}

		deleted, err := service.CleanupOldLogs(r.Context())
		if err != nil {
			writeDomainError(w, logger, err)
			return
		}
		logger.Info().Int64("deleted", deleted).Msg("old delivery logs cleaned up")
		writeJSON(w, http.StatusOK, map[string]int64{"deleted": deleted})
	})
}

// resetLimit handles DELETE /v1/ratelimit/{identifier}; the identifier is the scoped key, e.g. login:ip:10.0.0.1
func resetLimit(limiter *ratelimit.Limiter, logger zerolog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identifier := chi.URLParam(r, "identifier")
		if identifier == "" {
			writeError(w, http.StatusBadRequest, "validation_error", "identifier is required", nil)
			return
		}
		if limiter == nil {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		if err := limiter.Reset(r.Context(), identifier); err != nil {
			logger.Error().Err(err).Str("identifier", identifier).Msg("resetting rate limit")
			writeError(w, http.StatusServiceUnavailable, "store_unavailable", "rate limit store is unavailable", nil)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})
}

/* login handles POST /v1/auth/login
 * A bearer token is issued only when tokens are configured and password matches the shared credential
 * Without a credential no token is ever issued, so user-scoped windows cannot be minted at will
 */
func login(tokens *user.TokenService, password string, logger zerolog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req loginRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserID == "" {
			writeError(w, http.StatusBadRequest, "validation_error", "user_id is required", map[string]any{"field": "user_id"})
			return
		}
		if tokens == nil || password == "" {
			writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
			return
		}
		if subtle.ConstantTimeCompare([]byte(req.Password), []byte(password)) != 1 {
			writeError(w, http.StatusUnauthorized, "unauthorized", "invalid credentials", nil)
			return
		}

		token, err := tokens.Generate(req.UserID)
		if err != nil {
			logger.Error().Err(err).Msg("generating token")
			writeError(w, http.StatusInternalServerError, "internal_error", "internal server error", nil)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "token": token})
	})
}

// accepted is a placeholder for product endpoints that only need rate limiting
func accepted(name string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "route": name})
	})
}

// requireBearer protects the operator API; an empty token leaves it open
func requireBearer(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token != "" && !bearerMatches(r, token) {
				writeError(w, http.StatusUnauthorized, "unauthorized", "invalid admin token", nil)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func bearerMatches(r *http.Request, expected string) bool {
	got, ok := user.BearerToken(r)
	if !ok {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(got), []byte(expected)) == 1
}
