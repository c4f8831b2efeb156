package chi

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httplog"
	"github.com/marcelsud/webhook-dispatch/delivery"
	"github.com/marcelsud/webhook-dispatch/internal/user"
	"github.com/marcelsud/webhook-dispatch/ratelimit"
	"github.com/marcelsud/webhook-dispatch/routes"
	"github.com/marcelsud/webhook-dispatch/webhook"
	"github.com/rs/zerolog"
)

// RequestTimeout bounds every route except the webhook test call
const RequestTimeout = 30 * time.Second

// WriteTimeout leaves room for a test call at the largest accepted webhook timeout
func WriteTimeout() time.Duration {
	return webhook.MaxTimeout + RequestTimeout
}

// Dispatcher is the part of the delivery engine the API drives
type Dispatcher interface {
	Dispatch(ctx context.Context, event webhook.EventType, data json.RawMessage) (int, error)
	Test(ctx context.Context, webhookID string) (delivery.TestResult, error)
}

/* Dependencies wires the router
 * Empty AdminToken leaves the admin API open, empty CronSecret disables the cron endpoint
 * Empty LoginPassword turns login into a stub that never issues tokens
 */
type Dependencies struct {
	Webhooks      webhook.UseCase
	Dispatcher    Dispatcher
	Limiter       *ratelimit.Limiter
	Routes        *routes.Loader
	Tokens        *user.TokenService
	Metrics       http.Handler
	Logger        zerolog.Logger
	AdminToken    string
	CronSecret    string
	LoginPassword string
}

// NewLogger creates the JSON request logger shared by the router and the services
func NewLogger(level string) zerolog.Logger {
	return httplog.NewLogger("webhook-dispatch", httplog.Options{
		JSON:     true,
		LogLevel: level,
	})
}

// Handlers sets up the API routes
func Handlers(ctx context.Context, deps Dependencies) *chi.Mux {
	logger := deps.Logger
	limited := RateLimit(deps.Limiter, deps.Routes, logger)

	r := chi.NewRouter()
	r.Use(httplog.RequestLogger(logger))
	r.Use(middleware.Recoverer)

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(RequestTimeout))
		r.Method(http.MethodGet, "/health", health(deps.Limiter))
		if deps.Metrics != nil {
			r.Method(http.MethodGet, "/metrics", deps.Metrics)
		}
	})

	r.Route("/v1", func(r chi.Router) {
		// Product endpoints guarded by their rate-limit policies
		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(RequestTimeout))
			r.Use(user.Authenticate(deps.Tokens))
			r.Use(limited)
			r.Method(http.MethodPost, "/auth/login", login(deps.Tokens, deps.LoginPassword, logger))
			r.Method(http.MethodPost, "/sync", accepted("sync"))
			r.Method(http.MethodPost, "/checkout", accepted("checkout"))
		})

		r.With(middleware.Timeout(RequestTimeout)).
			Method(http.MethodPost, "/cron/cleanup", cronCleanup(deps.Webhooks, deps.CronSecret, logger))

		// Operator API
		r.Group(func(r chi.Router) {
			r.Use(requireBearer(deps.AdminToken))
			r.Use(limited)

			// bounded by the webhook's own timeout_seconds, same as a real delivery
			r.Method(http.MethodPost, "/webhooks/{id}/test", testWebhook(deps.Dispatcher, logger))

			r.Group(func(r chi.Router) {
				r.Use(middleware.Timeout(RequestTimeout))
				r.Method(http.MethodGet, "/webhooks", listWebhooks(deps.Webhooks, logger))
				r.Method(http.MethodPost, "/webhooks", createWebhook(deps.Webhooks, logger))
				r.Method(http.MethodGet, "/webhooks/{id}", getWebhook(deps.Webhooks, logger))
				r.Method(http.MethodPut, "/webhooks/{id}", updateWebhook(deps.Webhooks, logger))
				r.Method(http.MethodDelete, "/webhooks/{id}", deleteWebhook(deps.Webhooks, logger))
				r.Method(http.MethodPost, "/webhooks/{id}/enable", setWebhookEnabled(deps.Webhooks, logger, true))
				r.Method(http.MethodPost, "/webhooks/{id}/disable", setWebhookEnabled(deps.Webhooks, logger, false))
				r.Method(http.MethodGet, "/webhooks/{id}/logs", getLogs(deps.Webhooks, logger))
				r.Method(http.MethodGet, "/logs", getLogs(deps.Webhooks, logger))
				r.Method(http.MethodGet, "/stats", getStats(deps.Webhooks, logger))

				r.Method(http.MethodPost, "/events", postEvent(deps.Dispatcher, logger))
				r.Method(http.MethodDelete, "/ratelimit/{identifier}", resetLimit(deps.Limiter, logger))
			})
		})
	})

	return r
}
