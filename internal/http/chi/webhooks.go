package chi

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/marcelsud/webhook-dispatch/webhook"
	"github.com/rs/zerolog"
)

/* HTTP layer DTOs for the webhook API
 * Separate from domain entities to avoid leaking internal structure
 */

// webhookRequest is the body of create and update; absent fields stay nil
type webhookRequest struct {
	Name              *string           `json:"name"`
	URL               *string           `json:"url"`
	Events            []string          `json:"events"`
	Secret            *string           `json:"secret"`
	GenerateSecret    bool              `json:"generate_secret"`
	Headers           map[string]string `json:"headers"`
	Enabled           *bool             `json:"enabled"`
	TimeoutSeconds    *int              `json:"timeout_seconds"`
	MaxRetries        *int              `json:"max_retries"`
	RetryDelaySeconds *int              `json:"retry_delay_seconds"`
}

func (req webhookRequest) input() webhook.Input {
	in := webhook.Input{
		Name:              req.Name,
		URL:               req.URL,
		Secret:            req.Secret,
		GenerateSecret:    req.GenerateSecret,
		Headers:           req.Headers,
		Enabled:           req.Enabled,
		TimeoutSeconds:    req.TimeoutSeconds,
		MaxRetries:        req.MaxRetries,
		RetryDelaySeconds: req.RetryDelaySeconds,
	}
	if req.Events != nil {
		in.Events = make([]webhook.EventType, 0, len(req.Events))
		for _, e := range req.Events {
			in.Events = append(in.Events, webhook.EventType(e))
		}
	}
	return in
}

// webhookResponse never carries the secret except right after it was set
type webhookResponse struct {
	ID                string            `json:"id"`
	Name              string            `json:"name"`
	URL               string            `json:"url"`
	Events            []string          `json:"events"`
	State             string            `json:"state"`
	HasSecret         bool              `json:"has_secret"`
	Secret            string            `json:"secret,omitempty"`
	Headers           map[string]string `json:"headers"`
	TimeoutSeconds    int               `json:"timeout_seconds"`
	MaxRetries        int               `json:"max_retries"`
	RetryDelaySeconds int               `json:"retry_delay_seconds"`
	TotalCalls        int64             `json:"total_calls"`
	SuccessCalls      int64             `json:"success_calls"`
	FailedCalls       int64             `json:"failed_calls"`
	LastTriggeredAt   *time.Time        `json:"last_triggered_at,omitempty"`
	CreatedAt         time.Time         `json:"created_at"`
	UpdatedAt         time.Time         `json:"updated_at"`
}

func toWebhookResponse(wh webhook.Webhook) webhookResponse {
	events := make([]string, 0, len(wh.Events))
	for _, e := range wh.Events {
		events = append(events, e.String())
	}
	headers := wh.Headers
	if headers == nil {
		headers = map[string]string{}
	}
	_, hasSecret := wh.SigningSecret()
	return webhookResponse{
		ID:                wh.ID,
		Name:              wh.Name,
		URL:               wh.URL,
		Events:            events,
		State:             wh.State().String(),
		HasSecret:         hasSecret,
		Headers:           headers,
		TimeoutSeconds:    wh.TimeoutSeconds,
		MaxRetries:        wh.MaxRetries,
		RetryDelaySeconds: wh.RetryDelaySeconds,
		TotalCalls:        wh.TotalCalls,
		SuccessCalls:      wh.SuccessCalls,
		FailedCalls:       wh.FailedCalls,
		LastTriggeredAt:   wh.LastTriggeredAt,
		CreatedAt:         wh.CreatedAt,
		UpdatedAt:         wh.UpdatedAt,
	}
}

// logResponse is one delivery attempt
type logResponse struct {
	ID           string          `json:"id"`
	WebhookID    string          `json:"webhook_id"`
	DeliveryID   string          `json:"delivery_id"`
	Event        string          `json:"event"`
	Payload      json.RawMessage `json:"payload,omitempty"`
	Attempt      int             `json:"attempt"`
	Status       string          `json:"status"`
	HTTPStatus   int             `json:"http_status,omitempty"`
	ResponseBody string          `json:"response_body,omitempty"`
	ErrorMessage string          `json:"error_message,omitempty"`
	DurationMs   *int64          `json:"duration_ms,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	CompletedAt  *time.Time      `json:"completed_at,omitempty"`
}

func toLogResponse(l webhook.DeliveryLog) logResponse {
	resp := logResponse{
		ID:           l.ID,
		WebhookID:    l.WebhookID,
		DeliveryID:   l.DeliveryID,
		Event:        l.Event.String(),
		Attempt:      l.Attempt,
		Status:       l.Status.String(),
		HTTPStatus:   l.HTTPStatus,
		ResponseBody: l.ResponseBody,
		ErrorMessage: l.ErrorMessage,
		DurationMs:   l.DurationMs,
		CreatedAt:    l.CreatedAt,
		CompletedAt:  l.CompletedAt,
	}
	if json.Valid(l.Payload) {
		resp.Payload = l.Payload
	}
	return resp
}

func decodeWebhookRequest(w http.ResponseWriter, r *http.Request) (webhookRequest, bool) {
	var req webhookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "request body must be a JSON object", nil)
		return req, false
	}
	return req, true
}

// listWebhooks handles GET /v1/webhooks
func listWebhooks(service webhook.UseCase, logger zerolog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		all, err := service.List(r.Context())
		if err != nil {
			writeDomainError(w, logger, err)
			return
		}

		responses := make([]webhookResponse, 0, len(all))
		for _, wh := range all {
			responses = append(responses, toWebhookResponse(wh))
		}
		writeJSON(w, http.StatusOK, responses)
	})
}

// createWebhook handles POST /v1/webhooks
func createWebhook(service webhook.UseCase, logger zerolog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		req, ok := decodeWebhookRequest(w, r)
		if !ok {
			return
		}

		wh, err := service.Create(r.Context(), req.input())
		if err != nil {
			writeDomainError(w, logger, err)
			return
		}

		resp := toWebhookResponse(wh)
		if req.GenerateSecret {
			resp.Secret = wh.Secret
		}
		writeJSON(w, http.StatusCreated, resp)
	})
}

// getWebhook handles GET /v1/webhooks/{id}
func getWebhook(service webhook.UseCase, logger zerolog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		wh, err := service.Get(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeDomainError(w, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, toWebhookResponse(wh))
	})
}

// updateWebhook handles PUT /v1/webhooks/{id}
func updateWebhook(service webhook.UseCase, logger zerolog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		req, ok := decodeWebhookRequest(w, r)
		if !ok {
			return
		}

		wh, err := service.Update(r.Context(), chi.URLParam(r, "id"), req.input())
		if err != nil {
			writeDomainError(w, logger, err)
			return
		}

		resp := toWebhookResponse(wh)
		if req.GenerateSecret {
			resp.Secret = wh.Secret
		}
		writeJSON(w, http.StatusOK, resp)
	})
}

// setWebhookEnabled handles POST /v1/webhooks/{id}/enable and /disable
func setWebhookEnabled(service webhook.UseCase, logger zerolog.Logger, enabled bool) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		wh, err := service.SetEnabled(r.Context(), chi.URLParam(r, "id"), enabled)
		if err != nil {
			writeDomainError(w, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, toWebhookResponse(wh))
	})
}

// deleteWebhook handles DELETE /v1/webhooks/{id}
func deleteWebhook(service webhook.UseCase, logger zerolog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := service.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
			writeDomainError(w, logger, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})
}

// testWebhook handles POST /v1/webhooks/{id}/test
func testWebhook(dispatcher Dispatcher, logger zerolog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		result, err := dispatcher.Test(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeDomainError(w, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, result)
	})
}

// getLogs handles GET /v1/logs[?webhook_id=] and GET /v1/webhooks/{id}/logs
func getLogs(service webhook.UseCase, logger zerolog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		limit := 0
		if raw := r.URL.Query().Get("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n < 1 {
				writeError(w, http.StatusBadRequest, "invalid_limit", "limit must be a positive integer", nil)
				return
			}
			limit = n
		}

		webhookID := chi.URLParam(r, "id")
		scoped := webhookID != ""
		if !scoped {
			webhookID = r.URL.Query().Get("webhook_id")
		}

		logs, err := service.GetLogs(r.Context(), webhookID, limit)
		if err != nil {
			writeDomainError(w, logger, err)
			return
		}
		// rows outlive their webhook; 404 only when neither exists
		if scoped && len(logs) == 0 {
			if _, err := service.Get(r.Context(), webhookID); err != nil {
				writeDomainError(w, logger, err)
				return
			}
		}

		responses := make([]logResponse, 0, len(logs))
		for _, l := range logs {
			responses = append(responses, toLogResponse(l))
		}
		writeJSON(w, http.StatusOK, responses)
	})
}

// getStats handles GET /v1/stats
func getStats(service webhook.UseCase, logger zerolog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		stats, err := service.GetStats(r.Context())
		if err != nil {
			writeDomainError(w, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, stats)
	})
}
