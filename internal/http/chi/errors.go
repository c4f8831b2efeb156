package chi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/marcelsud/webhook-dispatch/webhook"
	"github.com/rs/zerolog"
)

// errorResponse is the JSON body of every non-2xx answer
type errorResponse struct {
	Error   string         `json:"error"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func writeError(w http.ResponseWriter, status int, code, message string, details map[string]any) {
	writeJSON(w, status, errorResponse{Error: code, Message: message, Details: details})
}

/* writeDomainError maps service errors to HTTP
 * ValidationError -> 400, ErrNotFound -> 404, anything else -> 500 without leaking the cause
 */
func writeDomainError(w http.ResponseWriter, logger zerolog.Logger, err error) {
	var ve *webhook.ValidationError
	switch {
	case errors.As(err, &ve):
		var details map[string]any
		if ve.Field != "" {
			details = map[string]any{"field": ve.Field}
		}
		writeError(w, http.StatusBadRequest, "validation_error", ve.Error(), details)
	case errors.Is(err, webhook.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", err.Error(), nil)
	default:
		logger.Error().Err(err).Msg("request failed")
		writeError(w, http.StatusInternalServerError, "internal_error", "internal server error", nil)
	}
}
