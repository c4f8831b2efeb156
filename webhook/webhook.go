package webhook

import (
	"net/url"
	"strings"
	"time"
)

const (
	maxTimeoutSeconds    = 300
	maxRetriesLimit      = 10
	maxRetryDelaySeconds = 3600
)

// MaxTimeout is the largest per-attempt timeout a webhook may be configured with
const MaxTimeout = maxTimeoutSeconds * time.Second

/* Webhook represents an operator-registered subscriber endpoint
 * Uses value semantics as it represents data, not behavior
 * Counters are only mutated by the delivery engine
 */
type Webhook struct {
	ID                string
	Name              string
	URL               string
	Events            []EventType
	Secret            string
	Headers           map[string]string
	Enabled           bool
	TimeoutSeconds    int
	MaxRetries        int
	RetryDelaySeconds int
	TotalCalls        int64
	SuccessCalls      int64
	FailedCalls       int64
	LastTriggeredAt   *time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// State derives the operator-facing state from the enabled flag
func (w Webhook) State() State {
	if w.Enabled {
		return Active
	}
	return Disabled
}

// Subscribes reports whether the webhook wants the given event
func (w Webhook) Subscribes(event EventType) bool {
	for _, e := range w.Events {
		if e == event || e == Custom {
			return true
		}
	}
	return false
}

// SigningSecret returns the trimmed secret, false when blank
func (w Webhook) SigningSecret() (string, bool) {
	secret := strings.TrimSpace(w.Secret)
	return secret, secret != ""
}

// Timeout is the hard deadline of a single attempt
func (w Webhook) Timeout() time.Duration {
	return time.Duration(w.TimeoutSeconds) * time.Second
}

// RetryDelay is the pause between two attempts of the same delivery
func (w Webhook) RetryDelay() time.Duration {
	return time.Duration(w.RetryDelaySeconds) * time.Second
}

// MaxAttempts is the first attempt plus every allowed retry
func (w Webhook) MaxAttempts() int {
	return w.MaxRetries + 1
}

// Validate checks the webhook configuration before it is written
func (w Webhook) Validate() error {
	if strings.TrimSpace(w.URL) == "" {
		return invalid("url", "is required")
	}
	u, err := url.ParseRequestURI(w.URL)
	if err != nil {
		return invalid("url", "is not a valid URL: %v", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return invalid("url", "scheme must be http or https")
	}
	if u.Host == "" {
		return invalid("url", "host is required")
	}
	if len(w.Events) == 0 {
		return invalid("events", "at least one event is required")
	}
	for _, e := range w.Events {
		if err := e.Validate(); err != nil {
			return invalid("events", "%v", err)
		}
	}
	if w.TimeoutSeconds < 1 || w.TimeoutSeconds > maxTimeoutSeconds {
		return invalid("timeout_seconds", "must be between 1 and %d", maxTimeoutSeconds)
	}
	if w.MaxRetries < 0 || w.MaxRetries > maxRetriesLimit {
		return invalid("max_retries", "must be between 0 and %d", maxRetriesLimit)
	}
	if w.RetryDelaySeconds < 0 || w.RetryDelaySeconds > maxRetryDelaySeconds {
		return invalid("retry_delay_seconds", "must be between 0 and %d", maxRetryDelaySeconds)
	}
	for name := range w.Headers {
		if strings.TrimSpace(name) == "" || strings.ContainsAny(name, " :\t\r\n") {
			return invalid("headers", "invalid header name %q", name)
		}
	}
	return nil
}
