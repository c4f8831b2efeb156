//go:build integration

package webhook

import (
	"fmt"
	"testing"
	"time"
)

// NewTestWebhook builds a valid, enabled webhook with a unique ID for integration tests
func NewTestWebhook(t *testing.T, index int) Webhook {
	t.Helper()
	now := time.Now().UTC().Truncate(time.Second)
	return Webhook{
		ID:                fmt.Sprintf("test-webhook-%d-%d", index, time.Now().UnixNano()),
		Name:              fmt.Sprintf("hook %d", index),
		URL:               fmt.Sprintf("https://example.test/hook/%d", index),
		Events:            []EventType{PaymentApproved},
		Headers:           map[string]string{"X-Tenant": "acme"},
		Enabled:           true,
		TimeoutSeconds:    10,
		MaxRetries:        3,
		RetryDelaySeconds: 1,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
}
