package metrics

import (
	"context"
	"time"
)

// Snapshot represents the current state of the dispatch system.
type Snapshot struct {
	// WebhookStates maps "active"/"disabled" to the number of registered webhooks
	WebhookStates map[string]int64 `json:"webhook_states"`

	// Today aggregates today's delivery attempts
	Today DeliveryMetrics `json:"today"`

	// ActiveWindows is the number of identifiers currently tracked by the rate limiter
	ActiveWindows int64 `json:"active_windows"`

	// PolicyLimits maps route_id to the configured request limit
	PolicyLimits map[string]int64 `json:"policy_limits"`

	// Timestamp when metrics were collected
	Timestamp time.Time `json:"timestamp"`
}

// DeliveryMetrics represents today's delivery activity.
type DeliveryMetrics struct {
	// Calls is the number of attempts logged today
	Calls int64 `json:"calls"`

	// Failed is the number of failed or retrying attempts logged today
	Failed int64 `json:"failed"`

	// SuccessRate is a percentage between 0 and 100
	SuccessRate float64 `json:"success_rate"`

	// AvgResponseTimeMs averages attempts that recorded a duration
	AvgResponseTimeMs float64 `json:"avg_response_time_ms"`
}

// Collector defines the interface for collecting metrics from the dispatch system.
type Collector interface {
	// Collect gathers current metrics from the system in one pass
	Collect(ctx context.Context) (Snapshot, error)
}
