package webhook

import "time"

// Stats aggregates the registry and today's delivery logs
type Stats struct {
	TotalWebhooks     int       `json:"total_webhooks"`
	ActiveWebhooks    int       `json:"active_webhooks"`
	InactiveWebhooks  int       `json:"inactive_webhooks"`
	CallsToday        int       `json:"calls_today"`
	SuccessfulToday   int       `json:"successful_today"`
	FailedToday       int       `json:"failed_today"`
	SuccessRate       float64   `json:"success_rate"`
	AverageResponseMs float64   `json:"average_response_ms"`
	Day               time.Time `json:"day"`
}

// StartOfDay returns UTC midnight of the day t falls in
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

/* ComputeStats derives the aggregate from rows only, no hidden state
 * Logs outside the UTC day of now are ignored
 */
func ComputeStats(webhooks []Webhook, logs []DeliveryLog, now time.Time) Stats {
	day := StartOfDay(now)
	next := day.Add(24 * time.Hour)

	stats := Stats{
		TotalWebhooks: len(webhooks),
		Day:           day,
	}
	for _, wh := range webhooks {
		if wh.Enabled {
			stats.ActiveWebhooks++
		} else {
			stats.InactiveWebhooks++
		}
	}

	var timed int
	var totalMs int64
	for _, l := range logs {
		if l.CreatedAt.Before(day) || !l.CreatedAt.Before(next) {
			continue
		}
		stats.CallsToday++
		switch l.Status {
		case Success:
			stats.SuccessfulToday++
		case Failed, Retrying:
			stats.FailedToday++
		}
		if l.DurationMs != nil {
			timed++
			totalMs += *l.DurationMs
		}
	}

	if stats.CallsToday > 0 {
		stats.SuccessRate = float64(stats.SuccessfulToday) / float64(stats.CallsToday) * 100
	}
	if timed > 0 {
		stats.AverageResponseMs = float64(totalMs) / float64(timed)
	}
	return stats
}
