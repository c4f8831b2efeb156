package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/marcelsud/webhook-dispatch/routes"
	"github.com/marcelsud/webhook-dispatch/webhook"
)

// StatsSource is satisfied by webhook.UseCase
type StatsSource interface {
	GetStats(ctx context.Context) (webhook.Stats, error)
}

// WindowCounter is satisfied by the Redis rate limit store
type WindowCounter interface {
	ActiveWindows(ctx context.Context) (int64, error)
}

// StatsCollector implements the Collector interface over the registry, the log and the limiter store
type StatsCollector struct {
	stats        StatsSource
	windows      WindowCounter
	routesLoader *routes.Loader
}

// NewStatsCollector creates a new collector; windows may be nil when rate limiting is disabled
func NewStatsCollector(stats StatsSource, windows WindowCounter, loader *routes.Loader) *StatsCollector {
	return &StatsCollector{
		stats:        stats,
		windows:      windows,
		routesLoader: loader,
	}
}

// Collect gathers all metrics
func (c *StatsCollector) Collect(ctx context.Context) (Snapshot, error) {
	stats, err := c.stats.GetStats(ctx)
	if err != nil {
		return Snapshot{}, fmt.Errorf("getting stats: %w", err)
	}

	windows, err := c.GetActiveWindows(ctx)
	if err != nil {
		return Snapshot{}, fmt.Errorf("getting active windows: %w", err)
	}

	limits, err := c.GetPolicyLimits(ctx)
	if err != nil {
		return Snapshot{}, fmt.Errorf("getting policy limits: %w", err)
	}

	return Snapshot{
		WebhookStates: states(stats),
		Today:         deliveries(stats),
		ActiveWindows: windows,
		PolicyLimits:  limits,
		Timestamp:     time.Now(),
	}, nil
}

// GetActiveWindows returns zero when no limiter store is configured
func (c *StatsCollector) GetActiveWindows(ctx context.Context) (int64, error) {
	if c.windows == nil {
		return 0, nil
	}
	return c.windows.ActiveWindows(ctx)
}

// GetPolicyLimits returns the configured limit per route
func (c *StatsCollector) GetPolicyLimits(ctx context.Context) (map[string]int64, error) {
	limits := make(map[string]int64)
	if c.routesLoader == nil {
		return limits, nil
	}
	for _, route := range c.routesLoader.List() {
		limits[route.RouteID] = int64(route.Limit)
	}
	return limits, nil
}

func states(stats webhook.Stats) map[string]int64 {
	return map[string]int64{
		webhook.Active.String():   int64(stats.ActiveWebhooks),
		webhook.Disabled.String(): int64(stats.InactiveWebhooks),
	}
}

func deliveries(stats webhook.Stats) DeliveryMetrics {
	return DeliveryMetrics{
		Calls:             int64(stats.CallsToday),
		Failed:            int64(stats.FailedToday),
		SuccessRate:       stats.SuccessRate,
		AvgResponseTimeMs: stats.AverageResponseMs,
	}
}
