package metrics

import (
	"context"
	"fmt"
	"net/http"
	"time"

	promclient "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// OTelExporter provides OpenTelemetry metrics export following OTel standards
// It also records delivery attempts and rate-limit decisions as they happen
type OTelExporter struct {
	meterProvider *sdkmetric.MeterProvider
	collector     Collector
	gatherer      promclient.Gatherer

	// OTel meters and instruments
	meter              metric.Meter
	webhookStateGauge  metric.Int64ObservableGauge
	callsTodayGauge    metric.Int64ObservableGauge
	successRateGauge   metric.Float64ObservableGauge
	responseTimeGauge  metric.Float64ObservableGauge
	activeWindowsGauge metric.Int64ObservableGauge
	policyLimitGauge   metric.Int64ObservableGauge
	attemptCounter     metric.Int64Counter
	attemptDuration    metric.Float64Histogram
	deliveryCounter    metric.Int64Counter
	decisionCounter    metric.Int64Counter
}

// NewOTelExporter creates a new OpenTelemetry metrics exporter with Prometheus format
// A nil registry uses the Prometheus default registry
func NewOTelExporter(collector Collector, registry *promclient.Registry) (*OTelExporter, error) {
	var (
		registerer promclient.Registerer = promclient.DefaultRegisterer
		gatherer   promclient.Gatherer   = promclient.DefaultGatherer
	)
	if registry != nil {
		registerer, gatherer = registry, registry
	}

	exporter, err := prometheus.New(prometheus.WithRegisterer(registerer))
	if err != nil {
		return nil, fmt.Errorf("creating prometheus exporter: %w", err)
	}

	meterProvider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(exporter),
	)
	otel.SetMeterProvider(meterProvider)

	meter := meterProvider.Meter(
		"webhook-dispatch",
		metric.WithInstrumentationVersion("1.0.0"),
	)

	oe := &OTelExporter{
		meterProvider: meterProvider,
		collector:     collector,
		gatherer:      gatherer,
		meter:         meter,
	}

	if err := oe.registerInstruments(); err != nil {
		return nil, fmt.Errorf("registering instruments: %w", err)
	}

	return oe, nil
}

// registerInstruments creates and registers all OpenTelemetry metric instruments
func (oe *OTelExporter) registerInstruments() error {
	var err error

	oe.webhookStateGauge, err = oe.meter.Int64ObservableGauge(
		"webhook.registered",
		metric.WithDescription("Number of registered webhooks per state"),
		metric.WithUnit("{webhooks}"),
	)
	if err != nil {
		return fmt.Errorf("creating webhook state gauge: %w", err)
	}

	oe.callsTodayGauge, err = oe.meter.Int64ObservableGauge(
		"webhook.calls.today",
		metric.WithDescription("Delivery attempts logged since UTC midnight"),
		metric.WithUnit("{attempts}"),
	)
	if err != nil {
		return fmt.Errorf("creating calls today gauge: %w", err)
	}

	oe.successRateGauge, err = oe.meter.Float64ObservableGauge(
		"webhook.success.rate",
		metric.WithDescription("Percentage of today's attempts that succeeded"),
		metric.WithUnit("%"),
	)
	if err != nil {
		return fmt.Errorf("creating success rate gauge: %w", err)
	}

	oe.responseTimeGauge, err = oe.meter.Float64ObservableGauge(
		"webhook.response.time.avg",
		metric.WithDescription("Average response time of today's attempts"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return fmt.Errorf("creating response time gauge: %w", err)
	}

	oe.activeWindowsGauge, err = oe.meter.Int64ObservableGauge(
		"ratelimit.windows.active",
		metric.WithDescription("Identifiers currently holding a rate-limit window"),
		metric.WithUnit("{identifiers}"),
	)
	if err != nil {
		return fmt.Errorf("creating active windows gauge: %w", err)
	}

	oe.policyLimitGauge, err = oe.meter.Int64ObservableGauge(
		"ratelimit.policy.limit",
		metric.WithDescription("Configured request limit per protected route"),
		metric.WithUnit("{requests}"),
	)
	if err != nil {
		return fmt.Errorf("creating policy limit gauge: %w", err)
	}

	// one snapshot per scrape feeds every gauge
	_, err = oe.meter.RegisterCallback(oe.observeSnapshot,
		oe.webhookStateGauge,
		oe.callsTodayGauge,
		oe.successRateGauge,
		oe.responseTimeGauge,
		oe.activeWindowsGauge,
		oe.policyLimitGauge,
	)
	if err != nil {
		return fmt.Errorf("registering snapshot callback: %w", err)
	}

	oe.attemptCounter, err = oe.meter.Int64Counter(
		"webhook.delivery.attempts",
		metric.WithDescription("Delivery attempts by event and resulting status"),
		metric.WithUnit("{attempts}"),
	)
	if err != nil {
		return fmt.Errorf("creating attempt counter: %w", err)
	}

	oe.attemptDuration, err = oe.meter.Float64Histogram(
		"webhook.delivery.duration",
		metric.WithDescription("Duration of delivery attempts"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return fmt.Errorf("creating attempt duration histogram: %w", err)
	}

	oe.deliveryCounter, err = oe.meter.Int64Counter(
		"webhook.deliveries",
		metric.WithDescription("Finished deliveries by event and outcome"),
		metric.WithUnit("{deliveries}"),
	)
	if err != nil {
		return fmt.Errorf("creating delivery counter: %w", err)
	}

	oe.decisionCounter, err = oe.meter.Int64Counter(
		"ratelimit.decisions",
		metric.WithDescription("Rate limiter decisions by outcome"),
		metric.WithUnit("{requests}"),
	)
	if err != nil {
		return fmt.Errorf("creating decision counter: %w", err)
	}

	return nil
}

func (oe *OTelExporter) observeSnapshot(ctx context.Context, observer metric.Observer) error {
	snap, err := oe.collector.Collect(ctx)
	if err != nil {
		return err
	}

	for state, count := range snap.WebhookStates {
		observer.ObserveInt64(oe.webhookStateGauge, count, metric.WithAttributes(
			attribute.String("webhook.state", state),
		))
	}
	observer.ObserveInt64(oe.callsTodayGauge, snap.Today.Calls)
	observer.ObserveFloat64(oe.successRateGauge, snap.Today.SuccessRate)
	observer.ObserveFloat64(oe.responseTimeGauge, snap.Today.AvgResponseTimeMs)
	observer.ObserveInt64(oe.activeWindowsGauge, snap.ActiveWindows)
	for routeID, limit := range snap.PolicyLimits {
		observer.ObserveInt64(oe.policyLimitGauge, limit, metric.WithAttributes(
			attribute.String("route.id", routeID),
		))
	}

	return nil
}

// DeliveryAttempt records one attempt and its duration
func (oe *OTelExporter) DeliveryAttempt(ctx context.Context, event string, status string, duration time.Duration) {
	attrs := metric.WithAttributes(
		attribute.String("webhook.event", event),
		attribute.String("delivery.status", status),
	)
	oe.attemptCounter.Add(ctx, 1, attrs)
	oe.attemptDuration.Record(ctx, float64(duration)/float64(time.Millisecond), attrs)
}

// DeliveryFinished records the end of a retry sequence
func (oe *OTelExporter) DeliveryFinished(ctx context.Context, event string, success bool) {
	outcome := "failed"
	if success {
		outcome = "success"
	}
	oe.deliveryCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("webhook.event", event),
		attribute.String("delivery.outcome", outcome),
	))
}

// RateLimitDecision records an allow, reject, fail-open or disabled decision
func (oe *OTelExporter) RateLimitDecision(ctx context.Context, outcome string) {
	oe.decisionCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("ratelimit.outcome", outcome),
	))
}

// ServeHTTP serves Prometheus-formatted metrics on the given HTTP handler
func (oe *OTelExporter) ServeHTTP() http.Handler {
	return promhttp.HandlerFor(oe.gatherer, promhttp.HandlerOpts{})
}

// Shutdown gracefully shuts down the meter provider
func (oe *OTelExporter) Shutdown(ctx context.Context) error {
	if oe.meterProvider != nil {
		return oe.meterProvider.Shutdown(ctx)
	}
	return nil
}
