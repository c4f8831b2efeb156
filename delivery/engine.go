package delivery

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/marcelsud/webhook-dispatch/internal/async"
	"github.com/marcelsud/webhook-dispatch/webhook"
	"github.com/marcelsud/webhook-dispatch/webhook/payload"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Observer receives attempt and delivery outcomes, used for metrics
type Observer interface {
	DeliveryAttempt(ctx context.Context, event string, status string, duration time.Duration)
	DeliveryFinished(ctx context.Context, event string, success bool)
}

// TestResult is returned straight to the operator, nothing is persisted
type TestResult struct {
	Success        bool   `json:"success"`
	StatusCode     int    `json:"status_code,omitempty"`
	ResponseTimeMs int64  `json:"response_time_ms"`
	Error          string `json:"error,omitempty"`
}

// Summary reports a synchronous fan-out
type Summary struct {
	Scheduled int
	Succeeded int
	Failed    int
}

var testData = json.RawMessage(`{"test":true}`)

/* Engine drives the per-delivery state machine
 * Pending -> Success | Retrying | Failed, one log row per attempt, attempts strictly sequential
 * Background deliveries run on the engine's own task group, never on a request goroutine
 */
type Engine struct {
	repo     webhook.Repository
	sender   *Sender
	tasks    *async.Group
	logger   zerolog.Logger
	observer Observer
	sleep    func(ctx context.Context, d time.Duration) error
	now      func() time.Time
	parallel int
}

// Option configures an Engine
type Option func(*Engine)

// WithObserver reports outcomes to o
func WithObserver(o Observer) Option {
	return func(e *Engine) { e.observer = o }
}

// WithSleep replaces the backoff wait
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(e *Engine) { e.sleep = sleep }
}

// WithClock replaces the time source used for log timestamps
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithParallelism bounds DeliverAll's concurrent webhooks
func WithParallelism(n int) Option {
	return func(e *Engine) { e.parallel = n }
}

// NewEngine creates a delivery engine
func NewEngine(repo webhook.Repository, sender *Sender, logger zerolog.Logger, opts ...Option) *Engine {
	e := &Engine{
		repo:     repo,
		sender:   sender,
		tasks:    async.NewGroup(logger),
		logger:   logger,
		sleep:    sleepContext,
		now:      time.Now,
		parallel: 8,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

/* Deliver runs the whole retry sequence for one webhook and blocks until it ends
 * Returns true when an attempt got a 2xx; skipped deliveries return false without a log row
 */
func (e *Engine) Deliver(ctx context.Context, webhookID string, event webhook.EventType, data json.RawMessage) bool {
	logger := e.logger.With().Str("webhook_id", webhookID).Str("event", event.String()).Logger()

	wh, err := e.repo.Get(ctx, webhookID)
	if errors.Is(err, webhook.ErrNotFound) {
		logger.Info().Msg("webhook skipped: not found")
		return false
	}
	if err != nil {
		logger.Error().Err(err).Msg("webhook skipped: lookup failed")
		return false
	}
	if !wh.Enabled {
		logger.Info().Msg("webhook skipped: disabled")
		return false
	}
	if !wh.Subscribes(event) {
		logger.Info().Msg("webhook skipped: not subscribed")
		return false
	}
	if _, err := payload.New(event.String(), data, payload.Metadata{WebhookID: wh.ID}); err != nil {
		logger.Error().Err(err).Msg("webhook skipped: invalid payload")
		return false
	}

	deliveryID := uuid.NewString()
	maxAttempts := wh.MaxAttempts()
	logger = logger.With().Str("delivery_id", deliveryID).Logger()

	for attempt := 1; ; attempt++ {
		final := attempt >= maxAttempts
		last, err := e.attempt(ctx, logger, wh, deliveryID, event, data, attempt, final)
		if err == nil {
			e.finish(ctx, logger, wh.ID, event, true)
			return true
		}
		if final {
			logger.Warn().Int("attempts", attempt).Msg("delivery failed, retries exhausted")
			e.finish(ctx, logger, wh.ID, event, false)
			return false
		}

		logger.Info().
			Int("attempt", attempt).
			Dur("delay", wh.RetryDelay()).
			Msg("retry scheduled")

		if err := e.sleep(ctx, wh.RetryDelay()); err != nil {
			e.abort(ctx, logger, last, "shutting down")
			e.finish(ctx, logger, wh.ID, event, false)
			return false
		}

		// a webhook disabled or deleted during the backoff stops the sequence
		fresh, err := e.repo.Get(context.WithoutCancel(ctx), wh.ID)
		switch {
		case errors.Is(err, webhook.ErrNotFound):
			e.abort(ctx, logger, last, "webhook deleted")
			return false
		case err != nil:
			logger.Error().Err(err).Msg("reloading webhook")
			e.abort(ctx, logger, last, "webhook lookup failed")
			e.finish(ctx, logger, wh.ID, event, false)
			return false
		case !fresh.Enabled:
			e.abort(ctx, logger, last, "webhook disabled")
			e.finish(ctx, logger, wh.ID, event, false)
			return false
		}
		wh = fresh
	}
}

// attempt performs one HTTP call bracketed by its log row
func (e *Engine) attempt(
	ctx context.Context,
	logger zerolog.Logger,
	wh webhook.Webhook,
	deliveryID string,
	event webhook.EventType,
	data json.RawMessage,
	attempt int,
	final bool,
) (webhook.DeliveryLog, error) {
	store := context.WithoutCancel(ctx)

	ev, err := payload.New(event.String(), data, payload.Metadata{
		WebhookID:   wh.ID,
		WebhookName: wh.Name,
		DeliveryID:  deliveryID,
		Attempt:     attempt,
	})
	if err != nil {
		return webhook.DeliveryLog{}, fmt.Errorf("building payload: %w", err)
	}
	body, err := ev.Bytes()
	if err != nil {
		return webhook.DeliveryLog{}, fmt.Errorf("encoding payload: %w", err)
	}

	row := webhook.DeliveryLog{
		ID:         uuid.NewString(),
		WebhookID:  wh.ID,
		DeliveryID: deliveryID,
		Event:      event,
		Payload:    body,
		Attempt:    attempt,
		Status:     webhook.Pending,
		CreatedAt:  e.now().UTC(),
	}
	if err := e.repo.InsertLog(store, row); err != nil {
		logger.Error().Err(err).Int("attempt", attempt).Msg("inserting delivery log")
	}

	res, sendErr := e.sender.Send(ctx, wh, body, false)

	completed := e.now().UTC()
	duration := res.Duration.Milliseconds()
	row.HTTPStatus = res.StatusCode
	row.ResponseBody = res.Body
	row.DurationMs = &duration
	row.CompletedAt = &completed
	switch {
	case sendErr == nil:
		row.Status = webhook.Success
	case final:
		row.Status = webhook.Failed
	default:
		row.Status = webhook.Retrying
	}
	if sendErr != nil {
		row.ErrorMessage = sendErr.Error()
	}

	if err := e.repo.UpdateLog(store, row); err != nil {
		logger.Error().Err(err).Int("attempt", attempt).Msg("updating delivery log")
	}
	if e.observer != nil {
		e.observer.DeliveryAttempt(store, event.String(), row.Status.String(), res.Duration)
	}

	entry := logger.Info()
	if sendErr != nil {
		entry = logger.Warn().Err(sendErr)
	}
	entry.
		Int("attempt", attempt).
		Int("status_code", res.StatusCode).
		Int64("duration_ms", duration).
		Str("status", row.Status.String()).
		Msg("delivery attempt")

	return row, sendErr
}

// abort closes the sequence: the last retrying row becomes failed
func (e *Engine) abort(ctx context.Context, logger zerolog.Logger, last webhook.DeliveryLog, reason string) {
	logger.Warn().Int("attempt", last.Attempt).Str("reason", reason).Msg("retry aborted")
	if last.ID == "" {
		return
	}

	last.Status = webhook.Failed
	if last.ErrorMessage != "" {
		last.ErrorMessage += "; "
	}
	last.ErrorMessage += "retry aborted: " + reason
	if err := e.repo.UpdateLog(context.WithoutCancel(ctx), last); err != nil {
		logger.Error().Err(err).Msg("finalizing aborted delivery log")
	}
}

// finish counts the logical event once
func (e *Engine) finish(ctx context.Context, logger zerolog.Logger, webhookID string, event webhook.EventType, success bool) {
	store := context.WithoutCancel(ctx)
	if err := e.repo.RecordOutcome(store, webhookID, success, e.now().UTC()); err != nil {
		logger.Error().Err(err).Msg("recording delivery outcome")
	}
	if e.observer != nil {
		e.observer.DeliveryFinished(store, event.String(), success)
	}
}

// Trigger delivers in the background and returns immediately
func (e *Engine) Trigger(webhookID string, event webhook.EventType, data json.RawMessage) {
	e.tasks.Go("deliver webhook "+webhookID, 0, func(ctx context.Context) error {
		e.Deliver(ctx, webhookID, event, data)
		return nil
	})
}

// Dispatch triggers every enabled webhook subscribed to event and reports how many were scheduled
func (e *Engine) Dispatch(ctx context.Context, event webhook.EventType, data json.RawMessage) (int, error) {
	targets, err := e.targets(ctx, event, data)
	if err != nil {
		return 0, err
	}
	for _, wh := range targets {
		e.Trigger(wh.ID, event, data)
	}
	e.logger.Info().Str("event", event.String()).Int("webhooks", len(targets)).Msg("event dispatched")
	return len(targets), nil
}

// DeliverAll fans out like Dispatch but waits for every sequence to end
func (e *Engine) DeliverAll(ctx context.Context, event webhook.EventType, data json.RawMessage) (Summary, error) {
	targets, err := e.targets(ctx, event, data)
	if err != nil {
		return Summary{}, err
	}

	results := make([]bool, len(targets))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.parallel)
	for i, wh := range targets {
		g.Go(func() error {
			results[i] = e.Deliver(gctx, wh.ID, event, data)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Summary{}, err
	}

	summary := Summary{Scheduled: len(targets)}
	for _, ok := range results {
		if ok {
			summary.Succeeded++
		} else {
			summary.Failed++
		}
	}
	return summary, nil
}

func (e *Engine) targets(ctx context.Context, event webhook.EventType, data json.RawMessage) ([]webhook.Webhook, error) {
	if err := event.Validate(); err != nil {
		return nil, err
	}
	if !json.Valid(data) {
		return nil, fmt.Errorf("event data must be valid JSON")
	}

	enabled, err := e.repo.ListEnabled(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing enabled webhooks: %w", err)
	}
	targets := make([]webhook.Webhook, 0, len(enabled))
	for _, wh := range enabled {
		if wh.Subscribes(event) {
			targets = append(targets, wh)
		}
	}
	return targets, nil
}

// Test makes exactly one attempt with a synthetic payload, writing neither logs nor counters
func (e *Engine) Test(ctx context.Context, webhookID string) (TestResult, error) {
	wh, err := e.repo.Get(ctx, webhookID)
	if err != nil {
		return TestResult{}, err
	}

	ev, err := payload.New(webhook.Custom.String(), testData, payload.Metadata{
		WebhookID:   wh.ID,
		WebhookName: wh.Name,
		Test:        true,
	})
	if err != nil {
		return TestResult{}, fmt.Errorf("building test payload: %w", err)
	}
	body, err := ev.Bytes()
	if err != nil {
		return TestResult{}, fmt.Errorf("encoding test payload: %w", err)
	}

	res, sendErr := e.sender.Send(ctx, wh, body, true)
	result := TestResult{
		Success:        sendErr == nil,
		StatusCode:     res.StatusCode,
		ResponseTimeMs: res.Duration.Milliseconds(),
	}
	if sendErr != nil {
		result.Error = sendErr.Error()
	}
	return result, nil
}

// Shutdown cancels pending backoffs and waits for background deliveries to finish their rows
func (e *Engine) Shutdown(ctx context.Context) error {
	if err := e.tasks.Shutdown(ctx); err != nil {
		return fmt.Errorf("waiting for deliveries: %w", err)
	}
	return nil
}

// Wait blocks until background deliveries return; used by tests and one-shot commands
func (e *Engine) Wait() {
	e.tasks.Wait()
}
