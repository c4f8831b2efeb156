package webhook

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/marcelsud/webhook-dispatch/webhook/signature"
)

const (
	defaultLogLimit = 50
	maxLogLimit     = 500
)

/* Service represents the business logic layer
 * Uses pointer semantics as it's an API, not data
 */

// UseCase defines the operator-facing registry, log and stats operations
type UseCase interface {
	Create(ctx context.Context, in Input) (Webhook, error)
	Get(ctx context.Context, id string) (Webhook, error)
	List(ctx context.Context) ([]Webhook, error)
	Update(ctx context.Context, id string, in Input) (Webhook, error)
	SetEnabled(ctx context.Context, id string, enabled bool) (Webhook, error)
	Delete(ctx context.Context, id string) error
	GetLogs(ctx context.Context, webhookID string, limit int) ([]DeliveryLog, error)
	GetStats(ctx context.Context) (Stats, error)
	CleanupOldLogs(ctx context.Context) (int64, error)
}

// Defaults applied when a create request leaves the retry policy unspecified
type Defaults struct {
	MaxRetries        int
	RetryDelaySeconds int
	TimeoutSeconds    int
	LogRetention      time.Duration
}

/* Input carries create and update requests
 * nil pointers mean "not specified": defaults on create, untouched on update
 */
type Input struct {
	Name              *string
	URL               *string
	Events            []EventType
	Secret            *string
	GenerateSecret    bool
	Headers           map[string]string
	Enabled           *bool
	TimeoutSeconds    *int
	MaxRetries        *int
	RetryDelaySeconds *int
}

type Service struct {
	Repo     Repository
	Defaults Defaults
	now      func() time.Time
}

// NewService creates a new webhook service with dependency injection
func NewService(repo Repository, defaults Defaults) *Service {
	return &Service{
		Repo:     repo,
		Defaults: defaults,
		now:      time.Now,
	}
}

// WithClock replaces the time source, used by tests that seed logs
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Create registers a webhook, filling the retry policy from Defaults
func (s *Service) Create(ctx context.Context, in Input) (Webhook, error) {
	now := s.now().UTC()
	wh := Webhook{
		ID:                uuid.New().String(),
		Enabled:           true,
		Headers:           map[string]string{},
		TimeoutSeconds:    s.Defaults.TimeoutSeconds,
		MaxRetries:        s.Defaults.MaxRetries,
		RetryDelaySeconds: s.Defaults.RetryDelaySeconds,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := apply(&wh, in); err != nil {
		return Webhook{}, err
	}
	if err := wh.Validate(); err != nil {
		return Webhook{}, err
	}

	if err := s.Repo.Create(ctx, wh); err != nil {
		return Webhook{}, fmt.Errorf("storing webhook: %w", err)
	}
	return wh, nil
}

// Get returns a single webhook
func (s *Service) Get(ctx context.Context, id string) (Webhook, error) {
	wh, err := s.Repo.Get(ctx, id)
	if err != nil {
		return Webhook{}, fmt.Errorf("getting webhook %s: %w", id, err)
	}
	return wh, nil
}

// List returns every registered webhook
func (s *Service) List(ctx context.Context) ([]Webhook, error) {
	webhooks, err := s.Repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing webhooks: %w", err)
	}
	return webhooks, nil
}

// Update applies the specified fields of in to an existing webhook
func (s *Service) Update(ctx context.Context, id string, in Input) (Webhook, error) {
	wh, err := s.Repo.Get(ctx, id)
	if err != nil {
		return Webhook{}, fmt.Errorf("getting webhook %s: %w", id, err)
	}
	if err := apply(&wh, in); err != nil {
		return Webhook{}, err
	}
	if err := wh.Validate(); err != nil {
		return Webhook{}, err
	}
	wh.UpdatedAt = s.now().UTC()

	if err := s.Repo.Update(ctx, wh); err != nil {
		return Webhook{}, fmt.Errorf("updating webhook %s: %w", id, err)
	}
	return wh, nil
}

// SetEnabled toggles delivery without touching history
func (s *Service) SetEnabled(ctx context.Context, id string, enabled bool) (Webhook, error) {
	if err := s.Repo.SetEnabled(ctx, id, enabled); err != nil {
		return Webhook{}, fmt.Errorf("setting enabled on webhook %s: %w", id, err)
	}
	return s.Get(ctx, id)
}

// Delete removes the webhook; its delivery logs are retained for audit
func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.Repo.Delete(ctx, id); err != nil {
		return fmt.Errorf("deleting webhook %s: %w", id, err)
	}
	return nil
}

// GetLogs lists logs most-recent-first, optionally for one webhook
func (s *Service) GetLogs(ctx context.Context, webhookID string, limit int) ([]DeliveryLog, error) {
	if limit <= 0 {
		limit = defaultLogLimit
	}
	if limit > maxLogLimit {
		limit = maxLogLimit
	}
	logs, err := s.Repo.ListLogs(ctx, LogFilter{WebhookID: webhookID, Limit: limit})
	if err != nil {
		return nil, fmt.Errorf("listing logs: %w", err)
	}
	return logs, nil
}

// GetStats aggregates today's logs, UTC day boundary
func (s *Service) GetStats(ctx context.Context) (Stats, error) {
	now := s.now()
	webhooks, err := s.Repo.List(ctx)
	if err != nil {
		return Stats{}, fmt.Errorf("listing webhooks: %w", err)
	}
	logs, err := s.Repo.LogsSince(ctx, StartOfDay(now))
	if err != nil {
		return Stats{}, fmt.Errorf("listing today's logs: %w", err)
	}
	return ComputeStats(webhooks, logs, now), nil
}

// CleanupOldLogs deletes resolved logs older than the retention horizon
func (s *Service) CleanupOldLogs(ctx context.Context) (int64, error) {
	if s.Defaults.LogRetention <= 0 {
		return 0, errors.New("log retention is not configured")
	}
	cutoff := s.now().UTC().Add(-s.Defaults.LogRetention)
	n, err := s.Repo.DeleteLogsBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("deleting logs before %s: %w", cutoff.Format(time.RFC3339), err)
	}
	return n, nil
}

func apply(wh *Webhook, in Input) error {
	if in.Name != nil {
		wh.Name = *in.Name
	}
	if in.URL != nil {
		wh.URL = *in.URL
	}
	if in.Events != nil {
		wh.Events = dedupe(in.Events)
	}
	if in.Secret != nil {
		wh.Secret = *in.Secret
	}
	if in.GenerateSecret {
		secret, err := signature.GenerateSecret(32)
		if err != nil {
			return fmt.Errorf("generating secret: %w", err)
		}
		wh.Secret = secret
	}
	if in.Headers != nil {
		wh.Headers = in.Headers
	}
	if in.Enabled != nil {
		wh.Enabled = *in.Enabled
	}
	if in.TimeoutSeconds != nil {
		wh.TimeoutSeconds = *in.TimeoutSeconds
	}
	if in.MaxRetries != nil {
		wh.MaxRetries = *in.MaxRetries
	}
	if in.RetryDelaySeconds != nil {
		wh.RetryDelaySeconds = *in.RetryDelaySeconds
	}
	return nil
}

func dedupe(events []EventType) []EventType {
	seen := make(map[EventType]struct{}, len(events))
	out := make([]EventType, 0, len(events))
	for _, e := range events {
		if _, ok := seen[e]; ok {
			continue
		}
		seen[e] = struct{}{}
		out = append(out, e)
	}
	return out
}
