package ratelimit

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"
)

/* Mode keeps "intentionally off" apart from "on but degraded"
 * Disabled: no store configured, every request passes and nothing is recorded
 * Enforcing: the store decides; an unreachable store fails open with a warning
 */
type Mode int

const (
	Disabled Mode = iota + 1
	Enforcing
)

// String returns the string representation of the mode
func (m Mode) String() string {
	switch m {
	case Disabled:
		return "disabled"
	case Enforcing:
		return "enforcing"
	default:
		return "unknown"
	}
}

// Decision outcomes reported to the Observer
const (
	OutcomeAllowed  = "allowed"
	OutcomeRejected = "rejected"
	OutcomeFailOpen = "fail_open"
	OutcomeDisabled = "disabled"
)

// Window is what the store saw for one identifier during a check
type Window struct {
	// Count of markers inside the window before the current request was added
	Count int64
	// Oldest marker still in the window, the current request included
	Oldest time.Time
}

// Store keeps the per-identifier sliding window in shared storage
type Store interface {
	/* Record evicts expired markers, counts, adds a marker for now and refreshes the expiry
	 * All of it must happen atomically for concurrent callers sharing a key
	 */
	Record(ctx context.Context, key string, now time.Time, window time.Duration) (Window, error)
	Reset(ctx context.Context, key string) error
	Ping(ctx context.Context) error
}

// Observer receives one call per decision, used for metrics
type Observer interface {
	RateLimitDecision(ctx context.Context, outcome string)
}

// Result is the answer to a single check
type Result struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
	Window    time.Duration
	// Degraded is set when the store failed and the request was let through
	Degraded bool
}

// ResetAtEpochMs returns ResetAt as milliseconds since the epoch
func (r Result) ResetAtEpochMs() int64 {
	return r.ResetAt.UnixMilli()
}

// RetryAfter rounds the wait up to whole seconds, clamped to [1s, window]
func (r Result) RetryAfter(now time.Time) time.Duration {
	wait := r.ResetAt.Sub(now)
	secs := int64(math.Ceil(wait.Seconds()))
	if secs < 1 {
		secs = 1
	}
	if r.Window > 0 && time.Duration(secs)*time.Second > r.Window {
		return r.Window.Truncate(time.Second)
	}
	return time.Duration(secs) * time.Second
}

// Key scopes an identifier to a named policy
func Key(scope, identifier string) string {
	if scope == "" {
		return identifier
	}
	return scope + ":" + identifier
}

type Limiter struct {
	store    Store
	mode     Mode
	logger   zerolog.Logger
	observer Observer
	now      func() time.Time
}

// Option configures a Limiter
type Option func(*Limiter)

// WithObserver reports decisions to o
func WithObserver(o Observer) Option {
	return func(l *Limiter) { l.observer = o }
}

// WithClock replaces the time source
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) { l.now = now }
}

// NewLimiter builds an enforcing limiter; a nil store yields a Disabled one
func NewLimiter(store Store, logger zerolog.Logger, opts ...Option) *Limiter {
	l := &Limiter{
		store:  store,
		mode:   Enforcing,
		logger: logger,
		now:    time.Now,
	}
	if store == nil {
		l.mode = Disabled
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// NewDisabled builds a limiter that allows everything on purpose
func NewDisabled(logger zerolog.Logger, opts ...Option) *Limiter {
	return NewLimiter(nil, logger, opts...)
}

// Mode reports whether the limiter enforces
func (l *Limiter) Mode() Mode {
	return l.mode
}

// Now returns the limiter's current time
func (l *Limiter) Now() time.Time {
	return l.now()
}

/* Check counts the request against identifier's trailing window
 * The limit-th request inside the window is the last one allowed
 * Store failures never reach the caller: the request is allowed and flagged Degraded
 */
func (l *Limiter) Check(ctx context.Context, identifier string, limit int, window time.Duration) Result {
	now := l.now()
	result := Result{
		Limit:   limit,
		Window:  window,
		ResetAt: now.Add(window),
	}

	if l.mode == Disabled {
		result.Allowed = true
		result.Remaining = max(0, limit)
		l.observe(ctx, OutcomeDisabled)
		return result
	}

	if limit < 1 || window <= 0 {
		l.logger.Warn().
			Str("identifier", identifier).
			Int("limit", limit).
			Dur("window", window).
			Msg("rate limit policy is invalid, rejecting")
		l.observe(ctx, OutcomeRejected)
		return result
	}

	w, err := l.store.Record(ctx, identifier, now, window)
	if err != nil {
		l.logger.Warn().
			Err(err).
			Str("identifier", identifier).
			Msg("rate limiter store unavailable, failing open")
		result.Allowed = true
		result.Remaining = limit - 1
		result.Degraded = true
		l.observe(ctx, OutcomeFailOpen)
		return result
	}

	count := int(w.Count)
	result.Allowed = count < limit
	result.Remaining = max(0, limit-count-1)
	if !w.Oldest.IsZero() {
		result.ResetAt = w.Oldest.Add(window)
	}

	if result.Allowed {
		l.observe(ctx, OutcomeAllowed)
	} else {
		l.observe(ctx, OutcomeRejected)
	}
	return result
}

// Reset clears every marker of identifier
func (l *Limiter) Reset(ctx context.Context, identifier string) error {
	if l.mode == Disabled {
		return nil
	}
	if err := l.store.Reset(ctx, identifier); err != nil {
		return fmt.Errorf("resetting %s: %w", identifier, err)
	}
	return nil
}

// HealthCheck pings the store; a disabled limiter is always healthy
func (l *Limiter) HealthCheck(ctx context.Context) error {
	if l.mode == Disabled {
		return nil
	}
	if err := l.store.Ping(ctx); err != nil {
		return fmt.Errorf("pinging rate limit store: %w", err)
	}
	return nil
}

func (l *Limiter) observe(ctx context.Context, outcome string) {
	if l.observer != nil {
		l.observer.RateLimitDecision(ctx, outcome)
	}
}
