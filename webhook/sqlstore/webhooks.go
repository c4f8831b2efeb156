package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/marcelsud/webhook-dispatch/webhook"
)

const webhookColumns = `id, name, url, events, secret, headers, enabled, timeout_seconds, max_retries,
	retry_delay_seconds, total_calls, success_calls, failed_calls, last_triggered_at, created_at, updated_at`

var _ webhook.Repository = (*Repository)(nil)

type scanner interface {
	Scan(dest ...any) error
}

func scanWebhook(s scanner) (webhook.Webhook, error) {
	var (
		wh            webhook.Webhook
		events        string
		headers       string
		lastTriggered sql.NullTime
	)
	err := s.Scan(
		&wh.ID,
		&wh.Name,
		&wh.URL,
		&events,
		&wh.Secret,
		&headers,
		&wh.Enabled,
		&wh.TimeoutSeconds,
		&wh.MaxRetries,
		&wh.RetryDelaySeconds,
		&wh.TotalCalls,
		&wh.SuccessCalls,
		&wh.FailedCalls,
		&lastTriggered,
		&wh.CreatedAt,
		&wh.UpdatedAt,
	)
	if err != nil {
		return webhook.Webhook{}, err
	}

	if err := json.Unmarshal([]byte(events), &wh.Events); err != nil {
		return webhook.Webhook{}, fmt.Errorf("decoding events of webhook %s: %w", wh.ID, err)
	}
	if err := json.Unmarshal([]byte(headers), &wh.Headers); err != nil {
		return webhook.Webhook{}, fmt.Errorf("decoding headers of webhook %s: %w", wh.ID, err)
	}
	if lastTriggered.Valid {
		t := lastTriggered.Time.UTC()
		wh.LastTriggeredAt = &t
	}
	wh.CreatedAt = wh.CreatedAt.UTC()
	wh.UpdatedAt = wh.UpdatedAt.UTC()
	return wh, nil
}

func encode(wh webhook.Webhook) (events string, headers string, err error) {
	eventsJSON, err := json.Marshal(wh.Events)
	if err != nil {
		return "", "", fmt.Errorf("encoding events: %w", err)
	}
	h := wh.Headers
	if h == nil {
		h = map[string]string{}
	}
	headersJSON, err := json.Marshal(h)
	if err != nil {
		return "", "", fmt.Errorf("encoding headers: %w", err)
	}
	return string(eventsJSON), string(headersJSON), nil
}

// Get returns a webhook by ID
func (r *Repository) Get(ctx context.Context, id string) (webhook.Webhook, error) {
	query := r.rebind("SELECT " + webhookColumns + " FROM webhooks WHERE id = ?")

	wh, err := scanWebhook(r.DB.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return webhook.Webhook{}, webhook.ErrNotFound
	}
	if err != nil {
		return webhook.Webhook{}, fmt.Errorf("selecting webhook: %w", err)
	}
	return wh, nil
}

// List returns every webhook, oldest first
func (r *Repository) List(ctx context.Context) ([]webhook.Webhook, error) {
	return r.list(ctx, "SELECT "+webhookColumns+" FROM webhooks ORDER BY created_at, id")
}

// ListEnabled returns the webhooks eligible for delivery
func (r *Repository) ListEnabled(ctx context.Context) ([]webhook.Webhook, error) {
	return r.list(ctx, "SELECT "+webhookColumns+" FROM webhooks WHERE enabled = ? ORDER BY created_at, id", true)
}

func (r *Repository) list(ctx context.Context, query string, args ...any) ([]webhook.Webhook, error) {
	rows, err := r.DB.QueryContext(ctx, r.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("selecting webhooks: %w", err)
	}
	defer rows.Close()

	webhooks := []webhook.Webhook{}
	for rows.Next() {
		wh, err := scanWebhook(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning webhook: %w", err)
		}
		webhooks = append(webhooks, wh)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating webhooks: %w", err)
	}
	return webhooks, nil
}

// Create inserts a new webhook
func (r *Repository) Create(ctx context.Context, wh webhook.Webhook) error {
	events, headers, err := encode(wh)
	if err != nil {
		return err
	}

	query := r.rebind(`
		INSERT INTO webhooks (id, name, url, events, secret, headers, enabled, timeout_seconds,
			max_retries, retry_delay_seconds, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)

	_, err = r.DB.ExecContext(ctx, query,
		wh.ID, wh.Name, wh.URL, events, wh.Secret, headers, wh.Enabled, wh.TimeoutSeconds,
		wh.MaxRetries, wh.RetryDelaySeconds, wh.CreatedAt.UTC(), wh.UpdatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("inserting webhook: %w", err)
	}
	return nil
}

// Update rewrites the operator-editable fields; counters are left alone
func (r *Repository) Update(ctx context.Context, wh webhook.Webhook) error {
	events, headers, err := encode(wh)
	if err != nil {
		return err
	}

	query := r.rebind(`
		UPDATE webhooks
		SET name = ?, url = ?, events = ?, secret = ?, headers = ?, enabled = ?,
			timeout_seconds = ?, max_retries = ?, retry_delay_seconds = ?, updated_at = ?
		WHERE id = ?
	`)

	result, err := r.DB.ExecContext(ctx, query,
		wh.Name, wh.URL, events, wh.Secret, headers, wh.Enabled,
		wh.TimeoutSeconds, wh.MaxRetries, wh.RetryDelaySeconds, wh.UpdatedAt.UTC(),
		wh.ID,
	)
	if err != nil {
		return fmt.Errorf("updating webhook: %w", err)
	}
	return affected(result)
}

// SetEnabled flips the enabled flag
func (r *Repository) SetEnabled(ctx context.Context, id string, enabled bool) error {
	query := r.rebind("UPDATE webhooks SET enabled = ?, updated_at = ? WHERE id = ?")

	result, err := r.DB.ExecContext(ctx, query, enabled, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("updating webhook enabled: %w", err)
	}
	return affected(result)
}

// Delete removes a webhook; delivery logs are kept
func (r *Repository) Delete(ctx context.Context, id string) error {
	query := r.rebind("DELETE FROM webhooks WHERE id = ?")

	result, err := r.DB.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("deleting webhook: %w", err)
	}
	return affected(result)
}

// RecordOutcome bumps the counters in a single statement
func (r *Repository) RecordOutcome(ctx context.Context, id string, success bool, at time.Time) error {
	column := "failed_calls"
	if success {
		column = "success_calls"
	}
	query := r.rebind(`
		UPDATE webhooks
		SET total_calls = total_calls + 1, ` + column + ` = ` + column + ` + 1, last_triggered_at = ?
		WHERE id = ?
	`)

	result, err := r.DB.ExecContext(ctx, query, at.UTC(), id)
	if err != nil {
		return fmt.Errorf("recording outcome: %w", err)
	}
	return affected(result)
}

func affected(result sql.Result) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if rows == 0 {
		return webhook.ErrNotFound
	}
	return nil
}
