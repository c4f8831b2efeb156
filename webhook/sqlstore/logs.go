package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/marcelsud/webhook-dispatch/webhook"
)

const logColumns = `id, webhook_id, delivery_id, event, payload, attempt, status, http_status,
	response_body, error_message, duration_ms, created_at, completed_at`

func scanLog(s scanner) (webhook.DeliveryLog, error) {
	var (
		l          webhook.DeliveryLog
		event      string
		payload    string
		status     string
		httpStatus sql.NullInt64
		duration   sql.NullInt64
		completed  sql.NullTime
	)
	err := s.Scan(
		&l.ID,
		&l.WebhookID,
		&l.DeliveryID,
		&event,
		&payload,
		&l.Attempt,
		&status,
		&httpStatus,
		&l.ResponseBody,
		&l.ErrorMessage,
		&duration,
		&l.CreatedAt,
		&completed,
	)
	if err != nil {
		return webhook.DeliveryLog{}, err
	}

	l.Event = webhook.EventType(event)
	l.Payload = []byte(payload)
	l.Status = webhook.NewStatus(status)
	l.CreatedAt = l.CreatedAt.UTC()
	if httpStatus.Valid {
		l.HTTPStatus = int(httpStatus.Int64)
	}
	if duration.Valid {
		d := duration.Int64
		l.DurationMs = &d
	}
	if completed.Valid {
		t := completed.Time.UTC()
		l.CompletedAt = &t
	}
	return l, nil
}

func nullable(l webhook.DeliveryLog) (httpStatus sql.NullInt64, duration sql.NullInt64, completed sql.NullTime) {
	if l.HTTPStatus != 0 {
		httpStatus = sql.NullInt64{Int64: int64(l.HTTPStatus), Valid: true}
	}
	if l.DurationMs != nil {
		duration = sql.NullInt64{Int64: *l.DurationMs, Valid: true}
	}
	if l.CompletedAt != nil {
		completed = sql.NullTime{Time: l.CompletedAt.UTC(), Valid: true}
	}
	return
}

// InsertLog stores a new attempt row
func (r *Repository) InsertLog(ctx context.Context, l webhook.DeliveryLog) error {
	httpStatus, duration, completed := nullable(l)

	query := r.rebind(`
		INSERT INTO webhook_logs (` + logColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)

	_, err := r.DB.ExecContext(ctx, query,
		l.ID, l.WebhookID, l.DeliveryID, l.Event.String(), string(l.Payload), l.Attempt, l.Status.String(),
		httpStatus, l.ResponseBody, l.ErrorMessage, duration, l.CreatedAt.UTC(), completed,
	)
	if err != nil {
		return fmt.Errorf("inserting log: %w", err)
	}
	return nil
}

// UpdateLog resolves an attempt row in place
func (r *Repository) UpdateLog(ctx context.Context, l webhook.DeliveryLog) error {
	httpStatus, duration, completed := nullable(l)

	query := r.rebind(`
		UPDATE webhook_logs
		SET status = ?, http_status = ?, response_body = ?, error_message = ?, duration_ms = ?, completed_at = ?
		WHERE id = ?
	`)

	result, err := r.DB.ExecContext(ctx, query,
		l.Status.String(), httpStatus, l.ResponseBody, l.ErrorMessage, duration, completed, l.ID,
	)
	if err != nil {
		return fmt.Errorf("updating log: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("log %s: %w", l.ID, webhook.ErrNotFound)
	}
	return nil
}

// ListLogs returns logs most-recent-first
func (r *Repository) ListLogs(ctx context.Context, filter webhook.LogFilter) ([]webhook.DeliveryLog, error) {
	query := "SELECT " + logColumns + " FROM webhook_logs"
	args := []any{}
	if filter.WebhookID != "" {
		query += " WHERE webhook_id = ?"
		args = append(args, filter.WebhookID)
	}
	query += " ORDER BY created_at DESC, attempt DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}
	return r.listLogs(ctx, query, args...)
}

// LogsSince returns logs created at or after since
func (r *Repository) LogsSince(ctx context.Context, since time.Time) ([]webhook.DeliveryLog, error) {
	query := "SELECT " + logColumns + " FROM webhook_logs WHERE created_at >= ? ORDER BY created_at"
	return r.listLogs(ctx, query, since.UTC())
}

func (r *Repository) listLogs(ctx context.Context, query string, args ...any) ([]webhook.DeliveryLog, error) {
	rows, err := r.DB.QueryContext(ctx, r.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("selecting logs: %w", err)
	}
	defer rows.Close()

	logs := []webhook.DeliveryLog{}
	for rows.Next() {
		l, err := scanLog(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning log: %w", err)
		}
		logs = append(logs, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating logs: %w", err)
	}
	return logs, nil
}

// DeleteLogsBefore removes resolved logs older than cutoff and reports how many
func (r *Repository) DeleteLogsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	query := r.rebind("DELETE FROM webhook_logs WHERE created_at < ? AND status <> ?")

	result, err := r.DB.ExecContext(ctx, query, cutoff.UTC(), webhook.Pending.String())
	if err != nil {
		return 0, fmt.Errorf("deleting logs: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("getting rows affected: %w", err)
	}
	return n, nil
}
