//go:build !integration

package sqlstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/marcelsud/webhook-dispatch/webhook"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

/*
Unit tests for the PostgreSQL dialect

sqlmock checks the SQL shape after rebinding without a real database.
Run with: go test ./webhook/sqlstore/...
*/

func newMock(t *testing.T) (*Repository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return New(db, Postgres), mock
}

func TestPostgres_RecordOutcome_Unit(t *testing.T) {
	ctx := context.Background()
	at := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	t.Run("success increments total and success", func(t *testing.T) {
		repo, mock := newMock(t)
		mock.ExpectExec(`UPDATE webhooks\s+SET total_calls = total_calls \+ 1, success_calls = success_calls \+ 1, last_triggered_at = \$1\s+WHERE id = \$2`).
			WithArgs(at, "wh-1").
			WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, repo.RecordOutcome(ctx, "wh-1", true, at))
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("failure increments total and failed", func(t *testing.T) {
		repo, mock := newMock(t)
		mock.ExpectExec(`SET total_calls = total_calls \+ 1, failed_calls = failed_calls \+ 1`).
			WithArgs(at, "wh-1").
			WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, repo.RecordOutcome(ctx, "wh-1", false, at))
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unknown webhook", func(t *testing.T) {
		repo, mock := newMock(t)
		mock.ExpectExec(`UPDATE webhooks`).WillReturnResult(sqlmock.NewResult(0, 0))

		err := repo.RecordOutcome(ctx, "gone", false, at)
		assert.ErrorIs(t, err, webhook.ErrNotFound)
	})
}

func TestPostgres_Get_Unit(t *testing.T) {
	ctx := context.Background()
	created := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	t.Run("select existing webhook", func(t *testing.T) {
		repo, mock := newMock(t)
		rows := sqlmock.NewRows([]string{
			"id", "name", "url", "events", "secret", "headers", "enabled", "timeout_seconds", "max_retries",
			"retry_delay_seconds", "total_calls", "success_calls", "failed_calls", "last_triggered_at",
			"created_at", "updated_at",
		}).AddRow(
			"wh-1", "billing", "https://example.test/hook", `["payment.approved","custom"]`, "", `{}`, true, 30, 3,
			60, 4, 3, 1, nil, created, created,
		)
		mock.ExpectQuery(`SELECT .+ FROM webhooks WHERE id = \$1`).WithArgs("wh-1").WillReturnRows(rows)

		wh, err := repo.Get(ctx, "wh-1")

		require.NoError(t, err)
		assert.Equal(t, []webhook.EventType{webhook.PaymentApproved, webhook.Custom}, wh.Events)
		assert.Equal(t, int64(4), wh.TotalCalls)
		assert.Nil(t, wh.LastTriggeredAt)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("select missing webhook", func(t *testing.T) {
		repo, mock := newMock(t)
		mock.ExpectQuery(`SELECT .+ FROM webhooks WHERE id = \$1`).
			WithArgs("nope").
			WillReturnRows(sqlmock.NewRows([]string{"id"}))

		_, err := repo.Get(ctx, "nope")
		assert.ErrorIs(t, err, webhook.ErrNotFound)
	})
}

func TestPostgres_DeleteLogsBefore_Unit(t *testing.T) {
	ctx := context.Background()
	cutoff := time.Date(2025, 12, 1, 0, 0, 0, 0, time.UTC)

	t.Run("skips pending rows", func(t *testing.T) {
		repo, mock := newMock(t)
		mock.ExpectExec(`DELETE FROM webhook_logs WHERE created_at < \$1 AND status <> \$2`).
			WithArgs(cutoff, "pending").
			WillReturnResult(sqlmock.NewResult(0, 7))

		n, err := repo.DeleteLogsBefore(ctx, cutoff)

		require.NoError(t, err)
		assert.Equal(t, int64(7), n)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("database error", func(t *testing.T) {
		repo, mock := newMock(t)
		mock.ExpectExec(`DELETE FROM webhook_logs`).WillReturnError(errors.New("connection reset"))

		_, err := repo.DeleteLogsBefore(ctx, cutoff)

		require.Error(t, err)
		assert.Contains(t, err.Error(), "deleting logs")
	})
}

func TestPostgres_ListLogs_Unit(t *testing.T) {
	repo, mock := newMock(t)
	mock.ExpectQuery(`SELECT .+ FROM webhook_logs WHERE webhook_id = \$1 ORDER BY created_at DESC, attempt DESC LIMIT \$2`).
		WithArgs("wh-1", 20).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "webhook_id", "delivery_id", "event", "payload", "attempt", "status", "http_status",
			"response_body", "error_message", "duration_ms", "created_at", "completed_at",
		}))

	logs, err := repo.ListLogs(context.Background(), webhook.LogFilter{WebhookID: "wh-1", Limit: 20})

	require.NoError(t, err)
	assert.Empty(t, logs)
	require.NoError(t, mock.ExpectationsWereMet())
}
