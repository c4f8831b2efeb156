package webhook

import (
	"context"
	"time"
)

/* Small, focused interfaces following "The Go Way"
 * Interfaces abstract behavior, not things
 * Written for users of the API, not just for testing
 */

// Reader provides read operations for the registry
type Reader interface {
	Get(ctx context.Context, id string) (Webhook, error)
	List(ctx context.Context) ([]Webhook, error)
	/* ListEnabled is the only lookup the delivery path uses
	 * Disabled webhooks never reach the engine
	 */
	ListEnabled(ctx context.Context) ([]Webhook, error)
}

// Writer provides write operations for the registry
type Writer interface {
	Create(ctx context.Context, wh Webhook) error
	Update(ctx context.Context, wh Webhook) error
	SetEnabled(ctx context.Context, id string, enabled bool) error
	Delete(ctx context.Context, id string) error
	/* RecordOutcome moves the rolling counters once per logical event
	 * totalCalls+1 and either successCalls+1 or failedCalls+1
	 */
	RecordOutcome(ctx context.Context, id string, success bool, at time.Time) error
}

// LogReader provides read operations for delivery logs
type LogReader interface {
	// ListLogs returns logs most-recent-first
	ListLogs(ctx context.Context, filter LogFilter) ([]DeliveryLog, error)
	LogsSince(ctx context.Context, since time.Time) ([]DeliveryLog, error)
}

// LogWriter provides write operations for delivery logs
type LogWriter interface {
	InsertLog(ctx context.Context, log DeliveryLog) error
	UpdateLog(ctx context.Context, log DeliveryLog) error
	/* DeleteLogsBefore removes resolved logs created before the cutoff
	 * Pending rows belong to in-flight attempts and are never removed
	 */
	DeleteLogsBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

/* Interface composition - combining small interfaces into larger ones
 * This is preferred over large monolithic interfaces
 */
type Repository interface {
	Reader
	Writer
	LogReader
	LogWriter
	Close(ctx context.Context) error
}
