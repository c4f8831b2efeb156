package webhook

import (
	"time"
	"unicode/utf8"
)

// MaxResponseSnippet bounds the response body kept on a log row
const MaxResponseSnippet = 1000

/* DeliveryLog is one row per attempt, not per event
 * Rows of the same event firing share DeliveryID and carry an increasing Attempt
 */
type DeliveryLog struct {
	ID           string
	WebhookID    string
	DeliveryID   string
	Event        EventType
	Payload      []byte
	Attempt      int
	Status       Status
	HTTPStatus   int
	ResponseBody string
	ErrorMessage string
	DurationMs   *int64
	CreatedAt    time.Time
	CompletedAt  *time.Time
}

// LogFilter narrows a log listing
type LogFilter struct {
	WebhookID string
	Limit     int
}

// Snippet truncates a response body to MaxResponseSnippet characters
func Snippet(body []byte) string {
	if utf8.RuneCount(body) <= MaxResponseSnippet {
		return string(body)
	}
	runes := []rune(string(body))
	return string(runes[:MaxResponseSnippet])
}
