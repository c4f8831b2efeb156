package payload

import (
	"encoding/json"
	"fmt"
	"regexp"
	"time"
)

// eventPattern validates event names: full-stop delimited, [a-zA-Z0-9_.]
var eventPattern = regexp.MustCompile(`^[a-zA-Z0-9_]+(\.[a-zA-Z0-9_]+)*$`)

// Metadata identifies the subscription and the delivery the event belongs to
type Metadata struct {
	WebhookID   string `json:"webhook_id"`
	WebhookName string `json:"webhook_name,omitempty"`
	DeliveryID  string `json:"delivery_id,omitempty"`
	Attempt     int    `json:"attempt,omitempty"`
	Test        bool   `json:"test,omitempty"`
}

/* Event is the JSON body POSTed to subscribers
 * Built fresh for every attempt and never mutated afterwards
 */
type Event struct {
	Event     string          `json:"event"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
	Metadata  Metadata        `json:"metadata"`
}

// Validate validates the envelope structure
func (e Event) Validate() error {
	if e.Event == "" {
		return fmt.Errorf("event is required")
	}

	if !eventPattern.MatchString(e.Event) {
		return fmt.Errorf("event must be hierarchical and contain only [a-zA-Z0-9_.]: %s", e.Event)
	}

	if e.Timestamp.IsZero() {
		return fmt.Errorf("timestamp is required")
	}

	if len(e.Data) == 0 {
		return fmt.Errorf("data is required")
	}

	if !json.Valid(e.Data) {
		return fmt.Errorf("data must be valid JSON")
	}

	if e.Metadata.WebhookID == "" {
		return fmt.Errorf("metadata.webhook_id is required")
	}

	return nil
}

// MarshalJSON renders the timestamp as RFC3339 with nanoseconds
func (e Event) MarshalJSON() ([]byte, error) {
	type Alias Event
	return json.Marshal(&struct {
		Timestamp string `json:"timestamp"`
		*Alias
	}{
		Timestamp: e.Timestamp.Format(time.RFC3339Nano),
		Alias:     (*Alias)(&e),
	})
}

// UnmarshalJSON parses the JSON-encoded data and stores the result
func (e *Event) UnmarshalJSON(data []byte) error {
	type Alias Event
	aux := &struct {
		Timestamp string `json:"timestamp"`
		*Alias
	}{
		Alias: (*Alias)(e),
	}

	if err := json.Unmarshal(data, &aux); err != nil {
		return fmt.Errorf("unmarshaling event: %w", err)
	}

	timestamp, err := time.Parse(time.RFC3339Nano, aux.Timestamp)
	if err != nil {
		return fmt.Errorf("parsing timestamp: %w", err)
	}
	e.Timestamp = timestamp

	return nil
}

// New wraps already-serialized data into an envelope stamped with the current time
func New(event string, data json.RawMessage, meta Metadata) (Event, error) {
	e := Event{
		Event:     event,
		Timestamp: time.Now().UTC(),
		Data:      data,
		Metadata:  meta,
	}

	if err := e.Validate(); err != nil {
		return Event{}, fmt.Errorf("validating event: %w", err)
	}

	return e, nil
}

// Parse parses a JSON body into an Event
func Parse(data []byte) (Event, error) {
	var e Event
	if err := json.Unmarshal(data, &e); err != nil {
		return Event{}, fmt.Errorf("unmarshaling event: %w", err)
	}

	if err := e.Validate(); err != nil {
		return Event{}, fmt.Errorf("validating event: %w", err)
	}

	return e, nil
}

// Bytes returns the minified JSON encoding
func (e Event) Bytes() ([]byte, error) {
	return json.Marshal(e)
}
