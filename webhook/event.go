package webhook

import "fmt"

/* EventType is the closed set of domain events a webhook can subscribe to
 * Custom doubles as the broad subscription marker: a webhook subscribed to it
 * receives every event
 */
type EventType string

const (
	UserCreated           EventType = "user.created"
	UserUpdated           EventType = "user.updated"
	UserDeleted           EventType = "user.deleted"
	PaymentCreated        EventType = "payment.created"
	PaymentApproved       EventType = "payment.approved"
	PaymentFailed         EventType = "payment.failed"
	SubscriptionCreated   EventType = "subscription.created"
	SubscriptionCancelled EventType = "subscription.cancelled"
	IdeaCreated           EventType = "idea.created"
	IdeaUpdated           EventType = "idea.updated"
	Custom                EventType = "custom"
)

var eventTypes = []EventType{
	UserCreated,
	UserUpdated,
	UserDeleted,
	PaymentCreated,
	PaymentApproved,
	PaymentFailed,
	SubscriptionCreated,
	SubscriptionCancelled,
	IdeaCreated,
	IdeaUpdated,
	Custom,
}

// EventTypes returns every recognized event type
func EventTypes() []EventType {
	out := make([]EventType, len(eventTypes))
	copy(out, eventTypes)
	return out
}

// String returns the wire name of the event
func (e EventType) String() string {
	return string(e)
}

// Validate checks that the event belongs to the known set
func (e EventType) Validate() error {
	for _, known := range eventTypes {
		if e == known {
			return nil
		}
	}
	return fmt.Errorf("unknown event type: %q", string(e))
}

// NewEventType parses a wire name into an EventType
func NewEventType(str string) (EventType, error) {
	e := EventType(str)
	if err := e.Validate(); err != nil {
		return "", err
	}
	return e, nil
}
