package webhook

import "fmt"

/* State is the operator-facing view of the enabled flag
 * Disabled webhooks keep their delivery history
 */
type State int

const (
	Active State = iota + 1
	Disabled
)

// String returns the string representation of the state
func (s State) String() string {
	switch s {
	case Active:
		return "active"
	case Disabled:
		return "disabled"
	default:
		return "unknown"
	}
}

// NewState creates a State from a string
func NewState(str string) State {
	switch str {
	case "active":
		return Active
	case "disabled":
		return Disabled
	default:
		return Disabled
	}
}

// Validate checks if the state is valid
func (s State) Validate() error {
	if s != Active && s != Disabled {
		return fmt.Errorf("invalid state: %d", s)
	}
	return nil
}
