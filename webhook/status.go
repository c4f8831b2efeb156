package webhook

import "fmt"

/* Status represents the outcome of a single delivery attempt
 * Follows the lifecycle: Pending -> Success/Failed/Retrying
 * Retrying is transient, the next attempt is already scheduled
 */
type Status int

const (
	Pending Status = iota + 1
	Success
	Failed
	Retrying
)

// String returns the string representation of the status
func (s Status) String() string {
	switch s {
	case Pending:
		return "pending"
	case Success:
		return "success"
	case Failed:
		return "failed"
	case Retrying:
		return "retrying"
	default:
		return "unknown"
	}
}

// NewStatus creates a Status from a string
func NewStatus(str string) Status {
	switch str {
	case "pending":
		return Pending
	case "success":
		return Success
	case "failed":
		return Failed
	case "retrying":
		return Retrying
	default:
		return Pending
	}
}

// Validate checks if the status is valid
func (s Status) Validate() error {
	if s < Pending || s > Retrying {
		return fmt.Errorf("invalid status: %d", s)
	}
	return nil
}

// IsFinal returns true if no further attempt follows this one
func (s Status) IsFinal() bool {
	return s == Success || s == Failed
}
