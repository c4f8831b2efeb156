package webhook

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when a webhook does not exist
var ErrNotFound = errors.New("webhook not found")

/* ValidationError reports a malformed webhook configuration
 * Raised at registry-write time, never at delivery time
 */
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// IsValidation reports whether err carries a ValidationError
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
