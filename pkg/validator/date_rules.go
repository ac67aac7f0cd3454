package validator

import (
	"fmt"
	"time"
)

// ISO8601 validates that a string parses as an RFC 3339 timestamp with an
// explicit UTC offset. Naive timestamps are rejected so stored times are
// always comparable.
func ISO8601(field, value string) Rule {
	return Rule{
		Check: func() bool {
			_, err := time.Parse(time.RFC3339, value)
			return err == nil
		},
		Error: ValidationError{
			Field:   field,
			Value:   value,
			Message: fmt.Sprintf("invalid ISO 8601 timestamp: %s", value),
		},
	}
}

// NotBefore validates that t is not before reference. Zero times pass so
// optional dates can be skipped by the caller.
func NotBefore(field string, t, reference time.Time) Rule {
	return Rule{
		Check: func() bool {
			if t.IsZero() || reference.IsZero() {
				return true
			}
			return !t.Before(reference)
		},
		Error: ValidationError{
			Field:   field,
			Value:   t,
			Message: fmt.Sprintf("cannot be before %s", reference.Format(time.RFC3339)),
		},
	}
}
