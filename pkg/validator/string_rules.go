package validator

import (
	"fmt"
	"strings"
)

// Characters rejected by SafeString. Keeping injection-prone characters out of
// identifiers and names means downstream storage and display layers never have
// to escape them.
const unsafeChars = `<>"'`

// RequiredString validates that a string is not empty after trimming whitespace.
func RequiredString(field, value string) Rule {
	return Rule{
		Check: func() bool {
			return strings.TrimSpace(value) != ""
		},
		Error: ValidationError{
			Field:   field,
			Value:   value,
			Message: "field is required",
		},
	}
}

func MaxLenString(field, value string, max int) Rule {
	return Rule{
		Check: func() bool {
			return len(value) <= max
		},
		Error: ValidationError{
			Field:   field,
			Value:   value,
			Message: fmt.Sprintf("must be at most %d characters long", max),
		},
	}
}

func MinLenString(field, value string, min int) Rule {
	return Rule{
		Check: func() bool {
			return len(value) >= min
		},
		Error: ValidationError{
			Field:   field,
			Value:   value,
			Message: fmt.Sprintf("must be at least %d characters long", min),
		},
	}
}

// SafeString rejects values containing markup/quote characters, control
// characters, or surrounding whitespace. Validation is rejection-based:
// invalid input is refused, never silently rewritten.
func SafeString(field, value string) Rule {
	return Rule{
		Check: func() bool {
			if value != strings.TrimSpace(value) {
				return false
			}
			if strings.ContainsAny(value, unsafeChars) {
				return false
			}
			for _, r := range value {
				if r < 0x20 && r != '\t' && r != '\n' && r != '\r' {
					return false
				}
				if r == 0x7F {
					return false
				}
			}
			return true
		},
		Error: ValidationError{
			Field:   field,
			Value:   value,
			Message: "contains unsafe or non-printable characters",
		},
	}
}

// Convenience aliases for common string validation cases

func Required(field, value string) Rule {
	return RequiredString(field, value)
}

func MaxLen(field, value string, max int) Rule {
	return MaxLenString(field, value, max)
}

// RequiredSafeString bundles the full sanitization contract shared by every
// entity identifier: non-empty after trimming, length-bounded, safe charset.
func RequiredSafeString(field, value string, max int) []Rule {
	return []Rule{
		RequiredString(field, value),
		MaxLenString(field, value, max),
		SafeString(field, value),
	}
}
