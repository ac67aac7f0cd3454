// Package validator provides composable, rejection-based validation rules for
// the billing entities: bounded safe strings, class-aware monetary amounts,
// supported currencies, ISO 8601 timestamps, and JSON-compatible metadata.
//
// Rules are plain values combined with Apply:
//
//	err := validator.Apply(
//		validator.Required("user_id", userID),
//		validator.MaxLen("user_id", userID, 100),
//		validator.NonNegativeAmount("amount", amount),
//		validator.MinTransactableAmount("amount", amount, currency),
//	)
//
// Every failure is reported as a ValidationError carrying the field name and
// offending value, so callers can branch on the failure programmatically.
// Validation never mutates input: a value is accepted or refused, never
// auto-corrected.
package validator
