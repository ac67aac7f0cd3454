// Package logger provides a slog-based logger factory and attribute helpers
// shared across the billing engine.
//
// The factory defaults to machine-readable JSON output, and the attribute
// helpers keep log field names consistent (user_id, plan_id, transaction_id)
// so records from different components correlate in aggregation systems.
package logger
