package logger

import "log/slog"

// Error creates an attribute for a single error under the key "error".
// If err is nil, it returns an empty Attr.
func Error(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.Any("error", err)
}

// UserID records the user identifier under the key "user_id".
func UserID(id string) slog.Attr {
	return slog.String("user_id", id)
}

// PlanID records the payment plan identifier under the key "plan_id".
func PlanID(id string) slog.Attr {
	return slog.String("plan_id", id)
}

// Feature records the feature name under the key "feature".
func Feature(name string) slog.Attr {
	return slog.String("feature", name)
}

// TransactionID records the payment transaction identifier under the key "transaction_id".
func TransactionID(id string) slog.Attr {
	return slog.String("transaction_id", id)
}

// Provider records the payment provider name under the key "provider".
func Provider(name string) slog.Attr {
	return slog.String("provider", name)
}

// Storage records the storage backend name under the key "storage".
func Storage(name string) slog.Attr {
	return slog.String("storage", name)
}

// Component records the component name under the key "component".
func Component(name string) slog.Attr {
	return slog.String("component", name)
}

// Amount records a monetary amount and its currency.
func Amount(amount float64, currency string) slog.Attr {
	return slog.Attr{Key: "amount", Value: slog.GroupValue(
		slog.Float64("value", amount),
		slog.String("currency", currency),
	)}
}
