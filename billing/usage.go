package billing

import (
	"time"

	"github.com/dmitrymomot/agentpay/pkg/validator"
)

// UsageRecord is a single metered feature access. Records are append-only:
// once written they are never updated, and usage totals are derived by
// counting records in a time window.
type UsageRecord struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Feature   string    `json:"feature"`
	Timestamp time.Time `json:"timestamp"`
	Cost      float64   `json:"cost"`
	Currency  string    `json:"currency"`
	Metadata  Metadata  `json:"metadata,omitempty"`
}

// NewUsageRecord creates a validated usage record stamped with the current
// time in UTC.
func NewUsageRecord(id, userID, feature string, cost float64, currency string, metadata Metadata) (*UsageRecord, error) {
	rec := &UsageRecord{
		ID:        id,
		UserID:    userID,
		Feature:   feature,
		Timestamp: time.Now().UTC(),
		Cost:      cost,
		Currency:  currency,
		Metadata:  metadata,
	}
	if err := rec.Validate(); err != nil {
		return nil, err
	}
	return rec, nil
}

// Validate enforces the usage record invariants.
func (r *UsageRecord) Validate() error {
	rules := validator.RequiredSafeString("id", r.ID, 100)
	rules = append(rules, validator.RequiredSafeString("user_id", r.UserID, 100)...)
	rules = append(rules, validator.RequiredSafeString("feature", r.Feature, 255)...)
	rules = append(rules,
		validator.NonNegativeAmount("cost", r.Cost),
		validator.JSONMetadata("metadata", r.Metadata),
	)
	if r.Cost > 0 {
		rules = append(rules, validator.SupportedCurrency("currency", r.Currency))
	}
	return validator.Apply(rules...)
}

// InWindow reports whether the record falls inside [start, end).
func (r *UsageRecord) InWindow(start, end time.Time) bool {
	return !r.Timestamp.Before(start) && r.Timestamp.Before(end)
}
