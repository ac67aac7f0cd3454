package storage

import (
	"context"
	"time"

	"github.com/dmitrymomot/agentpay/billing"
)

// Storage is the persistence contract consumed by the engine. Every method
// takes a context and returns wrapped errors; entity lookups that find
// nothing return ErrNotFound so callers can branch with errors.Is.
//
// Implementations must return copies of stored entities: a caller mutating a
// returned value must not change what a subsequent Get observes until it is
// saved back.
type Storage interface {
	// SavePaymentPlan inserts or replaces a plan by ID.
	SavePaymentPlan(ctx context.Context, plan *billing.PaymentPlan) error
	// GetPaymentPlan fetches a plan by ID.
	GetPaymentPlan(ctx context.Context, id string) (*billing.PaymentPlan, error)
	// ListPaymentPlans returns plans sorted by ID. With activeOnly set,
	// deactivated plans are excluded.
	ListPaymentPlans(ctx context.Context, activeOnly bool) ([]*billing.PaymentPlan, error)
	// DeletePaymentPlan soft-deletes a plan by clearing its active flag.
	// Plans referenced by subscriptions are never physically removed.
	DeletePaymentPlan(ctx context.Context, id string) error

	// SaveSubscription inserts or replaces a subscription by ID.
	SaveSubscription(ctx context.Context, sub *billing.Subscription) error
	// GetSubscription fetches a subscription by ID.
	GetSubscription(ctx context.Context, id string) (*billing.Subscription, error)
	// GetUserSubscription returns the user's current non-terminal
	// subscription (active or suspended), or ErrNotFound.
	GetUserSubscription(ctx context.Context, userID string) (*billing.Subscription, error)

	// SaveUsageRecord appends a usage record. Records are immutable.
	SaveUsageRecord(ctx context.Context, rec *billing.UsageRecord) error
	// GetUserUsage returns the user's usage records with timestamps in
	// [from, to), oldest first.
	GetUserUsage(ctx context.Context, userID string, from, to time.Time) ([]*billing.UsageRecord, error)

	// SaveTransaction inserts a new transaction by ID.
	SaveTransaction(ctx context.Context, tx *billing.PaymentTransaction) error
	// UpdateTransaction replaces an existing transaction. Returns
	// ErrNotFound if it was never saved.
	UpdateTransaction(ctx context.Context, tx *billing.PaymentTransaction) error
	// GetTransaction fetches a transaction by ID.
	GetTransaction(ctx context.Context, id string) (*billing.PaymentTransaction, error)
	// ListTransactions returns the user's transactions newest first,
	// optionally filtered by status. A non-positive limit means no limit.
	ListTransactions(ctx context.Context, userID string, status billing.TransactionStatus, limit int) ([]*billing.PaymentTransaction, error)

	// Capabilities reports what the backend can do so the engine can pick
	// between transactional and best-effort write paths.
	Capabilities() Capabilities

	// Healthcheck probes the backend and reports latency.
	Healthcheck(ctx context.Context) Status
}

// TxStorage is implemented by backends with real transactions. WithinTx runs
// fn against a transactional view of the storage; fn returning an error rolls
// everything back.
type TxStorage interface {
	Storage

	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Storage) error) error
}

// Capabilities describes what a backend supports.
type Capabilities struct {
	// Transactions is true when the backend implements TxStorage with
	// atomic commit and rollback.
	Transactions bool `json:"transactions"`
	// ConcurrentAccess is true when the backend is safe for concurrent
	// writers without external locking.
	ConcurrentAccess bool `json:"concurrent_access"`
	// Search is true when the backend can filter server-side instead of
	// scanning client-side.
	Search bool `json:"search"`
	// MaxMetadataBytes caps the serialized metadata size, zero means
	// unbounded.
	MaxMetadataBytes int `json:"max_metadata_bytes,omitempty"`
}

// Status is a health probe result.
type Status struct {
	IsHealthy      bool   `json:"is_healthy"`
	ResponseTimeMS int64  `json:"response_time_ms"`
	ErrorMessage   string `json:"error_message,omitempty"`
}

// Probe measures fn and converts the outcome into a Status. Shared helper for
// backend Healthcheck implementations.
func Probe(ctx context.Context, fn func(ctx context.Context) error) Status {
	started := time.Now()
	err := fn(ctx)
	elapsed := time.Since(started).Milliseconds()

	if err != nil {
		return Status{IsHealthy: false, ResponseTimeMS: elapsed, ErrorMessage: err.Error()}
	}
	return Status{IsHealthy: true, ResponseTimeMS: elapsed}
}
