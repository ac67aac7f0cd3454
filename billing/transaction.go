package billing

import (
	"context"
	"fmt"
	"time"

	"github.com/dmitrymomot/agentpay/pkg/statemachine"
	"github.com/dmitrymomot/agentpay/pkg/validator"
)

const (
	eventComplete = statemachine.StringEvent("complete")
	eventFail     = statemachine.StringEvent("fail")
	eventRefund   = statemachine.StringEvent("refund")
)

// Transition table for payment transactions: pending is the only initial
// state, failed and refunded are terminal. A completed transaction can still
// fail (late provider reversal) or be refunded.
var transactionMachine = statemachine.MustNew(
	statemachine.WithTransitions(
		statemachine.Transition{From: statemachine.StringState(TransactionPending), To: statemachine.StringState(TransactionCompleted), Event: eventComplete},
		statemachine.Transition{From: statemachine.StringState(TransactionPending), To: statemachine.StringState(TransactionFailed), Event: eventFail},
		statemachine.Transition{From: statemachine.StringState(TransactionCompleted), To: statemachine.StringState(TransactionRefunded), Event: eventRefund},
		statemachine.Transition{From: statemachine.StringState(TransactionCompleted), To: statemachine.StringState(TransactionFailed), Event: eventFail},
	),
)

// PaymentTransaction records a single payment attempt through a provider.
// Transactions are append-only: they are created pending and mutated only
// through the Mark* state machine methods, never deleted.
type PaymentTransaction struct {
	ID          string            `json:"id"`
	UserID      string            `json:"user_id"`
	Amount      float64           `json:"amount"`
	Currency    string            `json:"currency"`
	Provider    string            `json:"provider"`
	Status      TransactionStatus `json:"status"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
	CompletedAt *time.Time        `json:"completed_at,omitempty"`
	Metadata    Metadata          `json:"metadata,omitempty"`
}

// NewPaymentTransaction creates a pending transaction for a payment attempt.
func NewPaymentTransaction(id, userID string, amount float64, currency, provider string, metadata Metadata) (*PaymentTransaction, error) {
	now := time.Now().UTC()
	tx := &PaymentTransaction{
		ID:        id,
		UserID:    userID,
		Amount:    amount,
		Currency:  currency,
		Provider:  provider,
		Status:    TransactionPending,
		CreatedAt: now,
		UpdatedAt: now,
		Metadata:  metadata,
	}
	if err := tx.Validate(); err != nil {
		return nil, err
	}
	return tx, nil
}

func (t *PaymentTransaction) IsPending() bool   { return t.Status == TransactionPending }
func (t *PaymentTransaction) IsCompleted() bool { return t.Status == TransactionCompleted }
func (t *PaymentTransaction) IsFailed() bool    { return t.Status == TransactionFailed }
func (t *PaymentTransaction) IsRefunded() bool  { return t.Status == TransactionRefunded }

// MarkCompleted transitions a pending transaction to completed and stamps the
// completion time.
func (t *PaymentTransaction) MarkCompleted() error {
	if err := t.transition(eventComplete, TransactionCompleted); err != nil {
		return err
	}
	now := time.Now().UTC()
	t.CompletedAt = &now
	return nil
}

// MarkFailed transitions a pending or completed transaction to failed.
func (t *PaymentTransaction) MarkFailed() error {
	return t.transition(eventFail, TransactionFailed)
}

// MarkRefunded transitions a completed transaction to refunded.
func (t *PaymentTransaction) MarkRefunded() error {
	return t.transition(eventRefund, TransactionRefunded)
}

func (t *PaymentTransaction) transition(event statemachine.Event, to TransactionStatus) error {
	next, err := transactionMachine.Fire(context.Background(), statemachine.StringState(t.Status), event, t)
	if err != nil {
		return validator.NewError("status", string(t.Status),
			fmt.Sprintf("cannot transition transaction from %s to %s", t.Status, to))
	}
	t.Status = TransactionStatus(next.Name())
	t.UpdatedAt = time.Now().UTC()
	return nil
}

// ProcessingTime returns the time between creation and completion, or zero if
// the transaction never completed.
func (t *PaymentTransaction) ProcessingTime() time.Duration {
	if t.CompletedAt == nil {
		return 0
	}
	return t.CompletedAt.Sub(t.CreatedAt)
}

// AmountDisplay returns a formatted amount string.
func (t *PaymentTransaction) AmountDisplay() string {
	return fmt.Sprintf("%s %s", validator.FormatAmount(t.Amount), t.Currency)
}

// Validate enforces the transaction construction invariants.
func (t *PaymentTransaction) Validate() error {
	rules := validator.RequiredSafeString("id", t.ID, 100)
	rules = append(rules, validator.RequiredSafeString("user_id", t.UserID, 100)...)
	rules = append(rules, validator.RequiredSafeString("provider", t.Provider, 100)...)
	rules = append(rules,
		validator.NonNegativeAmount("amount", t.Amount),
		validator.SupportedCurrency("currency", t.Currency),
		validator.MinTransactableAmount("amount", t.Amount, t.Currency),
		validator.JSONMetadata("metadata", t.Metadata),
	)
	if err := validator.Apply(rules...); err != nil {
		return err
	}

	switch t.Status {
	case TransactionPending, TransactionCompleted, TransactionFailed, TransactionRefunded:
	default:
		return validator.NewError("status", string(t.Status),
			fmt.Sprintf("invalid transaction status: %s", t.Status))
	}

	if t.CompletedAt != nil && t.CompletedAt.Before(t.CreatedAt) {
		return validator.NewError("completed_at", *t.CompletedAt,
			"completed date cannot be before created date")
	}

	return nil
}
