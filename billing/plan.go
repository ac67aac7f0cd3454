package billing

import (
	"fmt"
	"slices"
	"time"

	"github.com/dmitrymomot/agentpay/pkg/validator"
)

// PaymentPlan describes what users can buy: a freemium allowance, a metered
// pay-per-use price, or a recurring subscription with an optional per-period
// request cap. Plans are immutable once referenced by a live subscription
// except for the administrative IsActive flag; deactivation is the soft-delete
// path, plans referenced by subscriptions are never removed.
type PaymentPlan struct {
	ID                string        `json:"id"`
	Name              string        `json:"name"`
	Description       string        `json:"description,omitempty"`
	PaymentType       PaymentType   `json:"payment_type"`
	Price             float64       `json:"price"`
	Currency          string        `json:"currency"`
	PricePerRequest   *float64      `json:"price_per_request,omitempty"`
	BillingPeriod     BillingPeriod `json:"billing_period,omitempty"`
	RequestsPerPeriod *int          `json:"requests_per_period,omitempty"`
	FreeRequests      int           `json:"free_requests"`
	Features          []string      `json:"features"`
	IsActive          bool          `json:"is_active"`
	CreatedAt         time.Time     `json:"created_at"`
}

// NewPaymentPlan builds and validates a payment plan.
func NewPaymentPlan(id, name string, paymentType PaymentType, price float64, currency string) (*PaymentPlan, error) {
	plan := &PaymentPlan{
		ID:          id,
		Name:        name,
		PaymentType: paymentType,
		Price:       price,
		Currency:    currency,
		IsActive:    true,
		CreatedAt:   time.Now().UTC(),
	}
	if err := plan.Validate(); err != nil {
		return nil, err
	}
	return plan, nil
}

func (p *PaymentPlan) IsFreemium() bool {
	return p.PaymentType == PaymentTypeFreemium
}

func (p *PaymentPlan) IsSubscription() bool {
	return p.PaymentType == PaymentTypeSubscription
}

func (p *PaymentPlan) IsPayPerUse() bool {
	return p.PaymentType == PaymentTypePayPerUse
}

// HasFeature reports whether the plan covers a feature.
func (p *PaymentPlan) HasFeature(feature string) bool {
	return slices.Contains(p.Features, feature)
}

// Unlimited reports whether a subscription plan imposes no per-period cap.
func (p *PaymentPlan) Unlimited() bool {
	return p.RequestsPerPeriod == nil
}

// PriceDisplay returns a formatted price string for UIs and the CLI.
func (p *PaymentPlan) PriceDisplay() string {
	if p.IsFreemium() {
		return "Free"
	}
	if p.IsPayPerUse() && p.PricePerRequest != nil {
		return fmt.Sprintf("%s %s per request", validator.FormatAmount(*p.PricePerRequest), p.Currency)
	}
	return fmt.Sprintf("%s %s", validator.FormatAmount(p.Price), p.Currency)
}

// Validate enforces the plan construction invariants. Freemium plans may be
// free of charge, but any priced plan must meet the currency-class minimum.
func (p *PaymentPlan) Validate() error {
	rules := validator.RequiredSafeString("id", p.ID, 100)
	rules = append(rules, validator.RequiredSafeString("name", p.Name, 255)...)
	if p.Description != "" {
		rules = append(rules,
			validator.MaxLen("description", p.Description, 1000),
			validator.SafeString("description", p.Description),
		)
	}
	rules = append(rules,
		validator.NonNegativeAmount("price", p.Price),
		validator.SupportedCurrency("currency", p.Currency),
		validator.NonNegativeAmount("free_requests", p.FreeRequests),
	)
	for _, feature := range p.Features {
		rules = append(rules, validator.RequiredSafeString("features", feature, 255)...)
	}
	if err := validator.Apply(rules...); err != nil {
		return err
	}

	if _, err := ParsePaymentType(string(p.PaymentType)); err != nil {
		return err
	}

	if p.IsSubscription() {
		if p.BillingPeriod == "" {
			return validator.NewError("billing_period", p.BillingPeriod,
				"billing period is required for subscription plans")
		}
		if _, err := ParseBillingPeriod(string(p.BillingPeriod)); err != nil {
			return err
		}
	} else if p.BillingPeriod != "" {
		return validator.NewError("billing_period", p.BillingPeriod,
			fmt.Sprintf("billing period is not allowed for %s plans", p.PaymentType))
	}

	if p.PricePerRequest != nil {
		if err := validator.Apply(
			validator.NonNegativeAmount("price_per_request", *p.PricePerRequest),
			validator.MinTransactableAmount("price_per_request", *p.PricePerRequest, p.Currency),
		); err != nil {
			return err
		}
	}

	if p.RequestsPerPeriod != nil && *p.RequestsPerPeriod < 0 {
		return validator.NewError("requests_per_period", *p.RequestsPerPeriod,
			"requests per period cannot be negative")
	}

	// Class minimums apply to any plan that charges; freemium stays free.
	if !p.IsFreemium() && p.Price > 0 {
		if err := validator.Apply(
			validator.MinTransactableAmount("price", p.Price, p.Currency),
		); err != nil {
			return err
		}
	}

	return nil
}
