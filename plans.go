package agentpay

import (
	"context"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/dmitrymomot/agentpay/billing"
	"github.com/dmitrymomot/agentpay/storage"
)

// PlansFileSource loads a plan catalog from a YAML file. The catalog is the
// operator-facing way to declare plans without touching code:
//
//	plans:
//	  - id: free
//	    name: Free Tier
//	    payment_type: freemium
//	    currency: USD
//	    free_requests: 100
//	    features: [chat]
type PlansFileSource struct {
	path string
}

// NewPlansFileSource creates a source for the given path.
func NewPlansFileSource(path string) *PlansFileSource {
	return &PlansFileSource{path: path}
}

type planDoc struct {
	Plans []planSpec `yaml:"plans"`
}

type planSpec struct {
	ID                string   `yaml:"id"`
	Name              string   `yaml:"name"`
	Description       string   `yaml:"description"`
	PaymentType       string   `yaml:"payment_type"`
	Price             float64  `yaml:"price"`
	Currency          string   `yaml:"currency"`
	PricePerRequest   *float64 `yaml:"price_per_request"`
	BillingPeriod     string   `yaml:"billing_period"`
	RequestsPerPeriod *int     `yaml:"requests_per_period"`
	FreeRequests      int      `yaml:"free_requests"`
	Features          []string `yaml:"features"`
}

// Load parses and validates the catalog. A single invalid plan fails the
// whole load, so a partially applied catalog is never observed.
func (s *PlansFileSource) Load() ([]*billing.PaymentPlan, error) {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("read plan catalog: %w", err)
	}

	var doc planDoc
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse plan catalog: %w", err)
	}
	if len(doc.Plans) == 0 {
		return nil, fmt.Errorf("plan catalog %s contains no plans", s.path)
	}

	plans := make([]*billing.PaymentPlan, 0, len(doc.Plans))
	for _, spec := range doc.Plans {
		paymentType, err := billing.ParsePaymentType(spec.PaymentType)
		if err != nil {
			return nil, fmt.Errorf("plan %s: %w", spec.ID, err)
		}

		plan := &billing.PaymentPlan{
			ID:                spec.ID,
			Name:              spec.Name,
			Description:       spec.Description,
			PaymentType:       paymentType,
			Price:             spec.Price,
			Currency:          spec.Currency,
			PricePerRequest:   spec.PricePerRequest,
			BillingPeriod:     billing.BillingPeriod(spec.BillingPeriod),
			RequestsPerPeriod: spec.RequestsPerPeriod,
			FreeRequests:      spec.FreeRequests,
			Features:          spec.Features,
			IsActive:          true,
			CreatedAt:         time.Now().UTC(),
		}
		if err := plan.Validate(); err != nil {
			return nil, fmt.Errorf("plan %s: %w", spec.ID, err)
		}
		plans = append(plans, plan)
	}
	return plans, nil
}

// Apply loads the catalog and saves every plan to storage.
func (s *PlansFileSource) Apply(ctx context.Context, store storage.Storage) ([]*billing.PaymentPlan, error) {
	plans, err := s.Load()
	if err != nil {
		return nil, err
	}
	for _, plan := range plans {
		if err := store.SavePaymentPlan(ctx, plan); err != nil {
			return nil, fmt.Errorf("save plan %s: %w", plan.ID, err)
		}
	}
	return plans, nil
}
