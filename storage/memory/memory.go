package memory

import (
	"context"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/dmitrymomot/agentpay/billing"
	"github.com/dmitrymomot/agentpay/storage"
)

const storageType = "memory"

// Storage is an in-memory backend for tests and single-process deployments.
// All entities are deep-copied on the way in and out, so callers never share
// state with the store.
type Storage struct {
	mu            sync.RWMutex
	plans         map[string]*billing.PaymentPlan
	subscriptions map[string]*billing.Subscription
	transactions  map[string]*billing.PaymentTransaction
	usage         []*billing.UsageRecord
}

// New creates an empty in-memory storage.
func New() *Storage {
	return &Storage{
		plans:         make(map[string]*billing.PaymentPlan),
		subscriptions: make(map[string]*billing.Subscription),
		transactions:  make(map[string]*billing.PaymentTransaction),
	}
}

func (s *Storage) SavePaymentPlan(_ context.Context, plan *billing.PaymentPlan) error {
	if err := plan.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.plans[plan.ID] = clonePlan(plan)
	return nil
}

func (s *Storage) GetPaymentPlan(_ context.Context, id string) (*billing.PaymentPlan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	plan, ok := s.plans[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return clonePlan(plan), nil
}

func (s *Storage) ListPaymentPlans(_ context.Context, activeOnly bool) ([]*billing.PaymentPlan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	plans := make([]*billing.PaymentPlan, 0, len(s.plans))
	for _, plan := range s.plans {
		if activeOnly && !plan.IsActive {
			continue
		}
		plans = append(plans, clonePlan(plan))
	}
	slices.SortFunc(plans, func(a, b *billing.PaymentPlan) int {
		return strings.Compare(a.ID, b.ID)
	})
	return plans, nil
}

func (s *Storage) DeletePaymentPlan(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	plan, ok := s.plans[id]
	if !ok {
		return storage.ErrNotFound
	}
	plan.IsActive = false
	return nil
}

func (s *Storage) SaveSubscription(_ context.Context, sub *billing.Subscription) error {
	if err := sub.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.subscriptions[sub.ID] = cloneSubscription(sub)
	return nil
}

func (s *Storage) GetSubscription(_ context.Context, id string) (*billing.Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sub, ok := s.subscriptions[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return cloneSubscription(sub), nil
}

func (s *Storage) GetUserSubscription(_ context.Context, userID string) (*billing.Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var found *billing.Subscription
	for _, sub := range s.subscriptions {
		if sub.UserID != userID {
			continue
		}
		if sub.Status != billing.SubscriptionActive && sub.Status != billing.SubscriptionSuspended {
			continue
		}
		// Latest start date wins when history contains several rows.
		if found == nil || sub.StartDate.After(found.StartDate) {
			found = sub
		}
	}
	if found == nil {
		return nil, storage.ErrNotFound
	}
	return cloneSubscription(found), nil
}

func (s *Storage) SaveUsageRecord(_ context.Context, rec *billing.UsageRecord) error {
	if err := rec.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.usage = append(s.usage, cloneUsageRecord(rec))
	return nil
}

func (s *Storage) GetUserUsage(_ context.Context, userID string, from, to time.Time) ([]*billing.UsageRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var records []*billing.UsageRecord
	for _, rec := range s.usage {
		if rec.UserID == userID && rec.InWindow(from, to) {
			records = append(records, cloneUsageRecord(rec))
		}
	}
	slices.SortFunc(records, func(a, b *billing.UsageRecord) int {
		return a.Timestamp.Compare(b.Timestamp)
	})
	return records, nil
}

func (s *Storage) SaveTransaction(_ context.Context, tx *billing.PaymentTransaction) error {
	if err := tx.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.transactions[tx.ID]; exists {
		return storage.ErrDuplicateID
	}
	s.transactions[tx.ID] = cloneTransaction(tx)
	return nil
}

func (s *Storage) UpdateTransaction(_ context.Context, tx *billing.PaymentTransaction) error {
	if err := tx.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.transactions[tx.ID]; !exists {
		return storage.ErrNotFound
	}
	s.transactions[tx.ID] = cloneTransaction(tx)
	return nil
}

func (s *Storage) GetTransaction(_ context.Context, id string) (*billing.PaymentTransaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tx, ok := s.transactions[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return cloneTransaction(tx), nil
}

func (s *Storage) ListTransactions(_ context.Context, userID string, status billing.TransactionStatus, limit int) ([]*billing.PaymentTransaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var txs []*billing.PaymentTransaction
	for _, tx := range s.transactions {
		if tx.UserID != userID {
			continue
		}
		if status != "" && tx.Status != status {
			continue
		}
		txs = append(txs, cloneTransaction(tx))
	}
	slices.SortFunc(txs, func(a, b *billing.PaymentTransaction) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	if limit > 0 && len(txs) > limit {
		txs = txs[:limit]
	}
	return txs, nil
}

func (s *Storage) Capabilities() storage.Capabilities {
	return storage.Capabilities{
		Transactions:     false,
		ConcurrentAccess: true,
		Search:           true,
	}
}

func (s *Storage) Healthcheck(ctx context.Context) storage.Status {
	return storage.Probe(ctx, func(_ context.Context) error {
		s.mu.RLock()
		defer s.mu.RUnlock()
		return nil
	})
}

func clonePlan(p *billing.PaymentPlan) *billing.PaymentPlan {
	c := *p
	c.Features = slices.Clone(p.Features)
	if p.PricePerRequest != nil {
		v := *p.PricePerRequest
		c.PricePerRequest = &v
	}
	if p.RequestsPerPeriod != nil {
		v := *p.RequestsPerPeriod
		c.RequestsPerPeriod = &v
	}
	return &c
}

func cloneSubscription(s *billing.Subscription) *billing.Subscription {
	c := *s
	c.EndDate = cloneTime(s.EndDate)
	c.CurrentPeriodStart = cloneTime(s.CurrentPeriodStart)
	c.CurrentPeriodEnd = cloneTime(s.CurrentPeriodEnd)
	c.Metadata = cloneMetadata(s.Metadata)
	return &c
}

func cloneTransaction(t *billing.PaymentTransaction) *billing.PaymentTransaction {
	c := *t
	c.CompletedAt = cloneTime(t.CompletedAt)
	c.Metadata = cloneMetadata(t.Metadata)
	return &c
}

func cloneUsageRecord(r *billing.UsageRecord) *billing.UsageRecord {
	c := *r
	c.Metadata = cloneMetadata(r.Metadata)
	return &c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

func cloneMetadata(m billing.Metadata) billing.Metadata {
	if m == nil {
		return nil
	}
	return maps.Clone(m)
}
