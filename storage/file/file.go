package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/dmitrymomot/agentpay/billing"
	"github.com/dmitrymomot/agentpay/storage"
)

const storageType = "file"

// snapshot is the on-disk layout. The whole dataset lives in one JSON
// document rewritten atomically on every mutation, which keeps the format
// greppable and the implementation single-process.
type snapshot struct {
	Plans         map[string]*billing.PaymentPlan        `json:"plans"`
	Subscriptions map[string]*billing.Subscription       `json:"subscriptions"`
	Transactions  map[string]*billing.PaymentTransaction `json:"transactions"`
	Usage         []*billing.UsageRecord                 `json:"usage"`
}

// Storage persists entities as a single JSON file. It is safe for concurrent
// use within one process; cross-process sharing is not supported.
type Storage struct {
	mu   sync.Mutex
	path string
	data snapshot
}

// New opens or creates a JSON-file backend at path. Parent directories are
// created as needed.
func New(path string) (*Storage, error) {
	s := &Storage{
		path: path,
		data: snapshot{
			Plans:         make(map[string]*billing.PaymentPlan),
			Subscriptions: make(map[string]*billing.Subscription),
			Transactions:  make(map[string]*billing.PaymentTransaction),
		},
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, storage.NewError(storageType, "init", "", err)
	}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Storage) load() error {
	raw, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return storage.NewError(storageType, "load", "", err)
	}
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, &s.data); err != nil {
		return storage.NewError(storageType, "load", "", fmt.Errorf("corrupt data file: %w", err))
	}
	if s.data.Plans == nil {
		s.data.Plans = make(map[string]*billing.PaymentPlan)
	}
	if s.data.Subscriptions == nil {
		s.data.Subscriptions = make(map[string]*billing.Subscription)
	}
	if s.data.Transactions == nil {
		s.data.Transactions = make(map[string]*billing.PaymentTransaction)
	}
	return nil
}

// flush writes the snapshot through a temp file and renames it into place so
// a crash mid-write never truncates the previous state.
func (s *Storage) flush() error {
	raw, err := json.MarshalIndent(s.data, "", "  ")
	if err != nil {
		return storage.NewError(storageType, "flush", "", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return storage.NewError(storageType, "flush", "", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return storage.NewError(storageType, "flush", "", err)
	}
	return nil
}

func (s *Storage) SavePaymentPlan(_ context.Context, plan *billing.PaymentPlan) error {
	if err := plan.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.Plans[plan.ID] = plan
	return s.flush()
}

func (s *Storage) GetPaymentPlan(_ context.Context, id string) (*billing.PaymentPlan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	plan, ok := s.data.Plans[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return copyVia(plan)
}

func (s *Storage) ListPaymentPlans(_ context.Context, activeOnly bool) ([]*billing.PaymentPlan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	plans := make([]*billing.PaymentPlan, 0, len(s.data.Plans))
	for _, plan := range s.data.Plans {
		if activeOnly && !plan.IsActive {
			continue
		}
		c, err := copyVia(plan)
		if err != nil {
			return nil, err
		}
		plans = append(plans, c)
	}
	slices.SortFunc(plans, func(a, b *billing.PaymentPlan) int {
		return strings.Compare(a.ID, b.ID)
	})
	return plans, nil
}

func (s *Storage) DeletePaymentPlan(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	plan, ok := s.data.Plans[id]
	if !ok {
		return storage.ErrNotFound
	}
	plan.IsActive = false
	return s.flush()
}

func (s *Storage) SaveSubscription(_ context.Context, sub *billing.Subscription) error {
	if err := sub.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.Subscriptions[sub.ID] = sub
	return s.flush()
}

func (s *Storage) GetSubscription(_ context.Context, id string) (*billing.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sub, ok := s.data.Subscriptions[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return copyVia(sub)
}

func (s *Storage) GetUserSubscription(_ context.Context, userID string) (*billing.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var found *billing.Subscription
	for _, sub := range s.data.Subscriptions {
		if sub.UserID != userID {
			continue
		}
		if sub.Status != billing.SubscriptionActive && sub.Status != billing.SubscriptionSuspended {
			continue
		}
		if found == nil || sub.StartDate.After(found.StartDate) {
			found = sub
		}
	}
	if found == nil {
		return nil, storage.ErrNotFound
	}
	return copyVia(found)
}

func (s *Storage) SaveUsageRecord(_ context.Context, rec *billing.UsageRecord) error {
	if err := rec.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.Usage = append(s.data.Usage, rec)
	return s.flush()
}

func (s *Storage) GetUserUsage(_ context.Context, userID string, from, to time.Time) ([]*billing.UsageRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var records []*billing.UsageRecord
	for _, rec := range s.data.Usage {
		if rec.UserID != userID || !rec.InWindow(from, to) {
			continue
		}
		c, err := copyVia(rec)
		if err != nil {
			return nil, err
		}
		records = append(records, c)
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

	if _, exists := s.data.Transactions[tx.ID]; exists {
		return storage.ErrDuplicateID
	}
	s.data.Transactions[tx.ID] = tx
	return s.flush()
}

func (s *Storage) UpdateTransaction(_ context.Context, tx *billing.PaymentTransaction) error {
	if err := tx.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data.Transactions[tx.ID]; !exists {
		return storage.ErrNotFound
	}
	s.data.Transactions[tx.ID] = tx
	return s.flush()
}

func (s *Storage) GetTransaction(_ context.Context, id string) (*billing.PaymentTransaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, ok := s.data.Transactions[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return copyVia(tx)
}

func (s *Storage) ListTransactions(_ context.Context, userID string, status billing.TransactionStatus, limit int) ([]*billing.PaymentTransaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var txs []*billing.PaymentTransaction
	for _, tx := range s.data.Transactions {
		if tx.UserID != userID {
			continue
		}
		if status != "" && tx.Status != status {
			continue
		}
		c, err := copyVia(tx)
		if err != nil {
			return nil, err
		}
		txs = append(txs, c)
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
		ConcurrentAccess: false,
		Search:           false,
	}
}

func (s *Storage) Healthcheck(ctx context.Context) storage.Status {
	return storage.Probe(ctx, func(_ context.Context) error {
		s.mu.Lock()
		defer s.mu.Unlock()

		// Probe writability of the data directory, not just readability.
		probe := s.path + ".probe"
		if err := os.WriteFile(probe, []byte("ok"), 0o644); err != nil {
			return err
		}
		return os.Remove(probe)
	})
}

// copyVia deep-copies an entity through its JSON form. Slower than field
// copies but guaranteed to match what a reload from disk would produce.
func copyVia[T any](v *T) (*T, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, storage.NewError(storageType, "copy", "", err)
	}
	out := new(T)
	if err := json.Unmarshal(raw, out); err != nil {
		return nil, storage.NewError(storageType, "copy", "", err)
	}
	return out, nil
}
