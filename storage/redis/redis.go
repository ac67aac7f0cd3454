package redis

import (
	"context"
	"encoding/json"
	"errors"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/dmitrymomot/agentpay/billing"
	"github.com/dmitrymomot/agentpay/storage"
)

const storageType = "redis"

// Key layout: entities live in hashes keyed by ID, usage records in one
// sorted set per user scored by timestamp so window queries are a single
// ZRANGEBYSCORE.
const (
	keyPlans         = "agentpay:plans"
	keySubscriptions = "agentpay:subscriptions"
	keyTransactions  = "agentpay:transactions"
	keyUsagePrefix   = "agentpay:usage:"
)

// Config controls the Redis connection.
type Config struct {
	ConnectionURL string `env:"REDIS_URL,required"`
}

// Storage is the Redis backend. Entities round-trip through JSON, so amounts
// and timestamps keep full precision.
type Storage struct {
	client redis.UniversalClient
}

// New wraps an existing Redis client.
func New(client redis.UniversalClient) *Storage {
	return &Storage{client: client}
}

// Open connects with cfg and verifies the connection.
func Open(ctx context.Context, cfg Config) (*Storage, error) {
	opts, err := redis.ParseURL(cfg.ConnectionURL)
	if err != nil {
		return nil, storage.NewError(storageType, "parse_url", "", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, storage.NewError(storageType, "connect", "", err)
	}
	return New(client), nil
}

// Close releases the underlying client.
func (s *Storage) Close() error {
	return s.client.Close()
}

func (s *Storage) saveHash(ctx context.Context, op, key, id string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return storage.NewError(storageType, op, id, err)
	}
	return storage.NewError(storageType, op, id, s.client.HSet(ctx, key, id, raw).Err())
}

func getHash[T any](ctx context.Context, s *Storage, op, key, id string) (*T, error) {
	raw, err := s.client.HGet(ctx, key, id).Result()
	if errors.Is(err, redis.Nil) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, storage.NewError(storageType, op, id, err)
	}
	out := new(T)
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		return nil, storage.NewError(storageType, op, id, err)
	}
	return out, nil
}

func listHash[T any](ctx context.Context, s *Storage, op, key string) ([]*T, error) {
	raw, err := s.client.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, storage.NewError(storageType, op, "", err)
	}
	out := make([]*T, 0, len(raw))
	for id, data := range raw {
		v := new(T)
		if err := json.Unmarshal([]byte(data), v); err != nil {
			return nil, storage.NewError(storageType, op, id, err)
		}
		out = append(out, v)
	}
	return out, nil
}

func (s *Storage) SavePaymentPlan(ctx context.Context, plan *billing.PaymentPlan) error {
	if err := plan.Validate(); err != nil {
		return err
	}
	return s.saveHash(ctx, "save_payment_plan", keyPlans, plan.ID, plan)
}

func (s *Storage) GetPaymentPlan(ctx context.Context, id string) (*billing.PaymentPlan, error) {
	return getHash[billing.PaymentPlan](ctx, s, "get_payment_plan", keyPlans, id)
}

func (s *Storage) ListPaymentPlans(ctx context.Context, activeOnly bool) ([]*billing.PaymentPlan, error) {
	plans, err := listHash[billing.PaymentPlan](ctx, s, "list_payment_plans", keyPlans)
	if err != nil {
		return nil, err
	}
	if activeOnly {
		plans = slices.DeleteFunc(plans, func(p *billing.PaymentPlan) bool {
			return !p.IsActive
		})
	}
	slices.SortFunc(plans, func(a, b *billing.PaymentPlan) int {
		return strings.Compare(a.ID, b.ID)
	})
	return plans, nil
}

func (s *Storage) DeletePaymentPlan(ctx context.Context, id string) error {
	plan, err := s.GetPaymentPlan(ctx, id)
	if err != nil {
		return err
	}
	plan.IsActive = false
	return s.saveHash(ctx, "delete_payment_plan", keyPlans, id, plan)
}

func (s *Storage) SaveSubscription(ctx context.Context, sub *billing.Subscription) error {
	if err := sub.Validate(); err != nil {
		return err
	}
	return s.saveHash(ctx, "save_subscription", keySubscriptions, sub.ID, sub)
}

func (s *Storage) GetSubscription(ctx context.Context, id string) (*billing.Subscription, error) {
	return getHash[billing.Subscription](ctx, s, "get_subscription", keySubscriptions, id)
}

func (s *Storage) GetUserSubscription(ctx context.Context, userID string) (*billing.Subscription, error) {
	subs, err := listHash[billing.Subscription](ctx, s, "get_user_subscription", keySubscriptions)
	if err != nil {
		return nil, err
	}

	var found *billing.Subscription
	for _, sub := range subs {
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
	return found, nil
}

func (s *Storage) SaveUsageRecord(ctx context.Context, rec *billing.UsageRecord) error {
	if err := rec.Validate(); err != nil {
		return err
	}

	raw, err := json.Marshal(rec)
	if err != nil {
		return storage.NewError(storageType, "save_usage_record", rec.ID, err)
	}
	err = s.client.ZAdd(ctx, keyUsagePrefix+rec.UserID, redis.Z{
		Score:  float64(rec.Timestamp.UnixNano()),
		Member: raw,
	}).Err()
	return storage.NewError(storageType, "save_usage_record", rec.ID, err)
}

func (s *Storage) GetUserUsage(ctx context.Context, userID string, from, to time.Time) ([]*billing.UsageRecord, error) {
	// Window end is exclusive, so the upper score bound is to-1ns.
	members, err := s.client.ZRangeByScore(ctx, keyUsagePrefix+userID, &redis.ZRangeBy{
		Min: strconv.FormatInt(from.UnixNano(), 10),
		Max: strconv.FormatInt(to.UnixNano()-1, 10),
	}).Result()
	if err != nil {
		return nil, storage.NewError(storageType, "get_user_usage", userID, err)
	}

	records := make([]*billing.UsageRecord, 0, len(members))
	for _, member := range members {
		var rec billing.UsageRecord
		if err := json.Unmarshal([]byte(member), &rec); err != nil {
			return nil, storage.NewError(storageType, "get_user_usage", userID, err)
		}
		records = append(records, &rec)
	}
	return records, nil
}

func (s *Storage) SaveTransaction(ctx context.Context, tx *billing.PaymentTransaction) error {
	if err := tx.Validate(); err != nil {
		return err
	}

	raw, err := json.Marshal(tx)
	if err != nil {
		return storage.NewError(storageType, "save_transaction", tx.ID, err)
	}
	created, err := s.client.HSetNX(ctx, keyTransactions, tx.ID, raw).Result()
	if err != nil {
		return storage.NewError(storageType, "save_transaction", tx.ID, err)
	}
	if !created {
		return storage.ErrDuplicateID
	}
	return nil
}

func (s *Storage) UpdateTransaction(ctx context.Context, tx *billing.PaymentTransaction) error {
	if err := tx.Validate(); err != nil {
		return err
	}

	exists, err := s.client.HExists(ctx, keyTransactions, tx.ID).Result()
	if err != nil {
		return storage.NewError(storageType, "update_transaction", tx.ID, err)
	}
	if !exists {
		return storage.ErrNotFound
	}
	return s.saveHash(ctx, "update_transaction", keyTransactions, tx.ID, tx)
}

func (s *Storage) GetTransaction(ctx context.Context, id string) (*billing.PaymentTransaction, error) {
	return getHash[billing.PaymentTransaction](ctx, s, "get_transaction", keyTransactions, id)
}

func (s *Storage) ListTransactions(ctx context.Context, userID string, status billing.TransactionStatus, limit int) ([]*billing.PaymentTransaction, error) {
	txs, err := listHash[billing.PaymentTransaction](ctx, s, "list_transactions", keyTransactions)
	if err != nil {
		return nil, err
	}

	txs = slices.DeleteFunc(txs, func(tx *billing.PaymentTransaction) bool {
		return tx.UserID != userID || (status != "" && tx.Status != status)
	})
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
		Search:           false,
	}
}

func (s *Storage) Healthcheck(ctx context.Context) storage.Status {
	return storage.Probe(ctx, func(ctx context.Context) error {
		return s.client.Ping(ctx).Err()
	})
}
