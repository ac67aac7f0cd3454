package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dmitrymomot/agentpay/billing"
	"github.com/dmitrymomot/agentpay/storage"
)

const storageType = "postgres"

// querier is satisfied by both *pgxpool.Pool and pgx.Tx, so the same query
// methods serve plain calls and WithinTx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Storage is the PostgreSQL backend. It reports full transaction support and
// implements storage.TxStorage.
type Storage struct {
	pool *pgxpool.Pool
	db   querier
}

// New wraps an existing connection pool.
func New(pool *pgxpool.Pool) *Storage {
	return &Storage{pool: pool, db: pool}
}

// Open connects with cfg, verifies the connection, and ensures the schema.
func Open(ctx context.Context, cfg Config) (*Storage, error) {
	pool, err := Connect(ctx, cfg)
	if err != nil {
		return nil, err
	}
	s := New(pool)
	if err := s.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the underlying pool. No-op for transactional views.
func (s *Storage) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

func (s *Storage) SavePaymentPlan(ctx context.Context, plan *billing.PaymentPlan) error {
	if err := plan.Validate(); err != nil {
		return err
	}

	_, err := s.db.Exec(ctx, `
		INSERT INTO payment_plans (id, name, description, payment_type, price, currency,
			price_per_request, billing_period, requests_per_period, free_requests,
			features, is_active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NULLIF($8, ''), $9, $10, $11, $12, $13)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			description = EXCLUDED.description,
			payment_type = EXCLUDED.payment_type,
			price = EXCLUDED.price,
			currency = EXCLUDED.currency,
			price_per_request = EXCLUDED.price_per_request,
			billing_period = EXCLUDED.billing_period,
			requests_per_period = EXCLUDED.requests_per_period,
			free_requests = EXCLUDED.free_requests,
			features = EXCLUDED.features,
			is_active = EXCLUDED.is_active`,
		plan.ID, plan.Name, plan.Description, plan.PaymentType, plan.Price, plan.Currency,
		plan.PricePerRequest, string(plan.BillingPeriod), plan.RequestsPerPeriod,
		plan.FreeRequests, plan.Features, plan.IsActive, plan.CreatedAt)
	return storage.NewError(storageType, "save_payment_plan", plan.ID, err)
}

const planColumns = `id, name, description, payment_type, price, currency,
	price_per_request, COALESCE(billing_period, ''), requests_per_period,
	free_requests, features, is_active, created_at`

func scanPlan(row pgx.Row) (*billing.PaymentPlan, error) {
	var plan billing.PaymentPlan
	var paymentType, billingPeriod string
	err := row.Scan(&plan.ID, &plan.Name, &plan.Description, &paymentType, &plan.Price,
		&plan.Currency, &plan.PricePerRequest, &billingPeriod, &plan.RequestsPerPeriod,
		&plan.FreeRequests, &plan.Features, &plan.IsActive, &plan.CreatedAt)
	if err != nil {
		return nil, err
	}
	plan.PaymentType = billing.PaymentType(paymentType)
	plan.BillingPeriod = billing.BillingPeriod(billingPeriod)
	return &plan, nil
}

func (s *Storage) GetPaymentPlan(ctx context.Context, id string) (*billing.PaymentPlan, error) {
	plan, err := scanPlan(s.db.QueryRow(ctx,
		`SELECT `+planColumns+` FROM payment_plans WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, storage.NewError(storageType, "get_payment_plan", id, err)
	}
	return plan, nil
}

func (s *Storage) ListPaymentPlans(ctx context.Context, activeOnly bool) ([]*billing.PaymentPlan, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+planColumns+` FROM payment_plans WHERE is_active OR NOT $1 ORDER BY id`, activeOnly)
	if err != nil {
		return nil, storage.NewError(storageType, "list_payment_plans", "", err)
	}
	defer rows.Close()

	var plans []*billing.PaymentPlan
	for rows.Next() {
		plan, err := scanPlan(rows)
		if err != nil {
			return nil, storage.NewError(storageType, "list_payment_plans", "", err)
		}
		plans = append(plans, plan)
	}
	return plans, storage.NewError(storageType, "list_payment_plans", "", rows.Err())
}

func (s *Storage) DeletePaymentPlan(ctx context.Context, id string) error {
	tag, err := s.db.Exec(ctx, `UPDATE payment_plans SET is_active = FALSE WHERE id = $1`, id)
	if err != nil {
		return storage.NewError(storageType, "delete_payment_plan", id, err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (s *Storage) SaveSubscription(ctx context.Context, sub *billing.Subscription) error {
	if err := sub.Validate(); err != nil {
		return err
	}

	_, err := s.db.Exec(ctx, `
		INSERT INTO subscriptions (id, user_id, plan_id, status, start_date, end_date,
			current_period_start, current_period_end, usage_count, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			end_date = EXCLUDED.end_date,
			current_period_start = EXCLUDED.current_period_start,
			current_period_end = EXCLUDED.current_period_end,
			usage_count = EXCLUDED.usage_count,
			metadata = EXCLUDED.metadata`,
		sub.ID, sub.UserID, sub.PlanID, sub.Status, sub.StartDate, sub.EndDate,
		sub.CurrentPeriodStart, sub.CurrentPeriodEnd, sub.UsageCount, sub.Metadata)
	return storage.NewError(storageType, "save_subscription", sub.ID, err)
}

const subColumns = `id, user_id, plan_id, status, start_date, end_date,
	current_period_start, current_period_end, usage_count, metadata`

func scanSubscription(row pgx.Row) (*billing.Subscription, error) {
	var sub billing.Subscription
	var status string
	err := row.Scan(&sub.ID, &sub.UserID, &sub.PlanID, &status, &sub.StartDate,
		&sub.EndDate, &sub.CurrentPeriodStart, &sub.CurrentPeriodEnd,
		&sub.UsageCount, &sub.Metadata)
	if err != nil {
		return nil, err
	}
	sub.Status = billing.SubscriptionStatus(status)
	return &sub, nil
}

func (s *Storage) GetSubscription(ctx context.Context, id string) (*billing.Subscription, error) {
	sub, err := scanSubscription(s.db.QueryRow(ctx,
		`SELECT `+subColumns+` FROM subscriptions WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, storage.NewError(storageType, "get_subscription", id, err)
	}
	return sub, nil
}

func (s *Storage) GetUserSubscription(ctx context.Context, userID string) (*billing.Subscription, error) {
	sub, err := scanSubscription(s.db.QueryRow(ctx,
		`SELECT `+subColumns+` FROM subscriptions
		 WHERE user_id = $1 AND status IN ('active', 'suspended')
		 ORDER BY start_date DESC LIMIT 1`, userID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, storage.NewError(storageType, "get_user_subscription", userID, err)
	}
	return sub, nil
}

func (s *Storage) SaveUsageRecord(ctx context.Context, rec *billing.UsageRecord) error {
	if err := rec.Validate(); err != nil {
		return err
	}

	_, err := s.db.Exec(ctx, `
		INSERT INTO usage_records (id, user_id, feature, ts, cost, currency, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		rec.ID, rec.UserID, rec.Feature, rec.Timestamp, rec.Cost, rec.Currency, rec.Metadata)
	if isDuplicateKey(err) {
		return storage.ErrDuplicateID
	}
	return storage.NewError(storageType, "save_usage_record", rec.ID, err)
}

func (s *Storage) GetUserUsage(ctx context.Context, userID string, from, to time.Time) ([]*billing.UsageRecord, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, user_id, feature, ts, cost, currency, metadata
		FROM usage_records
		WHERE user_id = $1 AND ts >= $2 AND ts < $3
		ORDER BY ts`, userID, from, to)
	if err != nil {
		return nil, storage.NewError(storageType, "get_user_usage", userID, err)
	}
	defer rows.Close()

	var records []*billing.UsageRecord
	for rows.Next() {
		var rec billing.UsageRecord
		if err := rows.Scan(&rec.ID, &rec.UserID, &rec.Feature, &rec.Timestamp,
			&rec.Cost, &rec.Currency, &rec.Metadata); err != nil {
			return nil, storage.NewError(storageType, "get_user_usage", userID, err)
		}
		records = append(records, &rec)
	}
	return records, storage.NewError(storageType, "get_user_usage", userID, rows.Err())
}

func (s *Storage) SaveTransaction(ctx context.Context, tx *billing.PaymentTransaction) error {
	if err := tx.Validate(); err != nil {
		return err
	}

	_, err := s.db.Exec(ctx, `
		INSERT INTO payment_transactions (id, user_id, amount, currency, provider,
			status, created_at, updated_at, completed_at, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		tx.ID, tx.UserID, tx.Amount, tx.Currency, tx.Provider, tx.Status,
		tx.CreatedAt, tx.UpdatedAt, tx.CompletedAt, tx.Metadata)
	if isDuplicateKey(err) {
		return storage.ErrDuplicateID
	}
	return storage.NewError(storageType, "save_transaction", tx.ID, err)
}

func (s *Storage) UpdateTransaction(ctx context.Context, tx *billing.PaymentTransaction) error {
	if err := tx.Validate(); err != nil {
		return err
	}

	tag, err := s.db.Exec(ctx, `
		UPDATE payment_transactions
		SET status = $2, updated_at = $3, completed_at = $4, metadata = $5
		WHERE id = $1`,
		tx.ID, tx.Status, tx.UpdatedAt, tx.CompletedAt, tx.Metadata)
	if err != nil {
		return storage.NewError(storageType, "update_transaction", tx.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (s *Storage) GetTransaction(ctx context.Context, id string) (*billing.PaymentTransaction, error) {
	var tx billing.PaymentTransaction
	var status string
	err := s.db.QueryRow(ctx, `
		SELECT id, user_id, amount, currency, provider, status, created_at,
			updated_at, completed_at, metadata
		FROM payment_transactions WHERE id = $1`, id).
		Scan(&tx.ID, &tx.UserID, &tx.Amount, &tx.Currency, &tx.Provider, &status,
			&tx.CreatedAt, &tx.UpdatedAt, &tx.CompletedAt, &tx.Metadata)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, storage.NewError(storageType, "get_transaction", id, err)
	}
	tx.Status = billing.TransactionStatus(status)
	return &tx, nil
}

func (s *Storage) ListTransactions(ctx context.Context, userID string, status billing.TransactionStatus, limit int) ([]*billing.PaymentTransaction, error) {
	if limit <= 0 {
		limit = 1000
	}
	rows, err := s.db.Query(ctx, `
		SELECT id, user_id, amount, currency, provider, status, created_at,
			updated_at, completed_at, metadata
		FROM payment_transactions
		WHERE user_id = $1 AND ($2 = '' OR status = $2)
		ORDER BY created_at DESC
		LIMIT $3`, userID, string(status), limit)
	if err != nil {
		return nil, storage.NewError(storageType, "list_transactions", userID, err)
	}
	defer rows.Close()

	var txs []*billing.PaymentTransaction
	for rows.Next() {
		var tx billing.PaymentTransaction
		var rawStatus string
		if err := rows.Scan(&tx.ID, &tx.UserID, &tx.Amount, &tx.Currency, &tx.Provider,
			&rawStatus, &tx.CreatedAt, &tx.UpdatedAt, &tx.CompletedAt, &tx.Metadata); err != nil {
			return nil, storage.NewError(storageType, "list_transactions", userID, err)
		}
		tx.Status = billing.TransactionStatus(rawStatus)
		txs = append(txs, &tx)
	}
	return txs, storage.NewError(storageType, "list_transactions", userID, rows.Err())
}

func (s *Storage) Capabilities() storage.Capabilities {
	return storage.Capabilities{
		Transactions:     true,
		ConcurrentAccess: true,
		Search:           true,
	}
}

func (s *Storage) Healthcheck(ctx context.Context) storage.Status {
	return storage.Probe(ctx, func(ctx context.Context) error {
		if s.pool != nil {
			return s.pool.Ping(ctx)
		}
		_, err := s.db.Exec(ctx, `SELECT 1`)
		return err
	})
}

// WithinTx runs fn against a transactional view of the storage. The
// transaction commits when fn returns nil and rolls back otherwise.
func (s *Storage) WithinTx(ctx context.Context, fn func(ctx context.Context, tx storage.Storage) error) error {
	if s.pool == nil {
		return storage.ErrTxUnsupported
	}

	pgTx, err := s.pool.Begin(ctx)
	if err != nil {
		return storage.NewError(storageType, "begin_tx", "", err)
	}
	defer pgTx.Rollback(ctx) //nolint:errcheck

	if err := fn(ctx, &Storage{db: pgTx}); err != nil {
		return err
	}
	if err := pgTx.Commit(ctx); err != nil {
		return storage.NewError(storageType, "commit_tx", "", err)
	}
	return nil
}

func isDuplicateKey(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
