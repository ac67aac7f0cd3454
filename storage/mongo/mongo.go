package mongo

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"

	"github.com/dmitrymomot/agentpay/billing"
	"github.com/dmitrymomot/agentpay/storage"
)

const storageType = "mongo"

// Config controls the MongoDB connection.
type Config struct {
	ConnectionURL string `env:"MONGO_URL,required"`
	Database      string `env:"MONGO_DATABASE" envDefault:"agentpay"`
}

// document is the stored shape for every entity: the JSON payload plus the
// denormalized fields queries filter and sort on. Keeping the payload as
// JSON text sidesteps BSON's millisecond timestamp truncation, so entities
// round-trip without precision loss.
type document struct {
	ID      string `bson:"_id"`
	UserID  string `bson:"user_id,omitempty"`
	Status  string `bson:"status,omitempty"`
	Active  bool   `bson:"active,omitempty"`
	SortKey int64  `bson:"sort_key,omitempty"`
	Data    string `bson:"data"`
}

// Storage is the MongoDB backend.
type Storage struct {
	client        *mongo.Client
	plans         *mongo.Collection
	subscriptions *mongo.Collection
	transactions  *mongo.Collection
	usage         *mongo.Collection
}

// New wraps an existing client.
func New(client *mongo.Client, database string) *Storage {
	db := client.Database(database)
	return &Storage{
		client:        client,
		plans:         db.Collection("payment_plans"),
		subscriptions: db.Collection("subscriptions"),
		transactions:  db.Collection("payment_transactions"),
		usage:         db.Collection("usage_records"),
	}
}

// Open connects with cfg and verifies the connection.
func Open(ctx context.Context, cfg Config) (*Storage, error) {
	client, err := mongo.Connect(options.Client().ApplyURI(cfg.ConnectionURL))
	if err != nil {
		return nil, storage.NewError(storageType, "connect", "", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(ctx)
		return nil, storage.NewError(storageType, "connect", "", err)
	}
	return New(client, cfg.Database), nil
}

// Close disconnects the underlying client.
func (s *Storage) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

func encode[T any](v *T) (string, error) {
	raw, err := json.Marshal(v)
	return string(raw), err
}

func decode[T any](doc document) (*T, error) {
	out := new(T)
	if err := json.Unmarshal([]byte(doc.Data), out); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Storage) upsert(ctx context.Context, col *mongo.Collection, op string, doc document) error {
	_, err := col.ReplaceOne(ctx, bson.M{"_id": doc.ID}, doc, options.Replace().SetUpsert(true))
	return storage.NewError(storageType, op, doc.ID, err)
}

func getOne[T any](ctx context.Context, col *mongo.Collection, op string, filter bson.M, id string) (*T, error) {
	var doc document
	err := col.FindOne(ctx, filter).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, storage.NewError(storageType, op, id, err)
	}
	out, err := decode[T](doc)
	if err != nil {
		return nil, storage.NewError(storageType, op, id, err)
	}
	return out, nil
}

func list[T any](ctx context.Context, col *mongo.Collection, op string, filter bson.M, opts *options.FindOptionsBuilder) ([]*T, error) {
	cursor, err := col.Find(ctx, filter, opts)
	if err != nil {
		return nil, storage.NewError(storageType, op, "", err)
	}
	defer cursor.Close(ctx) //nolint:errcheck

	var out []*T
	for cursor.Next(ctx) {
		var doc document
		if err := cursor.Decode(&doc); err != nil {
			return nil, storage.NewError(storageType, op, "", err)
		}
		v, err := decode[T](doc)
		if err != nil {
			return nil, storage.NewError(storageType, op, doc.ID, err)
		}
		out = append(out, v)
	}
	return out, storage.NewError(storageType, op, "", cursor.Err())
}

func (s *Storage) SavePaymentPlan(ctx context.Context, plan *billing.PaymentPlan) error {
	if err := plan.Validate(); err != nil {
		return err
	}
	data, err := encode(plan)
	if err != nil {
		return storage.NewError(storageType, "save_payment_plan", plan.ID, err)
	}
	return s.upsert(ctx, s.plans, "save_payment_plan", document{
		ID:     plan.ID,
		Active: plan.IsActive,
		Data:   data,
	})
}

func (s *Storage) GetPaymentPlan(ctx context.Context, id string) (*billing.PaymentPlan, error) {
	return getOne[billing.PaymentPlan](ctx, s.plans, "get_payment_plan", bson.M{"_id": id}, id)
}

func (s *Storage) ListPaymentPlans(ctx context.Context, activeOnly bool) ([]*billing.PaymentPlan, error) {
	filter := bson.M{}
	if activeOnly {
		filter["active"] = true
	}
	return list[billing.PaymentPlan](ctx, s.plans, "list_payment_plans", filter,
		options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
}

func (s *Storage) DeletePaymentPlan(ctx context.Context, id string) error {
	plan, err := s.GetPaymentPlan(ctx, id)
	if err != nil {
		return err
	}
	plan.IsActive = false
	return s.SavePaymentPlan(ctx, plan)
}

func (s *Storage) SaveSubscription(ctx context.Context, sub *billing.Subscription) error {
	if err := sub.Validate(); err != nil {
		return err
	}
	data, err := encode(sub)
	if err != nil {
		return storage.NewError(storageType, "save_subscription", sub.ID, err)
	}
	return s.upsert(ctx, s.subscriptions, "save_subscription", document{
		ID:      sub.ID,
		UserID:  sub.UserID,
		Status:  string(sub.Status),
		SortKey: sub.StartDate.UnixNano(),
		Data:    data,
	})
}

func (s *Storage) GetSubscription(ctx context.Context, id string) (*billing.Subscription, error) {
	return getOne[billing.Subscription](ctx, s.subscriptions, "get_subscription", bson.M{"_id": id}, id)
}

func (s *Storage) GetUserSubscription(ctx context.Context, userID string) (*billing.Subscription, error) {
	var doc document
	err := s.subscriptions.FindOne(ctx,
		bson.M{"user_id": userID, "status": bson.M{"$in": []string{
			string(billing.SubscriptionActive),
			string(billing.SubscriptionSuspended),
		}}},
		options.FindOne().SetSort(bson.D{{Key: "sort_key", Value: -1}}),
	).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, storage.NewError(storageType, "get_user_subscription", userID, err)
	}
	sub, err := decode[billing.Subscription](doc)
	if err != nil {
		return nil, storage.NewError(storageType, "get_user_subscription", userID, err)
	}
	return sub, nil
}

func (s *Storage) SaveUsageRecord(ctx context.Context, rec *billing.UsageRecord) error {
	if err := rec.Validate(); err != nil {
		return err
	}
	data, err := encode(rec)
	if err != nil {
		return storage.NewError(storageType, "save_usage_record", rec.ID, err)
	}
	_, err = s.usage.InsertOne(ctx, document{
		ID:      rec.ID,
		UserID:  rec.UserID,
		SortKey: rec.Timestamp.UnixNano(),
		Data:    data,
	})
	if mongo.IsDuplicateKeyError(err) {
		return storage.ErrDuplicateID
	}
	return storage.NewError(storageType, "save_usage_record", rec.ID, err)
}

func (s *Storage) GetUserUsage(ctx context.Context, userID string, from, to time.Time) ([]*billing.UsageRecord, error) {
	return list[billing.UsageRecord](ctx, s.usage, "get_user_usage",
		bson.M{
			"user_id":  userID,
			"sort_key": bson.M{"$gte": from.UnixNano(), "$lt": to.UnixNano()},
		},
		options.Find().SetSort(bson.D{{Key: "sort_key", Value: 1}}))
}

func (s *Storage) SaveTransaction(ctx context.Context, tx *billing.PaymentTransaction) error {
	if err := tx.Validate(); err != nil {
		return err
	}
	data, err := encode(tx)
	if err != nil {
		return storage.NewError(storageType, "save_transaction", tx.ID, err)
	}
	_, err = s.transactions.InsertOne(ctx, document{
		ID:      tx.ID,
		UserID:  tx.UserID,
		Status:  string(tx.Status),
		SortKey: tx.CreatedAt.UnixNano(),
		Data:    data,
	})
	if mongo.IsDuplicateKeyError(err) {
		return storage.ErrDuplicateID
	}
	return storage.NewError(storageType, "save_transaction", tx.ID, err)
}

func (s *Storage) UpdateTransaction(ctx context.Context, tx *billing.PaymentTransaction) error {
	if err := tx.Validate(); err != nil {
		return err
	}
	data, err := encode(tx)
	if err != nil {
		return storage.NewError(storageType, "update_transaction", tx.ID, err)
	}
	res, err := s.transactions.ReplaceOne(ctx, bson.M{"_id": tx.ID}, document{
		ID:      tx.ID,
		UserID:  tx.UserID,
		Status:  string(tx.Status),
		SortKey: tx.CreatedAt.UnixNano(),
		Data:    data,
	})
	if err != nil {
		return storage.NewError(storageType, "update_transaction", tx.ID, err)
	}
	if res.MatchedCount == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (s *Storage) GetTransaction(ctx context.Context, id string) (*billing.PaymentTransaction, error) {
	return getOne[billing.PaymentTransaction](ctx, s.transactions, "get_transaction", bson.M{"_id": id}, id)
}

func (s *Storage) ListTransactions(ctx context.Context, userID string, status billing.TransactionStatus, limit int) ([]*billing.PaymentTransaction, error) {
	filter := bson.M{"user_id": userID}
	if status != "" {
		filter["status"] = string(status)
	}
	opts := options.Find().SetSort(bson.D{{Key: "sort_key", Value: -1}})
	if limit > 0 {
		opts = opts.SetLimit(int64(limit))
	}
	return list[billing.PaymentTransaction](ctx, s.transactions, "list_transactions", filter, opts)
}

func (s *Storage) Capabilities() storage.Capabilities {
	return storage.Capabilities{
		Transactions:     false,
		ConcurrentAccess: true,
		Search:           true,
	}
}

func (s *Storage) Healthcheck(ctx context.Context) storage.Status {
	return storage.Probe(ctx, func(ctx context.Context) error {
		return s.client.Ping(ctx, readpref.Primary())
	})
}
