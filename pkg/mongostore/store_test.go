package mongostore_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/pigeonworks-llc/plaid2text/pkg/mongostore"
	"github.com/pigeonworks-llc/plaid2text/pkg/store"
	"github.com/pigeonworks-llc/plaid2text/pkg/store/storetest"
)

// Mock for Collection interface.
type mockCollection struct {
	bulkWriteFunc      func(ctx context.Context, models []mongo.WriteModel, opts ...*options.BulkWriteOptions) (*mongo.BulkWriteResult, error)
	findFunc           func(ctx context.Context, filter interface{}, opts ...*options.FindOptions) (*mongo.Cursor, error)
	findOneFunc        func(ctx context.Context, filter interface{}, opts ...*options.FindOneOptions) *mongo.SingleResult
	updateOneFunc      func(ctx context.Context, filter interface{}, update interface{}, opts ...*options.UpdateOptions) (*mongo.UpdateResult, error)
	countDocumentsFunc func(ctx context.Context, filter interface{}, opts ...*options.CountOptions) (int64, error)
}

func (m *mockCollection) BulkWrite(ctx context.Context, models []mongo.WriteModel, opts ...*options.BulkWriteOptions) (*mongo.BulkWriteResult, error) {
	if m.bulkWriteFunc != nil {
		return m.bulkWriteFunc(ctx, models, opts...)
	}
	return &mongo.BulkWriteResult{}, nil
}

func (m *mockCollection) Find(ctx context.Context, filter interface{}, opts ...*options.FindOptions) (*mongo.Cursor, error) {
	if m.findFunc != nil {
		return m.findFunc(ctx, filter, opts...)
	}
	return mongo.NewCursorFromDocuments(nil, nil, nil)
}

func (m *mockCollection) FindOne(ctx context.Context, filter interface{}, opts ...*options.FindOneOptions) *mongo.SingleResult {
	if m.findOneFunc != nil {
		return m.findOneFunc(ctx, filter, opts...)
	}
	return mongo.NewSingleResultFromDocument(bson.D{}, mongo.ErrNoDocuments, nil)
}

func (m *mockCollection) UpdateOne(ctx context.Context, filter interface{}, update interface{}, opts ...*options.UpdateOptions) (*mongo.UpdateResult, error) {
	if m.updateOneFunc != nil {
		return m.updateOneFunc(ctx, filter, update, opts...)
	}
	return &mongo.UpdateResult{MatchedCount: 1}, nil
}

func (m *mockCollection) CountDocuments(ctx context.Context, filter interface{}, opts ...*options.CountOptions) (int64, error) {
	if m.countDocumentsFunc != nil {
		return m.countDocumentsFunc(ctx, filter, opts...)
	}
	return 0, nil
}

func (m *mockCollection) EnsureUniqueIndex(ctx context.Context, keys bson.D) error {
	return nil
}

func TestSaveTransactions_UpsertsWithSetOnInsert(t *testing.T) {
	pending := storetest.Txn("p1", "2024-01-06", "PENDING", "3.00")
	pending.Pending = true
	batch := []store.Transaction{
		storetest.Txn("t1", "2024-01-05", "STARBUCKS #123", "4.50"),
		pending,
		storetest.Txn("t2", "2024-01-07", "RENT", "1200.00"),
	}

	coll := &mockCollection{
		bulkWriteFunc: func(ctx context.Context, models []mongo.WriteModel, opts ...*options.BulkWriteOptions) (*mongo.BulkWriteResult, error) {
			if len(models) != 2 {
				t.Fatalf("Expected 2 write models, got %d", len(models))
			}
			m, ok := models[0].(*mongo.UpdateOneModel)
			if !ok {
				t.Fatalf("Expected *mongo.UpdateOneModel, got %T", models[0])
			}
			if m.Upsert == nil || !*m.Upsert {
				t.Error("Expected upsert to be enabled")
			}
			filter := m.Filter.(bson.M)
			if filter["transaction_id"] != "t1" || filter["account_id"] != "acc-1" {
				t.Errorf("unexpected filter %v", filter)
			}
			update := m.Update.(bson.M)
			set := update["$set"].(bson.M)
			if _, ok := set["plaid2text"]; ok {
				t.Error("$set must not touch plaid2text metadata")
			}
			onInsert := update["$setOnInsert"].(bson.M)
			if _, ok := onInsert["plaid2text"]; !ok {
				t.Error("$setOnInsert must initialize plaid2text metadata")
			}
			return &mongo.BulkWriteResult{UpsertedCount: 1, MatchedCount: 1}, nil
		},
	}

	res, err := mongostore.New(coll).SaveTransactions(context.Background(), batch)
	if err != nil {
		t.Fatalf("SaveTransactions() error = %v", err)
	}
	if res.Inserted != 1 || res.Updated != 1 || res.SkippedPending != 1 {
		t.Errorf("SaveResult = %+v", res)
	}
}

func TestSaveTransactions_EmptyBatch(t *testing.T) {
	coll := &mockCollection{
		bulkWriteFunc: func(ctx context.Context, models []mongo.WriteModel, opts ...*options.BulkWriteOptions) (*mongo.BulkWriteResult, error) {
			t.Error("BulkWrite should not be called for an empty batch")
			return nil, nil
		},
	}
	if _, err := mongostore.New(coll).SaveTransactions(context.Background(), nil); err != nil {
		t.Errorf("SaveTransactions() error = %v", err)
	}
}

func TestSaveTransactions_BulkWriteError(t *testing.T) {
	expectedErr := errors.New("bulk write error")
	coll := &mockCollection{
		bulkWriteFunc: func(ctx context.Context, models []mongo.WriteModel, opts ...*options.BulkWriteOptions) (*mongo.BulkWriteResult, error) {
			return nil, expectedErr
		},
	}
	_, err := mongostore.New(coll).SaveTransactions(context.Background(), []store.Transaction{storetest.Txn("t1", "2024-01-05", "A", "1")})
	if err == nil || !strings.Contains(err.Error(), expectedErr.Error()) {
		t.Errorf("Expected bulk write error, got: %v", err)
	}
}

func TestGetTransactions_FilterAndDecode(t *testing.T) {
	from := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC)
	amount, _ := primitive.ParseDecimal128("-12.34")

	docs := []interface{}{
		bson.M{
			"transaction_id": "t1",
			"account_id":     "acc-1",
			"date":           time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC),
			"amount":         amount,
			"name":           "UBER",
			"pending":        false,
			"source":         bson.M{"category": "Travel"},
			"plaid2text": bson.M{
				"payee":          "Uber",
				"tags":           bson.A{"travel"},
				"pulled_to_file": false,
			},
		},
	}

	coll := &mockCollection{
		findFunc: func(ctx context.Context, filter interface{}, opts ...*options.FindOptions) (*mongo.Cursor, error) {
			f := filter.(bson.M)
			if f["plaid2text.pulled_to_file"] == nil {
				t.Error("only_new should filter on plaid2text.pulled_to_file")
			}
			dates := f["date"].(bson.M)
			if !dates["$gte"].(time.Time).Equal(from) || !dates["$lte"].(time.Time).Equal(to) {
				t.Errorf("unexpected date filter %v", dates)
			}
			if len(opts) == 0 || opts[0].Sort == nil {
				t.Error("expected a sort on date")
			}
			return mongo.NewCursorFromDocuments(docs, nil, nil)
		},
	}

	got, err := mongostore.New(coll).GetTransactions(context.Background(), store.Query{From: &from, To: &to, OnlyNew: true})
	if err != nil {
		t.Fatalf("GetTransactions() error = %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 transaction, got %d", len(got))
	}
	if !got[0].Amount.Equal(decimal.RequireFromString("-12.34")) {
		t.Errorf("amount = %s", got[0].Amount)
	}
	if got[0].Meta.Payee != "Uber" || len(got[0].Meta.Tags) != 1 {
		t.Errorf("metadata = %+v", got[0].Meta)
	}
	if got[0].Source["category"] != "Travel" {
		t.Errorf("source = %v", got[0].Source)
	}
}

func TestGetTransactions_NoFilter(t *testing.T) {
	coll := &mockCollection{
		findFunc: func(ctx context.Context, filter interface{}, opts ...*options.FindOptions) (*mongo.Cursor, error) {
			if f := filter.(bson.M); len(f) != 0 {
				t.Errorf("expected empty filter, got %v", f)
			}
			return mongo.NewCursorFromDocuments(nil, nil, nil)
		},
	}
	got, err := mongostore.New(coll).GetTransactions(context.Background(), store.Query{})
	if err != nil {
		t.Fatalf("GetTransactions() error = %v", err)
	}
	if len(got) != 0 {
		t.Errorf("expected no transactions, got %d", len(got))
	}
}

func TestUpdateTransaction(t *testing.T) {
	tests := []struct {
		name       string
		markPulled bool
	}{
		{"mark pulled", true},
		{"do not mark", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			coll := &mockCollection{
				updateOneFunc: func(ctx context.Context, filter interface{}, update interface{}, opts ...*options.UpdateOptions) (*mongo.UpdateResult, error) {
					set := update.(bson.M)["$set"].(bson.M)
					if set["plaid2text.payee"] != "Coffee Shop" {
						t.Errorf("payee not set: %v", set)
					}
					_, marks := set["plaid2text.pulled_to_file"]
					_, stamps := set["plaid2text.date_last_pulled"]
					if marks != tt.markPulled || stamps != tt.markPulled {
						t.Errorf("pull fields set = %v/%v, expected %v", marks, stamps, tt.markPulled)
					}
					return &mongo.UpdateResult{MatchedCount: 1, ModifiedCount: 1}, nil
				},
			}
			u := store.Update{TransactionID: "t1", Payee: "Coffee Shop", AssociatedAccount: "Expenses:Dining"}
			if err := mongostore.New(coll).UpdateTransaction(context.Background(), u, tt.markPulled); err != nil {
				t.Errorf("UpdateTransaction() error = %v", err)
			}
		})
	}
}

func TestUpdateTransaction_NotFound(t *testing.T) {
	coll := &mockCollection{
		updateOneFunc: func(ctx context.Context, filter interface{}, update interface{}, opts ...*options.UpdateOptions) (*mongo.UpdateResult, error) {
			return &mongo.UpdateResult{}, nil
		},
	}
	err := mongostore.New(coll).UpdateTransaction(context.Background(), store.Update{TransactionID: "missing"}, true)
	if !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestStats(t *testing.T) {
	last := time.Date(2024, 2, 1, 9, 30, 0, 0, time.UTC)
	coll := &mockCollection{
		countDocumentsFunc: func(ctx context.Context, filter interface{}, opts ...*options.CountOptions) (int64, error) {
			if len(filter.(bson.M)) == 0 {
				return 10, nil
			}
			return 4, nil
		},
		findOneFunc: func(ctx context.Context, filter interface{}, opts ...*options.FindOneOptions) *mongo.SingleResult {
			return mongo.NewSingleResultFromDocument(bson.M{
				"transaction_id": "t9",
				"plaid2text":     bson.M{"date_last_pulled": last},
			}, nil, nil)
		},
	}

	stats, err := mongostore.New(coll).Stats(context.Background())
	if err != nil {
		t.Fatalf("Stats() error = %v", err)
	}
	if stats.Total != 10 || stats.Pulled != 4 || stats.New() != 6 {
		t.Errorf("Stats() = %+v", stats)
	}
	if stats.LastPulled == nil || !stats.LastPulled.Equal(last) {
		t.Errorf("LastPulled = %v, expected %v", stats.LastPulled, last)
	}
}

func TestStats_NeverPulled(t *testing.T) {
	stats, err := mongostore.New(&mockCollection{}).Stats(context.Background())
	if err != nil {
		t.Fatalf("Stats() error = %v", err)
	}
	if stats.LastPulled != nil {
		t.Errorf("LastPulled = %v, expected nil", stats.LastPulled)
	}
}
