package mongostore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/pigeonworks-llc/plaid2text/pkg/store"
)

// document is the stored shape of one transaction.
type document struct {
	TransactionID string               `bson:"transaction_id"`
	AccountID     string               `bson:"account_id"`
	Date          time.Time            `bson:"date"`
	Amount        primitive.Decimal128 `bson:"amount"`
	Name          string               `bson:"name"`
	Pending       bool                 `bson:"pending"`
	Source        bson.M               `bson:"source,omitempty"`
	Meta          metadata             `bson:"plaid2text"`
}

type metadata struct {
	Payee             string     `bson:"payee"`
	PostingAccount    string     `bson:"posting_account"`
	AssociatedAccount string     `bson:"associated_account"`
	Tags              []string   `bson:"tags"`
	PulledToFile      bool       `bson:"pulled_to_file"`
	DateDownloaded    time.Time  `bson:"date_downloaded"`
	DateLastPulled    *time.Time `bson:"date_last_pulled"`
}

// Store is the MongoDB implementation of store.Store.
type Store struct {
	coll   Collection
	client *mongo.Client
}

var _ store.Store = (*Store)(nil)

// New wraps an account collection.
func New(coll Collection) *Store {
	return &Store{coll: coll}
}

// Open connects to uri and returns the store for account's collection in
// database dbName. The store owns the client.
func Open(ctx context.Context, logger *slog.Logger, uri, dbName, account string) (*Store, error) {
	client, err := Connect(ctx, logger, uri)
	if err != nil {
		return nil, err
	}

	coll := &MongoCollection{client.Database(dbName).Collection(account)}
	if err := coll.EnsureUniqueIndex(ctx, bson.D{{Key: "account_id", Value: 1}, {Key: "transaction_id", Value: 1}}); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}

	return &Store{coll: coll, client: client}, nil
}

// Close disconnects the owned client, if any.
func (s *Store) Close() error {
	if s.client == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

// SaveTransactions upserts settled transactions. Source fields go through
// $set; metadata defaults go through $setOnInsert so existing metadata is
// never overwritten.
func (s *Store) SaveTransactions(ctx context.Context, batch []store.Transaction) (*store.SaveResult, error) {
	settled, skipped := store.Settled(batch)
	result := &store.SaveResult{SkippedPending: skipped}
	if len(settled) == 0 {
		return result, nil
	}

	models := make([]mongo.WriteModel, 0, len(settled))
	for _, t := range settled {
		amount, err := primitive.ParseDecimal128(t.Amount.String())
		if err != nil {
			return nil, fmt.Errorf("invalid amount %s for %s: %w", t.Amount, t.TransactionID, err)
		}

		filter := bson.M{"account_id": t.AccountID, "transaction_id": t.TransactionID}
		update := bson.M{
			"$set": bson.M{
				"transaction_id": t.TransactionID,
				"account_id":     t.AccountID,
				"date":           store.DateOnly(t.Date),
				"amount":         amount,
				"name":           t.Name,
				"pending":        t.Pending,
				"source":         bson.M(t.Source),
			},
			"$setOnInsert": bson.M{"plaid2text": toMetadata(store.NewMetadata())},
		}
		models = append(models, mongo.NewUpdateOneModel().SetFilter(filter).SetUpdate(update).SetUpsert(true))
	}

	res, err := s.coll.BulkWrite(ctx, models, options.BulkWrite().SetOrdered(false))
	if err != nil {
		return nil, fmt.Errorf("failed to perform bulk write: %w", err)
	}

	result.Inserted = int(res.UpsertedCount)
	result.Updated = int(res.MatchedCount)
	return result, nil
}

// GetTransactions finds matching documents sorted by date.
func (s *Store) GetTransactions(ctx context.Context, q store.Query) ([]store.Transaction, error) {
	filter := queryFilter(q)
	opts := options.Find().SetSort(bson.D{{Key: "date", Value: 1}, {Key: "transaction_id", Value: 1}})

	cursor, err := s.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to find transactions: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []document
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode transactions: %w", err)
	}

	txns := make([]store.Transaction, 0, len(docs))
	for _, d := range docs {
		t, err := fromDocument(d)
		if err != nil {
			return nil, err
		}
		txns = append(txns, t)
	}
	return txns, nil
}

// UpdateTransaction sets the metadata fields of one document.
func (s *Store) UpdateTransaction(ctx context.Context, u store.Update, markPulled bool) error {
	tags := u.Tags
	if tags == nil {
		tags = []string{}
	}
	set := bson.M{
		"plaid2text.payee":              u.Payee,
		"plaid2text.posting_account":    u.PostingAccount,
		"plaid2text.associated_account": u.AssociatedAccount,
		"plaid2text.tags":               tags,
	}
	if markPulled {
		set["plaid2text.pulled_to_file"] = true
		set["plaid2text.date_last_pulled"] = store.Now()
	}

	res, err := s.coll.UpdateOne(ctx, bson.M{"transaction_id": u.TransactionID}, bson.M{"$set": set})
	if err != nil {
		return fmt.Errorf("failed to update transaction %s: %w", u.TransactionID, err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("%w: %s", store.ErrNotFound, u.TransactionID)
	}
	return nil
}

// Stats counts documents and reads the most recent pull stamp.
func (s *Store) Stats(ctx context.Context) (*store.Stats, error) {
	total, err := s.coll.CountDocuments(ctx, bson.M{})
	if err != nil {
		return nil, fmt.Errorf("failed to count transactions: %w", err)
	}
	pulled, err := s.coll.CountDocuments(ctx, bson.M{"plaid2text.pulled_to_file": true})
	if err != nil {
		return nil, fmt.Errorf("failed to count pulled transactions: %w", err)
	}

	stats := &store.Stats{Total: int(total), Pulled: int(pulled)}

	var last document
	err = s.coll.FindOne(ctx,
		bson.M{"plaid2text.date_last_pulled": bson.M{"$ne": nil}},
		options.FindOne().SetSort(bson.D{{Key: "plaid2text.date_last_pulled", Value: -1}}),
	).Decode(&last)
	switch {
	case errors.Is(err, mongo.ErrNoDocuments):
	case err != nil:
		return nil, fmt.Errorf("failed to find last pulled transaction: %w", err)
	default:
		stats.LastPulled = last.Meta.DateLastPulled
	}

	return stats, nil
}

func queryFilter(q store.Query) bson.M {
	filter := bson.M{}
	if q.OnlyNew {
		filter["plaid2text.pulled_to_file"] = bson.M{"$ne": true}
	}

	date := bson.M{}
	if q.From != nil {
		date["$gte"] = store.DateOnly(*q.From)
	}
	if q.To != nil {
		date["$lte"] = store.DateOnly(*q.To)
	}
	if len(date) > 0 {
		filter["date"] = date
	}
	return filter
}

func toMetadata(m store.Metadata) metadata {
	return metadata{
		Payee:             m.Payee,
		PostingAccount:    m.PostingAccount,
		AssociatedAccount: m.AssociatedAccount,
		Tags:              m.Tags,
		PulledToFile:      m.PulledToFile,
		DateDownloaded:    m.DateDownloaded,
		DateLastPulled:    m.DateLastPulled,
	}
}

func fromDocument(d document) (store.Transaction, error) {
	amount, err := decimal.NewFromString(d.Amount.String())
	if err != nil {
		return store.Transaction{}, fmt.Errorf("transaction %s has invalid amount %s: %w", d.TransactionID, d.Amount, err)
	}

	tags := d.Meta.Tags
	if tags == nil {
		tags = []string{}
	}

	return store.Transaction{
		TransactionID: d.TransactionID,
		AccountID:     d.AccountID,
		Date:          d.Date.UTC(),
		Amount:        amount,
		Name:          d.Name,
		Pending:       d.Pending,
		Source:        map[string]any(d.Source),
		Meta: store.Metadata{
			Payee:             d.Meta.Payee,
			PostingAccount:    d.Meta.PostingAccount,
			AssociatedAccount: d.Meta.AssociatedAccount,
			Tags:              tags,
			PulledToFile:      d.Meta.PulledToFile,
			DateDownloaded:    d.Meta.DateDownloaded.UTC(),
			DateLastPulled:    d.Meta.DateLastPulled,
		},
	}, nil
}
