// Package mongostore is the document-store backend. Every configured account
// owns one collection; each document carries the source fields at the top
// level and plaid2text metadata in an embedded "plaid2text" sub-document.
package mongostore

import (
	"context"
	"fmt"
	"log/slog"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// ---- Abstractions for Testability ----

// Collection is the subset of *mongo.Collection used by the store.
type Collection interface {
	BulkWrite(ctx context.Context, models []mongo.WriteModel, opts ...*options.BulkWriteOptions) (*mongo.BulkWriteResult, error)
	Find(ctx context.Context, filter interface{}, opts ...*options.FindOptions) (*mongo.Cursor, error)
	FindOne(ctx context.Context, filter interface{}, opts ...*options.FindOneOptions) *mongo.SingleResult
	UpdateOne(ctx context.Context, filter interface{}, update interface{}, opts ...*options.UpdateOptions) (*mongo.UpdateResult, error)
	CountDocuments(ctx context.Context, filter interface{}, opts ...*options.CountOptions) (int64, error)
	EnsureUniqueIndex(ctx context.Context, keys bson.D) error
}

// MongoCollection adapts *mongo.Collection to Collection.
type MongoCollection struct {
	*mongo.Collection
}

// EnsureUniqueIndex creates a unique index on keys if it does not exist.
func (c *MongoCollection) EnsureUniqueIndex(ctx context.Context, keys bson.D) error {
	_, err := c.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    keys,
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("failed to create index on %s: %w", c.Name(), err)
	}
	return nil
}

// Connect establishes a connection to MongoDB and verifies it with a ping.
func Connect(ctx context.Context, logger *slog.Logger, uri string) (*mongo.Client, error) {
	logger.DebugContext(ctx, "Attempting to connect to MongoDB", "uri", uri)

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	logger.InfoContext(ctx, "Connected to MongoDB")
	return client, nil
}
