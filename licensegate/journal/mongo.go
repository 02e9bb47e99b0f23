package journal

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

const defaultMongoCollection = "license_checkouts"

// MongoOption configures a MongoJournal.
type MongoOption func(*MongoJournal)

// WithCollectionName sets the MongoDB collection name. Default: "license_checkouts".
func WithCollectionName(name string) MongoOption {
	return func(j *MongoJournal) {
		j.collectionName = name
	}
}

// MongoJournal implements Journal using MongoDB.
type MongoJournal struct {
	collection     *mongo.Collection
	collectionName string
}

// NewMongoJournal creates a MongoDB-backed journal.
// It creates the necessary indexes on initialization.
func NewMongoJournal(ctx context.Context, db *mongo.Database, opts ...MongoOption) (*MongoJournal, error) {
	j := &MongoJournal{
		collectionName: defaultMongoCollection,
	}
	for _, opt := range opts {
		opt(j)
	}
	if !validIdentifier.MatchString(j.collectionName) {
		return nil, fmt.Errorf("invalid collection name %q: must match [a-zA-Z_][a-zA-Z0-9_]*", j.collectionName)
	}
	j.collection = db.Collection(j.collectionName)

	if err := j.ensureIndexes(ctx); err != nil {
		return nil, fmt.Errorf("create indexes: %w", err)
	}
	return j, nil
}

func (j *MongoJournal) ensureIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "client_token", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{
				{Key: "product_sku", Value: 1},
				{Key: "checked_out_at", Value: -1},
			},
		},
	}
	_, err := j.collection.Indexes().CreateMany(ctx, indexes)
	return err
}

func (j *MongoJournal) Record(ctx context.Context, e Entry) error {
	filter := bson.M{"client_token": e.ClientToken}
	update := bson.M{
		"$set": bson.M{
			"consumption_token": e.ConsumptionToken,
			"granted":           e.Granted,
			"expiration":        e.Expiration,
			"error":             e.Error,
			"checkin_error":     e.CheckinError,
		},
		"$setOnInsert": bson.M{
			"product_sku":    e.ProductSKU,
			"node":           e.Node,
			"checked_out_at": e.CheckedOutAt,
		},
	}
	_, err := j.collection.UpdateOne(ctx, filter, update, options.UpdateOne().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("record checkout: %w", err)
	}
	return nil
}

func (j *MongoJournal) List(ctx context.Context, productSKU string, limit int) ([]Entry, error) {
	opts := options.Find().SetSort(bson.D{{Key: "checked_out_at", Value: -1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	cursor, err := j.collection.Find(ctx, bson.M{"product_sku": productSKU}, opts)
	if err != nil {
		return nil, fmt.Errorf("list checkouts: %w", err)
	}
	var entries []Entry
	if err := cursor.All(ctx, &entries); err != nil {
		return nil, fmt.Errorf("decode checkouts: %w", err)
	}
	return entries, nil
}

func (j *MongoJournal) Prune(ctx context.Context, productSKU string, olderThan time.Duration) (int, error) {
	cutoff := time.Now().Add(-olderThan)
	result, err := j.collection.DeleteMany(ctx, bson.M{
		"product_sku":    productSKU,
		"checked_out_at": bson.M{"$lt": cutoff},
	})
	if err != nil {
		return 0, fmt.Errorf("prune checkouts: %w", err)
	}
	return int(result.DeletedCount), nil
}

func (j *MongoJournal) Close(_ context.Context) error {
	return nil // caller owns the mongo.Database
}
