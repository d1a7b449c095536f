package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/0verdr1v3/bovine/internal/domain"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

const mongoCollectionPrefix = "cache_"

// MongoStore keeps one MongoDB collection per cache collection, keyed by _id.
// Documents are stored as native BSON so they stay queryable from the shell.
type MongoStore struct {
	client *mongo.Client
	db     *mongo.Database
}

type mongoEntry struct {
	Key       string        `bson:"_id"`
	Document  bson.RawValue `bson:"document"`
	UpdatedAt time.Time     `bson:"updated_at"`
	Status    string        `bson:"status"`
}

// NewMongoStore connects and pings the server.
func NewMongoStore(ctx context.Context, uri, database string) (*MongoStore, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("%w: connect mongo: %w", domain.ErrCacheUnavailable, err)
	}
	s := &MongoStore{client: client, db: client.Database(database)}
	if err := s.Ping(ctx); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}
	return s, nil
}

func (s *MongoStore) coll(name string) *mongo.Collection {
	return s.db.Collection(mongoCollectionPrefix + name)
}

func toRecord(entry domain.CacheEntry) (bson.D, error) {
	doc, err := jsonToBSON(entry.Document)
	if err != nil {
		return nil, fmt.Errorf("%w: %s/%s: %w", domain.ErrCacheWrite, entry.Collection, entry.Key, err)
	}
	return bson.D{
		{Key: "_id", Value: entry.Key},
		{Key: "document", Value: doc},
		{Key: "updated_at", Value: entry.UpdatedAt.UTC()},
		{Key: "status", Value: string(entry.Status)},
	}, nil
}

func (s *MongoStore) Upsert(ctx context.Context, entry domain.CacheEntry) error {
	record, err := toRecord(entry)
	if err != nil {
		return err
	}
	_, err = s.coll(entry.Collection).ReplaceOne(ctx,
		bson.M{"_id": entry.Key}, record, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("%w: %s/%s: %w", domain.ErrCacheWrite, entry.Collection, entry.Key, err)
	}
	return nil
}

// ReplaceCollection fills a staging collection and renames it over the
// target with dropTarget, which MongoDB performs atomically. A standalone
// server has no multi-document transactions, so this is the only way to
// swap a set without readers seeing a mix.
func (s *MongoStore) ReplaceCollection(ctx context.Context, collection string, entries []domain.CacheEntry) error {
	if err := checkEntries(collection, entries); err != nil {
		return err
	}
	target := s.coll(collection)
	if len(entries) == 0 {
		if err := target.Drop(ctx); err != nil {
			return fmt.Errorf("%w: replace %s: %w", domain.ErrCacheWrite, collection, err)
		}
		return nil
	}

	docs := make([]any, 0, len(entries))
	for _, e := range entries {
		record, err := toRecord(e)
		if err != nil {
			return err
		}
		docs = append(docs, record)
	}

	staging := s.db.Collection(target.Name() + "_staging_" + uuid.NewString())
	cleanup := func() { _ = staging.Drop(context.WithoutCancel(ctx)) }
	if _, err := staging.InsertMany(ctx, docs); err != nil {
		cleanup()
		return fmt.Errorf("%w: stage %s: %w", domain.ErrCacheWrite, collection, err)
	}
	rename := bson.D{
		{Key: "renameCollection", Value: s.db.Name() + "." + staging.Name()},
		{Key: "to", Value: s.db.Name() + "." + target.Name()},
		{Key: "dropTarget", Value: true},
	}
	if err := s.client.Database("admin").RunCommand(ctx, rename).Err(); err != nil {
		cleanup()
		return fmt.Errorf("%w: swap %s: %w", domain.ErrCacheWrite, collection, err)
	}
	return nil
}

func (s *MongoStore) Get(ctx context.Context, collection, key string) (domain.CacheEntry, error) {
	var rec mongoEntry
	err := s.coll(collection).FindOne(ctx, bson.M{"_id": key}).Decode(&rec)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return domain.CacheEntry{}, fmt.Errorf("%s/%s: %w", collection, key, domain.ErrNotFound)
	}
	if err != nil {
		return domain.CacheEntry{}, fmt.Errorf("%w: get %s/%s: %w", domain.ErrCacheUnavailable, collection, key, err)
	}
	return rec.toEntry(collection)
}

func (s *MongoStore) List(ctx context.Context, collection string) ([]domain.CacheEntry, error) {
	cur, err := s.coll(collection).Find(ctx, bson.D{}, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("%w: list %s: %w", domain.ErrCacheUnavailable, collection, err)
	}
	defer cur.Close(ctx)

	var out []domain.CacheEntry
	for cur.Next(ctx) {
		var rec mongoEntry
		if err := cur.Decode(&rec); err != nil {
			return nil, fmt.Errorf("decode %s: %w", collection, err)
		}
		e, err := rec.toEntry(collection)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	if err := cur.Err(); err != nil {
		return nil, fmt.Errorf("%w: list %s: %w", domain.ErrCacheUnavailable, collection, err)
	}
	return out, nil
}

func (s *MongoStore) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx, readpref.Primary()); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrCacheUnavailable, err)
	}
	return nil
}

func (s *MongoStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

func (r mongoEntry) toEntry(collection string) (domain.CacheEntry, error) {
	doc, err := bsonToJSON(r.Document)
	if err != nil {
		return domain.CacheEntry{}, fmt.Errorf("decode %s/%s: %w", collection, r.Key, err)
	}
	return domain.CacheEntry{
		Collection: collection,
		Key:        r.Key,
		Document:   doc,
		UpdatedAt:  r.UpdatedAt.UTC(),
		Status:     domain.SourceStatus(r.Status),
	}, nil
}

// BSON has no top-level arrays, so documents are round-tripped through a
// single-field wrapper.
type wrapped struct {
	V json.RawMessage `json:"v"`
}

func jsonToBSON(raw json.RawMessage) (any, error) {
	w, err := json.Marshal(wrapped{V: raw})
	if err != nil {
		return nil, err
	}
	var d bson.D
	if err := bson.UnmarshalExtJSON(w, false, &d); err != nil {
		return nil, err
	}
	if len(d) != 1 {
		return nil, errors.New("unexpected wrapper shape")
	}
	return d[0].Value, nil
}

func bsonToJSON(v bson.RawValue) (json.RawMessage, error) {
	out, err := bson.MarshalExtJSON(bson.D{{Key: "v", Value: v}}, false, false)
	if err != nil {
		return nil, err
	}
	var w wrapped
	if err := json.Unmarshal(out, &w); err != nil {
		return nil, err
	}
	return w.V, nil
}
