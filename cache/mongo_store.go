package cache

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.uber.org/zap"
)

// MongoConfig configures the MongoDB-backed persistent tier.
type MongoConfig struct {
	URI            string        `yaml:"uri" json:"uri"`
	Database       string        `yaml:"database" json:"database"`
	Collection     string        `yaml:"collection" json:"collection"`
	TTL            time.Duration `yaml:"ttl" json:"ttl"`
	ConnectTimeout time.Duration `yaml:"connect_timeout" json:"connect_timeout"`
}

// DefaultMongoConfig returns the default MongoDB tier configuration.
func DefaultMongoConfig() MongoConfig {
	return MongoConfig{
		URI:            "mongodb://localhost:27017",
		Database:       "glinax_chatbot_db",
		Collection:     "response_cache",
		TTL:            24 * time.Hour,
		ConnectTimeout: 5 * time.Second,
	}
}

// MongoStore is a PersistentStore on MongoDB: one document per cache key,
// expiry filtered on read, hit counts bumped server-side with $inc, and
// stats computed with an aggregation pipeline.
type MongoStore struct {
	client *mongo.Client
	coll   *mongo.Collection
	ttl    time.Duration
	logger *zap.Logger
}

// cacheDoc is the persisted shape of an Entry. The cache key doubles as
// the document id so upserts and pattern deletes stay index-backed.
type cacheDoc struct {
	Key            string    `bson:"_id"`
	AnswerText     string    `bson:"answer_text"`
	Sources        []Source  `bson:"sources,omitempty"`
	Confidence     float64   `bson:"confidence"`
	ContextLabel   string    `bson:"context_label"`
	CreatedAt      time.Time `bson:"created_at"`
	LastAccessedAt time.Time `bson:"last_accessed_at"`
	HitCount       int       `bson:"hit_count"`
	ExpiresAt      time.Time `bson:"expires_at"`
}

func (d *cacheDoc) entry() *Entry {
	return &Entry{
		Key:            d.Key,
		AnswerText:     d.AnswerText,
		Sources:        d.Sources,
		Confidence:     d.Confidence,
		ContextLabel:   d.ContextLabel,
		CreatedAt:      d.CreatedAt,
		LastAccessedAt: d.LastAccessedAt,
		HitCount:       d.HitCount,
		ExpiresAt:      d.ExpiresAt,
	}
}

// NewMongoStore connects to MongoDB and verifies the connection.
func NewMongoStore(cfg MongoConfig, logger *zap.Logger) (*MongoStore, error) {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultMongoConfig().TTL
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = DefaultMongoConfig().ConnectTimeout
	}

	client, err := mongo.Connect(options.Client().
		ApplyURI(cfg.URI).
		SetConnectTimeout(cfg.ConnectTimeout))
	if err != nil {
		return nil, fmt.Errorf("failed to create mongo client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ConnectTimeout)
	defer cancel()
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to connect to mongo: %w", err)
	}

	s := &MongoStore{
		client: client,
		coll:   client.Database(cfg.Database).Collection(cfg.Collection),
		ttl:    cfg.TTL,
		logger: logger.With(zap.String("component", "mongo_store")),
	}

	s.logger.Info("mongo store initialized",
		zap.String("database", cfg.Database),
		zap.String("collection", cfg.Collection),
		zap.Duration("ttl", cfg.TTL),
	)
	return s, nil
}

// Get returns the live entry for key, bumping its hit count and access
// time in the same server-side operation. The returned snapshot is the
// entry as it was before this hit.
func (s *MongoStore) Get(ctx context.Context, key string) (*Entry, error) {
	now := time.Now().UTC()
	filter := bson.M{
		"_id":        key,
		"expires_at": bson.M{"$gt": now},
	}
	update := bson.M{
		"$inc": bson.M{"hit_count": 1},
		"$set": bson.M{"last_accessed_at": now},
	}

	var doc cacheDoc
	err := s.coll.FindOneAndUpdate(ctx, filter, update,
		options.FindOneAndUpdate().SetReturnDocument(options.Before),
	).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("mongo get failed: %w", err)
	}
	return doc.entry(), nil
}

// Put upserts the entry's document, restarting the persistent TTL.
func (s *MongoStore) Put(ctx context.Context, entry *Entry) error {
	now := time.Now().UTC()
	doc := cacheDoc{
		Key:            entry.Key,
		AnswerText:     entry.AnswerText,
		Sources:        entry.Sources,
		Confidence:     entry.Confidence,
		ContextLabel:   entry.ContextLabel,
		CreatedAt:      entry.CreatedAt,
		LastAccessedAt: entry.LastAccessedAt,
		HitCount:       entry.HitCount,
		ExpiresAt:      now.Add(s.ttl),
	}
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = now
	}
	if doc.LastAccessedAt.IsZero() {
		doc.LastAccessedAt = now
	}
	if doc.HitCount < 1 {
		doc.HitCount = 1
	}

	_, err := s.coll.ReplaceOne(ctx,
		bson.M{"_id": doc.Key},
		doc,
		options.Replace().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("mongo put failed: %w", err)
	}
	return nil
}

// Contains reports whether a live entry exists for key.
func (s *MongoStore) Contains(ctx context.Context, key string) (bool, error) {
	n, err := s.coll.CountDocuments(ctx, bson.M{
		"_id":        key,
		"expires_at": bson.M{"$gt": time.Now().UTC()},
	})
	if err != nil {
		return false, fmt.Errorf("mongo count failed: %w", err)
	}
	return n > 0, nil
}

// DeleteMatching removes documents whose key contains pattern.
func (s *MongoStore) DeleteMatching(ctx context.Context, pattern string) (int64, error) {
	res, err := s.coll.DeleteMany(ctx, bson.M{
		"_id": bson.M{
			"$regex":   regexp.QuoteMeta(pattern),
			"$options": "i",
		},
	})
	if err != nil {
		return 0, fmt.Errorf("mongo delete failed: %w", err)
	}
	return res.DeletedCount, nil
}

// Stats aggregates live documents server-side and ranks the topN most hit.
func (s *MongoStore) Stats(ctx context.Context, topN int) (*StoreStats, error) {
	now := time.Now().UTC()
	live := bson.M{"expires_at": bson.M{"$gt": now}}

	cursor, err := s.coll.Aggregate(ctx, mongo.Pipeline{
		{{Key: "$match", Value: live}},
		{{Key: "$group", Value: bson.M{
			"_id":        nil,
			"entries":    bson.M{"$sum": 1},
			"total_hits": bson.M{"$sum": "$hit_count"},
			"avg_hits":   bson.M{"$avg": "$hit_count"},
		}}},
	})
	if err != nil {
		return nil, fmt.Errorf("mongo aggregate failed: %w", err)
	}
	defer cursor.Close(ctx)

	stats := &StoreStats{}
	if cursor.Next(ctx) {
		var row struct {
			Entries   int64   `bson:"entries"`
			TotalHits int64   `bson:"total_hits"`
			AvgHits   float64 `bson:"avg_hits"`
		}
		if err := cursor.Decode(&row); err != nil {
			return nil, fmt.Errorf("mongo decode failed: %w", err)
		}
		stats.Entries = row.Entries
		stats.TotalHits = row.TotalHits
		stats.AvgHits = row.AvgHits
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("mongo aggregate failed: %w", err)
	}

	if topN > 0 && stats.Entries > 0 {
		topCursor, err := s.coll.Find(ctx, live, options.Find().
			SetSort(bson.D{{Key: "hit_count", Value: -1}}).
			SetLimit(int64(topN)))
		if err != nil {
			return nil, fmt.Errorf("mongo find failed: %w", err)
		}
		defer topCursor.Close(ctx)

		for topCursor.Next(ctx) {
			var doc cacheDoc
			if err := topCursor.Decode(&doc); err != nil {
				continue
			}
			stats.TopEntries = append(stats.TopEntries, TopEntry{
				Key:            doc.Key,
				ContextLabel:   doc.ContextLabel,
				HitCount:       doc.HitCount,
				LastAccessedAt: doc.LastAccessedAt,
			})
		}
		if err := topCursor.Err(); err != nil {
			return nil, fmt.Errorf("mongo find failed: %w", err)
		}
	}

	return stats, nil
}

// Ping verifies the MongoDB connection.
func (s *MongoStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, nil)
}

// Close disconnects the underlying client.
func (s *MongoStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}
