package repository

import (
	"context"
	"encoding/hex"
	"errors"
	"time"

	"github.com/guttosm/offline-sync/internal/domain/model"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"golang.org/x/crypto/blake2b"
)

// cacheDocument is the stored shape of a cache entry. The _id is a
// fixed-length digest of partition and key, so a put is a single-document
// replace.
type cacheDocument struct {
	ID               string `bson:"_id"`
	model.CacheEntry `bson:",inline"`
	Size             int64 `bson:"size"`
}

func cacheDocumentID(partition, key string) string {
	sum := blake2b.Sum256([]byte(partition + "\x00" + key))
	return hex.EncodeToString(sum[:])
}

func (s *MongoStore) GetEntry(ctx context.Context, partition, key string) (*model.CacheEntry, error) {
	var doc cacheDocument
	err := s.CacheEntries.FindOne(ctx, bson.M{"_id": cacheDocumentID(partition, key)}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	entry := doc.CacheEntry
	return &entry, nil
}

func (s *MongoStore) PutEntry(ctx context.Context, entry *model.CacheEntry) error {
	doc := cacheDocument{
		ID:         cacheDocumentID(entry.Partition, entry.Key),
		CacheEntry: *entry,
		Size:       entry.Size(),
	}
	_, err := s.CacheEntries.ReplaceOne(ctx, bson.M{"_id": doc.ID}, doc, options.Replace().SetUpsert(true))
	return err
}

func (s *MongoStore) DeleteEntry(ctx context.Context, partition, key string) error {
	_, err := s.CacheEntries.DeleteOne(ctx, bson.M{"_id": cacheDocumentID(partition, key)})
	return err
}

func (s *MongoStore) ListKeys(ctx context.Context, partition string) ([]string, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "key", Value: 1}}).
		SetProjection(bson.M{"key": 1})

	cursor, err := s.CacheEntries.Find(ctx, bson.M{"partition": partition}, opts)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = cursor.Close(ctx)
	}()

	var docs []struct {
		Key string `bson:"key"`
	}
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}
	keys := make([]string, len(docs))
	for i, d := range docs {
		keys[i] = d.Key
	}
	return keys, nil
}

func (s *MongoStore) ClearPartition(ctx context.Context, partition string) (int, error) {
	res, err := s.CacheEntries.DeleteMany(ctx, bson.M{"partition": partition})
	if err != nil {
		return 0, err
	}
	return int(res.DeletedCount), nil
}

func (s *MongoStore) DeleteExpired(ctx context.Context, partition string, storedBefore, now time.Time) (int, error) {
	filter := bson.M{
		"partition": partition,
		"$or": bson.A{
			bson.M{"stored_at": bson.M{"$lt": storedBefore}},
			bson.M{"expires_at": bson.M{"$exists": true, "$lte": now}},
		},
	}
	res, err := s.CacheEntries.DeleteMany(ctx, filter)
	if err != nil {
		return 0, err
	}
	return int(res.DeletedCount), nil
}

func (s *MongoStore) TrimPartition(ctx context.Context, partition string, max int) (int, error) {
	if max < 0 {
		return 0, nil
	}
	total, err := s.CacheEntries.CountDocuments(ctx, bson.M{"partition": partition})
	if err != nil {
		return 0, err
	}
	excess := total - int64(max)
	if excess <= 0 {
		return 0, nil
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "stored_at", Value: 1}, {Key: "key", Value: 1}}).
		SetLimit(excess).
		SetProjection(bson.M{"_id": 1})
	cursor, err := s.CacheEntries.Find(ctx, bson.M{"partition": partition}, opts)
	if err != nil {
		return 0, err
	}
	defer func() {
		_ = cursor.Close(ctx)
	}()

	var oldest []struct {
		ID string `bson:"_id"`
	}
	if err := cursor.All(ctx, &oldest); err != nil {
		return 0, err
	}
	ids := make(bson.A, len(oldest))
	for i, d := range oldest {
		ids[i] = d.ID
	}

	res, err := s.CacheEntries.DeleteMany(ctx, bson.M{"_id": bson.M{"$in": ids}})
	if err != nil {
		return 0, err
	}
	return int(res.DeletedCount), nil
}

func (s *MongoStore) Usage(ctx context.Context) ([]model.PartitionUsage, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$group", Value: bson.M{
			"_id":     "$partition",
			"entries": bson.M{"$sum": 1},
			"bytes":   bson.M{"$sum": "$size"},
		}}},
		{{Key: "$sort", Value: bson.M{"_id": 1}}},
	}
	cursor, err := s.CacheEntries.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = cursor.Close(ctx)
	}()

	var rows []struct {
		Partition string `bson:"_id"`
		Entries   int64  `bson:"entries"`
		Bytes     int64  `bson:"bytes"`
	}
	if err := cursor.All(ctx, &rows); err != nil {
		return nil, err
	}
	usage := make([]model.PartitionUsage, len(rows))
	for i, r := range rows {
		usage[i] = model.PartitionUsage{Partition: r.Partition, Entries: r.Entries, Bytes: r.Bytes}
	}
	return usage, nil
}
