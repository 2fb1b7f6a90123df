package repository

import (
	"context"
	"errors"
	"time"

	"github.com/guttosm/offline-sync/internal/domain/model"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func (s *MongoStore) InsertAction(ctx context.Context, action *model.QueuedAction) error {
	if action.IdempotencyKey != "" {
		if _, err := s.FindByIdempotencyKey(ctx, action.IdempotencyKey); err == nil {
			return ErrDuplicateKey
		} else if !errors.Is(err, ErrNotFound) {
			return err
		}
	}

	seq, err := s.nextSeq(ctx, actionSeqCounter)
	if err != nil {
		return err
	}
	action.Seq = seq

	if _, err := s.Actions.InsertOne(ctx, action); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return err
	}
	return nil
}

func (s *MongoStore) GetAction(ctx context.Context, id string) (*model.QueuedAction, error) {
	return s.findAction(ctx, bson.M{"_id": id})
}

func (s *MongoStore) UpdateAction(ctx context.Context, action *model.QueuedAction) error {
	current, err := s.GetAction(ctx, action.ID)
	if err != nil {
		return err
	}
	doc := action.Clone()
	doc.Seq = current.Seq

	res, err := s.Actions.ReplaceOne(ctx, bson.M{"_id": action.ID}, doc)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *MongoStore) DeleteAction(ctx context.Context, id string) error {
	res, err := s.Actions.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *MongoStore) ListActions(ctx context.Context, statuses ...model.ActionStatus) ([]*model.QueuedAction, error) {
	filter := bson.M{}
	if len(statuses) > 0 {
		in := make(bson.A, len(statuses))
		for i, st := range statuses {
			in[i] = string(st)
		}
		filter["status"] = bson.M{"$in": in}
	}

	cursor, err := s.Actions.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "seq", Value: 1}}))
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = cursor.Close(ctx)
	}()

	actions := []*model.QueuedAction{}
	if err := cursor.All(ctx, &actions); err != nil {
		return nil, err
	}
	return actions, nil
}

func (s *MongoStore) FindByIdempotencyKey(ctx context.Context, key string) (*model.QueuedAction, error) {
	if key == "" {
		return nil, ErrNotFound
	}
	return s.findAction(ctx, bson.M{"idempotency_key": key})
}

func (s *MongoStore) FindByTempID(ctx context.Context, tempID string) (*model.QueuedAction, error) {
	if tempID == "" {
		return nil, ErrNotFound
	}
	return s.findAction(ctx, bson.M{"temp_id": tempID, "type": string(model.ActionCreate)})
}

func (s *MongoStore) DeleteFinishedBefore(ctx context.Context, status model.ActionStatus, cutoff time.Time) (int, error) {
	res, err := s.Actions.DeleteMany(ctx, bson.M{
		"status":     string(status),
		"updated_at": bson.M{"$lt": cutoff},
	})
	if err != nil {
		return 0, err
	}
	return int(res.DeletedCount), nil
}

func (s *MongoStore) CountByStatus(ctx context.Context) (map[model.ActionStatus]int, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$group", Value: bson.M{"_id": "$status", "count": bson.M{"$sum": 1}}}},
	}
	cursor, err := s.Actions.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = cursor.Close(ctx)
	}()

	var rows []struct {
		Status string `bson:"_id"`
		Count  int    `bson:"count"`
	}
	if err := cursor.All(ctx, &rows); err != nil {
		return nil, err
	}

	counts := make(map[model.ActionStatus]int, len(model.AllStatuses))
	for _, st := range model.AllStatuses {
		counts[st] = 0
	}
	for _, r := range rows {
		counts[model.ActionStatus(r.Status)] = r.Count
	}
	return counts, nil
}

func (s *MongoStore) ClearActions(ctx context.Context) (int, error) {
	res, err := s.Actions.DeleteMany(ctx, bson.M{})
	if err != nil {
		return 0, err
	}
	return int(res.DeletedCount), nil
}

func (s *MongoStore) findAction(ctx context.Context, filter bson.M) (*model.QueuedAction, error) {
	var action model.QueuedAction
	err := s.Actions.FindOne(ctx, filter).Decode(&action)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &action, nil
}
