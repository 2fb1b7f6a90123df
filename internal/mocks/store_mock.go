// Code generated manually. DO NOT EDIT.

package mocks

import (
	"context"
	"time"

	"github.com/guttosm/offline-sync/internal/domain/model"
	"github.com/stretchr/testify/mock"
)

type MockStore struct {
	mock.Mock
}

func (m *MockStore) Name() string {
	args := m.Called()
	return args.String(0)
}

func (m *MockStore) HealthCheck(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockStore) Close(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockStore) GetEntry(ctx context.Context, partition, key string) (*model.CacheEntry, error) {
	args := m.Called(ctx, partition, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.CacheEntry), args.Error(1)
}

func (m *MockStore) PutEntry(ctx context.Context, entry *model.CacheEntry) error {
	args := m.Called(ctx, entry)
	return args.Error(0)
}

func (m *MockStore) DeleteEntry(ctx context.Context, partition, key string) error {
	args := m.Called(ctx, partition, key)
	return args.Error(0)
}

func (m *MockStore) ListKeys(ctx context.Context, partition string) ([]string, error) {
	args := m.Called(ctx, partition)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

func (m *MockStore) ClearPartition(ctx context.Context, partition string) (int, error) {
	args := m.Called(ctx, partition)
	return args.Int(0), args.Error(1)
}

func (m *MockStore) DeleteExpired(ctx context.Context, partition string, storedBefore, now time.Time) (int, error) {
	args := m.Called(ctx, partition, storedBefore, now)
	return args.Int(0), args.Error(1)
}

func (m *MockStore) TrimPartition(ctx context.Context, partition string, maxEntries int) (int, error) {
	args := m.Called(ctx, partition, maxEntries)
	return args.Int(0), args.Error(1)
}

func (m *MockStore) Usage(ctx context.Context) ([]model.PartitionUsage, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.PartitionUsage), args.Error(1)
}

func (m *MockStore) InsertAction(ctx context.Context, action *model.QueuedAction) error {
	args := m.Called(ctx, action)
	return args.Error(0)
}

func (m *MockStore) GetAction(ctx context.Context, id string) (*model.QueuedAction, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.QueuedAction), args.Error(1)
}

func (m *MockStore) UpdateAction(ctx context.Context, action *model.QueuedAction) error {
	args := m.Called(ctx, action)
	return args.Error(0)
}

func (m *MockStore) DeleteAction(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockStore) ListActions(ctx context.Context, statuses ...model.ActionStatus) ([]*model.QueuedAction, error) {
	args := m.Called(ctx, statuses)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.QueuedAction), args.Error(1)
}

func (m *MockStore) FindByIdempotencyKey(ctx context.Context, key string) (*model.QueuedAction, error) {
	args := m.Called(ctx, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.QueuedAction), args.Error(1)
}

func (m *MockStore) FindByTempID(ctx context.Context, tempID string) (*model.QueuedAction, error) {
	args := m.Called(ctx, tempID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.QueuedAction), args.Error(1)
}

func (m *MockStore) DeleteFinishedBefore(ctx context.Context, status model.ActionStatus, cutoff time.Time) (int, error) {
	args := m.Called(ctx, status, cutoff)
	return args.Int(0), args.Error(1)
}

func (m *MockStore) CountByStatus(ctx context.Context) (map[model.ActionStatus]int, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[model.ActionStatus]int), args.Error(1)
}

func (m *MockStore) ClearActions(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}
