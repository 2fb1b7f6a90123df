// Code generated manually. DO NOT EDIT.

package mocks

import (
	"context"

	"github.com/guttosm/offline-sync/internal/domain/model"
	"github.com/stretchr/testify/mock"
)

type MockRemoteAPI struct {
	mock.Mock
}

func (m *MockRemoteAPI) Fetch(ctx context.Context, req *model.Request) (*model.Response, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Response), args.Error(1)
}

func (m *MockRemoteAPI) Replay(ctx context.Context, action model.QueuedAction) (*model.Response, error) {
	args := m.Called(ctx, action)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Response), args.Error(1)
}

func (m *MockRemoteAPI) Ping(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}
