package service

import (
	"context"

	"github.com/guttosm/offline-sync/internal/domain/model"
)

// Fetcher performs an outbound request against the remote API.
type Fetcher interface {
	Fetch(ctx context.Context, req *model.Request) (*model.Response, error)
}

// Replayer sends a queued action to the remote API.
type Replayer interface {
	Replay(ctx context.Context, action model.QueuedAction) (*model.Response, error)
}

// Pinger checks whether the remote API answers.
type Pinger interface {
	Ping(ctx context.Context) error
}

// RemoteAPI is everything the engine needs from the remote client.
type RemoteAPI interface {
	Fetcher
	Replayer
	Pinger
}
