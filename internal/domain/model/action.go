package model

import (
	"net/http"
	"time"
)

// ActionType is the kind of mutation a queued action replays.
type ActionType string

const (
	ActionCreate ActionType = "CREATE"
	ActionUpdate ActionType = "UPDATE"
	ActionDelete ActionType = "DELETE"
)

// ActionStatus is the lifecycle state of a queued action.
type ActionStatus string

// Status transitions: pending → syncing → {completed | pending (retry) | failed}.
const (
	StatusPending   ActionStatus = "pending"
	StatusSyncing   ActionStatus = "syncing"
	StatusCompleted ActionStatus = "completed"
	StatusFailed    ActionStatus = "failed"
)

// AllStatuses lists every action status in lifecycle order.
var AllStatuses = []ActionStatus{StatusPending, StatusSyncing, StatusCompleted, StatusFailed}

// Valid reports whether s is a known status.
func (s ActionStatus) Valid() bool {
	for _, v := range AllStatuses {
		if v == s {
			return true
		}
	}
	return false
}

// QueuedAction is a write that could not reach the remote API and waits for replay.
type QueuedAction struct {
	ID  string `json:"id" bson:"_id"`
	Seq int64  `json:"seq" bson:"seq"`

	Type     ActionType `json:"type" bson:"type"`
	Kind     string     `json:"kind" bson:"kind"`
	EntityID string     `json:"entity_id,omitempty" bson:"entity_id,omitempty"`
	// TempID is the locally generated id handed out for a CREATE until the server assigns one.
	TempID string `json:"temp_id,omitempty" bson:"temp_id,omitempty"`
	// ServerID is the id returned by the remote for a completed CREATE.
	ServerID string `json:"server_id,omitempty" bson:"server_id,omitempty"`

	Method         string      `json:"method" bson:"method"`
	Path           string      `json:"path" bson:"path"`
	Header         http.Header `json:"header,omitempty" bson:"header,omitempty"`
	Payload        []byte      `json:"payload,omitempty" bson:"payload,omitempty"`
	IdempotencyKey string      `json:"idempotency_key" bson:"idempotency_key"`

	Status     ActionStatus `json:"status" bson:"status"`
	RetryCount int          `json:"retry_count" bson:"retry_count"`
	MaxRetries int          `json:"max_retries" bson:"max_retries"`
	LastError  string       `json:"last_error,omitempty" bson:"last_error,omitempty"`
	// Terminal marks a failure the remote rejected outright; it is never retried automatically.
	Terminal bool `json:"terminal,omitempty" bson:"terminal,omitempty"`

	EnqueuedAt    time.Time `json:"enqueued_at" bson:"enqueued_at"`
	UpdatedAt     time.Time `json:"updated_at" bson:"updated_at"`
	NextAttemptAt time.Time `json:"next_attempt_at,omitempty" bson:"next_attempt_at,omitempty"`
	CompletedAt   time.Time `json:"completed_at,omitempty" bson:"completed_at,omitempty"`
}

// EntityKey identifies the entity whose actions must replay in enqueue order.
func (a *QueuedAction) EntityKey() string {
	id := a.EntityID
	if id == "" {
		id = a.TempID
	}
	if id == "" {
		id = a.ID
	}
	return a.Kind + "/" + id
}

// Eligible reports whether the action should be picked up by a reconciliation pass at now.
func (a *QueuedAction) Eligible(now time.Time) bool {
	switch a.Status {
	case StatusPending:
		return a.NextAttemptAt.IsZero() || !now.Before(a.NextAttemptAt)
	case StatusFailed:
		return !a.Terminal && a.RetryCount < a.MaxRetries
	default:
		return false
	}
}

// Clone returns a deep copy of the action.
func (a *QueuedAction) Clone() *QueuedAction {
	if a == nil {
		return nil
	}
	c := *a
	c.Header = a.Header.Clone()
	c.Payload = cloneBytes(a.Payload)
	return &c
}

// Size approximates the storage footprint of the action in bytes.
func (a *QueuedAction) Size() int64 {
	return int64(len(a.ID) + len(a.Kind) + len(a.EntityID) + len(a.Path) + len(a.Payload) + len(a.LastError))
}
