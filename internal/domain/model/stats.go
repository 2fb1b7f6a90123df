package model

import "time"

// Stats is the introspection snapshot consumed by operator tooling.
type Stats struct {
	CachedItems    int64            `json:"cached_items"`
	PendingActions int64            `json:"pending_actions"`
	FailedActions  int64            `json:"failed_actions"`
	StorageBytes   int64            `json:"storage_bytes"`
	LastSyncAt     *time.Time       `json:"last_sync_at"`
	LastSweepAt    *time.Time       `json:"last_sweep_at,omitempty"`
	Online         bool             `json:"online"`
	OnlineSince    *time.Time       `json:"online_since,omitempty"`
	OfflineSince   *time.Time       `json:"offline_since,omitempty"`
	Partitions     []PartitionUsage `json:"partitions"`
}
