package model

import (
	"net/http"
	"time"
)

// Partition names.
const (
	PartitionPrecache = "precache"
	PartitionRuntime  = "runtime"
	PartitionData     = "data"
	PartitionImage    = "image"
)

// PartitionPolicy is the retention policy of one cache partition.
type PartitionPolicy struct {
	Name string
	// MaxAge is the age after which entries are eligible for removal. Zero keeps entries forever.
	MaxAge time.Duration
	// MaxEntries caps the partition size; the oldest entries are trimmed first. Zero is unbounded.
	MaxEntries int
	// Persistent partitions are never swept by age.
	Persistent bool
}

// CacheEntry is a stored request→response pair.
type CacheEntry struct {
	Partition string      `json:"partition" bson:"partition"`
	Key       string      `json:"key" bson:"key"`
	Method    string      `json:"method" bson:"method"`
	URL       string      `json:"url" bson:"url"`
	Status    int         `json:"status" bson:"status"`
	Header    http.Header `json:"header,omitempty" bson:"header,omitempty"`
	Body      []byte      `json:"body,omitempty" bson:"body,omitempty"`
	StoredAt  time.Time   `json:"stored_at" bson:"stored_at"`
	ExpiresAt time.Time   `json:"expires_at,omitempty" bson:"expires_at,omitempty"`
}

// Response returns a copy of the stored response.
func (e *CacheEntry) Response() *Response {
	return &Response{
		Status: e.Status,
		Header: e.Header.Clone(),
		Body:   cloneBytes(e.Body),
	}
}

// Clone returns a deep copy of the entry.
func (e *CacheEntry) Clone() *CacheEntry {
	if e == nil {
		return nil
	}
	c := *e
	c.Header = e.Header.Clone()
	c.Body = cloneBytes(e.Body)
	return &c
}

// Expired reports whether the entry is unusable at now under the given max age.
func (e *CacheEntry) Expired(now time.Time, maxAge time.Duration) bool {
	if !e.ExpiresAt.IsZero() && !now.Before(e.ExpiresAt) {
		return true
	}
	return maxAge > 0 && now.Sub(e.StoredAt) > maxAge
}

// Size approximates the storage footprint of the entry in bytes.
func (e *CacheEntry) Size() int64 {
	n := int64(len(e.Key) + len(e.URL) + len(e.Body))
	for k, vs := range e.Header {
		n += int64(len(k))
		for _, v := range vs {
			n += int64(len(v))
		}
	}
	return n
}

// PartitionUsage summarizes one partition for the administrative surface.
type PartitionUsage struct {
	Partition string `json:"partition"`
	Entries   int64  `json:"entries"`
	Bytes     int64  `json:"bytes"`
}
