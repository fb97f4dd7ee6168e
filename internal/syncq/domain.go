package syncq

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Status enumerates the lifecycle of a queued operation.
type Status string

const (
	// StatusQueued means the operation awaits replay.
	StatusQueued Status = "QUEUED"
	// StatusSynced means replay succeeded.
	StatusSynced Status = "SYNCED"
	// StatusFailed means replay was rejected; eligible for manual retry.
	StatusFailed Status = "FAILED"
)

// Item is one buffered mutation. Seq orders replay within an entity type so
// an entity's lifecycle is reapplied in the order it happened offline.
type Item struct {
	ID         uuid.UUID
	Seq        int64
	EntityType string
	Operation  string
	Payload    json.RawMessage
	Status     Status
	Attempts   int
	LastError  string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Stats summarises the queue for the sync indicator.
type Stats struct {
	Total   int `json:"total"`
	Pending int `json:"pending"`
	Failed  int `json:"failed"`
	Synced  int `json:"synced"`
}

var (
	// ErrItemNotFound indicates a missing queue item.
	ErrItemNotFound = errors.New("syncq: item not found")
	// ErrNoApplier indicates no replay function registered for an entity type.
	ErrNoApplier = errors.New("syncq: no applier for entity type")
	// ErrNotRetryable indicates a retry on an item that has not failed.
	ErrNotRetryable = errors.New("syncq: only failed items can be retried")
)
