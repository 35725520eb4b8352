package domain

import (
	"time"

	"github.com/google/uuid"
)

// ConflictReason explains why a pending local write lost.
type ConflictReason string

const (
	// ReasonStaleRevision: someone else wrote the item after our last read.
	ReasonStaleRevision ConflictReason = "stale_revision"
	// ReasonDeleted: the item was deleted while our write was pending.
	ReasonDeleted ConflictReason = "deleted"
	// ReasonUnresolved: the write was rejected but the authoritative state
	// could not be fetched; a full refresh was scheduled instead.
	ReasonUnresolved ConflictReason = "unresolved"
)

// Conflict is delivered to conflict listeners when a local optimistic change
// was discarded because another writer got there first.
type Conflict struct {
	TripID uuid.UUID
	ItemID uuid.UUID
	Kind   MutationKind
	Reason ConflictReason
	// Attempted is the local version the user tried to write.
	Attempted ItineraryItem
	// Current is the authoritative version now shown, nil when the item is gone.
	Current    *ItineraryItem
	DetectedAt time.Time
}

// SyncFailure is delivered to sync-failure listeners when a write was rolled
// back without a conflict: the backend was unreachable within the retry
// budget, or rejected the write outright.
type SyncFailure struct {
	TripID    uuid.UUID
	ItemID    uuid.UUID
	Kind      MutationKind
	Attempted ItineraryItem
	Err       error
}
