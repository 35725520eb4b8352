// Package conflict decides how a device reconciles its own pending writes
// with what the backend says. Every function here is pure: it looks at
// revisions and write references only, never at wall-clock timestamps.
package conflict

import (
	"github.com/google/uuid"

	"github.com/pkordes/tripsync/backend/internal/domain"
)

// Action is the outcome of a resolution.
type Action int

const (
	// Accept replaces the local version with the remote one.
	Accept Action = iota
	// Ignore keeps the local version; the remote version is stale.
	Ignore
	// Confirm settles the pending write successfully: the remote version is
	// the result of that write.
	Confirm
	// Conflict discards the pending write and adopts the remote version,
	// notifying the user.
	Conflict
)

func (a Action) String() string {
	switch a {
	case Accept:
		return "accept"
	case Ignore:
		return "ignore"
	case Confirm:
		return "confirm"
	case Conflict:
		return "conflict"
	}
	return "unknown"
}

// Pending describes the in-flight local write for an item.
type Pending struct {
	Kind domain.MutationKind
	// ExpectedRevision is the revision the write was issued against. Zero
	// for creates.
	ExpectedRevision int64
	// WriteRef identifies the write. For creates it is also the ClientRef.
	WriteRef uuid.UUID
}

// Decision is returned by the resolver. Reason is set only for Conflict.
type Decision struct {
	Action Action
	Reason domain.ConflictReason
}

func decide(a Action) Decision { return Decision{Action: a} }

func conflictOf(r domain.ConflictReason) Decision {
	return Decision{Action: Conflict, Reason: r}
}

// OnRemote resolves a change-feed event against the local state of an item.
//
// local is the version currently held (nil if the item is not held). pending
// is the in-flight write for the item, if any. remote is the version carried
// by the event, nil for a deletion.
func OnRemote(local *domain.ItineraryItem, pending *Pending, remote *domain.ItineraryItem) Decision {
	if pending == nil {
		return onRemoteSettled(local, remote)
	}

	switch pending.Kind {
	case domain.MutationCreate:
		// Nothing else can touch an item the backend has not created yet; the
		// only event that concerns a pending create is its own insert.
		if remote != nil && remote.ClientRef == pending.WriteRef {
			return decide(Confirm)
		}
		return decide(Ignore)

	case domain.MutationUpdate:
		if remote == nil {
			return conflictOf(domain.ReasonDeleted)
		}
		if remote.WriteRef == pending.WriteRef {
			return decide(Confirm)
		}
		if remote.Revision <= pending.ExpectedRevision {
			return decide(Ignore)
		}
		return conflictOf(domain.ReasonStaleRevision)

	case domain.MutationDelete:
		if remote == nil {
			return decide(Confirm)
		}
		if remote.Revision <= pending.ExpectedRevision {
			return decide(Ignore)
		}
		return conflictOf(domain.ReasonStaleRevision)
	}
	return decide(Ignore)
}

func onRemoteSettled(local, remote *domain.ItineraryItem) Decision {
	if remote == nil || local == nil {
		return decide(Accept)
	}
	if remote.Revision > local.Revision {
		return decide(Accept)
	}
	return decide(Ignore)
}

// OnRejected resolves a write the backend refused with a revision conflict.
// current is the authoritative version fetched after the rejection, nil when
// the item no longer exists.
//
// A rejection whose current version carries the write's own WriteRef means an
// earlier attempt did land and only its response was lost; the write is
// confirmed. A delete rejected against a row that is already gone has reached
// its goal and is confirmed as well.
func OnRejected(pending Pending, current *domain.ItineraryItem) Decision {
	if current == nil {
		if pending.Kind == domain.MutationDelete {
			return decide(Confirm)
		}
		return conflictOf(domain.ReasonDeleted)
	}
	if pending.Kind == domain.MutationUpdate && current.WriteRef == pending.WriteRef {
		return decide(Confirm)
	}
	return conflictOf(domain.ReasonStaleRevision)
}
