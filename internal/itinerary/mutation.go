package itinerary

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/pkordes/tripsync/backend/internal/domain"
)

// Mutation is a local write accepted by the Store. It is already visible in
// the read model; Wait reports how the backend settled it.
//
// Every Mutation settles exactly once: confirmed (nil error), or failed with
// an error matching domain.ErrConflict, domain.ErrNotFound or
// domain.ErrSyncFailed.
type Mutation struct {
	Kind domain.MutationKind

	expectedRevision int64
	writeRef         uuid.UUID
	attempted        domain.ItineraryItem
	patch            domain.ItemPatch
	userID           uuid.UUID
	// since is the store sequence at which its round trip started.
	since uint64

	mu     sync.Mutex
	itemID uuid.UUID

	// settled, result and err are written once under Store.mu, before done
	// is closed.
	settled bool
	done    chan struct{}
	result  domain.ItineraryItem
	err     error
}

func newMutation(kind domain.MutationKind, attempted domain.ItineraryItem, expected int64, writeRef, userID uuid.UUID) *Mutation {
	return &Mutation{
		Kind:             kind,
		expectedRevision: expected,
		writeRef:         writeRef,
		attempted:        attempted,
		userID:           userID,
		itemID:           attempted.ID,
		done:             make(chan struct{}),
	}
}

// resolved returns an already-settled successful mutation.
func resolved(kind domain.MutationKind, item domain.ItineraryItem) *Mutation {
	m := newMutation(kind, item, item.Revision, uuid.Nil, uuid.Nil)
	m.settled = true
	m.result = item
	close(m.done)
	return m
}

// ItemID is the id the item is known by: the temporary id of an unconfirmed
// create, the backend id afterwards.
func (m *Mutation) ItemID() uuid.UUID {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.itemID
}

func (m *Mutation) setItemID(id uuid.UUID) {
	m.mu.Lock()
	m.itemID = id
	m.mu.Unlock()
}

// Attempted is the item as the user intended it.
func (m *Mutation) Attempted() domain.ItineraryItem { return m.attempted }

// Done is closed once the mutation has settled.
func (m *Mutation) Done() <-chan struct{} { return m.done }

// Wait blocks until the mutation settles or ctx ends. On success it returns
// the confirmed item; for a delete that is the last version seen.
func (m *Mutation) Wait(ctx context.Context) (domain.ItineraryItem, error) {
	select {
	case <-m.done:
		return m.result, m.err
	case <-ctx.Done():
		return domain.ItineraryItem{}, ctx.Err()
	}
}
