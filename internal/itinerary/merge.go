package itinerary

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/pkordes/tripsync/backend/internal/conflict"
	"github.com/pkordes/tripsync/backend/internal/domain"
	"github.com/pkordes/tripsync/backend/internal/feed"
)

var errFeedClosed = errors.New("change feed closed")

// Load fetches the trip's items. It is Refresh under the name callers use for
// the first fetch.
func (s *Store) Load(ctx context.Context) error {
	return s.Refresh(ctx)
}

// Run subscribes to the change feed, loads the trip, and merges events until
// ctx ends. Subscribing first means nothing written during the load is
// missed. It returns nil on cancellation.
func (s *Store) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	events, err := s.sub.Subscribe(ctx, s.tripID)
	if err != nil {
		return fmt.Errorf("itinerary.Store.Run: subscribe: %w", err)
	}
	if err := s.Refresh(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("itinerary.Store.Run: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				if ctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("itinerary.Store.Run: %w", errFeedClosed)
			}
			if err := s.Apply(ctx, ev); err != nil {
				s.logger.ErrorContext(ctx, "feed event not applied", "kind", ev.Kind, "item_id", ev.ItemID, "error", err)
			}
		}
	}
}

// Apply merges one feed event. Events for other trips are ignored. A Resync,
// or an insert/update that lost its payload, triggers a full Refresh.
func (s *Store) Apply(ctx context.Context, ev feed.Event) error {
	if ev.TripID != s.tripID {
		return nil
	}

	var o outbox
	switch ev.Kind {
	case feed.Resync:
		// Missed events may include a change to this user's membership.
		userID := s.session.CurrentUserID()
		if err := s.auth.Invalidate(ctx, userID, s.tripID); err != nil {
			s.logger.WarnContext(ctx, "permission cache invalidation failed", "user_id", userID, "error", err)
		}
		return s.Refresh(ctx)
	case feed.Inserted, feed.Updated:
		if ev.Item == nil {
			return s.Refresh(ctx)
		}
		s.mu.Lock()
		s.mergeRemote(ev.Item, &o)
		s.mu.Unlock()
	case feed.Deleted:
		s.mu.Lock()
		s.mergeRemoteDelete(ev.ItemID, &o)
		s.mu.Unlock()
	default:
		s.logger.WarnContext(ctx, "unknown feed event", "kind", ev.Kind)
		return nil
	}

	s.flush(ctx, o)
	return nil
}

// Refresh reloads every item of the trip and merges the result.
//
// Anything the store learned after the reload started (local mutations, feed
// events) is newer than the list and wins over it. Items missing from the
// list are treated as remote deletions, except unconfirmed creates.
func (s *Store) Refresh(ctx context.Context) error {
	s.mu.Lock()
	start := s.track()
	s.mu.Unlock()
	defer s.untrack(start)

	items, err := withRetry(ctx, s, "list", func(ctx context.Context) ([]domain.ItineraryItem, error) {
		return s.repo.ListByTrip(ctx, s.tripID)
	})
	if err != nil {
		return fmt.Errorf("itinerary.Store.Refresh: %w", err)
	}

	o := outbox{changed: true}
	s.mu.Lock()
	seen := make(map[uuid.UUID]struct{}, len(items))
	for i := range items {
		it := items[i]
		seen[it.ID] = struct{}{}
		if e, ok := s.entries[it.ID]; ok && e.touched > start {
			continue
		}
		s.mergeRemote(&it, &o)
	}
	for id, e := range s.entries {
		if _, ok := seen[id]; ok || e.base == nil || e.touched > start {
			continue
		}
		s.mergeRemoteDelete(id, &o)
	}
	for id, t := range s.tombstones {
		if _, ok := seen[id]; !ok && t.seq <= start {
			delete(s.tombstones, id)
		}
	}
	s.mu.Unlock()

	s.logger.DebugContext(ctx, "refreshed", "items", len(items))
	s.flush(ctx, o)
	return nil
}

// mergeRemote folds an inserted or updated backend version into the model.
// Callers hold s.mu.
func (s *Store) mergeRemote(remote *domain.ItineraryItem, o *outbox) {
	if remote.TripID != s.tripID {
		return
	}
	if _, gone := s.tombstones[remote.ID]; gone {
		return
	}

	e, ok := s.entries[remote.ID]
	if !ok {
		if m := s.pendingCreate(remote.ClientRef); m != nil {
			d := conflict.OnRemote(nil, pendingOf(m), remote)
			s.applyDecision(m, d, remote, o)
			return
		}
		cp := *remote
		s.entries[remote.ID] = &entry{item: cp, base: &cp, state: StateStable, touched: s.next()}
		o.changed = true
		return
	}

	local := e.base
	if local == nil {
		local = &e.item
	}
	var p *conflict.Pending
	if e.pending != nil {
		p = pendingOf(e.pending)
	}

	d := conflict.OnRemote(local, p, remote)
	switch d.Action {
	case conflict.Ignore:
	case conflict.Accept:
		cp := *remote
		e.item, e.base = cp, &cp
		e.touched = s.next()
		o.changed = true
	default:
		s.applyDecision(e.pending, d, remote, o)
	}
}

// mergeRemoteDelete folds a backend deletion into the model.
// Callers hold s.mu.
func (s *Store) mergeRemoteDelete(id uuid.UUID, o *outbox) {
	e, ok := s.entries[id]
	if !ok {
		s.bury(id)
		return
	}
	if e.pending == nil {
		s.remove(id)
		o.changed = true
		return
	}

	d := conflict.OnRemote(&e.item, pendingOf(e.pending), nil)
	if d.Action != conflict.Ignore {
		s.applyDecision(e.pending, d, nil, o)
	}
}

// applyDecision settles m according to d. remote is the authoritative
// version, nil when the item is gone. Callers hold s.mu.
func (s *Store) applyDecision(m *Mutation, d conflict.Decision, remote *domain.ItineraryItem, o *outbox) {
	id := m.attempted.ID

	switch d.Action {
	case conflict.Ignore:
		return

	case conflict.Confirm:
		switch {
		case m.Kind == domain.MutationCreate && remote != nil:
			s.confirmCreate(m, *remote, o)
		case remote == nil:
			s.remove(id)
			s.settle(m, m.attempted, nil)
		default:
			s.adopt(id, *remote)
			s.settle(m, *remote, nil)
		}
		o.changed = true
		s.logger.Debug("write confirmed", "kind", m.Kind, "item_id", m.ItemID())

	case conflict.Conflict:
		c := domain.Conflict{
			TripID:     s.tripID,
			ItemID:     id,
			Kind:       m.Kind,
			Reason:     d.Reason,
			Attempted:  m.attempted,
			DetectedAt: s.now().UTC(),
		}
		var result domain.ItineraryItem
		if remote != nil {
			cp := *remote
			c.Current = &cp
			result = cp
			s.adopt(id, cp)
		} else {
			s.remove(id)
		}

		target := domain.ErrConflict
		if d.Reason == domain.ReasonDeleted {
			target = domain.ErrNotFound
		}
		o.conflicts = append(o.conflicts, c)
		o.changed = true
		s.settle(m, result, fmt.Errorf("itinerary: %s of item %s lost (%s): %w", m.Kind, id, d.Reason, target))
	}
}

// adopt makes remote the stable version of id, discarding local state.
func (s *Store) adopt(id uuid.UUID, remote domain.ItineraryItem) {
	e, ok := s.entries[id]
	if !ok {
		e = &entry{}
		s.entries[id] = e
	}
	e.item, e.base = remote, &remote
	e.hidden = false
	e.state = StateStable
	e.pending = nil
	e.touched = s.next()
}

// pendingCreate finds the unconfirmed create that used clientRef.
func (s *Store) pendingCreate(clientRef uuid.UUID) *Mutation {
	if clientRef == uuid.Nil {
		return nil
	}
	e, ok := s.entries[clientRef]
	if !ok || e.pending == nil || e.pending.Kind != domain.MutationCreate {
		return nil
	}
	return e.pending
}

func pendingOf(m *Mutation) *conflict.Pending {
	return &conflict.Pending{Kind: m.Kind, ExpectedRevision: m.expectedRevision, WriteRef: m.writeRef}
}

func rejectedDecision(m *Mutation, current *domain.ItineraryItem) conflict.Decision {
	return conflict.OnRejected(*pendingOf(m), current)
}
