package itinerary

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/pkordes/tripsync/backend/internal/domain"
)

// outbox collects the side effects of a transition so they can run after the
// store lock is released.
type outbox struct {
	conflicts  []domain.Conflict
	failures   []domain.SyncFailure
	invalidate []uuid.UUID
	changed    bool
}

func (s *Store) flush(ctx context.Context, o outbox) {
	for _, userID := range o.invalidate {
		if err := s.auth.Invalidate(ctx, userID, s.tripID); err != nil {
			s.logger.WarnContext(ctx, "permission cache invalidation failed", "user_id", userID, "error", err)
		}
	}
	if o.changed {
		s.listeners.changed()
	}
	for _, c := range o.conflicts {
		s.logger.WarnContext(ctx, "write conflict", "item_id", c.ItemID, "kind", c.Kind, "reason", c.Reason)
		s.listeners.conflict.emit(c)
	}
	for _, f := range o.failures {
		s.logger.WarnContext(ctx, "sync failed", "item_id", f.ItemID, "kind", f.Kind, "error", f.Err)
		s.listeners.syncFailed.emit(f)
	}
}

// OnConflict registers fn for conflict notifications and returns a function
// that unregisters it. Handlers run outside the store lock and may call back
// into the store.
func (s *Store) OnConflict(fn func(domain.Conflict)) (unsubscribe func()) {
	return s.listeners.conflict.add(fn)
}

// OnSyncFailed registers fn for sync-failure notifications.
func (s *Store) OnSyncFailed(fn func(domain.SyncFailure)) (unsubscribe func()) {
	return s.listeners.syncFailed.add(fn)
}

// OnChange registers fn to be called whenever the read model changes.
func (s *Store) OnChange(fn func()) (unsubscribe func()) {
	return s.listeners.change.add(func(struct{}) { fn() })
}

type listeners struct {
	conflict   handlerSet[domain.Conflict]
	syncFailed handlerSet[domain.SyncFailure]
	change     handlerSet[struct{}]
}

func (l *listeners) changed() { l.change.emit(struct{}{}) }

type handlerSet[T any] struct {
	mu   sync.Mutex
	next int
	fns  map[int]func(T)
}

func (h *handlerSet[T]) add(fn func(T)) func() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.fns == nil {
		h.fns = make(map[int]func(T))
	}
	id := h.next
	h.next++
	h.fns[id] = fn
	return func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		delete(h.fns, id)
	}
}

func (h *handlerSet[T]) emit(v T) {
	h.mu.Lock()
	fns := make([]func(T), 0, len(h.fns))
	for _, fn := range h.fns {
		fns = append(fns, fn)
	}
	h.mu.Unlock()

	for _, fn := range fns {
		fn(v)
	}
}
