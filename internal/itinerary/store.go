// Package itinerary holds a device's live copy of one trip's itinerary.
//
// The Store applies local edits optimistically, sends them to the backend,
// and folds the change feed into the same model. All state transitions happen
// under a single lock, so readers never observe a half-applied transition;
// network calls and listener callbacks run outside it.
package itinerary

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"

	"github.com/pkordes/tripsync/backend/internal/domain"
	"github.com/pkordes/tripsync/backend/internal/feed"
)

// Repository is the backend the Store writes to. repo.ItemRepo and
// client.HTTPRepository both satisfy it.
type Repository interface {
	Create(ctx context.Context, item domain.ItineraryItem) (domain.ItineraryItem, error)
	GetByID(ctx context.Context, tripID, id uuid.UUID) (domain.ItineraryItem, error)
	ListByTrip(ctx context.Context, tripID uuid.UUID) ([]domain.ItineraryItem, error)
	Update(ctx context.Context, tripID, id uuid.UUID, patch domain.ItemPatch, w domain.WriteMeta) (domain.ItineraryItem, error)
	Delete(ctx context.Context, tripID, id uuid.UUID, expectedRevision int64) error
}

// Authorizer decides whether the current user may edit the trip.
// *permission.Gate satisfies it.
type Authorizer interface {
	CanMutate(ctx context.Context, userID, tripID uuid.UUID) (bool, error)
	// Invalidate drops a cached decision after the backend disagreed with it.
	Invalidate(ctx context.Context, userID, tripID uuid.UUID) error
}

// Session exposes the signed-in user. It is consulted on every mutation.
type Session interface {
	CurrentUserID() uuid.UUID
}

// StaticSession is a Session for a fixed user.
type StaticSession uuid.UUID

func (s StaticSession) CurrentUserID() uuid.UUID { return uuid.UUID(s) }

// State is the sync state of one item.
type State int

const (
	// StateAbsent: the item is not in the read model (never seen, or deleted).
	StateAbsent State = iota
	// StateStable: the item matches the last version confirmed by the backend.
	StateStable
	// StateOptimisticPending: a local write is shown but not yet confirmed.
	StateOptimisticPending
	// StateConflictPending: the backend rejected the write and the
	// authoritative version is being fetched.
	StateConflictPending
)

func (s State) String() string {
	switch s {
	case StateAbsent:
		return "absent"
	case StateStable:
		return "stable"
	case StateOptimisticPending:
		return "optimistic_pending"
	case StateConflictPending:
		return "conflict_pending"
	}
	return "unknown"
}

// entry is one item in the model.
type entry struct {
	// item is what readers see.
	item domain.ItineraryItem
	// base is the last backend-confirmed version; nil for an unconfirmed
	// create. Rollbacks restore it.
	base *domain.ItineraryItem
	state State
	// hidden marks an optimistic delete.
	hidden  bool
	pending *Mutation
	// touched is the store sequence number of the last change to this entry.
	touched uint64
}

// tombstone remembers a deleted id so late data cannot resurrect it.
type tombstone struct {
	seq uint64
	at  time.Time
}

// DefaultTombstoneTTL is how long a deleted id is remembered once no round
// trip that started before the deletion is still running.
const DefaultTombstoneTTL = 5 * time.Minute

// Store is the read model and mutation API for one trip.
type Store struct {
	tripID  uuid.UUID
	repo    Repository
	sub     feed.Subscriber
	auth    Authorizer
	session Session

	logger         *slog.Logger
	newBackoff     func() retry.Backoff
	attemptTimeout time.Duration
	now            func() time.Time

	tombstoneTTL time.Duration

	mu         sync.Mutex
	entries    map[uuid.UUID]*entry
	tombstones map[uuid.UUID]tombstone
	// inflight holds the start sequence of every running backend round trip.
	inflight map[uint64]struct{}
	seq      uint64

	listeners listeners
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the store's logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithBackoff sets the retry policy for repository calls. The function is
// called once per operation; its Backoff bounds the attempts, and with them
// how long a mutation can stay pending.
func WithBackoff(f func() retry.Backoff) Option {
	return func(s *Store) { s.newBackoff = f }
}

// WithRetry retries a failed call attempts-1 times with exponential backoff
// starting at base.
func WithRetry(attempts int, base time.Duration) Option {
	return WithBackoff(func() retry.Backoff {
		n := uint64(0)
		if attempts > 1 {
			n = uint64(attempts - 1)
		}
		return retry.WithMaxRetries(n, retry.NewExponential(base))
	})
}

// WithAttemptTimeout bounds a single repository call.
func WithAttemptTimeout(d time.Duration) Option {
	return func(s *Store) { s.attemptTimeout = d }
}

// WithClock overrides the time source used for local timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithTombstoneTTL sets how long deleted ids are remembered.
func WithTombstoneTTL(d time.Duration) Option {
	return func(s *Store) { s.tombstoneTTL = d }
}

// New creates an empty Store for tripID. Call Load or Run to populate it.
func New(tripID uuid.UUID, repo Repository, sub feed.Subscriber, auth Authorizer, session Session, opts ...Option) *Store {
	s := &Store{
		tripID:         tripID,
		repo:           repo,
		sub:            sub,
		auth:           auth,
		session:        session,
		logger:         slog.Default(),
		attemptTimeout: 10 * time.Second,
		now:            time.Now,
		entries:        make(map[uuid.UUID]*entry),
		tombstoneTTL:   DefaultTombstoneTTL,
		tombstones:     make(map[uuid.UUID]tombstone),
		inflight:       make(map[uint64]struct{}),
	}
	WithRetry(4, 200*time.Millisecond)(s)
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("trip_id", tripID)
	return s
}

// TripID returns the trip the store holds.
func (s *Store) TripID() uuid.UUID { return s.tripID }

// ---- read model ------------------------------------------------------------

// Items returns a snapshot of the visible items in display order.
func (s *Store) Items() []domain.ItineraryItem {
	s.mu.Lock()
	items := make([]domain.ItineraryItem, 0, len(s.entries))
	for _, e := range s.entries {
		if !e.hidden {
			items = append(items, e.item)
		}
	}
	s.mu.Unlock()

	domain.SortItems(items)
	return items
}

// Groups returns the visible items grouped by day.
func (s *Store) Groups() []domain.DayGroup {
	return domain.GroupByDay(s.Items())
}

// Get returns the visible version of an item.
func (s *Store) Get(id uuid.UUID) (domain.ItineraryItem, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[id]
	if !ok || e.hidden {
		return domain.ItineraryItem{}, false
	}
	return e.item, true
}

// State returns the sync state of an item.
func (s *Store) State(id uuid.UUID) State {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.entries[id]; ok {
		return e.state
	}
	return StateAbsent
}

// Pending returns the number of unsettled mutations.
func (s *Store) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, e := range s.entries {
		if e.pending != nil {
			n++
		}
	}
	return n
}

// ---- mutations -------------------------------------------------------------

// authorize runs before any optimistic change. It returns the acting user.
func (s *Store) authorize(ctx context.Context) (uuid.UUID, error) {
	userID := s.session.CurrentUserID()
	ok, err := s.auth.CanMutate(ctx, userID, s.tripID)
	if err != nil {
		return uuid.Nil, fmt.Errorf("permission check: %w", err)
	}
	if !ok {
		return uuid.Nil, fmt.Errorf("user %s on trip %s: %w", userID, s.tripID, domain.ErrUnauthorized)
	}
	return userID, nil
}

// Create adds an item. The item appears in Items immediately under a
// temporary id, which is replaced by the backend id once confirmed.
//
// Unauthorized and invalid drafts are rejected synchronously without touching
// the model.
func (s *Store) Create(ctx context.Context, draft domain.ItemDraft) (*Mutation, error) {
	userID, err := s.authorize(ctx)
	if err != nil {
		return nil, fmt.Errorf("itinerary.Store.Create: %w", err)
	}

	item := draft.Item(s.tripID)
	if err := domain.ValidateItem(item); err != nil {
		return nil, fmt.Errorf("itinerary.Store.Create: %w", err)
	}

	ref := uuid.New()
	now := s.now().UTC()
	item.ID, item.ClientRef, item.WriteRef = ref, ref, ref
	item.UpdatedBy = userID
	item.CreatedAt, item.UpdatedAt = now, now

	m := newMutation(domain.MutationCreate, item, 0, ref, userID)

	s.mu.Lock()
	m.since = s.track()
	s.entries[ref] = &entry{item: item, state: StateOptimisticPending, pending: m, touched: s.next()}
	s.mu.Unlock()

	s.logger.DebugContext(ctx, "optimistic create", "temp_id", ref, "title", item.Title)
	s.listeners.changed()

	go s.runCreate(context.WithoutCancel(ctx), m)
	return m, nil
}

// Update applies patch to an item. The patched item is shown immediately and
// written with the item's current revision as the concurrency token.
//
// Returns domain.ErrNotFound if the item is not in the model, domain.ErrBusy
// if it has a write in flight, and domain.ErrValidation for an empty patch or
// an invalid result.
func (s *Store) Update(ctx context.Context, id uuid.UUID, patch domain.ItemPatch) (*Mutation, error) {
	userID, err := s.authorize(ctx)
	if err != nil {
		return nil, fmt.Errorf("itinerary.Store.Update: %w", err)
	}
	if !patch.HasChanges() {
		return nil, fmt.Errorf("itinerary.Store.Update: empty patch: %w", domain.ErrValidation)
	}

	s.mu.Lock()
	e, ok := s.entries[id]
	if !ok || e.hidden {
		s.mu.Unlock()
		return nil, fmt.Errorf("itinerary.Store.Update: item %s: %w", id, domain.ErrNotFound)
	}
	if e.pending != nil || e.state != StateStable {
		s.mu.Unlock()
		return nil, fmt.Errorf("itinerary.Store.Update: item %s is %s: %w", id, e.state, domain.ErrBusy)
	}

	next := patch.Apply(e.item)
	if err := domain.ValidateItem(next); err != nil {
		s.mu.Unlock()
		return nil, fmt.Errorf("itinerary.Store.Update: %w", err)
	}

	writeRef := uuid.New()
	next.WriteRef = writeRef
	next.UpdatedBy = userID
	next.UpdatedAt = s.now().UTC()

	m := newMutation(domain.MutationUpdate, next, e.item.Revision, writeRef, userID)
	m.patch = patch

	e.item = next
	e.state = StateOptimisticPending
	e.pending = m
	e.touched = s.next()
	m.since = s.track()
	s.mu.Unlock()

	s.logger.DebugContext(ctx, "optimistic update", "item_id", id, "expected_revision", m.expectedRevision)
	s.listeners.changed()

	go s.runUpdate(context.WithoutCancel(ctx), m)
	return m, nil
}

// Delete removes an item. It disappears from Items immediately.
//
// Deleting an item the store does not hold, or one already deleted, returns a
// mutation that has already succeeded. Returns domain.ErrBusy if the item has
// a write in flight.
func (s *Store) Delete(ctx context.Context, id uuid.UUID) (*Mutation, error) {
	userID, err := s.authorize(ctx)
	if err != nil {
		return nil, fmt.Errorf("itinerary.Store.Delete: %w", err)
	}

	s.mu.Lock()
	e, ok := s.entries[id]
	if !ok {
		s.mu.Unlock()
		return resolved(domain.MutationDelete, domain.ItineraryItem{ID: id, TripID: s.tripID}), nil
	}
	if e.pending != nil || e.state != StateStable {
		s.mu.Unlock()
		return nil, fmt.Errorf("itinerary.Store.Delete: item %s is %s: %w", id, e.state, domain.ErrBusy)
	}

	m := newMutation(domain.MutationDelete, e.item, e.item.Revision, uuid.New(), userID)
	e.hidden = true
	e.state = StateOptimisticPending
	e.pending = m
	e.touched = s.next()
	m.since = s.track()
	s.mu.Unlock()

	s.logger.DebugContext(ctx, "optimistic delete", "item_id", id, "expected_revision", m.expectedRevision)
	s.listeners.changed()

	go s.runDelete(context.WithoutCancel(ctx), m)
	return m, nil
}

// ---- repository round trips ------------------------------------------------

func (s *Store) runCreate(ctx context.Context, m *Mutation) {
	defer s.untrack(m.since)
	callCtx, cancel := untilSettled(ctx, m)
	defer cancel()
	saved, err := withRetry(callCtx, s, "create", func(ctx context.Context) (domain.ItineraryItem, error) {
		return s.repo.Create(ctx, m.attempted)
	})

	var o outbox
	s.mu.Lock()
	switch {
	case m.settled:
		// The feed echo confirmed it first.
		if err == nil {
			s.mergeRemote(&saved, &o)
		}
	case err == nil:
		s.confirmCreate(m, saved, &o)
	default:
		delete(s.entries, m.attempted.ID)
		s.fail(m, err, &o)
	}
	s.mu.Unlock()

	s.flush(ctx, o)
}

func (s *Store) runUpdate(ctx context.Context, m *Mutation) {
	defer s.untrack(m.since)
	id := m.attempted.ID
	callCtx, cancel := untilSettled(ctx, m)
	defer cancel()
	saved, err := withRetry(callCtx, s, "update", func(ctx context.Context) (domain.ItineraryItem, error) {
		return s.repo.Update(ctx, s.tripID, id, m.patch, domain.WriteMeta{
			ExpectedRevision: m.expectedRevision,
			WriteRef:         m.writeRef,
			UserID:           m.userID,
		})
	})

	var o outbox
	s.mu.Lock()
	switch {
	case m.settled:
		if err == nil {
			s.mergeRemote(&saved, &o)
		}
	case err == nil:
		e := s.entries[id]
		e.item, e.base = saved, &saved
		e.state = StateStable
		e.pending = nil
		e.touched = s.next()
		s.settle(m, saved, nil)
		o.changed = true
	case errors.Is(err, domain.ErrConflict), errors.Is(err, domain.ErrNotFound):
		s.mu.Unlock()
		s.resolveRejected(ctx, m, err)
		return
	default:
		e := s.entries[id]
		e.item = *e.base
		e.state = StateStable
		e.pending = nil
		e.touched = s.next()
		s.fail(m, err, &o)
	}
	s.mu.Unlock()

	s.flush(ctx, o)
}

func (s *Store) runDelete(ctx context.Context, m *Mutation) {
	defer s.untrack(m.since)
	id := m.attempted.ID
	callCtx, cancel := untilSettled(ctx, m)
	defer cancel()
	_, err := withRetry(callCtx, s, "delete", func(ctx context.Context) (struct{}, error) {
		return struct{}{}, s.repo.Delete(ctx, s.tripID, id, m.expectedRevision)
	})
	if errors.Is(err, domain.ErrNotFound) {
		err = nil
	}

	var o outbox
	s.mu.Lock()
	switch {
	case m.settled:
	case err == nil:
		s.remove(id)
		s.settle(m, m.attempted, nil)
		o.changed = true
	case errors.Is(err, domain.ErrConflict):
		s.mu.Unlock()
		s.resolveRejected(ctx, m, err)
		return
	default:
		e := s.entries[id]
		e.hidden = false
		e.state = StateStable
		e.pending = nil
		e.touched = s.next()
		s.fail(m, err, &o)
	}
	s.mu.Unlock()

	s.flush(ctx, o)
}

// resolveRejected handles an update or delete the backend refused. The local
// change is never re-sent: the item is moved to ConflictPending, the
// authoritative version is fetched, and the resolver decides the outcome with
// whatever is known by the time the fetch returns.
func (s *Store) resolveRejected(ctx context.Context, m *Mutation, rejection error) {
	id := m.attempted.ID

	s.mu.Lock()
	if m.settled {
		s.mu.Unlock()
		return
	}
	e := s.entries[id]
	e.state = StateConflictPending
	e.touched = s.next()
	s.mu.Unlock()
	s.listeners.changed()

	var (
		current  *domain.ItineraryItem
		fetchErr error
	)
	if !errors.Is(rejection, domain.ErrNotFound) {
		callCtx, cancel := untilSettled(ctx, m)
		got, err := withRetry(callCtx, s, "get", func(ctx context.Context) (domain.ItineraryItem, error) {
			return s.repo.GetByID(ctx, s.tripID, id)
		})
		switch {
		case err == nil:
			current = &got
		case !errors.Is(err, domain.ErrNotFound):
			fetchErr = err
		}
		cancel()
	}

	var (
		o       outbox
		refresh bool
	)
	s.mu.Lock()
	switch {
	case m.settled:
		// A feed event resolved the mutation while we were fetching.
		if current != nil {
			s.mergeRemote(current, &o)
		}
	case fetchErr != nil:
		s.unresolved(m, rejection, fetchErr, &o)
		refresh = true
	default:
		s.applyDecision(m, rejectedDecision(m, current), current, &o)
	}
	s.mu.Unlock()

	s.flush(ctx, o)

	if refresh {
		go func() {
			if err := s.Refresh(ctx); err != nil {
				s.logger.WarnContext(ctx, "refresh after unresolved conflict failed", "error", err)
			}
		}()
	}
}

// unresolved rolls back a rejected write whose authoritative version could
// not be fetched. A full refresh follows.
func (s *Store) unresolved(m *Mutation, rejection, fetchErr error, o *outbox) {
	id := m.attempted.ID
	e := s.entries[id]
	e.item = *e.base
	e.hidden = false
	e.state = StateStable
	e.pending = nil
	e.touched = s.next()

	o.conflicts = append(o.conflicts, domain.Conflict{
		TripID:     s.tripID,
		ItemID:     id,
		Kind:       m.Kind,
		Reason:     domain.ReasonUnresolved,
		Attempted:  m.attempted,
		DetectedAt: s.now().UTC(),
	})
	o.changed = true
	s.settle(m, domain.ItineraryItem{}, fmt.Errorf("%w (authoritative version unavailable: %v)", rejection, fetchErr))
}

// confirmCreate replaces the temporary entry with the backend item.
func (s *Store) confirmCreate(m *Mutation, saved domain.ItineraryItem, o *outbox) {
	delete(s.entries, m.attempted.ID)
	m.setItemID(saved.ID)

	if _, gone := s.tombstones[saved.ID]; !gone {
		if e, ok := s.entries[saved.ID]; ok {
			// Already merged from a refresh; keep the newer version.
			if saved.Revision > e.item.Revision && e.pending == nil {
				e.item, e.base = saved, &saved
			}
		} else {
			s.entries[saved.ID] = &entry{item: saved, base: &saved, state: StateStable, touched: s.next()}
		}
	}
	s.settle(m, saved, nil)
	o.changed = true
}

// fail rolls back bookkeeping for a write that could not be delivered.
// The caller has already restored the entry.
func (s *Store) fail(m *Mutation, err error, o *outbox) {
	if errors.Is(err, domain.ErrUnauthorized) {
		o.invalidate = append(o.invalidate, m.userID)
	}
	o.failures = append(o.failures, domain.SyncFailure{
		TripID:    s.tripID,
		ItemID:    m.attempted.ID,
		Kind:      m.Kind,
		Attempted: m.attempted,
		Err:       err,
	})
	o.changed = true
	s.settle(m, domain.ItineraryItem{}, fmt.Errorf("%w: %w", domain.ErrSyncFailed, err))
}

// settle resolves m once. Callers hold s.mu.
func (s *Store) settle(m *Mutation, item domain.ItineraryItem, err error) {
	if m.settled {
		return
	}
	m.settled = true
	m.result = item
	m.err = err
	close(m.done)
}

// remove deletes an item from the model and remembers it as deleted.
func (s *Store) remove(id uuid.UUID) {
	delete(s.entries, id)
	s.bury(id)
}

// bury records id as deleted. Callers hold s.mu.
func (s *Store) bury(id uuid.UUID) {
	s.pruneTombstones()
	s.tombstones[id] = tombstone{seq: s.next(), at: s.now()}
}

// track registers a backend round trip and returns its start sequence.
// Callers hold s.mu.
func (s *Store) track() uint64 {
	seq := s.next()
	s.inflight[seq] = struct{}{}
	return seq
}

// untrack ends the round trip started at seq.
func (s *Store) untrack(seq uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inflight, seq)
	s.pruneTombstones()
}

// pruneTombstones forgets deletions older than the TTL that no running round
// trip can contradict. Callers hold s.mu.
func (s *Store) pruneTombstones() {
	floor := uint64(math.MaxUint64)
	for seq := range s.inflight {
		floor = min(floor, seq)
	}
	cutoff := s.now().Add(-s.tombstoneTTL)
	for id, t := range s.tombstones {
		if t.seq < floor && !t.at.After(cutoff) {
			delete(s.tombstones, id)
		}
	}
}

func (s *Store) next() uint64 {
	s.seq++
	return s.seq
}

// untilSettled returns a context that ends once m settles, so a write the
// change feed has already resolved is not sent again.
func untilSettled(ctx context.Context, m *Mutation) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(ctx)
	go func() {
		select {
		case <-m.done:
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}

// withRetry runs fn under the store's backoff. Logical outcomes (conflict,
// not found, validation, unauthorized) are returned at once; everything else
// is retried until the backoff gives up.
func withRetry[T any](ctx context.Context, s *Store, op string, fn func(context.Context) (T, error)) (T, error) {
	var (
		out     T
		attempt int
	)
	err := retry.Do(ctx, s.newBackoff(), func(ctx context.Context) error {
		attempt++
		actx, cancel := context.WithTimeout(ctx, s.attemptTimeout)
		defer cancel()

		v, err := fn(actx)
		if err == nil {
			out = v
			return nil
		}
		if domain.IsLogical(err) {
			return err
		}
		s.logger.DebugContext(ctx, "repository call failed", "op", op, "attempt", attempt, "error", err)
		return retry.RetryableError(err)
	})
	return out, err
}
