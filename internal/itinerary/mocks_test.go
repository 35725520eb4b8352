package itinerary_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"
	"github.com/stretchr/testify/require"

	"github.com/pkordes/tripsync/backend/internal/domain"
	"github.com/pkordes/tripsync/backend/internal/feed"
	"github.com/pkordes/tripsync/backend/internal/itinerary"
)

// ---- mock repository -------------------------------------------------------

// mockRepo is a hand-written test double for itinerary.Repository.
// Unset functions fail the call with errUnexpected.
type mockRepo struct {
	create     func(ctx context.Context, item domain.ItineraryItem) (domain.ItineraryItem, error)
	getByID    func(ctx context.Context, tripID, id uuid.UUID) (domain.ItineraryItem, error)
	listByTrip func(ctx context.Context, tripID uuid.UUID) ([]domain.ItineraryItem, error)
	update     func(ctx context.Context, tripID, id uuid.UUID, patch domain.ItemPatch, w domain.WriteMeta) (domain.ItineraryItem, error)
	delete     func(ctx context.Context, tripID, id uuid.UUID, expectedRevision int64) error

	createCalls, getCalls, listCalls, updateCalls, deleteCalls atomic.Int32
}

var errUnexpected = errors.New("unexpected repository call")

func (m *mockRepo) Create(ctx context.Context, item domain.ItineraryItem) (domain.ItineraryItem, error) {
	m.createCalls.Add(1)
	if m.create == nil {
		return domain.ItineraryItem{}, errUnexpected
	}
	return m.create(ctx, item)
}
func (m *mockRepo) GetByID(ctx context.Context, tripID, id uuid.UUID) (domain.ItineraryItem, error) {
	m.getCalls.Add(1)
	if m.getByID == nil {
		return domain.ItineraryItem{}, errUnexpected
	}
	return m.getByID(ctx, tripID, id)
}
func (m *mockRepo) ListByTrip(ctx context.Context, tripID uuid.UUID) ([]domain.ItineraryItem, error) {
	m.listCalls.Add(1)
	if m.listByTrip == nil {
		return nil, errUnexpected
	}
	return m.listByTrip(ctx, tripID)
}
func (m *mockRepo) Update(ctx context.Context, tripID, id uuid.UUID, patch domain.ItemPatch, w domain.WriteMeta) (domain.ItineraryItem, error) {
	m.updateCalls.Add(1)
	if m.update == nil {
		return domain.ItineraryItem{}, errUnexpected
	}
	return m.update(ctx, tripID, id, patch, w)
}
func (m *mockRepo) Delete(ctx context.Context, tripID, id uuid.UUID, expectedRevision int64) error {
	m.deleteCalls.Add(1)
	if m.delete == nil {
		return errUnexpected
	}
	return m.delete(ctx, tripID, id, expectedRevision)
}

var _ itinerary.Repository = (*mockRepo)(nil)

// ---- mock authorizer -------------------------------------------------------

type mockAuthorizer struct {
	allowed     atomic.Bool
	mu          sync.Mutex
	invalidated []uuid.UUID
}

func allowAll() *mockAuthorizer {
	a := &mockAuthorizer{}
	a.allowed.Store(true)
	return a
}

func (a *mockAuthorizer) CanMutate(context.Context, uuid.UUID, uuid.UUID) (bool, error) {
	return a.allowed.Load(), nil
}

func (a *mockAuthorizer) Invalidate(_ context.Context, userID, _ uuid.UUID) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.invalidated = append(a.invalidated, userID)
	return nil
}

func (a *mockAuthorizer) invalidations() []uuid.UUID {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]uuid.UUID(nil), a.invalidated...)
}

var _ itinerary.Authorizer = (*mockAuthorizer)(nil)

// ---- mock feed -------------------------------------------------------------

type chanSubscriber struct {
	ch chan feed.Event
}

func (c *chanSubscriber) Subscribe(ctx context.Context, _ uuid.UUID) (<-chan feed.Event, error) {
	out := make(chan feed.Event)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case ev := <-c.ch:
				select {
				case out <- ev:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

var _ feed.Subscriber = (*chanSubscriber)(nil)

// ---- recorder --------------------------------------------------------------

type recorder struct {
	mu        sync.Mutex
	conflicts []domain.Conflict
	failures  []domain.SyncFailure
	changes   int
}

func record(s *itinerary.Store) *recorder {
	r := &recorder{}
	s.OnConflict(func(c domain.Conflict) {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.conflicts = append(r.conflicts, c)
	})
	s.OnSyncFailed(func(f domain.SyncFailure) {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.failures = append(r.failures, f)
	})
	s.OnChange(func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.changes++
	})
	return r
}

func (r *recorder) Conflicts() []domain.Conflict {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.Conflict(nil), r.conflicts...)
}

func (r *recorder) Failures() []domain.SyncFailure {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.SyncFailure(nil), r.failures...)
}

func (r *recorder) Changes() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.changes
}

// ---- helpers ---------------------------------------------------------------

var (
	tripID = uuid.MustParse("7a0c2b4d-9a3e-4f2a-b1c5-6d8e9f0a1b2c")
	adminA = uuid.MustParse("aaaaaaaa-0000-4000-8000-000000000001")
	adminB = uuid.MustParse("bbbbbbbb-0000-4000-8000-000000000002")
)

func fastRetry() retry.Backoff {
	return retry.WithMaxRetries(3, retry.NewConstant(time.Millisecond))
}

func newStore(repo *mockRepo, auth *mockAuthorizer, opts ...itinerary.Option) *itinerary.Store {
	opts = append([]itinerary.Option{itinerary.WithBackoff(fastRetry)}, opts...)
	return itinerary.New(tripID, repo, &chanSubscriber{ch: make(chan feed.Event)}, auth, itinerary.StaticSession(adminA), opts...)
}

// stored returns a confirmed item as the backend would hold it.
func stored(title string, rev int64) domain.ItineraryItem {
	day := time.Date(2025, 2, 10, 0, 0, 0, 0, time.UTC)
	return domain.ItineraryItem{
		ID:        uuid.New(),
		TripID:    tripID,
		Title:     title,
		DayDate:   &day,
		Revision:  rev,
		ClientRef: uuid.New(),
		WriteRef:  uuid.New(),
		UpdatedBy: adminB,
	}
}

// loaded returns a store whose model holds items.
func loaded(t *testing.T, repo *mockRepo, auth *mockAuthorizer, items ...domain.ItineraryItem) *itinerary.Store {
	t.Helper()
	repo.listByTrip = func(context.Context, uuid.UUID) ([]domain.ItineraryItem, error) {
		return items, nil
	}
	s := newStore(repo, auth)
	require.NoError(t, s.Load(context.Background()))
	return s
}

func wait(t *testing.T, m *itinerary.Mutation) (domain.ItineraryItem, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	item, err := m.Wait(ctx)
	require.NotErrorIs(t, err, context.DeadlineExceeded, "mutation never settled")
	return item, err
}

// gate blocks a repository call until released.
type gate chan struct{}

func (g gate) wait(ctx context.Context) error {
	select {
	case <-g:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
