package handler_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"

	"github.com/pkordes/tripsync/backend/internal/domain"
	"github.com/pkordes/tripsync/backend/internal/feed"
	"github.com/pkordes/tripsync/backend/internal/handler"
	"github.com/pkordes/tripsync/backend/internal/middleware"
)

// ---- mock services ---------------------------------------------------------

// mockItemService is a hand-written test double for handler.ItemServicer.
type mockItemService struct {
	list   func(ctx context.Context, userID, tripID uuid.UUID) ([]domain.ItineraryItem, error)
	get    func(ctx context.Context, userID, tripID, id uuid.UUID) (domain.ItineraryItem, error)
	create func(ctx context.Context, userID, tripID uuid.UUID, draft domain.ItemDraft, clientRef uuid.UUID) (domain.ItineraryItem, error)
	update func(ctx context.Context, userID, tripID, id uuid.UUID, patch domain.ItemPatch, w domain.WriteMeta) (domain.ItineraryItem, error)
	delete func(ctx context.Context, userID, tripID, id uuid.UUID, expectedRevision int64) (domain.ItineraryItem, error)
}

func (m *mockItemService) List(ctx context.Context, userID, tripID uuid.UUID) ([]domain.ItineraryItem, error) {
	return m.list(ctx, userID, tripID)
}
func (m *mockItemService) Get(ctx context.Context, userID, tripID, id uuid.UUID) (domain.ItineraryItem, error) {
	return m.get(ctx, userID, tripID, id)
}
func (m *mockItemService) Create(ctx context.Context, userID, tripID uuid.UUID, draft domain.ItemDraft, clientRef uuid.UUID) (domain.ItineraryItem, error) {
	return m.create(ctx, userID, tripID, draft, clientRef)
}
func (m *mockItemService) Update(ctx context.Context, userID, tripID, id uuid.UUID, patch domain.ItemPatch, w domain.WriteMeta) (domain.ItineraryItem, error) {
	return m.update(ctx, userID, tripID, id, patch, w)
}
func (m *mockItemService) Delete(ctx context.Context, userID, tripID, id uuid.UUID, expectedRevision int64) (domain.ItineraryItem, error) {
	return m.delete(ctx, userID, tripID, id, expectedRevision)
}

var _ handler.ItemServicer = (*mockItemService)(nil)

// mockTripService is a hand-written test double for handler.TripServicer.
type mockTripService struct {
	create  func(ctx context.Context, ownerID uuid.UUID, trip domain.Trip) (domain.Trip, error)
	getByID func(ctx context.Context, userID, id uuid.UUID) (domain.Trip, error)
}

func (m *mockTripService) Create(ctx context.Context, ownerID uuid.UUID, trip domain.Trip) (domain.Trip, error) {
	return m.create(ctx, ownerID, trip)
}
func (m *mockTripService) GetByID(ctx context.Context, userID, id uuid.UUID) (domain.Trip, error) {
	return m.getByID(ctx, userID, id)
}

var _ handler.TripServicer = (*mockTripService)(nil)

// mockMemberService is a hand-written test double for handler.MemberServicer.
type mockMemberService struct {
	role   func(ctx context.Context, userID, tripID uuid.UUID) (domain.Role, error)
	list   func(ctx context.Context, userID, tripID uuid.UUID) ([]domain.TripMembership, error)
	upsert func(ctx context.Context, callerID uuid.UUID, m domain.TripMembership) (domain.TripMembership, error)
	remove func(ctx context.Context, callerID, tripID, userID uuid.UUID) error
}

func (m *mockMemberService) Role(ctx context.Context, userID, tripID uuid.UUID) (domain.Role, error) {
	return m.role(ctx, userID, tripID)
}
func (m *mockMemberService) List(ctx context.Context, userID, tripID uuid.UUID) ([]domain.TripMembership, error) {
	return m.list(ctx, userID, tripID)
}
func (m *mockMemberService) Upsert(ctx context.Context, callerID uuid.UUID, mem domain.TripMembership) (domain.TripMembership, error) {
	return m.upsert(ctx, callerID, mem)
}
func (m *mockMemberService) Remove(ctx context.Context, callerID, tripID, userID uuid.UUID) error {
	return m.remove(ctx, callerID, tripID, userID)
}

var _ handler.MemberServicer = (*mockMemberService)(nil)

// ---- helpers ---------------------------------------------------------------

var (
	tripID = uuid.MustParse("7a0c2b4d-9a3e-4f2a-b1c5-6d8e9f0a1b2c")
	itemID = uuid.MustParse("11111111-2222-4333-8444-555555555555")
	userID = uuid.MustParse("aaaaaaaa-0000-4000-8000-000000000001")
)

// asUser stands in for the auth middleware.
func asUser(id uuid.UUID) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(middleware.WithUserID(r.Context(), id)))
		})
	}
}

// memberRoles answers Role from a table; unknown users are not members.
func memberRoles(roles map[uuid.UUID]domain.Role) *mockMemberService {
	return &mockMemberService{
		role: func(_ context.Context, u, _ uuid.UUID) (domain.Role, error) {
			if r, ok := roles[u]; ok {
				return r, nil
			}
			return "", domain.ErrNotFound
		},
	}
}

type deps struct {
	items   *mockItemService
	trips   *mockTripService
	members *mockMemberService
	hub     *feed.Hub
}

func newDeps() *deps {
	return &deps{
		items:   &mockItemService{},
		trips:   &mockTripService{},
		members: memberRoles(map[uuid.UUID]domain.Role{userID: domain.RoleAdmin}),
		hub:     feed.NewHub(),
	}
}

func (d *deps) routes() http.Handler {
	return handler.NewServer(d.items, d.trips, d.members, d.hub).Routes(asUser(userID))
}

func (d *deps) do(t *testing.T, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	d.routes().ServeHTTP(rec, req)
	return rec
}

func lunch(rev int64) domain.ItineraryItem {
	return domain.ItineraryItem{ID: itemID, TripID: tripID, Title: "Lunch", Revision: rev, ClientRef: uuid.New(), WriteRef: uuid.New()}
}
