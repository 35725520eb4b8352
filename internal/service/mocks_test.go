package service_test

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/pkordes/tripsync/backend/internal/domain"
	"github.com/pkordes/tripsync/backend/internal/repo"
	"github.com/pkordes/tripsync/backend/internal/service"
)

// ---- mock repos ------------------------------------------------------------

// mockTripRepo is a hand-written test double for repo.TripRepo.
// Each method is a function field; set only the ones your test needs.
type mockTripRepo struct {
	create  func(ctx context.Context, trip domain.Trip, ownerID uuid.UUID) (domain.Trip, error)
	getByID func(ctx context.Context, id uuid.UUID) (domain.Trip, error)
}

func (m *mockTripRepo) Create(ctx context.Context, trip domain.Trip, ownerID uuid.UUID) (domain.Trip, error) {
	return m.create(ctx, trip, ownerID)
}
func (m *mockTripRepo) GetByID(ctx context.Context, id uuid.UUID) (domain.Trip, error) {
	return m.getByID(ctx, id)
}

var _ repo.TripRepo = (*mockTripRepo)(nil)

// mockMembershipRepo is a hand-written test double for repo.MembershipRepo.
type mockMembershipRepo struct {
	roleOf     func(ctx context.Context, userID, tripID uuid.UUID) (domain.Role, error)
	upsert     func(ctx context.Context, m domain.TripMembership) (domain.TripMembership, error)
	delete     func(ctx context.Context, tripID, userID uuid.UUID) error
	listByTrip func(ctx context.Context, tripID uuid.UUID) ([]domain.TripMembership, error)
}

func (m *mockMembershipRepo) RoleOf(ctx context.Context, userID, tripID uuid.UUID) (domain.Role, error) {
	return m.roleOf(ctx, userID, tripID)
}
func (m *mockMembershipRepo) Upsert(ctx context.Context, mem domain.TripMembership) (domain.TripMembership, error) {
	return m.upsert(ctx, mem)
}
func (m *mockMembershipRepo) Delete(ctx context.Context, tripID, userID uuid.UUID) error {
	return m.delete(ctx, tripID, userID)
}
func (m *mockMembershipRepo) ListByTrip(ctx context.Context, tripID uuid.UUID) ([]domain.TripMembership, error) {
	return m.listByTrip(ctx, tripID)
}

var _ repo.MembershipRepo = (*mockMembershipRepo)(nil)

// mockItemRepo is a hand-written test double for repo.ItemRepo.
type mockItemRepo struct {
	create     func(ctx context.Context, item domain.ItineraryItem) (domain.ItineraryItem, error)
	getByID    func(ctx context.Context, tripID, id uuid.UUID) (domain.ItineraryItem, error)
	listByTrip func(ctx context.Context, tripID uuid.UUID) ([]domain.ItineraryItem, error)
	update     func(ctx context.Context, tripID, id uuid.UUID, patch domain.ItemPatch, w domain.WriteMeta) (domain.ItineraryItem, error)
	delete     func(ctx context.Context, tripID, id uuid.UUID, expectedRevision int64) error
}

func (m *mockItemRepo) Create(ctx context.Context, item domain.ItineraryItem) (domain.ItineraryItem, error) {
	return m.create(ctx, item)
}
func (m *mockItemRepo) GetByID(ctx context.Context, tripID, id uuid.UUID) (domain.ItineraryItem, error) {
	return m.getByID(ctx, tripID, id)
}
func (m *mockItemRepo) ListByTrip(ctx context.Context, tripID uuid.UUID) ([]domain.ItineraryItem, error) {
	return m.listByTrip(ctx, tripID)
}
func (m *mockItemRepo) Update(ctx context.Context, tripID, id uuid.UUID, patch domain.ItemPatch, w domain.WriteMeta) (domain.ItineraryItem, error) {
	return m.update(ctx, tripID, id, patch, w)
}
func (m *mockItemRepo) Delete(ctx context.Context, tripID, id uuid.UUID, expectedRevision int64) error {
	return m.delete(ctx, tripID, id, expectedRevision)
}

var _ repo.ItemRepo = (*mockItemRepo)(nil)

// ---- fake gate -------------------------------------------------------------

// fakeGate answers from a fixed role table and records invalidations.
type fakeGate struct {
	roles map[uuid.UUID]domain.Role

	mu          sync.Mutex
	invalidated []uuid.UUID
}

func gateWith(roles map[uuid.UUID]domain.Role) *fakeGate {
	return &fakeGate{roles: roles}
}

func (g *fakeGate) Role(_ context.Context, userID, _ uuid.UUID) (domain.Role, error) {
	if userID == uuid.Nil {
		return "", domain.ErrUnauthorized
	}
	role, ok := g.roles[userID]
	if !ok {
		return "", domain.ErrNotFound
	}
	return role, nil
}

func (g *fakeGate) Authorize(ctx context.Context, userID, tripID uuid.UUID) error {
	role, err := g.Role(ctx, userID, tripID)
	if err != nil || !role.CanMutateItinerary() {
		return fmt.Errorf("fake gate: %w", domain.ErrUnauthorized)
	}
	return nil
}

func (g *fakeGate) AuthorizeRead(ctx context.Context, userID, tripID uuid.UUID) error {
	if _, err := g.Role(ctx, userID, tripID); err != nil {
		return fmt.Errorf("fake gate: %w", domain.ErrUnauthorized)
	}
	return nil
}

func (g *fakeGate) Invalidate(_ context.Context, userID, _ uuid.UUID) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.invalidated = append(g.invalidated, userID)
	return nil
}

var _ service.Authorizer = (*fakeGate)(nil)

// ---- helpers ---------------------------------------------------------------

var (
	tripID = uuid.MustParse("7a0c2b4d-9a3e-4f2a-b1c5-6d8e9f0a1b2c")
	owner  = uuid.MustParse("00000000-0000-4000-8000-00000000000a")
	admin  = uuid.MustParse("00000000-0000-4000-8000-00000000000b")
	member = uuid.MustParse("00000000-0000-4000-8000-00000000000c")
	// stranger is not on the trip.
	stranger = uuid.MustParse("00000000-0000-4000-8000-00000000000d")
)

func tripGate() *fakeGate {
	return gateWith(map[uuid.UUID]domain.Role{
		owner:  domain.RoleOwner,
		admin:  domain.RoleAdmin,
		member: domain.RoleMember,
	})
}
