package service_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pkordes/tripsync/backend/internal/domain"
	"github.com/pkordes/tripsync/backend/internal/service"
)

// storedRoles returns a membership repo that answers RoleOf from roles and
// echoes upserts.
func storedRoles(roles map[uuid.UUID]domain.Role) *mockMembershipRepo {
	return &mockMembershipRepo{
		roleOf: func(_ context.Context, userID, _ uuid.UUID) (domain.Role, error) {
			if r, ok := roles[userID]; ok {
				return r, nil
			}
			return "", domain.ErrNotFound
		},
		upsert: func(_ context.Context, m domain.TripMembership) (domain.TripMembership, error) { return m, nil },
		delete: func(context.Context, uuid.UUID, uuid.UUID) error { return nil },
	}
}

func TestMembershipService_Upsert_InvalidatesRole(t *testing.T) {
	gate := tripGate()
	svc := service.NewMembershipService(storedRoles(gate.roles), gate, nil)

	got, err := svc.Upsert(context.Background(), admin, domain.TripMembership{TripID: tripID, UserID: member, Role: domain.RoleAdmin})

	require.NoError(t, err)
	assert.Equal(t, domain.RoleAdmin, got.Role)
	assert.Equal(t, []uuid.UUID{member}, gate.invalidated)
}

func TestMembershipService_Upsert_Rules(t *testing.T) {
	tests := []struct {
		name    string
		caller  uuid.UUID
		target  uuid.UUID
		role    domain.Role
		wantErr error
	}{
		{"owner grants owner", owner, admin, domain.RoleOwner, nil},
		{"admin adds member", admin, stranger, domain.RoleMember, nil},
		{"admin cannot grant owner", admin, member, domain.RoleOwner, domain.ErrUnauthorized},
		{"admin cannot demote owner", admin, owner, domain.RoleMember, domain.ErrUnauthorized},
		{"member cannot manage", member, stranger, domain.RoleMember, domain.ErrUnauthorized},
		{"stranger cannot manage", stranger, member, domain.RoleAdmin, domain.ErrUnauthorized},
		{"unknown role", owner, member, domain.Role("guide"), domain.ErrValidation},
		{"missing user", owner, uuid.Nil, domain.RoleMember, domain.ErrValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gate := tripGate()
			svc := service.NewMembershipService(storedRoles(gate.roles), gate, nil)

			_, err := svc.Upsert(context.Background(), tt.caller, domain.TripMembership{TripID: tripID, UserID: tt.target, Role: tt.role})

			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Empty(t, gate.invalidated)
		})
	}
}

func TestMembershipService_Remove(t *testing.T) {
	gate := tripGate()
	svc := service.NewMembershipService(storedRoles(gate.roles), gate, nil)
	ctx := context.Background()

	require.NoError(t, svc.Remove(ctx, member, tripID, member), "members may leave")
	assert.ErrorIs(t, svc.Remove(ctx, member, tripID, admin), domain.ErrUnauthorized)
	assert.ErrorIs(t, svc.Remove(ctx, admin, tripID, owner), domain.ErrUnauthorized)
	require.NoError(t, svc.Remove(ctx, owner, tripID, admin))

	assert.Equal(t, []uuid.UUID{member, admin}, gate.invalidated)
}

func TestMembershipService_List(t *testing.T) {
	repo := &mockMembershipRepo{
		listByTrip: func(context.Context, uuid.UUID) ([]domain.TripMembership, error) { return nil, nil },
	}
	svc := service.NewMembershipService(repo, tripGate(), nil)

	got, err := svc.List(context.Background(), member, tripID)
	require.NoError(t, err)
	assert.NotNil(t, got)

	_, err = svc.List(context.Background(), stranger, tripID)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
}

func TestMembershipService_Role(t *testing.T) {
	svc := service.NewMembershipService(&mockMembershipRepo{}, tripGate(), nil)

	role, err := svc.Role(context.Background(), admin, tripID)
	require.NoError(t, err)
	assert.Equal(t, domain.RoleAdmin, role)

	_, err = svc.Role(context.Background(), stranger, tripID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
