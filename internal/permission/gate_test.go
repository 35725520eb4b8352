package permission_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pkordes/tripsync/backend/internal/domain"
	"github.com/pkordes/tripsync/backend/internal/permission"
)

// ---- mock role source ------------------------------------------------------

// mockRoleSource is a hand-written test double for permission.RoleSource.
type mockRoleSource struct {
	roleOf func(ctx context.Context, userID, tripID uuid.UUID) (domain.Role, error)
	calls  int
}

func (m *mockRoleSource) RoleOf(ctx context.Context, userID, tripID uuid.UUID) (domain.Role, error) {
	m.calls++
	return m.roleOf(ctx, userID, tripID)
}

var _ permission.RoleSource = (*mockRoleSource)(nil)

func fixedRole(role domain.Role) *mockRoleSource {
	return &mockRoleSource{roleOf: func(context.Context, uuid.UUID, uuid.UUID) (domain.Role, error) {
		if role == "" {
			return "", domain.ErrNotFound
		}
		return role, nil
	}}
}

// ---- CanMutate -------------------------------------------------------------

func TestGate_CanMutate_ByRole(t *testing.T) {
	tests := []struct {
		role domain.Role
		want bool
	}{
		{domain.RoleOwner, true},
		{domain.RoleAdmin, true},
		{domain.RoleMember, false},
		{"", false},
	}
	for _, tt := range tests {
		t.Run(string(tt.role), func(t *testing.T) {
			gate := permission.NewGate(fixedRole(tt.role), nil, 0)

			got, err := gate.CanMutate(context.Background(), uuid.New(), uuid.New())

			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestGate_CanMutate_NoUser(t *testing.T) {
	src := fixedRole(domain.RoleOwner)
	gate := permission.NewGate(src, nil, 0)

	got, err := gate.CanMutate(context.Background(), uuid.Nil, uuid.New())

	require.NoError(t, err)
	assert.False(t, got)
	assert.Zero(t, src.calls, "no lookup without a user")
}

func TestGate_CanMutate_SourceError(t *testing.T) {
	src := &mockRoleSource{roleOf: func(context.Context, uuid.UUID, uuid.UUID) (domain.Role, error) {
		return "", errors.New("db down")
	}}
	gate := permission.NewGate(src, permission.NewMemoryCache(), 0)

	_, err := gate.CanMutate(context.Background(), uuid.New(), uuid.New())

	assert.ErrorContains(t, err, "db down")
}

// ---- Authorize -------------------------------------------------------------

func TestGate_Authorize_MemberIsRejected(t *testing.T) {
	gate := permission.NewGate(fixedRole(domain.RoleMember), nil, 0)

	err := gate.Authorize(context.Background(), uuid.New(), uuid.New())

	assert.ErrorIs(t, err, domain.ErrUnauthorized)
}

func TestGate_AuthorizeRead(t *testing.T) {
	ctx := context.Background()

	assert.NoError(t, permission.NewGate(fixedRole(domain.RoleMember), nil, 0).AuthorizeRead(ctx, uuid.New(), uuid.New()))

	err := permission.NewGate(fixedRole(""), nil, 0).AuthorizeRead(ctx, uuid.New(), uuid.New())
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
}

// ---- caching ---------------------------------------------------------------

func TestGate_CachesRoleAndNonMembership(t *testing.T) {
	ctx := context.Background()
	userID, tripID := uuid.New(), uuid.New()

	for _, role := range []domain.Role{domain.RoleAdmin, ""} {
		src := fixedRole(role)
		gate := permission.NewGate(src, permission.NewMemoryCache(), time.Minute)

		for range 3 {
			_, err := gate.CanMutate(ctx, userID, tripID)
			require.NoError(t, err)
		}
		assert.Equal(t, 1, src.calls, "role %q resolved once", role)
	}
}

func TestGate_Invalidate_RechecksRole(t *testing.T) {
	ctx := context.Background()
	userID, tripID := uuid.New(), uuid.New()

	role := domain.RoleAdmin
	src := &mockRoleSource{roleOf: func(context.Context, uuid.UUID, uuid.UUID) (domain.Role, error) {
		return role, nil
	}}
	gate := permission.NewGate(src, permission.NewMemoryCache(), time.Hour)

	ok, err := gate.CanMutate(ctx, userID, tripID)
	require.NoError(t, err)
	require.True(t, ok)

	// Demoted: the cached role is still trusted until invalidated.
	role = domain.RoleMember
	ok, _ = gate.CanMutate(ctx, userID, tripID)
	assert.True(t, ok)

	require.NoError(t, gate.Invalidate(ctx, userID, tripID))
	ok, err = gate.CanMutate(ctx, userID, tripID)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestGate_InvalidateTrip(t *testing.T) {
	ctx := context.Background()
	tripID := uuid.New()
	src := fixedRole(domain.RoleOwner)
	gate := permission.NewGate(src, permission.NewMemoryCache(), time.Hour)

	users := []uuid.UUID{uuid.New(), uuid.New()}
	for _, u := range users {
		_, err := gate.Role(ctx, u, tripID)
		require.NoError(t, err)
	}
	require.NoError(t, gate.InvalidateTrip(ctx, tripID))
	for _, u := range users {
		_, err := gate.Role(ctx, u, tripID)
		require.NoError(t, err)
	}

	assert.Equal(t, 4, src.calls)
}
