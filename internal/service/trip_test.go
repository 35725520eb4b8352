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

func TestTripService_Create_Valid(t *testing.T) {
	var gotOwner uuid.UUID
	repo := &mockTripRepo{
		create: func(_ context.Context, trip domain.Trip, ownerID uuid.UUID) (domain.Trip, error) {
			gotOwner = ownerID
			trip.ID = tripID
			return trip, nil
		},
	}
	svc := service.NewTripService(repo, tripGate())

	got, err := svc.Create(context.Background(), owner, domain.Trip{Name: "  Umrah 2025 "})

	require.NoError(t, err)
	assert.Equal(t, "Umrah 2025", got.Name)
	assert.Equal(t, owner, gotOwner)
}

func TestTripService_Create_BlankName(t *testing.T) {
	svc := service.NewTripService(&mockTripRepo{}, tripGate())

	_, err := svc.Create(context.Background(), owner, domain.Trip{Name: "   "})

	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestTripService_Create_NoUser(t *testing.T) {
	svc := service.NewTripService(&mockTripRepo{}, tripGate())

	_, err := svc.Create(context.Background(), uuid.Nil, domain.Trip{Name: "Umrah"})

	assert.ErrorIs(t, err, domain.ErrUnauthorized)
}

func TestTripService_GetByID(t *testing.T) {
	repo := &mockTripRepo{
		getByID: func(_ context.Context, id uuid.UUID) (domain.Trip, error) {
			return domain.Trip{ID: id, Name: "Umrah"}, nil
		},
	}
	svc := service.NewTripService(repo, tripGate())

	got, err := svc.GetByID(context.Background(), member, tripID)
	require.NoError(t, err)
	assert.Equal(t, "Umrah", got.Name)

	_, err = svc.GetByID(context.Background(), stranger, tripID)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
}
