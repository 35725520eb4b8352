// Package service contains the server-side business logic of the itinerary
// API. Services validate inputs, enforce trip roles through the permission
// gate, and orchestrate repo calls. No SQL lives here: services depend on repo
// interfaces, not implementations.
package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/pkordes/tripsync/backend/internal/domain"
	"github.com/pkordes/tripsync/backend/internal/repo"
)

// Authorizer is the subset of *permission.Gate the services need.
type Authorizer interface {
	Role(ctx context.Context, userID, tripID uuid.UUID) (domain.Role, error)
	Authorize(ctx context.Context, userID, tripID uuid.UUID) error
	AuthorizeRead(ctx context.Context, userID, tripID uuid.UUID) error
	Invalidate(ctx context.Context, userID, tripID uuid.UUID) error
}

// TripService implements business logic for Trip operations.
type TripService struct {
	repo repo.TripRepo
	gate Authorizer
}

// NewTripService constructs a TripService backed by the provided TripRepo.
func NewTripService(r repo.TripRepo, gate Authorizer) *TripService {
	return &TripService{repo: r, gate: gate}
}

// Create validates and persists a new trip owned by ownerID.
func (s *TripService) Create(ctx context.Context, ownerID uuid.UUID, trip domain.Trip) (domain.Trip, error) {
	if ownerID == uuid.Nil {
		return domain.Trip{}, fmt.Errorf("service.TripService.Create: no user: %w", domain.ErrUnauthorized)
	}
	trip.Name = strings.TrimSpace(trip.Name)
	if err := domain.ValidateTrip(trip); err != nil {
		return domain.Trip{}, err
	}
	result, err := s.repo.Create(ctx, trip, ownerID)
	if err != nil {
		return domain.Trip{}, fmt.Errorf("service.TripService.Create: %w", err)
	}
	return result, nil
}

// GetByID returns a single trip. Only members may read it.
func (s *TripService) GetByID(ctx context.Context, userID, id uuid.UUID) (domain.Trip, error) {
	if err := s.gate.AuthorizeRead(ctx, userID, id); err != nil {
		return domain.Trip{}, fmt.Errorf("service.TripService.GetByID: %w", err)
	}
	result, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return domain.Trip{}, fmt.Errorf("service.TripService.GetByID: %w", err)
	}
	return result, nil
}
