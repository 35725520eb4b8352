package handler

import (
	"errors"
	"net/http"

	"github.com/pkordes/tripsync/backend/internal/domain"
	"github.com/pkordes/tripsync/backend/internal/wire"
)

// CreateTrip handles POST /trips. The caller becomes the owner.
func (s *Server) CreateTrip(w http.ResponseWriter, r *http.Request) {
	var body wire.CreateTripRequest
	if err := decodeJSON(r, &body); err != nil {
		s.writeError(w, r, err, nil)
		return
	}

	trip, err := s.trips.Create(r.Context(), caller(r), domain.Trip{Name: body.Name})
	if err != nil {
		s.writeError(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusCreated, wire.TripFromDomain(trip))
}

// GetTrip handles GET /trips/{tripId}.
func (s *Server) GetTrip(w http.ResponseWriter, r *http.Request) {
	tripID, err := pathUUID(r, "tripId")
	if err != nil {
		s.writeError(w, r, err, nil)
		return
	}

	trip, err := s.trips.GetByID(r.Context(), caller(r), tripID)
	if err != nil {
		s.writeError(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, wire.TripFromDomain(trip))
}

// GetRole handles GET /trips/{tripId}/role.
// Non-members get 403 so devices treat them as read-nothing.
func (s *Server) GetRole(w http.ResponseWriter, r *http.Request) {
	tripID, err := pathUUID(r, "tripId")
	if err != nil {
		s.writeError(w, r, err, nil)
		return
	}
	userID := caller(r)

	role, err := s.members.Role(r.Context(), userID, tripID)
	if errors.Is(err, domain.ErrNotFound) {
		err = domain.ErrUnauthorized
	}
	if err != nil {
		s.writeError(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, wire.RoleResponse{
		TripID:    tripID,
		UserID:    userID,
		Role:      role,
		CanMutate: role.CanMutateItinerary(),
	})
}
