package wire

import (
	"time"

	"github.com/google/uuid"

	"github.com/pkordes/tripsync/backend/internal/domain"
)

// Trip is the JSON representation of domain.Trip.
type Trip struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// TripFromDomain converts a domain trip to its wire form.
func TripFromDomain(t domain.Trip) Trip {
	return Trip{ID: t.ID, Name: t.Name, CreatedAt: t.CreatedAt}
}

// CreateTripRequest is the body of POST /trips.
type CreateTripRequest struct {
	Name string `json:"name"`
}

// Member is the JSON representation of domain.TripMembership.
type Member struct {
	TripID uuid.UUID   `json:"trip_id"`
	UserID uuid.UUID   `json:"user_id"`
	Role   domain.Role `json:"role"`
}

// MemberFromDomain converts a membership to its wire form.
func MemberFromDomain(m domain.TripMembership) Member {
	return Member{TripID: m.TripID, UserID: m.UserID, Role: m.Role}
}

// PutMemberRequest is the body of PUT /trips/{tripId}/members/{userId}.
type PutMemberRequest struct {
	Role domain.Role `json:"role"`
}

// MemberListResponse wraps the members of a trip.
type MemberListResponse struct {
	Data []Member `json:"data"`
}
