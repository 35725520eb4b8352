// Package domain contains the core data types for the trip itinerary sync
// engine. Apart from google/uuid it has no external dependencies and is
// imported by every other internal package.
package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Trip is the top-level aggregate; itinerary items and memberships belong to a trip.
type Trip struct {
	ID        uuid.UUID
	Name      string
	CreatedAt time.Time
}

// Role is a member's role on a trip. The set of roles is closed: only the
// constants below are valid, and role strings are converted by ParseRole only.
type Role string

const (
	RoleOwner  Role = "owner"
	RoleAdmin  Role = "admin"
	RoleMember Role = "member"
)

// ParseRole converts a stored role string to a Role.
// Returns ErrValidation for anything outside the closed set.
func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RoleOwner, RoleAdmin, RoleMember:
		return Role(s), nil
	default:
		return "", fmt.Errorf("%w: unknown role %q", ErrValidation, s)
	}
}

// CanMutateItinerary reports whether the role may create, update or delete
// itinerary items. Only owners and admins may.
func (r Role) CanMutateItinerary() bool {
	return r == RoleOwner || r == RoleAdmin
}

// TripMembership binds a user to a trip with a role.
type TripMembership struct {
	TripID uuid.UUID
	UserID uuid.UUID
	Role   Role
}

// ValidateTrip enforces the business rules for a trip: the name must be non-empty.
func ValidateTrip(t Trip) error {
	if strings.TrimSpace(t.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrValidation)
	}
	return nil
}
