// Package permission decides whether a user may edit a trip's itinerary.
//
// Roles are resolved through a RoleSource (the trip_members table on the
// server, the role endpoint on a device) and cached for a bounded TTL so that
// membership changes are picked up without a restart.
package permission

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/pkordes/tripsync/backend/internal/domain"
)

// RoleSource looks up a user's role on a trip.
// It returns domain.ErrNotFound when the user is not a member.
type RoleSource interface {
	RoleOf(ctx context.Context, userID, tripID uuid.UUID) (domain.Role, error)
}

// Cache stores resolved roles. A cached empty Role records a confirmed
// non-member, so repeated checks by outsiders do not reach the source.
type Cache interface {
	// Get returns the cached role and true, or false on a miss.
	Get(ctx context.Context, userID, tripID uuid.UUID) (domain.Role, bool, error)
	Set(ctx context.Context, userID, tripID uuid.UUID, role domain.Role, ttl time.Duration) error
	Delete(ctx context.Context, userID, tripID uuid.UUID) error
	// DeleteTrip drops every cached role for the trip.
	DeleteTrip(ctx context.Context, tripID uuid.UUID) error
}

// DefaultTTL bounds how long a resolved role is trusted.
const DefaultTTL = time.Minute

// Gate authorizes itinerary reads and writes.
type Gate struct {
	roles  RoleSource
	cache  Cache
	ttl    time.Duration
	logger *slog.Logger
}

// GateOption configures a Gate.
type GateOption func(*Gate)

// WithLogger sets the logger used for cache failures.
func WithLogger(l *slog.Logger) GateOption {
	return func(g *Gate) { g.logger = l }
}

// NewGate creates a Gate. A nil cache disables caching; a non-positive ttl
// uses DefaultTTL.
func NewGate(roles RoleSource, cache Cache, ttl time.Duration, opts ...GateOption) *Gate {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	g := &Gate{roles: roles, cache: cache, ttl: ttl, logger: slog.Default()}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Role returns the user's role on the trip, or domain.ErrNotFound if the user
// is not a member.
//
// Cache failures are logged and treated as misses; the source stays
// authoritative.
func (g *Gate) Role(ctx context.Context, userID, tripID uuid.UUID) (domain.Role, error) {
	if userID == uuid.Nil {
		return "", fmt.Errorf("permission.Gate.Role: no user: %w", domain.ErrUnauthorized)
	}

	if g.cache != nil {
		role, ok, err := g.cache.Get(ctx, userID, tripID)
		switch {
		case err != nil:
			g.logger.WarnContext(ctx, "role cache get failed", "trip_id", tripID, "user_id", userID, "error", err)
		case ok && role == "":
			return "", fmt.Errorf("permission.Gate.Role: %w", domain.ErrNotFound)
		case ok:
			return role, nil
		}
	}

	role, err := g.roles.RoleOf(ctx, userID, tripID)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return "", fmt.Errorf("permission.Gate.Role: %w", err)
	}

	if g.cache != nil {
		if cerr := g.cache.Set(ctx, userID, tripID, role, g.ttl); cerr != nil {
			g.logger.WarnContext(ctx, "role cache set failed", "trip_id", tripID, "user_id", userID, "error", cerr)
		}
	}
	if err != nil {
		return "", fmt.Errorf("permission.Gate.Role: %w", err)
	}
	return role, nil
}

// CanMutate reports whether the user may create, update, or delete items on
// the trip. Non-members get false with no error.
func (g *Gate) CanMutate(ctx context.Context, userID, tripID uuid.UUID) (bool, error) {
	role, err := g.Role(ctx, userID, tripID)
	if errors.Is(err, domain.ErrNotFound) || errors.Is(err, domain.ErrUnauthorized) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return role.CanMutateItinerary(), nil
}

// Authorize returns domain.ErrUnauthorized unless the user may mutate the
// trip's itinerary.
func (g *Gate) Authorize(ctx context.Context, userID, tripID uuid.UUID) error {
	ok, err := g.CanMutate(ctx, userID, tripID)
	if err != nil {
		return fmt.Errorf("permission.Gate.Authorize: %w", err)
	}
	if !ok {
		return fmt.Errorf("permission.Gate.Authorize: user %s on trip %s: %w", userID, tripID, domain.ErrUnauthorized)
	}
	return nil
}

// AuthorizeRead returns domain.ErrUnauthorized unless the user is a member of
// the trip in any role.
func (g *Gate) AuthorizeRead(ctx context.Context, userID, tripID uuid.UUID) error {
	_, err := g.Role(ctx, userID, tripID)
	if errors.Is(err, domain.ErrNotFound) {
		return fmt.Errorf("permission.Gate.AuthorizeRead: user %s on trip %s: %w", userID, tripID, domain.ErrUnauthorized)
	}
	if err != nil {
		return fmt.Errorf("permission.Gate.AuthorizeRead: %w", err)
	}
	return nil
}

// Invalidate forgets the cached role of one user on one trip.
func (g *Gate) Invalidate(ctx context.Context, userID, tripID uuid.UUID) error {
	if g.cache == nil {
		return nil
	}
	if err := g.cache.Delete(ctx, userID, tripID); err != nil {
		return fmt.Errorf("permission.Gate.Invalidate: %w", err)
	}
	return nil
}

// InvalidateTrip forgets every cached role on the trip.
func (g *Gate) InvalidateTrip(ctx context.Context, tripID uuid.UUID) error {
	if g.cache == nil {
		return nil
	}
	if err := g.cache.DeleteTrip(ctx, tripID); err != nil {
		return fmt.Errorf("permission.Gate.InvalidateTrip: %w", err)
	}
	return nil
}
