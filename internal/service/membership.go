package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/pkordes/tripsync/backend/internal/domain"
	"github.com/pkordes/tripsync/backend/internal/repo"
)

// MembershipService manages who may see and edit a trip.
//
// Every change drops the member's cached role so the permission gate reflects
// it on the next check.
type MembershipService struct {
	members repo.MembershipRepo
	gate    Authorizer
	logger  *slog.Logger
}

// NewMembershipService constructs a MembershipService.
func NewMembershipService(members repo.MembershipRepo, gate Authorizer, logger *slog.Logger) *MembershipService {
	if logger == nil {
		logger = slog.Default()
	}
	return &MembershipService{members: members, gate: gate, logger: logger}
}

// Role returns the caller's role on the trip.
// Returns domain.ErrNotFound if the caller is not a member.
func (s *MembershipService) Role(ctx context.Context, userID, tripID uuid.UUID) (domain.Role, error) {
	role, err := s.gate.Role(ctx, userID, tripID)
	if err != nil {
		return "", fmt.Errorf("service.MembershipService.Role: %w", err)
	}
	return role, nil
}

// List returns the trip's members. Any member may list them.
func (s *MembershipService) List(ctx context.Context, userID, tripID uuid.UUID) ([]domain.TripMembership, error) {
	if err := s.gate.AuthorizeRead(ctx, userID, tripID); err != nil {
		return nil, fmt.Errorf("service.MembershipService.List: %w", err)
	}
	members, err := s.members.ListByTrip(ctx, tripID)
	if err != nil {
		return nil, fmt.Errorf("service.MembershipService.List: %w", err)
	}
	if members == nil {
		return []domain.TripMembership{}, nil
	}
	return members, nil
}

// Upsert adds a member or changes a member's role.
//
// Owners and admins may manage members; only an owner may grant or take away
// the owner role.
func (s *MembershipService) Upsert(ctx context.Context, callerID uuid.UUID, m domain.TripMembership) (domain.TripMembership, error) {
	if _, err := domain.ParseRole(string(m.Role)); err != nil {
		return domain.TripMembership{}, err
	}
	if m.UserID == uuid.Nil {
		return domain.TripMembership{}, fmt.Errorf("%w: user_id is required", domain.ErrValidation)
	}

	callerRole, err := s.manager(ctx, callerID, m.TripID)
	if err != nil {
		return domain.TripMembership{}, fmt.Errorf("service.MembershipService.Upsert: %w", err)
	}
	if callerRole != domain.RoleOwner {
		if m.Role == domain.RoleOwner {
			return domain.TripMembership{}, fmt.Errorf("service.MembershipService.Upsert: only an owner may grant owner: %w", domain.ErrUnauthorized)
		}
		if err := s.notOwner(ctx, m.UserID, m.TripID); err != nil {
			return domain.TripMembership{}, fmt.Errorf("service.MembershipService.Upsert: %w", err)
		}
	}

	result, err := s.members.Upsert(ctx, m)
	if err != nil {
		return domain.TripMembership{}, fmt.Errorf("service.MembershipService.Upsert: %w", err)
	}
	s.invalidate(ctx, m.UserID, m.TripID)
	return result, nil
}

// Remove takes a member off the trip. Members may remove themselves.
func (s *MembershipService) Remove(ctx context.Context, callerID, tripID, userID uuid.UUID) error {
	if callerID != userID {
		callerRole, err := s.manager(ctx, callerID, tripID)
		if err != nil {
			return fmt.Errorf("service.MembershipService.Remove: %w", err)
		}
		if callerRole != domain.RoleOwner {
			if err := s.notOwner(ctx, userID, tripID); err != nil {
				return fmt.Errorf("service.MembershipService.Remove: %w", err)
			}
		}
	}

	if err := s.members.Delete(ctx, tripID, userID); err != nil {
		return fmt.Errorf("service.MembershipService.Remove: %w", err)
	}
	s.invalidate(ctx, userID, tripID)
	return nil
}

// manager returns the caller's role if it may manage members.
func (s *MembershipService) manager(ctx context.Context, callerID, tripID uuid.UUID) (domain.Role, error) {
	role, err := s.gate.Role(ctx, callerID, tripID)
	if errors.Is(err, domain.ErrNotFound) {
		return "", fmt.Errorf("user %s on trip %s: %w", callerID, tripID, domain.ErrUnauthorized)
	}
	if err != nil {
		return "", err
	}
	if !role.CanMutateItinerary() {
		return "", fmt.Errorf("role %s cannot manage members: %w", role, domain.ErrUnauthorized)
	}
	return role, nil
}

// notOwner fails if userID currently owns the trip.
func (s *MembershipService) notOwner(ctx context.Context, userID, tripID uuid.UUID) error {
	current, err := s.members.RoleOf(ctx, userID, tripID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if current == domain.RoleOwner {
		return fmt.Errorf("only an owner may change an owner: %w", domain.ErrUnauthorized)
	}
	return nil
}

func (s *MembershipService) invalidate(ctx context.Context, userID, tripID uuid.UUID) {
	if err := s.gate.Invalidate(ctx, userID, tripID); err != nil {
		s.logger.WarnContext(ctx, "role cache invalidate failed", "trip_id", tripID, "user_id", userID, "error", err)
	}
}
