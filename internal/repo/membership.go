package repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/pkordes/tripsync/backend/internal/domain"
)

// MembershipRepo defines the persistence operations for trip_members.
type MembershipRepo interface {
	// RoleOf returns the user's role on the trip.
	// Returns domain.ErrNotFound if the user is not a member.
	RoleOf(ctx context.Context, userID, tripID uuid.UUID) (domain.Role, error)

	// Upsert adds a member or changes an existing member's role.
	// Returns domain.ErrNotFound if the trip does not exist.
	Upsert(ctx context.Context, m domain.TripMembership) (domain.TripMembership, error)

	// Delete removes a member. Removing a non-member is not an error.
	Delete(ctx context.Context, tripID, userID uuid.UUID) error

	// ListByTrip returns the trip's members ordered by user id.
	ListByTrip(ctx context.Context, tripID uuid.UUID) ([]domain.TripMembership, error)
}

// pgMembershipRepo is the Postgres implementation of MembershipRepo.
type pgMembershipRepo struct {
	db db
}

// NewMembershipRepo constructs a MembershipRepo backed by the provided db connection.
func NewMembershipRepo(db db) MembershipRepo {
	return &pgMembershipRepo{db: db}
}

func (r *pgMembershipRepo) RoleOf(ctx context.Context, userID, tripID uuid.UUID) (domain.Role, error) {
	const q = `
		SELECT role
		FROM trip_members
		WHERE trip_id = @trip_id AND user_id = @user_id`

	var raw string
	err := r.db.QueryRow(ctx, q, pgx.NamedArgs{"trip_id": tripID, "user_id": userID}).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", fmt.Errorf("repo.MembershipRepo.RoleOf: %w", domain.ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("repo.MembershipRepo.RoleOf: %w", err)
	}

	role, err := domain.ParseRole(raw)
	if err != nil {
		return "", fmt.Errorf("repo.MembershipRepo.RoleOf: %w", err)
	}
	return role, nil
}

func (r *pgMembershipRepo) Upsert(ctx context.Context, m domain.TripMembership) (domain.TripMembership, error) {
	const q = `
		INSERT INTO trip_members (trip_id, user_id, role)
		VALUES (@trip_id, @user_id, @role)
		ON CONFLICT (trip_id, user_id) DO UPDATE SET role = EXCLUDED.role
		RETURNING trip_id, user_id, role`

	args := pgx.NamedArgs{"trip_id": m.TripID, "user_id": m.UserID, "role": string(m.Role)}
	result, err := scanMembership(r.db.QueryRow(ctx, q, args))
	if err != nil {
		return domain.TripMembership{}, fmt.Errorf("repo.MembershipRepo.Upsert: %w", mapPgError(err))
	}
	return result, nil
}

func (r *pgMembershipRepo) Delete(ctx context.Context, tripID, userID uuid.UUID) error {
	const q = `DELETE FROM trip_members WHERE trip_id = @trip_id AND user_id = @user_id`

	if _, err := r.db.Exec(ctx, q, pgx.NamedArgs{"trip_id": tripID, "user_id": userID}); err != nil {
		return fmt.Errorf("repo.MembershipRepo.Delete: %w", err)
	}
	return nil
}

func (r *pgMembershipRepo) ListByTrip(ctx context.Context, tripID uuid.UUID) ([]domain.TripMembership, error) {
	const q = `
		SELECT trip_id, user_id, role
		FROM trip_members
		WHERE trip_id = @trip_id
		ORDER BY user_id`

	rows, err := r.db.Query(ctx, q, pgx.NamedArgs{"trip_id": tripID})
	if err != nil {
		return nil, fmt.Errorf("repo.MembershipRepo.ListByTrip: %w", err)
	}
	defer rows.Close()

	members := []domain.TripMembership{}
	for rows.Next() {
		m, err := scanMembership(rows)
		if err != nil {
			return nil, fmt.Errorf("repo.MembershipRepo.ListByTrip: scan: %w", err)
		}
		members = append(members, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("repo.MembershipRepo.ListByTrip: rows: %w", err)
	}
	return members, nil
}

func scanMembership(s scanner) (domain.TripMembership, error) {
	var (
		tripID, userID pgtype.UUID
		raw            string
	)
	if err := s.Scan(&tripID, &userID, &raw); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.TripMembership{}, domain.ErrNotFound
		}
		return domain.TripMembership{}, err
	}
	role, err := domain.ParseRole(raw)
	if err != nil {
		return domain.TripMembership{}, err
	}
	return domain.TripMembership{TripID: uuid.UUID(tripID.Bytes), UserID: uuid.UUID(userID.Bytes), Role: role}, nil
}
