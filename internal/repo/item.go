package repo

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/pkordes/tripsync/backend/internal/domain"
)

// ItemRepo defines the persistence operations for itinerary items.
// All operations are scoped by tripID. Writes use the item's revision as a
// compare-and-set token; every successful write increments it.
type ItemRepo interface {
	// Create inserts a new item. Creates are idempotent on item.ClientRef:
	// repeating a create returns the row produced by the first attempt.
	Create(ctx context.Context, item domain.ItineraryItem) (domain.ItineraryItem, error)

	// GetByID retrieves a single item, scoped to the given tripID.
	// Returns domain.ErrNotFound if no item with that ID exists under that trip.
	GetByID(ctx context.Context, tripID, id uuid.UUID) (domain.ItineraryItem, error)

	// ListByTrip returns all items of a trip in display order.
	ListByTrip(ctx context.Context, tripID uuid.UUID) ([]domain.ItineraryItem, error)

	// Update applies patch if the stored revision equals w.ExpectedRevision.
	// Returns domain.ErrConflict on a revision mismatch and domain.ErrNotFound
	// if the item does not exist.
	Update(ctx context.Context, tripID, id uuid.UUID, patch domain.ItemPatch, w domain.WriteMeta) (domain.ItineraryItem, error)

	// Delete removes the item if the stored revision equals expectedRevision.
	// Deleting an item that does not exist succeeds. Returns
	// domain.ErrConflict on a revision mismatch.
	Delete(ctx context.Context, tripID, id uuid.UUID, expectedRevision int64) error
}

// pgItemRepo is the Postgres implementation of ItemRepo.
type pgItemRepo struct {
	db db
}

// NewItemRepo constructs an ItemRepo backed by the provided db connection.
// In production pass *pgxpool.Pool; in tests pass a pgx.Tx for rollback isolation.
func NewItemRepo(db db) ItemRepo {
	return &pgItemRepo{db: db}
}

const itemColumns = `id, trip_id, title, description, location, day_date, starts_at, ends_at,
	sort_order, revision, client_ref, write_ref, updated_by, created_at, updated_at`

// Create inserts an item, or returns the existing row when client_ref was
// already used on the same trip. The DO UPDATE SET trick makes RETURNING fire
// on conflict; the WHERE keeps a client_ref from another trip from matching.
func (r *pgItemRepo) Create(ctx context.Context, item domain.ItineraryItem) (domain.ItineraryItem, error) {
	const q = `
		INSERT INTO itinerary_items (trip_id, title, description, location, day_date, starts_at, ends_at,
			sort_order, client_ref, write_ref, updated_by)
		VALUES (@trip_id, @title, @description, @location, @day_date, @starts_at, @ends_at,
			@sort_order, @client_ref, @write_ref, @updated_by)
		ON CONFLICT (client_ref) DO UPDATE SET client_ref = EXCLUDED.client_ref
		WHERE itinerary_items.trip_id = EXCLUDED.trip_id
		RETURNING ` + itemColumns

	args := pgx.NamedArgs{
		"trip_id":     item.TripID,
		"title":       item.Title,
		"description": item.Description,
		"location":    item.Location,
		"day_date":    dateArg(item.DayDate),
		"starts_at":   item.StartsAt, // nil becomes NULL
		"ends_at":     item.EndsAt,
		"sort_order":  item.SortOrder,
		"client_ref":  item.ClientRef,
		"write_ref":   item.WriteRef,
		"updated_by":  item.UpdatedBy,
	}

	result, err := scanItem(r.db.QueryRow(ctx, q, args))
	if errors.Is(err, domain.ErrNotFound) {
		return domain.ItineraryItem{}, fmt.Errorf("repo.ItemRepo.Create: client_ref used on another trip: %w", domain.ErrConflict)
	}
	if err != nil {
		return domain.ItineraryItem{}, fmt.Errorf("repo.ItemRepo.Create: %w", mapPgError(err))
	}
	return result, nil
}

// GetByID retrieves an item by primary key, scoped to the trip.
func (r *pgItemRepo) GetByID(ctx context.Context, tripID, id uuid.UUID) (domain.ItineraryItem, error) {
	const q = `
		SELECT ` + itemColumns + `
		FROM itinerary_items
		WHERE id = @id AND trip_id = @trip_id`

	result, err := scanItem(r.db.QueryRow(ctx, q, pgx.NamedArgs{"id": id, "trip_id": tripID}))
	if err != nil {
		return domain.ItineraryItem{}, fmt.Errorf("repo.ItemRepo.GetByID: %w", err)
	}
	return result, nil
}

// ListByTrip returns the trip's items ordered the same way domain.SortItems
// orders them: day (unscheduled last), sort order, start time, id.
func (r *pgItemRepo) ListByTrip(ctx context.Context, tripID uuid.UUID) ([]domain.ItineraryItem, error) {
	const q = `
		SELECT ` + itemColumns + `
		FROM itinerary_items
		WHERE trip_id = @trip_id
		ORDER BY day_date NULLS LAST, sort_order, starts_at NULLS LAST, id`

	rows, err := r.db.Query(ctx, q, pgx.NamedArgs{"trip_id": tripID})
	if err != nil {
		return nil, fmt.Errorf("repo.ItemRepo.ListByTrip: %w", err)
	}
	defer rows.Close()

	items := []domain.ItineraryItem{}
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("repo.ItemRepo.ListByTrip: scan: %w", err)
		}
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("repo.ItemRepo.ListByTrip: rows: %w", err)
	}
	return items, nil
}

// Update is a single compare-and-set statement. Only the columns present in
// the patch are written.
func (r *pgItemRepo) Update(ctx context.Context, tripID, id uuid.UUID, patch domain.ItemPatch, w domain.WriteMeta) (domain.ItineraryItem, error) {
	if !patch.HasChanges() {
		return domain.ItineraryItem{}, fmt.Errorf("repo.ItemRepo.Update: empty patch: %w", domain.ErrValidation)
	}

	sets := []string{
		"revision = revision + 1",
		"write_ref = @write_ref",
		"updated_by = @updated_by",
		"updated_at = now()",
	}
	args := pgx.NamedArgs{
		"id":         id,
		"trip_id":    tripID,
		"expected":   w.ExpectedRevision,
		"write_ref":  w.WriteRef,
		"updated_by": w.UserID,
	}
	set := func(col string, v any) {
		sets = append(sets, col+" = @"+col)
		args[col] = v
	}

	if patch.Title.IsSet() {
		set("title", stringArg(patch.Title))
	}
	if patch.Description.IsSet() {
		set("description", stringArg(patch.Description))
	}
	if patch.Location.IsSet() {
		set("location", stringArg(patch.Location))
	}
	if patch.DayDate.IsSet() {
		set("day_date", dateArg(patch.DayDate.Value()))
	}
	if patch.StartsAt.IsSet() {
		set("starts_at", patch.StartsAt.Value())
	}
	if patch.EndsAt.IsSet() {
		set("ends_at", patch.EndsAt.Value())
	}
	if patch.SortOrder.IsSet() {
		v := 0
		if p := patch.SortOrder.Value(); p != nil {
			v = *p
		}
		set("sort_order", v)
	}

	q := `
		UPDATE itinerary_items
		SET ` + strings.Join(sets, ",\n\t\t    ") + `
		WHERE id = @id AND trip_id = @trip_id AND revision = @expected
		RETURNING ` + itemColumns

	result, err := scanItem(r.db.QueryRow(ctx, q, args))
	if errors.Is(err, domain.ErrNotFound) {
		return domain.ItineraryItem{}, fmt.Errorf("repo.ItemRepo.Update: %w", r.casFailure(ctx, tripID, id))
	}
	if err != nil {
		return domain.ItineraryItem{}, fmt.Errorf("repo.ItemRepo.Update: %w", mapPgError(err))
	}
	return result, nil
}

// Delete is a compare-and-set delete. A missing row counts as success.
func (r *pgItemRepo) Delete(ctx context.Context, tripID, id uuid.UUID, expectedRevision int64) error {
	const q = `
		DELETE FROM itinerary_items
		WHERE id = @id AND trip_id = @trip_id AND revision = @expected`

	tag, err := r.db.Exec(ctx, q, pgx.NamedArgs{"id": id, "trip_id": tripID, "expected": expectedRevision})
	if err != nil {
		return fmt.Errorf("repo.ItemRepo.Delete: %w", err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	err = r.casFailure(ctx, tripID, id)
	if errors.Is(err, domain.ErrNotFound) {
		return nil
	}
	return fmt.Errorf("repo.ItemRepo.Delete: %w", err)
}

// casFailure explains why a compare-and-set matched no row: the item is gone
// (ErrNotFound) or its revision moved on (ErrConflict).
func (r *pgItemRepo) casFailure(ctx context.Context, tripID, id uuid.UUID) error {
	const q = `SELECT revision FROM itinerary_items WHERE id = @id AND trip_id = @trip_id`

	var rev int64
	err := r.db.QueryRow(ctx, q, pgx.NamedArgs{"id": id, "trip_id": tripID}).Scan(&rev)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ErrNotFound
	}
	if err != nil {
		return err
	}
	return fmt.Errorf("current revision is %d: %w", rev, domain.ErrConflict)
}

// stringArg maps a cleared string field to the empty string; the text columns
// are NOT NULL.
func stringArg(o domain.Optional[string]) string {
	if v := o.Value(); v != nil {
		return *v
	}
	return ""
}

// dateArg encodes a calendar date, dropping any time component.
func dateArg(t *time.Time) pgtype.Date {
	if t == nil {
		return pgtype.Date{}
	}
	y, m, d := t.Date()
	return pgtype.Date{Time: time.Date(y, m, d, 0, 0, 0, 0, time.UTC), Valid: true}
}

// scanItem maps a single database row into a domain.ItineraryItem.
func scanItem(s scanner) (domain.ItineraryItem, error) {
	var (
		it                                    domain.ItineraryItem
		id, tripID, clientRef, writeRef, upBy pgtype.UUID
		dayDate                               pgtype.Date
		startsAt, endsAt                      pgtype.Timestamptz
		sortOrder                             int32
	)

	err := s.Scan(&id, &tripID, &it.Title, &it.Description, &it.Location, &dayDate, &startsAt, &endsAt,
		&sortOrder, &it.Revision, &clientRef, &writeRef, &upBy, &it.CreatedAt, &it.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ItineraryItem{}, domain.ErrNotFound
		}
		return domain.ItineraryItem{}, err
	}

	it.ID = uuid.UUID(id.Bytes)
	it.TripID = uuid.UUID(tripID.Bytes)
	it.ClientRef = uuid.UUID(clientRef.Bytes)
	it.WriteRef = uuid.UUID(writeRef.Bytes)
	it.UpdatedBy = uuid.UUID(upBy.Bytes)
	it.SortOrder = int(sortOrder)
	it.CreatedAt = it.CreatedAt.UTC()
	it.UpdatedAt = it.UpdatedAt.UTC()
	if dayDate.Valid {
		d := dayDate.Time
		it.DayDate = &d
	}
	if startsAt.Valid {
		t := startsAt.Time.UTC()
		it.StartsAt = &t
	}
	if endsAt.Valid {
		t := endsAt.Time.UTC()
		it.EndsAt = &t
	}
	return it, nil
}
