package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ItineraryItem is one scheduled trip activity.
//
// DayDate is a calendar date stored as midnight UTC; nil means "unscheduled".
// Revision is assigned by the backend and increases on every write; it is the
// optimistic-concurrency token every update and delete must present.
//
// ClientRef is the idempotency key of the create that produced the item. An
// item created locally and not yet confirmed uses ClientRef as its temporary
// ID. WriteRef identifies the last write, so a device can recognise the
// change-feed echo of its own write.
type ItineraryItem struct {
	ID          uuid.UUID
	TripID      uuid.UUID
	Title       string
	Description string
	Location    string
	DayDate     *time.Time
	StartsAt    *time.Time
	EndsAt      *time.Time
	SortOrder   int
	Revision    int64
	ClientRef   uuid.UUID
	WriteRef    uuid.UUID
	UpdatedBy   uuid.UUID
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// ItemDraft holds the user-editable fields of a new item.
type ItemDraft struct {
	Title       string
	Description string
	Location    string
	DayDate     *time.Time
	StartsAt    *time.Time
	EndsAt      *time.Time
	SortOrder   int
}

// Item builds an unsaved ItineraryItem for tripID from the draft.
func (d ItemDraft) Item(tripID uuid.UUID) ItineraryItem {
	return ItineraryItem{
		TripID:      tripID,
		Title:       d.Title,
		Description: d.Description,
		Location:    d.Location,
		DayDate:     truncateDay(d.DayDate),
		StartsAt:    d.StartsAt,
		EndsAt:      d.EndsAt,
		SortOrder:   d.SortOrder,
	}
}

// WriteMeta carries the concurrency token and identity of a single write.
type WriteMeta struct {
	// ExpectedRevision is the revision the writer last observed.
	ExpectedRevision int64
	// WriteRef is generated by the writer and stored on the row.
	WriteRef uuid.UUID
	// UserID is the user performing the write.
	UserID uuid.UUID
}

// MutationKind names the three kinds of itinerary writes.
type MutationKind string

const (
	MutationCreate MutationKind = "create"
	MutationUpdate MutationKind = "update"
	MutationDelete MutationKind = "delete"
)

// ValidateItem enforces the business rules shared by client and server:
//   - TripID must be set.
//   - Title must be non-empty (whitespace-only titles are rejected).
//   - EndsAt, if set together with StartsAt, must not be before it.
func ValidateItem(item ItineraryItem) error {
	if item.TripID == uuid.Nil {
		return fmt.Errorf("%w: trip_id is required", ErrValidation)
	}
	if strings.TrimSpace(item.Title) == "" {
		return fmt.Errorf("%w: title is required", ErrValidation)
	}
	if item.StartsAt != nil && item.EndsAt != nil && item.EndsAt.Before(*item.StartsAt) {
		return fmt.Errorf("%w: ends_at must not be before starts_at", ErrValidation)
	}
	return nil
}

// truncateDay normalises a date to midnight UTC, dropping any time component.
func truncateDay(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	y, m, d := t.Date()
	day := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return &day
}
