// Package wire defines the JSON shapes exchanged between the API, its
// change feed, and devices. Field names match the itinerary_items columns so
// that row_to_json payloads from the database decode into Item unchanged.
package wire

import (
	"time"

	"github.com/google/uuid"
	openapi_types "github.com/oapi-codegen/runtime/types"

	"github.com/pkordes/tripsync/backend/internal/domain"
)

// Item is the JSON representation of domain.ItineraryItem.
type Item struct {
	ID          uuid.UUID           `json:"id"`
	TripID      uuid.UUID           `json:"trip_id"`
	Title       string              `json:"title"`
	Description string              `json:"description"`
	Location    string              `json:"location"`
	DayDate     *openapi_types.Date `json:"day_date"`
	StartsAt    *time.Time          `json:"starts_at"`
	EndsAt      *time.Time          `json:"ends_at"`
	SortOrder   int                 `json:"sort_order"`
	Revision    int64               `json:"revision"`
	ClientRef   uuid.UUID           `json:"client_ref"`
	WriteRef    uuid.UUID           `json:"write_ref"`
	UpdatedBy   uuid.UUID           `json:"updated_by"`
	CreatedAt   time.Time           `json:"created_at"`
	UpdatedAt   time.Time           `json:"updated_at"`
}

// ItemFromDomain converts a domain item to its wire form.
func ItemFromDomain(it domain.ItineraryItem) Item {
	return Item{
		ID:          it.ID,
		TripID:      it.TripID,
		Title:       it.Title,
		Description: it.Description,
		Location:    it.Location,
		DayDate:     dateFromTime(it.DayDate),
		StartsAt:    it.StartsAt,
		EndsAt:      it.EndsAt,
		SortOrder:   it.SortOrder,
		Revision:    it.Revision,
		ClientRef:   it.ClientRef,
		WriteRef:    it.WriteRef,
		UpdatedBy:   it.UpdatedBy,
		CreatedAt:   it.CreatedAt,
		UpdatedAt:   it.UpdatedAt,
	}
}

// ItemsFromDomain converts a slice, never returning nil.
func ItemsFromDomain(items []domain.ItineraryItem) []Item {
	out := make([]Item, len(items))
	for i, it := range items {
		out[i] = ItemFromDomain(it)
	}
	return out
}

// Domain converts the wire item back to the domain type.
func (i Item) Domain() domain.ItineraryItem {
	return domain.ItineraryItem{
		ID:          i.ID,
		TripID:      i.TripID,
		Title:       i.Title,
		Description: i.Description,
		Location:    i.Location,
		DayDate:     timeFromDate(i.DayDate),
		StartsAt:    utc(i.StartsAt),
		EndsAt:      utc(i.EndsAt),
		SortOrder:   i.SortOrder,
		Revision:    i.Revision,
		ClientRef:   i.ClientRef,
		WriteRef:    i.WriteRef,
		UpdatedBy:   i.UpdatedBy,
		CreatedAt:   i.CreatedAt.UTC(),
		UpdatedAt:   i.UpdatedAt.UTC(),
	}
}

// CreateItemRequest is the body of POST /trips/{tripId}/items.
// ClientRef makes the create idempotent: retrying with the same ref returns
// the item created by the first attempt.
type CreateItemRequest struct {
	ClientRef   uuid.UUID           `json:"client_ref"`
	Title       string              `json:"title"`
	Description string              `json:"description,omitempty"`
	Location    string              `json:"location,omitempty"`
	DayDate     *openapi_types.Date `json:"day_date,omitempty"`
	StartsAt    *time.Time          `json:"starts_at,omitempty"`
	EndsAt      *time.Time          `json:"ends_at,omitempty"`
	SortOrder   int                 `json:"sort_order"`
}

// CreateRequestFromDomain builds the create body for an unsaved item.
func CreateRequestFromDomain(it domain.ItineraryItem) CreateItemRequest {
	return CreateItemRequest{
		ClientRef:   it.ClientRef,
		Title:       it.Title,
		Description: it.Description,
		Location:    it.Location,
		DayDate:     dateFromTime(it.DayDate),
		StartsAt:    it.StartsAt,
		EndsAt:      it.EndsAt,
		SortOrder:   it.SortOrder,
	}
}

// Draft returns the user-editable part of the request.
func (r CreateItemRequest) Draft() domain.ItemDraft {
	return domain.ItemDraft{
		Title:       r.Title,
		Description: r.Description,
		Location:    r.Location,
		DayDate:     timeFromDate(r.DayDate),
		StartsAt:    utc(r.StartsAt),
		EndsAt:      utc(r.EndsAt),
		SortOrder:   r.SortOrder,
	}
}

// UpdateItemRequest is the body of PATCH /trips/{tripId}/items/{itemId}.
type UpdateItemRequest struct {
	Patch            Patch     `json:"patch"`
	ExpectedRevision int64     `json:"expected_revision"`
	WriteRef         uuid.UUID `json:"write_ref"`
}

// ItemResponse wraps a single item.
type ItemResponse struct {
	Data Item `json:"data"`
}

// ItemListResponse wraps the items of a trip.
type ItemListResponse struct {
	Data []Item `json:"data"`
}

// RoleResponse is the body of GET /trips/{tripId}/role.
type RoleResponse struct {
	TripID    uuid.UUID   `json:"trip_id"`
	UserID    uuid.UUID   `json:"user_id"`
	Role      domain.Role `json:"role"`
	CanMutate bool        `json:"can_mutate"`
}

// ErrorBody describes a failed request.
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ErrorResponse is returned for every non-2xx status. Current carries the
// authoritative item on a 409 so the writer can reconcile without a second
// round trip; it is omitted when the item no longer exists.
type ErrorResponse struct {
	Error   ErrorBody `json:"error"`
	Current *Item     `json:"current,omitempty"`
}

func dateFromTime(t *time.Time) *openapi_types.Date {
	if t == nil {
		return nil
	}
	return &openapi_types.Date{Time: *t}
}

func timeFromDate(d *openapi_types.Date) *time.Time {
	if d == nil {
		return nil
	}
	y, m, day := d.Date()
	t := time.Date(y, m, day, 0, 0, 0, 0, time.UTC)
	return &t
}

func utc(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
