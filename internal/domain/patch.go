package domain

import "time"

// Optional represents a field that may or may not be set in a patch.
// It distinguishes three states:
//   - not set (field absent from the patch): the zero value
//   - unset (field explicitly cleared): set=true, value=nil
//   - value: set=true, value=&v
type Optional[T any] struct {
	value *T
	set   bool
}

// Set returns an Optional holding v.
func Set[T any](v T) Optional[T] {
	return Optional[T]{value: &v, set: true}
}

// Clear returns an Optional that explicitly clears the field.
func Clear[T any]() Optional[T] {
	return Optional[T]{set: true}
}

// IsSet reports whether the field is part of the patch (even if cleared).
func (o Optional[T]) IsSet() bool { return o.set }

// IsCleared reports whether the field is explicitly cleared.
func (o Optional[T]) IsCleared() bool { return o.set && o.value == nil }

// Value returns the new value, or nil when not set or cleared.
func (o Optional[T]) Value() *T { return o.value }

// ItemPatch is a sparse update to the mutable fields of an ItineraryItem.
// TripID, ID and the server-assigned fields are immutable and not patchable.
type ItemPatch struct {
	Title       Optional[string]
	Description Optional[string]
	Location    Optional[string]
	DayDate     Optional[time.Time]
	StartsAt    Optional[time.Time]
	EndsAt      Optional[time.Time]
	SortOrder   Optional[int]
}

// HasChanges returns true if any field in the patch has been set.
func (p ItemPatch) HasChanges() bool {
	return p.Title.IsSet() || p.Description.IsSet() || p.Location.IsSet() ||
		p.DayDate.IsSet() || p.StartsAt.IsSet() || p.EndsAt.IsSet() || p.SortOrder.IsSet()
}

// Apply returns a copy of item with the patch applied.
// Cleared string fields become empty; cleared SortOrder becomes 0.
func (p ItemPatch) Apply(item ItineraryItem) ItineraryItem {
	applyString(&item.Title, p.Title)
	applyString(&item.Description, p.Description)
	applyString(&item.Location, p.Location)
	if p.DayDate.IsSet() {
		item.DayDate = truncateDay(p.DayDate.Value())
	}
	applyTime(&item.StartsAt, p.StartsAt)
	applyTime(&item.EndsAt, p.EndsAt)
	if p.SortOrder.IsSet() {
		item.SortOrder = 0
		if v := p.SortOrder.Value(); v != nil {
			item.SortOrder = *v
		}
	}
	return item
}

func applyString(dst *string, o Optional[string]) {
	if !o.IsSet() {
		return
	}
	*dst = ""
	if v := o.Value(); v != nil {
		*dst = *v
	}
}

func applyTime(dst **time.Time, o Optional[time.Time]) {
	if !o.IsSet() {
		return
	}
	if v := o.Value(); v != nil {
		t := *v
		*dst = &t
		return
	}
	*dst = nil
}
