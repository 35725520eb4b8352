package domain

import (
	"cmp"
	"slices"
	"time"
)

// DayGroup is one day of the itinerary read model.
// Day is nil for the "unscheduled" group.
type DayGroup struct {
	Day   *time.Time
	Items []ItineraryItem
}

// CompareItems orders items by day (unscheduled last), then SortOrder, then
// StartsAt (items without a start time last), then ID.
// SortOrder values need not be contiguous; the order is derived, never renumbered.
func CompareItems(a, b ItineraryItem) int {
	if c := compareOptionalTime(a.DayDate, b.DayDate); c != 0 {
		return c
	}
	if c := cmp.Compare(a.SortOrder, b.SortOrder); c != 0 {
		return c
	}
	if c := compareOptionalTime(a.StartsAt, b.StartsAt); c != 0 {
		return c
	}
	return cmp.Compare(a.ID.String(), b.ID.String())
}

// SortItems sorts items in place in display order.
func SortItems(items []ItineraryItem) {
	slices.SortStableFunc(items, CompareItems)
}

// GroupByDay splits items into day groups in display order. Scheduled days
// come first in ascending date order; the unscheduled group, if any, is last.
func GroupByDay(items []ItineraryItem) []DayGroup {
	sorted := slices.Clone(items)
	SortItems(sorted)

	groups := []DayGroup{}
	for _, it := range sorted {
		n := len(groups)
		if n > 0 && sameDay(groups[n-1].Day, it.DayDate) {
			groups[n-1].Items = append(groups[n-1].Items, it)
			continue
		}
		groups = append(groups, DayGroup{Day: it.DayDate, Items: []ItineraryItem{it}})
	}
	return groups
}

// compareOptionalTime orders nil after any set time.
func compareOptionalTime(a, b *time.Time) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return 1
	case b == nil:
		return -1
	default:
		return a.Compare(*b)
	}
}

func sameDay(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}
