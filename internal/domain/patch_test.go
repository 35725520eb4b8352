package domain_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pkordes/tripsync/backend/internal/domain"
)

func TestItemPatch_HasChanges(t *testing.T) {
	assert.False(t, domain.ItemPatch{}.HasChanges())
	assert.True(t, domain.ItemPatch{Title: domain.Set("x")}.HasChanges())
	assert.True(t, domain.ItemPatch{EndsAt: domain.Clear[time.Time]()}.HasChanges())
}

func TestItemPatch_Apply(t *testing.T) {
	start := time.Date(2025, 2, 10, 12, 0, 0, 0, time.UTC)
	item := validItem()
	item.Title = "Lunch"
	item.Location = "Old Town"
	item.StartsAt = &start
	item.SortOrder = 4

	got := domain.ItemPatch{
		Title:     domain.Set("Group Lunch"),
		Location:  domain.Clear[string](),
		StartsAt:  domain.Clear[time.Time](),
		SortOrder: domain.Set(7),
	}.Apply(item)

	assert.Equal(t, "Group Lunch", got.Title)
	assert.Empty(t, got.Location)
	assert.Nil(t, got.StartsAt)
	assert.Equal(t, 7, got.SortOrder)

	// The original is untouched.
	assert.Equal(t, "Lunch", item.Title)
	require.NotNil(t, item.StartsAt)
}

func TestItemPatch_Apply_NotSetFieldsUnchanged(t *testing.T) {
	item := validItem()
	item.Description = "bring water"

	got := domain.ItemPatch{Title: domain.Set("Hike")}.Apply(item)

	assert.Equal(t, "bring water", got.Description)
}

func TestOptional_States(t *testing.T) {
	var notSet domain.Optional[string]
	assert.False(t, notSet.IsSet())
	assert.False(t, notSet.IsCleared())

	cleared := domain.Clear[string]()
	assert.True(t, cleared.IsSet())
	assert.True(t, cleared.IsCleared())
	assert.Nil(t, cleared.Value())

	v := domain.Set("a")
	assert.True(t, v.IsSet())
	assert.False(t, v.IsCleared())
	assert.Equal(t, "a", *v.Value())
}
