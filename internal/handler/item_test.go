package handler_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pkordes/tripsync/backend/internal/domain"
	"github.com/pkordes/tripsync/backend/internal/wire"
)

func itemsURL() string { return "/trips/" + tripID.String() + "/items" }
func itemURL() string  { return itemsURL() + "/" + itemID.String() }

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) wire.ErrorResponse {
	t.Helper()
	var body wire.ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	return body
}

// ---- list / get ------------------------------------------------------------

func TestListItems_OK(t *testing.T) {
	d := newDeps()
	var gotUser uuid.UUID
	d.items.list = func(_ context.Context, u, _ uuid.UUID) ([]domain.ItineraryItem, error) {
		gotUser = u
		return []domain.ItineraryItem{lunch(3)}, nil
	}

	rec := d.do(t, httptest.NewRequest(http.MethodGet, itemsURL(), nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var body wire.ItemListResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	require.Len(t, body.Data, 1)
	assert.Equal(t, "Lunch", body.Data[0].Title)
	assert.Equal(t, int64(3), body.Data[0].Revision)
	assert.Equal(t, userID, gotUser)
}

func TestListItems_EmptyIsArray(t *testing.T) {
	d := newDeps()
	d.items.list = func(context.Context, uuid.UUID, uuid.UUID) ([]domain.ItineraryItem, error) {
		return []domain.ItineraryItem{}, nil
	}

	rec := d.do(t, httptest.NewRequest(http.MethodGet, itemsURL(), nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"data":[]}`, rec.Body.String())
}

func TestListItems_NonMemberForbidden(t *testing.T) {
	d := newDeps()
	d.items.list = func(context.Context, uuid.UUID, uuid.UUID) ([]domain.ItineraryItem, error) {
		return nil, fmt.Errorf("service.ItemService.List: %w", domain.ErrUnauthorized)
	}

	rec := d.do(t, httptest.NewRequest(http.MethodGet, itemsURL(), nil))

	require.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "forbidden", decodeError(t, rec).Error.Code)
}

func TestGetItem_NotFound(t *testing.T) {
	d := newDeps()
	d.items.get = func(context.Context, uuid.UUID, uuid.UUID, uuid.UUID) (domain.ItineraryItem, error) {
		return domain.ItineraryItem{}, domain.ErrNotFound
	}

	rec := d.do(t, httptest.NewRequest(http.MethodGet, itemURL(), nil))

	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not_found", decodeError(t, rec).Error.Code)
}

func TestGetItem_BadID(t *testing.T) {
	d := newDeps()

	rec := d.do(t, httptest.NewRequest(http.MethodGet, itemsURL()+"/not-a-uuid", nil))

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "bad_request", decodeError(t, rec).Error.Code)
}

func TestGetItem_InternalError(t *testing.T) {
	d := newDeps()
	d.items.get = func(context.Context, uuid.UUID, uuid.UUID, uuid.UUID) (domain.ItineraryItem, error) {
		return domain.ItineraryItem{}, errors.New("connection reset")
	}

	rec := d.do(t, httptest.NewRequest(http.MethodGet, itemURL(), nil))

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "connection reset")
}

// ---- create ----------------------------------------------------------------

func TestCreateItem_Created(t *testing.T) {
	d := newDeps()
	ref := uuid.New()
	var (
		gotDraft domain.ItemDraft
		gotRef   uuid.UUID
	)
	d.items.create = func(_ context.Context, _, trip uuid.UUID, draft domain.ItemDraft, clientRef uuid.UUID) (domain.ItineraryItem, error) {
		gotDraft, gotRef = draft, clientRef
		it := draft.Item(trip)
		it.ID, it.Revision, it.ClientRef = itemID, 1, clientRef
		return it, nil
	}

	body := fmt.Sprintf(`{"client_ref":%q,"title":"Fajr Prayer","day_date":"2025-02-10","starts_at":"2025-02-10T05:10:00Z","sort_order":1}`, ref)
	rec := d.do(t, httptest.NewRequest(http.MethodPost, itemsURL(), strings.NewReader(body)))

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, ref, gotRef)
	assert.Equal(t, "Fajr Prayer", gotDraft.Title)
	require.NotNil(t, gotDraft.DayDate)
	assert.Equal(t, time.Date(2025, 2, 10, 0, 0, 0, 0, time.UTC), *gotDraft.DayDate)

	var resp wire.ItemResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, itemID, resp.Data.ID)
	assert.Equal(t, "2025-02-10", resp.Data.DayDate.String())
}

func TestCreateItem_Validation(t *testing.T) {
	d := newDeps()
	d.items.create = func(context.Context, uuid.UUID, uuid.UUID, domain.ItemDraft, uuid.UUID) (domain.ItineraryItem, error) {
		return domain.ItineraryItem{}, fmt.Errorf("%w: title is required", domain.ErrValidation)
	}

	rec := d.do(t, httptest.NewRequest(http.MethodPost, itemsURL(), strings.NewReader(`{"title":" "}`)))

	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	body := decodeError(t, rec)
	assert.Equal(t, "validation_error", body.Error.Code)
	assert.Equal(t, "title is required", body.Error.Message)
}

func TestCreateItem_MalformedBody(t *testing.T) {
	d := newDeps()

	for _, body := range []string{`{"title":`, `{"title":"x","colour":"red"}`} {
		rec := d.do(t, httptest.NewRequest(http.MethodPost, itemsURL(), strings.NewReader(body)))
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
	}
}

// ---- update ----------------------------------------------------------------

func TestUpdateItem_OK(t *testing.T) {
	d := newDeps()
	ref := uuid.New()
	var (
		gotPatch domain.ItemPatch
		gotMeta  domain.WriteMeta
	)
	d.items.update = func(_ context.Context, _, _, _ uuid.UUID, patch domain.ItemPatch, w domain.WriteMeta) (domain.ItineraryItem, error) {
		gotPatch, gotMeta = patch, w
		return patch.Apply(lunch(6)), nil
	}

	body := fmt.Sprintf(`{"patch":{"title":"Group Lunch","location":null},"expected_revision":5,"write_ref":%q}`, ref)
	rec := d.do(t, httptest.NewRequest(http.MethodPatch, itemURL(), strings.NewReader(body)))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Group Lunch", *gotPatch.Title.Value())
	assert.True(t, gotPatch.Location.IsCleared())
	assert.False(t, gotPatch.Description.IsSet())
	assert.Equal(t, int64(5), gotMeta.ExpectedRevision)
	assert.Equal(t, ref, gotMeta.WriteRef)
}

func TestUpdateItem_ConflictCarriesCurrent(t *testing.T) {
	d := newDeps()
	current := lunch(6)
	current.Title = "Lunch at the hotel"
	d.items.update = func(context.Context, uuid.UUID, uuid.UUID, uuid.UUID, domain.ItemPatch, domain.WriteMeta) (domain.ItineraryItem, error) {
		return current, fmt.Errorf("service.ItemService.Update: %w", domain.ErrConflict)
	}

	rec := d.do(t, httptest.NewRequest(http.MethodPatch, itemURL(),
		strings.NewReader(`{"patch":{"title":"Group Lunch"},"expected_revision":5}`)))

	require.Equal(t, http.StatusConflict, rec.Code)
	body := decodeError(t, rec)
	assert.Equal(t, "conflict", body.Error.Code)
	require.NotNil(t, body.Current)
	assert.Equal(t, int64(6), body.Current.Revision)
	assert.Equal(t, "Lunch at the hotel", body.Current.Title)
}

func TestUpdateItem_UnknownPatchField(t *testing.T) {
	d := newDeps()

	rec := d.do(t, httptest.NewRequest(http.MethodPatch, itemURL(),
		strings.NewReader(`{"patch":{"revision":9},"expected_revision":5}`)))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// ---- delete ----------------------------------------------------------------

func TestDeleteItem_NoContent(t *testing.T) {
	d := newDeps()
	var expected int64
	d.items.delete = func(_ context.Context, _, _, _ uuid.UUID, rev int64) (domain.ItineraryItem, error) {
		expected = rev
		return domain.ItineraryItem{}, nil
	}

	rec := d.do(t, httptest.NewRequest(http.MethodDelete, itemURL()+"?expected_revision=4", nil))

	require.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, int64(4), expected)
}

func TestDeleteItem_RequiresRevision(t *testing.T) {
	d := newDeps()

	for _, q := range []string{"", "?expected_revision=", "?expected_revision=abc", "?expected_revision=0"} {
		rec := d.do(t, httptest.NewRequest(http.MethodDelete, itemURL()+q, nil))
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code, q)
	}
}

func TestDeleteItem_Conflict(t *testing.T) {
	d := newDeps()
	d.items.delete = func(context.Context, uuid.UUID, uuid.UUID, uuid.UUID, int64) (domain.ItineraryItem, error) {
		return lunch(7), domain.ErrConflict
	}

	rec := d.do(t, httptest.NewRequest(http.MethodDelete, itemURL()+"?expected_revision=4", nil))

	require.Equal(t, http.StatusConflict, rec.Code)
	body := decodeError(t, rec)
	require.NotNil(t, body.Current)
	assert.Equal(t, int64(7), body.Current.Revision)
}

func TestDeleteItem_ConflictWithoutCurrent(t *testing.T) {
	d := newDeps()
	d.items.delete = func(context.Context, uuid.UUID, uuid.UUID, uuid.UUID, int64) (domain.ItineraryItem, error) {
		return domain.ItineraryItem{}, domain.ErrConflict
	}

	rec := d.do(t, httptest.NewRequest(http.MethodDelete, itemURL()+"?expected_revision=4", nil))

	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Nil(t, decodeError(t, rec).Current)
}
