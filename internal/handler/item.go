package handler

import (
	"errors"
	"net/http"

	"github.com/google/uuid"

	"github.com/pkordes/tripsync/backend/internal/domain"
	"github.com/pkordes/tripsync/backend/internal/wire"
)

// ListItems handles GET /trips/{tripId}/items.
func (s *Server) ListItems(w http.ResponseWriter, r *http.Request) {
	tripID, err := pathUUID(r, "tripId")
	if err != nil {
		s.writeError(w, r, err, nil)
		return
	}

	items, err := s.items.List(r.Context(), caller(r), tripID)
	if err != nil {
		s.writeError(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, wire.ItemListResponse{Data: wire.ItemsFromDomain(items)})
}

// GetItem handles GET /trips/{tripId}/items/{itemId}.
func (s *Server) GetItem(w http.ResponseWriter, r *http.Request) {
	tripID, itemID, err := itemPath(r)
	if err != nil {
		s.writeError(w, r, err, nil)
		return
	}

	item, err := s.items.Get(r.Context(), caller(r), tripID, itemID)
	if err != nil {
		s.writeError(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, wire.ItemResponse{Data: wire.ItemFromDomain(item)})
}

// CreateItem handles POST /trips/{tripId}/items.
// A repeated client_ref returns the item created the first time.
func (s *Server) CreateItem(w http.ResponseWriter, r *http.Request) {
	tripID, err := pathUUID(r, "tripId")
	if err != nil {
		s.writeError(w, r, err, nil)
		return
	}
	var body wire.CreateItemRequest
	if err := decodeJSON(r, &body); err != nil {
		s.writeError(w, r, err, nil)
		return
	}

	item, err := s.items.Create(r.Context(), caller(r), tripID, body.Draft(), body.ClientRef)
	if err != nil {
		s.writeError(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusCreated, wire.ItemResponse{Data: wire.ItemFromDomain(item)})
}

// UpdateItem handles PATCH /trips/{tripId}/items/{itemId}.
// A stale expected_revision yields 409 with the current item.
func (s *Server) UpdateItem(w http.ResponseWriter, r *http.Request) {
	tripID, itemID, err := itemPath(r)
	if err != nil {
		s.writeError(w, r, err, nil)
		return
	}
	var body wire.UpdateItemRequest
	if err := decodeJSON(r, &body); err != nil {
		s.writeError(w, r, err, nil)
		return
	}

	item, err := s.items.Update(r.Context(), caller(r), tripID, itemID, body.Patch.ItemPatch, domain.WriteMeta{
		ExpectedRevision: body.ExpectedRevision,
		WriteRef:         body.WriteRef,
	})
	if errors.Is(err, domain.ErrConflict) {
		s.writeError(w, r, err, &item)
		return
	}
	if err != nil {
		s.writeError(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, wire.ItemResponse{Data: wire.ItemFromDomain(item)})
}

// DeleteItem handles DELETE /trips/{tripId}/items/{itemId}?expected_revision=N.
// Deleting an item that no longer exists is a success.
func (s *Server) DeleteItem(w http.ResponseWriter, r *http.Request) {
	tripID, itemID, err := itemPath(r)
	if err != nil {
		s.writeError(w, r, err, nil)
		return
	}
	expected, err := queryInt64(r, "expected_revision")
	if err != nil {
		s.writeError(w, r, err, nil)
		return
	}

	current, err := s.items.Delete(r.Context(), caller(r), tripID, itemID, expected)
	if errors.Is(err, domain.ErrConflict) {
		s.writeError(w, r, err, &current)
		return
	}
	if err != nil {
		s.writeError(w, r, err, nil)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func itemPath(r *http.Request) (tripID, itemID uuid.UUID, err error) {
	if tripID, err = pathUUID(r, "tripId"); err != nil {
		return
	}
	itemID, err = pathUUID(r, "itemId")
	return
}
