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

// ItemService implements the server side of itinerary writes: role checks,
// validation, and revision-checked persistence.
type ItemService struct {
	items  repo.ItemRepo
	gate   Authorizer
	logger *slog.Logger
}

// NewItemService constructs an ItemService.
func NewItemService(items repo.ItemRepo, gate Authorizer, logger *slog.Logger) *ItemService {
	if logger == nil {
		logger = slog.Default()
	}
	return &ItemService{items: items, gate: gate, logger: logger}
}

// List returns the trip's items in display order. Any member may read.
// Always returns a non-nil slice.
func (s *ItemService) List(ctx context.Context, userID, tripID uuid.UUID) ([]domain.ItineraryItem, error) {
	if err := s.gate.AuthorizeRead(ctx, userID, tripID); err != nil {
		return nil, fmt.Errorf("service.ItemService.List: %w", err)
	}
	items, err := s.items.ListByTrip(ctx, tripID)
	if err != nil {
		return nil, fmt.Errorf("service.ItemService.List: %w", err)
	}
	if items == nil {
		return []domain.ItineraryItem{}, nil
	}
	return items, nil
}

// Get returns one item of the trip.
func (s *ItemService) Get(ctx context.Context, userID, tripID, id uuid.UUID) (domain.ItineraryItem, error) {
	if err := s.gate.AuthorizeRead(ctx, userID, tripID); err != nil {
		return domain.ItineraryItem{}, fmt.Errorf("service.ItemService.Get: %w", err)
	}
	item, err := s.items.GetByID(ctx, tripID, id)
	if err != nil {
		return domain.ItineraryItem{}, fmt.Errorf("service.ItemService.Get: %w", err)
	}
	return item, nil
}

// Create validates and persists a new item.
//
// clientRef makes the call idempotent: repeating it returns the item created
// the first time. A nil clientRef gets a fresh one.
func (s *ItemService) Create(ctx context.Context, userID, tripID uuid.UUID, draft domain.ItemDraft, clientRef uuid.UUID) (domain.ItineraryItem, error) {
	if err := s.gate.Authorize(ctx, userID, tripID); err != nil {
		return domain.ItineraryItem{}, fmt.Errorf("service.ItemService.Create: %w", err)
	}

	item := draft.Item(tripID)
	if err := domain.ValidateItem(item); err != nil {
		return domain.ItineraryItem{}, err
	}
	if clientRef == uuid.Nil {
		clientRef = uuid.New()
	}
	item.ClientRef, item.WriteRef = clientRef, clientRef
	item.UpdatedBy = userID

	result, err := s.items.Create(ctx, item)
	if err != nil {
		return domain.ItineraryItem{}, fmt.Errorf("service.ItemService.Create: %w", err)
	}
	s.logger.DebugContext(ctx, "item created", "trip_id", tripID, "item_id", result.ID, "client_ref", clientRef)
	return result, nil
}

// Update applies patch if the item is still at w.ExpectedRevision.
//
// Returns domain.ErrConflict on a stale revision. In that case the current
// row is returned alongside the error when it could be read, so callers can
// show what won.
func (s *ItemService) Update(ctx context.Context, userID, tripID, id uuid.UUID, patch domain.ItemPatch, w domain.WriteMeta) (domain.ItineraryItem, error) {
	if err := s.gate.Authorize(ctx, userID, tripID); err != nil {
		return domain.ItineraryItem{}, fmt.Errorf("service.ItemService.Update: %w", err)
	}
	if !patch.HasChanges() {
		return domain.ItineraryItem{}, fmt.Errorf("%w: patch has no changes", domain.ErrValidation)
	}

	current, err := s.items.GetByID(ctx, tripID, id)
	if err != nil {
		return domain.ItineraryItem{}, fmt.Errorf("service.ItemService.Update: %w", err)
	}
	if current.Revision != w.ExpectedRevision {
		return current, fmt.Errorf("service.ItemService.Update: revision %d, expected %d: %w",
			current.Revision, w.ExpectedRevision, domain.ErrConflict)
	}
	if err := domain.ValidateItem(patch.Apply(current)); err != nil {
		return domain.ItineraryItem{}, err
	}

	w.UserID = userID
	if w.WriteRef == uuid.Nil {
		w.WriteRef = uuid.New()
	}
	result, err := s.items.Update(ctx, tripID, id, patch, w)
	if errors.Is(err, domain.ErrConflict) {
		// Lost the race between the read above and the write.
		return s.current(ctx, tripID, id), fmt.Errorf("service.ItemService.Update: %w", err)
	}
	if err != nil {
		return domain.ItineraryItem{}, fmt.Errorf("service.ItemService.Update: %w", err)
	}
	return result, nil
}

// Delete removes the item if it is still at expectedRevision. Deleting an
// item that does not exist succeeds.
//
// On domain.ErrConflict the current row is returned alongside the error.
func (s *ItemService) Delete(ctx context.Context, userID, tripID, id uuid.UUID, expectedRevision int64) (domain.ItineraryItem, error) {
	if err := s.gate.Authorize(ctx, userID, tripID); err != nil {
		return domain.ItineraryItem{}, fmt.Errorf("service.ItemService.Delete: %w", err)
	}
	err := s.items.Delete(ctx, tripID, id, expectedRevision)
	if errors.Is(err, domain.ErrConflict) {
		return s.current(ctx, tripID, id), fmt.Errorf("service.ItemService.Delete: %w", err)
	}
	if err != nil {
		return domain.ItineraryItem{}, fmt.Errorf("service.ItemService.Delete: %w", err)
	}
	return domain.ItineraryItem{}, nil
}

// current reads the item for a conflict response. A zero item means it could
// not be read.
func (s *ItemService) current(ctx context.Context, tripID, id uuid.UUID) domain.ItineraryItem {
	item, err := s.items.GetByID(ctx, tripID, id)
	if err != nil {
		s.logger.DebugContext(ctx, "current item unavailable", "trip_id", tripID, "item_id", id, "error", err)
		return domain.ItineraryItem{}
	}
	return item
}
