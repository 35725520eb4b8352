// Package client talks to the itinerary API over HTTP. HTTPRepository is the
// device-side repository behind itinerary.Store and the role source behind
// the device's permission gate.
package client

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/pkordes/tripsync/backend/internal/domain"
	"github.com/pkordes/tripsync/backend/internal/wire"
)

// maxErrorBody caps how much of an error response is read.
const maxErrorBody = 64 << 10

// HTTPRepository implements itinerary.Repository and permission.RoleSource
// against the API. Every request carries the bearer token.
type HTTPRepository struct {
	baseURL string
	token   string
	hc      *http.Client
}

// Option configures an HTTPRepository.
type Option func(*HTTPRepository)

// WithHTTPClient replaces the default client (30s timeout).
func WithHTTPClient(hc *http.Client) Option {
	return func(r *HTTPRepository) { r.hc = hc }
}

// New returns a repository for the API at baseURL.
func New(baseURL, token string, opts ...Option) *HTTPRepository {
	r := &HTTPRepository{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		hc:      &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// StatusError is a non-2xx API response. It unwraps to the domain sentinel
// matching the status, so errors.Is(err, domain.ErrConflict) works on it.
// 5xx responses unwrap to nothing and count as transient.
type StatusError struct {
	Status  int
	Code    string
	Message string
	// Current is the authoritative item sent with a 409, if any.
	Current *domain.ItineraryItem
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("api: %d %s", e.Status, http.StatusText(e.Status))
	}
	return fmt.Sprintf("api: %d %s: %s", e.Status, e.Code, e.Message)
}

func (e *StatusError) Unwrap() error {
	switch e.Status {
	case http.StatusUnauthorized, http.StatusForbidden:
		return domain.ErrUnauthorized
	case http.StatusNotFound:
		return domain.ErrNotFound
	case http.StatusConflict:
		return domain.ErrConflict
	case http.StatusBadRequest, http.StatusUnprocessableEntity, http.StatusRequestEntityTooLarge:
		return domain.ErrValidation
	}
	return nil
}

// Create posts a new item. item.ClientRef makes the call idempotent.
func (r *HTTPRepository) Create(ctx context.Context, item domain.ItineraryItem) (domain.ItineraryItem, error) {
	var resp wire.ItemResponse
	err := r.do(ctx, http.MethodPost, itemsPath(item.TripID), wire.CreateRequestFromDomain(item), &resp)
	if err != nil {
		return domain.ItineraryItem{}, fmt.Errorf("client.HTTPRepository.Create: %w", err)
	}
	return resp.Data.Domain(), nil
}

// GetByID fetches one item.
func (r *HTTPRepository) GetByID(ctx context.Context, tripID, id uuid.UUID) (domain.ItineraryItem, error) {
	var resp wire.ItemResponse
	if err := r.do(ctx, http.MethodGet, itemPath(tripID, id), nil, &resp); err != nil {
		return domain.ItineraryItem{}, fmt.Errorf("client.HTTPRepository.GetByID: %w", err)
	}
	return resp.Data.Domain(), nil
}

// ListByTrip fetches every item of the trip in display order.
func (r *HTTPRepository) ListByTrip(ctx context.Context, tripID uuid.UUID) ([]domain.ItineraryItem, error) {
	var resp wire.ItemListResponse
	if err := r.do(ctx, http.MethodGet, itemsPath(tripID), nil, &resp); err != nil {
		return nil, fmt.Errorf("client.HTTPRepository.ListByTrip: %w", err)
	}
	items := make([]domain.ItineraryItem, len(resp.Data))
	for i, it := range resp.Data {
		items[i] = it.Domain()
	}
	return items, nil
}

// Update sends patch with w's revision and write ref. The author is taken
// from the token by the server.
func (r *HTTPRepository) Update(ctx context.Context, tripID, id uuid.UUID, patch domain.ItemPatch, w domain.WriteMeta) (domain.ItineraryItem, error) {
	body := wire.UpdateItemRequest{
		Patch:            wire.Patch{ItemPatch: patch},
		ExpectedRevision: w.ExpectedRevision,
		WriteRef:         w.WriteRef,
	}
	var resp wire.ItemResponse
	if err := r.do(ctx, http.MethodPatch, itemPath(tripID, id), body, &resp); err != nil {
		return domain.ItineraryItem{}, fmt.Errorf("client.HTTPRepository.Update: %w", err)
	}
	return resp.Data.Domain(), nil
}

// Delete removes an item if it is still at expectedRevision.
func (r *HTTPRepository) Delete(ctx context.Context, tripID, id uuid.UUID, expectedRevision int64) error {
	q := url.Values{"expected_revision": {strconv.FormatInt(expectedRevision, 10)}}
	if err := r.do(ctx, http.MethodDelete, itemPath(tripID, id)+"?"+q.Encode(), nil, nil); err != nil {
		return fmt.Errorf("client.HTTPRepository.Delete: %w", err)
	}
	return nil
}

// RoleOf returns the token holder's role on the trip. The API only answers
// for the caller, so userID is not sent. A 403 means not a member and is
// returned as domain.ErrNotFound.
func (r *HTTPRepository) RoleOf(ctx context.Context, _, tripID uuid.UUID) (domain.Role, error) {
	var resp wire.RoleResponse
	err := r.do(ctx, http.MethodGet, "/trips/"+tripID.String()+"/role", nil, &resp)
	if errors.Is(err, domain.ErrUnauthorized) {
		var se *StatusError
		if errors.As(err, &se) && se.Status == http.StatusForbidden {
			return "", fmt.Errorf("client.HTTPRepository.RoleOf: %w", domain.ErrNotFound)
		}
	}
	if err != nil {
		return "", fmt.Errorf("client.HTTPRepository.RoleOf: %w", err)
	}
	role, err := domain.ParseRole(string(resp.Role))
	if err != nil {
		return "", fmt.Errorf("client.HTTPRepository.RoleOf: %w", err)
	}
	return role, nil
}

// CreateTrip creates a trip owned by the token holder.
func (r *HTTPRepository) CreateTrip(ctx context.Context, name string) (domain.Trip, error) {
	var resp wire.Trip
	if err := r.do(ctx, http.MethodPost, "/trips", wire.CreateTripRequest{Name: name}, &resp); err != nil {
		return domain.Trip{}, fmt.Errorf("client.HTTPRepository.CreateTrip: %w", err)
	}
	return domain.Trip{ID: resp.ID, Name: resp.Name, CreatedAt: resp.CreatedAt}, nil
}

// PutMember sets a user's role on a trip.
func (r *HTTPRepository) PutMember(ctx context.Context, tripID, userID uuid.UUID, role domain.Role) error {
	path := "/trips/" + tripID.String() + "/members/" + userID.String()
	if err := r.do(ctx, http.MethodPut, path, wire.PutMemberRequest{Role: role}, nil); err != nil {
		return fmt.Errorf("client.HTTPRepository.PutMember: %w", err)
	}
	return nil
}

func (r *HTTPRepository) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, r.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if r.token != "" {
		req.Header.Set("Authorization", "Bearer "+r.token)
	}

	resp, err := r.hc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return decodeStatusError(resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s response: %w", method, path, err)
	}
	return nil
}

func decodeStatusError(resp *http.Response) error {
	se := &StatusError{Status: resp.StatusCode}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

	var body wire.ErrorResponse
	if json.Unmarshal(raw, &body) == nil {
		se.Code, se.Message = body.Error.Code, body.Error.Message
		if body.Current != nil {
			cur := body.Current.Domain()
			se.Current = &cur
		}
	}
	return se
}

func itemsPath(tripID uuid.UUID) string {
	return "/trips/" + tripID.String() + "/items"
}

func itemPath(tripID, id uuid.UUID) string {
	return itemsPath(tripID) + "/" + id.String()
}
