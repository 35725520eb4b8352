// Package handler implements the HTTP API of the itinerary backend.
// All handlers are methods on Server. Methods are split into domain-specific
// files (health.go, item.go, feed.go, etc.) but share the same Server struct
// so they can access its dependencies.
package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/pkordes/tripsync/backend/internal/domain"
	"github.com/pkordes/tripsync/backend/internal/feed"
)

// ItemServicer defines the item operations the handlers depend on.
// Defining the interface here (in the consumer package) lets handler tests
// inject a mock without touching the database or service layer.
type ItemServicer interface {
	List(ctx context.Context, userID, tripID uuid.UUID) ([]domain.ItineraryItem, error)
	Get(ctx context.Context, userID, tripID, id uuid.UUID) (domain.ItineraryItem, error)
	Create(ctx context.Context, userID, tripID uuid.UUID, draft domain.ItemDraft, clientRef uuid.UUID) (domain.ItineraryItem, error)
	Update(ctx context.Context, userID, tripID, id uuid.UUID, patch domain.ItemPatch, w domain.WriteMeta) (domain.ItineraryItem, error)
	Delete(ctx context.Context, userID, tripID, id uuid.UUID, expectedRevision int64) (domain.ItineraryItem, error)
}

// TripServicer defines the trip operations the handlers depend on.
type TripServicer interface {
	Create(ctx context.Context, ownerID uuid.UUID, trip domain.Trip) (domain.Trip, error)
	GetByID(ctx context.Context, userID, id uuid.UUID) (domain.Trip, error)
}

// MemberServicer defines the membership operations the handlers depend on.
type MemberServicer interface {
	Role(ctx context.Context, userID, tripID uuid.UUID) (domain.Role, error)
	List(ctx context.Context, userID, tripID uuid.UUID) ([]domain.TripMembership, error)
	Upsert(ctx context.Context, callerID uuid.UUID, m domain.TripMembership) (domain.TripMembership, error)
	Remove(ctx context.Context, callerID, tripID, userID uuid.UUID) error
}

// Server serves every API endpoint.
type Server struct {
	items   ItemServicer
	trips   TripServicer
	members MemberServicer
	feed    feed.Subscriber
	logger  *slog.Logger

	originPatterns []string
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger used for failures that never reach a response.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// WithOriginPatterns lists the browser origins allowed to open the item feed.
// Patterns follow websocket.AcceptOptions.OriginPatterns.
func WithOriginPatterns(patterns []string) Option {
	return func(s *Server) { s.originPatterns = patterns }
}

// NewServer constructs the Server with all its dependencies.
func NewServer(items ItemServicer, trips TripServicer, members MemberServicer, sub feed.Subscriber, opts ...Option) *Server {
	s := &Server{items: items, trips: trips, members: members, feed: sub, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewHealthHandler returns a Server for health-check-only use.
func NewHealthHandler() *Server {
	return NewServer(nil, nil, nil, nil)
}

// Routes returns the API router. auth guards everything except the health
// check and the OpenAPI document; it must put the caller's user id in the
// request context.
func (s *Server) Routes(auth func(http.Handler) http.Handler) http.Handler {
	r := chi.NewRouter()
	r.Get("/healthz", s.GetHealth)
	r.Get("/openapi.yaml", s.GetOpenAPI)

	r.Group(func(r chi.Router) {
		r.Use(auth)
		r.Post("/trips", s.CreateTrip)
		r.Route("/trips/{tripId}", func(r chi.Router) {
			r.Get("/", s.GetTrip)
			r.Get("/role", s.GetRole)

			r.Get("/members", s.ListMembers)
			r.Put("/members/{userId}", s.PutMember)
			r.Delete("/members/{userId}", s.DeleteMember)

			r.Get("/items", s.ListItems)
			r.Post("/items", s.CreateItem)
			r.Get("/items/feed", s.ItemFeed)
			r.Get("/items/{itemId}", s.GetItem)
			r.Patch("/items/{itemId}", s.UpdateItem)
			r.Delete("/items/{itemId}", s.DeleteItem)
		})
	})
	return r
}
