// Package feed carries itinerary change notifications from the database to
// devices: the Postgres listener publishes into a Hub, the API streams the Hub
// over WebSocket, and devices consume it through WSSubscriber.
//
// The feed has no gap-resume guarantee. Whenever events may have been lost
// (reconnects, slow consumers, oversized notifications) a Resync event is
// emitted and the receiver is expected to reload the trip.
package feed

import (
	"context"

	"github.com/google/uuid"

	"github.com/pkordes/tripsync/backend/internal/domain"
	"github.com/pkordes/tripsync/backend/internal/wire"
)

// Kind names a feed event.
type Kind string

const (
	Inserted Kind = "inserted"
	Updated  Kind = "updated"
	Deleted  Kind = "deleted"
	Resync   Kind = "resync"
)

// Event is one remote change. Item is set for Inserted and Updated.
type Event struct {
	Kind   Kind
	TripID uuid.UUID
	ItemID uuid.UUID
	Item   *domain.ItineraryItem
}

// Subscriber opens a per-trip event stream. The channel is closed when ctx
// ends or the stream can no longer be maintained.
type Subscriber interface {
	Subscribe(ctx context.Context, tripID uuid.UUID) (<-chan Event, error)
}

// Publisher accepts events for fan-out.
type Publisher interface {
	Publish(ev Event)
}

// ResyncEvent returns a Resync for tripID. uuid.Nil addresses every trip.
func ResyncEvent(tripID uuid.UUID) Event {
	return Event{Kind: Resync, TripID: tripID}
}

// Message converts the event to its WebSocket frame.
func (e Event) Message() wire.FeedMessage {
	m := wire.FeedMessage{Kind: wire.FeedKind(e.Kind), TripID: e.TripID, ItemID: e.ItemID}
	if e.Item != nil {
		it := wire.ItemFromDomain(*e.Item)
		m.Item = &it
	}
	return m
}

// EventFromMessage converts a WebSocket frame back to an Event.
func EventFromMessage(m wire.FeedMessage) Event {
	ev := Event{Kind: Kind(m.Kind), TripID: m.TripID, ItemID: m.ItemID}
	if m.Item != nil {
		it := m.Item.Domain()
		ev.Item = &it
		if ev.ItemID == uuid.Nil {
			ev.ItemID = it.ID
		}
	}
	return ev
}
