package wire

import (
	"github.com/google/uuid"
)

// FeedKind names a change-feed message.
type FeedKind string

const (
	FeedInserted FeedKind = "inserted"
	FeedUpdated  FeedKind = "updated"
	FeedDeleted  FeedKind = "deleted"
	// FeedResync tells the receiver that changes may have been missed and a
	// full reload is required.
	FeedResync FeedKind = "resync"
)

// FeedMessage is one frame on the itinerary WebSocket.
// Item is set for inserted and updated, omitted for deleted and resync.
type FeedMessage struct {
	Kind   FeedKind  `json:"kind"`
	TripID uuid.UUID `json:"trip_id"`
	ItemID uuid.UUID `json:"item_id"`
	Item   *Item     `json:"item,omitempty"`
}
