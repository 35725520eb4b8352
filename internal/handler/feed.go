package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/pkordes/tripsync/backend/internal/domain"
)

const feedWriteTimeout = 10 * time.Second

// ItemFeed handles GET /trips/{tripId}/items/feed.
//
// It upgrades to a WebSocket and streams the trip's change events as JSON
// frames until either side goes away. Any member may listen. Messages from
// the device are not expected; the read side only watches for close frames.
func (s *Server) ItemFeed(w http.ResponseWriter, r *http.Request) {
	tripID, err := pathUUID(r, "tripId")
	if err != nil {
		s.writeError(w, r, err, nil)
		return
	}
	userID := caller(r)
	if _, err := s.members.Role(r.Context(), userID, tripID); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			err = domain.ErrUnauthorized
		}
		s.writeError(w, r, err, nil)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: s.originPatterns})
	if err != nil {
		// Accept has already written the response.
		s.logger.DebugContext(r.Context(), "feed upgrade failed", "trip_id", tripID, "error", err)
		return
	}
	defer conn.CloseNow()

	ctx := conn.CloseRead(r.Context())
	events, err := s.feed.Subscribe(ctx, tripID)
	if err != nil {
		s.logger.ErrorContext(ctx, "feed subscribe failed", "trip_id", tripID, "error", err)
		conn.Close(websocket.StatusInternalError, "subscribe failed")
		return
	}
	s.logger.DebugContext(ctx, "feed connected", "trip_id", tripID, "user_id", userID)

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				conn.Close(websocket.StatusGoingAway, "server shutting down")
				return
			}
			wctx, cancel := context.WithTimeout(ctx, feedWriteTimeout)
			err := wsjson.Write(wctx, conn, ev.Message())
			cancel()
			if err != nil {
				s.logger.DebugContext(ctx, "feed write failed", "trip_id", tripID, "error", err)
				return
			}
		}
	}
}
