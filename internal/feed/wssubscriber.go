package feed

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"

	"github.com/pkordes/tripsync/backend/internal/wire"
)

const wsReadLimit = 1 << 20

// dialTimeout bounds a single handshake during reconnects.
const dialTimeout = 10 * time.Second

// WSSubscriber consumes the API's itinerary feed over WebSocket.
type WSSubscriber struct {
	baseURL    string
	token      string
	httpClient *http.Client
	logger     *slog.Logger
	backoff    func() retry.Backoff
}

// WSOption configures a WSSubscriber.
type WSOption func(*WSSubscriber)

// WithHTTPClient sets the client used for the WebSocket handshake.
func WithHTTPClient(c *http.Client) WSOption {
	return func(s *WSSubscriber) { s.httpClient = c }
}

// WithWSLogger sets the subscriber's logger.
func WithWSLogger(l *slog.Logger) WSOption {
	return func(s *WSSubscriber) { s.logger = l }
}

// WithWSBackoff sets the reconnect policy.
func WithWSBackoff(f func() retry.Backoff) WSOption {
	return func(s *WSSubscriber) { s.backoff = f }
}

// NewWSSubscriber creates a subscriber for the API at baseURL, authenticating
// with a bearer token.
func NewWSSubscriber(baseURL, token string, opts ...WSOption) *WSSubscriber {
	s := &WSSubscriber{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		logger:  slog.Default(),
		backoff: DefaultReconnectBackoff,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var _ Subscriber = (*WSSubscriber)(nil)

// Subscribe dials the feed for tripID. The first dial is synchronous so that
// a bad URL or token fails fast. Later disconnects are retried in the
// background, and a Resync is emitted after every successful reconnect.
func (s *WSSubscriber) Subscribe(ctx context.Context, tripID uuid.UUID) (<-chan Event, error) {
	conn, err := s.dial(ctx, tripID)
	if err != nil {
		return nil, fmt.Errorf("feed.WSSubscriber.Subscribe: %w", err)
	}

	out := make(chan Event)
	go s.pump(ctx, tripID, conn, out)
	return out, nil
}

func (s *WSSubscriber) feedURL(tripID uuid.UUID) (string, error) {
	u, err := url.Parse(s.baseURL + "/trips/" + tripID.String() + "/items/feed")
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}
	return u.String(), nil
}

func (s *WSSubscriber) dial(ctx context.Context, tripID uuid.UUID) (*websocket.Conn, error) {
	u, err := s.feedURL(tripID)
	if err != nil {
		return nil, err
	}
	header := http.Header{}
	if s.token != "" {
		header.Set("Authorization", "Bearer "+s.token)
	}

	conn, _, err := websocket.Dial(ctx, u, &websocket.DialOptions{
		HTTPClient: s.httpClient,
		HTTPHeader: header,
	})
	if err != nil {
		return nil, err
	}
	conn.SetReadLimit(wsReadLimit)
	return conn, nil
}

func (s *WSSubscriber) pump(ctx context.Context, tripID uuid.UUID, conn *websocket.Conn, out chan<- Event) {
	defer close(out)

	for {
		err := s.read(ctx, conn, out)
		_ = conn.CloseNow()
		if ctx.Err() != nil {
			return
		}
		s.logger.WarnContext(ctx, "feed connection lost", "trip_id", tripID, "error", err)

		conn, err = s.redial(ctx, tripID)
		if err != nil {
			if ctx.Err() == nil {
				s.logger.ErrorContext(ctx, "feed reconnect abandoned", "trip_id", tripID, "error", err)
			}
			return
		}
		s.logger.InfoContext(ctx, "feed reconnected", "trip_id", tripID)

		select {
		case out <- ResyncEvent(tripID):
		case <-ctx.Done():
			_ = conn.CloseNow()
			return
		}
	}
}

func (s *WSSubscriber) read(ctx context.Context, conn *websocket.Conn, out chan<- Event) error {
	for {
		var msg wire.FeedMessage
		if err := wsjson.Read(ctx, conn, &msg); err != nil {
			return err
		}
		select {
		case out <- EventFromMessage(msg):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (s *WSSubscriber) redial(ctx context.Context, tripID uuid.UUID) (*websocket.Conn, error) {
	var conn *websocket.Conn
	err := retry.Do(ctx, s.backoff(), func(ctx context.Context) error {
		dctx, cancel := context.WithTimeout(ctx, dialTimeout)
		defer cancel()
		c, err := s.dial(dctx, tripID)
		if err != nil {
			s.logger.DebugContext(ctx, "feed redial failed", "trip_id", tripID, "error", err)
			return retry.RetryableError(err)
		}
		conn = c
		return nil
	})
	if err != nil {
		return nil, err
	}
	return conn, nil
}
