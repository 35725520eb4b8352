package feed

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sethvargo/go-retry"

	"github.com/pkordes/tripsync/backend/internal/wire"
)

// ChannelName is the NOTIFY channel written by the itinerary_items trigger.
const ChannelName = "itinerary_changes"

// notification is the trigger payload. Item is omitted by the trigger when
// the row would not fit in a NOTIFY payload.
type notification struct {
	Op     string     `json:"op"`
	TripID uuid.UUID  `json:"trip_id"`
	ID     uuid.UUID  `json:"id"`
	Item   *wire.Item `json:"item"`
}

// PGListener turns Postgres notifications into Hub events.
type PGListener struct {
	pool    *pgxpool.Pool
	pub     Publisher
	channel string
	logger  *slog.Logger
	backoff func() retry.Backoff
}

// ListenerOption configures a PGListener.
type ListenerOption func(*PGListener)

// WithListenerLogger sets the listener's logger.
func WithListenerLogger(l *slog.Logger) ListenerOption {
	return func(p *PGListener) { p.logger = l }
}

// WithListenerBackoff sets the reconnect policy. A fresh Backoff is taken for
// every outage.
func WithListenerBackoff(f func() retry.Backoff) ListenerOption {
	return func(p *PGListener) { p.backoff = f }
}

// WithChannel overrides the NOTIFY channel name.
func WithChannel(name string) ListenerOption {
	return func(p *PGListener) { p.channel = name }
}

// DefaultReconnectBackoff retries forever, starting at 250ms and capped at 30s.
func DefaultReconnectBackoff() retry.Backoff {
	b := retry.NewExponential(250 * time.Millisecond)
	b = retry.WithJitterPercent(10, b)
	return retry.WithCappedDuration(30*time.Second, b)
}

// NewPGListener creates a listener publishing to pub.
func NewPGListener(pool *pgxpool.Pool, pub Publisher, opts ...ListenerOption) *PGListener {
	l := &PGListener{
		pool:    pool,
		pub:     pub,
		channel: ChannelName,
		logger:  slog.Default(),
		backoff: DefaultReconnectBackoff,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Run listens until ctx ends. After every reconnect it publishes a Resync to
// all trips, since notifications sent while disconnected are lost. It returns
// nil on cancellation and an error only when the backoff gives up.
func (l *PGListener) Run(ctx context.Context) error {
	b := l.backoff()
	connected := false

	for {
		err := l.listen(ctx, func() {
			if connected {
				l.logger.InfoContext(ctx, "feed listener reconnected", "channel", l.channel)
				l.pub.Publish(ResyncEvent(uuid.Nil))
			}
			connected = true
			b = l.backoff()
		})
		if ctx.Err() != nil {
			return nil
		}

		delay, stop := b.Next()
		if stop {
			return fmt.Errorf("feed.PGListener.Run: giving up: %w", err)
		}
		l.logger.WarnContext(ctx, "feed listener disconnected", "channel", l.channel, "retry_in", delay, "error", err)

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(delay):
		}
	}
}

// listen holds one dedicated connection. onListening runs once LISTEN
// succeeds.
func (l *PGListener) listen(ctx context.Context, onListening func()) error {
	pooled, err := l.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire: %w", err)
	}
	// A LISTENing connection must never go back to the pool.
	conn := pooled.Hijack()
	defer conn.Close(context.Background())

	if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{l.channel}.Sanitize()); err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	onListening()

	for {
		n, err := conn.WaitForNotification(ctx)
		if err != nil {
			return fmt.Errorf("wait: %w", err)
		}
		l.handle(ctx, n.Payload)
	}
}

func (l *PGListener) handle(ctx context.Context, payload string) {
	ev, err := decodeNotification([]byte(payload))
	if err != nil {
		l.logger.WarnContext(ctx, "feed listener dropped notification", "error", err)
		return
	}
	l.logger.DebugContext(ctx, "feed event", "kind", ev.Kind, "trip_id", ev.TripID, "item_id", ev.ItemID)
	l.pub.Publish(ev)
}

// decodeNotification maps a trigger payload to an Event. An insert or update
// without its row becomes a Resync for the trip.
func decodeNotification(payload []byte) (Event, error) {
	var n notification
	if err := json.Unmarshal(payload, &n); err != nil {
		return Event{}, fmt.Errorf("decode payload: %w", err)
	}
	if n.TripID == uuid.Nil {
		return Event{}, fmt.Errorf("payload without trip_id")
	}

	var kind Kind
	switch n.Op {
	case "INSERT":
		kind = Inserted
	case "UPDATE":
		kind = Updated
	case "DELETE":
		return Event{Kind: Deleted, TripID: n.TripID, ItemID: n.ID}, nil
	default:
		return Event{}, fmt.Errorf("unknown op %q", n.Op)
	}

	if n.Item == nil {
		return ResyncEvent(n.TripID), nil
	}
	it := n.Item.Domain()
	return Event{Kind: kind, TripID: n.TripID, ItemID: n.ID, Item: &it}, nil
}
