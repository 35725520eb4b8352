package feed

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// defaultSubscriberBuffer absorbs bursts such as a bulk reorder touching every
// item of a trip.
const defaultSubscriberBuffer = 256

var errHubClosed = errors.New("feed hub is closed")

type subscriber struct {
	ctx    context.Context
	tripID uuid.UUID

	mu     sync.Mutex
	ch     chan Event
	closed bool
}

// Hub fans events out to per-trip subscribers. Publish never blocks: a
// subscriber that falls a full buffer behind has its backlog replaced by a
// single Resync.
type Hub struct {
	mu          sync.RWMutex
	subscribers map[*subscriber]struct{}
	closed      atomic.Bool
	buffer      int

	// done is closed by Shutdown. monitors tracks the goroutines watching
	// subscriber contexts.
	done     chan struct{}
	monitors sync.WaitGroup
}

// HubOption configures a Hub.
type HubOption func(*Hub)

// WithBuffer sets the per-subscriber channel capacity.
func WithBuffer(n int) HubOption {
	return func(h *Hub) {
		if n > 0 {
			h.buffer = n
		}
	}
}

// NewHub creates an empty Hub.
func NewHub(opts ...HubOption) *Hub {
	h := &Hub{
		subscribers: make(map[*subscriber]struct{}),
		buffer:      defaultSubscriberBuffer,
		done:        make(chan struct{}),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

var (
	_ Publisher  = (*Hub)(nil)
	_ Subscriber = (*Hub)(nil)
)

// Publish delivers ev to every subscriber of ev.TripID. A Resync with a nil
// TripID goes to every subscriber, addressed to its own trip.
func (h *Hub) Publish(ev Event) {
	if h.closed.Load() {
		return
	}
	broadcast := ev.Kind == Resync && ev.TripID == uuid.Nil

	h.mu.RLock()
	subs := make([]*subscriber, 0, len(h.subscribers))
	for sub := range h.subscribers {
		if broadcast || sub.tripID == ev.TripID {
			subs = append(subs, sub)
		}
	}
	h.mu.RUnlock()

	for _, sub := range subs {
		out := ev
		if broadcast {
			out.TripID = sub.tripID
		}
		sub.send(out)
	}
}

func (s *subscriber) send(ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}

	select {
	case s.ch <- ev:
		return
	default:
	}

	// Overflow: whatever is still queued is moot once the receiver reloads.
	for drained := false; !drained; {
		select {
		case <-s.ch:
		default:
			drained = true
		}
	}
	s.ch <- ResyncEvent(s.tripID)
}

// Subscribe registers a subscriber for tripID until ctx ends.
func (h *Hub) Subscribe(ctx context.Context, tripID uuid.UUID) (<-chan Event, error) {
	if h.closed.Load() {
		return nil, errHubClosed
	}

	sub := &subscriber{
		ctx:    ctx,
		tripID: tripID,
		ch:     make(chan Event, h.buffer),
	}

	h.mu.Lock()
	if h.closed.Load() {
		h.mu.Unlock()
		return nil, errHubClosed
	}
	h.subscribers[sub] = struct{}{}
	h.monitors.Add(1)
	h.mu.Unlock()

	go h.monitorContext(sub)

	return sub.ch, nil
}

// Len returns the number of live subscribers.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers)
}

// Shutdown closes every subscriber channel and returns once no goroutine of
// the hub is left running. Later publishes are dropped and later subscribes
// fail.
func (h *Hub) Shutdown() {
	if !h.closed.CompareAndSwap(false, true) {
		h.monitors.Wait()
		return
	}

	h.mu.Lock()
	subs := h.subscribers
	h.subscribers = make(map[*subscriber]struct{})
	close(h.done)
	h.mu.Unlock()

	for sub := range subs {
		sub.close()
	}
	h.monitors.Wait()
}

func (h *Hub) monitorContext(sub *subscriber) {
	defer h.monitors.Done()

	select {
	case <-sub.ctx.Done():
	case <-h.done:
	}

	h.mu.Lock()
	delete(h.subscribers, sub)
	h.mu.Unlock()

	sub.close()
}

func (s *subscriber) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
}
