// Package broadcast fans admitted photos out to every connected wall.
//
// There is one Hub per process. Publishers never block: each subscriber has
// a buffered channel, and a subscriber whose buffer is full is dropped (its
// channel is closed) rather than slowing everyone else down. A dropped wall
// reconnects and reseeds from the photo list, so nothing is lost for good.
package broadcast

import (
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/sakif/photo-wall/internal/clock"
	"github.com/sakif/photo-wall/internal/model"
)

// Event announces one photo to the walls.
type Event struct {
	ContentRef string `json:"contentRef"`
	Caption    string `json:"caption"`
}

// EventFor builds the event for an admitted photo.
func EventFor(p *model.Photo) Event {
	return Event{ContentRef: p.ContentRef, Caption: p.Caption}
}

// Subscription is one subscriber's view of the hub. C is closed when the
// subscription ends, either by Unsubscribe or because the subscriber fell
// too far behind.
type Subscription struct {
	ID string
	C  <-chan Event

	ch chan Event
}

// Stats counts deliveries across the hub's lifetime.
type Stats struct {
	Published uint64
	Delivered uint64
	Dropped   uint64 // subscribers cut off for a full buffer
}

// Hub is a process-wide publish/subscribe point. Safe for concurrent use.
//
// Publish holds the lock for the whole fan-out, so two publishes never
// interleave and every subscriber sees events in Publish order.
type Hub struct {
	mu     sync.Mutex
	subs   map[string]*Subscription
	closed bool

	buffer int
	ids    clock.IDGenerator
	logger *slog.Logger

	published atomic.Uint64
	delivered atomic.Uint64
	dropped   atomic.Uint64
}

// NewHub creates a Hub whose subscribers each buffer up to buffer events.
func NewHub(buffer int, logger *slog.Logger) *Hub {
	if buffer < 1 {
		buffer = 1
	}
	return &Hub{
		subs:   make(map[string]*Subscription),
		buffer: buffer,
		ids:    clock.XIDGenerator{},
		logger: logger,
	}
}

// Subscribe registers a new subscriber. After Close it returns a
// subscription whose channel is already closed.
func (h *Hub) Subscribe() *Subscription {
	ch := make(chan Event, h.buffer)
	sub := &Subscription{ID: h.ids.New(), C: ch, ch: ch}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		close(ch)
		return sub
	}
	h.subs[sub.ID] = sub
	return sub
}

// Unsubscribe removes sub and closes its channel. Calling it twice, or for
// a subscriber the hub already dropped, is a no-op.
func (h *Hub) Unsubscribe(sub *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(sub.ID)
}

// Publish delivers e to every current subscriber and returns how many got it.
func (h *Hub) Publish(e Event) int {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return 0
	}
	h.published.Add(1)

	sent := 0
	for id, sub := range h.subs {
		select {
		case sub.ch <- e:
			sent++
		default:
			h.dropped.Add(1)
			h.logger.Warn("dropping slow wall subscriber",
				slog.String("subscriber", id),
				slog.Int("buffer", h.buffer),
			)
			h.removeLocked(id)
		}
	}
	h.delivered.Add(uint64(sent))
	return sent
}

// Len reports the number of live subscribers.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Stats returns a snapshot of the hub's counters.
func (h *Hub) Stats() Stats {
	return Stats{
		Published: h.published.Load(),
		Delivered: h.delivered.Load(),
		Dropped:   h.dropped.Load(),
	}
}

// Close ends every subscription. Later publishes are ignored.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}
	h.closed = true
	for id := range h.subs {
		h.removeLocked(id)
	}
}

func (h *Hub) removeLocked(id string) {
	sub, ok := h.subs[id]
	if !ok {
		return
	}
	delete(h.subs, id)
	close(sub.ch)
}
