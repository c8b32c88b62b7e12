package feed

import (
	"sync"

	"github.com/google/uuid"

	"github.com/technosupport/ts-eventfeed/internal/metrics"
)

const subscriberBuffer = 4

// Hub fans feed snapshots out to websocket subscribers. Sends are
// non-blocking: a subscriber that cannot keep up misses intermediate
// snapshots rather than stalling the pollers.
type Hub struct {
	mu   sync.Mutex
	subs map[uuid.UUID]chan Snapshot
}

func NewHub() *Hub {
	return &Hub{subs: make(map[uuid.UUID]chan Snapshot)}
}

func (h *Hub) Subscribe() (uuid.UUID, <-chan Snapshot) {
	id := uuid.New()
	ch := make(chan Snapshot, subscriberBuffer)

	h.mu.Lock()
	h.subs[id] = ch
	n := len(h.subs)
	h.mu.Unlock()

	metrics.Subscribers.Set(float64(n))
	return id, ch
}

func (h *Hub) Unsubscribe(id uuid.UUID) {
	h.mu.Lock()
	if ch, ok := h.subs[id]; ok {
		delete(h.subs, id)
		close(ch)
	}
	n := len(h.subs)
	h.mu.Unlock()

	metrics.Subscribers.Set(float64(n))
}

func (h *Hub) Broadcast(s Snapshot) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, ch := range h.subs {
		select {
		case ch <- s:
		default:
		}
	}
}
