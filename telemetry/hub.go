package telemetry

import (
	"sync"

	"github.com/nstehr/mowbot/agent"
)

// Hub fans engine snapshots out to subscribers. Publishing never blocks: each
// subscriber holds at most one pending snapshot and a newer one replaces it,
// taking over its events.
type Hub struct {
	mu     sync.Mutex
	latest *agent.Snapshot
	subs   map[int]chan agent.Snapshot
	nextID int
	closed bool
}

func NewHub() *Hub {
	return &Hub{subs: make(map[int]chan agent.Snapshot)}
}

// Publish records snap as the latest snapshot and offers it to every subscriber.
// It has the signature of agent.Options.Observer.
func (h *Hub) Publish(snap agent.Snapshot) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.latest = &snap
	for _, ch := range h.subs {
		offer(ch, snap)
	}
}

// Subscribe returns a channel that receives the latest snapshot, starting with
// the current one if any, and a cancel func that closes it.
func (h *Hub) Subscribe() (<-chan agent.Snapshot, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	ch := make(chan agent.Snapshot, 1)
	if h.closed {
		close(ch)
		return ch, func() {}
	}
	id := h.nextID
	h.nextID++
	h.subs[id] = ch
	if h.latest != nil {
		ch <- *h.latest
	}

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			if _, ok := h.subs[id]; ok {
				delete(h.subs, id)
				close(ch)
			}
		})
	}
}

// Latest returns the most recent snapshot, if one was published.
func (h *Hub) Latest() (agent.Snapshot, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.latest == nil {
		return agent.Snapshot{}, false
	}
	return *h.latest, true
}

// Close closes every subscription; later publishes are dropped.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for id, ch := range h.subs {
		delete(h.subs, id)
		close(ch)
	}
}

// offer replaces any pending value in ch with snap. Events of the replaced
// snapshot are carried over so none is lost.
func offer(ch chan agent.Snapshot, snap agent.Snapshot) {
	select {
	case pending := <-ch:
		snap.Events = mergeEvents(pending.Events, snap.Events)
	default:
	}
	ch <- snap
}

// mergeEvents returns older followed by newer in a fresh slice.
func mergeEvents(older, newer []agent.Event) []agent.Event {
	if len(older) == 0 {
		return newer
	}
	out := make([]agent.Event, 0, len(older)+len(newer))
	out = append(out, older...)
	return append(out, newer...)
}
