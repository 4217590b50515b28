package coordinator

import (
	"sync"

	"kanban-sync/domain"
)

// Hub fans the newest canonical snapshot out to every connected session.
// Notifications coalesce: a slow session that misses intermediate versions
// still receives the latest one.
type Hub struct {
	mu     sync.Mutex
	latest domain.Snapshot
	have   bool
	gen    uint64
	subs   map[chan struct{}]struct{}
}

func NewHub() *Hub {
	return &Hub{subs: make(map[chan struct{}]struct{})}
}

func (h *Hub) Subscribe() chan struct{} {
	ch := make(chan struct{}, 1)
	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()
	return ch
}

func (h *Hub) Unsubscribe(ch chan struct{}) {
	h.mu.Lock()
	delete(h.subs, ch)
	h.mu.Unlock()
}

// Publish records s when it is newer than the latest known snapshot and
// wakes every subscriber. Older or equal versions are ignored.
func (h *Hub) Publish(s domain.Snapshot) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.have && s.Version <= h.latest.Version {
		return false
	}
	h.latest = s
	h.have = true
	h.notify()
	return true
}

// Replace records s whatever its version and wakes every subscriber. It
// starts a new generation, used when the coordinator restarted and its
// versions began again.
func (h *Hub) Replace(s domain.Snapshot) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.latest = s
	h.have = true
	h.gen++
	h.notify()
}

// notify must be called with mu held.
func (h *Hub) notify() {
	for ch := range h.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

func (h *Hub) Latest() (domain.Snapshot, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.latest, h.have
}

// Current returns the latest snapshot with its generation. Versions are
// only comparable within one generation.
func (h *Hub) Current() (domain.Snapshot, uint64, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.latest, h.gen, h.have
}

// Len is the number of subscribed sessions.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}
