// Package notify broadcasts session-scoped change signals. After a save
// completes, every subscriber of that session receives a payload-free tick so
// sibling consumers (history lists, other tabs) can refresh.
package notify

import "sync"

// Hub fan-outs per-session change notifications.
type Hub struct {
	mu   sync.Mutex
	subs map[string]map[chan struct{}]struct{}
}

// NewHub creates a new notification hub.
func NewHub() *Hub {
	return &Hub{
		subs: make(map[string]map[chan struct{}]struct{}),
	}
}

// Subscribe registers interest in a session. The returned cancel function
// must be called to release the subscription.
func (h *Hub) Subscribe(sessionID string) (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)

	h.mu.Lock()
	if h.subs[sessionID] == nil {
		h.subs[sessionID] = make(map[chan struct{}]struct{})
	}
	h.subs[sessionID][ch] = struct{}{}
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		if set, ok := h.subs[sessionID]; ok {
			delete(set, ch)
			if len(set) == 0 {
				delete(h.subs, sessionID)
			}
		}
		h.mu.Unlock()
	}

	return ch, cancel
}

// Broadcast signals every subscriber of the session. Sends never block: a
// subscriber that has not drained its previous tick keeps exactly one pending.
func (h *Hub) Broadcast(sessionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for ch := range h.subs[sessionID] {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}
