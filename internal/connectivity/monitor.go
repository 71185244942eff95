// Package connectivity reports whether the generation service is reachable
// and notifies subscribers when that changes.
package connectivity

import "sync"

// Monitor exposes the current online state and transition notifications.
type Monitor interface {
	Online() bool
	// Subscribe returns a channel that receives the new state on every
	// transition, and a function that stops delivery.
	Subscribe() (<-chan bool, func())
}

// hub holds the state and fan-out shared by every Monitor implementation.
type hub struct {
	mu     sync.RWMutex
	online bool
	subs   map[int]chan bool
	next   int
}

func newHub(online bool) *hub {
	return &hub{online: online, subs: make(map[int]chan bool)}
}

func (h *hub) Online() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.online
}

func (h *hub) Subscribe() (<-chan bool, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	id := h.next
	h.next++
	ch := make(chan bool, 1)
	h.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			delete(h.subs, id)
			close(ch)
		})
	}
}

// set records the new state and reports whether it was a transition.
// Slow subscribers only ever see the latest state.
func (h *hub) set(online bool) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.online == online {
		return false
	}
	h.online = online
	for _, ch := range h.subs {
		select {
		case <-ch:
		default:
		}
		ch <- online
	}
	return true
}

// Static is a Monitor whose state is set explicitly. It backs
// connectivity.force_offline and tests.
type Static struct {
	*hub
}

// NewStatic returns a Static monitor in the given state.
func NewStatic(online bool) *Static {
	return &Static{hub: newHub(online)}
}

// Set changes the state, notifying subscribers on a transition.
func (s *Static) Set(online bool) {
	s.set(online)
}
