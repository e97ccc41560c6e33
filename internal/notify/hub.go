// Package notify fans game snapshots out to subscribers (websocket clients).
package notify

import (
	"sync"

	"github.com/robalobadob/pairs/apps/go-server/internal/game"
)

// DefaultBuffer is the per-subscriber channel capacity.
const DefaultBuffer = 16

// Hub routes snapshots to the subscribers of their game ID.
type Hub struct {
	mu     sync.Mutex
	subs   map[string]map[*subscriber]struct{}
	last   map[string]uint64 // newest Seq published per game
	buffer int
}

type subscriber struct {
	ch   chan game.Snapshot
	once sync.Once
}

// NewHub creates a Hub whose subscriber channels hold buffer snapshots.
func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &Hub{
		subs:   make(map[string]map[*subscriber]struct{}),
		last:   make(map[string]uint64),
		buffer: buffer,
	}
}

// Subscribe registers interest in gameID. The returned cancel func unregisters
// and closes the channel; it is safe to call more than once.
func (h *Hub) Subscribe(gameID string) (<-chan game.Snapshot, func()) {
	s := &subscriber{ch: make(chan game.Snapshot, h.buffer)}
	h.mu.Lock()
	set, ok := h.subs[gameID]
	if !ok {
		set = make(map[*subscriber]struct{})
		h.subs[gameID] = set
	}
	set[s] = struct{}{}
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		if set, ok := h.subs[gameID]; ok {
			delete(set, s)
			if len(set) == 0 {
				delete(h.subs, gameID)
			}
		}
		h.mu.Unlock()
		s.once.Do(func() { close(s.ch) })
	}
	return s.ch, cancel
}

// Publish delivers snap to every subscriber of snap.ID. A subscriber whose
// buffer is full misses this snapshot; the next one carries the full state.
// A snapshot older than one already published for the game is dropped.
func (h *Hub) Publish(snap game.Snapshot) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	if last, ok := h.last[snap.ID]; ok && snap.Seq <= last {
		return 0
	}
	h.last[snap.ID] = snap.Seq
	delivered := 0
	for s := range h.subs[snap.ID] {
		select {
		case s.ch <- snap:
			delivered++
		default:
		}
	}
	return delivered
}

// Subscribers reports how many subscribers gameID has.
func (h *Hub) Subscribers(gameID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[gameID])
}

// Forget drops everything the hub holds for gameID and closes its
// subscribers' channels.
func (h *Hub) Forget(gameID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for s := range h.subs[gameID] {
		s.once.Do(func() { close(s.ch) })
	}
	delete(h.subs, gameID)
	delete(h.last, gameID)
}
