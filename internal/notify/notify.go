// Package notify fans out new-post events to live watch sessions.
package notify

import (
	"log/slog"
	"sync"
)

// Event announces a freshly stored eet. Origin carries the publishing
// server's instance ID and is empty for events raised locally.
type Event struct {
	PostID   string   `json:"post_id"`
	Author   string   `json:"author"`
	Tags     []string `json:"tags,omitempty"`
	Mentions []string `json:"mentions,omitempty"`
	Origin   string   `json:"origin,omitempty"`
}

// subBuffer is how many undelivered events a subscriber can lag
// behind. Watch sessions refetch the page on every poke, so dropped
// events only cost a little refresh latency, never data.
const subBuffer = 8

// Hub is an in-process broadcast of Events. The zero value is not
// usable; call NewHub.
type Hub struct {
	logger *slog.Logger

	mu   sync.Mutex
	subs map[chan Event]struct{}
}

func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		logger: logger,
		subs:   make(map[chan Event]struct{}),
	}
}

// Subscribe registers a new listener. The returned cancel func must be
// called when the listener goes away; it closes the channel.
func (h *Hub) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, subBuffer)
	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, ch)
			h.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

// Publish delivers ev to every subscriber without blocking. A
// subscriber whose buffer is full misses the event.
func (h *Hub) Publish(ev Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs {
		select {
		case ch <- ev:
		default:
			h.logger.Debug("notify: subscriber lagging, event dropped", "post_id", ev.PostID)
		}
	}
}

// Subscribers returns the current listener count.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}
