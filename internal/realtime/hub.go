// Package realtime fans state changes and toasts out to connected dashboards
// over server-sent events.
package realtime

import (
	"sync"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

// Event types sent to browsers.
const (
	EventState = "state"
	EventToast = "toast"
)

// Event is one message for the browser stream. ID increases across all
// events published by a hub.
type Event struct {
	ID   uint64
	Type string
	Data any
}

var (
	hubSubscribers = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "realtime_subscribers",
		Help: "Connected browser event streams.",
	})
	hubPublished = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "realtime_events_published_total",
		Help: "Events published to the hub by type.",
	}, []string{"type"})
	hubDropped = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "realtime_events_dropped_total",
		Help: "Events dropped because a subscriber buffer was full.",
	}, []string{"type"})
)

func init() {
	prometheus.MustRegister(hubSubscribers, hubPublished, hubDropped)
}

// Hub broadcasts events to subscribers. Each subscriber has a bounded buffer;
// a subscriber that falls behind loses events rather than blocking Publish.
type Hub struct {
	buffer int
	log    zerolog.Logger
	seq    atomic.Uint64

	mu     sync.RWMutex
	subs   map[uint64]chan Event
	nextID uint64
	closed bool
}

// NewHub returns a hub with per-subscriber buffers of size buffer.
func NewHub(buffer int, log zerolog.Logger) *Hub {
	if buffer <= 0 {
		buffer = 64
	}
	return &Hub{
		buffer: buffer,
		log:    log.With().Str("component", "realtime").Logger(),
		subs:   make(map[uint64]chan Event),
	}
}

// Subscribe registers a subscriber. The returned cancel func unregisters it
// and closes the channel; it is safe to call more than once.
func (h *Hub) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, h.buffer)
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	id := h.nextID
	h.nextID++
	h.subs[id] = ch
	h.mu.Unlock()
	hubSubscribers.Inc()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			if _, ok := h.subs[id]; ok {
				delete(h.subs, id)
				close(ch)
				hubSubscribers.Dec()
			}
			h.mu.Unlock()
		})
	}
}

// Publish sends an event of typ to every subscriber without blocking.
func (h *Hub) Publish(typ string, data any) Event {
	ev := Event{ID: h.seq.Add(1), Type: typ, Data: data}
	hubPublished.WithLabelValues(typ).Inc()

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, ch := range h.subs {
		select {
		case ch <- ev:
		default:
			hubDropped.WithLabelValues(typ).Inc()
			h.log.Debug().Str("type", typ).Uint64("event_id", ev.ID).Msg("subscriber buffer full, event dropped")
		}
	}
	return ev
}

// Subscribers returns the number of connected subscribers.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Close disconnects every subscriber. Later subscribers get a closed channel.
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
		hubSubscribers.Dec()
	}
}
